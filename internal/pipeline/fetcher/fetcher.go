// Package fetcher implements the per-source raw-bytes retrieval contract
// of spec §4.4: one object per exchange/reference source returning raw
// bytes for a (source, date, params) key, with source-appropriate
// decompression and 404-as-not-found handling so callers can record a
// zero-row idempotency marker instead of treating a holiday as a failure.
package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	httputil "github.com/r3e-labs/inmarket-pipeline/internal/platform/httpclient"
	pipelineerr "github.com/r3e-labs/inmarket-pipeline/internal/platform/pipelineerr"
)

// maxResponseBytes caps a single source response; the option-chain and
// index-constituent payloads are the largest at a few MB.
const maxResponseBytes = 64 << 20

// ErrNotFound is returned when upstream responds 404, distinguishing a
// permanently-missing date (e.g. an exchange holiday) from a transient
// failure, per §4.4/§7.
var ErrNotFound = fmt.Errorf("fetcher: source returned not found")

// Params parameterizes one fetch call: a source is date-keyed
// (EquityBar/BulkDeals/OptionChain/IndexConstituent) or otherwise keyed by
// whatever the caller's URL builder needs.
type Params struct {
	Date   time.Time
	Symbol string
	Extra  map[string]string
}

// Fetcher is the per-source contract of spec §4.4.
type Fetcher interface {
	// Source returns the fetcher's source name, used to key circuit
	// breakers, retry policy, and metrics.
	Source() string
	// Fetch retrieves raw, decompressed bytes for params. Returns
	// ErrNotFound (not an error the retry policy should spend attempts
	// on) when upstream reports the data doesn't exist for this key.
	Fetch(ctx context.Context, params Params) ([]byte, error)
}

// HTTPFetcher is the shared HTTP-GET-then-decompress skeleton every
// concrete fetcher in this package composes: it builds a URL from a
// per-source template, issues the GET, classifies the status code, and
// hands the raw body to a per-source decompression function.
type HTTPFetcher struct {
	source      string
	client      *http.Client
	urlFor      func(Params) (string, error)
	decompress  func([]byte) ([]byte, error)
	mu          sync.Mutex // guards no mutable state today; held for parity with future header/cookie bootstrap
}

// NewHTTPFetcher builds an HTTPFetcher for source, using client for
// transport (normally produced by httputil.NewClient so every fetcher
// shares the same timeout policy).
func NewHTTPFetcher(source string, client *http.Client, urlFor func(Params) (string, error), decompress func([]byte) ([]byte, error)) *HTTPFetcher {
	if decompress == nil {
		decompress = func(b []byte) ([]byte, error) { return b, nil }
	}
	return &HTTPFetcher{source: source, client: client, urlFor: urlFor, decompress: decompress}
}

// Source returns the fetcher's configured source name.
func (f *HTTPFetcher) Source() string { return f.source }

// Fetch issues the GET request and returns decompressed bytes.
func (f *HTTPFetcher) Fetch(ctx context.Context, params Params) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	url, err := f.urlFor(params)
	if err != nil {
		return nil, pipelineerr.ConfigError(f.source+".url_template", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pipelineerr.SourceUnreachable(f.source, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pipelineerr.SourceUnreachable(f.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, pipelineerr.SourceHTTPStatus(f.source, resp.StatusCode)
	}

	body, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, pipelineerr.SourceUnreachable(f.source, fmt.Errorf("reading response body: %w", err))
	}

	decompressed, err := f.decompress(body)
	if err != nil {
		return nil, pipelineerr.DecompressFailed(f.source, err)
	}
	return decompressed, nil
}

// UnzipSingleFile decompresses a ZIP archive and returns the bytes of its
// first entry — the NSE daily-bar feed ships exactly one CSV per ZIP.
func UnzipSingleFile(raw []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if len(r.File) == 0 {
		return nil, fmt.Errorf("zip archive is empty")
	}
	f, err := r.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", r.File[0].Name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read zip entry %s: %w", r.File[0].Name, err)
	}
	return data, nil
}

// DecompressBrotli decompresses a Brotli-compressed body, used by the NSE
// bulk/block-deal feed.
func DecompressBrotli(raw []byte) ([]byte, error) {
	data, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("brotli decompress: %w", err)
	}
	return data, nil
}

// FanOut runs fn once per item in items with at most maxConcurrency
// in-flight calls, collecting successful results and the first error per
// item. Grounded on infrastructure/datafeed/client.go's
// sync.WaitGroup+semaphore FetchAllPrices pattern — used here for the
// option-chain and index-constituent fetchers' per-symbol requests.
func FanOut[T any, R any](ctx context.Context, items []T, maxConcurrency int, fn func(context.Context, T) (R, error)) ([]R, []error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	results := make([]R, 0, len(items))
	errs := make([]error, 0)
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, maxConcurrency)
	for _, item := range items {
		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r, err := fn(ctx, it)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, r)
		}(item)
	}
	wg.Wait()

	return results, errs
}
