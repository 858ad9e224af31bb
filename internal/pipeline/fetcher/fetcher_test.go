package fetcher_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/fetcher"
	pipelineerr "github.com/r3e-labs/inmarket-pipeline/internal/platform/pipelineerr"
)

func newTestClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("col1,col2\nfoo,1\n"))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher("TEST_SRC", newTestClient(), func(p fetcher.Params) (string, error) {
		return srv.URL + "/data.csv", nil
	}, nil)

	body, err := f.Fetch(context.Background(), fetcher.Params{})
	require.NoError(t, err)
	assert.Equal(t, "col1,col2\nfoo,1\n", string(body))
	assert.Equal(t, "TEST_SRC", f.Source())
}

func TestHTTPFetcher_Fetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher("TEST_SRC", newTestClient(), func(p fetcher.Params) (string, error) {
		return srv.URL, nil
	}, nil)

	_, err := f.Fetch(context.Background(), fetcher.Params{})
	assert.ErrorIs(t, err, fetcher.ErrNotFound)
}

func TestHTTPFetcher_Fetch_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher("TEST_SRC", newTestClient(), func(p fetcher.Params) (string, error) {
		return srv.URL, nil
	}, nil)

	_, err := f.Fetch(context.Background(), fetcher.Params{})
	require.Error(t, err)
	assert.True(t, pipelineerr.IsRetryable(err))
}

func TestHTTPFetcher_Fetch_ClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher("TEST_SRC", newTestClient(), func(p fetcher.Params) (string, error) {
		return srv.URL, nil
	}, nil)

	_, err := f.Fetch(context.Background(), fetcher.Params{})
	require.Error(t, err)
	assert.False(t, pipelineerr.IsRetryable(err))
}

func TestHTTPFetcher_Fetch_BadURLTemplate(t *testing.T) {
	f := fetcher.NewHTTPFetcher("TEST_SRC", newTestClient(), func(p fetcher.Params) (string, error) {
		return "", errors.New("missing date")
	}, nil)

	_, err := f.Fetch(context.Background(), fetcher.Params{})
	require.Error(t, err)
	var svcErr *pipelineerr.ServiceError
	require.ErrorAs(t, err, &svcErr)
}

func TestHTTPFetcher_Fetch_DecompressesBody(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte("decompressed-payload"))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher("TEST_SRC", newTestClient(), func(p fetcher.Params) (string, error) {
		return srv.URL, nil
	}, fetcher.DecompressBrotli)

	body, err := f.Fetch(context.Background(), fetcher.Params{})
	require.NoError(t, err)
	assert.Equal(t, "decompressed-payload", string(body))
}

func TestFanOut_CollectsResultsAndErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, errs := fetcher.FanOut(context.Background(), items, 2, func(ctx context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("boom")
		}
		return n * n, nil
	})

	assert.Len(t, errs, 1)
	assert.Len(t, results, 4)
}

func TestFanOut_RespectsConcurrencyLimit(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	var inFlight, maxInFlight int
	var mu sync.Mutex

	results, errs := fetcher.FanOut(context.Background(), items, 3, func(ctx context.Context, n int) (int, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return n, nil
	})

	assert.Empty(t, errs)
	assert.Len(t, results, len(items))
	assert.LessOrEqual(t, maxInFlight, 3)
}
