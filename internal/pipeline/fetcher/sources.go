package fetcher

import (
	"fmt"
	"net/http"
	"time"

	httputil "github.com/r3e-labs/inmarket-pipeline/internal/platform/httpclient"
)

// defaultHTTPClient builds the shared client every concrete fetcher below
// uses, via internal/platform/httpclient so timeout/TLS-floor/body-cap
// policy is consistent across sources.
func defaultHTTPClient(timeout time.Duration) (*http.Client, error) {
	return httputil.NewClient(httputil.ClientConfig{Timeout: timeout}, httputil.DefaultClientDefaults())
}

// NewNSEEquityBarFetcher builds the fetcher for the NSE daily bar ZIP
// feed: a dated ZIP containing one CSV, per §6.1.
func NewNSEEquityBarFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(30 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		if p.Date.IsZero() {
			return "", fmt.Errorf("nse equity bar fetch requires a date")
		}
		return fmt.Sprintf("%s/content/historical/EQUITIES/%04d/%s/cm%s%s%04dbhav.csv.zip",
			baseURL, p.Date.Year(), monthAbbrevUpper(p.Date), pad2(p.Date.Day()), monthAbbrevUpper(p.Date), p.Date.Year()), nil
	}
	return NewHTTPFetcher("NSE_EQ_BAR", client, urlFor, UnzipSingleFile), nil
}

// NewBSEEquityBarFetcher builds the fetcher for the BSE daily bar CSV
// feed, per §6.1.
func NewBSEEquityBarFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(30 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		if p.Date.IsZero() {
			return "", fmt.Errorf("bse equity bar fetch requires a date")
		}
		return fmt.Sprintf("%s/download/BhavCopy/Equity/EQ%s%s%02d_CSV.ZIP",
			baseURL, pad2(p.Date.Day()), monthAbbrevUpper(p.Date), p.Date.Year()%100), nil
	}
	return NewHTTPFetcher("BSE_EQ_BAR", client, urlFor, UnzipSingleFile), nil
}

// NewBulkBlockDealsFetcher builds the fetcher for the NSE bulk/block deal
// feed: Brotli-compressed CSV, per §6.1.
func NewBulkBlockDealsFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(30 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		if p.Date.IsZero() {
			return "", fmt.Errorf("bulk/block deals fetch requires a date")
		}
		return fmt.Sprintf("%s/api/historical/bulk-block-deals?date=%s", baseURL, p.Date.Format("02-01-2006")), nil
	}
	return NewHTTPFetcher("NSE_BULK_DEALS", client, urlFor, DecompressBrotli), nil
}

// NewIndexConstituentFetcher builds the fetcher for the NSE index
// constituents JSON feed, per §6.1.
func NewIndexConstituentFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(15 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		index := p.Symbol
		if index == "" {
			return "", fmt.Errorf("index constituent fetch requires an index name in Symbol")
		}
		return fmt.Sprintf("%s/api/equity-stockIndices?index=%s", baseURL, index), nil
	}
	return NewHTTPFetcher("NSE_INDEX_CONSTITUENT", client, urlFor, nil), nil
}

// NewOptionChainFetcher builds the fetcher for the NSE option chain JSON
// feed, per §6.1.
func NewOptionChainFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(15 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		underlying := p.Symbol
		if underlying == "" {
			return "", fmt.Errorf("option chain fetch requires an underlying symbol")
		}
		return fmt.Sprintf("%s/api/option-chain-equities?symbol=%s", baseURL, underlying), nil
	}
	return NewHTTPFetcher("NSE_OPTION_CHAIN", client, urlFor, nil), nil
}

// NewSymbolMasterFetcher builds the fetcher for the NSE symbol master CSV
// feed, per §6.1.
func NewSymbolMasterFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(30 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		return fmt.Sprintf("%s/content/equities/EQUITY_L.csv", baseURL), nil
	}
	return NewHTTPFetcher("NSE_MASTER", client, urlFor, nil), nil
}

// NewCorporateActionsFetcher builds the fetcher for the NSE quarterly
// corporate-action XBRL disclosure feed, per §6.1.
func NewCorporateActionsFetcher(baseURL string) (*HTTPFetcher, error) {
	client, err := defaultHTTPClient(30 * time.Second)
	if err != nil {
		return nil, err
	}
	urlFor := func(p Params) (string, error) {
		if p.Date.IsZero() {
			return "", fmt.Errorf("corporate actions fetch requires a quarter-end date")
		}
		return fmt.Sprintf("%s/api/corporate-actions/xbrl?quarter=%04d%02d", baseURL, p.Date.Year(), p.Date.Month()), nil
	}
	return NewHTTPFetcher("NSE_CORPORATE_ACTIONS", client, urlFor, nil), nil
}

func pad2(n int) string {
	if n < 10 {
		return "0" + fmt.Sprint(n)
	}
	return fmt.Sprint(n)
}

func monthAbbrevUpper(t interface{ Month() time.Month }) string {
	return [...]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}[t.Month()-1]
}
