// backend/scraper/fetch.go
package scraper

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hwtracker/backend/utils"
)

// Fetcher issues polite product-page requests: rotating user agent,
// browser-like headers, bounded timeout. Pacing is the rate controller's
// job; the fetcher only performs the request it is handed.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// FetchPage GETs a product page and returns its body and status code. A
// non-nil error means the request itself failed; status-code handling
// (429 penalties, retries) is left to the caller.
func (f *Fetcher) FetchPage(pageURL string) (body string, statusCode int, err error) {
	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read body of %s: %w", pageURL, err)
	}
	return string(data), resp.StatusCode, nil
}
