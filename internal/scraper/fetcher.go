package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pace/ingest-service/internal/model"
)

const (
	DefaultAPIURL   = BaseHost + "/api/public/opportunity/search-result"
	DefaultPageSize = 24
	DefaultTimeout  = 20 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	// excerptLength bounds raw bodies quoted in errors.
	excerptLength = 800
	maxBodyBytes  = 10 << 20
)

// Page is one fetched listing page. Raw and StatusCode are set whenever a
// response was received, including failed ones.
type Page struct {
	Category   model.Category
	Number     int
	StatusCode int
	Raw        string
	Items      []map[string]any
}

// UnstopFetcher fetches listing pages from the Unstop public search API.
type UnstopFetcher struct {
	apiURL   string
	pageSize int
	client   *http.Client
}

// NewUnstopFetcher constructs a fetcher. An empty apiURL uses DefaultAPIURL;
// every request is bounded by timeout.
func NewUnstopFetcher(apiURL string, pageSize int, timeout time.Duration) *UnstopFetcher {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UnstopFetcher{
		apiURL:   apiURL,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

// FetchPage requests one page of open opportunities for category. Transport
// failures, non-2xx statuses and undecodable bodies are returned as errors.
func (f *UnstopFetcher) FetchPage(ctx context.Context, category model.Category, page int) (Page, error) {
	result := Page{Category: category, Number: page}
	keyword, ok := Keywords[category]
	if !ok {
		return result, fmt.Errorf("no keyword for category %s", category)
	}

	params := url.Values{}
	params.Set("opportunity", keyword)
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(f.pageSize))
	params.Set("oppstatus", "open")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", BaseHost+"/"+keyword)

	resp, err := f.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	result.StatusCode = resp.StatusCode
	result.Raw = string(body)
	if err != nil {
		return result, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("listing API returned %d: %s", resp.StatusCode, excerpt(result.Raw))
	}

	items, err := decodeItems(body)
	if err != nil {
		return result, fmt.Errorf("response is not JSON (%w): %s", err, excerpt(result.Raw))
	}
	result.Items = items
	return result, nil
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > excerptLength {
		return string(r[:excerptLength])
	}
	return s
}
