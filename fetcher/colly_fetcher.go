package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gocolly/colly/v2"
)

var errNoResponse = errors.New("no response received")

// CollyFetcher implements the Fetcher interface using colly
type CollyFetcher struct {
	opts Options
}

// NewCollyFetcher creates a new CollyFetcher instance
func NewCollyFetcher(opts Options) *CollyFetcher {
	return &CollyFetcher{
		opts: opts,
	}
}

// newCollector builds a fresh collector so callbacks never leak between searches
func (cf *CollyFetcher) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(cf.opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	// Deliver non-2xx responses to OnResponse so the status can be reported
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(cf.opts.Timeout)

	if cf.opts.Accept != "" {
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept", cf.opts.Accept)
		})
	}
	return c
}

// Fetch implements the Fetcher interface
func (cf *CollyFetcher) Fetch(ctx context.Context, query string) (string, error) {
	searchURL, err := BuildSearchURL(cf.opts.BaseURL, cf.opts.Region, query)
	if err != nil {
		return "", &FetchError{Err: err}
	}

	if err := warmUp(ctx, cf.opts); err != nil {
		return "", &FetchError{URL: searchURL, Err: err}
	}

	var (
		body       string
		statusCode int
		callErr    error
	)

	c := cf.newCollector(ctx)
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		callErr = err
	})

	slog.Debug("fetching search page", "url", searchURL)
	if err := c.Visit(searchURL); err != nil && callErr == nil {
		callErr = err
	}

	if statusCode != 0 && statusCode != http.StatusOK {
		return "", &FetchError{URL: searchURL, StatusCode: statusCode}
	}
	if callErr != nil {
		return "", &FetchError{URL: searchURL, Err: callErr}
	}
	if statusCode == 0 {
		return "", &FetchError{URL: searchURL, Err: errNoResponse}
	}

	slog.Info("fetched search page", "url", searchURL, "bytes", len(body))
	return body, nil
}
