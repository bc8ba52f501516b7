package fetcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Fetcher retrieves the raw search results page for a query
type Fetcher interface {
	// Fetch issues a single request for the query and returns the page markup.
	// Any failure is terminal for that search, no retry is attempted.
	Fetch(ctx context.Context, query string) (string, error)
}

// Options configures how search pages are requested
type Options struct {
	BaseURL   string        // Site root, e.g. https://www.avito.ru
	Region    string        // Path segment selecting the location
	UserAgent string        // Client identity sent with every request
	Accept    string        // Optional Accept header
	WarmUp    time.Duration // Fixed delay before the request
	Jitter    time.Duration // Random delay added on top of WarmUp
	Timeout   time.Duration // Request timeout, 0 for none
}

// FetchError describes a failed page request
type FetchError struct {
	URL        string
	StatusCode int   // Non-200 status, 0 for transport failures
	Err        error // Transport failure cause
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Reason is the short cause shown to users: the status code or the transport error
func (e *FetchError) Reason() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return strconv.Itoa(e.StatusCode)
}

// BuildSearchURL places the URL-encoded query on {base}/{region}?q=
func BuildSearchURL(baseURL, region, query string) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("base URL must be absolute: %q", baseURL)
	}

	region = strings.Trim(region, "/")
	if region != "" {
		parsedURL = parsedURL.JoinPath(region)
	}

	params := url.Values{}
	params.Set("q", query)
	parsedURL.RawQuery = params.Encode()

	return parsedURL.String(), nil
}

// warmUp waits WarmUp plus a random share of Jitter, returning early on cancellation
func warmUp(ctx context.Context, opts Options) error {
	delay := opts.WarmUp
	if opts.Jitter > 0 {
		delay += rand.N(opts.Jitter)
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
