package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher implements the Fetcher interface using rod (headless browser)
type RodFetcher struct {
	opts    Options
	browser *rod.Browser
}

// NewRodFetcher launches a headless browser and connects to it
func NewRodFetcher(opts Options) (*RodFetcher, error) {
	// This should be mounted as a volume to use disk instead of memory
	userDataDir := os.Getenv("BOT_DATA_DIR")
	if userDataDir == "" {
		userDataDir = "/tmp/avito-helper-data"
	}
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		slog.Warn("failed to create browser data directory", "dir", userDataDir, "err", err)
		userDataDir = ""
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("mute-audio")
	if userDataDir != "" {
		l = l.UserDataDir(userDataDir)
	}

	// Prefer a system Chrome/Chromium, rod downloads one otherwise
	if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	browserURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &RodFetcher{
		opts:    opts,
		browser: browser,
	}, nil
}

// Close closes the browser
func (rf *RodFetcher) Close() error {
	if rf.browser != nil {
		return rf.browser.Close()
	}
	return nil
}

// Fetch implements the Fetcher interface
func (rf *RodFetcher) Fetch(ctx context.Context, query string) (string, error) {
	searchURL, err := BuildSearchURL(rf.opts.BaseURL, rf.opts.Region, query)
	if err != nil {
		return "", &FetchError{Err: err}
	}

	if err := warmUp(ctx, rf.opts); err != nil {
		return "", &FetchError{URL: searchURL, Err: err}
	}

	page, err := rf.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", &FetchError{URL: searchURL, Err: fmt.Errorf("failed to create page: %w", err)}
	}
	defer page.Close()

	page = page.Context(ctx)
	if rf.opts.Timeout > 0 {
		page = page.Timeout(rf.opts.Timeout)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: rf.opts.UserAgent}); err != nil {
		return "", &FetchError{URL: searchURL, Err: fmt.Errorf("failed to set user agent: %w", err)}
	}
	if rf.opts.Accept != "" {
		if _, err := page.SetExtraHeaders([]string{"Accept", rf.opts.Accept}); err != nil {
			return "", &FetchError{URL: searchURL, Err: fmt.Errorf("failed to set headers: %w", err)}
		}
	}

	// The status of the top-level document response
	statusCode := 0
	waitStatus := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		statusCode = e.Response.Status
		return true
	})

	slog.Debug("navigating to search page", "url", searchURL)
	if err := page.Navigate(searchURL); err != nil {
		return "", &FetchError{URL: searchURL, Err: fmt.Errorf("failed to navigate: %w", err)}
	}
	waitStatus()
	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: searchURL, Err: err}
	}

	if statusCode != http.StatusOK {
		return "", &FetchError{URL: searchURL, StatusCode: statusCode}
	}

	if err := page.WaitLoad(); err != nil {
		return "", &FetchError{URL: searchURL, Err: fmt.Errorf("failed to wait for load: %w", err)}
	}

	html, err := page.HTML()
	if err != nil {
		return "", &FetchError{URL: searchURL, Err: fmt.Errorf("failed to get HTML: %w", err)}
	}

	slog.Info("fetched search page", "url", searchURL, "bytes", len(html), "backend", "rod")
	return html, nil
}
