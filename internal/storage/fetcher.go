package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// URLFetcher resolves query locators. http(s) locators are downloaded,
// file:// locators are read from disk when AllowFiles is set and anything
// else is treated as an object name in the fallback fetcher.
type URLFetcher struct {
	downloader *RemoteBucket
	fallback   Fetcher
	allowFiles bool
}

// URLFetcherOption configures a URLFetcher.
type URLFetcherOption func(*URLFetcher)

// AllowFiles lets file:// locators read the local filesystem. Only enable it
// where the locator comes from the operator, never from a network request.
func AllowFiles() URLFetcherOption {
	return func(f *URLFetcher) { f.allowFiles = true }
}

// NewURLFetcher creates a fetcher that delegates bare names to fallback.
// fallback may be nil.
func NewURLFetcher(fallback Fetcher, opts ...URLFetcherOption) *URLFetcher {
	f := &URLFetcher{
		downloader: &RemoteBucket{client: &http.Client{Timeout: 60 * time.Second}},
		fallback:   fallback,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the bytes behind locator.
func (f *URLFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return f.downloader.download(ctx, locator, locator)
		case "file":
			if !f.allowFiles {
				return nil, fmt.Errorf("%w: file scheme is disabled", ErrUnsupportedLocator)
			}
			return readFile(ctx, u.Path)
		}
	}
	if f.fallback == nil {
		return nil, fmt.Errorf("%w: no fetcher for %q", ErrNotFound, locator)
	}
	return f.fallback.Fetch(ctx, locator)
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // caller supplied locator
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
