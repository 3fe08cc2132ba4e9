// Package fetcher downloads remote documents with per-host rate limiting and
// retries.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// GetJSON fetches the URL and decodes the JSON body into v.
	GetJSON(ctx context.Context, url string, v any) error
}
