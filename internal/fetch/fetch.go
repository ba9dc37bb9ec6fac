package fetch

import (
	"context"
	"errors"
)

// ErrDownload wraps failures of the external downloader. Format selection
// and retries are the downloader's concern, not the caller's.
var ErrDownload = errors.New("download failed")

// Info is metadata the downloader reports about a fetched clip.
type Info struct {
	Duration float64 // seconds, 0 when the source did not report one
}

// Downloader fetches a remote source (URL or attachment URL) to dest.
type Downloader interface {
	Download(ctx context.Context, source, dest string) (*Info, error)
}

// Prober determines the duration of a local audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}
