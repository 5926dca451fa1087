// Package engine wraps the external yt-dlp and ffmpeg binaries behind
// interfaces the orchestration layer consumes. All process handling,
// output parsing and error classification lives here.
package engine

import (
	"context"

	"clipy/host/internal/model"
)

// Error kind strings double as the wire-level error codes.
const (
	KindInvalidURL      = "invalid_url"
	KindUnsupportedSite = "unsupported_site"
	KindNetwork         = "network_error"
	KindEngine          = "engine_error"
	KindIO              = "io_error"
	KindNotFound        = "not_found"
	KindAuthRequired    = "auth_required"
	KindCancelled       = "cancelled"
)

type Error struct {
	Kind      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

func newError(kind, message string, retryable bool) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable}
}

// Downloader runs yt-dlp. Download streams snapshots into progress until the
// process exits and returns the final media file path.
type Downloader interface {
	FetchInfo(ctx context.Context, url string) (model.VideoInfo, *Error)
	Download(ctx context.Context, id, url string, opts model.DownloadOption, progress chan<- model.DownloadProgress) (string, *Error)
	Version(ctx context.Context) (string, error)
}

// MediaEngine runs ffmpeg and ffprobe.
type MediaEngine interface {
	Probe(ctx context.Context, path string) (model.MediaMetadata, *Error)
	Thumbnail(ctx context.Context, input, output string, atSec float64, width int) *Error
	TimelineThumbnails(ctx context.Context, input, outDir string, count, width int) ([]string, *Error)
	Waveform(ctx context.Context, input string, samples int) ([]float64, *Error)
	Export(ctx context.Context, project model.Project, settings model.ExportSettings, progress chan<- model.ExportProgress) *Error
	Transcode(ctx context.Context, input, output string) *Error
	Version(ctx context.Context) (string, error)
}
