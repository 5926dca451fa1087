package engine

import (
	"context"
	"path/filepath"
	"time"

	"clipy/host/internal/model"
)

// MockDownloader simulates yt-dlp for tests and for running the host
// without binaries installed. It walks a fixed progress ramp and honors
// cancellation between steps.
type MockDownloader struct {
	StepDelay time.Duration
	Steps     []float64
	FailWith  *Error
	Info      model.VideoInfo
}

func NewMockDownloader() *MockDownloader {
	return &MockDownloader{
		StepDelay: 20 * time.Millisecond,
		Steps:     []float64{10, 35, 72, 100},
		Info: model.VideoInfo{
			ID:       "mock01",
			Title:    "Mock Video",
			Duration: 120,
			Formats: []model.VideoFormat{
				{FormatID: "22", Ext: "mp4", Height: 720, VCodec: "avc1", ACodec: "mp4a", URL: "https://cdn.mock/720.mp4"},
				{FormatID: "137", Ext: "mp4", Height: 1080, VCodec: "avc1", ACodec: "none", URL: "https://cdn.mock/1080v.mp4"},
				{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128, URL: "https://cdn.mock/audio.m4a"},
			},
		},
	}
}

func (m *MockDownloader) Version(ctx context.Context) (string, error) {
	return "mock", nil
}

func (m *MockDownloader) FetchInfo(ctx context.Context, url string) (model.VideoInfo, *Error) {
	info := m.Info
	info.WebpageURL = url
	return info, nil
}

func (m *MockDownloader) Download(ctx context.Context, id, url string, opts model.DownloadOption, progress chan<- model.DownloadProgress) (string, *Error) {
	total := int64(100 << 20)
	for _, pct := range m.Steps {
		select {
		case <-ctx.Done():
			return "", newError(KindCancelled, "download cancelled", false)
		case <-time.After(m.StepDelay):
		}
		select {
		case progress <- model.DownloadProgress{
			ID:         id,
			Progress:   pct,
			Speed:      "5.00MiB/s",
			ETA:        "00:10",
			Downloaded: int64(pct / 100 * float64(total)),
			Total:      total,
			Title:      m.Info.Title,
		}:
		default:
		}
	}
	if m.FailWith != nil {
		return "", m.FailWith
	}
	return filepath.Join(opts.OutputDir, "Mock Video.mp4"), nil
}

// MockMediaEngine returns canned ffprobe/export results.
type MockMediaEngine struct {
	Meta model.MediaMetadata
}

func NewMockMediaEngine() *MockMediaEngine {
	return &MockMediaEngine{
		Meta: model.MediaMetadata{
			Duration: 120,
			Width:    1920,
			Height:   1080,
			FPS:      30,
			Codec:    "h264",
			Bitrate:  4_000_000,
			HasAudio: true,
		},
	}
}

func (m *MockMediaEngine) Version(ctx context.Context) (string, error) {
	return "mock", nil
}

func (m *MockMediaEngine) Probe(ctx context.Context, path string) (model.MediaMetadata, *Error) {
	return m.Meta, nil
}

func (m *MockMediaEngine) Thumbnail(ctx context.Context, input, output string, atSec float64, width int) *Error {
	return nil
}

func (m *MockMediaEngine) TimelineThumbnails(ctx context.Context, input, outDir string, count, width int) ([]string, *Error) {
	out := make([]string, count)
	for i := range out {
		out[i] = filepath.Join(outDir, "thumb.jpg")
	}
	return out, nil
}

func (m *MockMediaEngine) Waveform(ctx context.Context, input string, samples int) ([]float64, *Error) {
	out := make([]float64, samples)
	for i := range out {
		out[i] = float64(i%10) / 10
	}
	return out, nil
}

func (m *MockMediaEngine) Export(ctx context.Context, project model.Project, settings model.ExportSettings, progress chan<- model.ExportProgress) *Error {
	for _, pct := range []float64{25, 50, 75, 100} {
		select {
		case <-ctx.Done():
			return newError(KindCancelled, "export cancelled", false)
		case <-time.After(10 * time.Millisecond):
		}
		select {
		case progress <- model.ExportProgress{ProjectID: project.ID, State: model.ExportRunning, Progress: pct}:
		default:
		}
	}
	return nil
}

func (m *MockMediaEngine) Transcode(ctx context.Context, input, output string) *Error {
	return nil
}
