package model

import "time"

type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusFetching    DownloadStatus = "fetching"
	StatusDownloading DownloadStatus = "downloading"
	StatusProcessing  DownloadStatus = "processing"
	StatusPaused      DownloadStatus = "paused"
	StatusStalled     DownloadStatus = "stalled"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusCancelled   DownloadStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from status.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the record occupies a queue slot. Pending, paused
// and stalled records do not count against the concurrency limit.
func (s DownloadStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusProcessing
}

type DownloadRecord struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Thumbnail      string         `json:"thumbnail,omitempty"`
	Status         DownloadStatus `json:"status"`
	Progress       float64        `json:"progress"`
	Speed          string         `json:"speed,omitempty"`
	ETA            string         `json:"eta,omitempty"`
	FilePath       string         `json:"file_path,omitempty"`
	FileSize       int64          `json:"file_size,omitempty"`
	Downloaded     int64          `json:"downloaded,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	Options        DownloadOption `json:"options"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	LastProgressAt time.Time      `json:"-"`
}

// DownloadOption carries every recognized per-download knob. Zero values fall
// back to the persisted settings defaults when the download starts.
type DownloadOption struct {
	Quality             string   `json:"quality,omitempty"`
	Format              string   `json:"format,omitempty"`
	AudioOnly           bool     `json:"audio_only,omitempty"`
	AudioFormat         string   `json:"audio_format,omitempty"`
	AudioBitrate        string   `json:"audio_bitrate,omitempty"`
	Codec               string   `json:"codec,omitempty"`
	OutputDir           string   `json:"output_dir,omitempty"`
	OutputTemplate      string   `json:"output_template,omitempty"`
	EmbedThumbnail      bool     `json:"embed_thumbnail,omitempty"`
	EmbedMetadata       bool     `json:"embed_metadata,omitempty"`
	EmbedChapters       bool     `json:"embed_chapters,omitempty"`
	SplitChapters       bool     `json:"split_chapters,omitempty"`
	DownloadSubtitles   bool     `json:"download_subtitles,omitempty"`
	AutoSubtitles       bool     `json:"auto_subtitles,omitempty"`
	SubtitleLanguages   []string `json:"subtitle_languages,omitempty"`
	SubtitleFormat      string   `json:"subtitle_format,omitempty"`
	EmbedSubtitles      bool     `json:"embed_subtitles,omitempty"`
	SponsorblockRemove  []string `json:"sponsorblock_remove,omitempty"`
	WriteDescription    bool     `json:"write_description,omitempty"`
	WriteComments       bool     `json:"write_comments,omitempty"`
	WriteThumbnail      bool     `json:"write_thumbnail,omitempty"`
	KeepFragments       bool     `json:"keep_fragments,omitempty"`
	MaxFileSize         string   `json:"max_file_size,omitempty"`
	RateLimit           string   `json:"rate_limit,omitempty"`
	RemuxVideo          string   `json:"remux_video,omitempty"`
	CookiesFromBrowser  string   `json:"cookies_from_browser,omitempty"`
	ConcurrentFragments int      `json:"concurrent_fragments,omitempty"`
	Proxy               string   `json:"proxy,omitempty"`
	RestrictFilenames   bool     `json:"restrict_filenames,omitempty"`
	DownloadArchive     bool     `json:"download_archive,omitempty"`
	GeoBypass           bool     `json:"geo_bypass,omitempty"`
	NoPlaylist          bool     `json:"no_playlist,omitempty"`
	PlaylistItems       string   `json:"playlist_items,omitempty"`
}

// DownloadProgress is a single progress snapshot emitted by the engine.
// Zero-valued fields mean "no update" so snapshots merge into the record.
type DownloadProgress struct {
	ID         string  `json:"id"`
	Progress   float64 `json:"progress"`
	Speed      string  `json:"speed,omitempty"`
	ETA        string  `json:"eta,omitempty"`
	Downloaded int64   `json:"downloaded,omitempty"`
	Total      int64   `json:"total,omitempty"`
	FilePath   string  `json:"file_path,omitempty"`
	Title      string  `json:"title,omitempty"`
}

type DownloadFilter string

const (
	FilterAll       DownloadFilter = "all"
	FilterActive    DownloadFilter = "active"
	FilterCompleted DownloadFilter = "completed"
	FilterFailed    DownloadFilter = "failed"
)

type DownloadEventType string

const (
	EventDownloadQueued    DownloadEventType = "download_queued"
	EventDownloadStarted   DownloadEventType = "download_started"
	EventDownloadProgress  DownloadEventType = "download_progress"
	EventDownloadCompleted DownloadEventType = "download_completed"
	EventDownloadFailed    DownloadEventType = "download_failed"
	EventDownloadCancelled DownloadEventType = "download_cancelled"
	EventDownloadPaused    DownloadEventType = "download_paused"
	EventDownloadStalled   DownloadEventType = "download_stalled"
	EventExportProgress    DownloadEventType = "export_progress"
	EventExportCompleted   DownloadEventType = "export_completed"
	EventExportFailed      DownloadEventType = "export_failed"
	EventExportCancelled   DownloadEventType = "export_cancelled"
)

type DownloadEvent struct {
	EventID    string            `json:"event_id"`
	Seq        int64             `json:"seq"`
	DownloadID string            `json:"download_id,omitempty"`
	Type       DownloadEventType `json:"type"`
	TS         time.Time         `json:"ts"`
	Payload    map[string]any    `json:"payload,omitempty"`
}
