package model

// VideoFormat mirrors one entry of yt-dlp's formats array, trimmed to the
// fields stream selection and quality listing need.
type VideoFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
	ABR        float64 `json:"abr,omitempty"`
	TBR        float64 `json:"tbr,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	URL        string  `json:"url,omitempty"`
	Protocol   string  `json:"protocol,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
}

type VideoInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	Duration    float64       `json:"duration,omitempty"`
	Channel     string        `json:"channel,omitempty"`
	Uploader    string        `json:"uploader,omitempty"`
	UploadDate  string        `json:"upload_date,omitempty"`
	ViewCount   int64         `json:"view_count,omitempty"`
	WebpageURL  string        `json:"webpage_url,omitempty"`
	Extractor   string        `json:"extractor,omitempty"`
	Formats     []VideoFormat `json:"formats,omitempty"`
}

// StreamingInfo is what the preview player needs: one directly playable
// stream, plus an optional separate audio stream when the best video
// stream carries no audio.
type StreamingInfo struct {
	VideoURL   string  `json:"video_url"`
	AudioURL   string  `json:"audio_url,omitempty"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	DualStream bool    `json:"dual_stream"`
}

// MediaMetadata is the ffprobe summary for a local file.
type MediaMetadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Codec    string  `json:"codec,omitempty"`
	Bitrate  int64   `json:"bitrate,omitempty"`
	HasAudio bool    `json:"has_audio"`
}
