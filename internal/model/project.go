package model

import "time"

type TrackType string

const (
	TrackVideo  TrackType = "video"
	TrackAudio  TrackType = "audio"
	TrackText   TrackType = "text"
	TrackEffect TrackType = "effect"
)

// Label returns the display name used when auto-naming tracks.
func (t TrackType) Label() string {
	switch t {
	case TrackVideo:
		return "Video"
	case TrackAudio:
		return "Audio"
	case TrackText:
		return "Text"
	case TrackEffect:
		return "Effect"
	}
	return "Track"
}

// Transform positions a clip on the canvas.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Rotation float64 `json:"rotation"`
}

func DefaultTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Filter is one entry in a clip's effect chain. Params are filter-specific
// and passed through to the render stage untouched.
type Filter struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Enabled bool           `json:"enabled"`
	Params  map[string]any `json:"params,omitempty"`
}

// TextProperties styles a text clip. Nil on non-text clips.
type TextProperties struct {
	Content         string `json:"content"`
	FontFamily      string `json:"font_family"`
	FontSize        int    `json:"font_size"`
	FontWeight      int    `json:"font_weight"`
	Color           string `json:"color"`
	BackgroundColor string `json:"background_color"`
	Align           string `json:"align"`
	VerticalAlign   string `json:"vertical_align"`
}

type ClipProperties struct {
	Volume    float64         `json:"volume"`
	Opacity   float64         `json:"opacity"`
	Speed     float64         `json:"speed"`
	FadeIn    float64         `json:"fade_in"`
	FadeOut   float64         `json:"fade_out"`
	Filters   []Filter        `json:"filters"`
	Transform Transform       `json:"transform"`
	Text      *TextProperties `json:"text,omitempty"`
}

func DefaultClipProperties() ClipProperties {
	return ClipProperties{
		Volume:    1,
		Opacity:   1,
		Speed:     1,
		Filters:   []Filter{},
		Transform: DefaultTransform(),
	}
}

type Clip struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	SourcePath  string         `json:"source_path"`
	StartTime   float64        `json:"start_time"`
	EndTime     float64        `json:"end_time"`
	SourceStart float64        `json:"source_start"`
	SourceEnd   float64        `json:"source_end"`
	Properties  ClipProperties `json:"properties"`
}

// Duration is the clip's timeline extent in seconds.
func (c Clip) Duration() float64 {
	return c.EndTime - c.StartTime
}

type Track struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Type   TrackType `json:"type"`
	Height int       `json:"height"`
	Muted  bool      `json:"muted"`
	Locked bool      `json:"locked"`
	Clips  []Clip    `json:"clips"`
}

type ProjectSettings struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	SampleRate int     `json:"sample_rate"`
}

type Project struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Tracks     []Track         `json:"tracks"`
	Duration   float64         `json:"duration"`
	Settings   ProjectSettings `json:"settings"`
	CreatedAt  time.Time       `json:"created_at"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// Clone returns a deep copy. History snapshots and undo/redo restores must
// never alias the live project's track, clip or property data.
func (p Project) Clone() Project {
	out := p
	out.Tracks = make([]Track, len(p.Tracks))
	for i, tr := range p.Tracks {
		cp := tr
		cp.Clips = make([]Clip, len(tr.Clips))
		for j, cl := range tr.Clips {
			cl.Properties = cl.Properties.clone()
			cp.Clips[j] = cl
		}
		out.Tracks[i] = cp
	}
	return out
}

func (cp ClipProperties) clone() ClipProperties {
	out := cp
	out.Filters = make([]Filter, len(cp.Filters))
	for i, f := range cp.Filters {
		if f.Params != nil {
			params := make(map[string]any, len(f.Params))
			for k, v := range f.Params {
				params[k] = v
			}
			f.Params = params
		}
		out.Filters[i] = f
	}
	if cp.Text != nil {
		text := *cp.Text
		out.Text = &text
	}
	return out
}

// RecomputeDuration rescans every clip and sets Duration to the maximum
// end time, zero when the timeline is empty.
func (p *Project) RecomputeDuration() {
	maxEnd := 0.0
	for _, tr := range p.Tracks {
		for _, c := range tr.Clips {
			if c.EndTime > maxEnd {
				maxEnd = c.EndTime
			}
		}
	}
	p.Duration = maxEnd
}

type ExportSettings struct {
	OutputPath   string  `json:"output_path"`
	Format       string  `json:"format"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FrameRate    float64 `json:"frame_rate"`
	VideoBitrate string  `json:"video_bitrate,omitempty"`
	AudioBitrate string  `json:"audio_bitrate,omitempty"`
	Quality      string  `json:"quality,omitempty"`
	UseHardware  bool    `json:"use_hardware,omitempty"`
}

type ExportState string

const (
	ExportRunning   ExportState = "running"
	ExportCompleted ExportState = "completed"
	ExportFailed    ExportState = "failed"
	ExportCancelled ExportState = "cancelled"
)

type ExportProgress struct {
	ProjectID  string      `json:"project_id"`
	State      ExportState `json:"state"`
	Progress   float64     `json:"progress"`
	Frame      int64       `json:"frame,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
	Error      string      `json:"error,omitempty"`
}
