package engine

import (
	"strings"
	"testing"

	"clipy/host/internal/model"
)

const sampleProbeOutput = `{
  "streams": [
    {
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1920,
      "height": 1080,
      "r_frame_rate": "30000/1001"
    },
    {
      "codec_type": "audio",
      "codec_name": "aac"
    }
  ],
  "format": {
    "duration": "634.533000",
    "bit_rate": "4207546"
  }
}`

func TestParseProbeOutput(t *testing.T) {
	meta, err := parseProbeOutput([]byte(sampleProbeOutput))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Duration != 634.533 {
		t.Errorf("duration = %v, want 634.533", meta.Duration)
	}
	if meta.Width != 1920 || meta.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", meta.Width, meta.Height)
	}
	if meta.Codec != "h264" {
		t.Errorf("codec = %q, want h264", meta.Codec)
	}
	if !meta.HasAudio {
		t.Errorf("HasAudio = false, want true")
	}
	if meta.Bitrate != 4207546 {
		t.Errorf("bitrate = %d, want 4207546", meta.Bitrate)
	}
	got := meta.FPS
	if got < 29.96 || got > 29.98 {
		t.Errorf("fps = %v, want ~29.97", got)
	}
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	meta, err := parseProbeOutput([]byte(`{
      "streams": [{"codec_type": "audio", "codec_name": "mp3"}],
      "format": {"duration": "180.5"}
    }`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Width != 0 || meta.Codec != "" {
		t.Errorf("unexpected video fields: %+v", meta)
	}
	if !meta.HasAudio || meta.Duration != 180.5 {
		t.Errorf("audio metadata wrong: %+v", meta)
	}
}

func TestParseProbeOutputVideoOnly(t *testing.T) {
	meta, err := parseProbeOutput([]byte(`{
      "streams": [{"codec_type": "video", "codec_name": "h264", "width": 640, "height": 360}],
      "format": {"duration": "12.0"}
    }`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Waveform keys off this flag to return an empty slice instead of
	// decoding a track that is not there.
	if meta.HasAudio {
		t.Errorf("HasAudio = true for a video-only file")
	}
}

func TestParseExportFrame(t *testing.T) {
	tests := []struct {
		line string
		want int64
		ok   bool
	}{
		{"frame=  123 fps= 30 q=28.0 size=    1024kB time=00:00:04.10", 123, true},
		{"frame=9000 fps=120 q=-1.0 Lsize=   20480kB", 9000, true},
		{"size=    1024kB time=00:00:04.10 bitrate=2046.3kbits/s", 0, false},
		{"[libx264 @ 0x55] frame I:12", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseExportFrame(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseExportFrame(%q) = (%d, %v), want (%d, %v)", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeWaveform(t *testing.T) {
	// Two little-endian float32 samples: -0.5 and 0.25.
	raw := []byte{0x00, 0x00, 0x00, 0xbf, 0x00, 0x00, 0x80, 0x3e}
	out := normalizeWaveform(raw)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0] != 1 {
		t.Errorf("out[0] = %v, want 1 (abs max normalized)", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("out[1] = %v, want 0.5", out[1])
	}
}

func TestNormalizeWaveformSilence(t *testing.T) {
	raw := make([]byte, 16)
	out := normalizeWaveform(raw)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, v)
		}
	}
}

func TestBuildOutputArgs(t *testing.T) {
	settings := model.ExportSettings{
		VideoBitrate: "8000",
		AudioBitrate: "192",
		FrameRate:    30,
		Quality:      "high",
	}
	got := strings.Join(buildOutputArgs(settings), " ")
	for _, want := range []string{"-c:v libx264", "-b:v 8000k", "-c:a aac", "-b:a 192k", "-r 30", "-preset slow"} {
		if !strings.Contains(got, want) {
			t.Errorf("output args missing %q in: %s", want, got)
		}
	}

	settings.UseHardware = true
	if !strings.Contains(strings.Join(buildOutputArgs(settings), " "), "-c:v h264_nvenc") {
		t.Errorf("hardware encode should pick h264_nvenc")
	}
}

func TestBuildFilterComplex(t *testing.T) {
	project := model.Project{
		Tracks: []model.Track{
			{Type: model.TrackVideo, Clips: []model.Clip{
				{SourceStart: 0, SourceEnd: 5},
				{SourceStart: 10, SourceEnd: 12.5},
			}},
		},
	}
	got := buildFilterComplex(project)
	want := "[0:v]trim=start=0:end=5,setpts=PTS-STARTPTS[t0c0];[1:v]trim=start=10:end=12.5,setpts=PTS-STARTPTS[t0c1]"
	if got != want {
		t.Errorf("filter complex = %q, want %q", got, want)
	}
}
