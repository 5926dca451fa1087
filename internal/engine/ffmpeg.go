package engine

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"clipy/host/internal/model"
)

// FFmpeg shells out to ffmpeg and the ffprobe binary living next to it.
type FFmpeg struct {
	binPath  string
	registry *ProcessRegistry
	log      *slog.Logger
}

func NewFFmpeg(binPath string, registry *ProcessRegistry, logger *slog.Logger) *FFmpeg {
	return &FFmpeg{binPath: binPath, registry: registry, log: logger}
}

func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, f.binPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func (f *FFmpeg) probePath() string {
	dir := filepath.Dir(f.binPath)
	name := "ffprobe"
	if strings.HasSuffix(f.binPath, ".exe") {
		name = "ffprobe.exe"
	}
	if dir == "." {
		return name
	}
	return filepath.Join(dir, name)
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (model.MediaMetadata, *Error) {
	cmd := exec.CommandContext(ctx, f.probePath(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return model.MediaMetadata{}, ffmpegError(ctx, "ffprobe", err)
	}
	meta, perr := parseProbeOutput(out)
	if perr != nil {
		return model.MediaMetadata{}, newError(KindEngine, perr.Error(), false)
	}
	return meta, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

func parseProbeOutput(raw []byte) (model.MediaMetadata, error) {
	var probe probeOutput
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.MediaMetadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var meta model.MediaMetadata
	meta.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	meta.Bitrate, _ = strconv.ParseInt(probe.Format.BitRate, 10, 64)
	for _, st := range probe.Streams {
		switch st.CodecType {
		case "video":
			if meta.Codec != "" {
				continue
			}
			meta.Width = st.Width
			meta.Height = st.Height
			meta.Codec = st.CodecName
			if num, den, ok := strings.Cut(st.RFrameRate, "/"); ok {
				n, _ := strconv.ParseFloat(num, 64)
				d, _ := strconv.ParseFloat(den, 64)
				if d > 0 {
					meta.FPS = n / d
				}
			}
		case "audio":
			meta.HasAudio = true
		}
	}
	return meta, nil
}

func (f *FFmpeg) Thumbnail(ctx context.Context, input, output string, atSec float64, width int) *Error {
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(atSec, 'f', -1, 64),
		"-i", input,
		"-vframes", "1",
	}
	if width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", width), "-q:v", "3")
	} else {
		args = append(args, "-q:v", "2")
	}
	args = append(args, output)
	if _, err := exec.CommandContext(ctx, f.binPath, args...).Output(); err != nil {
		return ffmpegError(ctx, "thumbnail", err)
	}
	return nil
}

// TimelineThumbnails samples count frames at even intervals across the
// file's duration.
func (f *FFmpeg) TimelineThumbnails(ctx context.Context, input, outDir string, count, width int) ([]string, *Error) {
	if count < 1 {
		count = 1
	}
	meta, err := f.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	interval := meta.Duration / float64(count)
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("thumb_%04d.jpg", i))
		if err := f.Thumbnail(ctx, input, path, float64(i)*interval, width); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

// Waveform decodes the audio track into mono float32 samples resampled to
// the requested count and normalizes their magnitudes to 0..1. Files with
// no audio yield an empty slice, not an error; an unreadable file is an
// error like anywhere else.
func (f *FFmpeg) Waveform(ctx context.Context, input string, samples int) ([]float64, *Error) {
	meta, perr := f.Probe(ctx, input)
	if perr != nil {
		return nil, perr
	}
	if !meta.HasAudio {
		return []float64{}, nil
	}
	cmd := exec.CommandContext(ctx, f.binPath,
		"-i", input,
		"-ac", "1",
		"-filter:a", fmt.Sprintf("aresample=%d", samples),
		"-map", "0:a",
		"-c:a", "pcm_f32le",
		"-f", "f32le",
		"-",
	)
	raw, err := cmd.Output()
	if err != nil {
		return nil, ffmpegError(ctx, "waveform", err)
	}
	return normalizeWaveform(raw), nil
}

func normalizeWaveform(raw []byte) []float64 {
	n := len(raw) / 4
	out := make([]float64, 0, n)
	maxAbs := 0.0
	for i := 0; i+4 <= len(raw); i += 4 {
		v := math.Abs(float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i : i+4]))))
		if v > maxAbs {
			maxAbs = v
		}
		out = append(out, v)
	}
	if maxAbs > 0 {
		for i := range out {
			out[i] /= maxAbs
		}
	}
	return out
}

// Export renders the project timeline. One clip per input; each clip is
// trimmed from its source range and re-timed to the start of its segment.
// Progress is derived from ffmpeg's frame= counter against the expected
// total frame count.
func (f *FFmpeg) Export(ctx context.Context, project model.Project, settings model.ExportSettings, progress chan<- model.ExportProgress) *Error {
	args := []string{"-y"}
	for _, tr := range project.Tracks {
		for _, c := range tr.Clips {
			args = append(args, "-i", c.SourcePath)
		}
	}
	if fc := buildFilterComplex(project); fc != "" {
		args = append(args, "-filter_complex", fc)
	}
	args = append(args, buildOutputArgs(settings)...)
	args = append(args, settings.OutputPath)
	f.log.Debug("ffmpeg export", "project_id", project.ID, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, f.binPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return newError(KindEngine, "capture stderr: "+err.Error(), false)
	}
	if err := cmd.Start(); err != nil {
		return newError(KindEngine, "spawn ffmpeg: "+err.Error(), false)
	}
	f.registry.Register(project.ID, cmd)
	defer f.registry.Unregister(project.ID)

	totalFrames := int64(project.Duration * settings.FrameRate)
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		frame, ok := parseExportFrame(sc.Text())
		if !ok {
			continue
		}
		pct := 0.0
		if totalFrames > 0 {
			pct = math.Min(float64(frame)/float64(totalFrames)*100, 100)
		}
		select {
		case progress <- model.ExportProgress{
			ProjectID: project.ID,
			State:     model.ExportRunning,
			Progress:  pct,
			Frame:     frame,
		}:
		default:
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return newError(KindCancelled, "export cancelled", false)
		}
		return newError(KindEngine, "ffmpeg export failed: "+err.Error(), false)
	}
	return nil
}

func buildFilterComplex(project model.Project) string {
	var filters []string
	inputIdx := 0
	for ti, tr := range project.Tracks {
		for ci, c := range tr.Clips {
			filters = append(filters, fmt.Sprintf(
				"[%d:v]trim=start=%g:end=%g,setpts=PTS-STARTPTS[t%dc%d]",
				inputIdx, c.SourceStart, c.SourceEnd, ti, ci,
			))
			inputIdx++
		}
	}
	return strings.Join(filters, ";")
}

func buildOutputArgs(settings model.ExportSettings) []string {
	codec := "libx264"
	if settings.UseHardware {
		codec = "h264_nvenc"
	}
	args := []string{"-c:v", codec}
	if settings.VideoBitrate != "" {
		args = append(args, "-b:v", settings.VideoBitrate+"k")
	}
	args = append(args, "-c:a", "aac")
	if settings.AudioBitrate != "" {
		args = append(args, "-b:a", settings.AudioBitrate+"k")
	}
	if settings.FrameRate > 0 {
		args = append(args, "-r", strconv.FormatFloat(settings.FrameRate, 'f', -1, 64))
	}
	preset := "medium"
	switch settings.Quality {
	case "low":
		preset = "veryfast"
	case "high":
		preset = "slow"
	}
	args = append(args, "-preset", preset)
	return args
}

// parseExportFrame reads the frame counter from ffmpeg's "frame=  123 fps="
// stderr lines.
func parseExportFrame(line string) (int64, bool) {
	if !strings.HasPrefix(line, "frame=") {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	token := strings.TrimPrefix(fields[0], "frame=")
	if token == "" && len(fields) > 1 {
		token = fields[1]
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (f *FFmpeg) Transcode(ctx context.Context, input, output string) *Error {
	args := []string{
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		output,
	}
	if _, err := exec.CommandContext(ctx, f.binPath, args...).Output(); err != nil {
		return ffmpegError(ctx, "transcode", err)
	}
	return nil
}

func ffmpegError(ctx context.Context, op string, err error) *Error {
	if ctx.Err() != nil {
		return newError(KindCancelled, "cancelled", false)
	}
	if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
		return newError(KindEngine, op+": "+strings.TrimSpace(string(exitErr.Stderr)), false)
	}
	return newError(KindEngine, op+": "+err.Error(), false)
}
