package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"clipy/host/internal/model"
)

// mediaExtensions are the output extensions yt-dlp can leave behind. Used
// both for filepath capture from output lines and the directory-scan
// fallback.
var mediaExtensions = []string{".mp4", ".mkv", ".webm", ".m4a", ".mp3", ".opus", ".flac", ".wav", ".avi", ".mov"}

// Ytdlp shells out to the yt-dlp binary.
type Ytdlp struct {
	binPath     string
	archivePath string
	registry    *ProcessRegistry
	log         *slog.Logger
}

func NewYtdlp(binPath, archivePath string, registry *ProcessRegistry, logger *slog.Logger) *Ytdlp {
	return &Ytdlp{
		binPath:     binPath,
		archivePath: archivePath,
		registry:    registry,
		log:         logger,
	}
}

func (y *Ytdlp) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, y.binPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp --version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

type rawVideoInfo struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Thumbnail   string              `json:"thumbnail"`
	Duration    float64             `json:"duration"`
	Channel     string              `json:"channel"`
	Uploader    string              `json:"uploader"`
	UploadDate  string              `json:"upload_date"`
	ViewCount   int64               `json:"view_count"`
	WebpageURL  string              `json:"webpage_url"`
	Extractor   string              `json:"extractor"`
	Formats     []model.VideoFormat `json:"formats"`
}

func (y *Ytdlp) FetchInfo(ctx context.Context, url string) (model.VideoInfo, *Error) {
	cmd := exec.CommandContext(ctx, y.binPath, "--dump-json", "--no-playlist", "--no-warnings", url)
	out, err := cmd.Output()
	if err != nil {
		return model.VideoInfo{}, y.classifyExecError(ctx, err)
	}
	var raw rawVideoInfo
	if err := json.Unmarshal(out, &raw); err != nil {
		return model.VideoInfo{}, newError(KindEngine, "unreadable yt-dlp metadata: "+err.Error(), false)
	}
	return model.VideoInfo(raw), nil
}

// Download runs yt-dlp with progress reporting and returns the final file
// path. Snapshots are sent to progress best-effort; a full channel drops
// the snapshot rather than stalling the output reader.
func (y *Ytdlp) Download(ctx context.Context, id, url string, opts model.DownloadOption, progress chan<- model.DownloadProgress) (string, *Error) {
	args := buildDownloadArgs(opts, y.archivePath)
	args = append(args, url)
	y.log.Debug("yt-dlp spawn", "id", id, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, y.binPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", newError(KindEngine, "capture stdout: "+err.Error(), false)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", newError(KindEngine, "capture stderr: "+err.Error(), false)
	}
	if err := cmd.Start(); err != nil {
		return "", newError(KindEngine, "spawn yt-dlp: "+err.Error(), false)
	}
	y.registry.Register(id, cmd)
	defer y.registry.Unregister(id)

	lines := make(chan string, 64)
	done := make(chan struct{})
	go scanLines(stdout, lines, done)
	go scanLines(stderr, lines, done)
	go func() {
		<-done
		<-done
		close(lines)
	}()

	var capturedPath string
	var stderrTail []string
	for line := range lines {
		if p := captureFilePath(line); p != "" {
			capturedPath = p
		}
		if snap, ok := parseProgressLine(line); ok {
			snap.ID = id
			select {
			case progress <- snap:
			default:
			}
		}
		if strings.HasPrefix(line, "ERROR") || strings.Contains(line, "ERROR:") {
			stderrTail = append(stderrTail, line)
			if len(stderrTail) > 10 {
				stderrTail = stderrTail[1:]
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", newError(KindCancelled, "download cancelled", false)
		}
		return "", classifyOutput(strings.Join(stderrTail, "\n"))
	}

	path, ferr := findDownloadedFile(opts.OutputDir, capturedPath)
	if ferr != nil {
		return "", newError(KindIO, ferr.Error(), false)
	}
	return path, nil
}

func scanLines(r io.Reader, lines chan<- string, done chan<- struct{}) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines <- sc.Text()
	}
	done <- struct{}{}
}

// buildDownloadArgs translates resolved options into the yt-dlp argument
// list, minus the trailing URL.
func buildDownloadArgs(opts model.DownloadOption, archivePath string) []string {
	template := opts.OutputTemplate
	if template == "" {
		template = "%(title)s.%(ext)s"
	}
	args := []string{
		"--newline",
		"--progress",
		"--print", "after_move:filepath",
		"-f", buildFormatSelector(opts),
		"-o", filepath.Join(opts.OutputDir, template),
	}

	if opts.NoPlaylist {
		args = append(args, "--no-playlist")
	}
	if opts.PlaylistItems != "" {
		args = append(args, "--playlist-items", opts.PlaylistItems)
	}

	if opts.AudioOnly {
		args = append(args, "-x")
		if opts.AudioFormat != "" && opts.AudioFormat != "best" {
			args = append(args, "--audio-format", opts.AudioFormat)
		}
		if opts.AudioBitrate != "" {
			args = append(args, "--audio-quality", opts.AudioBitrate+"K")
		}
	} else if opts.Format != "" && opts.Format != "best" {
		args = append(args, "--merge-output-format", opts.Format)
	}

	if opts.Codec != "" && opts.Codec != "auto" {
		args = append(args, "--format-sort", "vcodec:"+opts.Codec)
	}

	if opts.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if opts.EmbedMetadata {
		args = append(args, "--embed-metadata")
	}
	if opts.EmbedChapters {
		args = append(args, "--embed-chapters")
	}
	if opts.SplitChapters {
		args = append(args, "--split-chapters")
	}

	if opts.DownloadSubtitles {
		args = append(args, "--write-subs")
		if opts.AutoSubtitles {
			args = append(args, "--write-auto-subs")
		}
		if len(opts.SubtitleLanguages) > 0 {
			args = append(args, "--sub-langs", strings.Join(opts.SubtitleLanguages, ","))
		}
		if opts.SubtitleFormat != "" {
			args = append(args, "--sub-format", opts.SubtitleFormat)
		}
		if opts.EmbedSubtitles {
			args = append(args, "--embed-subs")
		}
	}

	if len(opts.SponsorblockRemove) > 0 {
		args = append(args, "--sponsorblock-remove", strings.Join(opts.SponsorblockRemove, ","))
	}

	if opts.WriteDescription {
		args = append(args, "--write-description")
	}
	if opts.WriteComments {
		args = append(args, "--write-comments")
	}
	if opts.WriteThumbnail {
		args = append(args, "--write-thumbnail")
	}
	if opts.KeepFragments {
		args = append(args, "-k")
	}
	if opts.MaxFileSize != "" {
		args = append(args, "--max-filesize", opts.MaxFileSize)
	}
	if opts.RateLimit != "" {
		args = append(args, "-r", opts.RateLimit)
	}
	if opts.RemuxVideo != "" {
		args = append(args, "--remux-video", opts.RemuxVideo)
	}
	if opts.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", opts.CookiesFromBrowser)
	}
	if opts.ConcurrentFragments > 1 {
		args = append(args, "-N", strconv.Itoa(opts.ConcurrentFragments))
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}
	if opts.RestrictFilenames {
		args = append(args, "--restrict-filenames")
	}
	if opts.DownloadArchive && archivePath != "" {
		args = append(args, "--download-archive", archivePath)
	}
	if opts.GeoBypass {
		args = append(args, "--geo-bypass")
	}
	return args
}

// buildFormatSelector mirrors the quality/codec knobs into yt-dlp's -f
// expression.
func buildFormatSelector(opts model.DownloadOption) string {
	if opts.AudioOnly {
		ext := opts.AudioFormat
		if ext == "" || ext == "best" {
			ext = "m4a"
		}
		return fmt.Sprintf("bestaudio[ext=%s]/bestaudio/best", ext)
	}

	var vcodec string
	switch opts.Codec {
	case "h264":
		vcodec = "[vcodec^=avc]"
	case "h265":
		vcodec = "[vcodec^=hev]"
	case "vp9":
		vcodec = "[vcodec^=vp9]"
	case "av1":
		vcodec = "[vcodec^=av01]"
	}

	height := ""
	switch opts.Quality {
	case "2160", "4k":
		height = "2160"
	case "1440", "2k":
		height = "1440"
	case "1080", "720", "480", "360", "240", "144":
		height = opts.Quality
	}
	if height == "" {
		return fmt.Sprintf("bestvideo%s+bestaudio/best", vcodec)
	}
	return fmt.Sprintf("bestvideo[height<=%s]%s+bestaudio/best[height<=%s]", height, vcodec, height)
}

// captureFilePath recognizes the lines yt-dlp prints the output path on:
// the bare --print after_move:filepath line, "[download] Destination:",
// "[Merger] Merging formats into", and "[MoveFiles] Moving file ... to".
func captureFilePath(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed != "" && !strings.HasPrefix(trimmed, "[") {
		if hasMediaExtension(trimmed) && strings.ContainsAny(trimmed, `/\`) {
			return trimmed
		}
	}
	switch {
	case strings.Contains(line, "[download] Destination:"):
		_, rest, _ := strings.Cut(line, "Destination:")
		return strings.TrimSpace(rest)
	case strings.Contains(line, "[Merger] Merging formats into"):
		start := strings.Index(line, `"`)
		end := strings.LastIndex(line, `"`)
		if start >= 0 && end > start {
			return line[start+1 : end]
		}
	case strings.Contains(line, "[MoveFiles] Moving file") && strings.Contains(line, " to "):
		idx := strings.LastIndex(line, " to ")
		return strings.Trim(strings.TrimSpace(line[idx+4:]), `"`)
	}
	return ""
}

func hasMediaExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range mediaExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// parseProgressLine parses yt-dlp's progress format:
// [download]  50.0% of 100.00MiB at 5.00MiB/s ETA 00:10
func parseProgressLine(line string) (model.DownloadProgress, bool) {
	if !strings.Contains(line, "[download]") || !strings.Contains(line, "%") {
		return model.DownloadProgress{}, false
	}

	var snap model.DownloadProgress
	pctIdx := strings.Index(line, "%")
	head := line[:pctIdx]
	start := strings.LastIndexFunc(head, func(r rune) bool { return r == ' ' || r == '\t' })
	pct, err := strconv.ParseFloat(strings.TrimSpace(head[start+1:]), 64)
	if err != nil {
		return model.DownloadProgress{}, false
	}
	snap.Progress = pct

	if _, rest, ok := strings.Cut(line, " of "); ok {
		token, _, _ := strings.Cut(rest, " ")
		snap.Total = parseSize(token)
		snap.Downloaded = int64(pct / 100.0 * float64(snap.Total))
	}
	if _, rest, ok := strings.Cut(line, " at "); ok {
		token, _, _ := strings.Cut(rest, " ")
		if parseSpeed(token) > 0 {
			snap.Speed = token
		}
	}
	if _, rest, ok := strings.Cut(line, "ETA "); ok {
		token := strings.TrimSpace(rest)
		if t, _, found := strings.Cut(token, " "); found {
			token = t
		}
		if parseETA(token) > 0 {
			snap.ETA = token
		}
	}

	if snap.Progress <= 0 && !strings.Contains(line, "100%") {
		return model.DownloadProgress{}, false
	}
	return snap, true
}

// parseSize converts "123.45MiB" style tokens to bytes.
func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	// yt-dlp prefixes estimated sizes with a tilde.
	s = strings.TrimPrefix(s, "~")
	split := len(s)
	for i, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			split = i
			break
		}
	}
	num, err := strconv.ParseFloat(s[:split], 64)
	if err != nil {
		return 0
	}
	mult := 1.0
	switch strings.ToUpper(strings.TrimSuffix(s[split:], "/s")) {
	case "KIB", "KB":
		mult = 1024
	case "MIB", "MB":
		mult = 1024 * 1024
	case "GIB", "GB":
		mult = 1024 * 1024 * 1024
	}
	return int64(num * mult)
}

// parseSpeed converts "1.23MiB/s" to bytes per second.
func parseSpeed(s string) int64 {
	return parseSize(strings.TrimSuffix(strings.TrimSpace(s), "/s"))
}

// parseETA converts "01:23", "1:02:03" or "Unknown" to seconds.
func parseETA(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "Unknown" {
		return 0
	}
	parts := strings.Split(s, ":")
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	return total
}

// findDownloadedFile prefers the path captured from yt-dlp's own output and
// falls back to the newest media file in the output directory.
func findDownloadedFile(outputDir, capturedPath string) (string, error) {
	if capturedPath != "" {
		if _, err := os.Stat(capturedPath); err == nil {
			return capturedPath, nil
		}
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("scan output dir %s: %w", outputDir, err)
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !hasMediaExtension(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(outputDir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no downloaded file found in %s", outputDir)
	}
	return newest, nil
}

// AvailableQualities lists the distinct video heights of info's formats,
// highest first, as "1080p" style labels.
func AvailableQualities(info model.VideoInfo) []string {
	seen := map[int]bool{}
	var heights []int
	for _, f := range info.Formats {
		if f.VCodec == "" || f.VCodec == "none" || f.Height <= 0 {
			continue
		}
		if !seen[f.Height] {
			seen[f.Height] = true
			heights = append(heights, f.Height)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	out := make([]string, len(heights))
	for i, h := range heights {
		out[i] = strconv.Itoa(h) + "p"
	}
	return out
}

func (y *Ytdlp) classifyExecError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return newError(KindCancelled, "cancelled", false)
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return classifyOutput(string(exitErr.Stderr))
	}
	return newError(KindEngine, err.Error(), false)
}

// classifyOutput maps yt-dlp's error text onto the error taxonomy.
func classifyOutput(out string) *Error {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "is not a valid url"):
		return newError(KindInvalidURL, firstErrorLine(out), false)
	case strings.Contains(lower, "unsupported url"):
		return newError(KindUnsupportedSite, firstErrorLine(out), false)
	case strings.Contains(lower, "sign in to confirm"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "login required"),
		strings.Contains(lower, "drm"):
		return newError(KindAuthRequired, firstErrorLine(out), false)
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "404"):
		return newError(KindNotFound, firstErrorLine(out), false)
	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "getaddrinfo"),
		strings.Contains(lower, "temporary failure"):
		return newError(KindNetwork, firstErrorLine(out), true)
	case strings.Contains(lower, "no space left"),
		strings.Contains(lower, "permission denied"):
		return newError(KindIO, firstErrorLine(out), false)
	}
	msg := firstErrorLine(out)
	if msg == "" {
		msg = "yt-dlp exited with an error"
	}
	return newError(KindEngine, msg, true)
}

func firstErrorLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "ERROR") {
			return line
		}
	}
	return strings.TrimSpace(strings.Split(out, "\n")[0])
}
