package download

import (
	"strings"

	"clipy/host/internal/engine"
	"clipy/host/internal/model"
)

// playable reports whether a format can be fed straight to the preview
// player: a direct http(s) URL with a browser-decodable container.
func playable(f model.VideoFormat) bool {
	if f.URL == "" {
		return false
	}
	if f.Protocol != "" && f.Protocol != "https" && f.Protocol != "http" {
		return false
	}
	ext := strings.ToLower(f.Ext)
	return ext == "mp4" || ext == "webm" || ext == "m4a"
}

func hasVideo(f model.VideoFormat) bool {
	return f.VCodec != "" && f.VCodec != "none"
}

func hasAudio(f model.VideoFormat) bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// SelectStreams picks the best directly playable video stream and, when that
// stream carries no audio, the best audio-only companion for dual-stream
// playback. No playable stream at all reads as an access problem: the
// formats list of DRM or login-gated videos hides the direct URLs.
func SelectStreams(info model.VideoInfo) (model.StreamingInfo, *engine.Error) {
	var bestVideo *model.VideoFormat
	for i := range info.Formats {
		f := &info.Formats[i]
		if !playable(*f) || !hasVideo(*f) {
			continue
		}
		if bestVideo == nil || betterVideo(*f, *bestVideo) {
			bestVideo = f
		}
	}
	if bestVideo == nil {
		return model.StreamingInfo{}, &engine.Error{
			Kind:    engine.KindAuthRequired,
			Message: "no directly playable stream; the video may be DRM protected or require sign-in",
		}
	}

	out := model.StreamingInfo{
		VideoURL: bestVideo.URL,
		Title:    info.Title,
		Duration: info.Duration,
		Width:    bestVideo.Width,
		Height:   bestVideo.Height,
	}
	if !hasAudio(*bestVideo) {
		var bestAudio *model.VideoFormat
		for i := range info.Formats {
			f := &info.Formats[i]
			if !playable(*f) || hasVideo(*f) || !hasAudio(*f) {
				continue
			}
			if bestAudio == nil || f.ABR > bestAudio.ABR {
				bestAudio = f
			}
		}
		if bestAudio != nil {
			out.AudioURL = bestAudio.URL
			out.DualStream = true
		}
	}
	return out, nil
}

// betterVideo prefers higher resolution; at equal height a muxed stream
// beats video-only so single-stream playback wins when it costs nothing.
func betterVideo(a, b model.VideoFormat) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	if hasAudio(a) != hasAudio(b) {
		return hasAudio(a)
	}
	return a.TBR > b.TBR
}
