package platform

import (
	"errors"
	"net/url"
	"strings"
)

// MediaURL converts a local file path into the clipy:// scheme the UI's
// media player resolves through the host. Windows drive paths keep a
// leading slash so the drive letter survives the round trip:
//
//	C:\Videos\a.mp4  ->  clipy:///C:/Videos/a.mp4
//	/home/u/a.mp4    ->  clipy:///home/u/a.mp4
func MediaURL(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	escaped := (&url.URL{Path: p}).EscapedPath()
	return "clipy://" + escaped
}

// ParseMediaURL inverts MediaURL back to a filesystem path.
func ParseMediaURL(raw string) (string, error) {
	if !strings.HasPrefix(raw, "clipy://") {
		return "", errors.New("not a clipy media url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	p := u.Path
	if p == "" && u.Opaque != "" {
		p = u.Opaque
	}
	// clipy:///C:/x parses with host "" and path "/C:/x"; strip the slash
	// in front of a drive letter.
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	if p == "" {
		return "", errors.New("empty media path")
	}
	return p, nil
}
