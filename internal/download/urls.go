package download

import (
	"net/url"
	"strings"
)

// ValidateURL accepts absolute http/https URLs with a host.
func ValidateURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExtractVideoID pulls the platform video id out of YouTube and Vimeo URLs.
// Unknown hosts return "".
func ExtractVideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtube.com" || host == "m.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		// Shorts and embeds carry the id as the last path element.
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 && (parts[0] == "shorts" || parts[0] == "embed") {
			return parts[1]
		}
	case host == "youtu.be":
		return strings.Trim(u.Path, "/")
	case host == "vimeo.com":
		id := strings.Trim(u.Path, "/")
		if id != "" && strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			return id
		}
	}
	return ""
}
