package download

import "testing"

func TestValidateURL(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc123def45", true},
		{"http://example.com/video", true},
		{"  https://youtu.be/abc123def45  ", true},
		{"ftp://example.com/file", false},
		{"youtube.com/watch?v=abc", false},
		{"https://", false},
		{"", false},
		{"not a url at all", false},
	}
	for _, c := range cases {
		if got := ValidateURL(c.raw); got != c.want {
			t.Errorf("ValidateURL(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ"},
		{"https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://vimeo.com/123456789", "123456789"},
		{"https://vimeo.com/channels/staff", ""},
		{"https://example.com/watch?v=dQw4w9WgXcQ", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractVideoID(c.raw); got != c.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
