// Package platform knows where the host keeps its files and how to talk
// about local media paths with the UI.
package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"
)

// Paths lays out the application directory:
//
//	<root>/config.json
//	<root>/library.db
//	<root>/projects/
//	<root>/cache/
//	<root>/temp/
//	<root>/binaries/
//	<root>/download_archive.txt
type Paths struct {
	Root string
}

// DefaultRoot resolves the per-user application directory, honoring an
// explicit override.
func DefaultRoot(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "clipy"), nil
}

func NewPaths(root string) (Paths, error) {
	p := Paths{Root: root}
	for _, dir := range []string{root, p.ProjectsDir(), p.CacheDir(), p.TempDir(), p.BinariesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

func (p Paths) ConfigFile() string      { return filepath.Join(p.Root, "config.json") }
func (p Paths) LibraryDB() string       { return filepath.Join(p.Root, "library.db") }
func (p Paths) ProjectsDir() string     { return filepath.Join(p.Root, "projects") }
func (p Paths) CacheDir() string        { return filepath.Join(p.Root, "cache") }
func (p Paths) TempDir() string         { return filepath.Join(p.Root, "temp") }
func (p Paths) BinariesDir() string     { return filepath.Join(p.Root, "binaries") }
func (p Paths) DownloadArchive() string { return filepath.Join(p.Root, "download_archive.txt") }

// FindBinary locates an external tool. An explicit override from settings
// wins, then the managed binaries directory, then PATH.
func (p Paths) FindBinary(name, override string) (string, bool) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, true
		}
	}
	managed := filepath.Join(p.BinariesDir(), exeName(name))
	if _, err := os.Stat(managed); err == nil {
		return managed, true
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}
	return "", false
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// DefaultDownloadsDir is <user home>/Downloads, falling back to the app
// root when the home directory cannot be resolved.
func (p Paths) DefaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p.Root
	}
	return filepath.Join(home, "Downloads")
}

// CacheStats sums the cache directory.
func (p Paths) CacheStats() (files int, bytes int64, err error) {
	err = filepath.WalkDir(p.CacheDir(), func(_ string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		files++
		bytes += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	return files, bytes, err
}

// ClearCache empties the cache directory, keeping the directory itself.
func (p Paths) ClearCache() error {
	entries, err := os.ReadDir(p.CacheDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(p.CacheDir(), e.Name())); err != nil {
			return err
		}
	}
	return nil
}

const maxFilenameLen = 200

// SanitizeFilename replaces characters that are invalid on any supported
// filesystem and trims to a safe length.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			if r < 0x20 {
				b.WriteRune('_')
			} else {
				b.WriteRune(r)
			}
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxFilenameLen {
		// Cut on a rune boundary so multibyte titles stay valid UTF-8.
		cut := maxFilenameLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}
