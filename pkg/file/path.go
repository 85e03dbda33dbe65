package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path for ext ("srt" or ".srt").
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir := filepath.Dir(path)
	return filepath.Join(dir, Stem(path)+ext)
}

// Stem returns the base name of path without its extension. Dotfiles keep
// their leading dot.
func Stem(path string) string {
	filename := filepath.Base(path)
	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filename
	}
	return filename[:lastDot]
}
