package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindRecentAfter walks dir and returns files modified after startTime.
// When exts are given only files with one of those extensions
// (case-insensitive, with or without the dot) are returned.
func FindRecentAfter(dir string, startTime time.Time, exts ...string) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !info.ModTime().After(startTime) {
			return nil
		}
		if len(exts) > 0 && !HasExt(path, exts...) {
			return nil
		}
		recentFiles = append(recentFiles, path)
		return nil
	})

	return recentFiles, err
}

// HasExt reports whether path ends in one of exts.
func HasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range exts {
		want = strings.ToLower(want)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}

// WriteAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a half-written file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
