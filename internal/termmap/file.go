package termmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/article-narrator/pkg/file"
)

// Filename returns the dictionary file name for a language, keyed by its
// base code, e.g. term_map.ja.json for ja-JP.
func Filename(lang language.Tag) string {
	if lang == language.Und {
		lang = DefaultLanguage
	}
	base, _ := lang.Base()
	return "term_map." + base.String() + ".json"
}

func FilePath(dir string, lang language.Tag) string {
	return filepath.Join(dir, Filename(lang))
}

// FindInAncestors returns the dictionary files at or above startDir,
// nearest first.
func FindInAncestors(startDir string, lang language.Tag) []string {
	name := Filename(lang)
	var found []string
	for dir := filepath.Clean(startDir); ; {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			found = append(found, candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return found
		}
		dir = parent
	}
}

// LoadTree merges every dictionary above startDir so that a file closer
// to the article overrides one further up. It returns the files read.
func LoadTree(startDir string, lang language.Tag) (TermMap, []string, error) {
	paths := FindInAncestors(startDir, lang)
	slices.Reverse(paths)

	var merged TermMap
	for _, path := range paths {
		tm, err := Load(path)
		if err != nil {
			return nil, nil, err
		}
		merged = Merge(merged, tm)
	}
	return merged, paths, nil
}

// Load reads a dictionary file. Terms and readings are trimmed; entries
// left blank are dropped.
func Load(path string) (TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read term map: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse term map %s: %w", path, err)
	}

	tm := make(TermMap, len(raw))
	for term, reading := range raw {
		term, reading = strings.TrimSpace(term), strings.TrimSpace(reading)
		if term == "" || reading == "" {
			continue
		}
		tm[term] = reading
	}
	return tm, nil
}

func Save(path string, tm TermMap) error {
	data, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	return file.WriteAtomic(path, append(data, '\n'), 0o644)
}
