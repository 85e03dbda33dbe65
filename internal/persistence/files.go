package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
	"github.com/MimeLyc/article-narrator/pkg/file"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// VideoDir is the folder under the root that holds project artifacts.
const VideoDir = "video"

// FileStore writes project artifacts below one root directory. Callers own
// the store and pass it to whatever needs to persist; there is no package
// level default.
type FileStore struct {
	dir string
}

func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	dir := filepath.Join(root, VideoDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create video folder: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the folder artifacts are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

func ScriptFileName(projectID, sectionID string) string {
	return fmt.Sprintf("script-%s-%s.txt", projectID, sectionID)
}

func AudioFileName(projectID, sectionID string) string {
	return fmt.Sprintf("audio-%s-%s.wav", projectID, sectionID)
}

func ProjectFileName(projectID string) string {
	return fmt.Sprintf("video-data-%s.json", projectID)
}

func SubtitleFileName(projectID string) string {
	return fmt.Sprintf("subtitles-%s.srt", projectID)
}

func ArticleFileName(projectID string) string {
	return fmt.Sprintf("article-%s.html", projectID)
}

// path resolves a bare file name inside the store, rejecting anything that
// would escape it.
func (s *FileStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) write(name string, data []byte) (string, error) {
	p, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := file.WriteAtomic(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

func (s *FileStore) read(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// SaveScript writes a section script with a "# heading" header line and
// returns the file name.
func (s *FileStore) SaveScript(projectID, sectionID, heading, script string) (string, error) {
	content := fmt.Sprintf("# %s\n\n%s", heading, script)
	return s.write(ScriptFileName(projectID, sectionID), []byte(content))
}

// LoadScript reads a script file written by SaveScript. Files without a
// header are returned whole with an empty heading.
func (s *FileStore) LoadScript(fileName string) (heading, script string, err error) {
	data, err := s.read(fileName)
	if err != nil {
		return "", "", err
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "# ") {
		heading = strings.TrimSpace(lines[0][2:])
		if len(lines) > 2 {
			script = strings.TrimSpace(strings.Join(lines[2:], "\n"))
		}
		return heading, script, nil
	}
	return "", content, nil
}

// LoadScripts returns the saved scripts of a project keyed by section id.
// Sections without a script file are left out.
func (s *FileStore) LoadScripts(projectID string, sections []document.Section) (map[string]string, error) {
	scripts := make(map[string]string, len(sections))
	for _, sec := range sections {
		_, script, err := s.LoadScript(ScriptFileName(projectID, sec.ID))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		scripts[sec.ID] = script
	}
	return scripts, nil
}

func (s *FileStore) SaveAudio(projectID, sectionID string, data []byte) (string, error) {
	return s.write(AudioFileName(projectID, sectionID), data)
}

func (s *FileStore) LoadAudio(fileName string) ([]byte, error) {
	return s.read(fileName)
}

func (s *FileStore) SaveArticle(projectID string, html []byte) (string, error) {
	return s.write(ArticleFileName(projectID), html)
}

// SaveSubtitles writes entries as an SRT file.
func (s *FileStore) SaveSubtitles(projectID string, entries []subtitle.Entry) (string, error) {
	var buf bytes.Buffer
	if err := subtitle.WriteSRT(&buf, entries); err != nil {
		return "", err
	}
	return s.write(SubtitleFileName(projectID), buf.Bytes())
}

func (s *FileStore) SaveProject(projectID string, doc *ProjectDocument) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("project document is nil")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode project: %w", err)
	}
	return s.write(ProjectFileName(projectID), data)
}

func (s *FileStore) LoadProject(projectID string) (*ProjectDocument, error) {
	data, err := s.read(ProjectFileName(projectID))
	if err != nil {
		return nil, err
	}
	var doc ProjectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", projectID, err)
	}
	return &doc, nil
}
