package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/persistence"
	"github.com/MimeLyc/article-narrator/internal/service"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
)

type updateLinesRequest struct {
	SectionID string   `json:"section_id"`
	Lines     []string `json:"lines"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.index == nil {
		writeError(w, http.StatusNotImplemented, "project index is not configured")
		return
	}
	projects, err := s.index.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []persistence.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectRoutes(w http.ResponseWriter, r *http.Request) {
	projectID, action, ok := parseIDRoute(r.URL.Path, "/api/projects/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		s.handleGetProject(w, r, projectID)
	case "subtitles":
		s.handleProjectSubtitles(w, r, projectID)
	case "lines":
		s.handleUpdateLines(w, r, projectID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	doc, err := s.projects.LoadProject(projectID)
	if err != nil {
		writeProjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleProjectSubtitles serves the stored timeline as subtitle JSON, or as
// SubRip with ?format=srt. ?rate= retimes the entries for another playback
// rate and ?at= returns only the entry shown at that second.
func (s *Server) handleProjectSubtitles(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	doc, err := s.projects.LoadProject(projectID)
	if err != nil {
		writeProjectError(w, err)
		return
	}
	entries := doc.Subtitles
	if entries == nil {
		entries = []subtitle.Entry{}
	}
	settings := doc.Settings()

	query := r.URL.Query()
	if raw := query.Get("rate"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate <= 0 {
			writeError(w, http.StatusBadRequest, "rate must be a positive number")
			return
		}
		entries = subtitle.AdjustForPlaybackRate(entries, settings.PlaybackRate, rate)
		settings.PlaybackRate = rate
	}
	if raw := query.Get("at"); raw != "" {
		at, err := strconv.ParseFloat(raw, 64)
		if err != nil || at < 0 {
			writeError(w, http.StatusBadRequest, "at must be a non-negative number of seconds")
			return
		}
		entry, ok := subtitle.EntryAt(entries, at)
		if !ok {
			writeError(w, http.StatusNotFound, "no subtitle at "+raw)
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}

	switch strings.ToLower(query.Get("format")) {
	case "", "json":
		writeJSON(w, http.StatusOK, subtitle.Data{
			Version:   subtitle.Version,
			CreatedAt: doc.UpdatedAt,
			Settings:  settings,
			Entries:   entries,
		})
	case "srt":
		w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = subtitle.WriteSRT(w, entries)
	default:
		writeError(w, http.StatusBadRequest, "format must be json or srt")
	}
}

func (s *Server) handleUpdateLines(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.SectionID) == "" {
		writeError(w, http.StatusBadRequest, "section_id is required")
		return
	}

	doc, err := s.projects.UpdateSubtitleLines(r.Context(), projectID, req.SectionID, req.Lines)
	if err != nil {
		writeProjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeProjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownSection):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
