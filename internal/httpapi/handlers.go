package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/jobs"
	"github.com/MimeLyc/article-narrator/internal/script"
	"github.com/MimeLyc/article-narrator/internal/service"
	"github.com/MimeLyc/article-narrator/internal/voicevox"
)

type enqueueJobRequest struct {
	Source      string `json:"source"`
	DedupeKey   string `json:"dedupe_key"`
	ProjectID   string `json:"project_id"`
	ArticleFile string `json:"article_file"`
	SpeakerID   *int   `json:"speaker_id"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Source == "" {
			req.Source = service.SourceManual
		}
		if strings.TrimSpace(req.ArticleFile) == "" {
			writeError(w, http.StatusBadRequest, "article_file is required")
			return
		}
		speaker := s.currentSpeaker()
		if req.SpeakerID != nil {
			if *req.SpeakerID < 0 {
				writeError(w, http.StatusBadRequest, "speaker_id must not be negative")
				return
			}
			speaker = *req.SpeakerID
		}
		if req.ProjectID == "" {
			req.ProjectID = service.ProjectIDForPath(req.ArticleFile)
		}
		if req.DedupeKey == "" {
			req.DedupeKey = service.DedupeKey(req.ProjectID, req.ArticleFile, speaker)
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: req.DedupeKey,
			Payload: jobs.JobPayload{
				ProjectID:   req.ProjectID,
				ArticleFile: req.ArticleFile,
				SpeakerID:   speaker,
			},
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) currentSpeaker() int {
	if s.settings != nil {
		if current, err := s.settings.GetRuntimeSettings(); err == nil {
			return current.SpeakerID
		}
	}
	return s.defaultSpeaker
}

type segmentRequest struct {
	HTML     string `json:"html"`
	MaxChars int    `json:"max_chars"`
}

type segmentResponse struct {
	Sections         []document.Section `json:"sections"`
	CharCount        int                `json:"char_count"`
	Batches          int                `json:"batches"`
	EstimatedSeconds int                `json:"estimated_seconds"`
}

// handleSegment previews how an article will be split and how many script
// requests it needs, without calling any collaborator.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		writeError(w, http.StatusBadRequest, "html is required")
		return
	}
	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = s.batchMaxChars
	}

	sections, err := document.Segment(req.HTML)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, previewSections(sections, maxChars))
}

func previewSections(sections []document.Section, maxChars int) segmentResponse {
	resp := segmentResponse{
		Sections:  sections,
		CharCount: document.CharCount(sections),
		Batches:   script.EstimateCalls(sections, maxChars),
	}
	if resp.Sections == nil {
		resp.Sections = []document.Section{}
	}
	for _, sec := range sections {
		resp.EstimatedSeconds += document.EstimateDuration(sec.TextContent)
	}
	return resp
}

type healthResponse struct {
	OK       bool   `json:"ok"`
	VoiceVox bool   `json:"voicevox"`
	Version  string `json:"voicevox_version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.engine == nil {
		writeJSON(w, http.StatusOK, healthResponse{OK: true})
		return
	}

	resp := healthResponse{VoiceVox: s.engine.CheckConnection(r.Context())}
	if resp.VoiceVox {
		if v, err := s.engine.Version(r.Context()); err == nil {
			resp.Version = v
		}
	}
	resp.OK = resp.VoiceVox
	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type speakersResponse struct {
	Speakers []voicevox.Speaker        `json:"speakers"`
	Popular  []voicevox.PopularSpeaker `json:"popular"`
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusNotImplemented, "speech engine is not configured")
		return
	}
	speakers, err := s.engine.Speakers(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, speakersResponse{
		Speakers: speakers,
		Popular:  voicevox.PopularSpeakers,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings.Redacted())
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved.Redacted())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
