package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/article-narrator/internal/jobs"
)

const streamInterval = time.Second

// handleJobStream pushes the job list as server-sent events. With ?id= it
// follows one job's detail instead and closes after a "done" event once the
// job reaches a terminal status.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	jobID := strings.TrimSpace(r.URL.Query().Get("id"))
	if jobID != "" {
		if _, found := s.queue.Get(jobID); !found {
			writeError(w, http.StatusNotFound, jobs.ErrJobNotFound.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// next writes one event and reports whether the stream should go on.
	next := func() bool {
		if jobID == "" {
			return writeEvent(w, flusher, "jobs", s.queue.List()) == nil
		}
		detail, err := s.buildJobDetail(r.Context(), jobID)
		if errors.Is(err, jobs.ErrJobNotFound) {
			_ = writeEvent(w, flusher, "done", map[string]string{"id": jobID, "error": err.Error()})
			return false
		}
		if err != nil {
			return false
		}
		if err := writeEvent(w, flusher, "job", detail); err != nil {
			return false
		}
		if detail.Job.Status.Terminal() {
			_ = writeEvent(w, flusher, "done", map[string]any{"id": jobID, "status": detail.Job.Status})
			return false
		}
		return true
	}

	if !next() {
		return
	}

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !next() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
