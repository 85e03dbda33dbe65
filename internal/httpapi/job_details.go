package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/jobs"
	"github.com/MimeLyc/article-narrator/internal/persistence"
	"github.com/MimeLyc/article-narrator/internal/script"
)

type jobDetailResponse struct {
	Job      *jobs.NarrationJob          `json:"job"`
	Progress jobProgressResponse         `json:"progress"`
	Project  *persistence.ProjectSummary `json:"project,omitempty"`
}

// jobProgressResponse counts script batches; audio synthesis is not
// checkpointed and so does not show here.
type jobProgressResponse struct {
	BatchesDone  int     `json:"batches_done"`
	BatchesTotal int     `json:"batches_total"`
	Percent      float64 `json:"percent"`
}

func (s *Server) handleJobDetailRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := parseJobRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		s.handleJobDetail(w, r, jobID)
	case "retry":
		s.handleRetryJob(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func parseJobRoute(path string) (jobID string, action string, ok bool) {
	return parseIDRoute(path, "/api/jobs/")
}

func parseIDRoute(path, prefix string) (id string, action string, ok bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return "", "", false
	}
	rawID, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(rawID) == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return rawID, "", true
	}
	return rawID, parts[1], true
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	detail, err := s.buildJobDetail(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, err := s.queue.Retry(jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, jobs.ErrNotRetryable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job": job,
	})
}

func (s *Server) buildJobDetail(ctx context.Context, jobID string) (jobDetailResponse, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return jobDetailResponse{}, jobs.ErrJobNotFound
	}

	done, err := s.countCheckpoints(ctx, job.ID)
	if err != nil {
		return jobDetailResponse{}, err
	}
	total := s.countBatches(job.Payload.ArticleFile)
	if job.Status == jobs.StatusSuccess || job.Status == jobs.StatusPartial {
		done = total
	}

	detail := jobDetailResponse{
		Job:      job,
		Progress: computeJobProgress(done, total),
	}
	if s.index != nil && job.Payload.ProjectID != "" {
		summary, found, err := s.index.GetProject(ctx, job.Payload.ProjectID)
		if err != nil {
			return jobDetailResponse{}, err
		}
		if found {
			detail.Project = &summary
		}
	}
	return detail, nil
}

func (s *Server) countCheckpoints(ctx context.Context, jobID string) (int, error) {
	if s.jobData == nil {
		return 0, nil
	}
	checkpoints, err := s.jobData.LoadScriptCheckpoints(ctx, jobID)
	if err != nil {
		return 0, err
	}
	return len(checkpoints), nil
}

// countBatches returns 0 when the article cannot be read; the job itself
// reports why.
func (s *Server) countBatches(articleFile string) int {
	if strings.TrimSpace(articleFile) == "" {
		return 0
	}
	f, err := os.Open(articleFile)
	if err != nil {
		return 0
	}
	defer f.Close()

	sections, err := document.SegmentReader(f)
	if err != nil {
		return 0
	}
	return len(script.Split(sections, s.batchMaxChars))
}

func computeJobProgress(done, total int) jobProgressResponse {
	if total <= 0 {
		return jobProgressResponse{}
	}
	done = min(done, total)
	return jobProgressResponse{
		BatchesDone:  done,
		BatchesTotal: total,
		Percent:      (float64(done) / float64(total)) * 100,
	}
}
