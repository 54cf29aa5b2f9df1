package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/astas888/manga-media-server/internal/logutils"
	"github.com/astas888/manga-media-server/internal/scheduler"
	"github.com/astas888/manga-media-server/internal/utils"
)

// healthHandler returns 200 and {"status":"ok"}.
func (*Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// downloadHandler starts a new manga download.
// POST /api/v1/download {"url": "...", "source": "..."} -- source is optional.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "missing 'url'")
		return
	}
	if !utils.IsValidLink(req.URL) {
		writeError(w, http.StatusBadRequest, "invalid or unsupported URL")
		return
	}

	var jobID string
	var err error
	if req.Source != "" {
		jobID, err = s.core.Submit(req.Source, req.URL)
	} else {
		jobID, err = s.core.SubmitTarget(req.URL)
	}
	if err != nil {
		writeSchedulerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, DownloadResponse{
		JobID:   jobID,
		Message: fmt.Sprintf("Download started for %s", req.URL),
	})
}

// progressHandler returns the snapshot for GET /api/v1/progress/{id}.
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, progressPath)
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	snap, err := s.core.GetProgress(jobID)
	if err != nil {
		writeSchedulerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// cancelHandler cancels a queued or running job: POST /api/v1/cancel/{id}.
func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, cancelPath)
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	if err := s.core.Cancel(jobID); err != nil {
		writeSchedulerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{
		Message: fmt.Sprintf("Job %s cancelled", jobID),
	})
}

// jobsHandler lists every known job, newest first: GET /api/v1/jobs.
func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.core.ListJobs())
}

// historyHandler lists terminal jobs, most recent first: GET /api/v1/history.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.core.ListHistory())
}

// sourceStatusHandler exposes per-source limiter state: GET /api/v1/settings/source-status.
func (s *Server) sourceStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.core.SourceStatus())
}

func writeSchedulerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, scheduler.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, "no source recognises this URL")
	case errors.Is(err, scheduler.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "invalid or unsupported URL")
	case errors.Is(err, scheduler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "job queue is full, try again later")
	default:
		logutils.Log.WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("API request failed")
		writeError(w, http.StatusInternalServerError, utils.RootError(err).Error())
	}
}
