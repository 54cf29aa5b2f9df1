package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/astas888/manga-media-server/internal/logutils"
	"github.com/astas888/manga-media-server/internal/ratelimit"
	"github.com/astas888/manga-media-server/internal/scheduler"
)

const jsonContentType = "application/json"

const (
	apiV1Prefix      = "/api/v1"
	healthPath       = apiV1Prefix + "/health"
	downloadPath     = apiV1Prefix + "/download"
	progressPath     = apiV1Prefix + "/progress/"
	cancelPath       = apiV1Prefix + "/cancel/"
	jobsPath         = apiV1Prefix + "/jobs"
	historyPath      = apiV1Prefix + "/history"
	sourceStatusPath = apiV1Prefix + "/settings/source-status"
)

// Core is the scheduler surface the API exposes to the dashboard.
type Core interface {
	Submit(sourceName, target string) (string, error)
	SubmitTarget(target string) (string, error)
	GetProgress(jobID string) (scheduler.Snapshot, error)
	Cancel(jobID string) error
	ListJobs() []scheduler.Snapshot
	ListHistory() []scheduler.Snapshot
	SourceStatus() []ratelimit.Status
}

// Server runs the dashboard REST API.
type Server struct {
	core   Core
	apiKey string
	srv    *http.Server
}

// NewServer creates an API server. When apiKey is empty, requests are not authenticated.
func NewServer(core Core, listenAddr, apiKey string) *Server {
	s := &Server{core: core, apiKey: apiKey}

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, s.chain(s.healthHandler))
	mux.HandleFunc(downloadPath, s.chain(s.downloadHandler))
	mux.HandleFunc(progressPath, s.chain(s.progressHandler))
	mux.HandleFunc(cancelPath, s.chain(s.cancelHandler))
	mux.HandleFunc(jobsPath, s.chain(s.jobsHandler))
	mux.HandleFunc(historyPath, s.chain(s.historyHandler))
	mux.HandleFunc(sourceStatusPath, s.chain(s.sourceStatusHandler))

	s.srv = &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the server until Shutdown. It blocks.
func (s *Server) Start() error {
	logutils.Log.WithField("addr", s.srv.Addr).Info("API server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the configured HTTP handler (for tests).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// chain tags each request with an id, checks the API key, and logs the call.
func (s *Server) chain(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		r = r.WithContext(WithRequestID(r.Context(), requestID))

		if s.apiKey != "" && r.Header.Get("X-Api-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		logutils.Log.WithFields(logutils.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Debug("API request")

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logutils.Log.WithError(err).Error("Failed to encode API response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
