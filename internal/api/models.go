package api

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DownloadRequest is the body for POST /api/v1/download.
// Source may be empty; the server then resolves it from the URL.
type DownloadRequest struct {
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}

// DownloadResponse is returned on success by POST /api/v1/download.
type DownloadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// CancelResponse is returned by POST /api/v1/cancel/{id}.
type CancelResponse struct {
	Message string `json:"message"`
}

// ErrorResponse carries a machine-readable error for any non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
