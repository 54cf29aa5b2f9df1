package storage

import (
	"fmt"
)

// Sink persists fetched pages. Save is invoked once per successfully fetched
// page; a failure here is fatal for the owning job and is never retried --
// storage problems are a different failure class than network errors.
type Sink interface {
	Save(jobID, mangaTitle, chapterTitle string, pageIndex int, ext string, data []byte) error
}

// SinkError marks a storage failure so it stays distinguishable from fetch errors.
type SinkError struct {
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Path, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
