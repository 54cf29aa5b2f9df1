package testutils

import "sync"

// SavedPage records a single CaptureSink.Save call.
type SavedPage struct {
	JobID   string
	Manga   string
	Chapter string
	Page    int
}

// CaptureSink implements storage.Sink and records saved pages in memory.
type CaptureSink struct {
	Err error

	mu    sync.Mutex
	saves []SavedPage
}

func (c *CaptureSink) Save(jobID, mangaTitle, chapterTitle string, pageIndex int, _ string, _ []byte) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, SavedPage{
		JobID:   jobID,
		Manga:   mangaTitle,
		Chapter: chapterTitle,
		Page:    pageIndex,
	})
	return nil
}

// Saves returns a copy of the recorded saves.
func (c *CaptureSink) Saves() []SavedPage {
	c.mu.Lock()
	defer c.mu.Unlock()
	saves := make([]SavedPage, len(c.saves))
	copy(saves, c.saves)
	return saves
}
