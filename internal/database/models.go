package database

import "time"

// JobRecord is a terminal job snapshot kept for the dashboard history.
// The scheduler's in-memory registry stays the source of truth while a job is
// live; records are written once, when the job reaches a terminal state.
type JobRecord struct {
	ID                string `gorm:"primaryKey"`
	Source            string
	Target            string
	Title             string
	State             string
	ChaptersTotal     int
	ChaptersCompleted int
	PagesTotal        int
	PagesCompleted    int
	Error             string
	CreatedAt         time.Time
	FinishedAt        time.Time `gorm:"index"`
}
