package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a job lifecycle state. Valid paths:
// Queued -> Running -> {Succeeded, Failed}; Queued -> Cancelled; Running -> Cancelled.
// Terminal states are absorbing.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Progress counts discovered and completed work. Totals grow as chapters are
// enumerated and freeze once the job is terminal; completed never exceeds total.
type Progress struct {
	ChaptersTotal     int `json:"chapters_total"`
	ChaptersCompleted int `json:"chapters_completed"`
	PagesTotal        int `json:"pages_total"`
	PagesCompleted    int `json:"pages_completed"`
}

// Snapshot is a point-in-time copy of a job. Callers never see the live job.
type Snapshot struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Title     string    `json:"title,omitempty"`
	State     State     `json:"state"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type job struct {
	id         string
	sourceName string
	target     string
	ctx        context.Context
	cancel     context.CancelFunc

	mu        sync.Mutex
	title     string
	state     State
	progress  Progress
	err       error
	createdAt time.Time
	updatedAt time.Time
}

func newJob(parent context.Context, sourceName, target string) *job {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &job{
		id:         uuid.New().String(),
		sourceName: sourceName,
		target:     target,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateQueued,
		createdAt:  now,
		updatedAt:  now,
	}
}

// transition moves the job to next if the edge is valid, and reports whether it
// did. Concurrent cancel/complete races resolve to exactly one terminal state.
func (j *job) transition(next State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch next {
	case StateRunning:
		if j.state != StateQueued {
			return false
		}
	case StateSucceeded, StateFailed:
		if j.state != StateRunning {
			return false
		}
	case StateCancelled:
		if j.state != StateQueued && j.state != StateRunning {
			return false
		}
	default:
		return false
	}

	j.state = next
	j.updatedAt = time.Now()
	return true
}

// fail records err and moves to Failed; a lost race against cancel leaves err unset.
func (j *job) fail(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateRunning {
		return false
	}
	j.state = StateFailed
	j.err = err
	j.updatedAt = time.Now()
	return true
}

// cancelQueued atomically cancels a job that has not started running yet.
// Running jobs are cancelled cooperatively through the context instead.
func (j *job) cancelQueued() bool {
	j.mu.Lock()
	if j.state != StateQueued {
		j.mu.Unlock()
		return false
	}
	j.state = StateCancelled
	j.updatedAt = time.Now()
	j.mu.Unlock()

	j.cancel()
	return true
}

func (j *job) setTitle(title string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.title = title
	j.updatedAt = time.Now()
}

func (j *job) setChaptersTotal(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.progress.ChaptersTotal = total
	j.updatedAt = time.Now()
}

// addPages grows the page total as another chapter's pages are discovered.
func (j *job) addPages(count int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.progress.PagesTotal += count
	j.updatedAt = time.Now()
}

func (j *job) pageDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning || j.progress.PagesCompleted >= j.progress.PagesTotal {
		return
	}
	j.progress.PagesCompleted++
	j.updatedAt = time.Now()
}

func (j *job) chapterDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning || j.progress.ChaptersCompleted >= j.progress.ChaptersTotal {
		return
	}
	j.progress.ChaptersCompleted++
	j.updatedAt = time.Now()
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:        j.id,
		Source:    j.sourceName,
		Target:    j.target,
		Title:     j.title,
		State:     j.state,
		Progress:  j.progress,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
	if j.err != nil {
		snap.Error = j.err.Error()
	}
	return snap
}
