package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/astas888/manga-media-server/internal/config"
	"github.com/astas888/manga-media-server/internal/database"
	"github.com/astas888/manga-media-server/internal/logutils"
	"github.com/astas888/manga-media-server/internal/ratelimit"
	"github.com/astas888/manga-media-server/internal/retry"
	"github.com/astas888/manga-media-server/internal/source"
	"github.com/astas888/manga-media-server/internal/storage"
)

var (
	ErrInvalidSource = errors.New("unknown source")
	ErrInvalidTarget = errors.New("invalid target")
	ErrNotFound      = errors.New("job not found")
	ErrQueueFull     = errors.New("job queue is full")
)

const historyTimeout = 5 * time.Second

// Scheduler owns the job registry and drives download execution. Jobs run
// concurrently up to MaxConcurrentJobs; each job runs at most once, and all
// state transitions are serialized per job.
type Scheduler struct {
	cfg      *config.Config
	sources  *source.Registry
	limiters *ratelimit.Registry
	policy   retry.Policy
	sink     storage.Sink
	history  database.HistoryStore

	mu   sync.RWMutex
	jobs map[string]*job

	queue        chan *job
	group        errgroup.Group
	runCtx       context.Context
	runCancel    context.CancelFunc
	dispatchDone chan struct{}
	stopOnce     sync.Once
}

// New builds a scheduler and starts its dispatcher. history may be nil when
// terminal snapshots don't need to survive the process.
func New(
	cfg *config.Config,
	sources *source.Registry,
	limiters *ratelimit.Registry,
	sink storage.Sink,
	history database.HistoryStore,
) *Scheduler {
	runCtx, runCancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cfg:          cfg,
		sources:      sources,
		limiters:     limiters,
		policy:       retry.NewPolicy(cfg.RetrySettings),
		sink:         sink,
		history:      history,
		jobs:         make(map[string]*job),
		queue:        make(chan *job, cfg.DownloadSettings.JobQueueSize),
		runCtx:       runCtx,
		runCancel:    runCancel,
		dispatchDone: make(chan struct{}),
	}
	s.group.SetLimit(cfg.DownloadSettings.MaxConcurrentJobs)

	go s.dispatch()

	return s
}

// dispatch pulls queued jobs and hands them to the worker group. Go blocks
// while the group is at its limit, which is what bounds concurrency.
func (s *Scheduler) dispatch() {
	defer close(s.dispatchDone)

	for {
		select {
		case <-s.runCtx.Done():
			return
		case j := <-s.queue:
			s.group.Go(func() error {
				s.run(j)
				return nil
			})
		}
	}
}

// Stop cancels every job and waits for in-flight work to wind down.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.runCancel()
		<-s.dispatchDone
		_ = s.group.Wait()
		logutils.Log.Info("Scheduler stopped")
	})
}

// Submit validates the request, registers a queued job, and returns its id
// without waiting for execution.
func (s *Scheduler) Submit(sourceName, target string) (string, error) {
	adapter, ok := s.sources.Get(sourceName)
	if !ok {
		return "", ErrInvalidSource
	}
	if strings.TrimSpace(target) == "" || !adapter.ValidateTarget(target) {
		return "", ErrInvalidTarget
	}

	j := newJob(s.runCtx, sourceName, target)

	// Reserve the queue slot first so a rejected job is never observable
	// through the registry.
	select {
	case s.queue <- j:
	default:
		return "", ErrQueueFull
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	logutils.Log.WithFields(logutils.Fields{
		"job_id": j.id,
		"source": sourceName,
		"target": target,
	}).Info("Job submitted")

	return j.id, nil
}

// SubmitTarget resolves the source from the target URL and submits the job.
func (s *Scheduler) SubmitTarget(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", ErrInvalidTarget
	}
	adapter, ok := s.sources.ForTarget(target)
	if !ok {
		return "", ErrInvalidSource
	}
	return s.Submit(adapter.Name(), target)
}

// GetProgress returns a consistent point-in-time copy of the job.
func (s *Scheduler) GetProgress(jobID string) (Snapshot, error) {
	s.mu.RLock()
	j, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// Cancel stops a queued or running job. Running jobs observe the cancellation
// at the next page boundary; the in-flight fetch is not interrupted.
// Cancelling a job that is already terminal is a no-op, not an error.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.RLock()
	j, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}

	if j.cancelQueued() {
		logutils.Log.WithField("job_id", jobID).Info("Cancelled queued job")
		s.finalize(j)
		return nil
	}

	j.cancel()
	return nil
}

// ListJobs returns a snapshot of every known job, newest first.
func (s *Scheduler) ListJobs() []Snapshot {
	s.mu.RLock()
	snaps := make([]Snapshot, 0, len(s.jobs))
	for _, j := range s.jobs {
		snaps = append(snaps, j.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(snaps, func(i, k int) bool {
		return snaps[i].CreatedAt.After(snaps[k].CreatedAt)
	})
	return snaps
}

// ListHistory returns terminal jobs, most recently finished first. Records
// persisted by earlier runs are merged in, so the dashboard history survives
// restarts; in-memory snapshots win when both exist for a job.
func (s *Scheduler) ListHistory() []Snapshot {
	seen := make(map[string]bool)

	s.mu.RLock()
	snaps := make([]Snapshot, 0, len(s.jobs))
	for _, j := range s.jobs {
		if snap := j.snapshot(); snap.State.Terminal() {
			snaps = append(snaps, snap)
			seen[snap.ID] = true
		}
	}
	s.mu.RUnlock()

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		records, err := s.history.ListRecords(ctx, 0)
		if err != nil {
			logutils.Log.WithError(err).Error("Failed to read job history records")
		}
		for i := range records {
			if seen[records[i].ID] {
				continue
			}
			snaps = append(snaps, recordSnapshot(&records[i]))
		}
	}

	sort.Slice(snaps, func(i, k int) bool {
		return snaps[i].UpdatedAt.After(snaps[k].UpdatedAt)
	})
	return snaps
}

// recordSnapshot rebuilds a snapshot from a persisted terminal record.
func recordSnapshot(r *database.JobRecord) Snapshot {
	return Snapshot{
		ID:     r.ID,
		Source: r.Source,
		Target: r.Target,
		Title:  r.Title,
		State:  State(r.State),
		Progress: Progress{
			ChaptersTotal:     r.ChaptersTotal,
			ChaptersCompleted: r.ChaptersCompleted,
			PagesTotal:        r.PagesTotal,
			PagesCompleted:    r.PagesCompleted,
		},
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.FinishedAt,
	}
}

// SourceStatus exposes the per-source rate limiter state for observability.
func (s *Scheduler) SourceStatus() []ratelimit.Status {
	return s.limiters.Stats()
}

// finalize logs the terminal outcome and writes it to the history store.
func (s *Scheduler) finalize(j *job) {
	snap := j.snapshot()

	entry := logutils.Log.WithFields(logutils.Fields{
		"job_id":          snap.ID,
		"source":          snap.Source,
		"state":           snap.State,
		"pages_completed": snap.Progress.PagesCompleted,
		"pages_total":     snap.Progress.PagesTotal,
	})
	if snap.Error != "" {
		entry.WithField("error", snap.Error).Warn("Job finished")
	} else {
		entry.Info("Job finished")
	}

	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	record := &database.JobRecord{
		ID:                snap.ID,
		Source:            snap.Source,
		Target:            snap.Target,
		Title:             snap.Title,
		State:             string(snap.State),
		ChaptersTotal:     snap.Progress.ChaptersTotal,
		ChaptersCompleted: snap.Progress.ChaptersCompleted,
		PagesTotal:        snap.Progress.PagesTotal,
		PagesCompleted:    snap.Progress.PagesCompleted,
		Error:             snap.Error,
		CreatedAt:         snap.CreatedAt,
		FinishedAt:        snap.UpdatedAt,
	}
	if err := s.history.SaveRecord(ctx, record); err != nil {
		logutils.Log.WithError(err).WithField("job_id", snap.ID).Error("Failed to persist job history record")
	}
}
