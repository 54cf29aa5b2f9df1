package scheduler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/astas888/manga-media-server/internal/config"
	"github.com/astas888/manga-media-server/internal/database"
	"github.com/astas888/manga-media-server/internal/ratelimit"
	"github.com/astas888/manga-media-server/internal/source"
	"github.com/astas888/manga-media-server/internal/storage"
	"github.com/astas888/manga-media-server/internal/testutils"
)

func newTestScheduler(
	t *testing.T,
	cfg *config.Config,
	adapter source.Adapter,
	sink storage.Sink,
	history database.HistoryStore,
) *Scheduler {
	t.Helper()

	sources := source.NewRegistry()
	sources.Register(adapter)
	limiters := ratelimit.NewRegistry(cfg.RateLimitSettings)

	s := New(cfg, sources, limiters, sink, history)
	t.Cleanup(s.Stop)
	return s
}

func waitTerminal(t *testing.T, s *Scheduler, jobID string) Snapshot {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.GetProgress(jobID)
		if err != nil {
			t.Fatalf("GetProgress failed: %v", err)
		}
		if snap.State.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Job did not reach a terminal state in time")
	return Snapshot{}
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// strictAdapter only recognises mock:// targets, unlike the permissive default.
type strictAdapter struct {
	*testutils.MockAdapter
}

func (strictAdapter) ValidateTarget(target string) bool {
	return strings.HasPrefix(target, "mock://")
}

func TestSubmitUnknownSource(t *testing.T) {
	adapter := &testutils.MockAdapter{}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, nil)

	if _, err := s.Submit("no-such-source", "mock://manga/1"); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource, got %v", err)
	}
}

func TestSubmitInvalidTarget(t *testing.T) {
	adapter := strictAdapter{&testutils.MockAdapter{}}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, nil)

	if _, err := s.Submit(adapter.Name(), "   "); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("Expected ErrInvalidTarget for blank target, got %v", err)
	}
	if _, err := s.Submit(adapter.Name(), "https://elsewhere.example/m"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("Expected ErrInvalidTarget for foreign URL, got %v", err)
	}
}

func TestSubmitTargetResolvesSource(t *testing.T) {
	adapter := strictAdapter{&testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 1}},
	}}
	sink := &testutils.CaptureSink{}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, sink, nil)

	if _, err := s.SubmitTarget("https://elsewhere.example/m"); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource for unrecognised URL, got %v", err)
	}

	jobID, err := s.SubmitTarget("mock://manga/1")
	if err != nil {
		t.Fatalf("SubmitTarget failed: %v", err)
	}
	snap := waitTerminal(t, s, jobID)
	if snap.State != StateSucceeded {
		t.Errorf("Expected Succeeded, got %s (%s)", snap.State, snap.Error)
	}
}

func TestJobDownloadsEveryPage(t *testing.T) {
	adapter := &testutils.MockAdapter{
		MangaTitle: "One Sample Manga",
		Chapters: []testutils.MockChapter{
			{Title: "Chapter 1", Pages: 3},
			{Title: "Chapter 2", Pages: 3},
		},
	}
	sink := &testutils.CaptureSink{}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, sink, nil)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, s, jobID)
	if snap.State != StateSucceeded {
		t.Fatalf("Expected Succeeded, got %s (%s)", snap.State, snap.Error)
	}
	if snap.Title != "One Sample Manga" {
		t.Errorf("Expected title from the source, got %q", snap.Title)
	}
	if snap.Progress.ChaptersCompleted != 2 || snap.Progress.ChaptersTotal != 2 {
		t.Errorf("Unexpected chapter progress: %+v", snap.Progress)
	}
	if snap.Progress.PagesCompleted != 6 || snap.Progress.PagesTotal != 6 {
		t.Errorf("Unexpected page progress: %+v", snap.Progress)
	}
	if saves := sink.Saves(); len(saves) != 6 {
		t.Errorf("Expected 6 saved pages, got %d", len(saves))
	}
}

func TestJobFailsFastOnFatalError(t *testing.T) {
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{
			{Title: "Chapter 1", Pages: 2},
			{Title: "Chapter 2", Pages: 3},
			{Title: "Chapter 3", Pages: 2},
		},
	}
	adapter.PageErrs = map[string]error{
		adapter.PageURL(2, 2): &source.RequestError{URL: adapter.PageURL(2, 2), StatusCode: http.StatusNotFound},
	}
	sink := &testutils.CaptureSink{}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, sink, nil)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, s, jobID)
	if snap.State != StateFailed {
		t.Fatalf("Expected Failed, got %s", snap.State)
	}
	if snap.Error == "" {
		t.Error("Expected the failure cause to be recorded")
	}
	if snap.Progress.PagesCompleted != 3 {
		t.Errorf("Expected 3 completed pages before the failure, got %d", snap.Progress.PagesCompleted)
	}
	if len(sink.Saves()) != snap.Progress.PagesCompleted {
		t.Errorf("Saved pages (%d) disagree with completed count (%d)", len(sink.Saves()), snap.Progress.PagesCompleted)
	}
	if snap.Progress.PagesCompleted > snap.Progress.PagesTotal {
		t.Errorf("Completed exceeds total: %+v", snap.Progress)
	}

	// The job stops at the failing page; chapter 3 is never touched.
	for _, call := range adapter.FetchCalls() {
		if strings.HasPrefix(call, "mock://page/3/") {
			t.Errorf("Chapter 3 page fetched after a fatal failure: %s", call)
		}
	}
}

func TestStorageFailureIsFatal(t *testing.T) {
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 2}},
	}
	sink := &testutils.CaptureSink{Err: &storage.SinkError{Path: "/nowhere", Err: errors.New("disk full")}}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, sink, nil)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, s, jobID)
	if snap.State != StateFailed {
		t.Fatalf("Expected Failed, got %s", snap.State)
	}
	if snap.Progress.PagesCompleted != 0 {
		t.Errorf("Expected no completed pages, got %d", snap.Progress.PagesCompleted)
	}
	// Storage failures abort without retrying: only the first page is fetched.
	if calls := adapter.FetchCalls(); len(calls) != 1 {
		t.Errorf("Expected exactly 1 fetch, got %d", len(calls))
	}
}

func TestCancelQueuedJob(t *testing.T) {
	cfg := testutils.TestConfig(t.TempDir())
	cfg.DownloadSettings.MaxConcurrentJobs = 1
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 1}},
		Block:    make(chan struct{}),
	}
	s := newTestScheduler(t, cfg, adapter, &testutils.CaptureSink{}, nil)

	first, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitUntil(t, func() bool { return len(adapter.FetchCalls()) > 0 }, "First job never started fetching")

	second, err := s.Submit(adapter.Name(), "mock://manga/2")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := s.Cancel(second); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	snap, err := s.GetProgress(second)
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if snap.State != StateCancelled {
		t.Errorf("Expected the queued job to be Cancelled immediately, got %s", snap.State)
	}
	if snap.Progress.PagesCompleted != 0 || snap.Progress.PagesTotal != 0 {
		t.Errorf("A cancelled queued job must report zero progress: %+v", snap.Progress)
	}

	close(adapter.Block)
	if snap := waitTerminal(t, s, first); snap.State != StateSucceeded {
		t.Errorf("Expected the first job to succeed, got %s", snap.State)
	}
	if snap, _ := s.GetProgress(second); snap.State != StateCancelled {
		t.Errorf("Cancelled job must stay cancelled, got %s", snap.State)
	}
}

func TestCancelRunningJob(t *testing.T) {
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 4}},
		Block:    make(chan struct{}),
	}
	sink := &testutils.CaptureSink{}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, sink, nil)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitUntil(t, func() bool { return len(adapter.FetchCalls()) > 0 }, "Job never started fetching")

	if err := s.Cancel(jobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	snap := waitTerminal(t, s, jobID)
	if snap.State != StateCancelled {
		t.Fatalf("Expected Cancelled, got %s", snap.State)
	}
	if snap.Error != "" {
		t.Errorf("Cancellation must not record an error, got %q", snap.Error)
	}
	// Cancelled before the first page came back, so nothing completed.
	if snap.Progress.PagesCompleted != 0 {
		t.Errorf("Expected 0 completed pages, got %d", snap.Progress.PagesCompleted)
	}
	if len(sink.Saves()) != 0 {
		t.Errorf("Expected no saved pages, got %d", len(sink.Saves()))
	}
}

func TestCancelUnknownJob(t *testing.T) {
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), &testutils.MockAdapter{}, &testutils.CaptureSink{}, nil)

	if err := s.Cancel("no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 1}},
	}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, nil)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, s, jobID)

	if err := s.Cancel(jobID); err != nil {
		t.Errorf("Cancelling a finished job must be a no-op, got %v", err)
	}
	if snap, _ := s.GetProgress(jobID); snap.State != StateSucceeded {
		t.Errorf("Expected the job to stay Succeeded, got %s", snap.State)
	}
}

func TestProgressUnknownJob(t *testing.T) {
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), &testutils.MockAdapter{}, &testutils.CaptureSink{}, nil)

	if _, err := s.GetProgress("no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := testutils.TestConfig(t.TempDir())
	cfg.DownloadSettings.MaxConcurrentJobs = 1
	cfg.DownloadSettings.JobQueueSize = 1
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 1}},
		Block:    make(chan struct{}),
	}
	s := newTestScheduler(t, cfg, adapter, &testutils.CaptureSink{}, nil)
	defer close(adapter.Block)

	var accepted int
	var sawFull bool
	for i := 0; i < 10; i++ {
		if _, err := s.Submit(adapter.Name(), "mock://manga/1"); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		} else if err != nil {
			t.Fatalf("Unexpected submit error: %v", err)
		}
		accepted++
	}
	if !sawFull {
		t.Error("Expected ErrQueueFull once the queue saturated")
	}
	// A rejected job never appears in the registry, not even transiently.
	if jobs := s.ListJobs(); len(jobs) != accepted {
		t.Errorf("Expected %d registered jobs, got %d", accepted, len(jobs))
	}
}

func TestListJobsAndHistory(t *testing.T) {
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 1}},
	}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, nil)

	first, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, s, first)

	second, err := s.Submit(adapter.Name(), "mock://manga/2")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, s, second)

	jobs := s.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}

	history := s.ListHistory()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	for _, snap := range history {
		if !snap.State.Terminal() {
			t.Errorf("History contains a non-terminal job: %s", snap.State)
		}
	}
	if history[0].UpdatedAt.Before(history[1].UpdatedAt) {
		t.Error("Expected history sorted most recent first")
	}
}

func TestHistoryRecordPersisted(t *testing.T) {
	adapter := &testutils.MockAdapter{
		MangaTitle: "Archived Manga",
		Chapters:   []testutils.MockChapter{{Title: "Chapter 1", Pages: 2}},
	}
	store := testutils.TestDatabase(t)
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, store)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, s, jobID)

	var records []database.JobRecord
	waitUntil(t, func() bool {
		var listErr error
		records, listErr = store.ListRecords(context.Background(), 10)
		return listErr == nil && len(records) == 1
	}, "History record was never written")

	record := records[0]
	if record.ID != jobID {
		t.Errorf("Expected record for job %s, got %s", jobID, record.ID)
	}
	if record.State != string(StateSucceeded) {
		t.Errorf("Expected succeeded record, got %s", record.State)
	}
	if record.Title != "Archived Manga" || record.PagesCompleted != 2 {
		t.Errorf("Unexpected record contents: %+v", record)
	}
}

func TestListHistorySurvivesRestart(t *testing.T) {
	store := testutils.TestDatabase(t)

	// A terminal record left behind by a previous process.
	finished := time.Now().Add(-time.Hour)
	err := store.SaveRecord(context.Background(), &database.JobRecord{
		ID:                "job-before-restart",
		Source:            "mock",
		Target:            "mock://manga/old",
		Title:             "Old Manga",
		State:             string(StateSucceeded),
		ChaptersTotal:     1,
		ChaptersCompleted: 1,
		PagesTotal:        4,
		PagesCompleted:    4,
		CreatedAt:         finished.Add(-time.Minute),
		FinishedAt:        finished,
	})
	if err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 1}},
	}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, store)

	history := s.ListHistory()
	if len(history) != 1 {
		t.Fatalf("Expected the persisted record before any new job, got %d entries", len(history))
	}
	if history[0].ID != "job-before-restart" || history[0].State != StateSucceeded {
		t.Errorf("Unexpected restored snapshot: %+v", history[0])
	}
	if history[0].Progress.PagesCompleted != 4 || history[0].Title != "Old Manga" {
		t.Errorf("Restored snapshot lost its fields: %+v", history[0])
	}

	jobID, err := s.Submit(adapter.Name(), "mock://manga/new")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, s, jobID)

	// The new job is persisted too; merging must not duplicate it.
	waitUntil(t, func() bool {
		records, listErr := store.ListRecords(context.Background(), 0)
		return listErr == nil && len(records) == 2
	}, "New terminal job was never persisted")

	history = s.ListHistory()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries after the new job, got %d", len(history))
	}
	if history[0].ID != jobID || history[1].ID != "job-before-restart" {
		t.Errorf("Expected most recent first without duplicates, got %s then %s", history[0].ID, history[1].ID)
	}
}

func TestSourceStatusReflectsActivity(t *testing.T) {
	adapter := &testutils.MockAdapter{
		Chapters: []testutils.MockChapter{{Title: "Chapter 1", Pages: 2}},
	}
	s := newTestScheduler(t, testutils.TestConfig(t.TempDir()), adapter, &testutils.CaptureSink{}, nil)

	jobID, err := s.Submit(adapter.Name(), "mock://manga/1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, s, jobID)

	statuses := s.SourceStatus()
	if len(statuses) != 1 {
		t.Fatalf("Expected 1 source status, got %d", len(statuses))
	}
	if statuses[0].Source != adapter.Name() {
		t.Errorf("Expected status for %q, got %q", adapter.Name(), statuses[0].Source)
	}
	// ListChapters, ListPages and two page fetches all succeeded.
	if statuses[0].Success != 4 {
		t.Errorf("Expected 4 successful operations recorded, got %d", statuses[0].Success)
	}
}
