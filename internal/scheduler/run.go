package scheduler

import (
	"context"
	"errors"

	"github.com/astas888/manga-media-server/internal/logutils"
	"github.com/astas888/manga-media-server/internal/ratelimit"
	"github.com/astas888/manga-media-server/internal/source"
	"github.com/astas888/manga-media-server/internal/utils"
)

// run executes one job to its terminal state. Failures never propagate past
// the job: the scheduler itself survives anything a job does.
func (s *Scheduler) run(j *job) {
	if !j.transition(StateRunning) {
		// Cancelled while queued; Cancel already finalized it.
		return
	}

	adapter, ok := s.sources.Get(j.sourceName)
	if !ok {
		j.fail(ErrInvalidSource)
		s.finalize(j)
		return
	}

	logutils.Log.WithFields(logutils.Fields{
		"job_id": j.id,
		"source": j.sourceName,
		"target": j.target,
	}).Info("Job started")

	err := s.execute(j, adapter, s.limiters.ForSource(j.sourceName))
	switch {
	case err == nil:
		j.transition(StateSucceeded)
	case errors.Is(err, context.Canceled):
		// Cooperative cancellation: terminal without recording an error.
		j.transition(StateCancelled)
	default:
		j.fail(err)
	}

	s.finalize(j)
}

// execute walks chapters and pages in source order. Totals grow as chapters
// are discovered; any exhausted/fatal fetch or storage failure stops the job
// immediately -- no partial-success terminal state.
func (s *Scheduler) execute(j *job, adapter source.Adapter, limiter *ratelimit.AdaptiveLimiter) error {
	ctx := j.ctx

	var manga *source.Manga
	err := s.fetchOp(ctx, limiter, func(ctx context.Context) error {
		var listErr error
		manga, listErr = adapter.ListChapters(ctx, j.target)
		return listErr
	})
	if err != nil {
		return utils.WrapError(err, "failed to list chapters", map[string]any{
			"job_id": j.id,
			"target": j.target,
		})
	}

	j.setTitle(manga.Title)
	j.setChaptersTotal(len(manga.Chapters))

	for _, chapter := range manga.Chapters {
		if err := ctx.Err(); err != nil {
			return err
		}

		var pages []source.Page
		err := s.fetchOp(ctx, limiter, func(ctx context.Context) error {
			var listErr error
			pages, listErr = adapter.ListPages(ctx, chapter)
			return listErr
		})
		if err != nil {
			return utils.WrapError(err, "failed to list pages", map[string]any{
				"job_id":  j.id,
				"chapter": chapter.Title,
			})
		}
		j.addPages(len(pages))

		for i, page := range pages {
			// Page boundary: the cancellation checkpoint.
			if err := ctx.Err(); err != nil {
				return err
			}

			var data []byte
			err := s.fetchOp(ctx, limiter, func(ctx context.Context) error {
				var fetchErr error
				data, fetchErr = adapter.FetchPage(ctx, page)
				return fetchErr
			})
			if err != nil {
				return utils.WrapError(err, "failed to fetch page", map[string]any{
					"job_id":  j.id,
					"chapter": chapter.Title,
					"page":    i + 1,
				})
			}

			// Storage failures are fatal and never retried.
			if err := s.sink.Save(j.id, manga.Title, chapter.Title, i+1, page.Ext(), data); err != nil {
				return err
			}
			j.pageDone()
		}

		j.chapterDone()
	}

	return nil
}

// fetchOp performs one logical source request: acquire a permit under
// the source's current rate, then run the request under the retry policy.
// Every attempt outcome feeds the limiter.
func (s *Scheduler) fetchOp(ctx context.Context, limiter *ratelimit.AdaptiveLimiter, op func(context.Context) error) error {
	if err := limiter.Acquire(ctx); err != nil {
		return err
	}
	return s.policy.Do(ctx, limiter, op)
}
