package orchestrator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// WorkerJob is one worker's unit of work in phase 2.
type WorkerJob struct {
	Worker string
	Run    func(ctx context.Context) (WorkerResult, error)
}

// FanOut dispatches worker jobs through a bounded pool. A failing job does
// not cancel its siblings: every job runs and the failures are joined.
type FanOut struct {
	limit      int
	onProgress func(ProgressEvent)
}

// NewFanOut creates a FanOut running at most limit jobs at once.
// onProgress is called from each goroutine; it may be nil.
func NewFanOut(limit int, onProgress func(ProgressEvent)) *FanOut {
	if limit < 1 {
		limit = 1
	}
	return &FanOut{limit: limit, onProgress: onProgress}
}

// Run starts jobs in order and waits for all of them. Results are indexed
// like jobs. The error joins every job failure.
func (f *FanOut) Run(ctx context.Context, jobs []WorkerJob) ([]WorkerResult, error) {
	results := make([]WorkerResult, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(f.limit)

	for i, job := range jobs {
		f.emit(ProgressEvent{
			Phase:   PhaseParallelProduction,
			Subject: job.Worker,
			Status:  ProgressPending,
		})

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = WorkerResult{Worker: job.Worker, Err: err}
				errs[i] = err
				return nil
			}
			f.emit(ProgressEvent{
				Phase:   PhaseParallelProduction,
				Subject: job.Worker,
				Status:  ProgressWorking,
			})

			res, err := job.Run(ctx)
			res.Worker = job.Worker
			res.Err = err
			results[i] = res
			if err != nil {
				errs[i] = err
				f.emit(ProgressEvent{
					Phase:   PhaseParallelProduction,
					Subject: job.Worker,
					Status:  ProgressFailed,
					Message: err.Error(),
				})
				return nil
			}

			status := ProgressComplete
			if res.Outcome == OutcomeSkipped {
				status = ProgressSkipped
			}
			f.emit(ProgressEvent{
				Phase:   PhaseParallelProduction,
				Subject: job.Worker,
				Status:  status,
				Message: res.Detail,
			})
			return nil
		})
	}

	_ = g.Wait()
	return results, errors.Join(errs...)
}

// emit sends a progress event if a callback is registered.
func (f *FanOut) emit(ev ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(ev)
	}
}
