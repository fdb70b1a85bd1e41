package runners

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/jobqueue"
	"github.com/stevecastle/stereo180/tasks"
)

// Runners claims queued jobs and runs each on its own goroutine. The
// queue's working directory lanes bound how many run at once.
type Runners struct {
	queue   *jobqueue.Queue
	lookup  func(command string) (tasks.Task, bool)
	mu      sync.Mutex
	running int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	jobs    sync.WaitGroup
}

// New creates a Runners instance backed by the global task registry.
func New(queue *jobqueue.Queue) *Runners {
	return NewWithLookup(queue, func(command string) (tasks.Task, bool) {
		t, ok := tasks.GetTasks()[command]
		return t, ok
	})
}

// NewWithLookup creates a Runners instance that resolves commands with lookup.
func NewWithLookup(queue *jobqueue.Queue, lookup func(string) (tasks.Task, bool)) *Runners {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runners{
		queue:  queue,
		lookup: lookup,
		ctx:    ctx,
		cancel: cancel,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-r.queue.Signal:
				r.CheckForJobs()
			}
		}
	}()

	return r
}

// Shutdown stops the signal listener and the claiming of new jobs. Running
// jobs keep going; Wait blocks until they return.
func (r *Runners) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

// Wait blocks until every started job has returned.
func (r *Runners) Wait() {
	r.jobs.Wait()
}

// Running returns the number of jobs currently executing.
func (r *Runners) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// CheckForJobs claims and starts every job whose lane has room.
func (r *Runners) CheckForJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tryFetchJobsAndRun()
}

// WaitIdle blocks until the queue has nothing pending or running, polling
// every poll interval.
func (r *Runners) WaitIdle(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		r.CheckForJobs()
		if r.queue.Idle() && r.Running() == 0 {
			r.jobs.Wait()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runJob starts a single job. Once it completes the running count drops
// and the next claimable jobs start.
func (r *Runners) runJob(j *jobqueue.Job) {
	r.running++
	r.jobs.Add(1)
	go func() {
		defer r.jobs.Done()
		defer func() {
			r.mu.Lock()
			r.running--
			r.tryFetchJobsAndRun()
			r.mu.Unlock()
		}()

		task, exists := r.lookup(j.Command)
		if !exists {
			r.queue.PushJobStdout(j.ID, "Task not found: "+j.Command)
			r.queue.ErrorJob(j.ID)
			return
		}

		logger := log.With().Str("job", j.ID).Str("task", task.ID).Logger()
		logger.Info().Str("input", j.Input).Msg("job started")
		if err := task.Fn(j, r.queue, &r.mu); err != nil {
			logger.Error().Err(err).Msg("job failed")
			// A cancelled context wins over the task's own error.
			select {
			case <-j.Ctx.Done():
				_ = r.queue.CancelJob(j.ID)
			default:
				_ = r.queue.ErrorJob(j.ID)
			}
			return
		}
		// no-op when the task already completed the job
		_ = r.queue.CompleteJob(j.ID, "")
		logger.Info().Msg("job finished")
	}()
}

// tryFetchJobsAndRun starts jobs until none can be claimed. Callers hold r.mu.
func (r *Runners) tryFetchJobsAndRun() {
	for r.ctx.Err() == nil {
		job, err := r.queue.ClaimJob()
		if err != nil || job == nil {
			return
		}
		r.runJob(job)
	}
}
