package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/semaphore"

	"formrelay/internal/constants"
	"formrelay/internal/lock"
)

// RunnerOptions tune the worker loop.
type RunnerOptions struct {
	Interval       time.Duration
	WorkerCount    int
	BatchSize      int
	RetryBaseDelay time.Duration
	StaleTimeout   time.Duration
}

func (o *RunnerOptions) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.WorkerCount <= 0 {
		o.WorkerCount = 10
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 30 * time.Second
	}
	if o.StaleTimeout <= 0 {
		o.StaleTimeout = 5 * time.Minute
	}
}

// Runner drains due jobs from the store and executes them on a bounded
// worker pool. One instance at a time holds the runner lock; others idle.
type Runner struct {
	repo     JobRepository
	registry *Registry
	locks    lock.DistributedLockManager
	instance string
	opts     RunnerOptions
	results  chan Result
}

func NewRunner(repo JobRepository, registry *Registry, locks lock.DistributedLockManager, instance string, opts RunnerOptions) *Runner {
	opts.applyDefaults()
	return &Runner{
		repo:     repo,
		registry: registry,
		locks:    locks,
		instance: instance,
		opts:     opts,
		results:  make(chan Result, 1000),
	}
}

// Start blocks until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.locks.Acquire(constants.RunnerLock); err != nil {
		return err
	}
	defer r.locks.Release(constants.RunnerLock)

	if err := r.repo.UnlockStale(ctx, r.opts.StaleTimeout); err != nil {
		return fmt.Errorf("unlock stale jobs: %w", err)
	}

	go r.processResults(ctx)
	go r.scheduleRetries(ctx)

	sem := semaphore.NewWeighted(int64(r.opts.WorkerCount))
	var wg sync.WaitGroup

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			r.processDueJobs(ctx, sem, &wg)
		}
	}
}

func (r *Runner) processDueJobs(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup) {
	jobs, err := r.repo.FetchDue(ctx, r.opts.BatchSize, time.Now())
	if err != nil {
		log.Println("runner: fetch error:", err)
		return
	}

	for _, job := range jobs {
		claimed, err := r.repo.Claim(ctx, job.ID, r.instance)
		if err != nil {
			log.Printf("runner: claim job %d: %v", job.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go r.runJob(ctx, sem, wg, job)
	}
}

func (r *Runner) runJob(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("runner: panic in job %d: %v", job.ID, rec)
			r.results <- Result{
				JobID:       job.ID,
				Name:        job.Name,
				Err:         fmt.Errorf("panic: %v", rec),
				Attempts:    job.Attempts + 1,
				MaxAttempts: job.MaxAttempts,
			}
		}
		sem.Release(1)
		wg.Done()
	}()

	handler, err := r.registry.Lookup(job.Name)
	if err != nil {
		r.results <- Result{JobID: job.ID, Name: job.Name, Err: err, Attempts: job.Attempts + 1, MaxAttempts: job.MaxAttempts}
		return
	}

	var args []any
	if err := json.Unmarshal(job.Payload, &args); err != nil {
		r.results <- Result{JobID: job.ID, Name: job.Name, Err: fmt.Errorf("invalid payload: %w", err), Attempts: job.Attempts + 1, MaxAttempts: job.MaxAttempts}
		return
	}

	runErr := handler.Run(ctx, args)
	r.results <- Result{
		JobID:       job.ID,
		Name:        job.Name,
		Args:        args,
		Err:         runErr,
		Attempts:    job.Attempts + 1,
		MaxAttempts: job.MaxAttempts,
	}
}

// processResults is the single writer of job status. A failure that used up
// the last attempt marks the job dead and fires the handler's exhaustion
// hook, exactly once, because MarkFailure only matches rows still in
// processing.
func (r *Runner) processResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-r.results:
			r.handleResult(ctx, res)
		}
	}
}

func (r *Runner) handleResult(ctx context.Context, res Result) {
	if res.Err == nil {
		if err := r.repo.MarkSuccess(ctx, res.JobID); err != nil {
			log.Printf("runner: mark success job %d: %v", res.JobID, err)
		}
		return
	}

	status, err := r.repo.MarkFailure(ctx, res.JobID, res.Err.Error())
	if err != nil {
		log.Printf("runner: mark failure job %d: %v", res.JobID, err)
		return
	}
	if status != StatusDead {
		return
	}

	handler, err := r.registry.Lookup(res.Name)
	if err != nil || handler.OnExhausted == nil {
		log.Printf("runner: job %d dead after %d attempts, no exhaustion hook", res.JobID, res.Attempts)
		return
	}

	// The hook contains its own errors; a panic here must not take down the
	// result processor.
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("runner: panic in exhaustion hook for job %d: %v", res.JobID, rec)
			}
		}()
		handler.OnExhausted(ctx, Message{
			JobID:     res.JobID,
			Name:      res.Name,
			Args:      res.Args,
			LastError: res.Err.Error(),
			Attempts:  res.Attempts,
		})
	}()
}

func (r *Runner) scheduleRetries(ctx context.Context) {
	if err := r.locks.Acquire(constants.RetryLock); err != nil {
		return
	}
	defer r.locks.Release(constants.RetryLock)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.repo.ScheduleRetries(ctx, r.opts.RetryBaseDelay); err != nil {
				log.Println("runner: schedule retries:", err)
			}
		}
	}
}
