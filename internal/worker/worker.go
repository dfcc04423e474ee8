package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/broker"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/ratelimit"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/telemetry"
)

// Handler executes one job and returns its serialized result.
type Handler func(ctx context.Context, job *models.Job) (json.RawMessage, error)

// ContextExtractor pulls job-type-specific fields out of a job for event
// logging. Both arguments may be inspected; result is nil on failure.
type ContextExtractor func(job *models.Job, result json.RawMessage) map[string]any

// Options configures one worker.
type Options struct {
	Name        string
	Queue       string
	Concurrency int
	// Limiter, when set, caps job starts against external-service quotas.
	Limiter        *ratelimit.TokenBucket
	PollInterval   time.Duration
	JobTimeout     time.Duration
	LeaseTimeout   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Handler        Handler
	Extract        ContextExtractor
}

// Worker is a concurrency-bounded consumer of exactly one queue. Failures
// in one job never affect others in flight.
type Worker struct {
	opts    Options
	broker  *broker.Broker
	log     *slog.Logger
	metrics *workerMetrics

	mu     sync.Mutex
	paused bool

	stopOnce sync.Once
	stop     chan struct{}
	pollDone chan struct{}
	inflight sync.WaitGroup
}

// New builds a worker. Run must be called to start consuming.
func New(b *broker.Broker, log *slog.Logger, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 2 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Minute
	}
	if opts.Name == "" {
		opts.Name = opts.Queue
	}
	return &Worker{
		opts:     opts,
		broker:   b,
		log:      log.With(slog.String("worker", opts.Name), slog.String("queue", opts.Queue)),
		metrics:  newWorkerMetrics(opts.Name),
		stop:     make(chan struct{}),
		pollDone: make(chan struct{}),
	}
}

// Run starts the polling loop in the background.
func (w *Worker) Run(ctx context.Context) {
	go w.poll(ctx)
}

func (w *Worker) poll(ctx context.Context) {
	defer close(w.pollDone)

	// Semaphore bounding concurrently executing jobs.
	sem := make(chan struct{}, w.opts.Concurrency)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if w.Paused() {
			w.sleep(ctx, w.opts.PollInterval)
			continue
		}

		w.housekeep(ctx)

		select {
		case sem <- struct{}{}:
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}

		if w.opts.Limiter != nil {
			allowed, _, err := w.opts.Limiter.Allow(ctx, "rl:queue:"+w.opts.Queue)
			switch {
			case err != nil:
				// Fail open: an unreachable limiter must not stall the queue.
				w.log.Warn("rate limit check failed", slog.String("error", err.Error()))
			case !allowed:
				<-sem
				telemetry.RateLimitDeferred.WithLabelValues(w.opts.Queue).Inc()
				w.sleep(ctx, w.opts.PollInterval)
				continue
			}
		}

		job, err := w.broker.Dequeue(ctx, w.opts.Queue)
		if err != nil || job == nil {
			<-sem
			if err != nil {
				w.log.Warn("dequeue failed", slog.String("error", err.Error()))
			}
			w.sleep(ctx, w.opts.PollInterval)
			continue
		}

		w.inflight.Add(1)
		go func(job *models.Job) {
			defer w.inflight.Done()
			defer func() { <-sem }()
			w.process(ctx, job)
		}(job)
	}
}

// housekeep promotes due delayed jobs, reclaims expired leases, and sweeps
// terminal jobs past retention.
func (w *Worker) housekeep(ctx context.Context) {
	now := time.Now()
	_, _ = w.broker.PromoteDelayed(ctx, w.opts.Queue, now, 100)
	if reclaimed, _ := w.broker.ReclaimExpired(ctx, w.opts.Queue, now, 100); len(reclaimed) > 0 {
		w.log.Warn("reclaimed expired leases", slog.Int("count", len(reclaimed)))
	}
	_, _ = w.broker.SweepTerminal(ctx, w.opts.Queue, now)
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	telemetry.InFlight.WithLabelValues(w.opts.Queue).Inc()
	defer telemetry.InFlight.WithLabelValues(w.opts.Queue).Dec()

	// The lease must outlive the handler; otherwise a slow job would be
	// reclaimed and executed twice.
	if w.opts.LeaseTimeout > 0 && w.opts.JobTimeout > w.opts.LeaseTimeout {
		_ = w.broker.ExtendLease(ctx, w.opts.Queue, job.ID, w.opts.JobTimeout+time.Second)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	// Outcomes are acknowledged on a detached context. Once the handler has
	// run, a canceled run context must not lose the result and force a
	// duplicate execution after the lease expires.
	ackCtx := context.WithoutCancel(ctx)

	start := time.Now()
	result, err := w.invoke(jobCtx, job)
	elapsed := time.Since(start)

	if err == nil {
		if cerr := w.broker.Complete(ackCtx, job, result); cerr != nil {
			w.log.Error("failed to ack completed job", slog.String("job_id", job.ID), slog.String("error", cerr.Error()))
		}
		w.metrics.recordSuccess(elapsed)
		telemetry.JobsCompleted.WithLabelValues(w.opts.Queue).Inc()
		telemetry.JobDuration.WithLabelValues(w.opts.Queue).Observe(elapsed.Seconds())
		w.fireEvent("job completed", slog.LevelInfo, job, result, elapsed, nil)
		return
	}

	w.metrics.recordFailure(err)

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > w.opts.MaxAttempts {
		maxAttempts = w.opts.MaxAttempts
	}
	if Retryable(err) && job.AttemptsMade < maxAttempts {
		retryAt := time.Now().Add(backoffWithJitter(w.opts.BackoffInitial, w.opts.BackoffMax, job.AttemptsMade))
		if ferr := w.broker.Fail(ackCtx, job, err.Error(), &retryAt); ferr != nil {
			w.log.Error("failed to reschedule job", slog.String("job_id", job.ID), slog.String("error", ferr.Error()))
		}
		telemetry.JobsRetried.WithLabelValues(w.opts.Queue).Inc()
		w.fireEvent("job attempt failed, retry scheduled", slog.LevelWarn, job, nil, elapsed, err)
		return
	}

	if ferr := w.broker.Fail(ackCtx, job, err.Error(), nil); ferr != nil {
		w.log.Error("failed to record job failure", slog.String("job_id", job.ID), slog.String("error", ferr.Error()))
	}
	telemetry.JobsFailed.WithLabelValues(w.opts.Queue).Inc()
	w.fireEvent("job failed", slog.LevelError, job, nil, elapsed, err)
}

// invoke runs the handler, converting a panic into an ordinary error so a
// misbehaving handler never crashes the process.
func (w *Worker) invoke(ctx context.Context, job *models.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.opts.Handler(ctx, job)
}

// fireEvent emits the standard completion/failure event, enriched with the
// caller-supplied context extraction. Extraction is best-effort.
func (w *Worker) fireEvent(msg string, level slog.Level, job *models.Job, result json.RawMessage, elapsed time.Duration, jobErr error) {
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("job_name", job.Name),
		slog.Int("attempt", job.AttemptsMade),
		slog.Duration("duration", elapsed),
	}
	if jobErr != nil {
		attrs = append(attrs, slog.String("error", jobErr.Error()))
	}
	if w.opts.Extract != nil {
		for k, v := range w.opts.Extract(job, result) {
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	w.log.Log(context.Background(), level, msg, attrs...)
}

// Pause stops new dequeues. In-flight jobs run to completion.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
	w.metrics.setRunning(false)
}

// Resume re-enables dequeues.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	w.metrics.setRunning(true)
}

// Paused reports whether the worker is currently paused.
func (w *Worker) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Metrics returns a snapshot of the worker's counters.
func (w *Worker) Metrics() models.WorkerMetrics {
	return w.metrics.snapshot()
}

// Close stops polling and waits for in-flight jobs until ctx expires.
func (w *Worker) Close(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.metrics.setRunning(false)

	done := make(chan struct{})
	go func() {
		<-w.pollDone
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s: in-flight jobs did not finish before deadline: %w", w.opts.Name, ctx.Err())
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.stop:
	case <-ctx.Done():
	}
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}
