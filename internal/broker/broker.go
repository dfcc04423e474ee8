package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/telemetry"
)

var (
	// ErrNotInitialized is returned when an operation runs before Init.
	ErrNotInitialized = errors.New("broker: not initialized")
	// ErrQueueNotFound is returned for a queue name outside the registry.
	ErrQueueNotFound = errors.New("broker: queue not found")
)

// Options configures the broker.
type Options struct {
	// Queues is the closed set of queue names the broker will accept.
	Queues []string
	// LeaseTimeout bounds how long a dequeued job may stay unacknowledged
	// before it is reclaimed.
	LeaseTimeout time.Duration
	// Retention bounds how long terminal jobs stay queryable.
	Retention time.Duration
}

// EnqueueOptions tweaks a single enqueue call.
type EnqueueOptions struct {
	Delay       time.Duration
	MaxAttempts int
}

// Broker coordinates named, durable job queues in Redis. Each queue keeps a
// waiting list, an active set scored by lease deadline, a delayed set scored
// by run-at, and completed/failed sets scored by finish time for retention.
type Broker struct {
	client    redis.UniversalClient
	queues    map[string]struct{}
	lease     time.Duration
	retention time.Duration

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// New builds a broker over an existing Redis client. Init must be called
// before any queue operation.
func New(client redis.UniversalClient, opts Options) *Broker {
	lease := opts.LeaseTimeout
	if lease == 0 {
		lease = 30 * time.Second
	}
	retention := opts.Retention
	if retention == 0 {
		retention = 24 * time.Hour
	}
	queues := make(map[string]struct{}, len(opts.Queues))
	for _, q := range opts.Queues {
		queues[q] = struct{}{}
	}
	return &Broker{
		client:    client,
		queues:    queues,
		lease:     lease,
		retention: retention,
	}
}

// Init verifies connectivity and marks the broker usable. Repeated calls
// are no-ops.
func (b *Broker) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker: ping redis: %w", err)
	}
	b.initialized = true
	return nil
}

func (b *Broker) ready(queue string) error {
	b.mu.Lock()
	initialized := b.initialized
	b.mu.Unlock()
	if !initialized {
		return ErrNotInitialized
	}
	if queue != "" {
		if _, ok := b.queues[queue]; !ok {
			return fmt.Errorf("%w: %q", ErrQueueNotFound, queue)
		}
	}
	return nil
}

func jobKey(id string) string              { return "jobs:" + id }
func waitingKey(queue string) string       { return "queue:" + queue + ":waiting" }
func activeKey(queue string) string        { return "queue:" + queue + ":active" }
func delayedKey(queue string) string       { return "queue:" + queue + ":delayed" }
func completedKey(queue string) string     { return "queue:" + queue + ":completed" }
func failedTerminalKey(queue string) string { return "queue:" + queue + ":failed" }
func pausedKey(queue string) string        { return "queue:" + queue + ":paused" }

// Enqueue persists a job and places it on the waiting list, or on the
// delayed set when a delay is requested. Returns the new job id.
func (b *Broker) Enqueue(ctx context.Context, queue, name string, payload json.RawMessage, opts *EnqueueOptions) (string, error) {
	if err := b.ready(queue); err != nil {
		return "", err
	}
	id := uuid.New().String()
	now := time.Now()

	maxAttempts := 1
	var delay time.Duration
	if opts != nil {
		delay = opts.Delay
		if opts.MaxAttempts > 0 {
			maxAttempts = opts.MaxAttempts
		}
	}

	status := models.StatusWaiting
	if delay > 0 {
		status = models.StatusDelayed
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(id), map[string]any{
		"queue":        queue,
		"name":         name,
		"payload":      string(payload),
		"status":       string(status),
		"attempts":     0,
		"max_attempts": maxAttempts,
		"enqueued_ms":  now.UnixMilli(),
	})
	if delay > 0 {
		pipe.ZAdd(ctx, delayedKey(queue), redis.Z{Score: float64(now.Add(delay).UnixMilli()), Member: id})
	} else {
		pipe.RPush(ctx, waitingKey(queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("broker: enqueue: %w", err)
	}
	telemetry.JobsEnqueued.WithLabelValues(queue).Inc()
	return id, nil
}

// GetJob fetches a job by id. Returns nil when the job does not exist or
// belongs to a different queue.
func (b *Broker) GetJob(ctx context.Context, queue, id string) (*models.Job, error) {
	if err := b.ready(queue); err != nil {
		return nil, err
	}
	fields, err := b.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: get job: %w", err)
	}
	if len(fields) == 0 || fields["queue"] != queue {
		return nil, nil
	}
	return parseJob(id, fields), nil
}

// GetStatus returns the job's current status, or empty when unknown.
func (b *Broker) GetStatus(ctx context.Context, queue, id string) (models.Status, error) {
	job, err := b.GetJob(ctx, queue, id)
	if err != nil || job == nil {
		return "", err
	}
	return job.Status, nil
}

// GetMetrics returns aggregate per-state job counts for one queue.
func (b *Broker) GetMetrics(ctx context.Context, queue string) (models.QueueMetrics, error) {
	if err := b.ready(queue); err != nil {
		return models.QueueMetrics{}, err
	}
	pipe := b.client.Pipeline()
	waiting := pipe.LLen(ctx, waitingKey(queue))
	active := pipe.ZCard(ctx, activeKey(queue))
	completed := pipe.ZCard(ctx, completedKey(queue))
	failed := pipe.ZCard(ctx, failedTerminalKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	paused := pipe.Exists(ctx, pausedKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return models.QueueMetrics{}, fmt.Errorf("broker: queue metrics: %w", err)
	}
	m := models.QueueMetrics{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
		Paused:    paused.Val() > 0,
	}
	telemetry.QueueDepth.WithLabelValues(queue).Set(float64(m.Waiting))
	return m, nil
}

// Pause stops dequeues from the queue. Jobs already active keep running.
func (b *Broker) Pause(ctx context.Context, queue string) error {
	if err := b.ready(queue); err != nil {
		return err
	}
	return b.client.Set(ctx, pausedKey(queue), "1", 0).Err()
}

// Resume re-enables dequeues from the queue.
func (b *Broker) Resume(ctx context.Context, queue string) error {
	if err := b.ready(queue); err != nil {
		return err
	}
	return b.client.Del(ctx, pausedKey(queue)).Err()
}

// HealthCheck reports whether the backing store answers.
func (b *Broker) HealthCheck(ctx context.Context) bool {
	b.mu.Lock()
	initialized := b.initialized
	closed := b.closed
	b.mu.Unlock()
	if !initialized || closed {
		return false
	}
	return b.client.Ping(ctx).Err() == nil
}

// Shutdown closes the underlying connection if still active. Idempotent.
func (b *Broker) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.initialized = false
	return b.client.Close()
}
