package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/blob"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/broker"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/config"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/integrations"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/notify"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/ratelimit"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/replay"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("worker manager: already started")
	// ErrWorkerNotFound is returned for an unregistered worker name.
	ErrWorkerNotFound = errors.New("worker manager: worker not found")
)

// RecordStore is the record-store surface workers consume.
type RecordStore interface {
	FindBugReport(ctx context.Context, id string) (models.BugReport, error)
	UpdateReplayManifestURL(ctx context.Context, id, url string) error
	UpdateScreenshotURL(ctx context.Context, id, url string) error
	UpdateThumbnailURL(ctx context.Context, id, url string) error
	UpdateExternalIntegrationRef(ctx context.Context, id, externalID, externalURL string) error
}

// Deps are the shared external collaborators for all workers.
type Deps struct {
	Broker       *broker.Broker
	Records      RecordStore
	Blobs        blob.Store
	Integrations *integrations.Registry
	Notifier     notify.Sender
	// Redis backs the per-queue rate limiters.
	Redis redis.UniversalClient
	Log   *slog.Logger
}

// Manager supervises the full set of worker types, applying enable and
// concurrency configuration and aggregating per-worker metrics.
type Manager struct {
	cfg  config.Config
	deps Deps

	mu        sync.Mutex
	started   bool
	shutdown  bool
	startedAt time.Time
	workers   map[string]*Worker
}

// NewManager builds a manager. Start launches the configured workers.
func NewManager(cfg config.Config, deps Deps) *Manager {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 15 * time.Second
	}
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		workers: make(map[string]*Worker),
	}
}

// workerKind is one entry in the closed set of worker types. Each kind has
// a compile-time-known queue, payload shape, and processing function.
type workerKind struct {
	name    string
	queue   string
	cfg     config.WorkerConfig
	handler Handler
	extract ContextExtractor
}

func (m *Manager) kinds() []workerKind {
	screenshot := &ScreenshotHandler{Blobs: m.deps.Blobs, Records: m.deps.Records}
	pipeline := replay.NewPipeline(m.deps.Blobs, m.deps.Records, m.deps.Log, m.cfg.ChunkDuration)
	replayH := &ReplayHandler{Pipeline: pipeline, Progress: m.deps.Broker}
	integration := &IntegrationHandler{Registry: m.deps.Integrations, Records: m.deps.Records}
	notification := &NotificationHandler{Sender: m.deps.Notifier}

	return []workerKind{
		{name: models.QueueScreenshot, queue: models.QueueScreenshot, cfg: m.cfg.Screenshot, handler: screenshot.Handle, extract: reportContext},
		{name: models.QueueReplay, queue: models.QueueReplay, cfg: m.cfg.Replay, handler: replayH.Handle, extract: reportContext},
		{name: models.QueueIntegration, queue: models.QueueIntegration, cfg: m.cfg.Integration, handler: integration.Handle, extract: reportContext},
		{name: models.QueueNotification, queue: models.QueueNotification, cfg: m.cfg.Notification, handler: notification.Handle, extract: reportContext},
	}
}

// Start instantiates and launches every enabled worker type. Calling Start
// twice fails with ErrAlreadyStarted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}

	for _, kind := range m.kinds() {
		if !kind.cfg.Enabled {
			m.deps.Log.Info("worker disabled", slog.String("worker", kind.name))
			continue
		}
		var limiter *ratelimit.TokenBucket
		if kind.cfg.RateLimitMax > 0 && m.deps.Redis != nil {
			limiter = ratelimit.NewWindowLimiter(m.deps.Redis, kind.cfg.RateLimitMax, kind.cfg.RateLimitWindow)
		}
		w := New(m.deps.Broker, m.deps.Log, Options{
			Name:           kind.name,
			Queue:          kind.queue,
			Concurrency:    kind.cfg.Concurrency,
			Limiter:        limiter,
			PollInterval:   m.cfg.PollInterval,
			JobTimeout:     m.cfg.JobTimeout,
			LeaseTimeout:   m.cfg.LeaseTimeout,
			MaxAttempts:    m.cfg.MaxAttempts,
			BackoffInitial: m.cfg.BackoffInitial,
			BackoffMax:     m.cfg.BackoffMax,
			Handler:        kind.handler,
			Extract:        kind.extract,
		})
		w.Run(ctx)
		m.workers[kind.name] = w
		m.deps.Log.Info("worker started",
			slog.String("worker", kind.name),
			slog.Int("concurrency", kind.cfg.Concurrency),
		)
	}

	m.started = true
	m.startedAt = time.Now()
	return nil
}

// GetMetrics aggregates all worker snapshots.
func (m *Manager) GetMetrics() models.ManagerMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := models.ManagerMetrics{
		TotalWorkers: len(m.workers),
		Workers:      make([]models.WorkerMetrics, 0, len(m.workers)),
	}
	if m.started {
		out.Uptime = time.Since(m.startedAt)
	}
	for _, w := range m.workers {
		snap := w.Metrics()
		if snap.IsRunning {
			out.RunningWorkers++
		}
		out.Workers = append(out.Workers, snap)
	}
	return out
}

// GetWorkerMetrics returns one worker's snapshot, or nil if unregistered.
func (m *Manager) GetWorkerMetrics(name string) *models.WorkerMetrics {
	m.mu.Lock()
	w, ok := m.workers[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	snap := w.Metrics()
	return &snap
}

// PauseWorker stops a worker's dequeues.
func (m *Manager) PauseWorker(name string) error {
	m.mu.Lock()
	w, ok := m.workers[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	w.Pause()
	return nil
}

// ResumeWorker restarts a paused worker's dequeues.
func (m *Manager) ResumeWorker(name string) error {
	m.mu.Lock()
	w, ok := m.workers[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	w.Resume()
	return nil
}

// HealthCheck reports healthy iff every registered worker is running.
// Zero registered workers is vacuously healthy.
func (m *Manager) HealthCheck() models.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := models.HealthStatus{
		Healthy: true,
		Workers: make(map[string]bool, len(m.workers)),
	}
	for name, w := range m.workers {
		running := w.metrics.running()
		status.Workers[name] = running
		if !running {
			status.Healthy = false
		}
	}
	return status
}

// Shutdown closes every worker, allowing in-flight jobs a bounded grace
// period. Per-worker close failures are logged, not fatal. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	workers := make(map[string]*Worker, len(m.workers))
	for name, w := range m.workers {
		workers[name] = w
	}
	m.mu.Unlock()

	graceCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownGrace)
	defer cancel()

	for name, w := range workers {
		if err := w.Close(graceCtx); err != nil {
			m.deps.Log.Error("worker close failed",
				slog.String("worker", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.deps.Log.Info("worker stopped", slog.String("worker", name))
	}
}
