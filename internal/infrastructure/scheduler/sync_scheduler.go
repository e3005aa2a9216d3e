package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusPartial JobStatus = "PARTIAL"
	JobStatusFailed  JobStatus = "FAILED"
)

// TriggerSource records why a job ran
type TriggerSource string

const (
	TriggerInterval TriggerSource = "interval"
	TriggerManual   TriggerSource = "manual"
	TriggerWebhook  TriggerSource = "webhook"
)

// SyncJob is one run of one tenant loop
type SyncJob struct {
	ID          uuid.UUID              `json:"id"`
	Tenant      string                 `json:"tenant"`
	Kind        integration.LedgerKind `json:"kind"`
	Trigger     TriggerSource          `json:"trigger"`
	Status      JobStatus              `json:"status"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`

	// Run results; for inventory runs Succeeded counts pushed quantities
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// NewSyncJob creates a new sync job
func NewSyncJob(tenant string, kind integration.LedgerKind, trigger TriggerSource) *SyncJob {
	return &SyncJob{
		ID:      uuid.New(),
		Tenant:  tenant,
		Kind:    kind,
		Trigger: trigger,
		Status:  JobStatusPending,
	}
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the run counts and derives the status
func (j *SyncJob) Complete(succeeded, skipped, failed int) {
	now := time.Now()
	j.Succeeded = succeeded
	j.Skipped = skipped
	j.Failed = failed
	j.CompletedAt = &now

	if failed == 0 {
		j.Status = JobStatusSuccess
	} else if succeeded > 0 {
		j.Status = JobStatusPartial
	} else {
		j.Status = JobStatusFailed
	}
}

// Fail marks the job as failed, keeping any counts already recorded
func (j *SyncJob) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// Duration is the wall time of a finished job
func (j *SyncJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// SyncExecutor executes sync jobs
type SyncExecutor interface {
	Execute(ctx context.Context, job *SyncJob) error
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// OrderInterval is the default order loop interval; tenants may override it
	OrderInterval time.Duration
	// InventoryInterval is the default inventory loop interval
	InventoryInterval time.Duration
	// Kinds selects the loops to run; empty means orders and inventory
	Kinds []integration.LedgerKind
	// RunOnStart runs every loop once immediately after Start
	RunOnStart bool
	// HistorySize bounds the in-memory job history
	HistorySize int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		OrderInterval:     5 * time.Minute,
		InventoryInterval: 30 * time.Minute,
		RunOnStart:        true,
		HistorySize:       100,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.OrderInterval <= 0 || c.InventoryInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.HistorySize <= 0 {
		return ErrInvalidConfig
	}
	for _, k := range c.Kinds {
		if !k.IsValid() {
			return ErrInvalidConfig
		}
	}
	return nil
}

func (c *SyncSchedulerConfig) kinds() []integration.LedgerKind {
	if len(c.Kinds) == 0 {
		return []integration.LedgerKind{integration.LedgerKindOrder, integration.LedgerKindInventory}
	}
	return c.Kinds
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

type loopKey struct {
	tenant string
	kind   integration.LedgerKind
}

// loop is the state of one (tenant, kind) polling loop
type loop struct {
	key      loopKey
	interval time.Duration
	trigger  chan TriggerSource
	running  atomic.Bool
}

// SyncScheduler runs one ticker loop per tenant per kind. Loops of different
// tenants run concurrently; a loop never overlaps with itself.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncExecutor
	configs  integration.StoreConfigProvider
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	loops     map[loopKey]*loop

	// Job history for monitoring (in-memory, limited size)
	historyMu  sync.RWMutex
	history    []*SyncJob
	maxHistory int
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor SyncExecutor, configs integration.StoreConfigProvider, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncScheduler{
		config:     config,
		executor:   executor,
		configs:    configs,
		logger:     logger.Named("scheduler"),
		loops:      make(map[loopKey]*loop),
		history:    make([]*SyncJob, 0, config.HistorySize),
		maxHistory: config.HistorySize,
	}, nil
}

// Start starts one loop per tenant and kind
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loops = make(map[loopKey]*loop)

	for _, tenant := range s.configs.Tenants() {
		cfg, err := s.configs.Get(tenant)
		if err != nil {
			cancel()
			return err
		}
		for _, kind := range s.config.kinds() {
			l := &loop{
				key:      loopKey{tenant: tenant, kind: kind},
				interval: s.intervalFor(cfg, kind),
				trigger:  make(chan TriggerSource, 1),
			}
			s.loops[l.key] = l
			s.wg.Add(1)
			go s.runLoop(ctx, l)
		}
	}
	s.isRunning = true

	s.logger.Info("Sync scheduler started",
		zap.Int("loops", len(s.loops)),
		zap.Duration("order_interval", s.config.OrderInterval),
		zap.Duration("inventory_interval", s.config.InventoryInterval),
	)
	return nil
}

// Stop gracefully stops every loop, waiting for in-flight runs
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Trigger nudges a loop to run now. Triggers arriving while a run is queued
// are coalesced into it.
func (s *SyncScheduler) Trigger(tenant string, kind integration.LedgerKind, source TriggerSource) error {
	s.mu.Lock()
	running := s.isRunning
	l, ok := s.loops[loopKey{tenant: tenant, kind: kind}]
	s.mu.Unlock()

	if !running {
		return ErrSchedulerNotRunning
	}
	if !ok {
		return ErrUnknownLoop
	}

	select {
	case l.trigger <- source:
		s.logger.Debug("Sync triggered",
			zap.String("tenant", tenant),
			zap.String("kind", kind.String()),
			zap.String("trigger", string(source)),
		)
	default:
	}
	return nil
}

// IsSyncing reports whether the loop is currently running a job
func (s *SyncScheduler) IsSyncing(tenant string, kind integration.LedgerKind) bool {
	s.mu.Lock()
	l, ok := s.loops[loopKey{tenant: tenant, kind: kind}]
	s.mu.Unlock()
	return ok && l.running.Load()
}

func (s *SyncScheduler) intervalFor(cfg *integration.StoreConfig, kind integration.LedgerKind) time.Duration {
	if kind == integration.LedgerKindInventory {
		if cfg.InventoryInterval > 0 {
			return cfg.InventoryInterval
		}
		return s.config.InventoryInterval
	}
	if cfg.OrderInterval > 0 {
		return cfg.OrderInterval
	}
	return s.config.OrderInterval
}

// runLoop drives one loop until ctx is cancelled
func (s *SyncScheduler) runLoop(ctx context.Context, l *loop) {
	defer s.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.runOnce(ctx, l, TriggerInterval)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, l, TriggerInterval)
		case source := <-l.trigger:
			s.runOnce(ctx, l, source)
		}
	}
}

// runOnce executes a single job unless the loop is already busy
func (s *SyncScheduler) runOnce(ctx context.Context, l *loop, source TriggerSource) {
	if ctx.Err() != nil {
		return
	}
	if !l.running.CompareAndSwap(false, true) {
		s.logger.Debug("Skipping overlapping run",
			zap.String("tenant", l.key.tenant),
			zap.String("kind", l.key.kind.String()),
		)
		return
	}
	defer l.running.Store(false)

	job := NewSyncJob(l.key.tenant, l.key.kind, source)
	job.Start()

	err := s.executor.Execute(ctx, job)
	if err != nil {
		job.Fail(err.Error())
		s.logger.Error("Sync job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("tenant", job.Tenant),
			zap.String("kind", job.Kind.String()),
			zap.String("trigger", string(job.Trigger)),
			zap.Error(err),
		)
	} else {
		if job.CompletedAt == nil {
			job.Complete(0, 0, 0)
		}
		s.logger.Info("Sync job completed",
			zap.String("job_id", job.ID.String()),
			zap.String("tenant", job.Tenant),
			zap.String("kind", job.Kind.String()),
			zap.String("trigger", string(job.Trigger)),
			zap.String("status", string(job.Status)),
			zap.Int("succeeded", job.Succeeded),
			zap.Int("skipped", job.Skipped),
			zap.Int("failed", job.Failed),
			zap.Duration("duration", job.Duration()),
		)
	}

	s.addToHistory(job)
}

// addToHistory adds a finished job to history
func (s *SyncScheduler) addToHistory(job *SyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	// Add to front
	s.history = append([]*SyncJob{job}, s.history...)

	// Trim if over limit
	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
}

// GetJobHistory returns recent job history, newest first
func (s *SyncScheduler) GetJobHistory(limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	result := make([]*SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByTenant returns job history for a specific tenant
func (s *SyncScheduler) GetJobHistoryByTenant(tenant string, limit int) []*SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit < 0 {
		limit = 0
	}
	result := make([]*SyncJob, 0, limit)
	for _, job := range s.history {
		if job.Tenant == tenant {
			result = append(result, job)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result
}

// Loops lists the scheduled tenant/kind pairs with their intervals
func (s *SyncScheduler) Loops() []LoopInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LoopInfo, 0, len(s.loops))
	for k, l := range s.loops {
		out = append(out, LoopInfo{Tenant: k.tenant, Kind: k.kind, Interval: l.interval, Running: l.running.Load()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tenant != out[j].Tenant {
			return out[i].Tenant < out[j].Tenant
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// LoopInfo describes one scheduled loop
type LoopInfo struct {
	Tenant   string                 `json:"tenant"`
	Kind     integration.LedgerKind `json:"kind"`
	Interval time.Duration          `json:"interval"`
	Running  bool                   `json:"running"`
}
