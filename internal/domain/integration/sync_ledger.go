package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Ledger enums
// ---------------------------------------------------------------------------

// LedgerKind is the sync kind a ledger entry belongs to.
type LedgerKind string

const (
	LedgerKindOrder     LedgerKind = "order"
	LedgerKindInventory LedgerKind = "inventory"
)

// IsValid returns true if the kind is known
func (k LedgerKind) IsValid() bool {
	switch k {
	case LedgerKindOrder, LedgerKindInventory:
		return true
	default:
		return false
	}
}

// String returns the string representation of LedgerKind
func (k LedgerKind) String() string {
	return string(k)
}

// LedgerStatus is the state of one sync attempt.
type LedgerStatus string

const (
	LedgerStatusPending LedgerStatus = "pending"
	LedgerStatusSuccess LedgerStatus = "success"
	LedgerStatusSkipped LedgerStatus = "skipped"
	LedgerStatusFailed  LedgerStatus = "failed"
)

// IsValid returns true if the status is known
func (s LedgerStatus) IsValid() bool {
	switch s {
	case LedgerStatusPending, LedgerStatusSuccess, LedgerStatusSkipped, LedgerStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for every status except pending
func (s LedgerStatus) IsTerminal() bool {
	return s.IsValid() && s != LedgerStatusPending
}

// IsDone returns true when the key must never be replicated again
func (s LedgerStatus) IsDone() bool {
	return s == LedgerStatusSuccess || s == LedgerStatusSkipped
}

// String returns the string representation of LedgerStatus
func (s LedgerStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// LedgerEntry
// ---------------------------------------------------------------------------

// LedgerEntry is the durable record of a sync attempt for one idempotency key.
type LedgerEntry struct {
	ID             uuid.UUID
	Tenant         string
	IdempotencyKey string
	Kind           LedgerKind
	Status         LedgerStatus
	AttemptCount   int
	LastError      string
	// ErrorClass is the class of LastError on a failed entry.
	ErrorClass ErrorClass
	// ExternalRef is the ERP-assigned order id once replicated.
	ExternalRef string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// IsStalePending reports a pending entry whose attempt started at least
// staleAfter ago, i.e. a crashed run.
func (e *LedgerEntry) IsStalePending(now time.Time, staleAfter time.Duration) bool {
	return e.Status == LedgerStatusPending && !now.Before(e.StartedAt.Add(staleAfter))
}

// Reclaimable reports whether a new attempt may take over this entry: a
// crashed pending attempt, or a failure whose class may clear on its own.
func (e *LedgerEntry) Reclaimable(now time.Time, staleAfter time.Duration) bool {
	return e.IsStalePending(now, staleAfter) || e.NeedsRetry()
}

// NeedsRetry reports a failed entry that a later run retries automatically.
func (e *LedgerEntry) NeedsRetry() bool {
	return e.Status == LedgerStatusFailed && e.ErrorClass.Retryable()
}

// NeedsReview reports a failed entry left for manual intervention.
func (e *LedgerEntry) NeedsReview() bool {
	return e.Status == LedgerStatusFailed && !e.ErrorClass.Retryable()
}

// Settled reports an entry no later run will act on without an operator.
func (e *LedgerEntry) Settled() bool {
	return e.Status.IsDone() || e.NeedsReview()
}

// BeginResult is the outcome of SyncLedger.Begin.
type BeginResult struct {
	// Entry is the caller's pending attempt when Acquired, otherwise the
	// existing row that blocked it.
	Entry *LedgerEntry
	// Acquired is true when the caller owns a fresh pending attempt.
	Acquired bool
	// Reclaimed is true when the attempt took over a failed or stale row.
	Reclaimed bool
	// PreviousStatus is the status the reclaimed row had.
	PreviousStatus LedgerStatus
}

// CompletionDetail is written with a terminal status.
type CompletionDetail struct {
	ExternalRef string
	Error       string
	ErrorClass  ErrorClass
}

// LedgerFilter narrows List.
type LedgerFilter struct {
	Tenant string
	Kind   LedgerKind
	Status LedgerStatus
	Since  time.Time
	Limit  int
}

// ValidateLedgerKey checks a (tenant, key, kind) tuple before it reaches storage.
func ValidateLedgerKey(tenant, key string, kind LedgerKind) error {
	if strings.TrimSpace(tenant) == "" || strings.TrimSpace(key) == "" {
		return ErrLedgerInvalidKey
	}
	if !strings.HasPrefix(key, tenant+":") {
		return ErrLedgerInvalidKey
	}
	if !kind.IsValid() {
		return ErrLedgerInvalidKind
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ledger ports
// ---------------------------------------------------------------------------

// LedgerReader defines read operations on the ledger.
type LedgerReader interface {
	// FindByKey returns ErrLedgerEntryNotFound when the key has no entry.
	FindByKey(ctx context.Context, tenant, key string, kind LedgerKind) (*LedgerEntry, error)
	List(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// LedgerWriter defines the transactional mutations of the ledger.
// Begin is an atomic read-modify-write per key: of any number of concurrent
// callers for the same key, at most one gets Acquired.
type LedgerWriter interface {
	Begin(ctx context.Context, tenant, key string, kind LedgerKind, staleAfter time.Duration) (*BeginResult, error)
	Complete(ctx context.Context, id uuid.UUID, status LedgerStatus, detail CompletionDetail) error
}

// SyncLedger combines reader and writer.
type SyncLedger interface {
	LedgerReader
	LedgerWriter
}

// ---------------------------------------------------------------------------
// Cursor hints
// ---------------------------------------------------------------------------

// SyncCursorStore keeps the per-tenant fetch cursor. It is an optimization
// hint only; correctness comes from the ledger.
type SyncCursorStore interface {
	// Get returns the zero time when no cursor exists.
	Get(ctx context.Context, tenant string, kind LedgerKind) (time.Time, error)
	// Advance moves the cursor forward; earlier values are ignored.
	Advance(ctx context.Context, tenant string, kind LedgerKind, to time.Time) error
}
