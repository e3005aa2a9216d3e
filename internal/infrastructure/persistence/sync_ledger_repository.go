package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/persistence/models"
)

const (
	defaultLedgerListLimit = 50
	maxLedgerListLimit     = 1000
)

// ErrInvalidStaleThreshold is returned by Begin for a non-positive stale threshold.
var ErrInvalidStaleThreshold = errors.New("persistence: stale threshold must be positive")

// GormSyncLedgerRepository implements integration.SyncLedger using GORM.
// Begin relies only on a unique index and a conditional UPDATE, so it behaves
// the same on Postgres and SQLite and across processes.
type GormSyncLedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSyncLedgerRepository creates a new GormSyncLedgerRepository
func NewGormSyncLedgerRepository(db *gorm.DB) *GormSyncLedgerRepository {
	return &GormSyncLedgerRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy that reads the current time from now.
func (r *GormSyncLedgerRepository) WithClock(now func() time.Time) *GormSyncLedgerRepository {
	return &GormSyncLedgerRepository{db: r.db, now: now}
}

// ---------------------------------------------------------------------------
// LedgerReader implementation
// ---------------------------------------------------------------------------

// FindByKey returns the entry of (tenant, key, kind)
func (r *GormSyncLedgerRepository) FindByKey(ctx context.Context, tenant, key string, kind integration.LedgerKind) (*integration.LedgerEntry, error) {
	if err := integration.ValidateLedgerKey(tenant, key, kind); err != nil {
		return nil, err
	}
	model, err := r.findModel(ctx, tenant, key, kind)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns entries newest first
func (r *GormSyncLedgerRepository) List(ctx context.Context, filter integration.LedgerFilter) ([]integration.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncLedgerModel{})
	if filter.Tenant != "" {
		query = query.Scopes(TenantScope(filter.Tenant))
	}
	if filter.Kind != "" {
		if !filter.Kind.IsValid() {
			return nil, integration.ErrLedgerInvalidKind
		}
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLedgerListLimit
	}
	if limit > maxLedgerListLimit {
		limit = maxLedgerListLimit
	}

	var rows []models.SyncLedgerModel
	if err := query.Order("created_at DESC").Order("idempotency_key DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]integration.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// LedgerWriter implementation
// ---------------------------------------------------------------------------

// Begin claims (tenant, key, kind) for a new attempt. A new key is inserted as
// pending. An existing entry that failed with a retryable class, or a pending
// entry whose attempt started staleAfter ago or more, is taken over with a compare-and-swap on
// (status, attempt_count); exactly one concurrent caller wins. Any other
// existing entry is returned with Acquired false.
func (r *GormSyncLedgerRepository) Begin(ctx context.Context, tenant, key string, kind integration.LedgerKind, staleAfter time.Duration) (*integration.BeginResult, error) {
	if err := integration.ValidateLedgerKey(tenant, key, kind); err != nil {
		return nil, err
	}
	if staleAfter <= 0 {
		return nil, ErrInvalidStaleThreshold
	}

	now := r.now()
	model := models.SyncLedgerModel{
		ID:             uuid.New(),
		Tenant:         tenant,
		IdempotencyKey: key,
		Kind:           kind,
		Status:         integration.LedgerStatusPending,
		AttemptCount:   1,
		CreatedAt:      now,
		StartedAt:      now,
		UpdatedAt:      now,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant"}, {Name: "idempotency_key"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return nil, fmt.Errorf("persistence: insert ledger entry: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return &integration.BeginResult{Entry: model.ToDomain(), Acquired: true}, nil
	}

	existing, err := r.findModel(ctx, tenant, key, kind)
	if err != nil {
		return nil, err
	}
	entry := existing.ToDomain()
	if !entry.Reclaimable(now, staleAfter) {
		return &integration.BeginResult{Entry: entry}, nil
	}

	swap := r.db.WithContext(ctx).
		Model(&models.SyncLedgerModel{}).
		Where("id = ? AND status = ? AND attempt_count = ?", existing.ID, existing.Status, existing.AttemptCount).
		Updates(map[string]any{
			"status":        integration.LedgerStatusPending,
			"attempt_count": existing.AttemptCount + 1,
			"started_at":    now,
			"completed_at":  nil,
			"updated_at":    now,
		})
	if swap.Error != nil {
		return nil, fmt.Errorf("persistence: reclaim ledger entry: %w", swap.Error)
	}
	if swap.RowsAffected != 1 {
		// Another caller reclaimed it first.
		current, err := r.findModel(ctx, tenant, key, kind)
		if err != nil {
			return nil, err
		}
		return &integration.BeginResult{Entry: current.ToDomain()}, nil
	}

	entry.Status = integration.LedgerStatusPending
	entry.AttemptCount = existing.AttemptCount + 1
	entry.StartedAt = now
	entry.CompletedAt = nil
	entry.UpdatedAt = now
	return &integration.BeginResult{
		Entry:          entry,
		Acquired:       true,
		Reclaimed:      true,
		PreviousStatus: existing.Status,
	}, nil
}

// Complete moves a pending entry to a terminal status.
func (r *GormSyncLedgerRepository) Complete(ctx context.Context, id uuid.UUID, status integration.LedgerStatus, detail integration.CompletionDetail) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: pending -> %s", integration.ErrLedgerInvalidTransition, status)
	}

	now := r.now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncLedgerModel{}).
		Where("id = ? AND status = ?", id, integration.LedgerStatusPending).
		Updates(map[string]any{
			"status":       status,
			"external_ref": detail.ExternalRef,
			"last_error":   detail.Error,
			"error_class":  detail.ErrorClass,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("persistence: complete ledger entry: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var current models.SyncLedgerModel
	if err := r.db.WithContext(ctx).First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.ErrLedgerEntryNotFound
		}
		return err
	}
	return fmt.Errorf("%w: %s -> %s", integration.ErrLedgerInvalidTransition, current.Status, status)
}

func (r *GormSyncLedgerRepository) findModel(ctx context.Context, tenant, key string, kind integration.LedgerKind) (*models.SyncLedgerModel, error) {
	var model models.SyncLedgerModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenant)).
		Where("idempotency_key = ? AND kind = ?", key, kind).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrLedgerEntryNotFound
		}
		return nil, err
	}
	return &model, nil
}

// Ensure GormSyncLedgerRepository implements SyncLedger
var _ integration.SyncLedger = (*GormSyncLedgerRepository)(nil)
