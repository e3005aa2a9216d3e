package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/persistence/models"
)

// GormSyncCursorRepository implements integration.SyncCursorStore using GORM
type GormSyncCursorRepository struct {
	db *gorm.DB
}

// NewGormSyncCursorRepository creates a new GormSyncCursorRepository
func NewGormSyncCursorRepository(db *gorm.DB) *GormSyncCursorRepository {
	return &GormSyncCursorRepository{db: db}
}

// Get returns the cursor of (tenant, kind), or the zero time when none is stored
func (r *GormSyncCursorRepository) Get(ctx context.Context, tenant string, kind integration.LedgerKind) (time.Time, error) {
	var model models.SyncCursorModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenant)).
		Where("kind = ?", kind).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return model.LastPlacedAt.UTC(), nil
}

// Advance stores to when it is later than the stored cursor
func (r *GormSyncCursorRepository) Advance(ctx context.Context, tenant string, kind integration.LedgerKind, to time.Time) error {
	if to.IsZero() {
		return nil
	}
	now := time.Now().UTC()
	model := models.SyncCursorModel{
		Tenant:       tenant,
		Kind:         kind,
		LastPlacedAt: to.UTC(),
		UpdatedAt:    now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant"}, {Name: "kind"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_placed_at": gorm.Expr("CASE WHEN excluded.last_placed_at > sync_cursors.last_placed_at THEN excluded.last_placed_at ELSE sync_cursors.last_placed_at END"),
			"updated_at":     now,
		}),
	}).Create(&model).Error
}

// Ensure GormSyncCursorRepository implements SyncCursorStore
var _ integration.SyncCursorStore = (*GormSyncCursorRepository)(nil)
