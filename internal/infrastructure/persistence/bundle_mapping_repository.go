package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/persistence/models"
)

// GormBundleMappingRepository implements integration.BundleMappingRepository using GORM
type GormBundleMappingRepository struct {
	db *gorm.DB
}

// NewGormBundleMappingRepository creates a new GormBundleMappingRepository
func NewGormBundleMappingRepository(db *gorm.DB) *GormBundleMappingRepository {
	return &GormBundleMappingRepository{db: db}
}

// ListByTenant returns every active mapping of tenant with components in position order.
func (r *GormBundleMappingRepository) ListByTenant(ctx context.Context, tenant string) ([]integration.BundleMapping, error) {
	var rows []models.BundleMappingModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenant)).
		Where("is_active = ?", true).
		Order("storefront_sku ASC").
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	mappings := make([]integration.BundleMapping, 0)
	for i := range rows {
		row := &rows[i]
		n := len(mappings)
		if n == 0 || mappings[n-1].StorefrontSKU != row.StorefrontSKU {
			mappings = append(mappings, integration.BundleMapping{
				Tenant:        row.Tenant,
				StorefrontSKU: row.StorefrontSKU,
			})
			n++
		}
		mappings[n-1].Components = append(mappings[n-1].Components, row.ToComponent())
	}
	return mappings, nil
}

// Replace swaps all components of (tenant, sku) in one transaction.
func (r *GormBundleMappingRepository) Replace(ctx context.Context, mapping *integration.BundleMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}
	rows := models.BundleMappingRowsFromDomain(mapping, time.Now().UTC())

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(TenantScope(mapping.Tenant)).
			Where("storefront_sku = ?", mapping.StorefrontSKU).
			Delete(&models.BundleMappingModel{}).Error; err != nil {
			return fmt.Errorf("persistence: clear bundle mapping: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("persistence: write bundle mapping: %w", err)
		}
		return nil
	})
}

// Deactivate hides the mapping of (tenant, sku) from ListByTenant.
func (r *GormBundleMappingRepository) Deactivate(ctx context.Context, tenant, sku string) error {
	result := r.db.WithContext(ctx).
		Model(&models.BundleMappingModel{}).
		Scopes(TenantScope(tenant)).
		Where("storefront_sku = ? AND is_active = ?", sku, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrBundleMappingNotFound
	}
	return nil
}

// Ensure GormBundleMappingRepository implements BundleMappingRepository
var _ integration.BundleMappingRepository = (*GormBundleMappingRepository)(nil)
