package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/storesync/internal/domain/integration"
)

// SyncLedgerModel is the persistence model for integration.LedgerEntry.
type SyncLedgerModel struct {
	ID             uuid.UUID                `gorm:"type:uuid;primary_key"`
	Tenant         string                   `gorm:"type:varchar(64);not null;uniqueIndex:idx_sync_ledger_key,priority:1;index:idx_sync_ledger_tenant_created,priority:1"`
	IdempotencyKey string                   `gorm:"type:varchar(200);not null;uniqueIndex:idx_sync_ledger_key,priority:2"`
	Kind           integration.LedgerKind   `gorm:"type:varchar(20);not null;uniqueIndex:idx_sync_ledger_key,priority:3"`
	Status         integration.LedgerStatus `gorm:"type:varchar(20);not null;index"`
	AttemptCount   int                      `gorm:"not null;default:1"`
	LastError      string                   `gorm:"type:text"`
	ErrorClass     integration.ErrorClass   `gorm:"type:varchar(20)"`
	ExternalRef    string                   `gorm:"type:varchar(100)"`
	CreatedAt      time.Time                `gorm:"not null;index:idx_sync_ledger_tenant_created,priority:2"`
	StartedAt      time.Time                `gorm:"not null"`
	CompletedAt    *time.Time
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncLedgerModel) TableName() string {
	return "sync_ledger"
}

// ToDomain converts the persistence model to a domain LedgerEntry.
func (m *SyncLedgerModel) ToDomain() *integration.LedgerEntry {
	return &integration.LedgerEntry{
		ID:             m.ID,
		Tenant:         m.Tenant,
		IdempotencyKey: m.IdempotencyKey,
		Kind:           m.Kind,
		Status:         m.Status,
		AttemptCount:   m.AttemptCount,
		LastError:      m.LastError,
		ErrorClass:     m.ErrorClass,
		ExternalRef:    m.ExternalRef,
		CreatedAt:      m.CreatedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain LedgerEntry.
func (m *SyncLedgerModel) FromDomain(e *integration.LedgerEntry) {
	m.ID = e.ID
	m.Tenant = e.Tenant
	m.IdempotencyKey = e.IdempotencyKey
	m.Kind = e.Kind
	m.Status = e.Status
	m.AttemptCount = e.AttemptCount
	m.LastError = e.LastError
	m.ErrorClass = e.ErrorClass
	m.ExternalRef = e.ExternalRef
	m.CreatedAt = e.CreatedAt
	m.StartedAt = e.StartedAt
	m.CompletedAt = e.CompletedAt
	m.UpdatedAt = e.UpdatedAt
}

// BundleMappingModel is one component row of a bundle mapping. Components of
// a storefront SKU are ordered by Position.
type BundleMappingModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	Tenant        string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_bundle_mapping_component,priority:1"`
	StorefrontSKU string          `gorm:"column:storefront_sku;type:varchar(100);not null;uniqueIndex:idx_bundle_mapping_component,priority:2"`
	ERPCode       string          `gorm:"column:erp_code;type:varchar(100);not null"`
	Multiplier    decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	Position      int             `gorm:"not null;uniqueIndex:idx_bundle_mapping_component,priority:3"`
	IsActive      bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BundleMappingModel) TableName() string {
	return "bundle_mappings"
}

// ToComponent converts the row to a domain BundleComponent.
func (m *BundleMappingModel) ToComponent() integration.BundleComponent {
	return integration.BundleComponent{
		ERPProductCode:     m.ERPCode,
		QuantityMultiplier: m.Multiplier,
	}
}

// BundleMappingRowsFromDomain flattens a mapping into ordered rows.
func BundleMappingRowsFromDomain(mapping *integration.BundleMapping, now time.Time) []BundleMappingModel {
	rows := make([]BundleMappingModel, 0, len(mapping.Components))
	for i, c := range mapping.Components {
		rows = append(rows, BundleMappingModel{
			ID:            uuid.New(),
			Tenant:        mapping.Tenant,
			StorefrontSKU: mapping.StorefrontSKU,
			ERPCode:       c.ERPProductCode,
			Multiplier:    c.QuantityMultiplier,
			Position:      i,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return rows
}

// SyncCursorModel stores the fetch cursor hint of one (tenant, kind) loop.
type SyncCursorModel struct {
	Tenant       string                 `gorm:"type:varchar(64);primaryKey"`
	Kind         integration.LedgerKind `gorm:"type:varchar(20);primaryKey"`
	LastPlacedAt time.Time              `gorm:"not null"`
	UpdatedAt    time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncCursorModel) TableName() string {
	return "sync_cursors"
}
