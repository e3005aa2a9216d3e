package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/storesync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Order run DTOs
// ---------------------------------------------------------------------------

// OrderOutcome is the final state of one order within a run.
type OrderOutcome string

const (
	OrderOutcomeSucceeded OrderOutcome = "succeeded"
	OrderOutcomeSkipped   OrderOutcome = "skipped"
	OrderOutcomeFailed    OrderOutcome = "failed"
	// OrderOutcomePlanned is reported by dry runs instead of submitting.
	OrderOutcomePlanned OrderOutcome = "planned"
)

// String returns the string representation of OrderOutcome
func (o OrderOutcome) String() string {
	return string(o)
}

// OrderRunOptions are the per-invocation knobs of OrderSyncEngine.Run.
type OrderRunOptions struct {
	DryRun bool
	// Since overrides the cursor hint; it is still clamped to MinSyncDate.
	Since time.Time
	// Limit caps the number of fetched orders; 0 uses the configured default.
	Limit int
}

// OrderResult describes what happened to one order.
type OrderResult struct {
	OrderNumber    string                 `json:"order_number"`
	IdempotencyKey string                 `json:"idempotency_key"`
	PlacedAt       time.Time              `json:"placed_at"`
	Outcome        OrderOutcome           `json:"outcome"`
	Reason         string                 `json:"reason,omitempty"`
	ErrorClass     integration.ErrorClass `json:"error_class,omitempty"`
	ExternalRef    string                 `json:"external_ref,omitempty"`
	Attempts       int                    `json:"attempts,omitempty"`
	DroppedLines   int                    `json:"dropped_lines,omitempty"`
	// Recovered is set when a reclaimed attempt found the order already in the ERP.
	Recovered bool `json:"recovered,omitempty"`
	// Settled is set when the ledger holds a state no later run acts on, so
	// the fetch cursor may move past the order.
	Settled bool `json:"-"`
}

// OrderRunSummary aggregates one order run of one tenant.
type OrderRunSummary struct {
	Tenant     string    `json:"tenant"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	WindowFrom time.Time `json:"window_from"`
	Fetched    int       `json:"fetched"`
	Filtered   int       `json:"filtered"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Planned    int       `json:"planned"`
	Aborted    bool      `json:"aborted,omitempty"`
	// DeadlineReached means the run timeout stopped the batch early.
	DeadlineReached bool          `json:"deadline_reached,omitempty"`
	Orders          []OrderResult `json:"orders"`
}

// HasFailures reports whether any order failed.
func (s *OrderRunSummary) HasFailures() bool {
	return s.Failed > 0
}

func (s *OrderRunSummary) add(r OrderResult) {
	switch r.Outcome {
	case OrderOutcomeSucceeded:
		s.Succeeded++
	case OrderOutcomeSkipped:
		s.Skipped++
	case OrderOutcomeFailed:
		s.Failed++
	case OrderOutcomePlanned:
		s.Planned++
	}
	s.Orders = append(s.Orders, r)
}

// ---------------------------------------------------------------------------
// Inventory run DTOs
// ---------------------------------------------------------------------------

// InventoryRunOptions are the per-invocation knobs of InventorySyncEngine.Run.
type InventoryRunOptions struct {
	DryRun bool
}

// InventoryChange is one quantity pushed (or, in a dry run, planned).
type InventoryChange struct {
	SKU             string `json:"sku"`
	InventoryItemID string `json:"inventory_item_id"`
	From            int64  `json:"from"`
	To              int64  `json:"to"`
}

// InventoryError is a per-SKU failure that did not abort the run.
type InventoryError struct {
	SKU   string `json:"sku"`
	Error string `json:"error"`
}

// InventoryReport aggregates one inventory run of one tenant.
type InventoryReport struct {
	Tenant     string            `json:"tenant"`
	DryRun     bool              `json:"dry_run"`
	LocationID string            `json:"location_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	ERPSKUs    int               `json:"erp_skus"`
	Updated    []InventoryChange `json:"updated"`
	Unchanged  int               `json:"unchanged"`
	// SkippedOversell lists SKUs whose storefront policy keeps selling at zero.
	SkippedOversell []string         `json:"skipped_oversell,omitempty"`
	NotInStorefront []string         `json:"not_in_storefront,omitempty"`
	NotInERP        []string         `json:"not_in_erp,omitempty"`
	Errors          []InventoryError `json:"errors,omitempty"`
}

// HasFailures reports whether any SKU failed to update.
func (r *InventoryReport) HasFailures() bool {
	return len(r.Errors) > 0
}

// ---------------------------------------------------------------------------
// Ledger view DTOs
// ---------------------------------------------------------------------------

// LedgerEntryResponse represents a ledger entry in CLI and HTTP output
type LedgerEntryResponse struct {
	ID             uuid.UUID                `json:"id"`
	Tenant         string                   `json:"tenant"`
	IdempotencyKey string                   `json:"idempotency_key"`
	Kind           integration.LedgerKind   `json:"kind"`
	Status         integration.LedgerStatus `json:"status"`
	AttemptCount   int                      `json:"attempt_count"`
	LastError      string                   `json:"last_error,omitempty"`
	ErrorClass     integration.ErrorClass   `json:"error_class,omitempty"`
	NeedsReview    bool                     `json:"needs_review,omitempty"`
	ExternalRef    string                   `json:"external_ref,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	StartedAt      time.Time                `json:"started_at"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
}

// ToLedgerEntryResponse converts a domain entry to a response DTO
func ToLedgerEntryResponse(e *integration.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:             e.ID,
		Tenant:         e.Tenant,
		IdempotencyKey: e.IdempotencyKey,
		Kind:           e.Kind,
		Status:         e.Status,
		AttemptCount:   e.AttemptCount,
		LastError:      e.LastError,
		ErrorClass:     e.ErrorClass,
		NeedsReview:    e.NeedsReview(),
		ExternalRef:    e.ExternalRef,
		CreatedAt:      e.CreatedAt,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
	}
}

// ToLedgerEntryResponses converts a list of entries
func ToLedgerEntryResponses(entries []integration.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(entries))
	for i := range entries {
		out[i] = ToLedgerEntryResponse(&entries[i])
	}
	return out
}
