package integration

import (
	"context"
	"time"

	"github.com/erp/storesync/internal/domain/integration"
)

// SyncMetrics receives engine measurements. The telemetry package provides
// the OpenTelemetry implementation.
type SyncMetrics interface {
	RecordOrder(ctx context.Context, tenant string, outcome OrderOutcome, class integration.ErrorClass)
	RecordERPCall(ctx context.Context, tenant, operation string, d time.Duration, err error)
	RecordInventoryPush(ctx context.Context, tenant string, outcome string)
	RecordRun(ctx context.Context, tenant string, kind integration.LedgerKind, d time.Duration, err error)
}

// Inventory push outcomes
const (
	InventoryOutcomeUpdated   = "updated"
	InventoryOutcomeUnchanged = "unchanged"
	InventoryOutcomeOversell  = "oversell_skipped"
	InventoryOutcomeFailed    = "failed"
)

type noopMetrics struct{}

func (noopMetrics) RecordOrder(context.Context, string, OrderOutcome, integration.ErrorClass) {}

func (noopMetrics) RecordERPCall(context.Context, string, string, time.Duration, error) {}

func (noopMetrics) RecordInventoryPush(context.Context, string, string) {}

func (noopMetrics) RecordRun(context.Context, string, integration.LedgerKind, time.Duration, error) {}
