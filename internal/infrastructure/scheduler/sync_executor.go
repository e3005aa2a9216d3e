package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
)

// OrderRunner runs one order sync for a tenant.
type OrderRunner interface {
	Run(ctx context.Context, tenant string, opts appintegration.OrderRunOptions) (*appintegration.OrderRunSummary, error)
}

// InventoryRunner runs one inventory sync for a tenant.
type InventoryRunner interface {
	Run(ctx context.Context, tenant string, opts appintegration.InventoryRunOptions) (*appintegration.InventoryReport, error)
}

// ---------------------------------------------------------------------------
// EngineExecutor
// ---------------------------------------------------------------------------

// EngineExecutor implements SyncExecutor on top of the sync engines
type EngineExecutor struct {
	orders    OrderRunner
	inventory InventoryRunner
	logger    *zap.Logger
}

// NewEngineExecutor creates a new executor. Either runner may be nil when
// the corresponding loop is not scheduled.
func NewEngineExecutor(orders OrderRunner, inventory InventoryRunner, logger *zap.Logger) *EngineExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineExecutor{
		orders:    orders,
		inventory: inventory,
		logger:    logger,
	}
}

// Execute runs the engine for job.Kind and records its counts on the job.
func (e *EngineExecutor) Execute(ctx context.Context, job *SyncJob) error {
	switch job.Kind {
	case integration.LedgerKindOrder:
		if e.orders == nil {
			return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
		}
		summary, err := e.orders.Run(ctx, job.Tenant, appintegration.OrderRunOptions{})
		if summary != nil {
			job.Complete(summary.Succeeded, summary.Skipped, summary.Failed)
		}
		return err

	case integration.LedgerKindInventory:
		if e.inventory == nil {
			return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
		}
		report, err := e.inventory.Run(ctx, job.Tenant, appintegration.InventoryRunOptions{})
		if report != nil {
			job.Complete(len(report.Updated), report.Unchanged, len(report.Errors))
		}
		return err

	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
	}
}
