package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
)

// SyncMetrics records sync engine measurements as OpenTelemetry instruments:
//
//	storesync_orders_total             {tenant, outcome, error_class}
//	storesync_erp_call_duration        {tenant, operation, result}  seconds
//	storesync_inventory_pushes_total   {tenant, outcome}
//	storesync_run_duration             {tenant, kind, result}       seconds
//	storesync_last_success_timestamp   {tenant, kind}               unix seconds
type SyncMetrics struct {
	logger *zap.Logger

	ordersTotal      *Counter
	erpCallDuration  *Histogram
	inventoryPushes  *Counter
	runDuration      *Histogram
	lastSuccessStamp *Gauge

	now func() time.Time
}

var _ appintegration.SyncMetrics = (*SyncMetrics)(nil)

// NewSyncMetrics registers the sync instruments on meter.
func NewSyncMetrics(meter metric.Meter, logger *zap.Logger) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{logger: logger, now: time.Now}
	var err error

	if m.ordersTotal, err = NewCounter(meter,
		"storesync_orders_total",
		"Orders processed by the order sync engine",
		"{orders}",
	); err != nil {
		return nil, err
	}

	if m.erpCallDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "storesync_erp_call_duration",
		Description: "Latency of ERP calls including retries",
		Unit:        "s",
		Boundaries:  ERPCallBuckets,
	}); err != nil {
		return nil, err
	}

	if m.inventoryPushes, err = NewCounter(meter,
		"storesync_inventory_pushes_total",
		"Inventory reconciliation decisions per SKU",
		"{skus}",
	); err != nil {
		return nil, err
	}

	if m.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "storesync_run_duration",
		Description: "Wall time of one tenant sync run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}

	if m.lastSuccessStamp, err = NewGauge(meter,
		"storesync_last_success_timestamp",
		"Unix time of the last run that finished without error",
		"s",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOrder counts one processed order.
func (m *SyncMetrics) RecordOrder(ctx context.Context, tenant string, outcome appintegration.OrderOutcome, class integration.ErrorClass) {
	m.ordersTotal.Inc(ctx,
		AttrTenant.String(tenant),
		AttrOutcome.String(string(outcome)),
		AttrErrorClass.String(errorClassLabel(class)),
	)
}

// RecordERPCall records the latency of one ERP operation.
func (m *SyncMetrics) RecordERPCall(ctx context.Context, tenant, operation string, d time.Duration, err error) {
	m.erpCallDuration.RecordDuration(ctx, d,
		AttrTenant.String(tenant),
		AttrOperation.String(operation),
		AttrResult.String(resultLabel(err)),
	)
}

// RecordInventoryPush counts one inventory decision.
func (m *SyncMetrics) RecordInventoryPush(ctx context.Context, tenant string, outcome string) {
	m.inventoryPushes.Inc(ctx,
		AttrTenant.String(tenant),
		AttrOutcome.String(outcome),
	)
}

// RecordRun records a finished run and, on success, its completion time.
func (m *SyncMetrics) RecordRun(ctx context.Context, tenant string, kind integration.LedgerKind, d time.Duration, err error) {
	m.runDuration.RecordDuration(ctx, d,
		AttrTenant.String(tenant),
		AttrKind.String(kind.String()),
		AttrResult.String(resultLabel(err)),
	)
	if err == nil {
		m.lastSuccessStamp.Record(ctx, m.now().Unix(),
			AttrTenant.String(tenant),
			AttrKind.String(kind.String()),
		)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errorClassLabel(class integration.ErrorClass) string {
	if class == integration.ErrorClassNone {
		return "none"
	}
	return string(class)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
