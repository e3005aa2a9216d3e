package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

// ErrRunAborted is returned when a run stops before processing every order.
var ErrRunAborted = errors.New("integration: sync run aborted")

// completionTimeout bounds ledger writes made after the run deadline.
const completionTimeout = 10 * time.Second

// EngineSettings are the process-wide knobs shared by the sync engines.
type EngineSettings struct {
	RunTimeout     time.Duration
	StaleAfter     time.Duration
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	FetchLimit     int
}

// DefaultEngineSettings mirrors the configuration defaults.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		RunTimeout:     10 * time.Minute,
		StaleAfter:     15 * time.Minute,
		RequestTimeout: 30 * time.Second,
		MaxAttempts:    4,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
		FetchLimit:     50,
	}
}

// OrderSyncEngine replicates storefront orders into the ERP at most once
// per idempotency key.
type OrderSyncEngine struct {
	configs    integration.StoreConfigProvider
	storefront integration.StorefrontClient
	erp        integration.ERPClient
	ledger     integration.SyncLedger
	resolver   *BundleResolver
	cursors    integration.SyncCursorStore
	metrics    SyncMetrics
	logger     *zap.Logger
	settings   EngineSettings
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// EngineOption configures the sync engines.
type EngineOption func(*engineOptions)

type engineOptions struct {
	cursors  integration.SyncCursorStore
	cache    integration.QuantityCache
	metrics  SyncMetrics
	logger   *zap.Logger
	settings EngineSettings
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// WithCursorStore enables the fetch cursor hint.
func WithCursorStore(c integration.SyncCursorStore) EngineOption {
	return func(o *engineOptions) { o.cursors = c }
}

// WithQuantityCache sets the last-seen quantity cache of the inventory engine.
func WithQuantityCache(c integration.QuantityCache) EngineOption {
	return func(o *engineOptions) { o.cache = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m SyncMetrics) EngineOption {
	return func(o *engineOptions) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

// WithSettings overrides the default engine settings.
func WithSettings(s EngineSettings) EngineOption {
	return func(o *engineOptions) { o.settings = s }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) { o.now = now }
}

// WithSleep replaces the backoff sleeper.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(o *engineOptions) { o.sleep = sleep }
}

func buildEngineOptions(opts []EngineOption) engineOptions {
	o := engineOptions{
		metrics:  noopMetrics{},
		logger:   zap.NewNop(),
		settings: DefaultEngineSettings(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewOrderSyncEngine creates an order engine.
func NewOrderSyncEngine(
	configs integration.StoreConfigProvider,
	storefront integration.StorefrontClient,
	erp integration.ERPClient,
	ledger integration.SyncLedger,
	resolver *BundleResolver,
	opts ...EngineOption,
) *OrderSyncEngine {
	o := buildEngineOptions(opts)
	return &OrderSyncEngine{
		configs:    configs,
		storefront: storefront,
		erp:        erp,
		ledger:     ledger,
		resolver:   resolver,
		cursors:    o.cursors,
		metrics:    o.metrics,
		logger:     o.logger.Named("order_sync"),
		settings:   o.settings,
		now:        o.now,
		sleep:      o.sleep,
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run syncs one tenant's orders. Per-order failures are reported in the
// summary; the returned error is set only when the run itself failed or was
// aborted, in which case the summary covers what was processed so far.
func (e *OrderSyncEngine) Run(ctx context.Context, tenant string, opts OrderRunOptions) (summary *OrderRunSummary, err error) {
	ctx, span := tracer.Start(ctx, "order_sync.run", trace.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer func() { endSpan(span, err) }()

	started := e.now()
	summary = &OrderRunSummary{Tenant: tenant, DryRun: opts.DryRun, StartedAt: started}
	defer func() {
		summary.FinishedAt = e.now()
		e.metrics.RecordRun(ctx, tenant, integration.LedgerKindOrder, summary.FinishedAt.Sub(started), err)
	}()

	cfg, err := e.configs.Get(tenant)
	if err != nil {
		return summary, err
	}

	runCtx := ctx
	if e.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.settings.RunTimeout)
		defer cancel()
	}

	log := e.logger.With(zap.String("tenant", tenant), zap.Bool("dry_run", opts.DryRun))

	if err := e.resolver.Load(runCtx, tenant); err != nil {
		return summary, err
	}

	var cursor time.Time
	if e.cursors != nil && opts.Since.IsZero() {
		cursor, err = e.cursors.Get(runCtx, tenant, integration.LedgerKindOrder)
		if err != nil {
			log.Warn("Failed to read sync cursor, using min sync date", zap.Error(err))
			cursor = time.Time{}
		}
	}
	summary.WindowFrom = cfg.FetchWindowStart(cursor, opts.Since)

	limit := opts.Limit
	if limit <= 0 {
		limit = e.settings.FetchLimit
	}

	orders, err := e.storefront.FetchOrders(runCtx, cfg, integration.OrderQuery{Since: summary.WindowFrom, Limit: limit})
	if err != nil {
		return summary, fmt.Errorf("fetch orders: %w", err)
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].PlacedAt.Before(orders[j].PlacedAt) })
	summary.Fetched = len(orders)

	log.Info("Order sync started",
		zap.Time("since", summary.WindowFrom),
		zap.Int("fetched", len(orders)),
	)

	var (
		advanceTo time.Time
		blocked   bool
		runErr    error
	)
	for i := range orders {
		if runCtx.Err() != nil {
			summary.DeadlineReached = true
			log.Warn("Run deadline reached, remaining orders deferred to next run",
				zap.Int("remaining", len(orders)-i),
			)
			break
		}

		order := orders[i]
		order.Tenant = cfg.Tenant
		if !cfg.AcceptsOrder(order.PlacedAt) {
			summary.Filtered++
			log.Debug("Dropping order placed before min sync date",
				zap.String("order_number", order.OrderNumber),
				zap.Time("placed_at", order.PlacedAt),
			)
			continue
		}

		octx, ospan := tracer.Start(ctx, "order_sync.order", trace.WithAttributes(
			attribute.String("order_number", order.OrderNumber),
		))
		result, abort := e.processOrder(octx, runCtx, cfg, &order, opts)
		ospan.SetAttributes(
			attribute.String("outcome", string(result.Outcome)),
			attribute.String("error_class", string(result.ErrorClass)),
		)
		endSpan(ospan, abort)
		summary.add(result)
		e.metrics.RecordOrder(ctx, tenant, result.Outcome, result.ErrorClass)

		// The cursor only moves across a contiguous prefix of settled orders
		// so a retryable or in-flight order is fetched again next run.
		if !blocked && result.Settled {
			advanceTo = order.PlacedAt
		} else {
			blocked = true
		}

		if abort != nil {
			summary.Aborted = true
			runErr = fmt.Errorf("%w: %w", ErrRunAborted, abort)
			log.Error("Aborting run", zap.String("order_number", order.OrderNumber), zap.Error(abort))
			break
		}
	}

	if !opts.DryRun && e.cursors != nil && !advanceTo.IsZero() {
		wctx, cancel := detached(ctx, completionTimeout)
		if err := e.cursors.Advance(wctx, tenant, integration.LedgerKindOrder, advanceTo); err != nil {
			log.Warn("Failed to advance sync cursor", zap.Error(err))
		}
		cancel()
	}

	log.Info("Order sync finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("planned", summary.Planned),
		zap.Bool("deadline_reached", summary.DeadlineReached),
	)
	return summary, runErr
}

// ---------------------------------------------------------------------------
// Per-order state machine
// ---------------------------------------------------------------------------

const (
	reasonAlreadySynced = "already synced"
	reasonInFlight      = "in flight elsewhere"
	reasonNeedsReview   = "failed earlier, needs manual review"
	reasonDeadline      = "run deadline reached"
)

// processOrder walks one order through resolve, idempotency check and
// submit. runCtx carries the run deadline and gates new work; ctx is the
// caller's context that in-flight calls detach from. A non-nil abort error
// stops the run.
func (e *OrderSyncEngine) processOrder(ctx, runCtx context.Context, cfg *integration.StoreConfig, order *integration.SourceOrder, opts OrderRunOptions) (result OrderResult, abort error) {
	key := order.IdempotencyKey()
	result = OrderResult{
		OrderNumber:    order.OrderNumber,
		IdempotencyKey: key,
		PlacedAt:       order.PlacedAt,
	}
	log := e.logger.With(
		zap.String("tenant", cfg.Tenant),
		zap.String("order_number", order.OrderNumber),
		zap.String("idempotency_key", key),
	)

	// BundleResolved
	items, dropped := e.resolveOrder(runCtx, cfg, order, log)
	result.DroppedLines = dropped

	// IdempotencyChecked
	existing, err := e.ledger.FindByKey(runCtx, cfg.Tenant, key, integration.LedgerKindOrder)
	switch {
	case errors.Is(err, integration.ErrLedgerEntryNotFound):
		existing = nil
	case err != nil:
		return e.fail(result, fmt.Errorf("ledger lookup: %w", err)), nil
	}
	if existing != nil {
		if skip, reason := e.shouldSkip(existing); skip {
			result.Outcome = OrderOutcomeSkipped
			result.Reason = reason
			result.ExternalRef = existing.ExternalRef
			result.Settled = existing.Settled()
			log.Debug("Skipping order", zap.String("reason", reason), zap.String("status", existing.Status.String()))
			return result, nil
		}
	}

	if opts.DryRun {
		return e.planOrder(cfg, order, items, result, log), nil
	}

	// Submitting
	begin, err := e.ledger.Begin(runCtx, cfg.Tenant, key, integration.LedgerKindOrder, e.settings.StaleAfter)
	if err != nil {
		if runCtx.Err() != nil {
			result.Outcome = OrderOutcomeSkipped
			result.Reason = reasonDeadline
			return result, nil
		}
		return e.fail(result, fmt.Errorf("ledger begin: %w", err)), nil
	}
	if !begin.Acquired {
		result.Outcome = OrderOutcomeSkipped
		result.Reason = reasonInFlight
		switch {
		case begin.Entry == nil:
		case begin.Entry.Status.IsDone():
			result.Reason = reasonAlreadySynced
			result.ExternalRef = begin.Entry.ExternalRef
			result.Settled = true
		case begin.Entry.NeedsReview():
			result.Reason = reasonNeedsReview
			result.Settled = true
		}
		return result, nil
	}
	entry := begin.Entry
	result.Attempts = entry.AttemptCount
	log = log.With(zap.Int("attempt", entry.AttemptCount))

	if begin.Reclaimed {
		log.Info("Reclaimed ledger entry", zap.String("previous_status", begin.PreviousStatus.String()))
		found, err := e.lookupExisting(ctx, cfg, order)
		switch {
		case errors.Is(err, integration.ErrAuth):
			e.completeFailed(ctx, entry, err, log)
			return e.fail(result, err), err
		case err != nil:
			log.Warn("ERP lookup before resubmit failed, relying on duplicate detection", zap.Error(err))
		case found != nil:
			result.Settled = e.complete(ctx, entry, integration.LedgerStatusSuccess, integration.CompletionDetail{ExternalRef: found.ExternalRef()}, log)
			result.Outcome = OrderOutcomeSucceeded
			result.ExternalRef = found.ExternalRef()
			result.Recovered = true
			log.Info("Order already present in ERP", zap.String("external_ref", result.ExternalRef))
			return result, nil
		}
	}

	if len(items) == 0 {
		err := fmt.Errorf("%w: order %s has no resolvable lines", integration.ErrPermanentValidation, order.OrderNumber)
		settled := e.completeFailed(ctx, entry, err, log)
		result = e.fail(result, err)
		result.Settled = settled
		return result, nil
	}

	ref, err := e.submit(ctx, runCtx, cfg, order, items, log)
	var dup *integration.DuplicateOrderError
	switch {
	case err == nil:
		result.Settled = e.complete(ctx, entry, integration.LedgerStatusSuccess, integration.CompletionDetail{ExternalRef: ref}, log)
		result.Outcome = OrderOutcomeSucceeded
		result.ExternalRef = ref
		log.Info("Order synced", zap.String("external_ref", ref))
		return result, nil
	case errors.As(err, &dup):
		ref = dup.ERPOrderID
		if ref == "" {
			if found, lerr := e.lookupExisting(ctx, cfg, order); lerr == nil && found != nil {
				ref = found.ExternalRef()
			}
		}
		result.Settled = e.complete(ctx, entry, integration.LedgerStatusSuccess, integration.CompletionDetail{ExternalRef: ref}, log)
		result.Outcome = OrderOutcomeSucceeded
		result.ExternalRef = ref
		result.ErrorClass = integration.ErrorClassDuplicate
		log.Info("Order already exists in ERP, marking synced", zap.String("external_ref", ref))
		return result, nil
	default:
		settled := e.completeFailed(ctx, entry, err, log)
		log.Warn("Order sync failed", zap.Error(err), zap.String("class", string(integration.ClassifyError(err))))
		result = e.fail(result, err)
		result.Settled = settled
		if errors.Is(err, integration.ErrAuth) {
			return result, err
		}
		return result, nil
	}
}

func (e *OrderSyncEngine) shouldSkip(entry *integration.LedgerEntry) (bool, string) {
	switch {
	case entry.Status.IsDone():
		return true, reasonAlreadySynced
	case entry.Status == integration.LedgerStatusPending && !entry.IsStalePending(e.now(), e.settings.StaleAfter):
		return true, reasonInFlight
	case entry.NeedsReview():
		return true, reasonNeedsReview
	default:
		return false, ""
	}
}

// resolveOrder expands every line; corrupt or unresolvable lines are dropped.
func (e *OrderSyncEngine) resolveOrder(ctx context.Context, cfg *integration.StoreConfig, order *integration.SourceOrder, log *zap.Logger) ([]resolvedItem, int) {
	items := make([]resolvedItem, 0, len(order.LineItems))
	dropped := 0
	for _, li := range order.LineItems {
		lines, err := e.resolver.ResolveItem(ctx, cfg, li)
		if err != nil {
			dropped++
			log.Warn("Dropping order line",
				zap.String("sku", li.SKU),
				zap.String("title", li.Title),
				zap.Int64("quantity", li.Quantity),
				zap.Error(err),
			)
			continue
		}
		items = append(items, resolvedItem{source: li, lines: lines})
	}
	return items, dropped
}

// planOrder logs the payload a real run would submit.
func (e *OrderSyncEngine) planOrder(cfg *integration.StoreConfig, order *integration.SourceOrder, items []resolvedItem, result OrderResult, log *zap.Logger) OrderResult {
	if len(items) == 0 {
		return e.fail(result, fmt.Errorf("%w: order %s has no resolvable lines", integration.ErrPermanentValidation, order.OrderNumber))
	}
	draft := CustomerDraftFor(order)
	req := BuildSalesOrderRequest(cfg, order, items, integration.ERPCustomerRef{Code: draft.Code, Name: draft.Name})
	payload, err := json.Marshal(req)
	if err != nil {
		return e.fail(result, fmt.Errorf("encode payload: %w", err))
	}
	log.Info("Dry run: would submit sales order", zap.ByteString("payload", payload))
	result.Outcome = OrderOutcomePlanned
	return result
}

// submit finds the customer and creates the sales order, retrying transient
// failures. Every attempt is a fresh, freshly signed request on a context
// detached from the run deadline.
func (e *OrderSyncEngine) submit(ctx, runCtx context.Context, cfg *integration.StoreConfig, order *integration.SourceOrder, items []resolvedItem, log *zap.Logger) (string, error) {
	policy := retryPolicy{
		maxAttempts: e.settings.MaxAttempts,
		baseDelay:   e.settings.RetryBaseDelay,
		maxDelay:    e.settings.RetryMaxDelay,
		sleep:       e.sleep,
	}

	var customer *integration.ERPCustomerRef
	_, err := policy.do(runCtx, func(attempt int) error {
		callCtx, cancel := detached(ctx, e.settings.RequestTimeout)
		defer cancel()
		start := e.now()
		c, err := e.erp.FindOrCreateCustomer(callCtx, cfg, CustomerDraftFor(order))
		e.metrics.RecordERPCall(ctx, cfg.Tenant, "find_or_create_customer", e.now().Sub(start), err)
		if err != nil {
			log.Warn("Customer lookup failed", zap.Int("call_attempt", attempt), zap.Error(err))
			return err
		}
		customer = c
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("customer: %w", err)
	}

	req := BuildSalesOrderRequest(cfg, order, items, *customer)
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: order %s", err, order.OrderNumber)
	}

	var created *integration.ERPSalesOrderResult
	_, err = policy.do(runCtx, func(attempt int) error {
		callCtx, cancel := detached(ctx, e.settings.RequestTimeout)
		defer cancel()
		start := e.now()
		res, err := e.erp.CreateSalesOrder(callCtx, cfg, req)
		e.metrics.RecordERPCall(ctx, cfg.Tenant, "create_sales_order", e.now().Sub(start), err)
		if err != nil {
			if integration.IsRetryable(err) {
				log.Warn("Sales order POST failed, will retry", zap.Int("call_attempt", attempt), zap.Error(err))
			}
			return err
		}
		created = res
		return nil
	})
	if err != nil {
		return "", err
	}
	return created.ExternalRef(), nil
}

func (e *OrderSyncEngine) lookupExisting(ctx context.Context, cfg *integration.StoreConfig, order *integration.SourceOrder) (*integration.ERPSalesOrderResult, error) {
	callCtx, cancel := detached(ctx, e.settings.RequestTimeout)
	defer cancel()
	start := e.now()
	found, err := e.erp.FindSalesOrderByReference(callCtx, cfg, order.ID)
	e.metrics.RecordERPCall(ctx, cfg.Tenant, "find_sales_order", e.now().Sub(start), err)
	return found, err
}

// complete writes a terminal status even when the run deadline has passed
// and reports whether it was written. A failed write leaves the entry
// pending; it becomes stale and is reclaimed with an ERP lookup by a later
// run.
func (e *OrderSyncEngine) complete(ctx context.Context, entry *integration.LedgerEntry, status integration.LedgerStatus, detail integration.CompletionDetail, log *zap.Logger) bool {
	wctx, cancel := detached(ctx, completionTimeout)
	defer cancel()
	if err := e.ledger.Complete(wctx, entry.ID, status, detail); err != nil {
		log.Error("Failed to complete ledger entry",
			zap.String("entry_id", entry.ID.String()),
			zap.String("status", status.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// completeFailed records err with its class and reports whether the entry is
// settled: written, and of a class later runs do not retry.
func (e *OrderSyncEngine) completeFailed(ctx context.Context, entry *integration.LedgerEntry, err error, log *zap.Logger) bool {
	class := integration.ClassifyError(err)
	written := e.complete(ctx, entry, integration.LedgerStatusFailed, integration.CompletionDetail{
		Error:      err.Error(),
		ErrorClass: class,
	}, log)
	return written && !class.Retryable()
}

func (e *OrderSyncEngine) fail(result OrderResult, err error) OrderResult {
	result.Outcome = OrderOutcomeFailed
	result.Reason = err.Error()
	result.ErrorClass = integration.ClassifyError(err)
	return result
}

// detached returns a context that keeps ctx's values but not its
// cancellation, bounded by timeout.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, timeout)
}
