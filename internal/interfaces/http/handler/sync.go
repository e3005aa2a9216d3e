package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/scheduler"
	"github.com/erp/storesync/internal/interfaces/http/dto"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SyncTrigger is the part of the scheduler the ops surface drives
type SyncTrigger interface {
	Trigger(tenant string, kind integration.LedgerKind, source scheduler.TriggerSource) error
	GetJobHistory(limit int) []*scheduler.SyncJob
	GetJobHistoryByTenant(tenant string, limit int) []*scheduler.SyncJob
	Loops() []scheduler.LoopInfo
}

// SyncHandler exposes the ledger, run history and manual triggers
type SyncHandler struct {
	BaseHandler
	ledger    integration.LedgerReader
	scheduler SyncTrigger
	configs   integration.StoreConfigProvider
}

// NewSyncHandler creates a SyncHandler
func NewSyncHandler(ledger integration.LedgerReader, sched SyncTrigger, configs integration.StoreConfigProvider) *SyncHandler {
	return &SyncHandler{
		ledger:    ledger,
		scheduler: sched,
		configs:   configs,
	}
}

// TriggerResponse acknowledges a queued run
type TriggerResponse struct {
	Tenant  string                  `json:"tenant"`
	Kind    integration.LedgerKind  `json:"kind"`
	Trigger scheduler.TriggerSource `json:"trigger"`
	Status  string                  `json:"status"`
}

// ListLedger returns a tenant's ledger entries, newest first.
// Query: kind, status, since (RFC 3339 or YYYY-MM-DD), limit.
func (h *SyncHandler) ListLedger(c *gin.Context) {
	tenant, ok := h.requireTenant(c)
	if !ok {
		return
	}

	filter := integration.LedgerFilter{Tenant: tenant}

	if kind := c.Query("kind"); kind != "" {
		filter.Kind = integration.LedgerKind(kind)
		if !filter.Kind.IsValid() {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "kind must be order or inventory")
			return
		}
	}
	if status := c.Query("status"); status != "" {
		filter.Status = integration.LedgerStatus(status)
		if !filter.Status.IsValid() {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "status must be pending, success, skipped or failed")
			return
		}
	}
	if since := c.Query("since"); since != "" {
		t, err := parseSince(since)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "since must be RFC 3339 or YYYY-MM-DD")
			return
		}
		filter.Since = t
	}
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	filter.Limit = limit

	entries, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.InternalError(c, err)
		return
	}
	h.SuccessList(c, appintegration.ToLedgerEntryResponses(entries), len(entries), limit)
}

// TriggerSync queues an immediate run of the tenant's order or inventory loop
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	tenant, ok := h.requireTenant(c)
	if !ok {
		return
	}
	kind := integration.LedgerKind(c.Param("kind"))
	if !kind.IsValid() {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "kind must be order or inventory")
		return
	}

	if !h.trigger(c, tenant, kind, scheduler.TriggerManual) {
		return
	}
	h.Accepted(c, TriggerResponse{Tenant: tenant, Kind: kind, Trigger: scheduler.TriggerManual, Status: "queued"})
}

// ListTenantJobs returns recent runs of one tenant
func (h *SyncHandler) ListTenantJobs(c *gin.Context) {
	tenant, ok := h.requireTenant(c)
	if !ok {
		return
	}
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	jobs := h.scheduler.GetJobHistoryByTenant(tenant, limit)
	h.SuccessList(c, jobs, len(jobs), limit)
}

// ListJobs returns recent runs across all tenants
func (h *SyncHandler) ListJobs(c *gin.Context) {
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	jobs := h.scheduler.GetJobHistory(limit)
	h.SuccessList(c, jobs, len(jobs), limit)
}

// ListLoops returns the scheduled loops
func (h *SyncHandler) ListLoops(c *gin.Context) {
	loops := h.scheduler.Loops()
	h.SuccessList(c, loops, len(loops), 0)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (h *SyncHandler) requireTenant(c *gin.Context) (string, bool) {
	return requireTenant(&h.BaseHandler, h.configs, c)
}

func (h *SyncHandler) trigger(c *gin.Context, tenant string, kind integration.LedgerKind, source scheduler.TriggerSource) bool {
	return triggerRun(&h.BaseHandler, c, tenant, kind, h.scheduler.Trigger(tenant, kind, source))
}

func (h *SyncHandler) parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
		return 0, false
	}
	return n, true
}

func requireTenant(h *BaseHandler, configs integration.StoreConfigProvider, c *gin.Context) (string, bool) {
	tenant := c.Param("tenant")
	if _, err := configs.Get(tenant); err != nil {
		if errors.Is(err, integration.ErrTenantNotFound) {
			h.ErrorWithCode(c, dto.ErrCodeTenantNotFound, "tenant "+strconv.Quote(tenant)+" is not configured")
			return "", false
		}
		h.InternalError(c, err)
		return "", false
	}
	return tenant, true
}

// triggerRun writes the error response for a failed Trigger and reports success
func triggerRun(h *BaseHandler, c *gin.Context, tenant string, kind integration.LedgerKind, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, scheduler.ErrUnknownLoop):
		h.ErrorWithCode(c, dto.ErrCodeLoopNotFound, "no "+kind.String()+" loop is scheduled for "+tenant)
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.ServiceUnavailable(c, "scheduler is not running")
	default:
		h.InternalError(c, err)
	}
	return false
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
