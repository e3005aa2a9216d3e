package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/scheduler"
	"github.com/erp/storesync/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type staticConfigs map[string]*integration.StoreConfig

func (s staticConfigs) Get(tenant string) (*integration.StoreConfig, error) {
	cfg, ok := s[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrTenantNotFound, tenant)
	}
	return cfg, nil
}

func (s staticConfigs) Tenants() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func testConfigs() staticConfigs {
	acme := &integration.StoreConfig{Tenant: "acme", DisplayName: "Acme"}
	acme.Storefront.ShopDomain = "acme.myshopify.com"
	acme.Storefront.WebhookSecret = "whsec"
	return staticConfigs{"acme": acme}
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) FindByKey(ctx context.Context, tenant, key string, kind integration.LedgerKind) (*integration.LedgerEntry, error) {
	args := m.Called(ctx, tenant, key, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.LedgerEntry), args.Error(1)
}

func (m *mockLedger) List(ctx context.Context, filter integration.LedgerFilter) ([]integration.LedgerEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.LedgerEntry), args.Error(1)
}

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Trigger(tenant string, kind integration.LedgerKind, source scheduler.TriggerSource) error {
	return m.Called(tenant, kind, source).Error(0)
}

func (m *mockTrigger) GetJobHistory(limit int) []*scheduler.SyncJob {
	return m.Called(limit).Get(0).([]*scheduler.SyncJob)
}

func (m *mockTrigger) GetJobHistoryByTenant(tenant string, limit int) []*scheduler.SyncJob {
	return m.Called(tenant, limit).Get(0).([]*scheduler.SyncJob)
}

func (m *mockTrigger) Loops() []scheduler.LoopInfo {
	return m.Called().Get(0).([]scheduler.LoopInfo)
}

// ---------------------------------------------------------------------------
// request helpers
// ---------------------------------------------------------------------------

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode(t, w)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}
