package cli

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
)

func TestSyncCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		orders   *fakeOrders
		wantCode int
		wantRuns []string
		contains []string
	}{
		{
			name:     "single tenant clean run",
			args:     []string{"sync", "acme"},
			orders:   &fakeOrders{summaries: map[string]*appintegration.OrderRunSummary{"acme": {Tenant: "acme", Fetched: 3, Succeeded: 2, Skipped: 1}}},
			wantCode: ExitSuccess,
			wantRuns: []string{"acme"},
			contains: []string{"acme: succeeded=2 skipped=1 failed=0"},
		},
		{
			name:     "all tenants",
			args:     []string{"sync", "all"},
			orders:   &fakeOrders{},
			wantCode: ExitSuccess,
			wantRuns: []string{"acme", "globex"},
		},
		{
			name: "failed order exits 1 and is listed without verbose",
			args: []string{"sync", "acme"},
			orders: &fakeOrders{summaries: map[string]*appintegration.OrderRunSummary{"acme": {
				Tenant: "acme", Fetched: 1, Failed: 1,
				Orders: []appintegration.OrderResult{{OrderNumber: "#1002", Outcome: appintegration.OrderOutcomeFailed, Reason: "ERP rejected order"}},
			}}},
			wantCode: ExitFailure,
			wantRuns: []string{"acme"},
			contains: []string{"#1002", "ERP rejected order"},
		},
		{
			name: "auth abort exits 1",
			args: []string{"sync", "acme"},
			orders: &fakeOrders{
				summaries: map[string]*appintegration.OrderRunSummary{"acme": {Tenant: "acme", Aborted: true}},
				errs:      map[string]error{"acme": fmt.Errorf("%w: 401", integration.ErrAuth)},
			},
			wantCode: ExitFailure,
			wantRuns: []string{"acme"},
			contains: []string{"aborted"},
		},
		{
			name: "config error outranks failures",
			args: []string{"sync", "all"},
			orders: &fakeOrders{
				summaries: map[string]*appintegration.OrderRunSummary{"acme": {Tenant: "acme", Failed: 1}},
				errs:      map[string]error{"globex": integration.NewConfigError("globex", "no location")},
			},
			wantCode: ExitCommandError,
			wantRuns: []string{"acme", "globex"},
		},
		{
			name:     "unknown tenant",
			args:     []string{"sync", "initech"},
			orders:   &fakeOrders{},
			wantCode: ExitCommandError,
		},
		{
			name:     "negative limit",
			args:     []string{"sync", "acme", "--limit", "-1"},
			orders:   &fakeOrders{},
			wantCode: ExitCommandError,
		},
		{
			name:     "bad since",
			args:     []string{"sync", "acme", "--since", "yesterday"},
			orders:   &fakeOrders{},
			wantCode: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			app.Orders = tt.orders

			res := execute(t, app, tt.args...)

			requireExitCode(t, tt.wantCode, res.err)
			assert.Equal(t, tt.wantRuns, tt.orders.tenants)
			for _, s := range tt.contains {
				assert.Contains(t, res.out, s)
			}
		})
	}
}

func TestSyncCommandPassesOptions(t *testing.T) {
	orders := &fakeOrders{}
	app := newTestApp()
	app.Orders = orders

	res := execute(t, app, "sync", "acme", "--dry-run", "--since", "2024-03-01", "--limit", "20")
	require.NoError(t, res.err)

	require.Len(t, orders.calls, 1)
	opts := orders.calls[0]
	assert.True(t, opts.DryRun)
	assert.Equal(t, 20, opts.Limit)
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(opts.Since))
	assert.Equal(t, []BootMode{BootEngines}, res.modes)
	assert.Equal(t, 1, res.closed)
	assert.Contains(t, res.out, "dry run")
}

func TestSyncCommandJSON(t *testing.T) {
	orders := &fakeOrders{summaries: map[string]*appintegration.OrderRunSummary{
		"acme": {Tenant: "acme", Failed: 1, Orders: []appintegration.OrderResult{{OrderNumber: "#1001", Outcome: appintegration.OrderOutcomeFailed}}},
	}}
	app := newTestApp()
	app.Orders = orders

	res := execute(t, app, "sync", "acme", "--format", "json")
	requireExitCode(t, ExitFailure, res.err)

	var resp struct {
		Status string           `json:"status"`
		Data   []TenantOrderRun `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "acme", resp.Data[0].Tenant)
	require.NotNil(t, resp.Data[0].Summary)
	assert.Equal(t, 1, resp.Data[0].Summary.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ExitFailure, resp.Error.Code)
}

func TestSyncCommandVerboseListsEveryOrder(t *testing.T) {
	orders := &fakeOrders{summaries: map[string]*appintegration.OrderRunSummary{
		"acme": {Tenant: "acme", Succeeded: 1, Skipped: 1, Orders: []appintegration.OrderResult{
			{OrderNumber: "#1001", Outcome: appintegration.OrderOutcomeSucceeded, ExternalRef: "SO-00000042"},
			{OrderNumber: "#1000", Outcome: appintegration.OrderOutcomeSkipped, Reason: "already synced"},
		}},
	}}
	app := newTestApp()
	app.Orders = orders

	quiet := execute(t, app, "sync", "acme")
	require.NoError(t, quiet.err)
	assert.NotContains(t, quiet.out, "#1001")

	loud := execute(t, app, "sync", "acme", "-v")
	require.NoError(t, loud.err)
	assert.Contains(t, loud.out, "SO-00000042")
	assert.Contains(t, loud.out, "already synced")
}
