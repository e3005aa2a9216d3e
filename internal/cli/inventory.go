package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/storesync/internal/application/integration"
)

// InventoryOptions holds flags for the inventory command.
type InventoryOptions struct {
	*RootOptions
	DryRun bool
}

// TenantInventoryRun is the outcome of one tenant in an inventory invocation.
type TenantInventoryRun struct {
	Tenant string                          `json:"tenant"`
	Report *appintegration.InventoryReport `json:"report,omitempty"`
	Error  string                          `json:"error,omitempty"`
}

// NewInventoryCommand creates the inventory command.
func NewInventoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InventoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inventory <tenant|all>",
		Short: "Push ERP stock on hand to the storefront",
		Long: `Read stock on hand from the ERP and set the storefront available quantity
at the tenant's location for every SKU that exists in both systems. SKUs
that exist on only one side are reported as mismatches.

Example:
  storesync inventory acme --dry-run
  storesync inventory all --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInventory(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report changes without writing to the storefront")

	return cmd
}

func runInventory(cmd *cobra.Command, opts *InventoryOptions, target string) error {
	ctx := cmd.Context()
	app, closeApp, err := opts.open(ctx, BootEngines)
	if err != nil {
		return err
	}
	defer closeApp()

	tenants, err := resolveTenants(app.Configs, target)
	if err != nil {
		return err
	}

	runs := make([]TenantInventoryRun, 0, len(tenants))
	var exitErr *ExitError
	for _, tenant := range tenants {
		report, err := app.Inventory.Run(ctx, tenant, appintegration.InventoryRunOptions{DryRun: opts.DryRun})
		run := TenantInventoryRun{Tenant: tenant, Report: report}
		if err != nil {
			run.Error = err.Error()
			exitErr = worseExit(exitErr, runExitError(tenant, err))
		} else if report != nil && report.HasFailures() {
			exitErr = worseExit(exitErr, NewExitError(ExitFailure, "one or more SKUs failed to update"))
		}
		runs = append(runs, run)
	}

	return opts.output(cmd).RenderWithError(runs, exitErr, func(w io.Writer) {
		for _, run := range runs {
			writeInventoryRun(w, run, opts.Verbose)
		}
	})
}

func writeInventoryRun(w io.Writer, run TenantInventoryRun, verbose bool) {
	r := run.Report
	if r == nil {
		fmt.Fprintf(w, "%s: error: %s\n", run.Tenant, run.Error)
		return
	}

	verb := "updated"
	if r.DryRun {
		verb = "would update"
	}
	fmt.Fprintf(w, "%s: %s %d, unchanged %d, errors %d (location %s, %d ERP SKUs)\n",
		run.Tenant, verb, len(r.Updated), r.Unchanged, len(r.Errors), r.LocationID, r.ERPSKUs)
	if run.Error != "" {
		fmt.Fprintf(w, "  aborted: %s\n", run.Error)
	}

	if verbose {
		for _, c := range r.Updated {
			fmt.Fprintf(w, "  %-20s %d -> %d\n", c.SKU, c.From, c.To)
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %-20s error: %s\n", e.SKU, e.Error)
	}

	writeSKUList(w, "oversell allowed, skipped", r.SkippedOversell)
	writeSKUList(w, "in ERP only", r.NotInStorefront)
	writeSKUList(w, "in storefront only", r.NotInERP)
}

func writeSKUList(w io.Writer, label string, skus []string) {
	if len(skus) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s (%d): %s\n", label, len(skus), strings.Join(skus, ", "))
}
