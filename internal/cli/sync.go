package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	DryRun bool
	Since  string
	Limit  int
}

// TenantOrderRun is the outcome of one tenant in a sync invocation.
type TenantOrderRun struct {
	Tenant  string                          `json:"tenant"`
	Summary *appintegration.OrderRunSummary `json:"summary,omitempty"`
	Error   string                          `json:"error,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <tenant|all>",
		Short: "Replicate storefront orders into the ERP",
		Long: `Fetch new storefront orders for one tenant (or every tenant) and create
the matching ERP sales orders. Orders already recorded in the sync ledger are
skipped, so re-running is safe.

Exit status is 0 when no order failed, 1 when any order failed or a run was
aborted, and 2 on command or configuration errors.

Example:
  storesync sync acme
  storesync sync all --since 2024-03-01 --limit 20
  storesync sync acme --dry-run --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "translate and report without writing to the ERP or the ledger")
	cmd.Flags().StringVar(&opts.Since, "since", "", "fetch orders placed on or after DATE (still bounded by the tenant's minimum sync date)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum orders to fetch per tenant (0 uses the configured default)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions, target string) error {
	runOpts := appintegration.OrderRunOptions{DryRun: opts.DryRun, Limit: opts.Limit}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	if opts.Since != "" {
		since, err := parseDate(opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "bad --since", err)
		}
		runOpts.Since = since
	}

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

	runs := make([]TenantOrderRun, 0, len(tenants))
	var exitErr *ExitError
	for _, tenant := range tenants {
		summary, err := app.Orders.Run(ctx, tenant, runOpts)
		run := TenantOrderRun{Tenant: tenant, Summary: summary}
		if err != nil {
			run.Error = err.Error()
			exitErr = worseExit(exitErr, runExitError(tenant, err))
		} else if summary != nil && (summary.HasFailures() || summary.Aborted) {
			exitErr = worseExit(exitErr, NewExitError(ExitFailure, "one or more orders failed"))
		}
		runs = append(runs, run)
	}

	return opts.output(cmd).RenderWithError(runs, exitErr, func(w io.Writer) {
		for _, run := range runs {
			writeOrderRun(w, run, opts.Verbose)
		}
	})
}

// runExitError classifies a run-level error: config problems are command
// errors, everything else (auth abort, storefront outage) is a failure.
func runExitError(tenant string, err error) *ExitError {
	if errors.Is(err, integration.ErrConfig) || errors.Is(err, integration.ErrTenantNotFound) {
		return WrapExitError(ExitCommandError, "tenant "+tenant+" is misconfigured", err)
	}
	return WrapExitError(ExitFailure, "run for "+tenant+" failed", err)
}

// worseExit keeps the error with the higher exit code.
func worseExit(current, next *ExitError) *ExitError {
	if current == nil || next.Code > current.Code {
		return next
	}
	return current
}

func writeOrderRun(w io.Writer, run TenantOrderRun, verbose bool) {
	s := run.Summary
	if s == nil {
		fmt.Fprintf(w, "%s: error: %s\n", run.Tenant, run.Error)
		return
	}

	if s.DryRun {
		fmt.Fprintf(w, "%s: planned=%d skipped=%d failed=%d (dry run, fetched %d, filtered %d)\n",
			run.Tenant, s.Planned, s.Skipped, s.Failed, s.Fetched, s.Filtered)
	} else {
		fmt.Fprintf(w, "%s: succeeded=%d skipped=%d failed=%d (fetched %d, filtered %d)\n",
			run.Tenant, s.Succeeded, s.Skipped, s.Failed, s.Fetched, s.Filtered)
	}
	if s.DeadlineReached {
		fmt.Fprintf(w, "  run deadline reached; remaining orders wait for the next run\n")
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  aborted: %s\n", run.Error)
	}

	for _, o := range s.Orders {
		if o.Outcome != appintegration.OrderOutcomeFailed && !verbose {
			continue
		}
		line := fmt.Sprintf("  %-10s %-9s", o.OrderNumber, o.Outcome)
		if o.ExternalRef != "" {
			line += " " + o.ExternalRef
		}
		if o.Reason != "" {
			line += " " + o.Reason
		}
		if verbose && !o.PlacedAt.IsZero() {
			line += " placed " + o.PlacedAt.Format(time.RFC3339)
		}
		fmt.Fprintln(w, line)
	}
}
