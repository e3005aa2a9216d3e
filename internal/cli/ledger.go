package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
)

// LedgerOptions holds flags for ledger list.
type LedgerOptions struct {
	*RootOptions
	Status string
	Kind   string
	Since  string
	Limit  int
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the sync ledger",
	}
	cmd.AddCommand(newLedgerListCommand(rootOpts))
	return cmd
}

func newLedgerListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <tenant>",
		Short: "List ledger entries of a tenant, newest first",
		Long: `List sync ledger entries. Failed entries are retried by the next run;
pending entries older than the stale window are reclaimed.

Example:
  storesync ledger list acme --status failed
  storesync ledger list acme --kind order --since 2024-03-01 --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerList(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (pending|success|skipped|failed)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter by kind (order|inventory)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only entries created on or after DATE")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries to return")

	return cmd
}

func (o *LedgerOptions) filter(tenant string) (integration.LedgerFilter, error) {
	f := integration.LedgerFilter{Tenant: tenant, Limit: o.Limit}
	if o.Limit <= 0 {
		return f, NewExitError(ExitCommandError, "--limit must be positive")
	}
	if o.Status != "" {
		f.Status = integration.LedgerStatus(o.Status)
		if !f.Status.IsValid() {
			return f, NewExitError(ExitCommandError, fmt.Sprintf("invalid --status %q", o.Status))
		}
	}
	if o.Kind != "" {
		f.Kind = integration.LedgerKind(o.Kind)
		if !f.Kind.IsValid() {
			return f, NewExitError(ExitCommandError, fmt.Sprintf("invalid --kind %q", o.Kind))
		}
	}
	if o.Since != "" {
		since, err := parseDate(o.Since)
		if err != nil {
			return f, WrapExitError(ExitCommandError, "bad --since", err)
		}
		f.Since = since
	}
	return f, nil
}

func runLedgerList(cmd *cobra.Command, opts *LedgerOptions, tenant string) error {
	filter, err := opts.filter(tenant)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, closeApp, err := opts.open(ctx, BootStorage)
	if err != nil {
		return err
	}
	defer closeApp()

	if _, err := tenantConfig(app.Configs, tenant); err != nil {
		return err
	}

	entries, err := app.Ledger.List(ctx, filter)
	if err != nil {
		return WrapExitError(ExitFailure, "list ledger", err)
	}
	out := appintegration.ToLedgerEntryResponses(entries)

	return opts.output(cmd).Render(out, func(w io.Writer) {
		if len(out) == 0 {
			fmt.Fprintln(w, "no ledger entries")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tKIND\tSTATUS\tATTEMPTS\tREF\tSTARTED\tERROR")
		for _, e := range out {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				e.IdempotencyKey, e.Kind, e.Status, e.AttemptCount,
				dash(e.ExternalRef), e.StartedAt.Format(time.DateTime), dash(e.LastError))
		}
		_ = tw.Flush()
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
