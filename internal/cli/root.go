// Package cli implements the storesync command line.
package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/storesync/internal/domain/integration"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	newApp AppFactory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the storesync command tree. A nil factory uses Bootstrap.
func NewRootCommand(factory AppFactory) *cobra.Command {
	if factory == nil {
		factory = Bootstrap
	}
	opts := &RootOptions{newApp: factory}

	cmd := &cobra.Command{
		Use:   "storesync",
		Short: "Sync Shopify orders and stock with Unleashed",
		Long: `storesync replicates storefront orders into the ERP exactly once per order,
expanding bundle SKUs into their components, and pushes ERP stock levels
back to the storefront.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.toml (default: search ., ./config, /etc/storesync)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging and per-order detail")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewInventoryCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewMappingCommand(opts))
	cmd.AddCommand(NewERPCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// open builds the App and returns a cleanup func for defer.
func (o *RootOptions) open(ctx context.Context, mode BootMode) (*App, func(), error) {
	app, err := o.newApp(ctx, o, mode)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "startup failed", err)
	}
	return app, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Close(ctx)
	}, nil
}

// resolveTenants expands "all" and checks named tenants exist.
func resolveTenants(configs integration.StoreConfigProvider, target string) ([]string, error) {
	if strings.EqualFold(target, "all") {
		tenants := configs.Tenants()
		if len(tenants) == 0 {
			return nil, NewExitError(ExitCommandError, "no tenants configured")
		}
		return tenants, nil
	}
	if _, err := configs.Get(target); err != nil {
		return nil, WrapExitError(ExitCommandError, "unknown tenant", err)
	}
	return []string{target}, nil
}

// tenantConfig returns the config of one named tenant.
func tenantConfig(configs integration.StoreConfigProvider, tenant string) (*integration.StoreConfig, error) {
	cfg, err := configs.Get(tenant)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "unknown tenant", err)
	}
	return cfg, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
