package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/erp/storesync/internal/domain/integration"
)

// MappingView is the output shape of one bundle mapping.
type MappingView struct {
	Tenant        string          `json:"tenant"`
	StorefrontSKU string          `json:"storefront_sku"`
	Components    []ComponentView `json:"components"`
}

// ComponentView is one bundle component in output.
type ComponentView struct {
	ERPProductCode     string `json:"erp_product_code"`
	QuantityMultiplier string `json:"quantity_multiplier"`
}

func toMappingView(m integration.BundleMapping) MappingView {
	v := MappingView{Tenant: m.Tenant, StorefrontSKU: m.StorefrontSKU, Components: make([]ComponentView, len(m.Components))}
	for i, c := range m.Components {
		v.Components[i] = ComponentView{ERPProductCode: c.ERPProductCode, QuantityMultiplier: c.QuantityMultiplier.String()}
	}
	return v
}

// NewMappingCommand creates the mapping command group.
func NewMappingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage bundle SKU mappings",
		Long: `Bundle mappings expand one storefront SKU into several ERP products when
orders are synced. A SKU without a mapping passes through unchanged.`,
	}
	cmd.AddCommand(newMappingListCommand(rootOpts))
	cmd.AddCommand(newMappingSetCommand(rootOpts))
	cmd.AddCommand(newMappingRemoveCommand(rootOpts))
	return cmd
}

func newMappingListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenant>",
		Short: "List active bundle mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := args[0]
			ctx := cmd.Context()
			app, closeApp, err := opts.open(ctx, BootStorage)
			if err != nil {
				return err
			}
			defer closeApp()

			if _, err := tenantConfig(app.Configs, tenant); err != nil {
				return err
			}
			mappings, err := app.Mappings.ListByTenant(ctx, tenant)
			if err != nil {
				return WrapExitError(ExitFailure, "list mappings", err)
			}
			views := make([]MappingView, len(mappings))
			for i, m := range mappings {
				views[i] = toMappingView(m)
			}

			return opts.output(cmd).Render(views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintln(w, "no bundle mappings")
					return
				}
				for _, v := range views {
					writeMapping(w, v)
				}
			})
		},
	}
}

func newMappingSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <tenant> <storefront-sku> <erp-code=multiplier>...",
		Short: "Create or replace a bundle mapping",
		Long: `Replace every component of a bundle SKU in one step. Components are applied
in the order given; a multiplier may be fractional and is rounded half-up
per order line.

Example:
  storesync mapping set acme BUNDLE-1 RAW-A=3 RAW-B=1`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := parseMapping(args[0], args[1], args[2:])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, closeApp, err := opts.open(ctx, BootStorage)
			if err != nil {
				return err
			}
			defer closeApp()

			if _, err := tenantConfig(app.Configs, mapping.Tenant); err != nil {
				return err
			}
			if err := app.Mappings.Replace(ctx, mapping); err != nil {
				return WrapExitError(ExitFailure, "save mapping", err)
			}

			view := toMappingView(*mapping)
			return opts.output(cmd).Render(view, func(w io.Writer) {
				fmt.Fprint(w, "saved ")
				writeMapping(w, view)
			})
		},
	}
}

func newMappingRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <tenant> <storefront-sku>",
		Short: "Deactivate a bundle mapping",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, sku := args[0], args[1]
			ctx := cmd.Context()
			app, closeApp, err := opts.open(ctx, BootStorage)
			if err != nil {
				return err
			}
			defer closeApp()

			if _, err := tenantConfig(app.Configs, tenant); err != nil {
				return err
			}
			if err := app.Mappings.Deactivate(ctx, tenant, sku); err != nil {
				if errors.Is(err, integration.ErrBundleMappingNotFound) {
					return WrapExitError(ExitCommandError, "no active mapping for "+sku, err)
				}
				return WrapExitError(ExitFailure, "remove mapping", err)
			}

			result := map[string]string{"tenant": tenant, "storefront_sku": sku, "status": "removed"}
			return opts.output(cmd).Render(result, func(w io.Writer) {
				fmt.Fprintf(w, "removed %s/%s\n", tenant, sku)
			})
		},
	}
}

// parseMapping builds a mapping from "CODE=MULT" arguments.
func parseMapping(tenant, sku string, specs []string) (*integration.BundleMapping, error) {
	m := &integration.BundleMapping{Tenant: tenant, StorefrontSKU: strings.TrimSpace(sku)}
	if m.StorefrontSKU == "" {
		return nil, NewExitError(ExitCommandError, "storefront SKU must not be empty")
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		code, mult, ok := strings.Cut(s, "=")
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid component %q: want CODE=MULTIPLIER", s))
		}
		if seen[code] {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("component %s listed twice", code))
		}
		seen[code] = true
		d, err := decimal.NewFromString(strings.TrimSpace(mult))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid multiplier in %q", s), err)
		}
		m.Components = append(m.Components, integration.BundleComponent{ERPProductCode: code, QuantityMultiplier: d})
	}
	if err := m.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid mapping", err)
	}
	return m, nil
}

func writeMapping(w io.Writer, v MappingView) {
	parts := make([]string, len(v.Components))
	for i, c := range v.Components {
		parts[i] = c.ERPProductCode + "×" + c.QuantityMultiplier
	}
	fmt.Fprintf(w, "%s -> %s\n", v.StorefrontSKU, strings.Join(parts, " + "))
}
