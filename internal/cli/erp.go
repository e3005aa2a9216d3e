package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erp/storesync/internal/domain/integration"
)

// NewERPCommand creates the erp command group used to check what the ERP
// holds without running a sync.
func NewERPCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erp",
		Short: "Query the ERP directly",
	}
	cmd.AddCommand(newERPOrderCommand(rootOpts))
	cmd.AddCommand(newERPStockCommand(rootOpts))
	return cmd
}

// ERPOrderView is an ERP sales order in output.
type ERPOrderView struct {
	OrderNumber string `json:"order_number"`
	GUID        string `json:"guid"`
	Reference   string `json:"reference"`
}

func newERPOrderCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order <tenant> <storefront-order-id>",
		Short: "Find the ERP sales order created for a storefront order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, ref := args[0], args[1]
			ctx := cmd.Context()
			app, closeApp, err := opts.open(ctx, BootStorage)
			if err != nil {
				return err
			}
			defer closeApp()

			cfg, err := tenantConfig(app.Configs, tenant)
			if err != nil {
				return err
			}
			order, err := app.ERP.FindSalesOrderByReference(ctx, cfg, ref)
			if err != nil {
				return WrapExitError(ExitFailure, "ERP lookup failed", err)
			}
			if order == nil {
				return opts.output(cmd).RenderWithError(nil,
					NewExitError(ExitFailure, "no ERP sales order references "+ref),
					func(w io.Writer) {})
			}

			view := ERPOrderView{OrderNumber: order.OrderNumber, GUID: order.GUID, Reference: order.Reference}
			return opts.output(cmd).Render(view, func(w io.Writer) {
				fmt.Fprintf(w, "%s guid=%s reference=%s\n", view.OrderNumber, view.GUID, view.Reference)
			})
		},
	}
}

// StockView is one stock-on-hand row in output.
type StockView struct {
	ProductCode   string `json:"product_code"`
	WarehouseCode string `json:"warehouse_code,omitempty"`
	QtyOnHand     string `json:"qty_on_hand"`
}

func newERPStockCommand(opts *RootOptions) *cobra.Command {
	var skus []string

	cmd := &cobra.Command{
		Use:   "stock <tenant>",
		Short: "Show ERP stock on hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := args[0]
			ctx := cmd.Context()
			app, closeApp, err := opts.open(ctx, BootStorage)
			if err != nil {
				return err
			}
			defer closeApp()

			cfg, err := tenantConfig(app.Configs, tenant)
			if err != nil {
				return err
			}
			levels, err := app.ERP.ListStockOnHand(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "ERP stock query failed", err)
			}

			rows := filterStock(levels, skus)
			return opts.output(cmd).Render(rows, func(w io.Writer) {
				if len(rows) == 0 {
					fmt.Fprintln(w, "no stock rows")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PRODUCT\tWAREHOUSE\tON HAND")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ProductCode, dash(r.WarehouseCode), r.QtyOnHand)
				}
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().StringSliceVar(&skus, "sku", nil, "only show these product codes (repeatable)")
	return cmd
}

func filterStock(levels []integration.StockLevel, skus []string) []StockView {
	want := make(map[string]bool, len(skus))
	for _, s := range skus {
		want[strings.TrimSpace(s)] = true
	}

	rows := make([]StockView, 0, len(levels))
	for _, l := range levels {
		if len(want) > 0 && !want[l.ProductCode] {
			continue
		}
		rows = append(rows, StockView{
			ProductCode:   l.ProductCode,
			WarehouseCode: l.WarehouseCode,
			QtyOnHand:     l.QtyOnHand.String(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductCode != rows[j].ProductCode {
			return rows[i].ProductCode < rows[j].ProductCode
		}
		return rows[i].WarehouseCode < rows[j].WarehouseCode
	})
	return rows
}
