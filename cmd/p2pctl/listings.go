package main

import (
	"fmt"

	"escrowdesk/internal/client"

	"github.com/spf13/cobra"
)

func newListingsCmd(opts *cliOptions) *cobra.Command {
	var query client.ListingQuery
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "List marketplace listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			page, err := opts.client().Listings(ctx, query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total: %d  Buy: %d  Sell: %d\n", page.Total, page.BuyOrders, page.SellOrders)
			if len(page.Listings) == 0 {
				fmt.Fprintln(out, "There are no listings.")
				return nil
			}
			printListings(out, page.Listings)
			return nil
		},
	}
	cmd.Flags().StringVar(&query.Side, "type", "", "buy or sell")
	cmd.Flags().StringVar(&query.PaymentMethod, "payment-method", "", "payment rail, e.g. \"CBE Birr\"")
	cmd.Flags().StringVar(&query.Status, "status", "", "active (default) or closed")
	cmd.Flags().IntVar(&query.Limit, "limit", 50, "maximum rows")
	return cmd
}
