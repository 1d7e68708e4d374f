package main

import (
	"context"
	"errors"

	"escrowdesk/internal/client"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// dealActions maps subcommands onto the deal action endpoints.
var dealActions = []struct {
	use      string
	endpoint string
	short    string
}{
	{"escrow", "escrow-confirmed", "Confirm the seller's USDT reached the escrow wallet"},
	{"pay", "payment-confirmed", "Confirm the buyer's ETB payment"},
	{"release", "release", "Release escrowed USDT to the buyer"},
	{"cancel", "cancel", "Cancel a pending deal"},
	{"dispute", "dispute", "Raise a dispute on an escrowed or paid deal"},
}

func newDealCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deal",
		Short: "Inspect and drive escrow deals",
	}
	cmd.AddCommand(newDealShowCmd(opts), newDealOpenCmd(opts), newDealResolveCmd(opts))
	for _, action := range dealActions {
		cmd.AddCommand(newDealActionCmd(opts, action.use, action.endpoint, action.short))
	}
	return cmd
}

func newDealShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade code>",
		Short: "Show a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeal(cmd, func(ctx context.Context) (client.Deal, error) {
				return opts.client().Deal(ctx, args[0])
			})
		},
	}
}

func newDealOpenCmd(opts *cliOptions) *cobra.Command {
	var (
		req    client.OpenDealRequest
		amount string
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a deal against a listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.authedClient()
			if err != nil {
				return err
			}
			if req.ListingID <= 0 || req.BuyerID == "" || req.SellerID == "" {
				return errors.New("--listing, --buyer and --seller are required")
			}
			req.USDTAmount, err = decimal.NewFromString(amount)
			if err != nil {
				return errors.New("--usdt must be a decimal amount")
			}
			return runDeal(cmd, func(ctx context.Context) (client.Deal, error) {
				return c.OpenDeal(ctx, req)
			})
		},
	}
	cmd.Flags().Int64Var(&req.ListingID, "listing", 0, "listing id")
	cmd.Flags().StringVar(&req.BuyerID, "buyer", "", "buyer user id")
	cmd.Flags().StringVar(&req.SellerID, "seller", "", "seller user id")
	cmd.Flags().StringVar(&amount, "usdt", "", "USDT amount")
	return cmd
}

func newDealActionCmd(opts *cliOptions, use, endpoint, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <trade code>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.authedClient()
			if err != nil {
				return err
			}
			return runDeal(cmd, func(ctx context.Context) (client.Deal, error) {
				return c.Transition(ctx, args[0], endpoint)
			})
		},
	}
}

func newDealResolveCmd(opts *cliOptions) *cobra.Command {
	var outcome string
	cmd := &cobra.Command{
		Use:   "resolve <trade code>",
		Short: "Rule on a disputed deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.authedClient()
			if err != nil {
				return err
			}
			if outcome != "released" && outcome != "cancelled" {
				return errors.New("--outcome must be released or cancelled")
			}
			return runDeal(cmd, func(ctx context.Context) (client.Deal, error) {
				return c.Resolve(ctx, args[0], outcome)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "released or cancelled")
	return cmd
}

func runDeal(cmd *cobra.Command, call func(ctx context.Context) (client.Deal, error)) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	deal, err := call(ctx)
	if err != nil {
		return err
	}
	printDeal(cmd.OutOrStdout(), deal)
	return nil
}
