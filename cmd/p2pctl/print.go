package main

import (
	"io"
	"strconv"
	"time"

	"escrowdesk/internal/client"
	"escrowdesk/internal/models"
	"escrowdesk/internal/money"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

func printListings(out io.Writer, listings []models.Listing) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Type", "Remaining", "Amount", "Rate", "Payment Method", "Min", "Max", "Contact"})
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, listing := range listings {
		table.Append([]string{
			strconv.FormatInt(listing.ID, 10),
			string(listing.Side),
			money.Format(listing.RemainingAmount),
			money.Format(listing.Amount),
			money.FormatRate(listing.Rate),
			listing.PaymentMethod,
			bound(listing.MinAmount),
			bound(listing.MaxAmount),
			listing.Contact,
		})
	}
	table.Render()
}

func printDeal(out io.Writer, deal client.Deal) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(false)
	table.SetRowLine(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Trade Code", deal.TradeCode},
		{"Status", string(deal.Status)},
		{"Listing", strconv.FormatInt(deal.ListingID, 10)},
		{"Buyer", deal.BuyerID},
		{"Seller", deal.SellerID},
		{"USDT", money.Format(deal.USDTAmount)},
		{"Rate", money.FormatRate(deal.Rate)},
		{"ETB", money.Format(deal.ETBAmount)},
		{"Commission", money.Format(deal.CommissionAmount)},
		{"Net USDT", money.Format(deal.NetAmount)},
		{"Payment Method", deal.PaymentMethod},
		{"Escrow Wallet", deal.EscrowWallet},
		{"Expires", deal.ExpiresAt.Format(time.RFC3339)},
		{"Remaining", (time.Duration(deal.RemainingSeconds) * time.Second).String()},
	})
	table.Render()
}

func bound(value decimal.NullDecimal) string {
	if !value.Valid {
		return "-"
	}
	return money.Format(value.Decimal)
}
