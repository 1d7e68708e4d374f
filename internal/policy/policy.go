// Package policy holds the pure commission and timer rules applied to deals.
package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTimeout is how long a deal stays actionable after creation.
const DefaultTimeout = 90 * time.Minute

// DefaultCommissionRate is 1.5% of the USDT amount.
var DefaultCommissionRate = decimal.New(15, -3)

const places int32 = 2

// ETBAmount returns usdtAmount * rate rounded to 2 places.
func ETBAmount(usdtAmount, rate decimal.Decimal) decimal.Decimal {
	return usdtAmount.Mul(rate).Round(places)
}

// Commission returns usdtAmount * commissionRate rounded to 2 places.
func Commission(usdtAmount, commissionRate decimal.Decimal) decimal.Decimal {
	return usdtAmount.Mul(commissionRate).Round(places)
}

// NetPayout is the USDT released to the buyer once the commission is withheld.
func NetPayout(usdtAmount, commission decimal.Decimal) decimal.Decimal {
	return usdtAmount.Sub(commission)
}

func Expiry(createdAt time.Time, timeout time.Duration) time.Time {
	return createdAt.Add(timeout)
}

// Expired reports whether now is strictly past expiresAt.
func Expired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}

// Remaining is for display only. Authorization re-derives expiry from the deal itself.
func Remaining(expiresAt, now time.Time) time.Duration {
	left := expiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Quote bundles the amounts derived for a deal at creation time.
type Quote struct {
	ETBAmount        decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	NetAmount        decimal.Decimal
}

func NewQuote(usdtAmount, rate, commissionRate decimal.Decimal) Quote {
	commission := Commission(usdtAmount, commissionRate)
	return Quote{
		ETBAmount:        ETBAmount(usdtAmount, rate),
		CommissionRate:   commissionRate,
		CommissionAmount: commission,
		NetAmount:        NetPayout(usdtAmount, commission),
	}
}
