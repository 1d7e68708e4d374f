package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// AmountPlaces is the scale of USDT and ETB amounts.
	AmountPlaces int32 = 2
	// RatePlaces is the scale of an ETB per USDT rate.
	RatePlaces int32 = 4
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNotPositive     = errors.New("amount must be greater than zero")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Parse reads a decimal string such as "120.50" and checks it against places.
func Parse(input string, places int32) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckPositive(value, places); err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

// CheckPositive rejects values that are not strictly positive or carry more than places decimals.
func CheckPositive(value decimal.Decimal, places int32) error {
	if !value.IsPositive() {
		return ErrNotPositive
	}
	if !fitsScale(value, places) {
		return ErrTooManyDecimals
	}
	return nil
}

func Format(value decimal.Decimal) string {
	return value.StringFixed(AmountPlaces)
}

func FormatRate(value decimal.Decimal) string {
	return value.StringFixed(RatePlaces)
}

func fitsScale(value decimal.Decimal, places int32) bool {
	return value.Equal(value.Truncate(places))
}
