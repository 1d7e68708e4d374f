package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	cases := []struct {
		input   string
		places  int32
		want    string
		wantErr error
	}{
		{input: "100", places: AmountPlaces, want: "100.00"},
		{input: " 12.5 ", places: AmountPlaces, want: "12.50"},
		{input: "120.5025", places: RatePlaces, want: "120.5025"},
		{input: "1.001", places: AmountPlaces, wantErr: ErrTooManyDecimals},
		{input: "0", places: AmountPlaces, wantErr: ErrNotPositive},
		{input: "-3", places: AmountPlaces, wantErr: ErrNotPositive},
		{input: "abc", places: AmountPlaces, wantErr: ErrInvalidAmount},
		{input: "", places: AmountPlaces, wantErr: ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := Parse(tc.input, tc.places)
		if err != tc.wantErr {
			t.Fatalf("Parse(%q): expected error %v, got %v", tc.input, tc.wantErr, err)
		}
		if tc.wantErr == nil && got.StringFixed(tc.places) != decimal.RequireFromString(tc.want).StringFixed(tc.places) {
			t.Fatalf("Parse(%q): expected %s, got %s", tc.input, tc.want, got)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(decimal.RequireFromString("98.5")); got != "98.50" {
		t.Fatalf("expected 98.50, got %s", got)
	}
	if got := FormatRate(decimal.RequireFromString("120.5")); got != "120.5000" {
		t.Fatalf("expected 120.5000, got %s", got)
	}
}
