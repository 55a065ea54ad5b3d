package common

import "testing"

func TestFormatMinorUnits(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{1099, "USD", "$10.99"},
		{1099, "usd", "$10.99"},
		{5, "USD", "$0.05"},
		{-1099, "USD", "-$10.99"},
		{2500, "EUR", "€25.00"},
		{1099, "JPY", "¥1099"},
		{1099, "XYZ", "XYZ 10.99"},
	}
	for _, tc := range cases {
		if got := FormatMinorUnits(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("FormatMinorUnits(%d, %q) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
