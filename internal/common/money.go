package common

import (
	"fmt"
	"strings"
)

// currencySymbols maps ISO 4217 codes to display symbols for currencies this
// demo is expected to run with. Unknown codes fall back to the code itself.
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"AUD": "A$",
	"CAD": "CA$",
	"IDR": "Rp",
	"JPY": "¥",
}

// zeroDecimalCurrencies have no minor unit, so amounts are already whole.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
}

// FormatMinorUnits renders an amount held in minor units (cents) using the
// currency's symbol convention, e.g. 1099/"USD" -> "$10.99".
func FormatMinorUnits(amount int64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code + " "
	}
	if zeroDecimalCurrencies[code] {
		return fmt.Sprintf("%s%d", symbol, amount)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, amount/100, amount%100)
}
