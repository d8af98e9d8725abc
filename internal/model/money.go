package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// The backend exchanges amounts as JSON numbers, not quoted strings.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Currency used for every amount in the storefront.
const (
	CurrencyCode   = "CAD"
	CurrencySymbol = "C$"
)

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal returns price × quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// FormatCAD renders an amount as "C$1234.50".
func FormatCAD(d decimal.Decimal) string {
	return CurrencySymbol + d.StringFixed(2)
}

// ParseCAD parses "C$1,234.50", "1234.50 CAD" or "1234.5".
// Unparseable input yields zero.
func ParseCAD(s string) decimal.Decimal {
	cleaned := strings.NewReplacer(CurrencySymbol, "", CurrencyCode, "", "$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(strings.TrimSpace(cleaned))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Cents converts an amount in dollars to integer cents.
// Examples: 99.00 → 9900, 1234.56 → 123456.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
