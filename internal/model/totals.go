package model

import "github.com/shopspring/decimal"

// Shipping methods offered at checkout.
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
)

// DefaultTaxRate is the Ontario HST applied to Canadian orders.
var DefaultTaxRate = decimal.RequireFromString("0.13")

var (
	standardShipping  = decimal.NewFromInt(150)
	expressShipping   = decimal.NewFromInt(250)
	freeShippingAbove = decimal.NewFromInt(5000)
)

// ShippingCost returns the shipping charge for a method and subtotal.
// Standard shipping is free above C$5000; express is a flat rate.
func ShippingCost(method string, subtotal decimal.Decimal) decimal.Decimal {
	if method == ShippingExpress {
		return expressShipping
	}
	if subtotal.GreaterThan(freeShippingAbove) {
		return decimal.Zero
	}
	return standardShipping
}

// ComputeTotals derives tax, shipping and total from a subtotal.
// Amounts are rounded to cents.
func ComputeTotals(subtotal, taxRate decimal.Decimal, shippingMethod string) *OrderTotals {
	subtotal = RoundMoney(subtotal)
	tax := RoundMoney(subtotal.Mul(taxRate))
	shipping := ShippingCost(shippingMethod, subtotal)
	rate := taxRate
	return &OrderTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		TotalAmount:    subtotal.Add(tax).Add(shipping),
		TaxRate:        &rate,
	}
}
