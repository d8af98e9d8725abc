package model

import "github.com/shopspring/decimal"

// Payment methods accepted at checkout.
const (
	PaymentCard          = "card"
	PaymentPurchaseOrder = "purchase_order"
)

// TotalsRequest asks the backend for authoritative order totals.
type TotalsRequest struct {
	Items          []ItemRequest `json:"items"`
	ShippingMethod string        `json:"shipping_method,omitempty"`
	BillingCountry string        `json:"billing_country,omitempty"`
}

// OrderTotals are currency amounts for an order.
type OrderTotals struct {
	Subtotal       decimal.Decimal  `json:"subtotal"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	ShippingAmount decimal.Decimal  `json:"shipping_amount"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	TaxRate        *decimal.Decimal `json:"tax_rate,omitempty"`
}

// Address is a billing or shipping address.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country,omitempty" validate:"omitempty,len=2"`
}

// OrderForm is the customer-entered part of an order.
type OrderForm struct {
	Email          string  `json:"email" validate:"required,email"`
	FirstName      string  `json:"first_name" validate:"required"`
	LastName       string  `json:"last_name" validate:"required"`
	Phone          string  `json:"phone,omitempty"`
	Billing        Address `json:"billing"`
	Shipping       Address `json:"shipping"`
	PaymentMethod  string  `json:"payment_method" validate:"required,oneof=card purchase_order"`
	ShippingMethod string  `json:"shipping_method" validate:"required,oneof=standard express"`
}

// OrderLine is a priced line item sent with an order.
type OrderLine struct {
	ProductID ProductID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderRequest is the flat order body the backend expects.
type OrderRequest struct {
	CustomerEmail     string          `json:"customer_email"`
	CustomerFirstName string          `json:"customer_first_name"`
	CustomerLastName  string          `json:"customer_last_name"`
	CustomerPhone     string          `json:"customer_phone,omitempty"`
	BillingLine1      string          `json:"billing_address_line1"`
	BillingLine2      string          `json:"billing_address_line2,omitempty"`
	BillingCity       string          `json:"billing_city"`
	BillingState      string          `json:"billing_state"`
	BillingPostalCode string          `json:"billing_postal_code"`
	BillingCountry    string          `json:"billing_country,omitempty"`
	ShipLine1         string          `json:"shipping_address_line1"`
	ShipLine2         string          `json:"shipping_address_line2,omitempty"`
	ShipCity          string          `json:"shipping_city"`
	ShipState         string          `json:"shipping_state"`
	ShipPostalCode    string          `json:"shipping_postal_code"`
	ShipCountry       string          `json:"shipping_country,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	ShippingAmount    decimal.Decimal `json:"shipping_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaymentMethod     string          `json:"payment_method"`
	ShippingMethod    string          `json:"shipping_method"`
	OrderItems        []OrderLine     `json:"order_items"`
}

// DefaultCountry is used when an address omits its country.
const DefaultCountry = "CA"

// NewOrderRequest flattens a form, totals and priced lines into the backend body.
func NewOrderRequest(form *OrderForm, totals *OrderTotals, lines []OrderLine) *OrderRequest {
	return &OrderRequest{
		CustomerEmail:     form.Email,
		CustomerFirstName: form.FirstName,
		CustomerLastName:  form.LastName,
		CustomerPhone:     form.Phone,
		BillingLine1:      form.Billing.Line1,
		BillingLine2:      form.Billing.Line2,
		BillingCity:       form.Billing.City,
		BillingState:      form.Billing.State,
		BillingPostalCode: form.Billing.PostalCode,
		BillingCountry:    countryOrDefault(form.Billing.Country),
		ShipLine1:         form.Shipping.Line1,
		ShipLine2:         form.Shipping.Line2,
		ShipCity:          form.Shipping.City,
		ShipState:         form.Shipping.State,
		ShipPostalCode:    form.Shipping.PostalCode,
		ShipCountry:       countryOrDefault(form.Shipping.Country),
		Subtotal:          totals.Subtotal,
		TaxAmount:         totals.TaxAmount,
		ShippingAmount:    totals.ShippingAmount,
		TotalAmount:       totals.TotalAmount,
		PaymentMethod:     form.PaymentMethod,
		ShippingMethod:    form.ShippingMethod,
		OrderItems:        lines,
	}
}

func countryOrDefault(country string) string {
	if country == "" {
		return DefaultCountry
	}
	return country
}

// Order is the backend's view of a created order.
type Order struct {
	ID                 int             `json:"id"`
	OrderNumber        string          `json:"order_number"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"payment_status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TrackingNumber     string          `json:"tracking_number,omitempty"`
	StripeClientSecret string          `json:"stripe_client_secret,omitempty"`
}

// Confirmation is what a caller needs to render the order-confirmation view.
type Confirmation struct {
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ClientSecret  string          `json:"client_secret,omitempty"`
}
