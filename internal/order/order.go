// Package order quotes and submits orders for a reconciled cart.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/backend"
	"storefront/internal/model"
	"storefront/internal/notify"
)

// Cart is the part of the cart store order submission reads and clears.
type Cart interface {
	Items() []model.CartItem
	Clear(ctx context.Context)
}

// Gate reports whether the cart was cleared for checkout and the prices
// the last validation confirmed.
type Gate interface {
	CheckoutAllowed() bool
	LastResult() *model.ValidationResult
}

// Prices resolves a product from a local catalog snapshot.
type Prices interface {
	Get(id model.ProductID) (model.Product, bool)
}

// Deps wires a Service.
type Deps struct {
	Backend  backend.Backend
	Cart     Cart
	Gate     Gate
	Prices   Prices // optional
	Notifier notify.Notifier
	TaxRate  decimal.Decimal
	Logger   *slog.Logger
}

// Service submits orders for one session's cart.
type Service struct {
	backend  backend.Backend
	cart     Cart
	gate     Gate
	prices   Prices
	notifier notify.Notifier
	taxRate  decimal.Decimal
	logger   *slog.Logger
	validate *validator.Validate
	newKey   func() string
}

// New returns a Service. A zero tax rate falls back to model.DefaultTaxRate.
func New(d Deps) *Service {
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.TaxRate.IsZero() {
		d.TaxRate = model.DefaultTaxRate
	}
	return &Service{
		backend:  d.Backend,
		cart:     d.Cart,
		gate:     d.Gate,
		prices:   d.Prices,
		notifier: d.Notifier,
		taxRate:  d.TaxRate,
		logger:   d.Logger,
		validate: newValidator(),
		newKey:   uuid.NewString,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Estimate is the local cart summary shown before an authoritative quote:
// subtotal of price × quantity and tax at taxRate, rounded to cents.
// Shipping is left at zero.
func Estimate(items []model.ValidItem, taxRate decimal.Decimal) *model.OrderTotals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(model.LineTotal(item.Price, item.Quantity))
	}
	subtotal = model.RoundMoney(subtotal)
	tax := model.RoundMoney(subtotal.Mul(taxRate))
	rate := taxRate
	return &model.OrderTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: decimal.Zero,
		TotalAmount:    subtotal.Add(tax),
		TaxRate:        &rate,
	}
}

// Estimate summarises the last validated cart at the service's tax rate.
func (s *Service) Estimate() *model.OrderTotals {
	var items []model.ValidItem
	if r := s.gate.LastResult(); r != nil {
		items = r.ValidCartItems
	}
	return Estimate(items, s.taxRate)
}

// Quote asks the API for authoritative totals for the current cart.
func (s *Service) Quote(ctx context.Context, shippingMethod string) (*model.OrderTotals, error) {
	items := s.cart.Items()
	if len(items) == 0 {
		return nil, model.NewValidationError("cart", "cart is empty")
	}
	if err := checkShippingMethod(shippingMethod); err != nil {
		return nil, err
	}
	return s.backend.CalculateTotals(ctx, &model.TotalsRequest{
		Items:          model.ToItemRequests(items),
		ShippingMethod: shippingMethod,
		BillingCountry: model.DefaultCountry,
	})
}

// Submit places an order for the current cart. The cart must have been
// cleared for checkout by reconciliation. On success the cart is emptied;
// on failure it is left as it was.
func (s *Service) Submit(ctx context.Context, form *model.OrderForm) (*model.Confirmation, error) {
	if !s.gate.CheckoutAllowed() {
		return nil, model.NewCheckoutBlockedError("cart must be validated before checkout")
	}
	if form == nil {
		return nil, model.NewValidationError("order form", "missing")
	}
	if err := s.validateForm(form); err != nil {
		return nil, err
	}

	items := s.cart.Items()
	if len(items) == 0 {
		return nil, model.NewCheckoutBlockedError("cart is empty")
	}

	order, err := s.place(ctx, form, items)
	if err != nil {
		s.logger.WarnContext(ctx, "order submission failed", slog.String("error", err.Error()))
		s.notifier.Notify(notify.Notification{
			Level:   notify.LevelError,
			Code:    "order_failed",
			Title:   "We couldn't place your order",
			Message: "Your cart has not been changed. Please try again.",
		})
		return nil, err
	}

	s.cart.Clear(ctx)
	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_number", order.OrderNumber),
		slog.String("total", order.TotalAmount.StringFixed(2)))
	s.notifier.Notify(notify.Notification{
		Level:   notify.LevelSuccess,
		Code:    "order_placed",
		Title:   "Order " + order.OrderNumber + " placed",
		Message: "Total " + model.FormatCAD(order.TotalAmount),
	})

	return &model.Confirmation{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		ClientSecret:  order.StripeClientSecret,
	}, nil
}

func (s *Service) place(ctx context.Context, form *model.OrderForm, items []model.CartItem) (*model.Order, error) {
	lines, err := s.priceLines(ctx, items)
	if err != nil {
		return nil, err
	}
	totals, err := s.backend.CalculateTotals(ctx, &model.TotalsRequest{
		Items:          model.ToItemRequests(items),
		ShippingMethod: form.ShippingMethod,
		BillingCountry: countryOf(form.Billing.Country),
	})
	if err != nil {
		return nil, err
	}
	return s.backend.CreateOrder(ctx, model.NewOrderRequest(form, totals, lines), s.newKey())
}

// priceLines prices each cart line from the last validation. Lines the
// validation adjusted carry no price there and are priced from the catalog.
func (s *Service) priceLines(ctx context.Context, items []model.CartItem) ([]model.OrderLine, error) {
	validated := make(map[model.ProductID]decimal.Decimal)
	if r := s.gate.LastResult(); r != nil {
		for _, v := range r.ValidCartItems {
			validated[v.ProductID] = v.Price
		}
	}

	lines := make([]model.OrderLine, 0, len(items))
	for _, item := range items {
		price, ok := validated[item.ProductID]
		if !ok {
			p, err := s.lookupPrice(ctx, item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("pricing product %s: %w", item.ProductID, err)
			}
			price = p
		}
		lines = append(lines, model.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity, Price: price})
	}
	return lines, nil
}

func (s *Service) lookupPrice(ctx context.Context, id model.ProductID) (decimal.Decimal, error) {
	if s.prices != nil {
		if p, ok := s.prices.Get(id); ok {
			return p.Price, nil
		}
	}
	p, err := s.backend.GetProduct(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}

// Lookup fetches an order for the confirmation view.
func (s *Service) Lookup(ctx context.Context, orderNumber string) (*model.Order, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, model.NewValidationError("order_number", "required")
	}
	return s.backend.GetOrder(ctx, orderNumber)
}

func (s *Service) validateForm(form *model.OrderForm) error {
	err := s.validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return model.NewValidationError("order form", err.Error())
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldName(fe)+" "+validationMessage(fe))
	}
	return model.NewValidationError("order form", strings.Join(msgs, "; "))
}

// fieldName drops the root struct from the namespace, e.g. "billing.city".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}

func checkShippingMethod(method string) error {
	switch method {
	case model.ShippingStandard, model.ShippingExpress:
		return nil
	}
	return model.NewValidationError("shipping_method", fmt.Sprintf("unknown method %q", method))
}

func countryOf(c string) string {
	if c == "" {
		return model.DefaultCountry
	}
	return c
}
