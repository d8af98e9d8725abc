package reconcile

import (
	"context"
	"fmt"

	"storefront/internal/model"
)

// Trigger says why a reconciliation runs.
type Trigger string

const (
	// TriggerPassive is validation on load of a cart-bearing view.
	TriggerPassive Trigger = "passive"
	// TriggerRefresh is an explicit "refresh cart" request.
	TriggerRefresh Trigger = "refresh"
	// TriggerCheckout is a checkout attempt.
	TriggerCheckout Trigger = "checkout"
)

// ParseTrigger validates a trigger name.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerPassive, TriggerRefresh, TriggerCheckout:
		return t, nil
	}
	return "", model.NewValidationError("trigger", fmt.Sprintf("unknown trigger %q", s))
}

// Confirm button labels shown with a held diff.
const (
	LabelUpdateAndCheckout = "Update Cart & Checkout"
	LabelUpdate            = "Update Cart"
)

// Policy decides what happens to a validation diff that changes the cart.
type Policy interface {
	Name() string
	resolve(ctx context.Context, c *Controller, d *diff) (*Outcome, error)
}

// AutoApply applies the diff immediately and posts a non-blocking summary.
type AutoApply struct{}

func (AutoApply) Name() string { return "auto_apply" }

func (AutoApply) resolve(ctx context.Context, c *Controller, d *diff) (*Outcome, error) {
	out, err := c.apply(ctx, d)
	if err != nil || out.Stale {
		return out, err
	}
	c.notifySummary(d.result)
	return out, nil
}

// ConfirmBeforeApply holds the diff until the user confirms or cancels.
type ConfirmBeforeApply struct {
	ConfirmLabel string
}

func (p ConfirmBeforeApply) Name() string { return "confirm_before_apply" }

func (p ConfirmBeforeApply) resolve(_ context.Context, c *Controller, d *diff) (*Outcome, error) {
	return c.hold(d, p.ConfirmLabel), nil
}

// PolicyFor selects the policy for a trigger: passive loads converge
// silently, explicit actions ask first.
func PolicyFor(t Trigger) Policy {
	switch t {
	case TriggerCheckout:
		return ConfirmBeforeApply{ConfirmLabel: LabelUpdateAndCheckout}
	case TriggerRefresh:
		return ConfirmBeforeApply{ConfirmLabel: LabelUpdate}
	default:
		return AutoApply{}
	}
}
