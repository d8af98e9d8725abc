// Package reconcile brings a cart in line with the API's authoritative view
// of stock, availability and price before checkout-sensitive actions.
//
// A Controller validates the current cart, classifies the response into a
// diff, and either applies it or holds it for confirmation depending on the
// Policy chosen for the trigger. Failures never touch the cart and always
// block checkout.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/validate"
)

// Cart is the part of the cart store the controller needs.
type Cart interface {
	Snapshot() ([]model.CartItem, uint64)
	Revision() uint64
	ApplyChangesAt(ctx context.Context, revision uint64, removals []model.ProductID, sets []cart.QuantitySet) (uint64, bool)
}

// Validator performs the authoritative cart check.
type Validator interface {
	ValidateCart(ctx context.Context, items []model.ItemRequest) (*model.ValidationResult, error)
}

// diff is a changed validation result bound to the cart revision it was
// computed against.
type diff struct {
	trigger   Trigger
	result    *model.ValidationResult
	submitted []model.ItemRequest
	revision  uint64
}

// Controller runs reconciliation for one cart-bearing session. At most one
// validation is in flight at a time.
type Controller struct {
	cart      Cart
	validator Validator
	notifier  notify.Notifier
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	inflight    bool
	closed      bool
	validated   bool
	pending     *pendingDiff
	lastResult  *model.ValidationResult
	checkoutOK  bool
	checkoutRev uint64
}

type pendingDiff struct {
	diff
	label string
}

// New returns an idle controller.
func New(c Cart, v Validator, n notify.Notifier, logger *slog.Logger) *Controller {
	if n == nil {
		n = notify.Discard{}
	}
	return &Controller{
		cart:      c,
		validator: v,
		notifier:  n,
		logger:    logger,
		state:     StateIdle,
	}
}

// Mount validates passively when a cart-bearing view opens, unless the
// cart is empty or was already validated in this session.
func (c *Controller) Mount(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	closed, validated, state := c.closed, c.validated, c.state
	c.mu.Unlock()

	if closed {
		return nil, model.NewSessionClosedError()
	}
	items, _ := c.cart.Snapshot()
	if validated || len(items) == 0 {
		return &Outcome{Trigger: TriggerPassive, State: state, Skipped: true}, nil
	}
	return c.Reconcile(ctx, TriggerPassive)
}

// Reconcile validates the cart and resolves any diff with the policy for
// trigger. A diff held by an earlier call is superseded.
func (c *Controller) Reconcile(ctx context.Context, trigger Trigger) (*Outcome, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	return c.run(ctx, trigger, false)
}

// Confirm applies the held diff. If the cart changed since it was
// computed, the diff is discarded and the cart is validated again.
func (c *Controller) Confirm(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, model.NewSessionClosedError()
	case c.inflight:
		c.mu.Unlock()
		return nil, model.NewConflictError("cart validation already in progress")
	case c.pending == nil:
		c.mu.Unlock()
		return nil, model.NewConflictError("no cart changes are awaiting confirmation")
	}
	p := c.pending
	c.pending = nil
	c.inflight = true
	c.mu.Unlock()
	defer c.end()

	out, err := c.apply(ctx, &p.diff)
	if err != nil {
		return nil, err
	}
	if out.Stale {
		c.logger.InfoContext(ctx, "cart changed before confirmation, revalidating",
			slog.String("trigger", string(p.trigger)))
		return c.run(ctx, p.trigger, true)
	}
	return out, nil
}

// Cancel discards the held diff; the cart is left untouched.
// It reports whether there was anything to discard.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	c.pending = nil
	c.state = StateIdle
	return true
}

// Close models unmount: a response still in flight is dropped and every
// later call fails with ErrSessionClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	c.checkoutOK = false
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the held diff, if any.
func (c *Controller) Pending() *Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	return confirmationOf(c.pending)
}

// LastResult returns the most recent verified validation result.
func (c *Controller) LastResult() *model.ValidationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// CheckoutAllowed reports whether the last reconciliation cleared the cart
// for checkout and the cart has not changed since.
func (c *Controller) CheckoutAllowed() bool {
	c.mu.Lock()
	ok, rev, closed := c.checkoutOK, c.checkoutRev, c.closed
	c.mu.Unlock()
	return ok && !closed && c.cart.Revision() == rev
}

// begin claims the single in-flight slot.
func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.NewSessionClosedError()
	}
	if c.inflight {
		return model.NewConflictError("cart validation already in progress")
	}
	c.inflight = true
	c.pending = nil
	c.checkoutOK = false
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// run validates the current cart. retried is set once the cart has already
// moved under one validation; a second move ends in a stale outcome.
func (c *Controller) run(ctx context.Context, trigger Trigger, retried bool) (*Outcome, error) {
	policy := PolicyFor(trigger)
	c.setState(StateValidating)

	items, rev := c.cart.Snapshot()
	if len(items) == 0 {
		c.setState(StateClean)
		if trigger == TriggerCheckout {
			c.notifier.Notify(notify.Notification{
				Level: notify.LevelWarning,
				Code:  "cart_empty",
				Title: "Your cart is empty",
			})
		}
		return &Outcome{Trigger: trigger, State: StateClean, Policy: policy.Name()}, nil
	}

	submitted := model.ToItemRequests(items)
	result, err := c.validator.ValidateCart(ctx, submitted)
	if c.isClosed() {
		return nil, model.NewSessionClosedError()
	}
	if err != nil {
		return nil, c.fail(ctx, trigger, err)
	}
	if err := validate.Verify(submitted, result); err != nil {
		return nil, c.fail(ctx, trigger, model.NewInvalidResultError(err))
	}

	c.mu.Lock()
	c.validated = true
	c.lastResult = result
	c.mu.Unlock()

	if c.cart.Revision() != rev {
		if !retried {
			c.logger.InfoContext(ctx, "cart changed during validation, revalidating",
				slog.String("trigger", string(trigger)))
			return c.run(ctx, trigger, true)
		}
		return c.stale(ctx, trigger), nil
	}

	if !result.CartChanged {
		return c.clean(ctx, trigger, result, rev), nil
	}

	c.setState(StateDiffPending)
	c.logger.DebugContext(ctx, "cart diff pending",
		slog.String("trigger", string(trigger)),
		slog.String("policy", policy.Name()),
		slog.Int("removed", len(result.RemovedItems)),
		slog.Int("updated", len(result.UpdatedItems)))

	out, err := policy.resolve(ctx, c, &diff{
		trigger:   trigger,
		result:    result,
		submitted: submitted,
		revision:  rev,
	})
	if err != nil || !out.Stale {
		return out, err
	}
	if !retried {
		return c.run(ctx, trigger, true)
	}
	return c.stale(ctx, trigger), nil
}

func (c *Controller) clean(ctx context.Context, trigger Trigger, result *model.ValidationResult, rev uint64) *Outcome {
	out := &Outcome{
		Trigger: trigger,
		State:   StateClean,
		Policy:  PolicyFor(trigger).Name(),
		Result:  result,
	}
	if trigger == TriggerCheckout && len(result.ValidCartItems) > 0 {
		out.State = StateProceedToCheckout
		out.ProceedToCheckout = true
		c.allowCheckout(rev)
	}
	c.setState(out.State)
	c.logger.DebugContext(ctx, "cart clean", slog.String("trigger", string(trigger)),
		slog.Bool("proceed", out.ProceedToCheckout))
	return out
}

// apply writes a diff to the cart if the cart is still at the diff's
// revision. A Stale outcome means nothing was written.
func (c *Controller) apply(ctx context.Context, d *diff) (*Outcome, error) {
	c.setState(StateApplying)

	removals := make([]model.ProductID, 0, len(d.result.RemovedItems))
	for _, item := range d.result.RemovedItems {
		removals = append(removals, item.ProductID)
	}
	sets := make([]cart.QuantitySet, 0, len(d.result.UpdatedItems))
	for _, item := range d.result.UpdatedItems {
		sets = append(sets, cart.QuantitySet{ProductID: item.ProductID, Quantity: item.AdjustedQuantity})
	}

	// Close blocks on c.mu, so a closed controller never writes the cart.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, model.NewSessionClosedError()
	}
	rev, ok := c.cart.ApplyChangesAt(ctx, d.revision, removals, sets)
	c.mu.Unlock()
	if !ok {
		c.setState(StateIdle)
		return &Outcome{Trigger: d.trigger, State: StateIdle, CartChanged: true, Stale: true, Result: d.result}, nil
	}

	out := &Outcome{
		Trigger:     d.trigger,
		State:       StateIdle,
		Policy:      PolicyFor(d.trigger).Name(),
		CartChanged: true,
		Applied:     true,
		Result:      d.result,
	}
	switch {
	case remaining(d.result) == 0:
		if d.trigger == TriggerCheckout {
			c.notifier.Notify(notify.Notification{
				Level:   notify.LevelWarning,
				Code:    "cart_empty",
				Title:   "No items left to check out",
				Message: "Every item in your cart is currently unavailable.",
			})
		}
	case d.trigger == TriggerCheckout:
		out.State = StateProceedToCheckout
		out.ProceedToCheckout = true
		c.allowCheckout(rev)
	}
	c.setState(out.State)

	c.logger.InfoContext(ctx, "cart diff applied",
		slog.String("trigger", string(d.trigger)),
		slog.Int("removed", len(d.result.RemovedItems)),
		slog.Int("updated", len(d.result.UpdatedItems)),
		slog.Bool("proceed", out.ProceedToCheckout))
	return out, nil
}

// hold parks a diff for confirmation.
func (c *Controller) hold(d *diff, label string) *Outcome {
	p := &pendingDiff{diff: *d, label: label}

	c.mu.Lock()
	c.pending = p
	c.state = StateDiffPending
	c.mu.Unlock()

	return &Outcome{
		Trigger:      d.trigger,
		State:        StateDiffPending,
		Policy:       ConfirmBeforeApply{}.Name(),
		CartChanged:  true,
		Result:       d.result,
		Confirmation: confirmationOf(p),
	}
}

func (c *Controller) stale(ctx context.Context, trigger Trigger) *Outcome {
	c.setState(StateIdle)
	c.logger.WarnContext(ctx, "cart kept changing during validation",
		slog.String("trigger", string(trigger)))
	c.notifier.Notify(notify.Notification{
		Level:   notify.LevelWarning,
		Code:    "cart_stale",
		Title:   "Your cart changed while it was being checked",
		Message: "Please review your cart and try again.",
	})
	return &Outcome{Trigger: trigger, State: StateIdle, Stale: true}
}

// fail records a validation failure: cart untouched, checkout blocked,
// error notification posted. It returns the error to hand to the caller.
func (c *Controller) fail(ctx context.Context, trigger Trigger, err error) error {
	c.mu.Lock()
	c.state = StateIdle
	c.checkoutOK = false
	c.mu.Unlock()

	c.logger.WarnContext(ctx, "cart validation failed",
		slog.String("trigger", string(trigger)),
		slog.String("error", err.Error()))

	c.notifier.Notify(notify.Notification{
		Level:   notify.LevelError,
		Code:    "validation_failed",
		Title:   "We couldn't verify your cart",
		Message: "Please try again before checking out.",
	})

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewUpstreamError("cart validation", err)
}

func (c *Controller) allowCheckout(rev uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkoutOK = true
	c.checkoutRev = rev
}

func (c *Controller) notifySummary(result *model.ValidationResult) {
	c.notifier.Notify(notify.Notification{
		Level:   notify.LevelWarning,
		Code:    "cart_updated",
		Title:   "Cart updated: " + Summary(result),
		Message: strings.Join(Details(result), "\n"),
	})
}

func confirmationOf(p *pendingDiff) *Confirmation {
	return &Confirmation{
		Trigger:      p.trigger,
		ConfirmLabel: p.label,
		Removed:      p.result.RemovedItems,
		Updated:      p.result.UpdatedItems,
		Valid:        p.result.ValidCartItems,
	}
}
