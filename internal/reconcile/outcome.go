package reconcile

import (
	"fmt"
	"strings"

	"storefront/internal/model"
)

// State is the controller's position in the reconciliation cycle.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateClean             State = "clean"
	StateDiffPending       State = "diff_pending"
	StateApplying          State = "applying"
	StateProceedToCheckout State = "proceed_to_checkout"
)

// Outcome reports how one reconciliation ended.
type Outcome struct {
	Trigger           Trigger                 `json:"trigger"`
	State             State                   `json:"state"`
	Policy            string                  `json:"policy,omitempty"`
	CartChanged       bool                    `json:"cart_changed"`
	Applied           bool                    `json:"applied"`
	ProceedToCheckout bool                    `json:"proceed_to_checkout"`
	Stale             bool                    `json:"stale,omitempty"`
	Skipped           bool                    `json:"skipped,omitempty"`
	Result            *model.ValidationResult `json:"result,omitempty"`
	Confirmation      *Confirmation           `json:"confirmation,omitempty"`
}

// Confirmation is a held diff awaiting the user's decision. It lists every
// removed and adjusted item plus the items that survive unchanged.
type Confirmation struct {
	Trigger      Trigger             `json:"trigger"`
	ConfirmLabel string              `json:"confirm_label"`
	Removed      []model.RemovedItem `json:"removed_items"`
	Updated      []model.UpdatedItem `json:"updated_items"`
	Valid        []model.ValidItem   `json:"valid_cart_items"`
}

// remaining counts the lines left in the cart once a result is applied.
func remaining(r *model.ValidationResult) int {
	return len(r.ValidCartItems) + len(r.UpdatedItems)
}

// Summary renders a one-line description of the changes in r,
// e.g. "1 item removed, 2 quantities adjusted".
func Summary(r *model.ValidationResult) string {
	var parts []string
	if n := len(r.RemovedItems); n > 0 {
		parts = append(parts, plural(n, "item", "items")+" removed")
	}
	if n := len(r.UpdatedItems); n > 0 {
		parts = append(parts, plural(n, "quantity", "quantities")+" adjusted")
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

// Details lists the per-item messages of a diff, removals first.
func Details(r *model.ValidationResult) []string {
	out := make([]string, 0, len(r.RemovedItems)+len(r.UpdatedItems))
	for _, item := range r.RemovedItems {
		out = append(out, itemMessage(item.ProductName, item.ProductID, item.Message, string(item.Reason)))
	}
	for _, item := range r.UpdatedItems {
		msg := item.Message
		if msg == "" {
			msg = fmt.Sprintf("quantity reduced from %d to %d", item.OriginalQuantity, item.AdjustedQuantity)
		}
		out = append(out, itemMessage(item.ProductName, item.ProductID, msg, ""))
	}
	return out
}

func itemMessage(name string, id model.ProductID, message, fallback string) string {
	if name == "" {
		name = "Product " + id.String()
	}
	if message == "" {
		message = strings.ReplaceAll(fallback, "_", " ")
	}
	return name + ": " + message
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
