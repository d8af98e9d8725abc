// Package validate classifies a submitted cart against the catalog and
// checks that a classification honors the validation contract.
package validate

import (
	"errors"
	"fmt"

	"storefront/internal/model"
)

// Lookup resolves a product by id. ok is false when the product does not exist.
type Lookup func(id model.ProductID) (product model.Product, ok bool)

// Classify sorts every submitted item into exactly one of the valid,
// removed or updated buckets. Bucket order follows input order.
func Classify(items []model.ItemRequest, lookup Lookup) *model.ValidationResult {
	result := &model.ValidationResult{
		ValidCartItems: []model.ValidItem{},
		RemovedItems:   []model.RemovedItem{},
		UpdatedItems:   []model.UpdatedItem{},
	}

	for _, item := range items {
		product, ok := lookup(item.ProductID)
		if !ok {
			result.RemovedItems = append(result.RemovedItems, model.RemovedItem{
				ProductID: item.ProductID,
				Reason:    model.ReasonNotFound,
				Message:   "Product no longer exists",
			})
			continue
		}

		if reason, removed := removalReason(&product); removed {
			result.RemovedItems = append(result.RemovedItems, model.RemovedItem{
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Reason:      reason,
				Message:     fmt.Sprintf("Product %q is no longer available", product.Name),
			})
			continue
		}

		if item.Quantity <= product.Quantity {
			result.ValidCartItems = append(result.ValidCartItems, model.ValidItem{
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				Price:       product.Price,
				ProductName: product.Name,
			})
			continue
		}

		result.UpdatedItems = append(result.UpdatedItems, model.UpdatedItem{
			ProductID:        item.ProductID,
			ProductName:      product.Name,
			OriginalQuantity: item.Quantity,
			AdjustedQuantity: product.Quantity,
			Message:          fmt.Sprintf("Only %d units of %q are available", product.Quantity, product.Name),
		})
	}

	result.CartChanged = result.HasChanges()
	return result
}

func removalReason(p *model.Product) (model.RemovalReason, bool) {
	switch {
	case !p.Active:
		return model.ReasonDiscontinued, true
	case !p.InStock:
		return model.ReasonUnavailable, true
	case p.Quantity <= 0:
		return model.ReasonOutOfStock, true
	}
	return "", false
}

// Verify checks result against the items that were submitted. All
// violations are reported together.
func Verify(submitted []model.ItemRequest, result *model.ValidationResult) error {
	if result == nil {
		return errors.New("missing validation result")
	}

	want := make(map[model.ProductID]int, len(submitted))
	for _, item := range submitted {
		want[item.ProductID] = item.Quantity
	}

	var errs []error
	seen := make(map[model.ProductID]bool, len(submitted))
	claim := func(id model.ProductID) bool {
		if _, ok := want[id]; !ok {
			errs = append(errs, fmt.Errorf("product %s was not submitted", id))
			return false
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("product %s appears more than once", id))
			return false
		}
		seen[id] = true
		return true
	}

	for _, item := range result.ValidCartItems {
		if !claim(item.ProductID) {
			continue
		}
		if item.Quantity != want[item.ProductID] {
			errs = append(errs, fmt.Errorf("valid product %s has quantity %d, submitted %d",
				item.ProductID, item.Quantity, want[item.ProductID]))
		}
		if item.Price.IsNegative() {
			errs = append(errs, fmt.Errorf("valid product %s has negative price %s", item.ProductID, item.Price))
		}
	}
	for _, item := range result.RemovedItems {
		claim(item.ProductID)
	}
	for _, item := range result.UpdatedItems {
		if !claim(item.ProductID) {
			continue
		}
		if item.AdjustedQuantity <= 0 || item.AdjustedQuantity >= item.OriginalQuantity {
			errs = append(errs, fmt.Errorf("updated product %s adjusts %d to %d",
				item.ProductID, item.OriginalQuantity, item.AdjustedQuantity))
		}
		if item.OriginalQuantity != want[item.ProductID] {
			errs = append(errs, fmt.Errorf("updated product %s reports original quantity %d, submitted %d",
				item.ProductID, item.OriginalQuantity, want[item.ProductID]))
		}
	}

	for _, item := range submitted {
		if !seen[item.ProductID] {
			errs = append(errs, fmt.Errorf("product %s is missing from the result", item.ProductID))
		}
	}

	if result.CartChanged != result.HasChanges() {
		errs = append(errs, fmt.Errorf("cart_changed is %t with %d removed and %d updated items",
			result.CartChanged, len(result.RemovedItems), len(result.UpdatedItems)))
	}

	return errors.Join(errs...)
}
