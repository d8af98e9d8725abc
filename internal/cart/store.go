// Package cart holds the shopper's purchase intent: an ordered set of
// (product id, quantity) pairs persisted on every mutation.
//
// The store never talks to the backend and enforces no stock limits; that
// is the job of the catalog check and of reconciliation.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"storefront/internal/model"
)

// DefaultKey is the storage key used by single-cart clients.
const DefaultKey = "cart"

// SessionKey returns the storage key for a BFF session's cart.
func SessionKey(sessionID string) string {
	return DefaultKey + ":" + sessionID
}

// QuantitySet is an absolute quantity assignment used by ApplyChanges.
type QuantitySet struct {
	ProductID model.ProductID
	Quantity  int
}

// Store is a persisted cart. All methods are safe for concurrent use and
// each mutation is atomic: it completes, including the save, before the
// next one starts.
type Store struct {
	mu       sync.Mutex
	items    []model.CartItem
	revision uint64

	storage Storage
	key     string
	logger  *slog.Logger
}

// Open hydrates a store from storage. A missing or corrupt value yields an
// empty cart; the error is logged and never returned.
func Open(ctx context.Context, storage Storage, key string, logger *slog.Logger) *Store {
	s := &Store{
		storage: storage,
		key:     key,
		logger:  logger,
	}

	data, err := storage.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNoCart):
	case err != nil:
		logger.ErrorContext(ctx, "loading cart from storage",
			slog.String("key", key),
			slog.String("error", err.Error()))
	default:
		var items []model.CartItem
		if err := json.Unmarshal(data, &items); err != nil {
			logger.ErrorContext(ctx, "discarding unparseable cart",
				slog.String("key", key),
				slog.String("error", err.Error()))
		} else {
			s.items = normalize(items)
		}
	}
	return s
}

// normalize drops non-positive quantities and merges duplicate ids so a
// hand-edited or legacy value still satisfies the store invariants.
func normalize(items []model.CartItem) []model.CartItem {
	out := make([]model.CartItem, 0, len(items))
	index := make(map[model.ProductID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.ProductID == "" {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}

// AddItem increments the quantity for id, inserting it if absent.
// A non-positive quantity counts as 1.
func (s *Store) AddItem(ctx context.Context, id model.ProductID, quantity int) {
	if quantity <= 0 {
		quantity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		s.items[i].Quantity += quantity
	} else {
		s.items = append(s.items, model.CartItem{ProductID: id, Quantity: quantity})
	}
	s.commit(ctx)
}

// AddItemChecked is AddItem with a check of the resulting quantity made
// under the store lock, so concurrent adds cannot both pass it. A non-nil
// error from check leaves the cart unchanged.
func (s *Store) AddItemChecked(ctx context.Context, id model.ProductID, quantity int, check func(desired int) error) error {
	if quantity <= 0 {
		quantity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	desired := quantity
	if i >= 0 {
		desired += s.items[i].Quantity
	}
	if err := check(desired); err != nil {
		return err
	}
	if i >= 0 {
		s.items[i].Quantity = desired
	} else {
		s.items = append(s.items, model.CartItem{ProductID: id, Quantity: quantity})
	}
	s.commit(ctx)
	return nil
}

// RemoveItem deletes id. Removing an absent id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id model.ProductID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remove(id) {
		s.commit(ctx)
	}
}

// UpdateQuantity sets an absolute quantity for id; quantity <= 0 removes it.
// An absent id is never inserted.
func (s *Store) UpdateQuantity(ctx context.Context, id model.ProductID, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set(id, quantity) {
		s.commit(ctx)
	}
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return
	}
	s.items = nil
	s.commit(ctx)
}

// ApplyChanges removes and re-quantifies items in one mutation with a
// single save. Entries that would not change state are skipped, so
// applying the same changes twice is equivalent to applying them once.
// It reports whether anything changed.
func (s *Store) ApplyChanges(ctx context.Context, removals []model.ProductID, sets []QuantitySet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, removals, sets)
}

// ApplyChangesAt applies the changes only if the store is still at
// revision. It returns the revision after the call and whether the
// changes were applied; on a revision mismatch nothing is touched.
func (s *Store) ApplyChangesAt(ctx context.Context, revision uint64, removals []model.ProductID, sets []QuantitySet) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revision != revision {
		return s.revision, false
	}
	s.apply(ctx, removals, sets)
	return s.revision, true
}

func (s *Store) apply(ctx context.Context, removals []model.ProductID, sets []QuantitySet) bool {
	changed := false
	for _, id := range removals {
		if s.remove(id) {
			changed = true
		}
	}
	for _, qs := range sets {
		if s.set(qs.ProductID, qs.Quantity) {
			changed = true
		}
	}
	if changed {
		s.commit(ctx)
	}
	return changed
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CartItem(nil), s.items...)
}

// Snapshot returns the items together with the revision they belong to.
func (s *Store) Snapshot() ([]model.CartItem, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CartItem(nil), s.items...), s.revision
}

// Revision increases with every state-changing mutation. It is not persisted.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) == 0
}

// TotalItems returns the sum of quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, item := range s.items {
		total += item.Quantity
	}
	return total
}

// ItemQuantity returns the quantity for id, or 0 if absent.
func (s *Store) ItemQuantity(id model.ProductID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

func (s *Store) indexOf(id model.ProductID) int {
	for i, item := range s.items {
		if item.ProductID == id {
			return i
		}
	}
	return -1
}

func (s *Store) remove(id model.ProductID) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	return true
}

func (s *Store) set(id model.ProductID, quantity int) bool {
	if quantity <= 0 {
		return s.remove(id)
	}
	i := s.indexOf(id)
	if i < 0 || s.items[i].Quantity == quantity {
		return false
	}
	s.items[i].Quantity = quantity
	return true
}

// commit bumps the revision and saves. Caller holds mu.
// A failed save is logged; the in-memory cart stays authoritative.
func (s *Store) commit(ctx context.Context) {
	s.revision++

	items := s.items
	if items == nil {
		items = []model.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		s.logger.ErrorContext(ctx, "encoding cart", slog.String("error", err.Error()))
		return
	}
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		s.logger.ErrorContext(ctx, "saving cart to storage",
			slog.String("key", s.key),
			slog.String("error", err.Error()))
	}
}
