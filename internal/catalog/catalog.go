// Package catalog keeps a read-only snapshot of the product list fetched
// from the API. The snapshot answers local stock questions between
// refreshes; the API remains the authority at validation time.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"storefront/internal/backend"
	"storefront/internal/model"
)

// maxParallelPages bounds concurrent page fetches during a refresh.
const maxParallelPages = 4

// maxPages bounds a sequential walk of next links.
const maxPages = 1000

// Snapshot is a periodically refreshed copy of the catalog.
type Snapshot struct {
	mu        sync.RWMutex
	products  []model.Product
	byID      map[model.ProductID]int
	fetchedAt time.Time

	backend backend.Backend
	group   singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an empty snapshot that refreshes from b.
func New(b backend.Backend, logger *slog.Logger) *Snapshot {
	return &Snapshot{
		byID:    make(map[model.ProductID]int),
		backend: b,
		logger:  logger,
		now:     time.Now,
	}
}

// Replace swaps in a new product list.
func (s *Snapshot) Replace(products []model.Product) {
	byID := make(map[model.ProductID]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
	s.byID = byID
	s.fetchedAt = s.now()
}

// Get returns the product with id.
func (s *Snapshot) Get(id model.ProductID) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return model.Product{}, false
	}
	return s.products[i], true
}

// Stock returns the known stock for id; ok is false for unknown products.
func (s *Snapshot) Stock(id model.ProductID) (stock int, ok bool) {
	p, ok := s.Get(id)
	if !ok {
		return 0, false
	}
	return p.Quantity, true
}

// Products returns a copy of the snapshot.
func (s *Snapshot) Products() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Product(nil), s.products...)
}

// FetchedAt reports when the snapshot was last replaced; zero if never.
func (s *Snapshot) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// CheckQuantity rejects a desired cart quantity that exceeds the stock the
// snapshot knows about. Unknown products pass; the server check decides.
func (s *Snapshot) CheckQuantity(id model.ProductID, desired int) error {
	p, ok := s.Get(id)
	if !ok {
		return nil
	}
	if desired > p.Quantity {
		return model.NewInsufficientStockError(p.Name, p.Quantity)
	}
	return nil
}

// Refresh reloads every page from the API. Concurrent callers share one
// load. On error the previous snapshot is kept.
func (s *Snapshot) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		products, err := s.fetchAll(ctx)
		if err != nil {
			return nil, err
		}
		s.Replace(products)
		s.logger.DebugContext(ctx, "catalog refreshed", slog.Int("products", len(products)))
		return nil, nil
	})
	return err
}

// fetchAll reads page 1 for the count, then the remaining pages in parallel.
func (s *Snapshot) fetchAll(ctx context.Context) ([]model.Product, error) {
	first, err := s.backend.ListProducts(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("fetching products page 1: %w", err)
	}
	if first.Next == nil || len(first.Results) == 0 {
		return first.Results, nil
	}

	pageSize := len(first.Results)
	if first.Count <= pageSize {
		// A next link with a count that fits on one page: the count is
		// unreliable, so follow the links instead.
		s.logger.WarnContext(ctx, "product count disagrees with paging, walking pages",
			slog.Int("count", first.Count),
			slog.Int("page_size", pageSize))
		return s.walk(ctx, first)
	}
	pages := (first.Count + pageSize - 1) / pageSize
	results := make([][]model.Product, pages)
	results[0] = first.Results

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPages)
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			resp, err := s.backend.ListProducts(gctx, page)
			if err != nil {
				return fmt.Errorf("fetching products page %d: %w", page, err)
			}
			results[page-1] = resp.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, first.Count)
	for _, page := range results {
		products = append(products, page...)
	}
	return products, nil
}

// walk follows next links one page at a time.
func (s *Snapshot) walk(ctx context.Context, first *model.ProductPage) ([]model.Product, error) {
	products := append([]model.Product(nil), first.Results...)
	next := first.Next
	for page := 2; next != nil; page++ {
		if page > maxPages {
			return nil, model.NewUpstreamError("storefront API",
				fmt.Errorf("product listing exceeds %d pages", maxPages))
		}
		resp, err := s.backend.ListProducts(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetching products page %d: %w", page, err)
		}
		if len(resp.Results) == 0 {
			break
		}
		products = append(products, resp.Results...)
		next = resp.Next
	}
	return products, nil
}

// Run refreshes immediately and then every interval until ctx ends.
// Failures are logged; the previous snapshot stays in place.
func (s *Snapshot) Run(ctx context.Context, interval time.Duration) {
	refresh := func() {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "catalog refresh failed", slog.String("error", err.Error()))
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
