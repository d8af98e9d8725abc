// Package session owns the per-shopper cart, reconciliation controller,
// notification queue and order service.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/reconcile"
)

// Session is one shopper's cart-bearing context.
type Session struct {
	ID            string
	Cart          *cart.Store
	Controller    *reconcile.Controller
	Notifications *notify.Queue
	Orders        *order.Service

	catalog  *catalog.Snapshot
	logger   *slog.Logger
	lastUsed time.Time // guarded by Manager.mu
}

// AddItem adds quantity units of a product after checking the resulting
// quantity against the catalog snapshot. A rejected add leaves the cart
// unchanged and posts a notification.
func (s *Session) AddItem(ctx context.Context, id model.ProductID, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}
	return s.Cart.AddItemChecked(ctx, id, quantity, func(desired int) error {
		return s.checkStock(ctx, id, desired)
	})
}

// SetQuantity sets an absolute quantity; zero or less removes the line.
func (s *Session) SetQuantity(ctx context.Context, id model.ProductID, quantity int) error {
	if quantity > 0 {
		if err := s.checkStock(ctx, id, quantity); err != nil {
			return err
		}
	}
	s.Cart.UpdateQuantity(ctx, id, quantity)
	return nil
}

func (s *Session) checkStock(ctx context.Context, id model.ProductID, desired int) error {
	if s.catalog == nil {
		return nil
	}
	err := s.catalog.CheckQuantity(id, desired)
	if err == nil {
		return nil
	}
	s.logger.DebugContext(ctx, "cart change rejected",
		slog.String("product_id", id.String()),
		slog.Int("desired", desired))
	msg := err.Error()
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	s.Notifications.Notify(notify.Notification{
		Level:   notify.LevelWarning,
		Code:    "insufficient_stock",
		Title:   "Not enough stock",
		Message: msg,
	})
	return err
}

// DefaultIdleTimeout is how long an unused session stays in memory.
const DefaultIdleTimeout = 30 * time.Minute

// Config wires a Manager.
type Config struct {
	Backend     backend.Backend
	Catalog     *catalog.Snapshot
	Storage     cart.Storage
	TaxRate     decimal.Decimal
	IdleTimeout time.Duration // zero means DefaultIdleTimeout
	Logger      *slog.Logger
}

// Manager creates sessions on first use and keeps them until closed or
// idle for longer than the idle timeout.
type Manager struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty Manager.
func NewManager(cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{cfg: cfg, now: time.Now, sessions: make(map[string]*Session)}
}

// Open returns the session for id, hydrating its cart from storage the
// first time it is seen.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, model.NewValidationError("session", "missing session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastUsed = m.now()
		return s, nil
	}

	logger := m.cfg.Logger.With(slog.String("session_id", id))
	store := cart.Open(ctx, m.cfg.Storage, cart.SessionKey(id), logger)
	queue := notify.NewQueue(0)
	ctrl := reconcile.New(store, m.cfg.Backend, queue, logger)

	var prices order.Prices
	if m.cfg.Catalog != nil {
		prices = m.cfg.Catalog
	}
	s := &Session{
		ID:            id,
		Cart:          store,
		Controller:    ctrl,
		Notifications: queue,
		Orders: order.New(order.Deps{
			Backend:  m.cfg.Backend,
			Cart:     store,
			Gate:     ctrl,
			Prices:   prices,
			Notifier: queue,
			TaxRate:  m.cfg.TaxRate,
			Logger:   logger,
		}),
		catalog:  m.cfg.Catalog,
		logger:   logger,
		lastUsed: m.now(),
	}
	m.sessions[id] = s
	logger.DebugContext(ctx, "session opened", slog.Int("items", store.TotalItems()))
	return s, nil
}

// Close unmounts a session: in-flight validation results are dropped and
// the session is forgotten. The persisted cart is kept.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Controller.Close()
	}
	return ok
}

// EvictIdle closes every session unused for longer than the idle timeout
// and returns how many were evicted. Their persisted carts are kept, so a
// later Open rehydrates them.
func (m *Manager) EvictIdle(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.lastUsed.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Controller.Close()
		s.logger.DebugContext(ctx, "idle session evicted")
	}
	return len(idle)
}

// Run evicts idle sessions periodically until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval(m.cfg.IdleTimeout))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(ctx); n > 0 {
				m.cfg.Logger.InfoContext(ctx, "idle sessions evicted",
					slog.Int("evicted", n),
					slog.Int("open", m.Len()))
			}
		}
	}
}

func sweepInterval(idle time.Duration) time.Duration {
	return max(idle/4, time.Second)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
