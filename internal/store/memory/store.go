// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/order"
)

// Store keeps products, carts and orders in maps guarded by one mutex, so
// order creation is atomic with its stock decrement and cart clear.
type Store struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	carts    map[string][]cart.Item
	orders   map[string]order.Order
}

var (
	_ catalog.Store = (*Store)(nil)
	_ cart.Store    = (*Store)(nil)
	_ order.Store   = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]catalog.Product),
		carts:    make(map[string][]cart.Item),
		orders:   make(map[string]order.Order),
	}
}

// ListProducts implements catalog.Store.
func (s *Store) ListProducts(_ context.Context, params catalog.ListParams) ([]catalog.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(params.Query))
	matched := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if params.Category != "" && p.Category != params.Category {
			continue
		}
		if q != "" && !matchesQuery(p, q) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	start := min(params.Offset(), len(matched))
	end := len(matched)
	if params.Limit > 0 {
		end = min(start+params.Limit, len(matched))
	}
	return matched[start:end], total, nil
}

func matchesQuery(p catalog.Product, q string) bool {
	if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// GetProduct implements catalog.Store.
func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

// FindProductByName implements catalog.Store.
func (s *Store) FindProductByName(_ context.Context, name string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

// ListCategories implements catalog.Store.
func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, p := range s.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out, nil
}

// InsertProduct implements catalog.Store.
func (s *Store) InsertProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Version = 1
	s.products[p.ID] = p
	return p, nil
}

// UpdateProduct implements catalog.Store.
func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if current.Version != p.Version {
		return catalog.Product{}, catalog.ErrConflict
	}
	p.Version++
	p.CreatedAt = current.CreatedAt
	s.products[p.ID] = p
	return p, nil
}

// DeleteProduct implements catalog.Store.
func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// ListProductIDs implements catalog.Store.
func (s *Store) ListProductIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CartItems implements cart.Store.
func (s *Store) CartItems(_ context.Context, userID string) ([]cart.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.carts[userID]
	out := make([]cart.Item, len(items))
	copy(out, items)
	return out, nil
}

// SetCartItem implements cart.Store.
func (s *Store) SetCartItem(_ context.Context, userID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	s.carts[userID] = append(items, cart.Item{ProductID: productID, Quantity: quantity})
	return nil
}

// RemoveCartItem implements cart.Store.
func (s *Store) RemoveCartItem(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[userID]
	kept := items[:0]
	for _, item := range items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	s.carts[userID] = kept
	return nil
}

// ClearCart implements cart.Store.
func (s *Store) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

// CreateOrder implements order.Store.
func (s *Store) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range o.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return order.Order{}, &order.StockConflictError{ProductID: item.ProductID, Requested: item.Quantity}
		}
		if p.Stock < item.Quantity {
			return order.Order{}, &order.StockConflictError{ProductID: item.ProductID, Available: p.Stock, Requested: item.Quantity}
		}
	}
	for _, item := range o.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		p.Version++
		s.products[item.ProductID] = p
	}
	s.orders[o.ID] = o
	delete(s.carts, o.UserID)
	return o, nil
}

// GetOrder implements order.Store.
func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

// ListOrders implements order.Store.
func (s *Store) ListOrders(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]order.Order, 0)
	for _, o := range s.orders {
		if userID == "" || o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateOrderStatus implements order.Store.
func (s *Store) UpdateOrderStatus(_ context.Context, id string, from, to order.OrderStatus) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if o.OrderStatus != from {
		return order.Order{}, order.ErrStatusChanged
	}
	o.OrderStatus = to
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return o, nil
}
