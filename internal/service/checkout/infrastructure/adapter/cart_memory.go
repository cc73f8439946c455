package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"storefront/internal/service/checkout/domain"
)

// MemoryCartStore 是进程内的 port.CartStore，语义与 Redis 脚本一致。
// 只适用于单副本的本地开发环境。
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
	now   func() time.Time
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]*domain.Cart), now: time.Now}
}

func (s *MemoryCartStore) Get(_ context.Context, cartID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "cart %s", cartID)
	}
	return cloneCart(cart), nil
}

func (s *MemoryCartStore) AddItem(_ context.Context, cartID, customerID string, item domain.CartItem) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		cart = &domain.Cart{ID: cartID, Status: domain.CartActive}
		s.carts[cartID] = cart
	}
	if cart.Status == domain.CartCheckedOut {
		cart.Items = nil
		cart.Status = domain.CartActive
	}
	if cart.CustomerID != "" && customerID != "" && cart.CustomerID != customerID {
		return nil, domain.NewValidationError("cart %s belongs to another customer", cartID)
	}
	if cart.CustomerID == "" {
		cart.CustomerID = customerID
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, item)
		sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ProductID < cart.Items[j].ProductID })
	}
	cart.UpdatedAt = s.now().UTC()
	return cloneCart(cart), nil
}

func (s *MemoryCartStore) RemoveItem(_ context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "product %s in cart %s", productID, cartID)
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID {
			continue
		}
		if quantity <= 0 || cart.Items[i].Quantity <= quantity {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		} else {
			cart.Items[i].Quantity -= quantity
		}
		cart.UpdatedAt = s.now().UTC()
		return cloneCart(cart), nil
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "product %s in cart %s", productID, cartID)
}

func (s *MemoryCartStore) MarkCheckedOut(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[cartID]
	if !ok {
		cart = &domain.Cart{ID: cartID}
		s.carts[cartID] = cart
	}
	cart.Items = nil
	cart.Status = domain.CartCheckedOut
	cart.UpdatedAt = s.now().UTC()
	return nil
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartItem(nil), c.Items...)
	return &out
}
