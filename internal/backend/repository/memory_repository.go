package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps carts in process; used when no MongoDB URI is configured
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*Cart)}
}

func (m *MemoryRepository) GetCart(_ context.Context, ownerID string) (*Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *MemoryRepository) UpsertCart(_ context.Context, cart *Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if prev, ok := m.carts[cart.OwnerID]; ok {
		cart.CreatedAt = prev.CreatedAt
	} else if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	m.carts[cart.OwnerID] = copyCart(cart)
	return nil
}

func (m *MemoryRepository) DeleteCart(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[ownerID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, ownerID)
	return nil
}

func copyCart(c *Cart) *Cart {
	out := *c
	out.Items = append([]CartItem(nil), c.Items...)
	out.AppliedMerges = append([]string(nil), c.AppliedMerges...)
	return &out
}
