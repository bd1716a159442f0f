package inventory

import (
	"errors"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold is the quantity at or below which stock is reported LOW_STOCK
const DefaultLowStockThreshold = 5

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("stock quantity must not be negative")
	ErrInvalidPrice    = errors.New("price must not be negative")
)

type stockInfo struct {
	Total int
}

// MemoryStore is the in-memory stock and price catalogue behind the reference backend
type MemoryStore struct {
	mu       sync.RWMutex
	stocks   map[domain.Subject]*stockInfo
	prices   map[string]decimal.Decimal // productID -> unit price
	lowStock int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stocks:   make(map[domain.Subject]*stockInfo),
		prices:   make(map[string]decimal.Decimal),
		lowStock: DefaultLowStockThreshold,
	}
}

// GetStock returns stock levels for the known subjects; unknown ones are left out
func (s *MemoryStore) GetStock(subjects []domain.Subject) []domain.StockLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockLevel, 0, len(subjects))
	for _, subj := range subjects {
		if stock, exists := s.stocks[subj]; exists {
			result = append(result, domain.StockLevel{
				Subject:           subj,
				AvailableQuantity: stock.Total,
				StockStatus:       s.status(stock.Total),
			})
		}
	}
	return result
}

// Available returns the sellable quantity for a subject
func (s *MemoryStore) Available(subj domain.Subject) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stock, ok := s.stocks[subj]
	if !ok {
		return 0, false
	}
	return stock.Total, true
}

// Price returns the current unit price of a product
func (s *MemoryStore) Price(productID string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[productID]
	return p, ok
}

// SetStock sets the stock level for a subject
func (s *MemoryStore) SetStock(subj domain.Subject, quantity int) error {
	if err := subj.Validate(); err != nil {
		return err
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks[subj] = &stockInfo{Total: quantity}
	return nil
}

// SetPrice sets the unit price for a product
func (s *MemoryStore) SetPrice(productID string, price decimal.Decimal) error {
	if productID == "" {
		return ErrProductNotFound
	}
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[productID] = price
	return nil
}

// Deduct removes sold quantities; it fails without changes if any subject is unknown
func (s *MemoryStore) Deduct(quantities map[domain.Subject]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for subj := range quantities {
		if _, exists := s.stocks[subj]; !exists {
			return ErrProductNotFound
		}
	}
	for subj, qty := range quantities {
		stock := s.stocks[subj]
		stock.Total -= qty
		if stock.Total < 0 {
			stock.Total = 0
		}
	}
	return nil
}

func (s *MemoryStore) status(qty int) domain.StockStatus {
	switch {
	case qty <= 0:
		return domain.OutOfStock
	case qty <= s.lowStock:
		return domain.LowStock
	default:
		return domain.InStock
	}
}
