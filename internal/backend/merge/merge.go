// Package merge combines an incoming cart with the stored server cart.
package merge

import (
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

// Catalog supplies live stock and prices
type Catalog interface {
	Available(s domain.Subject) (int, bool)
	Price(productID string) (decimal.Decimal, bool)
}

// Line is a stored server cart line
type Line struct {
	Key      domain.LineKey
	Quantity int
	AddedAt  time.Time
}

// Merge applies mode to the stored and incoming lines and prices the result.
// With MergeSum quantities for the same key are added; with MergeReplace the
// incoming lines win outright. Lines above the known stock are capped and
// flagged Adjusted, lines with no stock or no price are dropped.
// The returned stored lines are what the server cart should hold afterwards.
func Merge(mode domain.MergeMode, stored []Line, incoming []domain.CartLine, cat Catalog, now time.Time) ([]domain.MergedLine, []Line) {
	var combined []Line
	if mode == domain.MergeSum {
		combined = append(combined, stored...)
	}
	for _, l := range incoming {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		if i := indexOf(combined, l.Key()); i >= 0 {
			combined[i].Quantity += l.Quantity
			continue
		}
		added := l.AddedAt
		if added.IsZero() {
			added = now
		}
		combined = append(combined, Line{Key: l.Key(), Quantity: l.Quantity, AddedAt: added})
	}

	merged := make([]domain.MergedLine, 0, len(combined))
	kept := make([]Line, 0, len(combined))
	for _, l := range combined {
		price, ok := cat.Price(l.Key.ProductID)
		if !ok {
			continue
		}
		out := domain.MergedLine{Key: l.Key, Quantity: l.Quantity, UnitPrice: price}
		if available, known := cat.Available(l.Key.Subject()); known && l.Quantity > available {
			if available <= 0 {
				continue
			}
			out.Quantity = available
			out.Adjusted = true
		}
		l.Quantity = out.Quantity
		merged = append(merged, out)
		kept = append(kept, l)
	}
	return merged, kept
}

func indexOf(lines []Line, key domain.LineKey) int {
	for i := range lines {
		if lines[i].Key == key {
			return i
		}
	}
	return -1
}
