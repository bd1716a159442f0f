package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

// GuestCartCache persists guest carts on the client side, keyed by session
type GuestCartCache interface {
	Load(ctx context.Context, sessionID string) ([]domain.CartLine, error)
	Save(ctx context.Context, sessionID string, lines []domain.CartLine) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")

type persistedLine struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	AddedAt   time.Time       `json:"added_at"`
}

func encodeLines(lines []domain.CartLine) ([]byte, error) {
	out := make([]persistedLine, len(lines))
	for i, l := range lines {
		out[i] = persistedLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceSnapshot,
			AddedAt:   l.AddedAt,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal cart failed: %w", err)
	}
	return data, nil
}

func decodeLines(data []byte) ([]domain.CartLine, error) {
	var in []persistedLine
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	lines := make([]domain.CartLine, len(in))
	for i, l := range in {
		lines[i] = domain.CartLine{
			ProductID:         l.ProductID,
			VariantID:         l.VariantID,
			Quantity:          l.Quantity,
			UnitPriceSnapshot: l.UnitPrice,
			AddedAt:           l.AddedAt,
		}
	}
	return lines, nil
}
