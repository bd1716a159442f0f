package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerKind tells whether a cart belongs to an anonymous session or a signed-in user
type OwnerKind string

const (
	OwnerGuest OwnerKind = "guest"
	OwnerUser  OwnerKind = "user"
)

// LineKey identifies a cart line. VariantID is empty for products without variants.
type LineKey struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

// Subject returns the availability subject that gates this line
func (k LineKey) Subject() Subject {
	if k.VariantID != "" {
		return Subject{Kind: SubjectVariant, ID: k.VariantID}
	}
	return Subject{Kind: SubjectProduct, ID: k.ProductID}
}

func (k LineKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

type CartLine struct {
	ProductID         string          `json:"product_id"`
	VariantID         string          `json:"variant_id,omitempty"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unit_price"`
	AddedAt           time.Time       `json:"added_at"`
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

// Subtotal is a display estimate only
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPriceSnapshot.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	// MergeID identifies the pending login merge of a guest cart bound to UserID
	MergeID      string     `json:"merge_id,omitempty"`
	Owner        OwnerKind  `json:"owner"`
	Lines        []CartLine `json:"lines"`
	Dirty        bool       `json:"dirty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// NewGuestCart returns an empty cart for an anonymous session
func NewGuestCart(sessionID string) *Cart {
	return &Cart{
		SessionID: sessionID,
		Owner:     OwnerGuest,
		Lines:     []CartLine{},
	}
}

// Clone returns a deep copy safe to hand out to consumers
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = CloneLines(c.Lines)
	if c.LastSyncedAt != nil {
		t := *c.LastSyncedAt
		out.LastSyncedAt = &t
	}
	return &out
}

func CloneLines(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

// Total sums price snapshots. It is never used for payment amounts.
func Total(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
