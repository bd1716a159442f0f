package httpapi

import (
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

type AddItemRequestDTO struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type LineDTO struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	AddedAt   time.Time       `json:"added_at"`
}

type CartDTO struct {
	SessionID    string          `json:"session_id"`
	Owner        string          `json:"owner"`
	UserID       string          `json:"user_id,omitempty"`
	Dirty        bool            `json:"dirty"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	Lines        []LineDTO       `json:"lines"`
	Total        decimal.Decimal `json:"total"`
}

type AdjustmentDTO struct {
	ProductID string           `json:"product_id"`
	VariantID string           `json:"variant_id,omitempty"`
	Requested int              `json:"requested"`
	Applied   int              `json:"applied"`
	Reason    string           `json:"reason"`
	OldPrice  *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice  *decimal.Decimal `json:"new_price,omitempty"`
}

type SyncDTO struct {
	TicketID    string          `json:"ticket_id"`
	Trigger     string          `json:"trigger"`
	Status      string          `json:"status"`
	SyncedAt    time.Time       `json:"synced_at"`
	Rebased     bool            `json:"rebased"`
	Lines       []LineDTO       `json:"lines"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
}

type LineRefDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

type CheckoutDTO struct {
	Eligible    bool         `json:"eligible"`
	CartChanged bool         `json:"cart_changed,omitempty"`
	Blocked     []LineRefDTO `json:"blocked,omitempty"`
	Unknown     []LineRefDTO `json:"unknown,omitempty"`
	Sync        SyncDTO      `json:"sync"`
}

type AvailabilityDTO struct {
	Kind              string     `json:"kind"`
	ID                string     `json:"id"`
	Available         bool       `json:"available"`
	AvailableQuantity *int       `json:"available_quantity,omitempty"`
	StockStatus       string     `json:"stock_status,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Stale             bool       `json:"stale"`
	Error             string     `json:"error,omitempty"`
}

func toLines(lines []domain.CartLine) []LineDTO {
	out := make([]LineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineDTO{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceSnapshot,
			Subtotal:  l.Subtotal(),
			AddedAt:   l.AddedAt,
		})
	}
	return out
}

func toCart(c *domain.Cart) CartDTO {
	return CartDTO{
		SessionID:    c.SessionID,
		Owner:        string(c.Owner),
		UserID:       c.UserID,
		Dirty:        c.Dirty,
		LastSyncedAt: c.LastSyncedAt,
		Lines:        toLines(c.Lines),
		Total:        domain.Total(c.Lines),
	}
}

func toSync(r *domain.SyncResult) SyncDTO {
	out := SyncDTO{
		TicketID:    r.Ticket.ID,
		Trigger:     string(r.Ticket.Trigger),
		Status:      string(r.Ticket.Status),
		SyncedAt:    r.SyncedAt,
		Rebased:     r.Rebased,
		Lines:       toLines(r.Lines),
		Adjustments: make([]AdjustmentDTO, 0, len(r.Adjustments)),
	}
	for _, a := range r.Adjustments {
		out.Adjustments = append(out.Adjustments, AdjustmentDTO{
			ProductID: a.Key.ProductID,
			VariantID: a.Key.VariantID,
			Requested: a.Requested,
			Applied:   a.Applied,
			Reason:    string(a.Reason),
			OldPrice:  a.OldPrice,
			NewPrice:  a.NewPrice,
		})
	}
	return out
}

func toRefs(keys []domain.LineKey) []LineRefDTO {
	out := make([]LineRefDTO, 0, len(keys))
	for _, k := range keys {
		out = append(out, LineRefDTO{ProductID: k.ProductID, VariantID: k.VariantID})
	}
	return out
}
