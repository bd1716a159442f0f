// Package wire holds the JSON bodies exchanged with the inventory and cart-merge endpoints.
package wire

import (
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	AvailabilityPath = "/api/v1/availability"
	MergePath        = "/api/v1/carts/merge"
)

type Subject struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type AvailabilityRequest struct {
	Subjects []Subject `json:"subjects"`
}

type StockRecord struct {
	Kind              string `json:"kind"`
	ID                string `json:"id"`
	AvailableQuantity int    `json:"available_quantity"`
	StockStatus       string `json:"stock_status"`
}

type AvailabilityResponse struct {
	Records []StockRecord `json:"records"`
}

type MergeLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type MergeRequest struct {
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id,omitempty"`
	MergeID   string      `json:"merge_id,omitempty"`
	Mode      string      `json:"mode"`
	Lines     []MergeLine `json:"lines"`
}

type MergedLine struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Adjusted  bool            `json:"adjusted,omitempty"`
}

type MergeResponse struct {
	Lines []MergedLine `json:"lines"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func FromSubjects(subjects []domain.Subject) AvailabilityRequest {
	req := AvailabilityRequest{Subjects: make([]Subject, 0, len(subjects))}
	for _, s := range subjects {
		req.Subjects = append(req.Subjects, Subject{Kind: string(s.Kind), ID: s.ID})
	}
	return req
}

func (s Subject) Domain() domain.Subject {
	return domain.Subject{Kind: domain.SubjectKind(s.Kind), ID: s.ID}
}

func FromStockLevel(l domain.StockLevel) StockRecord {
	return StockRecord{
		Kind:              string(l.Subject.Kind),
		ID:                l.Subject.ID,
		AvailableQuantity: l.AvailableQuantity,
		StockStatus:       string(l.StockStatus),
	}
}

func (r StockRecord) Domain() domain.StockLevel {
	return domain.StockLevel{
		Subject:           domain.Subject{Kind: domain.SubjectKind(r.Kind), ID: r.ID},
		AvailableQuantity: r.AvailableQuantity,
		StockStatus:       domain.StockStatus(r.StockStatus),
	}
}

func FromMergeRequest(req domain.MergeRequest) MergeRequest {
	out := MergeRequest{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		MergeID:   req.MergeID,
		Mode:      string(req.Mode),
		Lines:     make([]MergeLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		out.Lines = append(out.Lines, MergeLine{ProductID: l.ProductID, VariantID: l.VariantID, Quantity: l.Quantity})
	}
	return out
}

func (r MergeRequest) Domain() domain.MergeRequest {
	out := domain.MergeRequest{
		SessionID: r.SessionID,
		UserID:    r.UserID,
		MergeID:   r.MergeID,
		Mode:      domain.MergeMode(r.Mode),
		Lines:     make([]domain.CartLine, 0, len(r.Lines)),
	}
	for _, l := range r.Lines {
		out.Lines = append(out.Lines, domain.CartLine{ProductID: l.ProductID, VariantID: l.VariantID, Quantity: l.Quantity})
	}
	return out
}

func FromMergedLines(lines []domain.MergedLine) MergeResponse {
	resp := MergeResponse{Lines: make([]MergedLine, 0, len(lines))}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, MergedLine{
			ProductID: l.Key.ProductID,
			VariantID: l.Key.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Adjusted:  l.Adjusted,
		})
	}
	return resp
}

func (r MergeResponse) Domain() []domain.MergedLine {
	out := make([]domain.MergedLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		out = append(out, domain.MergedLine{
			Key:       domain.LineKey{ProductID: l.ProductID, VariantID: l.VariantID},
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Adjusted:  l.Adjusted,
		})
	}
	return out
}
