package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SyncTrigger string

const (
	TriggerLogin    SyncTrigger = "login"
	TriggerCheckout SyncTrigger = "checkout"
	TriggerManual   SyncTrigger = "manual"
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// SyncTicket is one reconciliation attempt. Only one may be pending per cart.
type SyncTicket struct {
	ID          string      `json:"id"`
	RequestedAt time.Time   `json:"requested_at"`
	Trigger     SyncTrigger `json:"trigger"`
	Status      SyncStatus  `json:"status"`
}

// MergeMode is how the server combines the sent lines with the cart it already holds
type MergeMode string

const (
	// MergeSum adds quantities of matching lines (guest cart joining a user cart)
	MergeSum MergeMode = "sum"
	// MergeReplace makes the sent lines the new server cart
	MergeReplace MergeMode = "replace"
)

func (m MergeMode) Valid() bool {
	return m == MergeSum || m == MergeReplace
}

type AdjustmentReason string

const (
	AdjustClamped      AdjustmentReason = "clamped"
	AdjustRemoved      AdjustmentReason = "removed"
	AdjustPriceChanged AdjustmentReason = "price_changed"
)

// LineAdjustment reports an informational change made while reconciling.
// It is never an error.
type LineAdjustment struct {
	Key       LineKey          `json:"key"`
	Requested int              `json:"requested"`
	Applied   int              `json:"applied"`
	Reason    AdjustmentReason `json:"reason"`
	OldPrice  *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice  *decimal.Decimal `json:"new_price,omitempty"`
}

type SyncResult struct {
	Ticket      SyncTicket       `json:"ticket"`
	Lines       []CartLine       `json:"lines"`
	Adjustments []LineAdjustment `json:"adjustments,omitempty"`
	SyncedAt    time.Time        `json:"synced_at"`
	// Rebased is set when local mutations made during the sync were replayed on
	// top of the server result, leaving the cart dirty.
	Rebased bool `json:"rebased"`
}

// MergeRequest is sent to the cart-merge endpoint.
// MergeID names one login merge; the server applies a given id at most once.
type MergeRequest struct {
	SessionID string
	UserID    string
	MergeID   string
	Mode      MergeMode
	Lines     []CartLine
}

// MergedLine is one authoritative line returned by the cart-merge endpoint
type MergedLine struct {
	Key       LineKey
	Quantity  int
	UnitPrice decimal.Decimal
	Adjusted  bool
}

// AuthEventKind is a transition emitted by the auth-state signal
type AuthEventKind string

const (
	AuthLogin  AuthEventKind = "login"
	AuthLogout AuthEventKind = "logout"
)

type AuthEvent struct {
	Kind      AuthEventKind `json:"kind"`
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id"`
}

// CheckoutReport is the outcome of gating a checkout attempt
type CheckoutReport struct {
	Sync     *SyncResult `json:"sync"`
	Eligible bool        `json:"eligible"`
	Blocked  []LineKey   `json:"blocked,omitempty"`
	// CartChanged is set when the cart was edited while the sync ran and
	// must be synced again before checkout
	CartChanged bool `json:"cart_changed,omitempty"`
	// Unknown lists lines whose availability could not be determined
	Unknown []LineKey `json:"unknown,omitempty"`
}
