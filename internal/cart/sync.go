package cart

import (
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opRemove
)

// mutation is a journalled local change, replayed on top of a sync result
type mutation struct {
	op        opKind
	key       domain.LineKey
	quantity  int
	unitPrice decimal.Decimal
	at        time.Time
}

func (m mutation) apply(lines []domain.CartLine) []domain.CartLine {
	i := indexOf(lines, m.key)
	switch m.op {
	case opAdd:
		if i >= 0 {
			lines[i].Quantity += m.quantity
			return lines
		}
		return append(lines, domain.CartLine{
			ProductID:         m.key.ProductID,
			VariantID:         m.key.VariantID,
			Quantity:          m.quantity,
			UnitPriceSnapshot: m.unitPrice,
			AddedAt:           m.at,
		})
	case opUpdate:
		if i < 0 {
			return lines
		}
		if m.quantity <= 0 {
			return append(lines[:i], lines[i+1:]...)
		}
		lines[i].Quantity = m.quantity
	case opRemove:
		if i >= 0 {
			return append(lines[:i], lines[i+1:]...)
		}
	}
	return lines
}

// SyncSnapshot is the cart as it was sent to the server
type SyncSnapshot struct {
	Cart  *domain.Cart
	epoch uint64
}

// BeginSync captures the cart and starts journalling mutations until the
// sync is applied or aborted.
func (s *Store) BeginSync() SyncSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = true
	s.journal = nil
	return SyncSnapshot{Cart: s.cart.Clone(), epoch: s.epoch}
}

// ApplySync replaces the lines with the authoritative result and replays any
// mutation made while the sync was in flight, so the last local change wins.
// It returns rebased=true when something was replayed (the cart stays dirty)
// and applied=false when the cart was cleared or reset in the meantime.
func (s *Store) ApplySync(snap SyncSnapshot, lines []domain.CartLine, syncedAt time.Time) (rebased, applied bool) {
	s.mu.Lock()
	if snap.epoch != s.epoch {
		s.mu.Unlock()
		return false, false
	}

	merged := domain.CloneLines(lines)
	for _, m := range s.journal {
		merged = m.apply(merged)
	}
	rebased = len(s.journal) > 0

	wasGuest := s.cart.Owner == domain.OwnerGuest
	s.cart.Lines = merged
	s.cart.Dirty = rebased
	t := syncedAt
	s.cart.LastSyncedAt = &t
	// only a sync that carried the user id merged the guest lines into the user cart
	if snap.Cart.UserID != "" && snap.Cart.UserID == s.cart.UserID {
		s.cart.Owner = domain.OwnerUser
		s.cart.MergeID = ""
	}
	s.syncing = false
	s.journal = nil
	s.revision++
	rev, sessionID, saved := s.revision, s.cart.SessionID, domain.CloneLines(s.cart.Lines)
	nowUser := s.cart.Owner == domain.OwnerUser
	s.mu.Unlock()

	switch {
	case wasGuest && nowUser:
		// the server cart is authoritative from here on
		s.forget(sessionID, rev)
	case !nowUser:
		s.persist(sessionID, rev, saved)
	}
	return rebased, true
}

// AbortSync stops journalling; the cart is left exactly as the local
// mutations made it and stays dirty.
func (s *Store) AbortSync(snap SyncSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.epoch != s.epoch {
		return
	}
	s.syncing = false
	s.journal = nil
}
