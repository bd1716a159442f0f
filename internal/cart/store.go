package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/fjod/go_cart/cartsync/internal/storage"
	"github.com/shopspring/decimal"
)

const defaultPersistTimeout = time.Second

// Persister keeps the guest cart in client-local storage.
// Load returns storage.ErrCacheMiss when nothing was saved for the session.
type Persister interface {
	Load(ctx context.Context, sessionID string) ([]domain.CartLine, error)
	Save(ctx context.Context, sessionID string, lines []domain.CartLine) error
	Delete(ctx context.Context, sessionID string) error
}

// Store is the single source of truth for the session's intended purchase.
// All mutations are local and applied in call order.
type Store struct {
	mu   sync.Mutex
	cart *domain.Cart
	now  func() time.Time

	// epoch changes whenever the cart is cleared or reset; a sync started in
	// an older epoch must not resurrect lines.
	epoch     uint64
	syncing   bool
	journal   []mutation
	revision  uint64
	persister Persister

	persistMu      sync.Mutex
	persistedRev   uint64
	persistTimeout time.Duration
}

func NewStore(sessionID string, persister Persister) *Store {
	return &Store{
		cart:           domain.NewGuestCart(sessionID),
		now:            time.Now,
		persister:      persister,
		persistTimeout: defaultPersistTimeout,
	}
}

// Init restores the persisted guest cart for the session, if there is one.
func (s *Store) Init(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	lines, err := s.persister.Load(ctx, s.SessionID())
	if errors.Is(err, storage.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore guest cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Lines = normalize(lines)
	s.cart.Dirty = len(s.cart.Lines) > 0
	return nil
}

func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.SessionID
}

// AddItem increments an existing line or appends a new one at the end.
func (s *Store) AddItem(productID, variantID string, quantity int, unitPrice decimal.Decimal) error {
	if err := validateKey(productID); err != nil {
		return err
	}
	if quantity <= 0 {
		return &domain.ValidationFailure{Field: "quantity", Reason: "must be greater than 0"}
	}
	if unitPrice.IsNegative() {
		return &domain.ValidationFailure{Field: "unit_price", Reason: "must not be negative"}
	}

	m := mutation{
		op:        opAdd,
		key:       domain.LineKey{ProductID: productID, VariantID: variantID},
		quantity:  quantity,
		unitPrice: unitPrice,
	}
	s.mutate(m)
	return nil
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (s *Store) UpdateQuantity(productID, variantID string, quantity int) error {
	if err := validateKey(productID); err != nil {
		return err
	}
	key := domain.LineKey{ProductID: productID, VariantID: variantID}

	s.mu.Lock()
	if indexOf(s.cart.Lines, key) < 0 {
		s.mu.Unlock()
		if quantity <= 0 {
			return nil
		}
		return domain.ErrLineNotFound
	}
	s.mu.Unlock()

	s.mutate(mutation{op: opUpdate, key: key, quantity: quantity})
	return nil
}

// RemoveItem drops the line if present.
func (s *Store) RemoveItem(productID, variantID string) {
	key := domain.LineKey{ProductID: productID, VariantID: variantID}

	s.mu.Lock()
	if indexOf(s.cart.Lines, key) < 0 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.mutate(mutation{op: opRemove, key: key})
}

func (s *Store) mutate(m mutation) {
	s.mu.Lock()
	m.at = s.now()
	// the line may have disappeared between the presence check and here;
	// apply is a no-op for update/remove of a missing key
	s.cart.Lines = m.apply(s.cart.Lines)
	s.cart.Dirty = true
	if s.syncing {
		s.journal = append(s.journal, m)
	}
	s.revision++
	rev, snapshot, guest := s.revision, domain.CloneLines(s.cart.Lines), s.cart.Owner == domain.OwnerGuest
	sessionID := s.cart.SessionID
	s.mu.Unlock()

	if guest {
		s.persist(sessionID, rev, snapshot)
	}
}

// Clear empties the cart after an order was placed. Dirty is reset.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cart.Lines = []domain.CartLine{}
	s.cart.Dirty = false
	s.bumpEpochLocked()
	rev, sessionID := s.revision, s.cart.SessionID
	s.mu.Unlock()

	s.forget(sessionID, rev)
}

// Reset reverts to a fresh guest cart for the same session (logout).
func (s *Store) Reset() {
	s.mu.Lock()
	s.cart = domain.NewGuestCart(s.cart.SessionID)
	s.bumpEpochLocked()
	rev, sessionID := s.revision, s.cart.SessionID
	s.mu.Unlock()

	s.forget(sessionID, rev)
}

func (s *Store) bumpEpochLocked() {
	s.epoch++
	s.syncing = false
	s.journal = nil
	s.revision++
}

// BindUser records the signed-in user and the id of the login merge. The
// cart stays a guest cart until the merge succeeds; until then a repeated
// login of the same user keeps the first merge id so retries are not merged twice.
func (s *Store) BindUser(userID, mergeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart.Owner == domain.OwnerGuest && s.cart.UserID == userID && s.cart.MergeID != "" {
		return
	}
	s.cart.UserID = userID
	if s.cart.Owner == domain.OwnerGuest {
		s.cart.MergeID = mergeID
	}
}

// Total is a display estimate over price snapshots
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Total(s.cart.Lines)
}

// Lines returns a copy of the lines in insertion order
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLines(s.cart.Lines)
}

func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Dirty
}

// Cart returns a copy of the full cart state
func (s *Store) Cart() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

func validateKey(productID string) error {
	if productID == "" {
		return &domain.ValidationFailure{Field: "product_id", Reason: "must not be empty"}
	}
	return nil
}

func (s *Store) persist(sessionID string, rev uint64, lines []domain.CartLine) {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if rev <= s.persistedRev {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, sessionID, lines); err != nil {
		logger.Printf(ctx, "guest cart save error: %v \n", err)
		return
	}
	s.persistedRev = rev
}

func (s *Store) forget(sessionID string, rev uint64) {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if rev <= s.persistedRev {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.persister.Delete(ctx, sessionID); err != nil {
		logger.Printf(ctx, "guest cart delete error: %v \n", err)
		return
	}
	s.persistedRev = rev
}

// normalize merges duplicate keys and drops non-positive quantities from
// restored data.
func normalize(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		if i := indexOf(out, l.Key()); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out
}

func indexOf(lines []domain.CartLine, key domain.LineKey) int {
	for i := range lines {
		if lines[i].Key() == key {
			return i
		}
	}
	return -1
}
