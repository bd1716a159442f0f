package backend

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/backend/inventory"
	"github.com/fjod/go_cart/cartsync/internal/backend/merge"
	"github.com/fjod/go_cart/cartsync/internal/backend/repository"
	"github.com/fjod/go_cart/cartsync/internal/domain"
)

const (
	// MaxBatch bounds the subjects accepted in one availability request
	MaxBatch = 200
	// maxAppliedMerges is how many login merge ids are remembered per cart
	maxAppliedMerges = 16
)

// Service answers availability queries and merges carts into the stored server carts
type Service struct {
	repo  repository.CartRepository
	stock *inventory.MemoryStore
	now   func() time.Time

	locks sync.Map // ownerID -> *sync.Mutex
}

func NewService(repo repository.CartRepository, stock *inventory.MemoryStore) *Service {
	return &Service{repo: repo, stock: stock, now: time.Now}
}

func (s *Service) Availability(_ context.Context, subjects []domain.Subject) ([]domain.StockLevel, error) {
	if len(subjects) == 0 {
		return nil, &domain.ValidationFailure{Field: "subjects", Reason: "must not be empty"}
	}
	if len(subjects) > MaxBatch {
		return nil, &domain.ValidationFailure{Field: "subjects", Reason: "too many subjects in one request"}
	}
	for _, subj := range subjects {
		if err := subj.Validate(); err != nil {
			return nil, err
		}
	}
	return s.stock.GetStock(subjects), nil
}

// MergeCart merges the incoming lines into the owner's server cart and
// returns the authoritative, repriced result. A login merge (user id set,
// mode sum) also drops the guest session's server cart.
func (s *Service) MergeCart(ctx context.Context, req domain.MergeRequest) ([]domain.MergedLine, error) {
	if req.SessionID == "" {
		return nil, &domain.ValidationFailure{Field: "session_id", Reason: "must not be empty"}
	}
	if !req.Mode.Valid() {
		return nil, &domain.ValidationFailure{Field: "mode", Reason: "must be sum or replace"}
	}

	owner := repository.GuestOwner(req.SessionID)
	if req.UserID != "" {
		owner = req.UserID
	}

	mu := s.lock(owner)
	mu.Lock()
	defer mu.Unlock()

	stored, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		stored = &repository.Cart{OwnerID: owner}
	} else if err != nil {
		log.Printf("repo get cart error: %v \n", err)
		return nil, err
	}

	if req.MergeID != "" && slices.Contains(stored.AppliedMerges, req.MergeID) {
		// the client lost our answer; hand back the stored cart instead of adding again
		log.Printf("merge %s for %s already applied \n", req.MergeID, owner)
		merged, _ := merge.Merge(domain.MergeSum, toLines(stored.Items), nil, s.stock, s.now())
		return merged, nil
	}

	merged, kept := merge.Merge(req.Mode, toLines(stored.Items), req.Lines, s.stock, s.now())
	stored.Items = fromLines(kept)
	if req.MergeID != "" {
		stored.AppliedMerges = append(stored.AppliedMerges, req.MergeID)
		if n := len(stored.AppliedMerges); n > maxAppliedMerges {
			stored.AppliedMerges = stored.AppliedMerges[n-maxAppliedMerges:]
		}
	}
	if err := s.repo.UpsertCart(ctx, stored); err != nil {
		log.Printf("repo upsert cart error: %v \n", err)
		return nil, err
	}

	if req.UserID != "" && req.Mode == domain.MergeSum {
		err := s.repo.DeleteCart(ctx, repository.GuestOwner(req.SessionID))
		if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
			log.Printf("repo delete guest cart error: %v \n", err)
		}
	}
	return merged, nil
}

// OrderPlaced empties the owner's server cart and takes the sold stock out
func (s *Service) OrderPlaced(ctx context.Context, userID, sessionID string) error {
	owner := repository.GuestOwner(sessionID)
	if userID != "" {
		owner = userID
	}

	mu := s.lock(owner)
	mu.Lock()
	defer mu.Unlock()

	stored, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sold := make(map[domain.Subject]int, len(stored.Items))
	for _, it := range stored.Items {
		sold[domain.LineKey{ProductID: it.ProductID, VariantID: it.VariantID}.Subject()] += it.Quantity
	}
	if err := s.stock.Deduct(sold); err != nil {
		log.Printf("stock deduct error for %s: %v \n", owner, err)
	}

	if err := s.repo.DeleteCart(ctx, owner); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	return nil
}

func (s *Service) lock(owner string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(owner, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func toLines(items []repository.CartItem) []merge.Line {
	out := make([]merge.Line, 0, len(items))
	for _, it := range items {
		out = append(out, merge.Line{
			Key:      domain.LineKey{ProductID: it.ProductID, VariantID: it.VariantID},
			Quantity: it.Quantity,
			AddedAt:  it.AddedAt,
		})
	}
	return out
}

func fromLines(lines []merge.Line) []repository.CartItem {
	out := make([]repository.CartItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, repository.CartItem{
			ProductID: l.Key.ProductID,
			VariantID: l.Key.VariantID,
			Quantity:  l.Quantity,
			AddedAt:   l.AddedAt,
		})
	}
	return out
}
