package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cart"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const DefaultSyncTimeout = 10 * time.Second

// Merger is the cart-merge endpoint. It returns the authoritative cart with
// revalidated prices.
type Merger interface {
	MergeCart(ctx context.Context, req domain.MergeRequest) ([]domain.MergedLine, error)
}

// Stock is the part of the availability cache the coordinator consults
type Stock interface {
	Query(ctx context.Context, subjects ...domain.Subject) map[domain.Subject]domain.Availability
	IsAvailable(s domain.Subject, required int) bool
}

type Config struct {
	SyncTimeout time.Duration
	// LoginMergePolicy decides how a guest cart joins an existing user cart
	LoginMergePolicy domain.MergeMode
}

// Coordinator reconciles the local cart with the server cart
type Coordinator struct {
	store  *cart.Store
	stock  Stock
	merger Merger
	cfg    Config
	now    func() time.Time

	sfg singleflight.Group // one in-flight sync per cart

	mu     sync.Mutex
	ticket *domain.SyncTicket
}

func NewCoordinator(store *cart.Store, stock Stock, merger Merger, cfg Config) *Coordinator {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if !cfg.LoginMergePolicy.Valid() {
		cfg.LoginMergePolicy = domain.MergeSum
	}
	return &Coordinator{
		store:  store,
		stock:  stock,
		merger: merger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SyncWithBackend pushes the local cart to the server and applies the merged
// result. Concurrent callers for the same cart share a single merge call and
// observe the same outcome. A caller whose ctx ends stops waiting; the shared
// call carries on under the sync timeout. Failures are never retried here.
func (c *Coordinator) SyncWithBackend(ctx context.Context, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	ch := c.sfg.DoChan(c.store.SessionID(), func() (interface{}, error) {
		return c.sync(ctx, trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneResult(res.Val.(*domain.SyncResult)), nil
	case <-ctx.Done():
		return nil, &domain.FetchFailure{Op: "cart sync", Err: ctx.Err()}
	}
}

func (c *Coordinator) sync(parent context.Context, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	ticket := c.openTicket(trigger)
	snap := c.store.BeginSync()

	mode, mergeID := domain.MergeReplace, ""
	if snap.Cart.Owner == domain.OwnerGuest && snap.Cart.UserID != "" {
		// the same id goes out on every retry of this login merge
		mode, mergeID = c.cfg.LoginMergePolicy, snap.Cart.MergeID
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.SyncTimeout)
	defer cancel()

	merged, err := c.merger.MergeCart(ctx, domain.MergeRequest{
		SessionID: snap.Cart.SessionID,
		UserID:    snap.Cart.UserID,
		MergeID:   mergeID,
		Mode:      mode,
		Lines:     snap.Cart.Lines,
	})
	if err != nil {
		c.store.AbortSync(snap)
		failed := c.closeTicket(ticket, domain.SyncFailed)
		logger.Printf(parent, "cart sync %s (%s) for session %s failed: %v", failed.ID, trigger, snap.Cart.SessionID, err)
		return nil, &domain.FetchFailure{Op: "cart sync", Err: err}
	}

	lines, adjustments := c.reconcileLines(ctx, snap.Cart.Lines, merged)
	syncedAt := c.now()
	rebased, applied := c.store.ApplySync(snap, lines, syncedAt)
	if !applied {
		logger.Printf(parent, "cart for session %s was cleared during sync %s, result dropped", snap.Cart.SessionID, ticket.ID)
	}

	done := c.closeTicket(ticket, domain.SyncSuccess)
	return &domain.SyncResult{
		Ticket:      done,
		Lines:       c.store.Lines(),
		Adjustments: adjustments,
		SyncedAt:    syncedAt,
		Rebased:     rebased,
	}, nil
}

// reconcileLines turns the server answer into cart lines, capping each line at
// the stock the availability cache currently trusts.
func (c *Coordinator) reconcileLines(ctx context.Context, local []domain.CartLine, merged []domain.MergedLine) ([]domain.CartLine, []domain.LineAdjustment) {
	merged = foldMerged(merged)
	localByKey := make(map[domain.LineKey]domain.CartLine, len(local))
	for _, l := range local {
		localByKey[l.Key()] = l
	}

	subjects := make([]domain.Subject, 0, len(merged))
	for _, m := range merged {
		subjects = append(subjects, m.Key.Subject())
	}
	stock := c.stock.Query(ctx, subjects...)

	now := c.now()
	lines := make([]domain.CartLine, 0, len(merged))
	var adjustments []domain.LineAdjustment
	seen := make(map[domain.LineKey]bool, len(merged))

	for _, m := range merged {
		seen[m.Key] = true
		prev, hadLocal := localByKey[m.Key]

		if m.Quantity <= 0 {
			adjustments = append(adjustments, domain.LineAdjustment{
				Key: m.Key, Requested: prev.Quantity, Applied: 0, Reason: domain.AdjustRemoved,
			})
			continue
		}

		line := domain.CartLine{
			ProductID:         m.Key.ProductID,
			VariantID:         m.Key.VariantID,
			Quantity:          m.Quantity,
			UnitPriceSnapshot: m.UnitPrice,
			AddedAt:           now,
		}
		if hadLocal {
			line.AddedAt = prev.AddedAt
			if !prev.UnitPriceSnapshot.IsZero() && !prev.UnitPriceSnapshot.Equal(m.UnitPrice) {
				oldPrice, newPrice := prev.UnitPriceSnapshot, m.UnitPrice
				adjustments = append(adjustments, domain.LineAdjustment{
					Key: m.Key, Requested: m.Quantity, Applied: m.Quantity,
					Reason: domain.AdjustPriceChanged, OldPrice: &oldPrice, NewPrice: &newPrice,
				})
			}
		}

		a := stock[m.Key.Subject()]
		switch {
		case a.Record != nil && !a.Stale && line.Quantity > a.Record.AvailableQuantity:
			available := a.Record.AvailableQuantity
			if available <= 0 {
				adjustments = append(adjustments, domain.LineAdjustment{
					Key: m.Key, Requested: line.Quantity, Applied: 0, Reason: domain.AdjustRemoved,
				})
				continue
			}
			adjustments = append(adjustments, domain.LineAdjustment{
				Key: m.Key, Requested: line.Quantity, Applied: available, Reason: domain.AdjustClamped,
			})
			line.Quantity = available
		case m.Adjusted:
			requested := line.Quantity
			if hadLocal {
				requested = prev.Quantity
			}
			adjustments = append(adjustments, domain.LineAdjustment{
				Key: m.Key, Requested: requested, Applied: line.Quantity, Reason: domain.AdjustClamped,
			})
		}
		lines = append(lines, line)
	}

	for _, l := range local {
		if !seen[l.Key()] {
			adjustments = append(adjustments, domain.LineAdjustment{
				Key: l.Key(), Requested: l.Quantity, Applied: 0, Reason: domain.AdjustRemoved,
			})
		}
	}
	return lines, adjustments
}

// foldMerged collapses repeated keys in a server answer into one line
func foldMerged(merged []domain.MergedLine) []domain.MergedLine {
	out := make([]domain.MergedLine, 0, len(merged))
	index := make(map[domain.LineKey]int, len(merged))
	for _, m := range merged {
		if i, ok := index[m.Key]; ok {
			out[i].Quantity += m.Quantity
			out[i].Adjusted = out[i].Adjusted || m.Adjusted
			continue
		}
		index[m.Key] = len(out)
		out = append(out, m)
	}
	return out
}

// Checkout syncs the cart and then gates it on live availability. A failed
// sync is returned as an error so the caller can offer a retry.
func (c *Coordinator) Checkout(ctx context.Context) (*domain.CheckoutReport, error) {
	res, err := c.SyncWithBackend(ctx, domain.TriggerCheckout)
	if err != nil {
		return nil, err
	}
	if len(res.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	required := make(map[domain.Subject]int, len(res.Lines))
	subjects := make([]domain.Subject, 0, len(res.Lines))
	for _, l := range res.Lines {
		s := l.Key().Subject()
		if _, ok := required[s]; !ok {
			subjects = append(subjects, s)
		}
		required[s] += l.Quantity
	}
	// stale records are re-fetched here, never trusted as they are
	stock := c.stock.Query(ctx, subjects...)

	report := &domain.CheckoutReport{Sync: res, Eligible: !res.Rebased, CartChanged: res.Rebased}
	for _, l := range res.Lines {
		s := l.Key().Subject()
		if c.stock.IsAvailable(s, required[s]) {
			continue
		}
		report.Eligible = false
		if a := stock[s]; a.Record == nil || a.Stale {
			report.Unknown = append(report.Unknown, l.Key())
		} else {
			report.Blocked = append(report.Blocked, l.Key())
		}
	}
	return report, nil
}

// HandleAuthEvent reacts to the auth-state signal: login binds the user and
// merges the guest cart, logout reverts to a fresh guest cart.
func (c *Coordinator) HandleAuthEvent(ctx context.Context, ev domain.AuthEvent) error {
	switch ev.Kind {
	case domain.AuthLogin:
		if ev.UserID == "" {
			return &domain.ValidationFailure{Field: "user_id", Reason: "must not be empty on login"}
		}
		c.store.BindUser(ev.UserID, uuid.NewString())
		if _, err := c.SyncWithBackend(ctx, domain.TriggerLogin); err != nil {
			return err
		}
		// a sync already in flight when the login arrived did not carry the user
		if cur := c.store.Cart(); cur.Owner == domain.OwnerGuest && cur.UserID == ev.UserID {
			_, err := c.SyncWithBackend(ctx, domain.TriggerLogin)
			return err
		}
		return nil
	case domain.AuthLogout:
		c.store.Reset()
		return nil
	default:
		return &domain.ValidationFailure{Field: "event", Reason: fmt.Sprintf("unknown auth event %q", ev.Kind)}
	}
}

// OrderPlaced clears the cart after the order was accepted
func (c *Coordinator) OrderPlaced() {
	c.store.Clear()
}

// Ticket returns the most recent sync ticket, if any
func (c *Coordinator) Ticket() (domain.SyncTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticket == nil {
		return domain.SyncTicket{}, false
	}
	return *c.ticket, true
}

func (c *Coordinator) openTicket(trigger domain.SyncTrigger) *domain.SyncTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &domain.SyncTicket{
		ID:          uuid.NewString(),
		RequestedAt: c.now(),
		Trigger:     trigger,
		Status:      domain.SyncPending,
	}
	c.ticket = t
	return t
}

func (c *Coordinator) closeTicket(t *domain.SyncTicket, status domain.SyncStatus) domain.SyncTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Status = status
	return *t
}

func cloneResult(r *domain.SyncResult) *domain.SyncResult {
	out := *r
	out.Lines = domain.CloneLines(r.Lines)
	if r.Adjustments != nil {
		out.Adjustments = make([]domain.LineAdjustment, len(r.Adjustments))
		copy(out.Adjustments, r.Adjustments)
	}
	return &out
}
