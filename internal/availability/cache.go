package availability

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultGrace           = 5 * time.Second
	DefaultFetchTimeout    = 5 * time.Second
)

// Fetcher is the batched inventory endpoint.
// Subjects missing from the answer are treated as unknown.
type Fetcher interface {
	FetchAvailability(ctx context.Context, subjects []domain.Subject) ([]domain.StockLevel, error)
}

type Config struct {
	RefreshInterval time.Duration
	// Grace is how long past ExpiresAt a record is still trusted by IsAvailable
	Grace        time.Duration
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

// call is one batched fetch. Every caller interested in one of its subjects
// waits on done and reads results afterwards.
type call struct {
	done    chan struct{}
	results map[domain.Subject]domain.Availability
}

// Cache holds last-known stock per subject, coalesces concurrent fetches and
// refreshes subscribed subjects in the background.
type Cache struct {
	fetcher Fetcher
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	records  map[domain.Subject]domain.AvailabilityRecord
	errs     map[domain.Subject]error
	inflight map[domain.Subject]*call

	subs        map[domain.Subject]int
	subCount    int
	stopRefresh chan struct{}
	closed      bool
	wg          sync.WaitGroup
}

func NewCache(fetcher Fetcher, cfg Config) *Cache {
	return &Cache{
		fetcher:  fetcher,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		records:  make(map[domain.Subject]domain.AvailabilityRecord),
		errs:     make(map[domain.Subject]error),
		inflight: make(map[domain.Subject]*call),
		subs:     make(map[domain.Subject]int),
	}
}

// Query returns availability for every requested subject. Fresh cached
// records are served directly, subjects already being fetched join that fetch,
// and everything else goes out as one batched request. It never fails as a
// whole: problems are reported per subject in Availability.Err.
func (c *Cache) Query(ctx context.Context, subjects ...domain.Subject) map[domain.Subject]domain.Availability {
	return c.query(ctx, subjects, false)
}

// Refresh is Query that ignores cached freshness.
func (c *Cache) Refresh(ctx context.Context, subjects ...domain.Subject) map[domain.Subject]domain.Availability {
	return c.query(ctx, subjects, true)
}

func (c *Cache) query(ctx context.Context, subjects []domain.Subject, force bool) map[domain.Subject]domain.Availability {
	out := make(map[domain.Subject]domain.Availability, len(subjects))
	waits := make(map[*call][]domain.Subject)
	var toFetch []domain.Subject

	c.mu.Lock()
	now := c.now()
	for _, s := range subjects {
		if _, seen := out[s]; seen {
			continue
		}
		if err := s.Validate(); err != nil {
			out[s] = domain.Availability{Err: err}
			continue
		}
		if !force {
			if rec, ok := c.records[s]; ok && !rec.IsExpired(now, 0) {
				out[s] = domain.Availability{Record: &rec}
				continue
			}
		}
		if cl, ok := c.inflight[s]; ok {
			waits[cl] = append(waits[cl], s)
			// placeholder so duplicates in subjects are skipped
			out[s] = domain.Availability{}
			continue
		}
		toFetch = append(toFetch, s)
		out[s] = domain.Availability{}
	}
	if len(toFetch) > 0 {
		cl := &call{done: make(chan struct{})}
		for _, s := range toFetch {
			c.inflight[s] = cl
		}
		waits[cl] = toFetch
		go c.fetch(ctx, cl, toFetch)
	}
	c.mu.Unlock()

	for cl, subs := range waits {
		select {
		case <-cl.done:
			for _, s := range subs {
				out[s] = cl.results[s]
			}
		case <-ctx.Done():
			failure := &domain.FetchFailure{Op: "availability query", Err: ctx.Err()}
			c.mu.Lock()
			for _, s := range subs {
				a := c.availabilityLocked(s, c.now())
				a.Err = failure
				out[s] = a
			}
			c.mu.Unlock()
		}
	}
	return out
}

// fetch runs detached from the caller's cancellation so that callers who
// joined the call are not failed by the one who started it.
func (c *Cache) fetch(parent context.Context, cl *call, subjects []domain.Subject) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.FetchTimeout)
	defer cancel()

	levels, err := c.fetcher.FetchAvailability(ctx, subjects)

	c.mu.Lock()
	defer c.mu.Unlock()
	fetchedAt := c.now()

	if err != nil {
		logger.Printf(parent, "availability fetch for %d subjects failed: %v", len(subjects), err)
		failure := &domain.FetchFailure{Op: "availability fetch", Err: err}
		for _, s := range subjects {
			c.errs[s] = failure
		}
	} else {
		got := make(map[domain.Subject]domain.StockLevel, len(levels))
		for _, l := range levels {
			got[l.Subject] = l
		}
		for _, s := range subjects {
			l, ok := got[s]
			if !ok {
				c.errs[s] = domain.ErrUnknownSubject
				continue
			}
			c.records[s] = c.newRecord(l, fetchedAt)
			delete(c.errs, s)
		}
	}

	results := make(map[domain.Subject]domain.Availability, len(subjects))
	for _, s := range subjects {
		results[s] = c.availabilityLocked(s, fetchedAt)
		if c.inflight[s] == cl {
			delete(c.inflight, s)
		}
	}
	cl.results = results
	close(cl.done)
}

func (c *Cache) newRecord(l domain.StockLevel, fetchedAt time.Time) domain.AvailabilityRecord {
	qty := l.AvailableQuantity
	if qty < 0 {
		qty = 0
	}
	status := l.StockStatus
	if qty == 0 || status == "" {
		status = classify(qty, status)
	}
	return domain.AvailabilityRecord{
		SubjectID:         l.Subject.ID,
		SubjectKind:       l.Subject.Kind,
		AvailableQuantity: qty,
		StockStatus:       status,
		FetchedAt:         fetchedAt,
		ExpiresAt:         fetchedAt.Add(c.cfg.RefreshInterval),
	}
}

func classify(qty int, reported domain.StockStatus) domain.StockStatus {
	if qty == 0 {
		return domain.OutOfStock
	}
	if reported != "" {
		return reported
	}
	return domain.InStock
}

func (c *Cache) availabilityLocked(s domain.Subject, now time.Time) domain.Availability {
	a := domain.Availability{Err: c.errs[s]}
	if rec, ok := c.records[s]; ok {
		a.Record = &rec
		a.Stale = rec.IsExpired(now, 0)
	}
	return a
}

// IsAvailable is a pure check over the current snapshot. Missing records and
// records expired beyond the grace tolerance count as not available.
func (c *Cache) IsAvailable(s domain.Subject, required int) bool {
	c.mu.Lock()
	rec, ok := c.records[s]
	now := c.now()
	c.mu.Unlock()

	if !ok || rec.IsExpired(now, c.cfg.Grace) {
		return false
	}
	return rec.StockStatus != domain.OutOfStock && rec.AvailableQuantity >= required
}

// Snapshot returns a copy of the cached record for s
func (c *Cache) Snapshot(s domain.Subject) (domain.AvailabilityRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[s]
	return rec, ok
}

// Close stops background refresh. Subscriptions made afterwards never start it again.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.stopRefresherLocked()
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}
