package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu      sync.Mutex
	levels  map[domain.Subject]domain.StockLevel
	err     error
	calls   int
	batches [][]domain.Subject
	gate    chan struct{}
}

func newFakeFetcher(levels ...domain.StockLevel) *fakeFetcher {
	f := &fakeFetcher{levels: make(map[domain.Subject]domain.StockLevel)}
	for _, l := range levels {
		f.levels[l.Subject] = l
	}
	return f
}

func (f *fakeFetcher) FetchAvailability(ctx context.Context, subjects []domain.Subject) ([]domain.StockLevel, error) {
	f.mu.Lock()
	f.calls++
	batch := make([]domain.Subject, len(subjects))
	copy(batch, subjects)
	f.batches = append(f.batches, batch)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.StockLevel
	for _, s := range subjects {
		if l, ok := f.levels[s]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	p1 = domain.Subject{Kind: domain.SubjectProduct, ID: "p1"}
	p2 = domain.Subject{Kind: domain.SubjectProduct, ID: "p2"}
	v1 = domain.Subject{Kind: domain.SubjectVariant, ID: "v1"}
)

func level(s domain.Subject, qty int, status domain.StockStatus) domain.StockLevel {
	return domain.StockLevel{Subject: s, AvailableQuantity: qty, StockStatus: status}
}

func setupCache(t *testing.T, f Fetcher, cfg Config) (*Cache, *testClock) {
	c := NewCache(f, cfg)
	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clock.Now
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func TestQuery_ConcurrentCallsShareOneFetch(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	f.gate = make(chan struct{})
	c, _ := setupCache(t, f, Config{})

	const n = 20
	results := make([]domain.Availability, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Query(context.Background(), p1)[p1]
		}(i)
	}

	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, 1, f.callCount())
	for _, r := range results {
		require.NotNil(t, r.Record)
		assert.NoError(t, r.Err)
		assert.Equal(t, 5, r.Record.AvailableQuantity)
	}
}

func TestQuery_ServesFreshRecordsFromCache(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock), level(p2, 1, domain.LowStock))
	c, clock := setupCache(t, f, Config{RefreshInterval: time.Minute})

	first := c.Query(context.Background(), p1, p2)
	require.Len(t, first, 2)
	assert.Equal(t, 1, f.callCount())

	clock.Advance(30 * time.Second)
	second := c.Query(context.Background(), p1, p2)
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, domain.LowStock, second[p2].Record.StockStatus)
	assert.False(t, second[p1].Stale)
}

func TestQuery_RefetchesOnlyStaleSubjects(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock), level(p2, 3, domain.InStock))
	c, clock := setupCache(t, f, Config{RefreshInterval: time.Minute})

	c.Query(context.Background(), p1)
	clock.Advance(2 * time.Minute)
	res := c.Query(context.Background(), p1, p2)

	require.Equal(t, 2, f.callCount())
	assert.ElementsMatch(t, []domain.Subject{p1, p2}, f.batches[1])
	assert.Equal(t, 3, res[p2].Record.AvailableQuantity)

	c.Query(context.Background(), p1, p2)
	assert.Equal(t, 2, f.callCount())
}

func TestQuery_ExpiresAtIsFetchedAtPlusInterval(t *testing.T) {
	f := newFakeFetcher(level(v1, 2, domain.LowStock))
	c, clock := setupCache(t, f, Config{RefreshInterval: 45 * time.Second})

	rec := c.Query(context.Background(), v1)[v1].Record
	require.NotNil(t, rec)
	assert.Equal(t, clock.Now(), rec.FetchedAt)
	assert.Equal(t, clock.Now().Add(45*time.Second), rec.ExpiresAt)
	assert.Equal(t, domain.SubjectVariant, rec.SubjectKind)
}

func TestQuery_FailureKeepsPriorEntry(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	c, clock := setupCache(t, f, Config{RefreshInterval: time.Minute})

	c.Query(context.Background(), p1)
	clock.Advance(2 * time.Minute)
	f.setErr(errors.New("inventory down"))

	res := c.Query(context.Background(), p1)[p1]
	require.NotNil(t, res.Record)
	assert.True(t, res.Stale)
	assert.Equal(t, 5, res.Record.AvailableQuantity)
	assert.True(t, domain.IsFetchFailure(res.Err))
	assert.ErrorContains(t, res.Err, "inventory down")

	rec, ok := c.Snapshot(p1)
	assert.True(t, ok)
	assert.Equal(t, 5, rec.AvailableQuantity)
}

func TestQuery_FailureWithoutPriorEntryIsUnknown(t *testing.T) {
	f := newFakeFetcher()
	f.setErr(errors.New("boom"))
	c, _ := setupCache(t, f, Config{})

	res := c.Query(context.Background(), p1)[p1]
	assert.False(t, res.Known())
	assert.True(t, domain.IsFetchFailure(res.Err))
	assert.False(t, c.IsAvailable(p1, 1))
}

func TestQuery_UnknownSubjectFlagged(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	c, _ := setupCache(t, f, Config{})

	res := c.Query(context.Background(), p1, p2)
	assert.NoError(t, res[p1].Err)
	assert.ErrorIs(t, res[p2].Err, domain.ErrUnknownSubject)
	assert.Nil(t, res[p2].Record)
}

func TestQuery_InvalidSubjectNeverFetched(t *testing.T) {
	f := newFakeFetcher()
	c, _ := setupCache(t, f, Config{})

	bad := domain.Subject{Kind: domain.SubjectProduct, ID: ""}
	res := c.Query(context.Background(), bad)

	assert.True(t, domain.IsValidationFailure(res[bad].Err))
	assert.Equal(t, 0, f.callCount())
}

func TestQuery_TimeoutIsFailure(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	f.gate = make(chan struct{})
	defer close(f.gate)
	c, _ := setupCache(t, f, Config{FetchTimeout: 20 * time.Millisecond})

	start := time.Now()
	res := c.Query(context.Background(), p1)[p1]

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, domain.IsFetchFailure(res.Err))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestQuery_CallerCancellationDoesNotFailOthers(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	f.gate = make(chan struct{})
	c, _ := setupCache(t, f, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan domain.Availability)
	go func() { firstDone <- c.Query(ctx, p1)[p1] }()
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan domain.Availability)
	go func() { secondDone <- c.Query(context.Background(), p1)[p1] }()

	cancel()
	first := <-firstDone
	assert.ErrorIs(t, first.Err, context.Canceled)

	close(f.gate)
	second := <-secondDone
	require.NotNil(t, second.Record)
	assert.NoError(t, second.Err)
	assert.Equal(t, 1, f.callCount())
}

func TestQuery_ZeroQuantityIsOutOfStock(t *testing.T) {
	f := newFakeFetcher(level(p1, 0, domain.InStock), level(p2, 4, ""))
	c, _ := setupCache(t, f, Config{})

	res := c.Query(context.Background(), p1, p2)
	assert.Equal(t, domain.OutOfStock, res[p1].Record.StockStatus)
	assert.Equal(t, domain.InStock, res[p2].Record.StockStatus)
}

func TestIsAvailable(t *testing.T) {
	f := newFakeFetcher(
		level(p1, 5, domain.InStock),
		level(p2, 3, domain.OutOfStock),
		level(v1, 2, domain.LowStock),
	)
	c, _ := setupCache(t, f, Config{})
	c.Query(context.Background(), p1, p2, v1)

	assert.True(t, c.IsAvailable(p1, 5))
	assert.False(t, c.IsAvailable(p1, 6))
	assert.False(t, c.IsAvailable(p2, 1))
	assert.True(t, c.IsAvailable(v1, 2))
	assert.False(t, c.IsAvailable(domain.Subject{Kind: domain.SubjectProduct, ID: "missing"}, 1))
}

func TestIsAvailable_StaleBeyondGraceIsNotTrusted(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	c, clock := setupCache(t, f, Config{RefreshInterval: 30 * time.Second, Grace: 5 * time.Second})
	c.Query(context.Background(), p1)

	clock.Advance(33 * time.Second)
	assert.True(t, c.IsAvailable(p1, 1), "within grace")

	clock.Advance(3 * time.Second)
	assert.False(t, c.IsAvailable(p1, 1), "beyond grace")
}
