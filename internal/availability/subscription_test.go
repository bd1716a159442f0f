package availability

import (
	"testing"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_RefreshRunsWhileSubscribed(t *testing.T) {
	f := newFakeFetcher(level(p1, 5, domain.InStock))
	c := NewCache(f, Config{RefreshInterval: 10 * time.Millisecond})
	t.Cleanup(func() { c.Close() })

	assert.False(t, c.refreshing())

	sub, err := c.Subscribe(p1)
	require.NoError(t, err)
	assert.True(t, c.refreshing())

	require.Eventually(t, func() bool { return f.callCount() >= 2 }, time.Second, 5*time.Millisecond)

	sub.Close()
	assert.False(t, c.refreshing())

	time.Sleep(30 * time.Millisecond)
	stopped := f.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, f.callCount(), "no fetches after the last subscriber left")
}

func TestSubscribe_ReferenceCounted(t *testing.T) {
	f := newFakeFetcher()
	c := NewCache(f, Config{RefreshInterval: time.Hour})
	t.Cleanup(func() { c.Close() })

	a, err := c.Subscribe(p1, p2)
	require.NoError(t, err)
	b, err := c.Subscribe(p1)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Subscribed(p1))
	assert.Equal(t, 1, c.Subscribed(p2))

	a.Close()
	assert.Equal(t, 1, c.Subscribed(p1))
	assert.Equal(t, 0, c.Subscribed(p2))
	assert.True(t, c.refreshing())

	a.Close()
	assert.Equal(t, 1, c.Subscribed(p1), "double close releases once")

	b.Close()
	assert.Equal(t, 0, c.Subscribed(p1))
	assert.False(t, c.refreshing())
}

func TestSubscribe_RejectsInvalidSubject(t *testing.T) {
	c := NewCache(newFakeFetcher(), Config{})
	t.Cleanup(func() { c.Close() })

	_, err := c.Subscribe(domain.Subject{Kind: "bundle", ID: "x"})
	assert.True(t, domain.IsValidationFailure(err))
	assert.False(t, c.refreshing())
}

func TestSubscribe_AfterCloseDoesNotRefresh(t *testing.T) {
	c := NewCache(newFakeFetcher(), Config{RefreshInterval: 10 * time.Millisecond})
	require.NoError(t, c.Close())

	sub, err := c.Subscribe(p1)
	require.NoError(t, err)
	defer sub.Close()
	assert.False(t, c.refreshing())
}
