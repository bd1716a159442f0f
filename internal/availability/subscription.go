package availability

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// Subscription keeps its subjects in the background refresh set until closed
type Subscription struct {
	cache    *Cache
	subjects []domain.Subject
	once     sync.Once
}

// Subscribe adds one reference for each subject. The refresh timer starts with
// the first reference and stops when the last one is released.
func (c *Cache) Subscribe(subjects ...domain.Subject) (*Subscription, error) {
	for _, s := range subjects {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range subjects {
		c.subs[s]++
	}
	c.subCount += len(subjects)
	if c.subCount > 0 && c.stopRefresh == nil && !c.closed {
		c.startRefresherLocked()
	}

	owned := make([]domain.Subject, len(subjects))
	copy(owned, subjects)
	return &Subscription{cache: c, subjects: owned}, nil
}

// Close releases the subscription. Calling it more than once is a no-op.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cache.unsubscribe(s.subjects)
	})
}

func (c *Cache) unsubscribe(subjects []domain.Subject) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range subjects {
		if c.subs[s] <= 1 {
			delete(c.subs, s)
		} else {
			c.subs[s]--
		}
	}
	c.subCount -= len(subjects)
	if c.subCount <= 0 {
		c.subCount = 0
		c.stopRefresherLocked()
	}
}

// Subscribed returns the number of references held for s
func (c *Cache) Subscribed(s domain.Subject) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[s]
}

func (c *Cache) refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRefresh != nil
}

func (c *Cache) startRefresherLocked() {
	stop := make(chan struct{})
	c.stopRefresh = stop
	c.wg.Add(1)
	go c.refreshLoop(stop)
}

func (c *Cache) stopRefresherLocked() {
	if c.stopRefresh != nil {
		close(c.stopRefresh)
		c.stopRefresh = nil
	}
}

func (c *Cache) refreshLoop(stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refreshSubscribed(stop)
		case <-stop:
			return
		}
	}
}

func (c *Cache) refreshSubscribed(stop <-chan struct{}) {
	c.mu.Lock()
	subjects := make([]domain.Subject, 0, len(c.subs))
	for s := range c.subs {
		subjects = append(subjects, s)
	}
	c.mu.Unlock()

	if len(subjects) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	c.Refresh(ctx, subjects...)
}
