// Package session ties the cart store, availability cache and sync coordinator
// of one browsing session together.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/availability"
	"github.com/fjod/go_cart/cartsync/internal/cart"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/reconcile"
	"github.com/google/uuid"
)

type Options struct {
	Availability availability.Config
	Sync         reconcile.Config
}

type Session struct {
	id           string
	Store        *cart.Store
	Availability *availability.Cache
	Sync         *reconcile.Coordinator

	mu      sync.Mutex
	ready   bool
	watch   *availability.Subscription
	closers []io.Closer
}

// New builds the session's components. An empty sessionID gets a generated one.
func New(sessionID string, persister cart.Persister, fetcher availability.Fetcher, merger reconcile.Merger, opts Options) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	store := cart.NewStore(sessionID, persister)
	cache := availability.NewCache(fetcher, opts.Availability)
	return &Session{
		id:           sessionID,
		Store:        store,
		Availability: cache,
		Sync:         reconcile.NewCoordinator(store, cache, merger, opts.Sync),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Init restores the guest cart and starts watching stock of its lines
func (s *Session) Init(ctx context.Context) error {
	if err := s.Store.Init(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return s.WatchCart()
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// WatchCart keeps the availability of the current cart lines refreshed in the
// background, replacing the previous watch.
func (s *Session) WatchCart() error {
	var subjects []domain.Subject
	seen := make(map[domain.Subject]bool)
	for _, l := range s.Store.Lines() {
		subj := l.Key().Subject()
		if !seen[subj] {
			seen[subj] = true
			subjects = append(subjects, subj)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return domain.ErrNotInitialized
	}

	var next *availability.Subscription
	if len(subjects) > 0 {
		sub, err := s.Availability.Subscribe(subjects...)
		if err != nil {
			return err
		}
		next = sub
	}
	if s.watch != nil {
		s.watch.Close()
	}
	s.watch = next
	return nil
}

// OnTeardown registers c to be closed by Teardown
func (s *Session) OnTeardown(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Teardown stops background refresh and releases registered resources
func (s *Session) Teardown() error {
	s.mu.Lock()
	s.ready = false
	if s.watch != nil {
		s.watch.Close()
		s.watch = nil
	}
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	errs := []error{s.Availability.Close()}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Printf("session %s teardown: %v", s.id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
