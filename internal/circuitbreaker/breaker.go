package circuitbreaker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	DefaultMaxFailures = 5
	DefaultOpenTimeout = 30 * time.Second
)

type Config struct {
	Name string
	// MaxFailures consecutive failures open the breaker
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
	// IsSuccessful reports errors that must not count as failures, e.g. a 4xx answer.
	IsSuccessful func(err error) bool
}

// New returns a breaker that opens after MaxFailures consecutive failures and
// lets a single probe through once OpenTimeout has passed.
func New[T any](cfg Config) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	maxFailures := cfg.MaxFailures

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: cfg.IsSuccessful,
	})
}

// IsOpen reports whether err was returned without calling the endpoint
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
