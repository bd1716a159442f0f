package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/segmentio/kafka-go"
)

type AuthPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type CheckoutPayload struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
}

// AuthTarget reacts to login and logout of a session
type AuthTarget interface {
	HandleAuthEvent(ctx context.Context, ev domain.AuthEvent) error
}

// AuthHandler forwards auth events for sessionID to target; other sessions are skipped.
func AuthHandler(kind domain.AuthEventKind, sessionID string, target AuthTarget) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var p AuthPayload
		if err := json.Unmarshal(m.Value, &p); err != nil {
			return fmt.Errorf("error parsing message: %w", err)
		}
		if p.SessionID != sessionID {
			return nil
		}
		return target.HandleAuthEvent(ctx, domain.AuthEvent{Kind: kind, SessionID: p.SessionID, UserID: p.UserID})
	}
}

// CheckoutHandler decodes a completed checkout and passes it on
func CheckoutHandler(fn func(ctx context.Context, p CheckoutPayload) error) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var p CheckoutPayload
		if err := json.Unmarshal(m.Value, &p); err != nil {
			return fmt.Errorf("error parsing message: %w", err)
		}
		if p.UserID == "" && p.SessionID == "" {
			return fmt.Errorf("checkout %q: missing user_id and session_id", p.CheckoutID)
		}
		return fn(ctx, p)
	}
}
