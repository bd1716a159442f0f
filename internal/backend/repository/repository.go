package repository

import (
	"context"
	"errors"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository defines the interface for server cart storage
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*Cart, error)
	UpsertCart(ctx context.Context, cart *Cart) error
	DeleteCart(ctx context.Context, ownerID string) error
}
