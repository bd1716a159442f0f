package repository

import "time"

// Cart is the server-side cart of one owner: a user id, or a guest session
type Cart struct {
	ID      string     `bson:"_id,omitempty"`
	OwnerID string     `bson:"owner_id"`
	Items   []CartItem `bson:"items"`
	// AppliedMerges holds the most recent login merge ids already folded into Items
	AppliedMerges []string  `bson:"applied_merges,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type CartItem struct {
	ProductID string    `bson:"product_id"`
	VariantID string    `bson:"variant_id,omitempty"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

// GuestOwner is the owner id of a guest session's server cart
func GuestOwner(sessionID string) string {
	return "guest:" + sessionID
}
