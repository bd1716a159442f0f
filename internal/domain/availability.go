package domain

import "time"

// SubjectKind says whether stock is tracked for a whole product or a single variant
type SubjectKind string

const (
	SubjectProduct SubjectKind = "product"
	SubjectVariant SubjectKind = "variant"
)

func (k SubjectKind) Valid() bool {
	return k == SubjectProduct || k == SubjectVariant
}

// Subject is the cache key for availability data
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

func (s Subject) String() string {
	return string(s.Kind) + ":" + s.ID
}

// Validate rejects subjects that must never reach the inventory endpoint
func (s Subject) Validate() error {
	if s.ID == "" {
		return &ValidationFailure{Field: "subject_id", Reason: "must not be empty"}
	}
	if !s.Kind.Valid() {
		return &ValidationFailure{Field: "subject_kind", Reason: "must be product or variant"}
	}
	return nil
}

type StockStatus string

const (
	InStock    StockStatus = "IN_STOCK"
	LowStock   StockStatus = "LOW_STOCK"
	OutOfStock StockStatus = "OUT_OF_STOCK"
)

// AvailabilityRecord is a snapshot of stock for one subject.
// ExpiresAt is always FetchedAt plus the cache refresh interval.
type AvailabilityRecord struct {
	SubjectID         string      `json:"subject_id"`
	SubjectKind       SubjectKind `json:"subject_kind"`
	AvailableQuantity int         `json:"available_quantity"`
	StockStatus       StockStatus `json:"stock_status"`
	FetchedAt         time.Time   `json:"fetched_at"`
	ExpiresAt         time.Time   `json:"expires_at"`
}

func (r AvailabilityRecord) Subject() Subject {
	return Subject{Kind: r.SubjectKind, ID: r.SubjectID}
}

// IsExpired reports whether the record is past its expiry plus grace at now
func (r AvailabilityRecord) IsExpired(now time.Time, grace time.Duration) bool {
	return now.After(r.ExpiresAt.Add(grace))
}

// StockLevel is what the inventory endpoint reports for one subject
type StockLevel struct {
	Subject           Subject
	AvailableQuantity int
	StockStatus       StockStatus
}

// Availability is the per-subject answer of a cache query.
// Record is nil when nothing is known; Err is set when the last fetch for the
// subject failed, in which case Record (if any) is the previous, stale value.
type Availability struct {
	Record *AvailabilityRecord
	Stale  bool
	Err    error
}

// Known reports whether any record, fresh or stale, is present
func (a Availability) Known() bool {
	return a.Record != nil
}
