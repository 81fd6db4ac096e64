package model

import "time"

// ItemStock is the ledger row for one item in one box.
type ItemStock struct {
	ID             int64     `db:"id" json:"id"`
	ItemID         int64     `db:"item_id" json:"item_id"`
	BoxID          int64     `db:"box_id" json:"box_id"`
	Pending        int       `db:"pending" json:"pending"`
	InStorage      int       `db:"in_storage" json:"in_storage"`
	OnBorrow       int       `db:"on_borrow" json:"on_borrow"`
	InClearance    int       `db:"in_clearance" json:"in_clearance"`
	Seeded         int       `db:"seeded" json:"seeded"`
	Condition      string    `db:"condition" json:"condition,omitempty"`
	ConditionNotes string    `db:"condition_notes" json:"condition_notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	// Joined fields (not always populated).
	BoxCode     string `db:"box_code" json:"box_code,omitempty"`
	ProductCode string `db:"product_code" json:"product_code,omitempty"`
}

// Bucket names a quantity column of an ItemStock row.
type Bucket string

// Buckets.
const (
	BucketPending     Bucket = "pending"
	BucketInStorage   Bucket = "in_storage"
	BucketOnBorrow    Bucket = "on_borrow"
	BucketInClearance Bucket = "in_clearance"
	BucketSeeded      Bucket = "seeded"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{BucketPending, BucketInStorage, BucketOnBorrow, BucketInClearance, BucketSeeded}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

// State is the movement-log name for the bucket.
func (b Bucket) State() string {
	switch b {
	case BucketPending:
		return StatePending
	case BucketInStorage:
		return StateStorage
	case BucketOnBorrow:
		return StateBorrowed
	case BucketInClearance:
		return StateClearance
	case BucketSeeded:
		return StateSeeded
	}
	return StateNone
}

// Get returns the quantity held in bucket b.
func (s *ItemStock) Get(b Bucket) int {
	switch b {
	case BucketPending:
		return s.Pending
	case BucketInStorage:
		return s.InStorage
	case BucketOnBorrow:
		return s.OnBorrow
	case BucketInClearance:
		return s.InClearance
	case BucketSeeded:
		return s.Seeded
	}
	return 0
}

// Set stores n in bucket b.
func (s *ItemStock) Set(b Bucket, n int) {
	switch b {
	case BucketPending:
		s.Pending = n
	case BucketInStorage:
		s.InStorage = n
	case BucketOnBorrow:
		s.OnBorrow = n
	case BucketInClearance:
		s.InClearance = n
	case BucketSeeded:
		s.Seeded = n
	}
}

// Total is the sum of all buckets.
func (s *ItemStock) Total() int {
	return s.Pending + s.InStorage + s.OnBorrow + s.InClearance + s.Seeded
}

// Empty reports whether every bucket is zero. Empty rows are deleted.
func (s *ItemStock) Empty() bool {
	return s.Pending == 0 && s.InStorage == 0 && s.OnBorrow == 0 && s.InClearance == 0 && s.Seeded == 0
}

// StockTotals aggregates buckets across all rows of an item.
type StockTotals struct {
	Pending     int `db:"pending" json:"pending"`
	InStorage   int `db:"in_storage" json:"in_storage"`
	OnBorrow    int `db:"on_borrow" json:"on_borrow"`
	InClearance int `db:"in_clearance" json:"in_clearance"`
	Seeded      int `db:"seeded" json:"seeded"`
	Total       int `db:"total" json:"total"`
}

// Add accumulates a stock row into the totals.
func (t *StockTotals) Add(s ItemStock) {
	t.Pending += s.Pending
	t.InStorage += s.InStorage
	t.OnBorrow += s.OnBorrow
	t.InClearance += s.InClearance
	t.Seeded += s.Seeded
	t.Total += s.Total()
}

// StockMovement is an append-only record of one ledger mutation.
type StockMovement struct {
	ID            int64     `db:"id" json:"id"`
	ItemID        int64     `db:"item_id" json:"item_id"`
	StockID       *int64    `db:"stock_id" json:"stock_id,omitempty"`
	BoxID         int64     `db:"box_id" json:"box_id"`
	MovementType  string    `db:"movement_type" json:"movement_type"`
	Quantity      int       `db:"quantity" json:"quantity"`
	FromState     string    `db:"from_state" json:"from_state"`
	ToState       string    `db:"to_state" json:"to_state"`
	ReferenceType string    `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   *int64    `db:"reference_id" json:"reference_id,omitempty"`
	PerformedBy   *int64    `db:"performed_by" json:"performed_by,omitempty"`
	Notes         string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	// Joined fields (not always populated).
	ProductCode     string `db:"product_code" json:"product_code,omitempty"`
	BoxCode         string `db:"box_code" json:"box_code,omitempty"`
	PerformedByName string `db:"performed_by_name" json:"performed_by_name,omitempty"`
}

// Movement types.
const (
	MovementIntake     = "intake"
	MovementReceive    = "receive"
	MovementBorrow     = "borrow"
	MovementComplete   = "complete"
	MovementSeed       = "seed"
	MovementRevertSeed = "revert_seed"
	MovementAdjustment = "adjustment"
	MovementClearance  = "clearance"
	MovementTransfer   = "transfer"
)

// Movement states. Buckets map onto these via Bucket.State.
const (
	StateNone      = "none"
	StatePending   = "pending"
	StateStorage   = "storage"
	StateBorrowed  = "borrowed"
	StateClearance = "clearance"
	StateSeeded    = "seeded"
	StateCleared   = "cleared"
)

// Movement reference types.
const (
	RefBorrowRequest = "borrow_request"
	RefClearanceForm = "clearance_form"
	RefItem          = "item"
	RefItemClearance = "item_clearance"
)
