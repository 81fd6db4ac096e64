package model

import "time"

// BorrowRequest is a user's request to borrow items for a period.
type BorrowRequest struct {
	ID                int64      `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	Purpose           string     `db:"purpose" json:"purpose"`
	Status            string     `db:"status" json:"status"`
	StartDate         *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate           *time.Time `db:"end_date" json:"end_date,omitempty"`
	DueDate           *time.Time `db:"due_date" json:"due_date,omitempty"`
	RequestedEndDate  *time.Time `db:"requested_end_date" json:"requested_end_date,omitempty"`
	ManagerApprovedBy *int64     `db:"manager_approved_by" json:"manager_approved_by,omitempty"`
	ManagerApprovedAt *time.Time `db:"manager_approved_at" json:"manager_approved_at,omitempty"`
	StorageApprovedBy *int64     `db:"storage_approved_by" json:"storage_approved_by,omitempty"`
	StorageApprovedAt *time.Time `db:"storage_approved_at" json:"storage_approved_at,omitempty"`
	RejectedBy        *int64     `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectionReason   string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	// Joined fields (not always populated).
	Username   string `db:"username" json:"username,omitempty"`
	Department string `db:"department" json:"department,omitempty"`

	Items   []BorrowRequestItem `db:"-" json:"items"`
	Overdue bool                `db:"-" json:"overdue"`
}

// Borrow request statuses.
const (
	BorrowPendingManager   = "pending_manager"
	BorrowPendingStorage   = "pending_storage"
	BorrowActive           = "active"
	BorrowPendingExtension = "pending_extension"
	BorrowComplete         = "complete"
	BorrowSeeded           = "seeded"
	BorrowRejected         = "rejected"
	BorrowCancelled        = "cancelled"
)

// IsOverdue reports whether the request is out on loan past its due date.
func (b *BorrowRequest) IsOverdue(now time.Time) bool {
	if b.Status != BorrowActive && b.Status != BorrowPendingExtension {
		return false
	}
	return b.DueDate != nil && b.DueDate.Before(now)
}

// BorrowRequestItem is one line of a borrow request.
type BorrowRequestItem struct {
	ID              int64      `db:"id" json:"id"`
	RequestID       int64      `db:"request_id" json:"request_id"`
	ItemID          int64      `db:"item_id" json:"item_id"`
	Quantity        int        `db:"quantity" json:"quantity"`
	Status          string     `db:"status" json:"status"`
	ReturnCondition string     `db:"return_condition" json:"return_condition,omitempty"`
	SeedReason      string     `db:"seed_reason" json:"seed_reason,omitempty"`
	ProcessedBy     *int64     `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`

	// Joined fields (not always populated).
	ProductCode string `db:"product_code" json:"product_code,omitempty"`
	Description string `db:"description" json:"description,omitempty"`
}

// Borrow line statuses.
const (
	LinePending  = "pending"
	LineBorrowed = "borrowed"
	LineComplete = "complete"
	LineSeeded   = "seeded"
)

// Terminal reports whether the line has been returned or seeded.
func (l *BorrowRequestItem) Terminal() bool {
	return l.Status == LineComplete || l.Status == LineSeeded
}

// BorrowAllocation records how much of a line was taken from a stock row.
type BorrowAllocation struct {
	ID       int64  `db:"id" json:"id"`
	LineID   int64  `db:"line_id" json:"line_id"`
	StockID  *int64 `db:"stock_id" json:"stock_id,omitempty"`
	BoxID    int64  `db:"box_id" json:"box_id"`
	Quantity int    `db:"quantity" json:"quantity"`
}
