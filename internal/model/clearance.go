package model

import "time"

// ClearanceForm is a batch document moving stock into clearance.
type ClearanceForm struct {
	ID                int64      `db:"id" json:"id"`
	FormNumber        string     `db:"form_number" json:"form_number"`
	Notes             string     `db:"notes" json:"notes,omitempty"`
	Status            string     `db:"status" json:"status"`
	CreatedBy         *int64     `db:"created_by" json:"created_by,omitempty"`
	ApprovedBy        *int64     `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedBy        *int64     `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectionReason   string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PDFGenerated      bool       `db:"pdf_generated" json:"pdf_generated"`
	PDFGeneratedAt    *time.Time `db:"pdf_generated_at" json:"pdf_generated_at,omitempty"`
	ScannedFileKey    string     `db:"scanned_file_key" json:"-"`
	ScannedUploadedAt *time.Time `db:"scanned_uploaded_at" json:"scanned_uploaded_at,omitempty"`
	ProcessedBy       *int64     `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt       *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	Items      []ClearanceFormItem `db:"-" json:"items"`
	HasScanned bool                `db:"-" json:"has_scanned_file"`
}

// Clearance form statuses.
const (
	ClearanceDraft           = "draft"
	ClearancePendingApproval = "pending_approval"
	ClearanceApproved        = "approved"
	ClearanceProcessed       = "processed"
	ClearanceRejected        = "rejected"
)

// ClearanceFormItem is one stock line of a clearance form.
type ClearanceFormItem struct {
	ID       int64  `db:"id" json:"id"`
	FormID   int64  `db:"form_id" json:"form_id"`
	StockID  *int64 `db:"stock_id" json:"stock_id,omitempty"`
	ItemID   int64  `db:"item_id" json:"item_id"`
	BoxID    int64  `db:"box_id" json:"box_id"`
	Quantity int    `db:"quantity" json:"quantity"`
	Reason   string `db:"reason" json:"reason,omitempty"`

	// Joined fields (not always populated).
	ProductCode string `db:"product_code" json:"product_code,omitempty"`
	Description string `db:"description" json:"description,omitempty"`
	BoxCode     string `db:"box_code" json:"box_code,omitempty"`
}

// ClearedItem is a permanent snapshot of a processed clearance line. It does
// not reference live item or stock rows.
type ClearedItem struct {
	ID          int64     `db:"id" json:"id"`
	FormID      int64     `db:"form_id" json:"form_id"`
	FormNumber  string    `db:"form_number" json:"form_number"`
	ItemID      int64     `db:"item_id" json:"item_id"`
	ProductCode string    `db:"product_code" json:"product_code"`
	Description string    `db:"description" json:"description,omitempty"`
	BoxCode     string    `db:"box_code" json:"box_code,omitempty"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Condition   string    `db:"condition" json:"condition,omitempty"`
	Reason      string    `db:"reason" json:"reason,omitempty"`
	ClearedBy   *int64    `db:"cleared_by" json:"cleared_by,omitempty"`
	ClearedAt   time.Time `db:"cleared_at" json:"cleared_at"`
}

// ItemClearance records a bulk clearance taken outside the form workflow.
type ItemClearance struct {
	ID          int64     `db:"id" json:"id"`
	ItemID      int64     `db:"item_id" json:"item_id"`
	StockID     *int64    `db:"stock_id" json:"stock_id,omitempty"`
	Quantity    int       `db:"quantity" json:"quantity"`
	FromPending int       `db:"from_pending" json:"from_pending"`
	FromStorage int       `db:"from_storage" json:"from_storage"`
	Reason      string    `db:"reason" json:"reason,omitempty"`
	CreatedBy   *int64    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
