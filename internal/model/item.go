package model

import (
	"fmt"
	"strings"
	"time"
)

// Item is a catalog entry identified by its product code.
type Item struct {
	ID              int64      `db:"id" json:"id"`
	ProductCode     string     `db:"product_code" json:"product_code"`
	BrandCode       string     `db:"brand_code" json:"brand_code"`
	ProductDivision string     `db:"product_division" json:"product_division"`
	ProductCategory string     `db:"product_category" json:"product_category"`
	Description     string     `db:"description" json:"description,omitempty"`
	Period          string     `db:"period" json:"period,omitempty"`
	Season          string     `db:"season" json:"season,omitempty"`
	Unit            string     `db:"unit" json:"unit,omitempty"`
	Condition       string     `db:"condition" json:"condition,omitempty"`
	ConditionNotes  string     `db:"condition_notes" json:"condition_notes,omitempty"`
	Status          string     `db:"status" json:"status"`
	RejectionReason string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedBy       *int64     `db:"created_by" json:"created_by,omitempty"`
	ApprovedBy      *int64     `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Item statuses.
const (
	ItemStatusPendingApproval = "pending_approval"
	ItemStatusApproved        = "approved"
	ItemStatusRejected        = "rejected"
	ItemStatusArchived        = "archived"
)

// Item conditions, shared by stock rows and borrow returns.
const (
	ConditionExcellent = "excellent"
	ConditionGood      = "good"
	ConditionFair      = "fair"
	ConditionPoor      = "poor"
)

// ValidCondition reports whether c is a known condition.
func ValidCondition(c string) bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// ItemImage is a stored image of an item.
type ItemImage struct {
	ID          int64     `db:"id" json:"id"`
	ItemID      int64     `db:"item_id" json:"item_id"`
	BlobKey     string    `db:"blob_key" json:"-"`
	ContentType string    `db:"content_type" json:"content_type"`
	Position    int       `db:"position" json:"position"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ItemEvent is an entry in an item's approval and lifecycle log.
type ItemEvent struct {
	ID        int64     `db:"id" json:"id"`
	ItemID    int64     `db:"item_id" json:"item_id"`
	Action    string    `db:"action" json:"action"`
	ActorID   *int64    `db:"actor_id" json:"actor_id,omitempty"`
	Reason    string    `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	ActorName string `db:"actor_name" json:"actor_name,omitempty"`
}

// Item event actions.
const (
	ItemEventCreated    = "created"
	ItemEventApproved   = "approved"
	ItemEventRejected   = "rejected"
	ItemEventArchived   = "archived"
	ItemEventUnarchived = "unarchived"
)

// ProductCode holds the parts encoded in a product code.
//
// Layout: BBB D CC serial..., where BBB is the brand, D the division and CC
// the category.
type ProductCode struct {
	Code     string
	Brand    string
	Division string
	Category string
}

// ParseProductCode normalizes and splits a product code.
func ParseProductCode(code string) (ProductCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 6 {
		return ProductCode{}, fmt.Errorf("product code %q is too short", code)
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return ProductCode{}, fmt.Errorf("product code %q contains invalid character %q", code, c)
		}
	}
	return ProductCode{
		Code:     code,
		Brand:    code[0:3],
		Division: code[3:4],
		Category: code[4:6],
	}, nil
}

var divisionNames = map[string]string{
	"1": "Apparel",
	"2": "Footwear",
	"3": "Accessories",
	"4": "Equipment",
	"5": "Display",
}

var categoryNames = map[string]string{
	"TS": "T-Shirts",
	"SH": "Shirts",
	"PA": "Pants",
	"JK": "Jackets",
	"SN": "Sneakers",
	"BT": "Boots",
	"BG": "Bags",
	"CP": "Caps",
	"MN": "Mannequins",
	"RK": "Racks",
}

// DivisionName returns the display name of a division code, or the code itself.
func DivisionName(code string) string {
	if name, ok := divisionNames[code]; ok {
		return name
	}
	return code
}

// CategoryName returns the display name of a category code, or the code itself.
func CategoryName(code string) string {
	if name, ok := categoryNames[code]; ok {
		return name
	}
	return code
}
