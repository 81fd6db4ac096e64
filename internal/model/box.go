package model

import "time"

// Box is a physical box-location that holds item stock.
type Box struct {
	ID          int64      `db:"id" json:"id"`
	Code        string     `db:"code" json:"code"`
	Description string     `db:"description" json:"description,omitempty"`
	Location    string     `db:"location" json:"location,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
