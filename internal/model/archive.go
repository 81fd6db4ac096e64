package model

import "time"

// ItemArchive is the snapshot taken when an item is archived.
type ItemArchive struct {
	ID             int64     `db:"id" json:"id"`
	ItemID         int64     `db:"item_id" json:"item_id"`
	Reason         string    `db:"reason" json:"reason"`
	PreviousStatus string    `db:"previous_status" json:"previous_status"`
	Description    string    `db:"description" json:"description,omitempty"`
	Condition      string    `db:"condition" json:"condition,omitempty"`
	ConditionNotes string    `db:"condition_notes" json:"condition_notes,omitempty"`
	ArchivedBy     *int64    `db:"archived_by" json:"archived_by,omitempty"`
	ArchivedAt     time.Time `db:"archived_at" json:"archived_at"`

	Images []ArchivedImage `db:"-" json:"images"`
}

// ArchivedImage is an image moved aside while its item is archived.
type ArchivedImage struct {
	ID          int64  `db:"id" json:"id"`
	ArchiveID   int64  `db:"archive_id" json:"archive_id"`
	OriginalKey string `db:"original_key" json:"-"`
	ArchivedKey string `db:"archived_key" json:"-"`
	ContentType string `db:"content_type" json:"content_type"`
	Position    int    `db:"position" json:"position"`
}
