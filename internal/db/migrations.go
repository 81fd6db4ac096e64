package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: lookup indexes for the ledger and workflow listings.
	`CREATE INDEX IF NOT EXISTS idx_item_stock_box ON item_stock(box_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements(item_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_stock ON stock_movements(stock_id)`,
	`CREATE INDEX IF NOT EXISTS idx_borrow_requests_status ON borrow_requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_borrow_request_items_request ON borrow_request_items(request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_clearance_form_items_form ON clearance_form_items(form_id)`,
	`CREATE INDEX IF NOT EXISTS idx_item_events_item ON item_events(item_id)`,

	// Migration 2: drop expired token revocations left from older runs.
	`DELETE FROM revoked_tokens WHERE expires_at < CURRENT_TIMESTAMP`,
}

// Migrate ensures the schema and runs every migration.
func Migrate(db *sqlx.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
