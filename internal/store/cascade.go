package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/blob"
)

// cascadeSteps deletes an item's dependents, children before parents.
var cascadeSteps = []struct {
	name  string
	query string
}{
	{"movements", `DELETE FROM stock_movements WHERE item_id = ?`},
	{"borrow allocations", `DELETE FROM borrow_allocations WHERE line_id IN (SELECT id FROM borrow_request_items WHERE item_id = ?)`},
	{"borrow request items", `DELETE FROM borrow_request_items WHERE item_id = ?`},
	{"clearance form items", `DELETE FROM clearance_form_items WHERE item_id = ?`},
	{"item clearances", `DELETE FROM item_clearances WHERE item_id = ?`},
	{"images", `DELETE FROM item_images WHERE item_id = ?`},
	{"events", `DELETE FROM item_events WHERE item_id = ?`},
	{"archive images", `DELETE FROM item_archive_images WHERE archive_id IN (SELECT id FROM item_archives WHERE item_id = ?)`},
	{"archives", `DELETE FROM item_archives WHERE item_id = ?`},
	{"stock", `DELETE FROM item_stock WHERE item_id = ?`},
	{"item", `DELETE FROM items WHERE id = ?`},
}

// deleteItemCascade removes an item and every row that references it. It
// returns the blob keys that belonged to the item so the caller can delete
// them after commit.
func deleteItemCascade(ctx context.Context, tx *sqlx.Tx, itemID int64) ([]string, error) {
	var keys []string
	if err := sel(ctx, tx, &keys, `SELECT blob_key FROM item_images WHERE item_id = ?`, itemID); err != nil {
		return nil, fmt.Errorf("collecting image keys: %w", err)
	}
	var archived []string
	err := sel(ctx, tx, &archived,
		`SELECT ai.archived_key FROM item_archive_images ai
		 JOIN item_archives a ON a.id = ai.archive_id
		 WHERE a.item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("collecting archived image keys: %w", err)
	}
	keys = append(keys, archived...)

	for _, step := range cascadeSteps {
		if _, err := exec(ctx, tx, step.query, itemID); err != nil {
			return nil, fmt.Errorf("deleting %s of item %d: %w", step.name, itemID, err)
		}
	}
	return keys, nil
}

// deleteBlobs removes objects whose rows are gone. Failures are logged only.
func deleteBlobs(ctx context.Context, blobs blob.Store, keys []string) {
	if blobs == nil {
		return
	}
	for _, key := range keys {
		if err := blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			slog.Warn("failed to delete blob", "key", key, "error", err)
		}
	}
}
