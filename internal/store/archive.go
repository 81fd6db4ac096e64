package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/model"
)

const archiveColumns = `id, item_id, reason, previous_status, description, condition,
	condition_notes, archived_by, archived_at`

// blobMove is an object rename to run once the database agrees.
type blobMove struct{ from, to string }

// moveBlobs performs renames after commit. Failures are logged only; the
// rows already point at the new keys.
func moveBlobs(ctx context.Context, blobs blob.Store, moves []blobMove) {
	if blobs == nil {
		return
	}
	for _, m := range moves {
		if err := blobs.Move(ctx, m.from, m.to); err != nil {
			slog.Warn("failed to move blob", "from", m.from, "to", m.to, "error", err)
		}
	}
}

// ArchiveItem takes an item out of circulation. Its attributes and images
// are snapshotted and the image files moved aside.
func ArchiveItem(ctx context.Context, db *sqlx.DB, blobs blob.Store, actor model.Actor, id int64, reason string) (*model.Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("archive reason required")
	}
	var moves []blobMove
	err := withTx(ctx, db, "ArchiveItem", func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		moves, err = archiveItem(ctx, tx, actor, id, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	moveBlobs(ctx, blobs, moves)
	return GetItem(ctx, db, id)
}

func archiveItem(ctx context.Context, tx *sqlx.Tx, actor model.Actor, id int64, reason string) ([]blobMove, error) {
	item, err := lockItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == model.ItemStatusArchived {
		return nil, conflict("item %s is already archived", item.ProductCode)
	}

	archiveID, err := insert(ctx, tx,
		`INSERT INTO item_archives (item_id, reason, previous_status, description, condition,
		                            condition_notes, archived_by, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, reason, item.Status, item.Description, item.Condition, item.ConditionNotes,
		nullID(actor.UserID), now())
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	images, err := listItemImages(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	moves := make([]blobMove, 0, len(images))
	for _, img := range images {
		archived := blob.ArchivedKey(img.BlobKey)
		_, err := insert(ctx, tx,
			`INSERT INTO item_archive_images (archive_id, original_key, archived_key, content_type, position)
			 VALUES (?, ?, ?, ?, ?)`,
			archiveID, img.BlobKey, archived, img.ContentType, img.Position)
		if err != nil {
			return nil, fmt.Errorf("archiving image: %w", err)
		}
		moves = append(moves, blobMove{img.BlobKey, archived})
	}
	if _, err := exec(ctx, tx, `DELETE FROM item_images WHERE item_id = ?`, id); err != nil {
		return nil, fmt.Errorf("removing images: %w", err)
	}

	_, err = exec(ctx, tx, `UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
		model.ItemStatusArchived, now(), id)
	if err != nil {
		return nil, fmt.Errorf("archiving item: %w", err)
	}
	if err := recordItemEvent(ctx, tx, id, model.ItemEventArchived, actor.UserID, reason); err != nil {
		return nil, err
	}
	return moves, nil
}

// UnarchiveItem restores an archived item to the status it had before and
// brings its images back.
func UnarchiveItem(ctx context.Context, db *sqlx.DB, blobs blob.Store, actor model.Actor, id int64, reason string) (*model.Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("unarchive reason required")
	}
	var moves []blobMove
	err := withTx(ctx, db, "UnarchiveItem", func(ctx context.Context, tx *sqlx.Tx) error {
		item, err := lockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status != model.ItemStatusArchived {
			return conflict("item %s is not archived", item.ProductCode)
		}
		a, err := getItemArchive(ctx, tx, id)
		if err != nil {
			return err
		}

		for _, img := range a.Images {
			_, err := insert(ctx, tx,
				`INSERT INTO item_images (item_id, blob_key, content_type, position, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				id, img.OriginalKey, img.ContentType, img.Position, now())
			if err != nil {
				return fmt.Errorf("restoring image: %w", err)
			}
			moves = append(moves, blobMove{img.ArchivedKey, img.OriginalKey})
		}
		if _, err := exec(ctx, tx, `DELETE FROM item_archive_images WHERE archive_id = ?`, a.ID); err != nil {
			return fmt.Errorf("deleting archive images: %w", err)
		}
		if _, err := exec(ctx, tx, `DELETE FROM item_archives WHERE id = ?`, a.ID); err != nil {
			return fmt.Errorf("deleting archive: %w", err)
		}

		_, err = exec(ctx, tx, `UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
			a.PreviousStatus, now(), id)
		if err != nil {
			return fmt.Errorf("unarchiving item: %w", err)
		}
		return recordItemEvent(ctx, tx, id, model.ItemEventUnarchived, actor.UserID, reason)
	})
	if err != nil {
		return nil, err
	}
	moveBlobs(ctx, blobs, moves)
	return GetItem(ctx, db, id)
}

// GetItemArchive returns the snapshot of an archived item.
func GetItemArchive(ctx context.Context, db *sqlx.DB, itemID int64) (*model.ItemArchive, error) {
	return getItemArchive(ctx, db, itemID)
}

func getItemArchive(ctx context.Context, q sqlx.ExtContext, itemID int64) (*model.ItemArchive, error) {
	a := &model.ItemArchive{}
	err := get(ctx, q, a,
		`SELECT `+archiveColumns+` FROM item_archives WHERE item_id = ? ORDER BY id DESC LIMIT 1`, itemID)
	if isNoRows(err) {
		return nil, notFound("item %d has no archive", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting archive: %w", err)
	}
	a.Images = []model.ArchivedImage{}
	err = sel(ctx, q, &a.Images,
		`SELECT id, archive_id, original_key, archived_key, content_type, position
		 FROM item_archive_images WHERE archive_id = ? ORDER BY position, id`, a.ID)
	if err != nil {
		return nil, fmt.Errorf("getting archive images: %w", err)
	}
	return a, nil
}

// BulkArchiveItems archives each item in its own transaction.
func BulkArchiveItems(ctx context.Context, db *sqlx.DB, blobs blob.Store, actor model.Actor, ids []int64, reason string) []BulkResult {
	reason = strings.TrimSpace(reason)
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		if reason == "" {
			results = append(results, bulkResult(id, invalid("archive reason required")))
			continue
		}
		var moves []blobMove
		err := withTx(ctx, db, "BulkArchiveItem", func(ctx context.Context, tx *sqlx.Tx) error {
			var err error
			moves, err = archiveItem(ctx, tx, actor, id, reason)
			return err
		})
		if err == nil {
			moveBlobs(ctx, blobs, moves)
		}
		results = append(results, bulkResult(id, err))
	}
	return results
}
