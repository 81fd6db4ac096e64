package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/model"
)

const imageColumns = `id, item_id, blob_key, content_type, position, created_at`

// AddItemImage stores an already processed image and appends it to the
// item's gallery.
func AddItemImage(ctx context.Context, db *sqlx.DB, blobs blob.Store, itemID int64, data []byte, contentType string) (*model.ItemImage, error) {
	item, err := GetItem(ctx, db, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status == model.ItemStatusArchived {
		return nil, conflict("archived items cannot receive images")
	}

	key := blob.NewKey(fmt.Sprintf("items/%d", itemID), ".jpg")
	if err := blobs.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	var id int64
	err = withTx(ctx, db, "AddItemImage", func(ctx context.Context, tx *sqlx.Tx) error {
		var pos int
		if err := get(ctx, tx, &pos, `SELECT COALESCE(MAX(position), -1) + 1 FROM item_images WHERE item_id = ?`, itemID); err != nil {
			return fmt.Errorf("finding image position: %w", err)
		}
		id, err = insert(ctx, tx,
			`INSERT INTO item_images (item_id, blob_key, content_type, position, created_at) VALUES (?, ?, ?, ?, ?)`,
			itemID, key, contentType, pos, now())
		if err != nil {
			return fmt.Errorf("saving image: %w", err)
		}
		return nil
	})
	if err != nil {
		if derr := blobs.Delete(ctx, key); derr != nil {
			slog.Warn("failed to remove orphaned image", "key", key, "error", derr)
		}
		return nil, err
	}

	img := &model.ItemImage{}
	if err := get(ctx, db, img, `SELECT `+imageColumns+` FROM item_images WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}
	return img, nil
}

// ListItemImages returns an item's images in gallery order.
func ListItemImages(ctx context.Context, db *sqlx.DB, itemID int64) ([]model.ItemImage, error) {
	return listItemImages(ctx, db, itemID)
}

func listItemImages(ctx context.Context, q sqlx.ExtContext, itemID int64) ([]model.ItemImage, error) {
	var images []model.ItemImage
	err := sel(ctx, q, &images,
		`SELECT `+imageColumns+` FROM item_images WHERE item_id = ? ORDER BY position, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing item images: %w", err)
	}
	return images, nil
}

// OpenItemImage returns the image content. The caller closes the reader.
func OpenItemImage(ctx context.Context, db *sqlx.DB, blobs blob.Store, itemID, imageID int64) (io.ReadCloser, string, error) {
	img := &model.ItemImage{}
	err := get(ctx, db, img, `SELECT `+imageColumns+` FROM item_images WHERE id = ? AND item_id = ?`, imageID, itemID)
	if isNoRows(err) {
		return nil, "", notFound("image %d not found", imageID)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}

	rc, ct, err := blobs.Get(ctx, img.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, "", notFound("image %d content missing", imageID)
		}
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	if ct == "" {
		ct = img.ContentType
	}
	return rc, ct, nil
}

// DeleteItemImage removes an image row and its content.
func DeleteItemImage(ctx context.Context, db *sqlx.DB, blobs blob.Store, itemID, imageID int64) error {
	var key string
	err := withTx(ctx, db, "DeleteItemImage", func(ctx context.Context, tx *sqlx.Tx) error {
		err := get(ctx, tx, &key, `SELECT blob_key FROM item_images WHERE id = ? AND item_id = ?`, imageID, itemID)
		if isNoRows(err) {
			return notFound("image %d not found", imageID)
		}
		if err != nil {
			return fmt.Errorf("getting image: %w", err)
		}
		if _, err := exec(ctx, tx, `DELETE FROM item_images WHERE id = ?`, imageID); err != nil {
			return fmt.Errorf("deleting image: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	deleteBlobs(ctx, blobs, []string{key})
	return nil
}
