package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
)

const boxColumns = `id, code, description, location, created_at, deleted_at`

// CreateBox registers a physical box-location.
func CreateBox(ctx context.Context, db *sqlx.DB, code, description, location string) (*model.Box, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, invalid("box code required")
	}
	id, err := insert(ctx, db,
		`INSERT INTO boxes (code, description, location, created_at) VALUES (?, ?, ?, ?)`,
		code, description, location, now(),
	)
	if isUniqueViolation(err) {
		return nil, invalid("box %q already exists", code)
	}
	if err != nil {
		return nil, fmt.Errorf("creating box: %w", err)
	}

	return GetBox(ctx, db, id)
}

// GetBox returns a live box by ID.
func GetBox(ctx context.Context, db *sqlx.DB, id int64) (*model.Box, error) {
	return getBox(ctx, db, id)
}

func getBox(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Box, error) {
	b := &model.Box{}
	err := get(ctx, q, b, `SELECT `+boxColumns+` FROM boxes WHERE id = ? AND deleted_at IS NULL`, id)
	if isNoRows(err) {
		return nil, notFound("box %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting box: %w", err)
	}
	return b, nil
}

func getBoxByCode(ctx context.Context, q sqlx.ExtContext, code string) (*model.Box, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	b := &model.Box{}
	err := get(ctx, q, b, `SELECT `+boxColumns+` FROM boxes WHERE code = ? AND deleted_at IS NULL`, code)
	if isNoRows(err) {
		return nil, notFound("box %q not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("getting box by code: %w", err)
	}
	return b, nil
}

// ListBoxes returns all non-deleted boxes, optionally filtered by location.
func ListBoxes(ctx context.Context, db *sqlx.DB, location string) ([]model.Box, error) {
	query := `SELECT ` + boxColumns + ` FROM boxes WHERE deleted_at IS NULL`
	var args []any
	if location != "" {
		query += ` AND location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY code`

	var boxes []model.Box
	if err := sel(ctx, db, &boxes, query, args...); err != nil {
		return nil, fmt.Errorf("listing boxes: %w", err)
	}
	return boxes, nil
}

// UpdateBox updates a box's description and location.
func UpdateBox(ctx context.Context, db *sqlx.DB, id int64, description, location string) error {
	res, err := exec(ctx, db,
		`UPDATE boxes SET description = ?, location = ? WHERE id = ? AND deleted_at IS NULL`,
		description, location, id,
	)
	if err != nil {
		return fmt.Errorf("updating box: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("box %d not found", id)
	}
	return nil
}

// DeleteBox soft-deletes a box. Fails if the box holds any stock.
func DeleteBox(ctx context.Context, db *sqlx.DB, id int64) error {
	return withTx(ctx, db, "DeleteBox", func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := getBox(ctx, tx, id); err != nil {
			return err
		}

		var count int
		if err := get(ctx, tx, &count, `SELECT COUNT(*) FROM item_stock WHERE box_id = ?`, id); err != nil {
			return fmt.Errorf("checking box stock: %w", err)
		}
		if count > 0 {
			return conflict("cannot delete box: still holds %d stock records", count)
		}

		if _, err := exec(ctx, tx, `UPDATE boxes SET deleted_at = ? WHERE id = ?`, now(), id); err != nil {
			return fmt.Errorf("deleting box: %w", err)
		}
		return nil
	})
}

// GetBoxStock returns all stock rows held in a box.
func GetBoxStock(ctx context.Context, db *sqlx.DB, boxID int64) ([]model.ItemStock, error) {
	var rows []model.ItemStock
	err := sel(ctx, db, &rows,
		`SELECT `+stockColumns+stockFrom+` WHERE s.box_id = ? ORDER BY i.product_code`, boxID)
	if err != nil {
		return nil, fmt.Errorf("getting box stock: %w", err)
	}
	return rows, nil
}
