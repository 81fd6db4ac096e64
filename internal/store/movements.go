package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
)

// MovementFilter narrows ListMovements. Zero values match everything.
type MovementFilter struct {
	ItemID        int64
	StockID       int64
	BoxID         int64
	MovementType  string
	ReferenceType string
	ReferenceID   int64
	Limit         int
}

// ListMovements returns movements newest first.
func ListMovements(ctx context.Context, db *sqlx.DB, f MovementFilter) ([]model.StockMovement, error) {
	query := `SELECT m.id, m.item_id, m.stock_id, m.box_id, m.movement_type, m.quantity,
	                 m.from_state, m.to_state, m.reference_type, m.reference_id,
	                 m.performed_by, m.notes, m.created_at,
	                 i.product_code, b.code AS box_code,
	                 COALESCE(u.username, '') AS performed_by_name
	          FROM stock_movements m
	          JOIN items i ON i.id = m.item_id
	          JOIN boxes b ON b.id = m.box_id
	          LEFT JOIN users u ON u.id = m.performed_by
	          WHERE 1=1`
	var args []any

	if f.ItemID > 0 {
		query += ` AND m.item_id = ?`
		args = append(args, f.ItemID)
	}
	if f.StockID > 0 {
		query += ` AND m.stock_id = ?`
		args = append(args, f.StockID)
	}
	if f.BoxID > 0 {
		query += ` AND m.box_id = ?`
		args = append(args, f.BoxID)
	}
	if f.MovementType != "" {
		query += ` AND m.movement_type = ?`
		args = append(args, f.MovementType)
	}
	if f.ReferenceType != "" {
		query += ` AND m.reference_type = ?`
		args = append(args, f.ReferenceType)
	}
	if f.ReferenceID > 0 {
		query += ` AND m.reference_id = ?`
		args = append(args, f.ReferenceID)
	}

	query += ` ORDER BY m.id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	var movements []model.StockMovement
	if err := sel(ctx, db, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	return movements, nil
}
