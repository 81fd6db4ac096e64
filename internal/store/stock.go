package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
)

// StockFilter narrows ListStock.
type StockFilter struct {
	ItemID int64
	BoxID  int64
}

// ListStock returns the inventory overview, one row per (item, box).
func ListStock(ctx context.Context, db *sqlx.DB, f StockFilter) ([]model.ItemStock, error) {
	query := `SELECT ` + stockColumns + stockFrom + ` WHERE 1=1`
	var args []any
	if f.ItemID > 0 {
		query += ` AND s.item_id = ?`
		args = append(args, f.ItemID)
	}
	if f.BoxID > 0 {
		query += ` AND s.box_id = ?`
		args = append(args, f.BoxID)
	}
	query += ` ORDER BY i.product_code, b.code`

	var rows []model.ItemStock
	if err := sel(ctx, db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	return rows, nil
}

// ListItemStock returns the stock rows of one item.
func ListItemStock(ctx context.Context, db *sqlx.DB, itemID int64) ([]model.ItemStock, error) {
	return ListStock(ctx, db, StockFilter{ItemID: itemID})
}

// GetStock returns a stock row by ID.
func GetStock(ctx context.Context, db *sqlx.DB, id int64) (*model.ItemStock, error) {
	s := &model.ItemStock{}
	err := get(ctx, db, s, `SELECT `+stockColumns+stockFrom+` WHERE s.id = ?`, id)
	if isNoRows(err) {
		return nil, notFound("stock record %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting stock: %w", err)
	}
	return s, nil
}

// ItemTotals sums every bucket across all rows of an item.
func ItemTotals(ctx context.Context, db *sqlx.DB, itemID int64) (model.StockTotals, error) {
	var t model.StockTotals
	err := get(ctx, db, &t,
		`SELECT CAST(COALESCE(SUM(pending), 0) AS INTEGER) AS pending,
		        CAST(COALESCE(SUM(in_storage), 0) AS INTEGER) AS in_storage,
		        CAST(COALESCE(SUM(on_borrow), 0) AS INTEGER) AS on_borrow,
		        CAST(COALESCE(SUM(in_clearance), 0) AS INTEGER) AS in_clearance,
		        CAST(COALESCE(SUM(seeded), 0) AS INTEGER) AS seeded,
		        CAST(COALESCE(SUM(pending + in_storage + on_borrow + in_clearance + seeded), 0) AS INTEGER) AS total
		 FROM item_stock WHERE item_id = ?`, itemID)
	if err != nil {
		return t, fmt.Errorf("summing item stock: %w", err)
	}
	return t, nil
}

// AddStock takes new units of an item into a box. Units of an unapproved
// item wait in pending until the item is approved.
func AddStock(ctx context.Context, db *sqlx.DB, actor model.Actor, itemID, boxID int64, qty int, notes string) (*model.ItemStock, error) {
	if qty <= 0 {
		return nil, invalid("quantity must be positive")
	}

	var stockID int64
	err := withTx(ctx, db, "AddStock", func(ctx context.Context, tx *sqlx.Tx) error {
		s, err := intake(ctx, tx, actor.UserID, itemID, boxID, qty, notes)
		if err != nil {
			return err
		}
		stockID = s.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetStock(ctx, db, stockID)
}

func intake(ctx context.Context, tx *sqlx.Tx, actorID, itemID, boxID int64, qty int, notes string) (*model.ItemStock, error) {
	item, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	bucket := model.BucketPending
	switch item.Status {
	case model.ItemStatusApproved:
		bucket = model.BucketInStorage
	case model.ItemStatusPendingApproval:
	default:
		return nil, conflict("cannot add stock to %s item %s", item.Status, item.ProductCode)
	}

	if _, err := getBox(ctx, tx, boxID); err != nil {
		return nil, err
	}

	l := newLedger(tx, actorID, model.RefItem, itemID)
	s, err := l.findOrCreate(ctx, itemID, boxID)
	if err != nil {
		return nil, err
	}
	if err := l.adjustBucket(ctx, s, bucket, qty, model.StateNone, model.MovementIntake, notes); err != nil {
		return nil, err
	}
	return s, nil
}

// AdjustStock corrects one bucket of a stock row by delta. Units on borrow
// or in clearance belong to their request or form and cannot be adjusted.
func AdjustStock(ctx context.Context, db *sqlx.DB, actor model.Actor, stockID int64, bucket model.Bucket, delta int, notes string) (*model.ItemStock, error) {
	if !bucket.Valid() {
		return nil, invalid("invalid bucket %q", bucket)
	}
	if bucket == model.BucketOnBorrow || bucket == model.BucketInClearance {
		return nil, invalid("%s is managed by its workflow and cannot be adjusted manually", bucket)
	}
	if strings.TrimSpace(notes) == "" {
		return nil, invalid("notes required for manual adjustments")
	}

	var pruned bool
	err := withTx(ctx, db, "AdjustStock", func(ctx context.Context, tx *sqlx.Tx) error {
		l := newLedger(tx, actor.UserID, "", 0)
		s, err := l.lockStock(ctx, stockID)
		if err != nil {
			return err
		}
		if err := l.adjustBucket(ctx, s, bucket, delta, model.StateNone, model.MovementAdjustment, notes); err != nil {
			return err
		}
		pruned = s.Empty()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pruned {
		return nil, nil
	}
	return GetStock(ctx, db, stockID)
}

// UpdateStockCondition sets the condition of the units in a stock row.
func UpdateStockCondition(ctx context.Context, db *sqlx.DB, stockID int64, condition, notes string) (*model.ItemStock, error) {
	condition = strings.ToLower(strings.TrimSpace(condition))
	if !model.ValidCondition(condition) {
		return nil, invalid("invalid condition %q", condition)
	}
	res, err := exec(ctx, db,
		`UPDATE item_stock SET condition = ?, condition_notes = ?, updated_at = ? WHERE id = ?`,
		condition, notes, now(), stockID)
	if err != nil {
		return nil, fmt.Errorf("updating stock condition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("stock record %d not found", stockID)
	}
	return GetStock(ctx, db, stockID)
}

// RevertSeed returns seeded units to storage.
func RevertSeed(ctx context.Context, db *sqlx.DB, actor model.Actor, stockID int64, qty int, notes string) (*model.ItemStock, error) {
	err := withTx(ctx, db, "RevertSeed", func(ctx context.Context, tx *sqlx.Tx) error {
		l := newLedger(tx, actor.UserID, "", 0)
		s, err := l.lockStock(ctx, stockID)
		if err != nil {
			return err
		}
		if qty == 0 {
			qty = s.Seeded
		}
		return l.moveBetweenBuckets(ctx, s, model.BucketSeeded, model.BucketInStorage, qty, model.MovementRevertSeed, notes)
	})
	if err != nil {
		return nil, err
	}
	return GetStock(ctx, db, stockID)
}

// MoveInput identifies the source either by stock row or by (item, box).
type MoveInput struct {
	StockID   int64  `json:"stock_id"`
	ItemID    int64  `json:"item_id"`
	FromBoxID int64  `json:"from_box_id"`
	ToBoxID   int64  `json:"to_box_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Notes     string `json:"notes"`
}

// MoveStock moves in_storage units between boxes and returns the
// destination row. The source row is deleted if it ends up empty.
func MoveStock(ctx context.Context, db *sqlx.DB, actor model.Actor, in MoveInput) (*model.ItemStock, error) {
	var destID int64
	err := withTx(ctx, db, "MoveStock", func(ctx context.Context, tx *sqlx.Tx) error {
		var src *model.ItemStock
		var err error
		l := newLedger(tx, actor.UserID, "", 0)

		switch {
		case in.StockID > 0:
			src, err = l.lockStock(ctx, in.StockID)
		case in.ItemID > 0 && in.FromBoxID > 0:
			src = &model.ItemStock{}
			err = get(ctx, tx, src,
				`SELECT `+stockColumns+stockFrom+` WHERE s.item_id = ? AND s.box_id = ?`+forUpdate(tx, "s"),
				in.ItemID, in.FromBoxID)
			if isNoRows(err) {
				return notFound("item %d has no stock in box %d", in.ItemID, in.FromBoxID)
			}
		default:
			return invalid("stock_id or item_id with from_box_id required")
		}
		if err != nil {
			return err
		}

		l.refType, l.refID = model.RefItem, ptr(src.ItemID)
		dest, err := l.moveBetweenBoxes(ctx, src, in.ToBoxID, in.Quantity, in.Notes)
		if err != nil {
			return err
		}
		destID = dest.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetStock(ctx, db, destID)
}
