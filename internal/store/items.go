package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/model"
)

const itemColumns = `id, product_code, brand_code, product_division, product_category,
	description, period, season, unit, condition, condition_notes, status,
	rejection_reason, created_by, approved_by, approved_at, created_at, updated_at`

// ItemInput holds the editable attributes of an item.
type ItemInput struct {
	ProductCode    string `json:"product_code"`
	Description    string `json:"description"`
	Period         string `json:"period"`
	Season         string `json:"season"`
	Unit           string `json:"unit"`
	Condition      string `json:"condition"`
	ConditionNotes string `json:"condition_notes"`
}

func (in *ItemInput) validateCondition() error {
	in.Condition = strings.ToLower(strings.TrimSpace(in.Condition))
	if in.Condition != "" && !model.ValidCondition(in.Condition) {
		return invalid("invalid condition %q", in.Condition)
	}
	return nil
}

// ItemDetail is an item with its ledger rows and images.
type ItemDetail struct {
	Item   *model.Item       `json:"item"`
	Stock  []model.ItemStock `json:"stock"`
	Totals model.StockTotals `json:"totals"`
	Images []model.ItemImage `json:"images"`
}

// CreateItem creates a new item awaiting approval.
func CreateItem(ctx context.Context, db *sqlx.DB, actor model.Actor, in ItemInput) (*model.Item, error) {
	var id int64
	err := withTx(ctx, db, "CreateItem", func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = createItem(ctx, tx, actor.UserID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetItem(ctx, db, id)
}

func createItem(ctx context.Context, tx *sqlx.Tx, actorID int64, in ItemInput) (int64, error) {
	pc, err := model.ParseProductCode(in.ProductCode)
	if err != nil {
		return 0, invalid("%s", err.Error())
	}
	if err := in.validateCondition(); err != nil {
		return 0, err
	}

	id, err := insert(ctx, tx,
		`INSERT INTO items (product_code, brand_code, product_division, product_category,
		                    description, period, season, unit, condition, condition_notes,
		                    status, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pc.Code, pc.Brand, pc.Division, pc.Category,
		in.Description, in.Period, in.Season, in.Unit, in.Condition, in.ConditionNotes,
		model.ItemStatusPendingApproval, nullID(actorID), now(), now(),
	)
	if isUniqueViolation(err) {
		return 0, invalid("product code %s already exists", pc.Code)
	}
	if err != nil {
		return 0, fmt.Errorf("creating item: %w", err)
	}

	if err := recordItemEvent(ctx, tx, id, model.ItemEventCreated, actorID, ""); err != nil {
		return 0, err
	}
	return id, nil
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sqlx.DB, id int64) (*model.Item, error) {
	return getItem(ctx, db, id)
}

func getItem(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := get(ctx, q, item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, notFound("item %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// lockItem loads an item for update.
func lockItem(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := get(ctx, tx, item, `SELECT `+itemColumns+` FROM items i WHERE id = ?`+forUpdate(tx, "i"), id)
	if isNoRows(err) {
		return nil, notFound("item %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("locking item: %w", err)
	}
	return item, nil
}

// GetItemDetail returns an item with its stock rows, totals and images.
func GetItemDetail(ctx context.Context, db *sqlx.DB, id int64) (*ItemDetail, error) {
	item, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, err
	}
	stock, err := ListItemStock(ctx, db, id)
	if err != nil {
		return nil, err
	}
	images, err := ListItemImages(ctx, db, id)
	if err != nil {
		return nil, err
	}

	d := &ItemDetail{Item: item, Stock: stock, Images: images}
	for _, s := range stock {
		d.Totals.Add(s)
	}
	if d.Stock == nil {
		d.Stock = []model.ItemStock{}
	}
	if d.Images == nil {
		d.Images = []model.ItemImage{}
	}
	return d, nil
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Status   string
	Brand    string
	Division string
	Category string
	Search   string
}

// ListItems returns items matching f, ordered by product code.
func ListItems(ctx context.Context, db *sqlx.DB, f ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Brand != "" {
		query += ` AND brand_code = ?`
		args = append(args, strings.ToUpper(f.Brand))
	}
	if f.Division != "" {
		query += ` AND product_division = ?`
		args = append(args, f.Division)
	}
	if f.Category != "" {
		query += ` AND product_category = ?`
		args = append(args, strings.ToUpper(f.Category))
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query += ` AND (LOWER(product_code) LIKE ? OR LOWER(description) LIKE ?)`
		args = append(args, like, like)
	}
	query += ` ORDER BY product_code`

	var items []model.Item
	if err := sel(ctx, db, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// UpdateItem updates an item's descriptive attributes. The product code is
// immutable.
func UpdateItem(ctx context.Context, db *sqlx.DB, id int64, in ItemInput) (*model.Item, error) {
	if err := in.validateCondition(); err != nil {
		return nil, err
	}
	err := withTx(ctx, db, "UpdateItem", func(ctx context.Context, tx *sqlx.Tx) error {
		item, err := lockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status == model.ItemStatusArchived {
			return conflict("archived items cannot be edited")
		}
		if in.ProductCode != "" && !strings.EqualFold(strings.TrimSpace(in.ProductCode), item.ProductCode) {
			return invalid("product code cannot be changed")
		}

		_, err = exec(ctx, tx,
			`UPDATE items SET description = ?, period = ?, season = ?, unit = ?,
			                  condition = ?, condition_notes = ?, updated_at = ?
			 WHERE id = ?`,
			in.Description, in.Period, in.Season, in.Unit, in.Condition, in.ConditionNotes, now(), id,
		)
		if err != nil {
			return fmt.Errorf("updating item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetItem(ctx, db, id)
}

// DeleteItem hard-deletes an item and its dependents. The item must hold no
// stock.
func DeleteItem(ctx context.Context, db *sqlx.DB, blobs blob.Store, id int64) error {
	var keys []string
	err := withTx(ctx, db, "DeleteItem", func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := lockItem(ctx, tx, id); err != nil {
			return err
		}
		var count int
		if err := get(ctx, tx, &count, `SELECT COUNT(*) FROM item_stock WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("checking item stock: %w", err)
		}
		if count > 0 {
			return conflict("cannot delete item: still has %d stock records", count)
		}

		var err error
		keys, err = deleteItemCascade(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}
	deleteBlobs(ctx, blobs, keys)
	return nil
}

// ApproveItem approves a pending item and receives its pending stock into
// storage.
func ApproveItem(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64) (*model.Item, error) {
	err := withTx(ctx, db, "ApproveItem", func(ctx context.Context, tx *sqlx.Tx) error {
		return approveItem(ctx, tx, actor, id)
	})
	if err != nil {
		return nil, err
	}
	return GetItem(ctx, db, id)
}

func approveItem(ctx context.Context, tx *sqlx.Tx, actor model.Actor, id int64) error {
	item, err := lockItem(ctx, tx, id)
	if err != nil {
		return err
	}
	if item.Status != model.ItemStatusPendingApproval {
		return conflict("item %s is %s, not pending approval", item.ProductCode, item.Status)
	}

	_, err = exec(ctx, tx,
		`UPDATE items SET status = ?, approved_by = ?, approved_at = ?, rejection_reason = '', updated_at = ?
		 WHERE id = ?`,
		model.ItemStatusApproved, actor.UserID, now(), now(), id,
	)
	if err != nil {
		return fmt.Errorf("approving item: %w", err)
	}

	l := newLedger(tx, actor.UserID, model.RefItem, id)
	rows, err := l.lockItemStock(ctx, id)
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].Pending == 0 {
			continue
		}
		if err := l.moveBetweenBuckets(ctx, &rows[i], model.BucketPending, model.BucketInStorage,
			rows[i].Pending, model.MovementReceive, "received on approval"); err != nil {
			return err
		}
	}

	return recordItemEvent(ctx, tx, id, model.ItemEventApproved, actor.UserID, "")
}

// RejectItem rejects a pending item. Its pending stock stays where it is.
func RejectItem(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, reason string) (*model.Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("rejection reason required")
	}
	err := withTx(ctx, db, "RejectItem", func(ctx context.Context, tx *sqlx.Tx) error {
		item, err := lockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status != model.ItemStatusPendingApproval {
			return conflict("item %s is %s, not pending approval", item.ProductCode, item.Status)
		}
		_, err = exec(ctx, tx,
			`UPDATE items SET status = ?, rejection_reason = ?, updated_at = ? WHERE id = ?`,
			model.ItemStatusRejected, reason, now(), id,
		)
		if err != nil {
			return fmt.Errorf("rejecting item: %w", err)
		}
		return recordItemEvent(ctx, tx, id, model.ItemEventRejected, actor.UserID, reason)
	})
	if err != nil {
		return nil, err
	}
	return GetItem(ctx, db, id)
}

// BulkApproveItems approves each item in its own transaction.
func BulkApproveItems(ctx context.Context, db *sqlx.DB, actor model.Actor, ids []int64) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		err := withTx(ctx, db, "BulkApproveItem", func(ctx context.Context, tx *sqlx.Tx) error {
			return approveItem(ctx, tx, actor, id)
		})
		results = append(results, bulkResult(id, err))
	}
	return results
}

func recordItemEvent(ctx context.Context, q sqlx.ExtContext, itemID int64, action string, actorID int64, reason string) error {
	_, err := insert(ctx, q,
		`INSERT INTO item_events (item_id, action, actor_id, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		itemID, action, nullID(actorID), reason, now(),
	)
	if err != nil {
		return fmt.Errorf("recording item event: %w", err)
	}
	return nil
}

// ListItemEvents returns the approval and lifecycle log of an item.
func ListItemEvents(ctx context.Context, db *sqlx.DB, itemID int64) ([]model.ItemEvent, error) {
	var events []model.ItemEvent
	err := sel(ctx, db, &events,
		`SELECT e.id, e.item_id, e.action, e.actor_id, e.reason, e.created_at,
		        COALESCE(u.username, '') AS actor_name
		 FROM item_events e
		 LEFT JOIN users u ON u.id = e.actor_id
		 WHERE e.item_id = ?
		 ORDER BY e.id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing item events: %w", err)
	}
	return events, nil
}

func nullID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
