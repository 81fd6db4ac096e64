package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
)

const stockColumns = `s.id, s.item_id, s.box_id, s.pending, s.in_storage, s.on_borrow,
	s.in_clearance, s.seeded, s.condition, s.condition_notes, s.created_at, s.updated_at,
	b.code AS box_code, i.product_code`

const stockFrom = ` FROM item_stock s
	JOIN boxes b ON b.id = s.box_id
	JOIN items i ON i.id = s.item_id`

// ledger applies bucket mutations inside one transaction. Every mutation
// writes exactly one movement and prunes the row if all buckets reach zero.
type ledger struct {
	tx      *sqlx.Tx
	actor   *int64
	refType string
	refID   *int64
}

func newLedger(tx *sqlx.Tx, actorID int64, refType string, refID int64) *ledger {
	l := &ledger{tx: tx, refType: refType}
	if actorID > 0 {
		l.actor = &actorID
	}
	if refID > 0 {
		l.refID = &refID
	}
	return l
}

// lockStock loads a stock row for update.
func (l *ledger) lockStock(ctx context.Context, id int64) (*model.ItemStock, error) {
	s := &model.ItemStock{}
	err := get(ctx, l.tx, s, `SELECT `+stockColumns+stockFrom+` WHERE s.id = ?`+forUpdate(l.tx, "s"), id)
	if isNoRows(err) {
		return nil, notFound("stock record %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("locking stock %d: %w", id, err)
	}
	return s, nil
}

// lockItemStock loads every stock row of an item for update, fullest
// in_storage first.
func (l *ledger) lockItemStock(ctx context.Context, itemID int64) ([]model.ItemStock, error) {
	var rows []model.ItemStock
	err := sel(ctx, l.tx, &rows,
		`SELECT `+stockColumns+stockFrom+` WHERE s.item_id = ? ORDER BY s.in_storage DESC, s.id`+forUpdate(l.tx, "s"),
		itemID)
	if err != nil {
		return nil, fmt.Errorf("locking stock of item %d: %w", itemID, err)
	}
	return rows, nil
}

// findOrCreate returns the locked row for (item, box), creating an empty one
// if none exists.
func (l *ledger) findOrCreate(ctx context.Context, itemID, boxID int64) (*model.ItemStock, error) {
	_, err := exec(ctx, l.tx,
		`INSERT INTO item_stock (item_id, box_id, condition, created_at, updated_at)
		 VALUES (?, ?, COALESCE((SELECT condition FROM items WHERE id = ?), ''), ?, ?)
		 ON CONFLICT (item_id, box_id) DO NOTHING`,
		itemID, boxID, itemID, now(), now())
	if err != nil {
		return nil, fmt.Errorf("creating stock row: %w", err)
	}

	s := &model.ItemStock{}
	err = get(ctx, l.tx, s,
		`SELECT `+stockColumns+stockFrom+` WHERE s.item_id = ? AND s.box_id = ?`+forUpdate(l.tx, "s"),
		itemID, boxID)
	if isNoRows(err) {
		return nil, notFound("item %d not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading stock row: %w", err)
	}
	return s, nil
}

// applyDelta changes one bucket without recording a movement. The result
// must stay non-negative.
func (l *ledger) applyDelta(ctx context.Context, s *model.ItemStock, b model.Bucket, delta int) error {
	if !b.Valid() {
		return invalid("unknown bucket %q", b)
	}
	next := s.Get(b) + delta
	if next < 0 {
		return insufficient("not enough %s stock of %s in box %s: have %d, need %d",
			b, s.ProductCode, s.BoxCode, s.Get(b), -delta)
	}

	col := string(b)
	res, err := exec(ctx, l.tx,
		`UPDATE item_stock SET `+col+` = `+col+` + ?, updated_at = ? WHERE id = ?`,
		delta, now(), s.ID)
	if err != nil {
		return fmt.Errorf("updating %s of stock %d: %w", b, s.ID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("stock row %d no longer exists", s.ID)
	}
	s.Set(b, next)
	return nil
}

// adjustBucket adds delta to one bucket. far is the movement state on the
// other side: the source for credits, the destination for debits.
func (l *ledger) adjustBucket(ctx context.Context, s *model.ItemStock, b model.Bucket, delta int, far, kind, notes string) error {
	if delta == 0 {
		return invalid("quantity must be non-zero")
	}
	if err := l.applyDelta(ctx, s, b, delta); err != nil {
		return err
	}

	from, to, qty := far, b.State(), delta
	if delta < 0 {
		from, to, qty = b.State(), far, -delta
	}
	if err := l.recordMovement(ctx, s, s.BoxID, kind, from, to, qty, notes); err != nil {
		return err
	}
	return l.pruneIfEmpty(ctx, s)
}

// moveBetweenBuckets shifts qty from one bucket to another on the same row
// in a single statement.
func (l *ledger) moveBetweenBuckets(ctx context.Context, s *model.ItemStock, from, to model.Bucket, qty int, kind, notes string) error {
	if qty <= 0 {
		return invalid("quantity must be positive")
	}
	if !from.Valid() || !to.Valid() || from == to {
		return invalid("invalid bucket move %s -> %s", from, to)
	}
	if s.Get(from) < qty {
		return insufficient("not enough %s stock of %s in box %s: have %d, need %d",
			from, s.ProductCode, s.BoxCode, s.Get(from), qty)
	}

	f, t := string(from), string(to)
	res, err := exec(ctx, l.tx,
		`UPDATE item_stock SET `+f+` = `+f+` - ?, `+t+` = `+t+` + ?, updated_at = ? WHERE id = ?`,
		qty, qty, now(), s.ID)
	if err != nil {
		return fmt.Errorf("moving stock %d %s -> %s: %w", s.ID, from, to, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("stock row %d no longer exists", s.ID)
	}
	s.Set(from, s.Get(from)-qty)
	s.Set(to, s.Get(to)+qty)

	if err := l.recordMovement(ctx, s, s.BoxID, kind, from.State(), to.State(), qty, notes); err != nil {
		return err
	}
	return l.pruneIfEmpty(ctx, s)
}

// moveBetweenBoxes moves in_storage quantity from src into destBoxID and
// returns the destination row. One transfer movement is recorded against the
// destination box.
func (l *ledger) moveBetweenBoxes(ctx context.Context, src *model.ItemStock, destBoxID int64, qty int, notes string) (*model.ItemStock, error) {
	if qty <= 0 {
		return nil, invalid("quantity must be positive")
	}
	if destBoxID == src.BoxID {
		return nil, invalid("item is already in that box")
	}
	if _, err := getBox(ctx, l.tx, destBoxID); err != nil {
		return nil, err
	}

	if err := l.applyDelta(ctx, src, model.BucketInStorage, -qty); err != nil {
		return nil, err
	}
	dest, err := l.findOrCreate(ctx, src.ItemID, destBoxID)
	if err != nil {
		return nil, err
	}
	if err := l.applyDelta(ctx, dest, model.BucketInStorage, qty); err != nil {
		return nil, err
	}
	if notes == "" {
		notes = "from box " + src.BoxCode
	}
	if err := l.recordMovement(ctx, dest, destBoxID, model.MovementTransfer, model.StateStorage, model.StateStorage, qty, notes); err != nil {
		return nil, err
	}
	if err := l.pruneIfEmpty(ctx, src); err != nil {
		return nil, err
	}
	return dest, nil
}

// recordMovement appends a movement for a mutation of s.
func (l *ledger) recordMovement(ctx context.Context, s *model.ItemStock, boxID int64, kind, from, to string, qty int, notes string) error {
	_, err := insert(ctx, l.tx,
		`INSERT INTO stock_movements (item_id, stock_id, box_id, movement_type, quantity,
		                              from_state, to_state, reference_type, reference_id,
		                              performed_by, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ItemID, s.ID, boxID, kind, qty, from, to, l.refType, l.refID, l.actor, notes, now())
	if err != nil {
		return fmt.Errorf("recording %s movement: %w", kind, err)
	}
	return nil
}

// pruneIfEmpty deletes s when every bucket is zero.
func (l *ledger) pruneIfEmpty(ctx context.Context, s *model.ItemStock) error {
	if !s.Empty() {
		return nil
	}
	if _, err := exec(ctx, l.tx, `DELETE FROM item_stock WHERE id = ?`, s.ID); err != nil {
		return fmt.Errorf("pruning stock %d: %w", s.ID, err)
	}
	return nil
}
