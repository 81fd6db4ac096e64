package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/model"
)

const clearanceColumns = `id, form_number, notes, status, created_by, approved_by, approved_at,
	rejected_by, rejection_reason, pdf_generated, pdf_generated_at, scanned_file_key,
	scanned_uploaded_at, processed_by, processed_at, created_at, updated_at`

const clearanceLineColumns = `l.id, l.form_id, l.stock_id, l.item_id, l.box_id, l.quantity, l.reason,
	i.product_code, i.description, b.code AS box_code`

// ClearanceLineInput puts quantity of one stock row on a form.
type ClearanceLineInput struct {
	StockID  int64  `json:"stock_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason"`
}

// ClearanceInput is the body of a new clearance form.
type ClearanceInput struct {
	Notes string               `json:"notes"`
	Items []ClearanceLineInput `json:"items" validate:"required,min=1,dive"`
}

// LineError is a per-line failure found while processing a form.
type LineError struct {
	LineID int64  `json:"line_id"`
	Error  string `json:"error"`
}

// ProcessError lists every line that blocked processing. Nothing was
// changed.
type ProcessError struct {
	Lines []LineError
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%d clearance lines cannot be processed", len(e.Lines))
}

func (e *ProcessError) Unwrap() error { return ErrValidation }

// CreateClearanceForm creates a draft and moves every listed quantity from
// in_storage into in_clearance.
func CreateClearanceForm(ctx context.Context, db *sqlx.DB, actor model.Actor, in ClearanceInput) (*model.ClearanceForm, error) {
	if len(in.Items) == 0 {
		return nil, invalid("at least one stock line required")
	}
	seen := make(map[int64]bool)
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, invalid("quantity must be positive")
		}
		if seen[line.StockID] {
			return nil, invalid("stock record %d listed more than once", line.StockID)
		}
		seen[line.StockID] = true
	}

	var id int64
	err := withTx(ctx, db, "CreateClearanceForm", func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		id, err = insert(ctx, tx,
			`INSERT INTO clearance_forms (form_number, notes, status, created_by, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			"tmp-"+uuid.NewString(), strings.TrimSpace(in.Notes), model.ClearanceDraft, nullID(actor.UserID), now(), now())
		if err != nil {
			return fmt.Errorf("creating clearance form: %w", err)
		}
		number := fmt.Sprintf("CF-%s-%d", now().Format("20060102"), id)
		if _, err := exec(ctx, tx, `UPDATE clearance_forms SET form_number = ? WHERE id = ?`, number, id); err != nil {
			return fmt.Errorf("numbering clearance form: %w", err)
		}

		l := newLedger(tx, actor.UserID, model.RefClearanceForm, id)
		for _, line := range in.Items {
			s, err := l.lockStock(ctx, line.StockID)
			if err != nil {
				return err
			}
			if err := l.moveBetweenBuckets(ctx, s, model.BucketInStorage, model.BucketInClearance,
				line.Quantity, model.MovementClearance, line.Reason); err != nil {
				return err
			}
			_, err = insert(ctx, tx,
				`INSERT INTO clearance_form_items (form_id, stock_id, item_id, box_id, quantity, reason)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				id, s.ID, s.ItemID, s.BoxID, line.Quantity, strings.TrimSpace(line.Reason))
			if err != nil {
				return fmt.Errorf("adding clearance line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetClearanceForm(ctx, db, id)
}

// GetClearanceForm returns a form with its lines.
func GetClearanceForm(ctx context.Context, db *sqlx.DB, id int64) (*model.ClearanceForm, error) {
	f, err := getClearanceForm(ctx, db, id, false)
	if err != nil {
		return nil, err
	}
	f.Items, err = clearanceLines(ctx, db, id, false)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func getClearanceForm(ctx context.Context, q sqlx.ExtContext, id int64, lock bool) (*model.ClearanceForm, error) {
	query := `SELECT ` + clearanceColumns + ` FROM clearance_forms f WHERE id = ?`
	if lock {
		query += forUpdate(q, "f")
	}
	f := &model.ClearanceForm{}
	err := get(ctx, q, f, query, id)
	if isNoRows(err) {
		return nil, notFound("clearance form %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting clearance form: %w", err)
	}
	f.HasScanned = f.ScannedFileKey != ""
	return f, nil
}

func clearanceLines(ctx context.Context, q sqlx.ExtContext, formID int64, lock bool) ([]model.ClearanceFormItem, error) {
	query := `SELECT ` + clearanceLineColumns + ` FROM clearance_form_items l
		JOIN items i ON i.id = l.item_id
		JOIN boxes b ON b.id = l.box_id
		WHERE l.form_id = ? ORDER BY l.id`
	if lock {
		query += forUpdate(q, "l")
	}
	lines := []model.ClearanceFormItem{}
	if err := sel(ctx, q, &lines, query, formID); err != nil {
		return nil, fmt.Errorf("loading clearance lines: %w", err)
	}
	return lines, nil
}

// ListClearanceForms returns forms newest first, optionally by status.
func ListClearanceForms(ctx context.Context, db *sqlx.DB, status string) ([]model.ClearanceForm, error) {
	query := `SELECT ` + clearanceColumns + ` FROM clearance_forms`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	var forms []model.ClearanceForm
	if err := sel(ctx, db, &forms, query, args...); err != nil {
		return nil, fmt.Errorf("listing clearance forms: %w", err)
	}
	for i := range forms {
		forms[i].HasScanned = forms[i].ScannedFileKey != ""
	}
	return forms, nil
}

// updateFormStatus moves a locked form from one of the allowed statuses.
func updateFormStatus(ctx context.Context, tx *sqlx.Tx, id int64, action string, allowed []string, set string, args ...any) (*model.ClearanceForm, error) {
	f, err := getClearanceForm(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	ok := false
	for _, s := range allowed {
		if f.Status == s {
			ok = true
		}
	}
	if !ok {
		return nil, conflict("cannot %s a %s clearance form", action, f.Status)
	}
	args = append(args, now(), id)
	if _, err := exec(ctx, tx, `UPDATE clearance_forms SET `+set+`, updated_at = ? WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("updating clearance form: %w", err)
	}
	return f, nil
}

// SubmitClearanceForm sends a draft for approval.
func SubmitClearanceForm(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64) (*model.ClearanceForm, error) {
	err := withTx(ctx, db, "SubmitClearanceForm", func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := updateFormStatus(ctx, tx, id, "submit", []string{model.ClearanceDraft},
			`status = ?`, model.ClearancePendingApproval)
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetClearanceForm(ctx, db, id)
}

// ApproveClearanceForm approves a submitted form.
func ApproveClearanceForm(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64) (*model.ClearanceForm, error) {
	if !auth.Can(actor.Role, auth.ApproveClearance) {
		return nil, forbidden("not allowed to approve clearance forms")
	}
	err := withTx(ctx, db, "ApproveClearanceForm", func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := updateFormStatus(ctx, tx, id, "approve", []string{model.ClearancePendingApproval},
			`status = ?, approved_by = ?, approved_at = ?`, model.ClearanceApproved, actor.UserID, now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetClearanceForm(ctx, db, id)
}

// RejectClearanceForm rejects a submitted or approved form and returns its
// quantities to storage.
func RejectClearanceForm(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, reason string) (*model.ClearanceForm, error) {
	if !auth.Can(actor.Role, auth.ApproveClearance) {
		return nil, forbidden("not allowed to reject clearance forms")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("rejection reason required")
	}
	err := withTx(ctx, db, "RejectClearanceForm", func(ctx context.Context, tx *sqlx.Tx) error {
		f, err := updateFormStatus(ctx, tx, id, "reject",
			[]string{model.ClearancePendingApproval, model.ClearanceApproved},
			`status = ?, rejected_by = ?, rejection_reason = ?`, model.ClearanceRejected, actor.UserID, reason)
		if err != nil {
			return err
		}
		return revertClearanceLines(ctx, tx, actor, f, "clearance form "+f.FormNumber+" rejected")
	})
	if err != nil {
		return nil, err
	}
	return GetClearanceForm(ctx, db, id)
}

// revertClearanceLines moves every line of f from in_clearance back to
// in_storage with an adjustment movement.
func revertClearanceLines(ctx context.Context, tx *sqlx.Tx, actor model.Actor, f *model.ClearanceForm, notes string) error {
	lines, err := clearanceLines(ctx, tx, f.ID, true)
	if err != nil {
		return err
	}
	l := newLedger(tx, actor.UserID, model.RefClearanceForm, f.ID)
	for _, line := range lines {
		s, err := lineStock(ctx, l, line)
		if err != nil {
			return err
		}
		if err := l.moveBetweenBuckets(ctx, s, model.BucketInClearance, model.BucketInStorage,
			line.Quantity, model.MovementAdjustment, notes); err != nil {
			return err
		}
	}
	return nil
}

// lineStock locks the row a line was drawn from. A pruned row is recreated
// in the same box.
func lineStock(ctx context.Context, l *ledger, line model.ClearanceFormItem) (*model.ItemStock, error) {
	if line.StockID != nil {
		return l.lockStock(ctx, *line.StockID)
	}
	return l.findOrCreate(ctx, line.ItemID, line.BoxID)
}

// MarkClearancePDFGenerated records that the printable form was produced.
func MarkClearancePDFGenerated(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64) (*model.ClearanceForm, error) {
	err := withTx(ctx, db, "MarkClearancePDFGenerated", func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := updateFormStatus(ctx, tx, id, "print",
			[]string{model.ClearanceApproved, model.ClearanceProcessed},
			`pdf_generated = ?, pdf_generated_at = ?`, true, now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetClearanceForm(ctx, db, id)
}

// DeleteClearanceForm deletes a draft and returns its quantities to storage.
func DeleteClearanceForm(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64) error {
	return withTx(ctx, db, "DeleteClearanceForm", func(ctx context.Context, tx *sqlx.Tx) error {
		f, err := getClearanceForm(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if f.Status != model.ClearanceDraft {
			return conflict("only draft clearance forms can be deleted")
		}
		if err := revertClearanceLines(ctx, tx, actor, f, "clearance form "+f.FormNumber+" deleted"); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `DELETE FROM clearance_form_items WHERE form_id = ?`, id); err != nil {
			return fmt.Errorf("deleting clearance lines: %w", err)
		}
		if _, err := exec(ctx, tx, `DELETE FROM clearance_forms WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting clearance form: %w", err)
		}
		return nil
	})
}

// AttachClearanceScan stores the signed paper form of an approved form,
// replacing any earlier upload.
func AttachClearanceScan(ctx context.Context, db *sqlx.DB, blobs blob.Store, id int64, data []byte, contentType, ext string) (*model.ClearanceForm, error) {
	f, err := GetClearanceForm(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if f.Status != model.ClearanceApproved {
		return nil, conflict("scans can only be attached to approved forms")
	}

	key := blob.NewKey(fmt.Sprintf("clearance/%d", id), ext)
	if err := blobs.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("storing scan: %w", err)
	}

	var old string
	err = withTx(ctx, db, "AttachClearanceScan", func(ctx context.Context, tx *sqlx.Tx) error {
		f, err := updateFormStatus(ctx, tx, id, "attach a scan to", []string{model.ClearanceApproved},
			`scanned_file_key = ?, scanned_uploaded_at = ?`, key, now())
		if err != nil {
			return err
		}
		old = f.ScannedFileKey
		return nil
	})
	if err != nil {
		if derr := blobs.Delete(ctx, key); derr != nil {
			slog.Warn("failed to remove orphaned scan", "key", key, "error", derr)
		}
		return nil, err
	}
	if old != "" {
		deleteBlobs(ctx, blobs, []string{old})
	}
	return GetClearanceForm(ctx, db, id)
}

// OpenClearanceScan opens the scanned form of a clearance form.
func OpenClearanceScan(ctx context.Context, db *sqlx.DB, blobs blob.Store, id int64) (io.ReadCloser, string, error) {
	f, err := getClearanceForm(ctx, db, id, false)
	if err != nil {
		return nil, "", err
	}
	if f.ScannedFileKey == "" {
		return nil, "", notFound("clearance form %s has no scanned file", f.FormNumber)
	}
	rc, ct, err := blobs.Get(ctx, f.ScannedFileKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, "", notFound("scanned file of %s is missing", f.FormNumber)
	}
	return rc, ct, err
}

// ProcessClearanceForm removes every line of an approved form from the
// ledger for good. Each line is snapshotted into cleared_items, and items
// left without any stock are deleted with all their dependents. Every line
// is checked before anything changes; if any fails the whole form is
// refused with a ProcessError.
func ProcessClearanceForm(ctx context.Context, db *sqlx.DB, blobs blob.Store, actor model.Actor, id int64) (*model.ClearanceForm, error) {
	var keys []string
	err := withTx(ctx, db, "ProcessClearanceForm", func(ctx context.Context, tx *sqlx.Tx) error {
		f, err := getClearanceForm(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if f.Status != model.ClearanceApproved {
			return conflict("cannot process a %s clearance form", f.Status)
		}
		if f.ScannedFileKey == "" {
			return conflict("upload the signed form before processing")
		}

		lines, err := clearanceLines(ctx, tx, id, true)
		if err != nil {
			return err
		}
		l := newLedger(tx, actor.UserID, model.RefClearanceForm, id)

		rows := make([]*model.ItemStock, len(lines))
		var lineErrs []LineError
		for i, line := range lines {
			if line.StockID == nil {
				lineErrs = append(lineErrs, LineError{line.ID, "stock record no longer exists"})
				continue
			}
			s, err := l.lockStock(ctx, *line.StockID)
			if err != nil {
				var se *Error
				if !errors.As(err, &se) {
					return err
				}
				lineErrs = append(lineErrs, LineError{line.ID, se.Msg})
				continue
			}
			if s.InClearance < line.Quantity {
				lineErrs = append(lineErrs, LineError{line.ID, fmt.Sprintf(
					"only %d of %s in clearance in box %s, form lists %d",
					s.InClearance, line.ProductCode, line.BoxCode, line.Quantity)})
				continue
			}
			rows[i] = s
		}
		if len(lineErrs) > 0 {
			return &ProcessError{Lines: lineErrs}
		}

		var touched []int64
		seen := make(map[int64]bool)
		for i, line := range lines {
			s := rows[i]
			condition := s.Condition
			if err := l.adjustBucket(ctx, s, model.BucketInClearance, -line.Quantity,
				model.StateCleared, model.MovementClearance, line.Reason); err != nil {
				return err
			}
			_, err := insert(ctx, tx,
				`INSERT INTO cleared_items (form_id, form_number, item_id, product_code, description,
				                            box_code, quantity, condition, reason, cleared_by, cleared_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.ID, f.FormNumber, line.ItemID, line.ProductCode, line.Description,
				line.BoxCode, line.Quantity, condition, line.Reason, nullID(actor.UserID), now())
			if err != nil {
				return fmt.Errorf("recording cleared item: %w", err)
			}
			if !seen[line.ItemID] {
				seen[line.ItemID] = true
				touched = append(touched, line.ItemID)
			}
		}

		_, err = exec(ctx, tx,
			`UPDATE clearance_forms SET status = ?, processed_by = ?, processed_at = ?, updated_at = ? WHERE id = ?`,
			model.ClearanceProcessed, actor.UserID, now(), now(), id)
		if err != nil {
			return fmt.Errorf("processing clearance form: %w", err)
		}

		for _, itemID := range touched {
			var count int
			if err := get(ctx, tx, &count, `SELECT COUNT(*) FROM item_stock WHERE item_id = ?`, itemID); err != nil {
				return fmt.Errorf("checking remaining stock: %w", err)
			}
			if count > 0 {
				continue
			}
			k, err := deleteItemCascade(ctx, tx, itemID)
			if err != nil {
				return err
			}
			keys = append(keys, k...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	deleteBlobs(ctx, blobs, keys)
	return GetClearanceForm(ctx, db, id)
}

// ListClearedItems returns the permanent clearance snapshots, optionally of
// one form.
func ListClearedItems(ctx context.Context, db *sqlx.DB, formID int64) ([]model.ClearedItem, error) {
	query := `SELECT id, form_id, form_number, item_id, product_code, description, box_code,
	                 quantity, condition, reason, cleared_by, cleared_at
	          FROM cleared_items`
	var args []any
	if formID > 0 {
		query += ` WHERE form_id = ?`
		args = append(args, formID)
	}
	query += ` ORDER BY id DESC`

	var items []model.ClearedItem
	if err := sel(ctx, db, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing cleared items: %w", err)
	}
	return items, nil
}

// BulkClearanceInput clears quantity of one item outside any form.
type BulkClearanceInput struct {
	ItemID   int64  `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason"`
}

// BulkClearance moves quantities straight into in_clearance, drawing from
// pending before in_storage. Each item commits on its own.
func BulkClearance(ctx context.Context, db *sqlx.DB, actor model.Actor, in []BulkClearanceInput) []BulkResult {
	results := make([]BulkResult, 0, len(in))
	for _, c := range in {
		err := withTx(ctx, db, "BulkClearance", func(ctx context.Context, tx *sqlx.Tx) error {
			return clearItem(ctx, tx, actor, c)
		})
		results = append(results, bulkResult(c.ItemID, err))
	}
	return results
}

func clearItem(ctx context.Context, tx *sqlx.Tx, actor model.Actor, c BulkClearanceInput) error {
	if c.Quantity <= 0 {
		return invalid("quantity must be positive")
	}
	item, err := lockItem(ctx, tx, c.ItemID)
	if err != nil {
		return err
	}
	if item.Status == model.ItemStatusArchived {
		return conflict("item %s is archived", item.ProductCode)
	}

	l := newLedger(tx, actor.UserID, model.RefItemClearance, 0)
	rows, err := l.lockItemStock(ctx, c.ItemID)
	if err != nil {
		return err
	}
	available := 0
	for _, s := range rows {
		available += s.Pending + s.InStorage
	}
	if available < c.Quantity {
		return insufficient("not enough stock of %s to clear: %d available, %d requested",
			item.ProductCode, available, c.Quantity)
	}

	fromPending := make([]int, len(rows))
	fromStorage := make([]int, len(rows))
	remaining := c.Quantity
	for i := range rows {
		take := min(rows[i].Pending, remaining)
		fromPending[i] = take
		remaining -= take
	}
	for i := range rows {
		take := min(rows[i].InStorage, remaining)
		fromStorage[i] = take
		remaining -= take
	}

	for i := range rows {
		qty := fromPending[i] + fromStorage[i]
		if qty == 0 {
			continue
		}
		refID, err := insert(ctx, tx,
			`INSERT INTO item_clearances (item_id, stock_id, quantity, from_pending, from_storage, reason, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ItemID, rows[i].ID, qty, fromPending[i], fromStorage[i], c.Reason, nullID(actor.UserID), now())
		if err != nil {
			return fmt.Errorf("recording item clearance: %w", err)
		}
		l.refID = &refID

		if fromPending[i] > 0 {
			if err := l.moveBetweenBuckets(ctx, &rows[i], model.BucketPending, model.BucketInClearance,
				fromPending[i], model.MovementClearance, c.Reason); err != nil {
				return err
			}
		}
		if fromStorage[i] > 0 {
			if err := l.moveBetweenBuckets(ctx, &rows[i], model.BucketInStorage, model.BucketInClearance,
				fromStorage[i], model.MovementClearance, c.Reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// BulkRevertInput returns quantity of an item from clearance to storage. A
// zero quantity reverts everything in clearance.
type BulkRevertInput struct {
	ItemID   int64 `json:"item_id" validate:"required"`
	Quantity int   `json:"quantity" validate:"gte=0"`
}

// BulkRevertClearance moves in_clearance back to in_storage for each item.
func BulkRevertClearance(ctx context.Context, db *sqlx.DB, actor model.Actor, in []BulkRevertInput) []BulkResult {
	results := make([]BulkResult, 0, len(in))
	for _, r := range in {
		err := withTx(ctx, db, "BulkRevertClearance", func(ctx context.Context, tx *sqlx.Tx) error {
			return revertItemClearance(ctx, tx, actor, r)
		})
		results = append(results, bulkResult(r.ItemID, err))
	}
	return results
}

func revertItemClearance(ctx context.Context, tx *sqlx.Tx, actor model.Actor, r BulkRevertInput) error {
	item, err := lockItem(ctx, tx, r.ItemID)
	if err != nil {
		return err
	}
	l := newLedger(tx, actor.UserID, model.RefItem, r.ItemID)
	rows, err := l.lockItemStock(ctx, r.ItemID)
	if err != nil {
		return err
	}
	held := 0
	for _, s := range rows {
		held += s.InClearance
	}
	qty := r.Quantity
	if qty == 0 {
		qty = held
	}
	if qty == 0 || held < qty {
		return insufficient("not enough %s in clearance: have %d, need %d", item.ProductCode, held, qty)
	}

	for i := range rows {
		take := min(rows[i].InClearance, qty)
		if take == 0 {
			continue
		}
		if err := l.moveBetweenBuckets(ctx, &rows[i], model.BucketInClearance, model.BucketInStorage,
			take, model.MovementAdjustment, "clearance reverted"); err != nil {
			return err
		}
		qty -= take
		if qty == 0 {
			break
		}
	}
	return nil
}
