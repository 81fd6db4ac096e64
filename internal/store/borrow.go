package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/model"
)

const borrowColumns = `r.id, r.user_id, r.purpose, r.status, r.start_date, r.end_date, r.due_date,
	r.requested_end_date, r.manager_approved_by, r.manager_approved_at,
	r.storage_approved_by, r.storage_approved_at, r.rejected_by, r.rejection_reason,
	r.created_at, r.updated_at, u.username, u.department`

const borrowFrom = ` FROM borrow_requests r JOIN users u ON u.id = r.user_id`

const borrowLineColumns = `l.id, l.request_id, l.item_id, l.quantity, l.status, l.return_condition,
	l.seed_reason, l.processed_by, l.processed_at, i.product_code, i.description`

// DefaultBorrowPeriod is the loan length used when none is configured.
const DefaultBorrowPeriod = 14 * 24 * time.Hour

// BorrowLineInput is one requested item.
type BorrowLineInput struct {
	ItemID   int64 `json:"item_id" validate:"required"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

// BorrowInput is the body of a new borrow request.
type BorrowInput struct {
	Purpose   string            `json:"purpose"`
	StartDate *time.Time        `json:"start_date"`
	EndDate   *time.Time        `json:"end_date"`
	Items     []BorrowLineInput `json:"items" validate:"required,min=1,dive"`
}

// BorrowFilter narrows ListBorrowRequests.
type BorrowFilter struct {
	Status string
	UserID int64
}

// initialBorrowStatus returns where a new request from role starts.
// Requests from plain users need their manager first.
func initialBorrowStatus(role model.Role) string {
	if role == model.RoleUser {
		return model.BorrowPendingManager
	}
	return model.BorrowPendingStorage
}

// CreateBorrowRequest files a request. Stock is checked but not reserved;
// the ledger is debited at final approval.
func CreateBorrowRequest(ctx context.Context, db *sqlx.DB, actor model.Actor, in BorrowInput) (*model.BorrowRequest, error) {
	if len(in.Items) == 0 {
		return nil, invalid("at least one item required")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, invalid("end date is before start date")
	}
	seen := make(map[int64]bool)
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, invalid("quantity must be positive")
		}
		if seen[line.ItemID] {
			return nil, invalid("item %d listed more than once", line.ItemID)
		}
		seen[line.ItemID] = true
	}

	var id int64
	err := withTx(ctx, db, "CreateBorrowRequest", func(ctx context.Context, tx *sqlx.Tx) error {
		for _, line := range in.Items {
			item, err := getItem(ctx, tx, line.ItemID)
			if err != nil {
				return err
			}
			if item.Status != model.ItemStatusApproved {
				return conflict("item %s is not available for borrowing", item.ProductCode)
			}
			available, err := inStorage(ctx, tx, line.ItemID)
			if err != nil {
				return err
			}
			if available < line.Quantity {
				return insufficient("not enough stock of %s: %d available, %d requested",
					item.ProductCode, available, line.Quantity)
			}
		}

		var err error
		id, err = insert(ctx, tx,
			`INSERT INTO borrow_requests (user_id, purpose, status, start_date, end_date, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			actor.UserID, strings.TrimSpace(in.Purpose), initialBorrowStatus(actor.Role),
			in.StartDate, in.EndDate, now(), now(),
		)
		if err != nil {
			return fmt.Errorf("creating borrow request: %w", err)
		}
		for _, line := range in.Items {
			_, err := insert(ctx, tx,
				`INSERT INTO borrow_request_items (request_id, item_id, quantity, status) VALUES (?, ?, ?, ?)`,
				id, line.ItemID, line.Quantity, model.LinePending,
			)
			if err != nil {
				return fmt.Errorf("creating borrow line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}

func inStorage(ctx context.Context, q sqlx.ExtContext, itemID int64) (int, error) {
	var n int
	err := get(ctx, q, &n, `SELECT CAST(COALESCE(SUM(in_storage), 0) AS INTEGER) FROM item_stock WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, fmt.Errorf("summing stock: %w", err)
	}
	return n, nil
}

// GetBorrowRequest returns a request with its lines.
func GetBorrowRequest(ctx context.Context, db *sqlx.DB, id int64) (*model.BorrowRequest, error) {
	r, err := getBorrowRequest(ctx, db, id, false)
	if err != nil {
		return nil, err
	}
	if err := loadBorrowLines(ctx, db, []*model.BorrowRequest{r}); err != nil {
		return nil, err
	}
	r.Overdue = r.IsOverdue(now())
	return r, nil
}

func getBorrowRequest(ctx context.Context, q sqlx.ExtContext, id int64, lock bool) (*model.BorrowRequest, error) {
	query := `SELECT ` + borrowColumns + borrowFrom + ` WHERE r.id = ?`
	if lock {
		query += forUpdate(q, "r")
	}
	r := &model.BorrowRequest{}
	err := get(ctx, q, r, query, id)
	if isNoRows(err) {
		return nil, notFound("borrow request %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting borrow request: %w", err)
	}
	return r, nil
}

// ListBorrowRequests returns requests newest first, with their lines.
func ListBorrowRequests(ctx context.Context, db *sqlx.DB, f BorrowFilter) ([]model.BorrowRequest, error) {
	query := `SELECT ` + borrowColumns + borrowFrom + ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, f.Status)
	}
	if f.UserID > 0 {
		query += ` AND r.user_id = ?`
		args = append(args, f.UserID)
	}
	query += ` ORDER BY r.id DESC`

	var requests []model.BorrowRequest
	if err := sel(ctx, db, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("listing borrow requests: %w", err)
	}

	ptrs := make([]*model.BorrowRequest, len(requests))
	t := now()
	for i := range requests {
		ptrs[i] = &requests[i]
		requests[i].Overdue = requests[i].IsOverdue(t)
	}
	if err := loadBorrowLines(ctx, db, ptrs); err != nil {
		return nil, err
	}
	return requests, nil
}

func loadBorrowLines(ctx context.Context, q sqlx.ExtContext, requests []*model.BorrowRequest) error {
	ids := make([]int64, len(requests))
	byID := make(map[int64]*model.BorrowRequest, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
		byID[r.ID] = r
		r.Items = []model.BorrowRequestItem{}
	}

	var lines []model.BorrowRequestItem
	err := selIn(ctx, q, &lines,
		`SELECT `+borrowLineColumns+` FROM borrow_request_items l
		 JOIN items i ON i.id = l.item_id
		 WHERE l.request_id IN (?) ORDER BY l.id`, ids)
	if err != nil {
		return fmt.Errorf("loading borrow lines: %w", err)
	}
	for _, line := range lines {
		r := byID[line.RequestID]
		r.Items = append(r.Items, line)
	}
	return nil
}

func lockBorrowLines(ctx context.Context, tx *sqlx.Tx, requestID int64) ([]model.BorrowRequestItem, error) {
	var lines []model.BorrowRequestItem
	err := sel(ctx, tx, &lines,
		`SELECT `+borrowLineColumns+` FROM borrow_request_items l
		 JOIN items i ON i.id = l.item_id
		 WHERE l.request_id = ? ORDER BY l.id`+forUpdate(tx, "l"), requestID)
	if err != nil {
		return nil, fmt.Errorf("loading borrow lines: %w", err)
	}
	return lines, nil
}

// ApproveBorrowRequest advances a request by one approval stage. The
// manager stage is limited to the requester's department. The storage stage
// debits the ledger and starts the loan.
func ApproveBorrowRequest(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, period time.Duration) (*model.BorrowRequest, error) {
	if period <= 0 {
		period = DefaultBorrowPeriod
	}
	err := withTx(ctx, db, "ApproveBorrowRequest", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := getBorrowRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}

		switch r.Status {
		case model.BorrowPendingManager:
			if !auth.CanApproveForDepartment(actor, r.Department) {
				return forbidden("only a manager of department %q can approve this request", r.Department)
			}
			_, err = exec(ctx, tx,
				`UPDATE borrow_requests SET status = ?, manager_approved_by = ?, manager_approved_at = ?, updated_at = ?
				 WHERE id = ?`,
				model.BorrowPendingStorage, actor.UserID, now(), now(), id)
			if err != nil {
				return fmt.Errorf("approving borrow request: %w", err)
			}
			return nil

		case model.BorrowPendingStorage:
			if !auth.Can(actor.Role, auth.ApproveBorrowStorage) {
				return forbidden("only storage staff can give final approval")
			}
			if err := debitBorrow(ctx, tx, actor, r); err != nil {
				return err
			}
			t := now()
			start := t
			if r.StartDate != nil {
				start = *r.StartDate
			}
			_, err = exec(ctx, tx,
				`UPDATE borrow_requests SET status = ?, storage_approved_by = ?, storage_approved_at = ?,
				        start_date = ?, due_date = ?, updated_at = ?
				 WHERE id = ?`,
				model.BorrowActive, actor.UserID, t, start, t.Add(period), t, id)
			if err != nil {
				return fmt.Errorf("activating borrow request: %w", err)
			}
			return nil
		}
		return conflict("borrow request is %s and cannot be approved", r.Status)
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}

// debitBorrow moves every line from in_storage to on_borrow, drawing from
// the fullest boxes first, and remembers which rows each line came from.
func debitBorrow(ctx context.Context, tx *sqlx.Tx, actor model.Actor, r *model.BorrowRequest) error {
	lines, err := lockBorrowLines(ctx, tx, r.ID)
	if err != nil {
		return err
	}
	l := newLedger(tx, actor.UserID, model.RefBorrowRequest, r.ID)

	for _, line := range lines {
		item, err := lockItem(ctx, tx, line.ItemID)
		if err != nil {
			return err
		}
		if item.Status != model.ItemStatusApproved {
			return conflict("item %s is no longer available for borrowing", item.ProductCode)
		}

		rows, err := l.lockItemStock(ctx, line.ItemID)
		if err != nil {
			return err
		}
		available := 0
		for _, s := range rows {
			available += s.InStorage
		}
		if available < line.Quantity {
			return insufficient("not enough stock of %s: %d available, %d requested",
				item.ProductCode, available, line.Quantity)
		}

		remaining := line.Quantity
		for i := range rows {
			if remaining == 0 {
				break
			}
			take := min(rows[i].InStorage, remaining)
			if take == 0 {
				continue
			}
			if err := l.moveBetweenBuckets(ctx, &rows[i], model.BucketInStorage, model.BucketOnBorrow,
				take, model.MovementBorrow, ""); err != nil {
				return err
			}
			_, err := insert(ctx, tx,
				`INSERT INTO borrow_allocations (line_id, stock_id, box_id, quantity) VALUES (?, ?, ?, ?)`,
				line.ID, rows[i].ID, rows[i].BoxID, take)
			if err != nil {
				return fmt.Errorf("recording allocation: %w", err)
			}
			remaining -= take
		}

		_, err = exec(ctx, tx, `UPDATE borrow_request_items SET status = ? WHERE id = ?`, model.LineBorrowed, line.ID)
		if err != nil {
			return fmt.Errorf("updating borrow line: %w", err)
		}
	}
	return nil
}

// RejectBorrowRequest rejects a request at either approval stage. Nothing
// has been debited yet, so the ledger is untouched.
func RejectBorrowRequest(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, reason string) (*model.BorrowRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("rejection reason required")
	}
	err := withTx(ctx, db, "RejectBorrowRequest", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := getBorrowRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		switch r.Status {
		case model.BorrowPendingManager:
			if !auth.CanApproveForDepartment(actor, r.Department) {
				return forbidden("only a manager of department %q can reject this request", r.Department)
			}
		case model.BorrowPendingStorage:
			if !auth.Can(actor.Role, auth.ApproveBorrowStorage) {
				return forbidden("only storage staff can reject at this stage")
			}
		default:
			return conflict("borrow request is %s and cannot be rejected", r.Status)
		}

		_, err = exec(ctx, tx,
			`UPDATE borrow_requests SET status = ?, rejected_by = ?, rejection_reason = ?, updated_at = ? WHERE id = ?`,
			model.BorrowRejected, actor.UserID, reason, now(), id)
		if err != nil {
			return fmt.Errorf("rejecting borrow request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}

// CancelBorrowRequest withdraws a pending request. Only the requester may
// cancel.
func CancelBorrowRequest(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64) (*model.BorrowRequest, error) {
	err := withTx(ctx, db, "CancelBorrowRequest", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := getBorrowRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if r.UserID != actor.UserID {
			return forbidden("only the requester can cancel a borrow request")
		}
		if r.Status != model.BorrowPendingManager && r.Status != model.BorrowPendingStorage {
			return conflict("borrow request is %s and cannot be cancelled", r.Status)
		}
		_, err = exec(ctx, tx, `UPDATE borrow_requests SET status = ?, updated_at = ? WHERE id = ?`,
			model.BorrowCancelled, now(), id)
		if err != nil {
			return fmt.Errorf("cancelling borrow request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}

// Return actions.
const (
	ReturnComplete = "complete"
	ReturnSeed     = "seed"
)

// ReturnLine settles one borrowed line.
type ReturnLine struct {
	LineID    int64  `json:"line_id" validate:"required"`
	Action    string `json:"action" validate:"omitempty,oneof=complete seed"`
	Condition string `json:"return_condition"`
	Reason    string `json:"reason"`
}

// ProcessBorrowReturn completes or seeds borrowed lines. Completed units go
// back to storage; seeded units stay out of circulation. Once every line is
// settled the request becomes complete, or seeded if nothing came back.
func ProcessBorrowReturn(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, returns []ReturnLine) (*model.BorrowRequest, error) {
	if len(returns) == 0 {
		return nil, invalid("at least one line required")
	}
	for i := range returns {
		rl := &returns[i]
		if rl.Action == "" {
			rl.Action = ReturnComplete
		}
		switch rl.Action {
		case ReturnComplete:
			rl.Condition = strings.ToLower(strings.TrimSpace(rl.Condition))
			if !model.ValidCondition(rl.Condition) {
				return nil, invalid("return condition must be one of excellent, good, fair, poor")
			}
		case ReturnSeed:
			rl.Reason = strings.TrimSpace(rl.Reason)
			if rl.Reason == "" {
				return nil, invalid("seed reason required")
			}
		default:
			return nil, invalid("unknown return action %q", rl.Action)
		}
	}

	err := withTx(ctx, db, "ProcessBorrowReturn", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := getBorrowRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if r.Status != model.BorrowActive && r.Status != model.BorrowPendingExtension {
			return conflict("borrow request is %s, not active", r.Status)
		}
		lines, err := lockBorrowLines(ctx, tx, id)
		if err != nil {
			return err
		}
		byID := make(map[int64]*model.BorrowRequestItem, len(lines))
		for i := range lines {
			byID[lines[i].ID] = &lines[i]
		}

		l := newLedger(tx, actor.UserID, model.RefBorrowRequest, id)
		for _, rl := range returns {
			line, ok := byID[rl.LineID]
			if !ok {
				return notFound("line %d is not part of borrow request %d", rl.LineID, id)
			}
			if line.Status != model.LineBorrowed {
				return conflict("line %d is already %s", line.ID, line.Status)
			}
			if err := creditBorrowLine(ctx, tx, l, line, rl); err != nil {
				return err
			}
			line.Status = model.LineComplete
			if rl.Action == ReturnSeed {
				line.Status = model.LineSeeded
			}
			_, err := exec(ctx, tx,
				`UPDATE borrow_request_items SET status = ?, return_condition = ?, seed_reason = ?,
				        processed_by = ?, processed_at = ?
				 WHERE id = ?`,
				line.Status, rl.Condition, rl.Reason, actor.UserID, now(), line.ID)
			if err != nil {
				return fmt.Errorf("updating borrow line: %w", err)
			}
		}

		status := settledStatus(lines)
		if status == "" {
			status = r.Status
		}
		_, err = exec(ctx, tx, `UPDATE borrow_requests SET status = ?, end_date = ?, updated_at = ? WHERE id = ?`,
			status, now(), now(), id)
		if err != nil {
			return fmt.Errorf("updating borrow request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}

// settledStatus returns the final request status once every line is
// terminal, or "" while some are still out.
func settledStatus(lines []model.BorrowRequestItem) string {
	anyComplete := false
	for _, line := range lines {
		if !line.Terminal() {
			return ""
		}
		if line.Status == model.LineComplete {
			anyComplete = true
		}
	}
	if anyComplete {
		return model.BorrowComplete
	}
	return model.BorrowSeeded
}

// creditBorrowLine moves a line's units out of on_borrow on the rows they
// were taken from.
func creditBorrowLine(ctx context.Context, tx *sqlx.Tx, l *ledger, line *model.BorrowRequestItem, rl ReturnLine) error {
	var allocs []model.BorrowAllocation
	err := sel(ctx, tx, &allocs,
		`SELECT id, line_id, stock_id, box_id, quantity FROM borrow_allocations WHERE line_id = ? ORDER BY id`, line.ID)
	if err != nil {
		return fmt.Errorf("loading allocations: %w", err)
	}
	if len(allocs) == 0 {
		return conflict("line %d has no recorded allocation", line.ID)
	}

	to, kind, notes := model.BucketInStorage, model.MovementComplete, "returned in "+rl.Condition+" condition"
	if rl.Action == ReturnSeed {
		to, kind, notes = model.BucketSeeded, model.MovementSeed, rl.Reason
	}

	for _, a := range allocs {
		var s *model.ItemStock
		if a.StockID != nil {
			s, err = l.lockStock(ctx, *a.StockID)
		} else {
			s, err = l.findOrCreate(ctx, line.ItemID, a.BoxID)
		}
		if err != nil {
			return err
		}
		if err := l.moveBetweenBuckets(ctx, s, model.BucketOnBorrow, to, a.Quantity, kind, notes); err != nil {
			return err
		}
		if rl.Action == ReturnComplete {
			_, err := exec(ctx, tx, `UPDATE item_stock SET condition = ?, updated_at = ? WHERE id = ?`,
				rl.Condition, now(), s.ID)
			if err != nil {
				return fmt.Errorf("updating stock condition: %w", err)
			}
		}
	}
	return nil
}

// RequestExtension asks for a later end date on an active loan.
func RequestExtension(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, endDate time.Time) (*model.BorrowRequest, error) {
	err := withTx(ctx, db, "RequestExtension", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := getBorrowRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if r.UserID != actor.UserID {
			return forbidden("only the requester can ask for an extension")
		}
		if r.Status != model.BorrowActive {
			return conflict("borrow request is %s, not active", r.Status)
		}
		if r.DueDate != nil && !endDate.After(*r.DueDate) {
			return invalid("new end date must be after the current due date")
		}
		_, err = exec(ctx, tx,
			`UPDATE borrow_requests SET status = ?, requested_end_date = ?, updated_at = ? WHERE id = ?`,
			model.BorrowPendingExtension, endDate.UTC(), now(), id)
		if err != nil {
			return fmt.Errorf("requesting extension: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}

// DecideExtension approves or rejects a pending extension. Either way the
// loan goes back to active; approval moves the due date.
func DecideExtension(ctx context.Context, db *sqlx.DB, actor model.Actor, id int64, approve bool) (*model.BorrowRequest, error) {
	err := withTx(ctx, db, "DecideExtension", func(ctx context.Context, tx *sqlx.Tx) error {
		r, err := getBorrowRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if r.Status != model.BorrowPendingExtension {
			return conflict("borrow request has no pending extension")
		}
		if approve && r.RequestedEndDate != nil {
			_, err = exec(ctx, tx,
				`UPDATE borrow_requests SET status = ?, due_date = ?, end_date = ?, requested_end_date = NULL, updated_at = ?
				 WHERE id = ?`,
				model.BorrowActive, *r.RequestedEndDate, *r.RequestedEndDate, now(), id)
		} else {
			_, err = exec(ctx, tx,
				`UPDATE borrow_requests SET status = ?, requested_end_date = NULL, updated_at = ? WHERE id = ?`,
				model.BorrowActive, now(), id)
		}
		if err != nil {
			return fmt.Errorf("deciding extension: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBorrowRequest(ctx, db, id)
}
