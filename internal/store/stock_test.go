package store

import (
	"errors"
	"testing"

	"github.com/erazemk/zaloga/internal/model"
)

func TestAddStockPendingUntilApproved(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "ABC1TS001")

	s, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxA.ID, 5, "")
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	assertBuckets(t, s, 5, 0, 0, 0, 0)

	if _, err := ApproveItem(f.ctx, f.db, f.admin, item.ID); err != nil {
		t.Fatalf("ApproveItem: %v", err)
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 5, 0, 0, 0)

	ms := f.movements(t, MovementFilter{ItemID: item.ID})
	if len(ms) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(ms))
	}
	// Newest first.
	if ms[0].MovementType != model.MovementReceive || ms[0].FromState != model.StatePending || ms[0].ToState != model.StateStorage {
		t.Errorf("unexpected receive movement %+v", ms[0])
	}
	if ms[1].MovementType != model.MovementIntake || ms[1].FromState != model.StateNone || ms[1].Quantity != 5 {
		t.Errorf("unexpected intake movement %+v", ms[1])
	}
}

func TestAddStockUpserts(t *testing.T) {
	f := newFixture(t)
	item, s := f.stocked(t, "ABC1TS001", f.boxA, 5)

	again, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxA.ID, 3, "")
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	if again.ID != s.ID {
		t.Errorf("expected the same stock row, got %d and %d", s.ID, again.ID)
	}
	assertBuckets(t, again, 0, 8, 0, 0, 0)

	rows, _ := ListItemStock(f.ctx, f.db, item.ID)
	if len(rows) != 1 {
		t.Errorf("expected 1 stock row, got %d", len(rows))
	}
}

func TestAddStockToRejectedItemFails(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "ABC1TS001")
	if _, err := RejectItem(f.ctx, f.db, f.admin, item.ID, "wrong code"); err != nil {
		t.Fatalf("RejectItem: %v", err)
	}

	_, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxA.ID, 1, "")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict, got %v", err)
	}
	if _, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxA.ID, 0, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for zero quantity, got %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 10)

	got, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, model.BucketInStorage, -3, "counted")
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	assertBuckets(t, got, 0, 7, 0, 0, 0)

	ms := f.movements(t, MovementFilter{StockID: s.ID, MovementType: model.MovementAdjustment})
	if len(ms) != 1 || ms[0].FromState != model.StateStorage || ms[0].ToState != model.StateNone || ms[0].Quantity != 3 {
		t.Errorf("unexpected adjustment movements %+v", ms)
	}

	if _, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, model.BucketInStorage, -3, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation without notes, got %v", err)
	}
	if _, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, model.Bucket("lost"), 1, "x"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown bucket, got %v", err)
	}
}

func TestAdjustStockLeavesWorkflowBucketsAlone(t *testing.T) {
	f := newFixture(t)
	item, s := f.stocked(t, "ABC1TS001", f.boxA, 10)
	r := f.activeBorrow(t, item.ID, 4)

	for _, b := range []model.Bucket{model.BucketOnBorrow, model.BucketInClearance} {
		if _, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, b, -1, "counted"); !errors.Is(err, ErrValidation) {
			t.Errorf("adjust %s: got %v, want ErrValidation", b, err)
		}
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 6, 4, 0, 0)

	r, err := ProcessBorrowReturn(f.ctx, f.db, f.storage, r.ID, []ReturnLine{{LineID: r.Items[0].ID, Condition: "good"}})
	if err != nil {
		t.Fatalf("ProcessBorrowReturn: %v", err)
	}
	if r.Status != model.BorrowComplete {
		t.Errorf("status = %q, want complete", r.Status)
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 10, 0, 0, 0)
}

func TestAdjustStockNegativeResultFails(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 2)

	_, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, model.BucketInStorage, -3, "counted")
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 2, 0, 0, 0)
	if ms := f.movements(t, MovementFilter{StockID: s.ID, MovementType: model.MovementAdjustment}); len(ms) != 0 {
		t.Errorf("expected no adjustment movement after failure, got %d", len(ms))
	}
}

func TestAdjustStockToZeroPrunesRow(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 2)

	got, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, model.BucketInStorage, -2, "written off")
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if got != nil {
		t.Errorf("expected pruned row, got %+v", got)
	}
	if _, err := GetStock(f.ctx, f.db, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// The movement outlives the row.
	ms := f.movements(t, MovementFilter{MovementType: model.MovementAdjustment})
	if len(ms) != 1 || ms[0].StockID != nil {
		t.Errorf("expected one detached adjustment movement, got %+v", ms)
	}
}

func TestMoveStockToNewBox(t *testing.T) {
	f := newFixture(t)
	item, src := f.stocked(t, "ABC1TS001", f.boxA, 10)

	dest, err := MoveStock(f.ctx, f.db, f.storage, MoveInput{StockID: src.ID, ToBoxID: f.boxB.ID, Quantity: 10})
	if err != nil {
		t.Fatalf("MoveStock: %v", err)
	}
	if dest.BoxID != f.boxB.ID {
		t.Errorf("expected destination box %d, got %d", f.boxB.ID, dest.BoxID)
	}
	assertBuckets(t, dest, 0, 10, 0, 0, 0)

	if _, err := GetStock(f.ctx, f.db, src.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected emptied source row to be deleted, got %v", err)
	}

	ms := f.movements(t, MovementFilter{ItemID: item.ID, MovementType: model.MovementTransfer})
	if len(ms) != 1 {
		t.Fatalf("expected 1 transfer movement, got %d", len(ms))
	}
	if ms[0].BoxID != f.boxB.ID || ms[0].Quantity != 10 || ms[0].Notes != "from box A1" {
		t.Errorf("unexpected transfer movement %+v", ms[0])
	}
}

func TestNewStockRowsTakeItemCondition(t *testing.T) {
	f := newFixture(t)
	item, err := CreateItem(f.ctx, f.db, f.admin, ItemInput{ProductCode: "ABC1TS001", Condition: "fair"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	src, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxA.ID, 4, "")
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	if src.Condition != model.ConditionFair || src.ItemID != item.ID || src.BoxID != f.boxA.ID {
		t.Errorf("intake row = %+v", src)
	}

	if _, err := ApproveItem(f.ctx, f.db, f.admin, item.ID); err != nil {
		t.Fatalf("ApproveItem: %v", err)
	}
	dest, err := MoveStock(f.ctx, f.db, f.storage, MoveInput{StockID: src.ID, ToBoxID: f.boxB.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("MoveStock: %v", err)
	}
	if dest.Condition != model.ConditionFair || dest.BoxID != f.boxB.ID {
		t.Errorf("destination row = %+v", dest)
	}
	assertBuckets(t, dest, 0, 1, 0, 0, 0)
}

func TestMoveStockByItemAndBox(t *testing.T) {
	f := newFixture(t)
	item, src := f.stocked(t, "ABC1TS001", f.boxA, 10)
	if _, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxB.ID, 1, ""); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	dest, err := MoveStock(f.ctx, f.db, f.storage, MoveInput{
		ItemID: item.ID, FromBoxID: f.boxA.ID, ToBoxID: f.boxB.ID, Quantity: 4, Notes: "reshelved",
	})
	if err != nil {
		t.Fatalf("MoveStock: %v", err)
	}
	assertBuckets(t, dest, 0, 5, 0, 0, 0)
	assertBuckets(t, f.stock(t, src.ID), 0, 6, 0, 0, 0)

	totals, _ := ItemTotals(f.ctx, f.db, item.ID)
	if totals.InStorage != 11 || totals.Total != 11 {
		t.Errorf("expected 11 units in total, got %+v", totals)
	}
}

func TestMoveStockRejectsBadMoves(t *testing.T) {
	f := newFixture(t)
	_, src := f.stocked(t, "ABC1TS001", f.boxA, 3)

	tests := []struct {
		name string
		in   MoveInput
		want error
	}{
		{"insufficient", MoveInput{StockID: src.ID, ToBoxID: f.boxB.ID, Quantity: 4}, ErrInsufficientStock},
		{"same box", MoveInput{StockID: src.ID, ToBoxID: f.boxA.ID, Quantity: 1}, ErrValidation},
		{"unknown box", MoveInput{StockID: src.ID, ToBoxID: 999, Quantity: 1}, ErrNotFound},
		{"no source", MoveInput{ToBoxID: f.boxB.ID, Quantity: 1}, ErrValidation},
		{"zero quantity", MoveInput{StockID: src.ID, ToBoxID: f.boxB.ID}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MoveStock(f.ctx, f.db, f.storage, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	assertBuckets(t, f.stock(t, src.ID), 0, 3, 0, 0, 0)
}

func TestUpdateStockCondition(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 1)

	got, err := UpdateStockCondition(f.ctx, f.db, s.ID, "Fair", "scuffed")
	if err != nil {
		t.Fatalf("UpdateStockCondition: %v", err)
	}
	if got.Condition != model.ConditionFair || got.ConditionNotes != "scuffed" {
		t.Errorf("unexpected condition %q/%q", got.Condition, got.ConditionNotes)
	}
	if _, err := UpdateStockCondition(f.ctx, f.db, s.ID, "mint", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestItemTotalsRepeatable(t *testing.T) {
	f := newFixture(t)
	item, _ := f.stocked(t, "ABC1TS001", f.boxA, 4)
	if _, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxB.ID, 6, ""); err != nil {
		t.Fatalf("AddStock: %v", err)
	}

	first, err := ItemTotals(f.ctx, f.db, item.ID)
	if err != nil {
		t.Fatalf("ItemTotals: %v", err)
	}
	second, _ := ItemTotals(f.ctx, f.db, item.ID)
	if first != second {
		t.Errorf("totals changed between reads: %+v vs %+v", first, second)
	}
	if first.Total != 10 {
		t.Errorf("expected total 10, got %d", first.Total)
	}

	detail, err := GetItemDetail(f.ctx, f.db, item.ID)
	if err != nil {
		t.Fatalf("GetItemDetail: %v", err)
	}
	if detail.Totals != first {
		t.Errorf("detail totals %+v differ from %+v", detail.Totals, first)
	}
}
