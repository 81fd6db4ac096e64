package store

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/model"
)

func (f *fixture) clearanceForm(t *testing.T, lines ...ClearanceLineInput) *model.ClearanceForm {
	t.Helper()
	form, err := CreateClearanceForm(f.ctx, f.db, f.storage, ClearanceInput{Notes: "season end", Items: lines})
	if err != nil {
		t.Fatalf("CreateClearanceForm: %v", err)
	}
	return form
}

// approvedForm walks a new form up to approved with a scan attached.
func (f *fixture) approvedForm(t *testing.T, blobs blob.Store, lines ...ClearanceLineInput) *model.ClearanceForm {
	t.Helper()
	form := f.clearanceForm(t, lines...)
	if _, err := SubmitClearanceForm(f.ctx, f.db, f.storage, form.ID); err != nil {
		t.Fatalf("SubmitClearanceForm: %v", err)
	}
	if _, err := ApproveClearanceForm(f.ctx, f.db, f.storage, form.ID); err != nil {
		t.Fatalf("ApproveClearanceForm: %v", err)
	}
	form, err := AttachClearanceScan(f.ctx, f.db, blobs, form.ID, []byte("%PDF-1.4"), "application/pdf", ".pdf")
	if err != nil {
		t.Fatalf("AttachClearanceScan: %v", err)
	}
	return form
}

func TestClearanceRejectRevertsStock(t *testing.T) {
	f := newFixture(t)
	item, s := f.stocked(t, "ABC1TS001", f.boxA, 20)

	form := f.clearanceForm(t, ClearanceLineInput{StockID: s.ID, Quantity: 5, Reason: "faded"})
	if form.Status != model.ClearanceDraft || !strings.HasPrefix(form.FormNumber, "CF-") {
		t.Errorf("unexpected new form %+v", form)
	}
	if len(form.Items) != 1 || form.Items[0].BoxCode != "A1" || form.Items[0].ProductCode != "ABC1TS001" {
		t.Errorf("unexpected form lines %+v", form.Items)
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 15, 0, 5, 0)

	if _, err := SubmitClearanceForm(f.ctx, f.db, f.storage, form.ID); err != nil {
		t.Fatalf("SubmitClearanceForm: %v", err)
	}
	if _, err := RejectClearanceForm(f.ctx, f.db, f.storage, form.ID, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation without reason, got %v", err)
	}
	form, err := RejectClearanceForm(f.ctx, f.db, f.storage, form.ID, "keep them")
	if err != nil {
		t.Fatalf("RejectClearanceForm: %v", err)
	}
	if form.Status != model.ClearanceRejected {
		t.Errorf("expected rejected, got %q", form.Status)
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 20, 0, 0, 0)

	ms := f.movements(t, MovementFilter{ItemID: item.ID, MovementType: model.MovementAdjustment})
	if len(ms) != 1 || ms[0].FromState != model.StateClearance || ms[0].ToState != model.StateStorage || ms[0].Quantity != 5 {
		t.Errorf("unexpected adjustment movements %+v", ms)
	}
}

func TestClearanceApprovalRoles(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 5)
	clerk := f.actor(t, "clerk", model.RoleStorageMaster, "logistics")
	manager := f.actor(t, "boss", model.RoleManager, "sales")

	form := f.clearanceForm(t, ClearanceLineInput{StockID: s.ID, Quantity: 1})
	if _, err := ApproveClearanceForm(f.ctx, f.db, manager, form.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict approving a draft, got %v", err)
	}
	if _, err := SubmitClearanceForm(f.ctx, f.db, clerk, form.ID); err != nil {
		t.Fatalf("SubmitClearanceForm: %v", err)
	}
	if _, err := ApproveClearanceForm(f.ctx, f.db, clerk, form.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for storage-master, got %v", err)
	}
	got, err := ApproveClearanceForm(f.ctx, f.db, manager, form.ID)
	if err != nil {
		t.Fatalf("ApproveClearanceForm: %v", err)
	}
	if got.Status != model.ClearanceApproved || got.ApprovedBy == nil || *got.ApprovedBy != manager.UserID {
		t.Errorf("unexpected approved form %+v", got)
	}

	got, err = MarkClearancePDFGenerated(f.ctx, f.db, clerk, form.ID)
	if err != nil {
		t.Fatalf("MarkClearancePDFGenerated: %v", err)
	}
	if !got.PDFGenerated || got.PDFGeneratedAt == nil {
		t.Errorf("expected pdf_generated, got %+v", got)
	}
}

func TestClearanceCreateValidation(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 3)

	tests := []struct {
		name  string
		lines []ClearanceLineInput
		want  error
	}{
		{"no lines", nil, ErrValidation},
		{"duplicate", []ClearanceLineInput{{StockID: s.ID, Quantity: 1}, {StockID: s.ID, Quantity: 1}}, ErrValidation},
		{"too many", []ClearanceLineInput{{StockID: s.ID, Quantity: 4}}, ErrInsufficientStock},
		{"missing stock", []ClearanceLineInput{{StockID: 999, Quantity: 1}}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateClearanceForm(f.ctx, f.db, f.storage, ClearanceInput{Items: tt.lines})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	forms, _ := ListClearanceForms(f.ctx, f.db, "")
	if len(forms) != 0 {
		t.Errorf("failed creations left %d forms behind", len(forms))
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 3, 0, 0, 0)
}

func TestDeleteDraftClearanceForm(t *testing.T) {
	f := newFixture(t)
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 5)

	form := f.clearanceForm(t, ClearanceLineInput{StockID: s.ID, Quantity: 5})
	// The row holds only in_clearance now and must survive.
	assertBuckets(t, f.stock(t, s.ID), 0, 0, 0, 5, 0)

	if err := DeleteClearanceForm(f.ctx, f.db, f.storage, form.ID); err != nil {
		t.Fatalf("DeleteClearanceForm: %v", err)
	}
	assertBuckets(t, f.stock(t, s.ID), 0, 5, 0, 0, 0)
	if _, err := GetClearanceForm(f.ctx, f.db, form.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	form = f.clearanceForm(t, ClearanceLineInput{StockID: s.ID, Quantity: 1})
	SubmitClearanceForm(f.ctx, f.db, f.storage, form.ID)
	if err := DeleteClearanceForm(f.ctx, f.db, f.storage, form.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict deleting a submitted form, got %v", err)
	}
}

func TestProcessClearanceForm(t *testing.T) {
	f := newFixture(t)
	blobs := blob.NewMemory()
	kept, keptStock := f.stocked(t, "ABC1TS001", f.boxA, 10)
	gone, goneStock := f.stocked(t, "ABC1TS002", f.boxA, 3)
	img, err := AddItemImage(f.ctx, f.db, blobs, gone.ID, []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("AddItemImage: %v", err)
	}

	form := f.clearanceForm(t,
		ClearanceLineInput{StockID: keptStock.ID, Quantity: 4, Reason: "faded"},
		ClearanceLineInput{StockID: goneStock.ID, Quantity: 3, Reason: "torn"},
	)
	SubmitClearanceForm(f.ctx, f.db, f.storage, form.ID)
	ApproveClearanceForm(f.ctx, f.db, f.storage, form.ID)

	if _, err := ProcessClearanceForm(f.ctx, f.db, blobs, f.storage, form.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict without a scan, got %v", err)
	}
	if _, err := AttachClearanceScan(f.ctx, f.db, blobs, form.ID, []byte("%PDF"), "application/pdf", ".pdf"); err != nil {
		t.Fatalf("AttachClearanceScan: %v", err)
	}

	form, err = ProcessClearanceForm(f.ctx, f.db, blobs, f.storage, form.ID)
	if err != nil {
		t.Fatalf("ProcessClearanceForm: %v", err)
	}
	if form.Status != model.ClearanceProcessed || form.ProcessedAt == nil {
		t.Errorf("unexpected processed form %+v", form)
	}

	assertBuckets(t, f.stock(t, keptStock.ID), 0, 6, 0, 0, 0)
	ms := f.movements(t, MovementFilter{ItemID: kept.ID, MovementType: model.MovementClearance})
	if len(ms) != 2 || ms[0].FromState != model.StateClearance || ms[0].ToState != model.StateCleared {
		t.Errorf("unexpected clearance movements %+v", ms)
	}

	// The fully cleared item is purged with its dependents.
	if _, err := GetItem(f.ctx, f.db, gone.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected cleared item to be deleted, got %v", err)
	}
	if blobs.Has(img.BlobKey) {
		t.Error("expected image blob of purged item to be deleted")
	}
	if ms := f.movements(t, MovementFilter{ItemID: gone.ID}); len(ms) != 0 {
		t.Errorf("expected purged item's movements to be gone, got %d", len(ms))
	}

	cleared, err := ListClearedItems(f.ctx, f.db, form.ID)
	if err != nil {
		t.Fatalf("ListClearedItems: %v", err)
	}
	if len(cleared) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(cleared))
	}
	for _, c := range cleared {
		if c.FormNumber != form.FormNumber || c.BoxCode != "A1" {
			t.Errorf("unexpected snapshot %+v", c)
		}
		if c.ItemID == gone.ID && (c.ProductCode != "ABC1TS002" || c.Quantity != 3 || c.Reason != "torn") {
			t.Errorf("unexpected snapshot of purged item %+v", c)
		}
	}

	if _, err := ProcessClearanceForm(f.ctx, f.db, blobs, f.storage, form.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict processing twice, got %v", err)
	}
}

func TestProcessClearanceReportsEveryBadLine(t *testing.T) {
	f := newFixture(t)
	blobs := blob.NewMemory()
	a, sa := f.stocked(t, "ABC1TS001", f.boxA, 5)
	b, sb := f.stocked(t, "ABC1TS002", f.boxA, 5)

	form := f.approvedForm(t, blobs,
		ClearanceLineInput{StockID: sa.ID, Quantity: 2},
		ClearanceLineInput{StockID: sb.ID, Quantity: 2},
	)
	results := BulkRevertClearance(f.ctx, f.db, f.storage, []BulkRevertInput{{ItemID: a.ID}, {ItemID: b.ID, Quantity: 1}})
	for _, r := range results {
		if !r.Success {
			t.Fatalf("BulkRevertClearance: %+v", r)
		}
	}

	_, err := ProcessClearanceForm(f.ctx, f.db, blobs, f.storage, form.ID)
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("expected ProcessError to classify as ErrValidation")
	}
	if len(pe.Lines) != 2 {
		t.Fatalf("expected both lines reported, got %+v", pe.Lines)
	}
	if pe.Lines[0].LineID != form.Items[0].ID || pe.Lines[1].LineID != form.Items[1].ID {
		t.Errorf("unexpected line ids %+v", pe.Lines)
	}

	// Nothing changed.
	got, _ := GetClearanceForm(f.ctx, f.db, form.ID)
	if got.Status != model.ClearanceApproved {
		t.Errorf("expected form to stay approved, got %q", got.Status)
	}
	assertBuckets(t, f.stock(t, sb.ID), 0, 4, 0, 1, 0)
}

func TestClearanceScan(t *testing.T) {
	f := newFixture(t)
	blobs := blob.NewMemory()
	_, s := f.stocked(t, "ABC1TS001", f.boxA, 5)

	draft := f.clearanceForm(t, ClearanceLineInput{StockID: s.ID, Quantity: 1})
	if _, err := AttachClearanceScan(f.ctx, f.db, blobs, draft.ID, []byte("x"), "application/pdf", ".pdf"); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict attaching to a draft, got %v", err)
	}
	if _, _, err := OpenClearanceScan(f.ctx, f.db, blobs, draft.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound without a scan, got %v", err)
	}

	form := f.approvedForm(t, blobs, ClearanceLineInput{StockID: s.ID, Quantity: 1})
	if !form.HasScanned {
		t.Fatal("expected form to report a scan")
	}
	first := form.ScannedFileKey
	form, err := AttachClearanceScan(f.ctx, f.db, blobs, form.ID, []byte("second"), "image/png", ".png")
	if err != nil {
		t.Fatalf("AttachClearanceScan: %v", err)
	}
	if blobs.Has(first) {
		t.Error("expected replaced scan to be deleted")
	}

	rc, ct, err := OpenClearanceScan(f.ctx, f.db, blobs, form.ID)
	if err != nil {
		t.Fatalf("OpenClearanceScan: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" || ct != "image/png" {
		t.Errorf("unexpected scan %q (%s)", data, ct)
	}
}

func TestBulkClearanceDrawsPendingFirst(t *testing.T) {
	f := newFixture(t)
	unapproved := f.item(t, "ABC1TS001")
	ps, err := AddStock(f.ctx, f.db, f.storage, unapproved.ID, f.boxA.ID, 3, "")
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	approved, ss := f.stocked(t, "ABC1TS002", f.boxA, 5)

	results := BulkClearance(f.ctx, f.db, f.storage, []BulkClearanceInput{
		{ItemID: unapproved.ID, Quantity: 2, Reason: "sample"},
		{ItemID: approved.ID, Quantity: 4, Reason: "sample"},
		{ItemID: approved.ID, Quantity: 2, Reason: "too many"},
		{ItemID: 999, Quantity: 1},
	})
	want := []bool{true, true, false, false}
	for i, r := range results {
		if r.Success != want[i] {
			t.Errorf("result %d: expected success=%v, got %+v", i, want[i], r)
		}
	}
	assertBuckets(t, f.stock(t, ps.ID), 1, 0, 0, 2, 0)
	assertBuckets(t, f.stock(t, ss.ID), 0, 1, 0, 4, 0)

	var records []model.ItemClearance
	if err := sel(f.ctx, f.db, &records,
		`SELECT id, item_id, stock_id, quantity, from_pending, from_storage, reason, created_by, created_at
		 FROM item_clearances ORDER BY id`); err != nil {
		t.Fatalf("loading item clearances: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 clearance records, got %d", len(records))
	}
	if records[0].FromPending != 2 || records[0].FromStorage != 0 {
		t.Errorf("unexpected split %+v", records[0])
	}
	if records[1].FromPending != 0 || records[1].FromStorage != 4 {
		t.Errorf("unexpected split %+v", records[1])
	}

	ms := f.movements(t, MovementFilter{ItemID: unapproved.ID, MovementType: model.MovementClearance})
	if len(ms) != 1 || ms[0].FromState != model.StatePending || ms[0].ReferenceType != model.RefItemClearance {
		t.Errorf("unexpected movements %+v", ms)
	}

	results = BulkRevertClearance(f.ctx, f.db, f.storage, []BulkRevertInput{{ItemID: approved.ID, Quantity: 5}, {ItemID: approved.ID}})
	if results[0].Success || !results[1].Success {
		t.Errorf("unexpected revert results %+v", results)
	}
	assertBuckets(t, f.stock(t, ss.ID), 0, 5, 0, 0, 0)
}
