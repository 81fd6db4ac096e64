package store

import (
	"errors"
	"testing"
)

func TestBoxCodesAreNormalisedAndUnique(t *testing.T) {
	f := newFixture(t)

	box, err := CreateBox(f.ctx, f.db, " c7 ", "top shelf", "Annex")
	if err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	if box.Code != "C7" {
		t.Errorf("code = %q, want C7", box.Code)
	}
	if _, err := CreateBox(f.ctx, f.db, "C7", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate code: got %v, want ErrValidation", err)
	}
	if _, err := CreateBox(f.ctx, f.db, "  ", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("blank code: got %v, want ErrValidation", err)
	}

	annex, err := ListBoxes(f.ctx, f.db, "Annex")
	if err != nil {
		t.Fatalf("ListBoxes: %v", err)
	}
	if len(annex) != 1 || annex[0].ID != box.ID {
		t.Errorf("ListBoxes(Annex) = %+v", annex)
	}
}

func TestDeleteBoxWithStockFails(t *testing.T) {
	f := newFixture(t)
	f.stocked(t, "ABC1PA001", f.boxA, 3)

	if err := DeleteBox(f.ctx, f.db, f.boxA.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("got %v, want ErrStateConflict", err)
	}
	rows, err := GetBoxStock(f.ctx, f.db, f.boxA.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetBoxStock = %d rows, %v", len(rows), err)
	}

	if err := DeleteBox(f.ctx, f.db, f.boxB.ID); err != nil {
		t.Fatalf("DeleteBox empty: %v", err)
	}
	if _, err := GetBox(f.ctx, f.db, f.boxB.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted box still visible: %v", err)
	}
	if err := UpdateBox(f.ctx, f.db, f.boxB.ID, "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update deleted box: got %v, want ErrNotFound", err)
	}
}
