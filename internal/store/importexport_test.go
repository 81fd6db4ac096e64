package store

import (
	"errors"
	"testing"

	"github.com/erazemk/zaloga/internal/model"
)

func TestImportItemsPerRow(t *testing.T) {
	f := newFixture(t)
	f.item(t, "ABC1TS002")

	res := ImportItems(f.ctx, f.db, f.admin, []ImportRow{
		{Line: 2, ProductCode: "ABC1TS001", Description: "Tee", BoxCode: "a1", Quantity: "4"},
		{Line: 3, ProductCode: "abc1ts002", Description: "Duplicate"},
		{Line: 4, ProductCode: "ABC1TS003", Condition: "Good"},
	})
	if res.Success != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 imported and 1 failed, got %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 3 || res.Errors[0].ProductCode != "ABC1TS002" {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
	if res.Errors[0].Error != "product code ABC1TS002 already exists" {
		t.Errorf("unexpected message %q", res.Errors[0].Error)
	}

	items, _ := ListItems(f.ctx, f.db, ItemFilter{Search: "abc1ts001"})
	if len(items) != 1 || items[0].Status != model.ItemStatusPendingApproval {
		t.Fatalf("expected imported pending item, got %+v", items)
	}
	rows, _ := ListItemStock(f.ctx, f.db, items[0].ID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 stock row, got %d", len(rows))
	}
	assertBuckets(t, &rows[0], 4, 0, 0, 0, 0)
}

func TestImportRowValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		row  ImportRow
		want string
	}{
		{"missing code", ImportRow{}, "product_code is required"},
		{"bad quantity", ImportRow{ProductCode: "ABC1TS001", BoxCode: "A1", Quantity: "two"}, `invalid quantity "two"`},
		{"unknown box", ImportRow{ProductCode: "ABC1TS001", BoxCode: "ZZ", Quantity: "1"}, `box "ZZ" not found`},
		{"quantity without box", ImportRow{ProductCode: "ABC1TS001", Quantity: "1"}, "box_code is required when quantity is set"},
		{"bad condition", ImportRow{ProductCode: "ABC1TS001", Condition: "mint"}, `invalid condition "mint"`},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.row.Line = i + 2
			res := ImportItems(f.ctx, f.db, f.admin, []ImportRow{tt.row})
			if res.Failed != 1 || res.Errors[0].Error != tt.want {
				t.Errorf("expected %q, got %+v", tt.want, res)
			}
		})
	}
	if _, err := GetItem(f.ctx, f.db, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("failed rows must not leave items behind, got %v", err)
	}
}

func TestExportRows(t *testing.T) {
	f := newFixture(t)
	item, _ := f.stocked(t, "ABC1TS001", f.boxA, 3)
	if _, err := AddStock(f.ctx, f.db, f.storage, item.ID, f.boxB.ID, 2, ""); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	f.item(t, "XYZ2PA001")

	rows, err := ExportRows(f.ctx, f.db, ItemFilter{})
	if err != nil {
		t.Fatalf("ExportRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	rec := rows[0].Record()
	if len(rec) != len(ExportHeader) {
		t.Fatalf("record has %d fields, header %d", len(rec), len(ExportHeader))
	}
	if rec[0] != "ABC1TS001" || rec[2] != model.DivisionName("1") || rec[3] != "T-Shirts" || rec[9] != "A1" || rec[11] != "0" || rec[12] != "3" {
		t.Errorf("unexpected record %v", rec)
	}
	if bare := rows[2].Record(); bare[9] != "" || bare[16] != "0" || bare[3] != "Pants" {
		t.Errorf("unexpected bare record %v", bare)
	}

	approved, _ := ExportRows(f.ctx, f.db, ItemFilter{Status: model.ItemStatusApproved})
	if len(approved) != 2 {
		t.Errorf("expected 2 approved rows, got %d", len(approved))
	}
}
