package store

import (
	"errors"
	"io"
	"testing"

	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/model"
)

func TestCreateAndGetItem(t *testing.T) {
	f := newFixture(t)

	item, err := CreateItem(f.ctx, f.db, f.admin, ItemInput{ProductCode: " abc1ts001 ", Description: "Logo tee"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.ProductCode != "ABC1TS001" {
		t.Errorf("expected normalized code, got %q", item.ProductCode)
	}
	if item.BrandCode != "ABC" || item.ProductDivision != "1" || item.ProductCategory != "TS" {
		t.Errorf("unexpected parsed code %q/%q/%q", item.BrandCode, item.ProductDivision, item.ProductCategory)
	}
	if item.Status != model.ItemStatusPendingApproval {
		t.Errorf("expected status pending_approval, got %q", item.Status)
	}

	if _, err := CreateItem(f.ctx, f.db, f.admin, ItemInput{ProductCode: "ABC1TS001"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for duplicate code, got %v", err)
	}
	if _, err := CreateItem(f.ctx, f.db, f.admin, ItemInput{ProductCode: "AB-1"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for bad code, got %v", err)
	}
	if _, err := GetItem(f.ctx, f.db, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListItemsFiltered(t *testing.T) {
	f := newFixture(t)
	f.item(t, "ABC1TS001")
	f.item(t, "ABC2PA001")
	f.stocked(t, "XYZ1TS001", f.boxA, 1)

	tests := []struct {
		name   string
		filter ItemFilter
		want   int
	}{
		{"all", ItemFilter{}, 3},
		{"approved", ItemFilter{Status: model.ItemStatusApproved}, 1},
		{"brand", ItemFilter{Brand: "abc"}, 2},
		{"category", ItemFilter{Category: "ts"}, 2},
		{"search", ItemFilter{Search: "pa0"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ListItems(f.ctx, f.db, tt.filter)
			if err != nil {
				t.Fatalf("ListItems: %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("expected %d items, got %d", tt.want, len(items))
			}
		})
	}
}

func TestUpdateItemKeepsProductCode(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "ABC1TS001")

	got, err := UpdateItem(f.ctx, f.db, item.ID, ItemInput{Description: "Renamed", Condition: "fair"})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if got.Description != "Renamed" || got.Condition != model.ConditionFair {
		t.Errorf("unexpected item %+v", got)
	}

	_, err = UpdateItem(f.ctx, f.db, item.ID, ItemInput{ProductCode: "ABC1TS002"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation changing the product code, got %v", err)
	}
}

func TestApproveAndRejectItem(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "ABC1TS001")

	if _, err := RejectItem(f.ctx, f.db, f.admin, item.ID, " "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation without reason, got %v", err)
	}
	got, err := ApproveItem(f.ctx, f.db, f.admin, item.ID)
	if err != nil {
		t.Fatalf("ApproveItem: %v", err)
	}
	if got.Status != model.ItemStatusApproved || got.ApprovedBy == nil || *got.ApprovedBy != f.admin.UserID {
		t.Errorf("unexpected approved item %+v", got)
	}
	if _, err := ApproveItem(f.ctx, f.db, f.admin, item.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict approving twice, got %v", err)
	}
	if _, err := RejectItem(f.ctx, f.db, f.admin, item.ID, "late"); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected ErrStateConflict rejecting an approved item, got %v", err)
	}

	events, err := ListItemEvents(f.ctx, f.db, item.ID)
	if err != nil {
		t.Fatalf("ListItemEvents: %v", err)
	}
	if len(events) != 2 || events[0].Action != model.ItemEventCreated || events[1].Action != model.ItemEventApproved {
		t.Errorf("unexpected events %+v", events)
	}
	if events[1].ActorName != "admin" {
		t.Errorf("expected actor name 'admin', got %q", events[1].ActorName)
	}
}

func TestBulkApproveItems(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "ABC1TS001")
	b := f.item(t, "ABC1TS002")
	if _, err := ApproveItem(f.ctx, f.db, f.admin, b.ID); err != nil {
		t.Fatalf("ApproveItem: %v", err)
	}

	results := BulkApproveItems(f.ctx, f.db, f.admin, []int64{a.ID, b.ID, 999})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("expected first item approved, got %+v", results[0])
	}
	if results[1].Success || results[1].Error == "" {
		t.Errorf("expected already-approved item to fail, got %+v", results[1])
	}
	if results[2].Success || results[2].Error != "item 999 not found" {
		t.Errorf("expected missing item to fail, got %+v", results[2])
	}
}

func TestDeleteItemRequiresNoStock(t *testing.T) {
	f := newFixture(t)
	blobs := blob.NewMemory()
	item, s := f.stocked(t, "ABC1TS001", f.boxA, 1)

	if err := DeleteItem(f.ctx, f.db, blobs, item.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	img, err := AddItemImage(f.ctx, f.db, blobs, item.ID, []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("AddItemImage: %v", err)
	}
	if _, err := AdjustStock(f.ctx, f.db, f.storage, s.ID, model.BucketInStorage, -1, "gone"); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if err := DeleteItem(f.ctx, f.db, blobs, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := GetItem(f.ctx, f.db, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if blobs.Has(img.BlobKey) {
		t.Error("expected image blob to be deleted with the item")
	}
}

func TestItemImages(t *testing.T) {
	f := newFixture(t)
	blobs := blob.NewMemory()
	item := f.item(t, "ABC1TS001")

	first, err := AddItemImage(f.ctx, f.db, blobs, item.ID, []byte("one"), "image/jpeg")
	if err != nil {
		t.Fatalf("AddItemImage: %v", err)
	}
	second, _ := AddItemImage(f.ctx, f.db, blobs, item.ID, []byte("two"), "image/jpeg")
	if first.Position != 0 || second.Position != 1 {
		t.Errorf("unexpected positions %d, %d", first.Position, second.Position)
	}

	rc, ct, err := OpenItemImage(f.ctx, f.db, blobs, item.ID, second.ID)
	if err != nil {
		t.Fatalf("OpenItemImage: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "two" || ct != "image/jpeg" {
		t.Errorf("unexpected image %q (%s)", data, ct)
	}

	if err := DeleteItemImage(f.ctx, f.db, blobs, item.ID, first.ID); err != nil {
		t.Fatalf("DeleteItemImage: %v", err)
	}
	if blobs.Has(first.BlobKey) {
		t.Error("expected blob to be deleted")
	}
	if _, _, err := OpenItemImage(f.ctx, f.db, blobs, item.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	images, _ := ListItemImages(f.ctx, f.db, item.ID)
	if len(images) != 1 {
		t.Errorf("expected 1 image left, got %d", len(images))
	}
}
