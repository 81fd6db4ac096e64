package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

type fixture struct {
	ctx context.Context
	db  *sqlx.DB

	admin   model.Actor
	storage model.Actor
	boxA    *model.Box
	boxB    *model.Box
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), db: db.NewTestDB(t)}
	f.admin = f.actor(t, "admin", model.RoleAdmin, "")
	f.storage = f.actor(t, "keeper", model.RoleStorageMasterManager, "logistics")

	var err error
	if f.boxA, err = CreateBox(f.ctx, f.db, "A1", "", "Warehouse"); err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	if f.boxB, err = CreateBox(f.ctx, f.db, "B1", "", "Warehouse"); err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	return f
}

func (f *fixture) actor(t *testing.T, name string, role model.Role, department string) model.Actor {
	t.Helper()
	u, err := CreateUser(f.ctx, f.db, name, "hash", role, department)
	if err != nil {
		t.Fatalf("CreateUser %s: %v", name, err)
	}
	return model.Actor{UserID: u.ID, Username: u.Username, Role: u.Role, Department: u.Department}
}

// item creates an unapproved item.
func (f *fixture) item(t *testing.T, code string) *model.Item {
	t.Helper()
	item, err := CreateItem(f.ctx, f.db, f.admin, ItemInput{ProductCode: code, Description: "Item " + code, Condition: "good"})
	if err != nil {
		t.Fatalf("CreateItem %s: %v", code, err)
	}
	return item
}

// stocked creates an approved item holding qty in_storage in box.
func (f *fixture) stocked(t *testing.T, code string, box *model.Box, qty int) (*model.Item, *model.ItemStock) {
	t.Helper()
	item := f.item(t, code)
	if _, err := ApproveItem(f.ctx, f.db, f.admin, item.ID); err != nil {
		t.Fatalf("ApproveItem: %v", err)
	}
	s, err := AddStock(f.ctx, f.db, f.storage, item.ID, box.ID, qty, "")
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	return item, s
}

func (f *fixture) stock(t *testing.T, id int64) *model.ItemStock {
	t.Helper()
	s, err := GetStock(f.ctx, f.db, id)
	if err != nil {
		t.Fatalf("GetStock %d: %v", id, err)
	}
	return s
}

func (f *fixture) movements(t *testing.T, filter MovementFilter) []model.StockMovement {
	t.Helper()
	ms, err := ListMovements(f.ctx, f.db, filter)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	return ms
}

func assertBuckets(t *testing.T, s *model.ItemStock, pending, inStorage, onBorrow, inClearance, seeded int) {
	t.Helper()
	if s.Pending != pending || s.InStorage != inStorage || s.OnBorrow != onBorrow ||
		s.InClearance != inClearance || s.Seeded != seeded {
		t.Errorf("buckets = %d/%d/%d/%d/%d, want %d/%d/%d/%d/%d",
			s.Pending, s.InStorage, s.OnBorrow, s.InClearance, s.Seeded,
			pending, inStorage, onBorrow, inClearance, seeded)
	}
}
