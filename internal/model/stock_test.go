package model

import (
	"testing"
	"time"
)

func TestBucketRoundTrip(t *testing.T) {
	var s ItemStock
	for i, b := range Buckets {
		s.Set(b, i+1)
	}
	for i, b := range Buckets {
		if got := s.Get(b); got != i+1 {
			t.Errorf("Get(%s) = %d, want %d", b, got, i+1)
		}
		if b.State() == StateNone {
			t.Errorf("bucket %s has no movement state", b)
		}
	}
	if s.Total() != 15 || s.Empty() {
		t.Errorf("Total = %d, Empty = %v", s.Total(), s.Empty())
	}
	if Bucket("lost").Valid() {
		t.Error("unknown bucket reported valid")
	}

	var totals StockTotals
	totals.Add(s)
	totals.Add(ItemStock{InStorage: 5})
	if totals.InStorage != 7 || totals.Total != 20 {
		t.Errorf("totals = %+v", totals)
	}
}

func TestBorrowOverdue(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		status string
		due    *time.Time
		want   bool
	}{
		{BorrowActive, &past, true},
		{BorrowPendingExtension, &past, true},
		{BorrowActive, &future, false},
		{BorrowActive, nil, false},
		{BorrowComplete, &past, false},
		{BorrowPendingStorage, &past, false},
	}
	for _, tt := range tests {
		b := BorrowRequest{Status: tt.status, DueDate: tt.due}
		if got := b.IsOverdue(now); got != tt.want {
			t.Errorf("%s due %v: IsOverdue = %v, want %v", tt.status, tt.due, got, tt.want)
		}
	}
}
