package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/erazemk/zaloga/internal/model"
)

func TestClearanceFormPDF(t *testing.T) {
	approved := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	form := &model.ClearanceForm{
		FormNumber: "CF-20260302-7",
		Status:     model.ClearanceApproved,
		Notes:      "Winter leftovers",
		CreatedAt:  approved.Add(-time.Hour),
		ApprovedAt: &approved,
		Items: []model.ClearanceFormItem{
			{ProductCode: "ABC1TS001", Description: "Logo tee", BoxCode: "A1", Quantity: 4, Reason: "faded"},
			{ProductCode: "ABC1JK002", Description: "Rain jacket with a description long enough to be cut", BoxCode: "B1", Quantity: 1},
		},
	}

	var buf bytes.Buffer
	if err := ClearanceForm(&buf, form); err != nil {
		t.Fatalf("ClearanceForm: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", buf.Bytes()[:min(buf.Len(), 16)])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate long = %q", got)
	}
}
