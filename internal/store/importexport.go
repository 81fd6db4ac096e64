package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
)

// ImportColumns are the recognised import headers, in export order.
var ImportColumns = []string{
	"product_code", "description", "period", "season", "unit", "condition", "box_code", "quantity",
}

// ImportRow is one data row of an import sheet. Line is its 1-based row in
// the sheet, so the first data row is line 2.
type ImportRow struct {
	Line        int
	ProductCode string
	Description string
	Period      string
	Season      string
	Unit        string
	Condition   string
	BoxCode     string
	Quantity    string
}

// ImportError describes a rejected row.
type ImportError struct {
	Row         int    `json:"row"`
	ProductCode string `json:"product_code"`
	Error       string `json:"error"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Errors  []ImportError `json:"errors"`
}

// ImportItems creates one item per row, each in its own transaction. Rows
// with a box and quantity also take that stock in as pending. A bad row is
// reported and skipped.
func ImportItems(ctx context.Context, db *sqlx.DB, actor model.Actor, rows []ImportRow) ImportResult {
	res := ImportResult{Errors: []ImportError{}}
	for _, row := range rows {
		err := withTx(ctx, db, "ImportItem", func(ctx context.Context, tx *sqlx.Tx) error {
			return importRow(ctx, tx, actor, row)
		})
		if err == nil {
			res.Success++
			continue
		}
		res.Failed++
		msg := "internal error"
		var se *Error
		if errors.As(err, &se) {
			msg = se.Msg
		}
		res.Errors = append(res.Errors, ImportError{
			Row:         row.Line,
			ProductCode: strings.ToUpper(strings.TrimSpace(row.ProductCode)),
			Error:       msg,
		})
	}
	return res
}

func importRow(ctx context.Context, tx *sqlx.Tx, actor model.Actor, row ImportRow) error {
	if strings.TrimSpace(row.ProductCode) == "" {
		return invalid("product_code is required")
	}

	qty := 0
	if q := strings.TrimSpace(row.Quantity); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return invalid("invalid quantity %q", row.Quantity)
		}
		qty = n
	}
	var box *model.Box
	if strings.TrimSpace(row.BoxCode) != "" {
		var err error
		if box, err = getBoxByCode(ctx, tx, row.BoxCode); err != nil {
			return err
		}
	} else if qty > 0 {
		return invalid("box_code is required when quantity is set")
	}

	id, err := createItem(ctx, tx, actor.UserID, ItemInput{
		ProductCode: row.ProductCode,
		Description: strings.TrimSpace(row.Description),
		Period:      strings.TrimSpace(row.Period),
		Season:      strings.TrimSpace(row.Season),
		Unit:        strings.TrimSpace(row.Unit),
		Condition:   row.Condition,
	})
	if err != nil {
		return err
	}
	if qty > 0 {
		if _, err := intake(ctx, tx, actor.UserID, id, box.ID, qty, "imported"); err != nil {
			return err
		}
	}
	return nil
}

// ExportHeader is the first row of an export.
var ExportHeader = []string{
	"product_code", "brand", "division", "category", "description", "period", "season",
	"unit", "status", "box_code", "condition",
	"pending", "in_storage", "on_borrow", "in_clearance", "seeded", "total",
}

// ExportRow is one flattened (item, box) line of an export.
type ExportRow struct {
	ProductCode     string `db:"product_code"`
	BrandCode       string `db:"brand_code"`
	ProductDivision string `db:"product_division"`
	ProductCategory string `db:"product_category"`
	Description     string `db:"description"`
	Period          string `db:"period"`
	Season          string `db:"season"`
	Unit            string `db:"unit"`
	Status          string `db:"status"`
	BoxCode         string `db:"box_code"`
	Condition       string `db:"condition"`
	Pending         int    `db:"pending"`
	InStorage       int    `db:"in_storage"`
	OnBorrow        int    `db:"on_borrow"`
	InClearance     int    `db:"in_clearance"`
	Seeded          int    `db:"seeded"`
}

// Record renders the row in ExportHeader order with division and category
// codes expanded to names.
func (r ExportRow) Record() []string {
	total := r.Pending + r.InStorage + r.OnBorrow + r.InClearance + r.Seeded
	return []string{
		r.ProductCode, r.BrandCode,
		model.DivisionName(r.ProductDivision), model.CategoryName(r.ProductCategory),
		r.Description, r.Period, r.Season, r.Unit, r.Status, r.BoxCode, r.Condition,
		strconv.Itoa(r.Pending), strconv.Itoa(r.InStorage), strconv.Itoa(r.OnBorrow),
		strconv.Itoa(r.InClearance), strconv.Itoa(r.Seeded), strconv.Itoa(total),
	}
}

// ExportRows returns one row per stock row, plus one bare row for each item
// without stock.
func ExportRows(ctx context.Context, db *sqlx.DB, f ItemFilter) ([]ExportRow, error) {
	query := `SELECT i.product_code, i.brand_code, i.product_division, i.product_category,
	                 i.description, i.period, i.season, i.unit, i.status,
	                 COALESCE(b.code, '') AS box_code,
	                 COALESCE(s.condition, i.condition) AS condition,
	                 COALESCE(s.pending, 0) AS pending,
	                 COALESCE(s.in_storage, 0) AS in_storage,
	                 COALESCE(s.on_borrow, 0) AS on_borrow,
	                 COALESCE(s.in_clearance, 0) AS in_clearance,
	                 COALESCE(s.seeded, 0) AS seeded
	          FROM items i
	          LEFT JOIN item_stock s ON s.item_id = i.id
	          LEFT JOIN boxes b ON b.id = s.box_id
	          WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, f.Status)
	}
	if f.Brand != "" {
		query += ` AND i.brand_code = ?`
		args = append(args, strings.ToUpper(f.Brand))
	}
	query += ` ORDER BY i.product_code, b.code`

	var rows []ExportRow
	if err := sel(ctx, db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("exporting items: %w", err)
	}
	return rows, nil
}
