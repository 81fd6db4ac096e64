// Package sheet reads and writes the tabular files used for item import and
// export. CSV and XLSX are supported.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Formats.
const (
	CSV  = "csv"
	XLSX = "xlsx"
)

// ErrUnsupported is returned for files that are neither CSV nor XLSX.
var ErrUnsupported = errors.New("unsupported file format, use .csv or .xlsx")

// FormatOf returns the format implied by a file name.
func FormatOf(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return CSV, nil
	case ".xlsx":
		return XLSX, nil
	}
	return "", ErrUnsupported
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	if format == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Record is one data row keyed by lower-cased header name. Line is the
// 1-based row number in the file; the header is line 1.
type Record struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of column name.
func (r Record) Get(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Read parses a whole file into records. Blank rows are skipped but still
// counted for line numbers.
func Read(r io.Reader, format string) ([]Record, error) {
	var rows [][]string
	var err error
	switch format {
	case CSV:
		rows, err = readCSV(r)
	case XLSX:
		rows, err = readXLSX(r)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := Record{Line: i + 2, Fields: make(map[string]string, len(header))}
		for j, name := range header {
			if name == "" || j >= len(row) {
				continue
			}
			rec.Fields[name] = row[j]
		}
		records = append(records, rec)
	}
	return records, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// Write renders header and rows to w in format.
func Write(w io.Writer, format string, header []string, rows [][]string) error {
	switch format {
	case CSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
		return nil
	case XLSX:
		return writeXLSX(w, header, rows)
	}
	return ErrUnsupported
}

const exportSheet = "Items"

func writeXLSX(w io.Writer, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("creating stream writer: %w", err)
	}

	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing xlsx: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}
