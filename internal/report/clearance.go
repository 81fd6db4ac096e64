// Package report renders printable documents.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/erazemk/zaloga/internal/model"
)

var columns = []struct {
	title string
	width float64
	align string
}{
	{"#", 8, "R"},
	{"Product code", 32, "L"},
	{"Description", 60, "L"},
	{"Box", 20, "L"},
	{"Qty", 14, "R"},
	{"Reason", 46, "L"},
}

// ClearanceForm writes the printable version of form to w. The signed
// printout is what gets scanned and attached before processing.
func ClearanceForm(w io.Writer, form *model.ClearanceForm) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Clearance form "+form.FormNumber, true)
	pdf.SetCreator("zaloga", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("cp1252")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s - page %d/{nb}", form.FormNumber, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Clearance form "+form.FormNumber, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	meta := [][2]string{
		{"Status", form.Status},
		{"Created", form.CreatedAt.Format("2006-01-02")},
	}
	if form.ApprovedAt != nil {
		meta = append(meta, [2]string{"Approved", form.ApprovedAt.Format("2006-01-02")})
	}
	if form.Notes != "" {
		meta = append(meta, [2]string{"Notes", form.Notes})
	}
	for _, m := range meta {
		pdf.CellFormat(30, 6, m[0]+":", "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, tr(m[1]), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range columns {
		pdf.CellFormat(c.width, 7, c.title, "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	total := 0
	for i, line := range form.Items {
		values := []string{
			strconv.Itoa(i + 1),
			line.ProductCode,
			truncate(line.Description, 40),
			line.BoxCode,
			strconv.Itoa(line.Quantity),
			truncate(line.Reason, 30),
		}
		for j, c := range columns {
			pdf.CellFormat(c.width, 6, tr(values[j]), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
		total += line.Quantity
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(120, 6, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(14, 6, strconv.Itoa(total), "1", 0, "R", false, 0, "")
	pdf.CellFormat(46, 6, "", "1", 1, "L", false, 0, "")

	pdf.Ln(20)
	pdf.SetFont("Helvetica", "", 10)
	for _, who := range []string{"Prepared by", "Approved by"} {
		pdf.CellFormat(85, 6, who+": ______________________", "", 0, "L", false, 0, "")
	}
	pdf.Ln(10)
	pdf.CellFormat(0, 6, "Printed "+time.Now().UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering clearance form: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
