package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var pdfColumns = []struct {
	title string
	width float64
	value func(Row) string
}{
	{"Time", 35, func(r Row) string { return r.Start + "-" + r.End }},
	{"Batch", 25, func(r Row) string { return r.Batch }},
	{"Subject", 80, func(r Row) string { return r.Subject }},
	{"Faculty", 70, func(r Row) string { return r.Faculty }},
	{"Resource", 67, func(r Row) string { return r.Resource }},
}

// PDFExporter renders a timetable grouped by day and class.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a landscape A4 document with one section per day.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	days := GroupByDay(data.Rows)
	if len(days) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, "No entries scheduled.", "", 1, "L", false, 0, "")
	}
	for _, day := range days {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 9, string(day.Day), "B", 1, "L", false, 0, "")
		for _, class := range day.Classes {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(0, 7, "Class "+class.Class, "", 1, "L", false, 0, "")

			pdf.SetFont("Arial", "B", 9)
			for _, col := range pdfColumns {
				pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", false, 0, "")
			}
			pdf.Ln(-1)

			pdf.SetFont("Arial", "", 9)
			for _, row := range class.Rows {
				for _, col := range pdfColumns {
					pdf.CellFormat(col.width, 6, col.value(row), "1", 0, "", false, 0, "")
				}
				pdf.Ln(-1)
			}
			pdf.Ln(2)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
