package export

import (
	"fmt"

	"github.com/gocarina/gocsv"
)

// CSVExporter renders datasets as CSV with a header row.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes for the dataset rows.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	rows := data.Rows
	if rows == nil {
		rows = []Row{}
	}
	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal csv rows: %w", err)
	}
	return []byte(out), nil
}

// ParseCSV reads rows previously written by Render.
func ParseCSV(data []byte) ([]Row, error) {
	var rows []Row
	if err := gocsv.UnmarshalString(string(data), &rows); err != nil {
		return nil, fmt.Errorf("unmarshal csv rows: %w", err)
	}
	return rows, nil
}
