package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"clasutil/models"
)

const xlsxSheet = "Rooms"

// XLSXWriter writes current room statuses to an Excel workbook.
// The workbook is saved to disk on Close.
type XLSXWriter struct {
	mu   sync.Mutex
	path string
	file *excelize.File
	row  int
}

// NewXLSXWriter prepares a workbook with a header row.
func NewXLSXWriter(path string) (*XLSXWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("xlsx: create output dir: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	w := &XLSXWriter{path: path, file: f, row: 1}
	header := make([]interface{}, len(statusHeader))
	for i, h := range statusHeader {
		header[i] = h
	}
	if err := w.writeRow(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// WriteStatuses appends one row per room.
func (x *XLSXWriter) WriteStatuses(rooms []*models.RoomStatus) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range rooms {
		cells := statusRow(r)
		row := make([]interface{}, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		if err := x.writeRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (x *XLSXWriter) writeRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return fmt.Errorf("xlsx: cell name: %w", err)
	}
	if err := x.file.SetSheetRow(xlsxSheet, cell, &values); err != nil {
		return fmt.Errorf("xlsx: write row %d: %w", x.row, err)
	}
	x.row++
	return nil
}

// Close saves the workbook and releases it.
func (x *XLSXWriter) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.file.SaveAs(x.path); err != nil {
		_ = x.file.Close()
		return fmt.Errorf("xlsx: save %q: %w", x.path, err)
	}
	return x.file.Close()
}
