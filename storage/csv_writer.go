package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clasutil/models"
)

var statusHeader = []string{"room_name", "status", "timestamp", "building", "floor", "class_type"}

// CSVWriter writes current room statuses to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(statusHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteStatuses appends one row per room.
func (c *CSVWriter) WriteStatuses(rooms []*models.RoomStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rooms {
		if err := c.writer.Write(statusRow(r)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func statusRow(r *models.RoomStatus) []string {
	return []string{
		r.RoomName,
		r.Status,
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Building,
		r.Floor,
		r.ClassType,
	}
}
