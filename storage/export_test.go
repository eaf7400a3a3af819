package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCSVWriter_WritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rooms.csv")

	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStatuses(sampleBatch()))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, statusHeader, records[0])
	assert.Equal(t, []string{"Room A", "occupied", "2026-03-01T09:00:00Z", "North Hall", "", ""}, records[1])
	assert.Equal(t, "Room B", records[2][0])
}

func TestXLSXWriter_WritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.xlsx")

	w, err := NewXLSXWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStatuses(sampleBatch()))
	require.NoError(t, w.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, statusHeader, rows[0])
	assert.Equal(t, "Room A", rows[1][0])
	assert.Equal(t, "occupied", rows[1][1])
	assert.Equal(t, "North Hall", rows[1][3])
}
