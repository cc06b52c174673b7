package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/insight/internal/errs"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name    string
		want    FileType
		wantErr bool
	}{
		{"sales.csv", FileTypeCSV, false},
		{"Q3.XLSX", FileTypeXLSX, false},
		{"paper.pdf", FileTypePDF, false},
		{"report.docx", FileTypeDOCX, false},
		{"notes.txt", FileTypeUnknown, true},
		{"README", FileTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFileType(tt.name)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.True(t, errs.Is(err, errs.UnsupportedFileType))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTabularDataset(t *testing.T) {
	ds, err := NewTabularDataset("sales", []string{"region", " revenue "}, [][]string{
		{"east", "100"},
		{"west"},
		{"north", "1,200.5"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "revenue"}, ds.Columns)
	for _, row := range ds.Rows {
		assert.Len(t, row, 2)
	}
	assert.Equal(t, CellEmpty, ds.Rows[1][1].Kind)
	assert.Equal(t, 1200.5, ds.Rows[2][1].Number)
	assert.True(t, ds.IsNumericColumn(1))
	assert.False(t, ds.IsNumericColumn(0))
	assert.Equal(t, []int{1}, ds.NumericColumns())
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		raw    string
		kind   CellKind
		number float64
	}{
		{"", CellEmpty, 0},
		{"  ", CellEmpty, 0},
		{"100", CellNumber, 100},
		{" -2.5 ", CellNumber, -2.5},
		{".5", CellNumber, 0.5},
		{"1e3", CellNumber, 1000},
		{"1,234", CellNumber, 1234},
		{"12,345,678.25", CellNumber, 12345678.25},
		{"1,5", CellString, 0},
		{"2,5", CellString, 0},
		{"1,2,3", CellString, 0},
		{"12,34", CellString, 0},
		{"1234,567", CellString, 0},
		{"0x1F", CellString, 0},
		{"0b101", CellString, 0},
		{"1_000", CellString, 0},
		{"Inf", CellString, 0},
		{"NaN", CellString, 0},
		{"east", CellString, 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cell := ParseCell(tt.raw)
			assert.Equal(t, tt.kind, cell.Kind)
			assert.Equal(t, tt.number, cell.Number)
			assert.Equal(t, tt.raw, cell.Raw)
		})
	}
}

func TestNewTabularDatasetRejectsLongRows(t *testing.T) {
	_, err := NewTabularDataset("bad", []string{"a"}, [][]string{{"1", "2"}})
	assert.Error(t, err)
}

func TestColumnIndex(t *testing.T) {
	ds := &TabularDataset{Columns: []string{"Region", "unit_price"}}

	assert.Equal(t, 0, ds.ColumnIndex("region"))
	assert.Equal(t, 1, ds.ColumnIndex("Unit Price"))
	assert.Equal(t, -1, ds.ColumnIndex("profit"))
}

func TestRecordsRoundTrip(t *testing.T) {
	header := []string{"region", "revenue"}
	records := [][]string{{"east", "100"}, {"west", "200"}}

	ds, err := NewTabularDataset("sales", header, records)
	require.NoError(t, err)

	out := ds.Records()
	assert.Equal(t, header, out[0])
	assert.Equal(t, records, out[1:])

	again, err := NewTabularDataset("sales", out[0], out[1:])
	require.NoError(t, err)
	assert.Equal(t, ds, again)
}

func TestFileTypeText(t *testing.T) {
	data, err := json.Marshal(map[string]FileType{"type": FileTypeXLSX})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"xlsx"}`, string(data))

	var out map[string]FileType
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, FileTypeXLSX, out["type"])

	assert.Error(t, json.Unmarshal([]byte(`{"type":"txt"}`), &out))
}
