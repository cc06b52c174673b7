package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CellKind is the type of a parsed cell value.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellString
)

// Cell is a typed table value. Raw keeps the source text so the dataset
// can be re-serialized without loss.
type Cell struct {
	Kind   CellKind `json:"kind"`
	Number float64  `json:"number,omitempty"`
	Raw    string   `json:"raw"`
}

var (
	plainNumber   = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)
	groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ParseNumber parses a decimal number, allowing comma thousands separators
// only in complete groups of three ("1,234.5"). Decimal commas, hex and
// other ParseFloat extensions are not numbers.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch {
	case plainNumber.MatchString(s):
	case groupedNumber.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	default:
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseCell classifies a raw value as empty, numeric or string.
func ParseCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cell{Kind: CellEmpty, Raw: raw}
	}
	if v, ok := ParseNumber(trimmed); ok {
		return Cell{Kind: CellNumber, Number: v, Raw: raw}
	}
	return Cell{Kind: CellString, Raw: raw}
}

// TabularDataset is a header plus rows of typed cells.
// Every row has exactly len(Columns) cells.
type TabularDataset struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
}

// NewTabularDataset builds a dataset from raw records. Short rows are padded
// with empty cells; rows longer than the header are rejected.
func NewTabularDataset(name string, header []string, records [][]string) (*TabularDataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	ds := &TabularDataset{
		Name:    name,
		Columns: make([]string, len(header)),
		Rows:    make([][]Cell, 0, len(records)),
	}
	for i, h := range header {
		ds.Columns[i] = strings.TrimSpace(h)
	}
	for i, rec := range records {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+1, len(rec), len(header))
		}
		row := make([]Cell, len(header))
		for j := range row {
			if j < len(rec) {
				row[j] = ParseCell(rec[j])
			} else {
				row[j] = Cell{Kind: CellEmpty}
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}

// ColumnIndex returns the index of the named column, ignoring case,
// surrounding whitespace and the difference between spaces and underscores.
func (d *TabularDataset) ColumnIndex(name string) int {
	want := normalizeColumn(name)
	for i, c := range d.Columns {
		if normalizeColumn(c) == want {
			return i
		}
	}
	return -1
}

// IsNumericColumn reports whether column i holds at least one number and no strings.
func (d *TabularDataset) IsNumericColumn(i int) bool {
	numbers := 0
	for _, row := range d.Rows {
		switch row[i].Kind {
		case CellString:
			return false
		case CellNumber:
			numbers++
		}
	}
	return numbers > 0
}

// NumericColumns returns the indexes of numeric columns in header order.
func (d *TabularDataset) NumericColumns() []int {
	var out []int
	for i := range d.Columns {
		if d.IsNumericColumn(i) {
			out = append(out, i)
		}
	}
	return out
}

// Records re-serializes the dataset, header first.
func (d *TabularDataset) Records() [][]string {
	out := make([][]string, 0, len(d.Rows)+1)
	out = append(out, append([]string(nil), d.Columns...))
	for _, row := range d.Rows {
		rec := make([]string, len(row))
		for j, c := range row {
			rec[j] = c.Raw
		}
		out = append(out, rec)
	}
	return out
}
