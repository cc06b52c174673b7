package loader

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadCSV parses comma-separated data with a header row.
func LoadCSV(name string, data []byte) (*models.TabularDataset, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.UnreadableFile, err, "failed to parse %s as CSV", name)
		}
		rows = append(rows, rec)
	}
	return tableFromRows(name, rows)
}
