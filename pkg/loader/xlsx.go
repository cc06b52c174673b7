package loader

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
)

// LoadXLSX reads the first worksheet of a workbook.
func LoadXLSX(name string, data []byte) (*models.TabularDataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "failed to open %s as a workbook", name)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errs.New(errs.UnreadableFile, "%s has no worksheets", name)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "failed to read sheet %q", sheets[0])
	}
	return tableFromRows(name, rows)
}
