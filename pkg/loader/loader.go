// Package loader parses uploaded files into tabular datasets or plain-text
// documents.
package loader

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
)

// Loaded is the parsed content of an upload. Exactly one of Dataset and
// Document is set, depending on Type.
type Loaded struct {
	Type     models.FileType
	Dataset  *models.TabularDataset
	Document *models.DocumentText
}

// IsTabular reports whether the upload produced a dataset.
func (l Loaded) IsTabular() bool {
	return l.Dataset != nil
}

// Load parses upload according to its file type.
func Load(upload models.UploadedFile) (Loaded, error) {
	if len(bytes.TrimSpace(upload.Data)) == 0 {
		if upload.Type == models.FileTypeUnknown {
			return Loaded{}, errs.New(errs.UnsupportedFileType, "unsupported file type for %q", upload.Name)
		}
		return Loaded{}, errs.New(errs.UnreadableFile, "%s is empty", upload.Name)
	}

	name := strings.TrimSuffix(filepath.Base(upload.Name), filepath.Ext(upload.Name))

	switch upload.Type {
	case models.FileTypeCSV:
		ds, err := LoadCSV(name, upload.Data)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Type: upload.Type, Dataset: ds}, nil
	case models.FileTypeXLSX:
		ds, err := LoadXLSX(name, upload.Data)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Type: upload.Type, Dataset: ds}, nil
	case models.FileTypePDF:
		doc, err := LoadPDF(name, upload.Data)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Type: upload.Type, Document: doc}, nil
	case models.FileTypeDOCX:
		doc, err := LoadDOCX(name, upload.Data)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Type: upload.Type, Document: doc}, nil
	default:
		return Loaded{}, errs.New(errs.UnsupportedFileType, "unsupported file type for %q", upload.Name)
	}
}

// tableFromRows turns raw rows into a dataset, using the first non-blank row
// as the header.
func tableFromRows(name string, rows [][]string) (*models.TabularDataset, error) {
	start := -1
	for i, row := range rows {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errs.New(errs.UnreadableFile, "%s has no header row", name)
	}

	header := trimTrailingBlank(rows[start])
	var records [][]string
	for _, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		records = append(records, trimTrailingBlank(row))
	}

	ds, err := models.NewTabularDataset(name, header, records)
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "%s is not a valid table", name)
	}
	return ds, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}
