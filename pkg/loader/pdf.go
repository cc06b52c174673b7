package loader

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
)

// LoadPDF extracts the plain text of every page. Pages without extractable
// text (scanned images) are skipped.
func LoadPDF(name string, data []byte) (doc *models.DocumentText, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, errs.New(errs.UnreadableFile, "failed to parse %s as PDF: %v", name, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "failed to parse %s as PDF", name)
	}

	doc = &models.DocumentText{SourceID: name, Title: name}
	var texts []string
	for i := 1; i <= rdr.NumPage(); i++ {
		pg := rdr.Page(i)
		if pg.V.IsNull() {
			continue
		}
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			continue
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		doc.Pages = append(doc.Pages, models.Page{Number: i, Text: txt})
		texts = append(texts, txt)
	}
	doc.Text = strings.Join(texts, "\n\n")
	return doc, nil
}
