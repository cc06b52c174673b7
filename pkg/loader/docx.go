package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
)

const docxBody = "word/document.xml"

// LoadDOCX extracts paragraph text from a Word document, one paragraph per line.
func LoadDOCX(name string, data []byte) (*models.DocumentText, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "failed to open %s as DOCX", name)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return nil, errs.New(errs.UnreadableFile, "%s has no %s", name, docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "failed to read %s", docxBody)
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return nil, errs.Wrap(errs.UnreadableFile, err, "failed to parse %s", docxBody)
	}

	return &models.DocumentText{
		SourceID: name,
		Title:    name,
		Text:     strings.Join(paragraphs, "\n"),
	}, nil
}

// docxParagraphs walks WordprocessingML and returns the text of each w:p.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				paragraphs = append(paragraphs, current.String())
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
