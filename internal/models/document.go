package models

import (
	"path/filepath"
	"strings"

	"github.com/xhad/insight/internal/errs"
)

// FileType is one of the supported upload formats.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeCSV
	FileTypeXLSX
	FileTypePDF
	FileTypeDOCX
)

func (t FileType) String() string {
	switch t {
	case FileTypeCSV:
		return "csv"
	case FileTypeXLSX:
		return "xlsx"
	case FileTypePDF:
		return "pdf"
	case FileTypeDOCX:
		return "docx"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type as its extension name.
func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes an extension name written by MarshalText.
func (t *FileType) UnmarshalText(text []byte) error {
	ft, err := ParseFileType(string(text))
	if err != nil {
		return err
	}
	*t = ft
	return nil
}

// ParseFileType maps an extension ("csv", ".CSV") to a FileType.
func ParseFileType(ext string) (FileType, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".") {
	case "csv":
		return FileTypeCSV, nil
	case "xlsx":
		return FileTypeXLSX, nil
	case "pdf":
		return FileTypePDF, nil
	case "docx":
		return FileTypeDOCX, nil
	}
	return FileTypeUnknown, errs.New(errs.UnsupportedFileType, "unsupported file type %q", ext)
}

// DetectFileType infers the FileType from a filename's extension.
func DetectFileType(filename string) (FileType, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		return FileTypeUnknown, errs.New(errs.UnsupportedFileType, "file %q has no extension", filename)
	}
	return ParseFileType(ext)
}

// UploadedFile is a file received from a client.
type UploadedFile struct {
	Name string
	Type FileType
	Data []byte
}

// NewUploadedFile builds an UploadedFile, detecting its type from name.
func NewUploadedFile(name string, data []byte) (UploadedFile, error) {
	ft, err := DetectFileType(name)
	if err != nil {
		return UploadedFile{}, err
	}
	return UploadedFile{Name: name, Type: ft, Data: data}, nil
}

// Page is a page or section boundary within a document.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// DocumentText is the extracted plain text of a PDF or DOCX upload.
type DocumentText struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Pages    []Page `json:"pages,omitempty"`
}

// IsEmpty reports whether the document has no visible text.
func (d DocumentText) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}
