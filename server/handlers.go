// handlers.go - Upload, analyze and file metadata handlers
package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/pkg/agent"
	"github.com/xhad/insight/pkg/loader"
	"github.com/xhad/insight/pkg/session"
)

const mimeMsgpack = "application/msgpack"

// respond writes v as msgpack when the client asks for it and as JSON
// otherwise.
func respond(c echo.Context, status int, v any) error {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeMsgpack) {
		data, err := msgpack.Marshal(v)
		if err != nil {
			return err
		}
		return c.Blob(status, mimeMsgpack, data)
	}
	return c.JSON(status, v)
}

// fileInfo describes an upload held by the server.
type fileInfo struct {
	FileID     string             `json:"file_id" msgpack:"file_id"`
	FileName   string             `json:"file_name" msgpack:"file_name"`
	FileType   models.FileType    `json:"file_type" msgpack:"file_type"`
	Agent      models.AgentChoice `json:"agent" msgpack:"agent"`
	Status     string             `json:"status" msgpack:"status"`
	Size       int                `json:"size" msgpack:"size"`
	UploadedAt time.Time          `json:"uploaded_at" msgpack:"uploaded_at"`
	Rows       int                `json:"rows,omitempty" msgpack:"rows,omitempty"`
	Columns    []string           `json:"columns,omitempty" msgpack:"columns,omitempty"`
	Characters int                `json:"characters,omitempty" msgpack:"characters,omitempty"`
	Pages      int                `json:"pages,omitempty" msgpack:"pages,omitempty"`
}

func newFileInfo(e session.Entry, status string) fileInfo {
	info := fileInfo{
		FileID:     e.ID,
		FileName:   e.Name,
		FileType:   e.Type,
		Status:     status,
		Size:       e.Size,
		UploadedAt: e.UploadedAt,
	}
	// Route only fails for unsupported types, which never reach the store.
	info.Agent, _ = agent.Route(e.Type, "describe")

	if ds := e.Loaded.Dataset; ds != nil {
		info.Rows = len(ds.Rows)
		info.Columns = ds.Columns
	}
	if doc := e.Loaded.Document; doc != nil {
		info.Characters = len([]rune(doc.Text))
		info.Pages = len(doc.Pages)
	}
	return info
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.config.Version,
		"uploads": s.sessions.Len(),
	})
}

// handleUpload accepts one multipart file, loads it and registers it.
func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("multipart field \"file\" is required", err)
	}

	upload, err := models.NewUploadedFile(fh.Filename, nil)
	if err != nil {
		return err
	}

	src, err := fh.Open()
	if err != nil {
		return errs.Wrap(errs.UnreadableFile, err, "failed to open upload %s", fh.Filename)
	}
	defer src.Close()

	upload.Data, err = io.ReadAll(src)
	if err != nil {
		return errs.Wrap(errs.UnreadableFile, err, "failed to read upload %s", fh.Filename)
	}

	loaded, err := loader.Load(upload)
	if err != nil {
		return err
	}

	entry := s.sessions.Put(upload.Name, len(upload.Data), loaded)
	status := "loaded"
	if loaded.Document != nil && s.index(c, entry) {
		status = "indexed"
	}

	s.log.Info("upload registered",
		zap.String("file_id", entry.ID),
		zap.String("file", entry.Name),
		zap.String("file_type", entry.Type.String()),
		zap.Int("size", entry.Size),
		zap.String("status", status))

	return respond(c, http.StatusCreated, newFileInfo(entry, status))
}

// index chunks and indexes a document for retrieval. Failures are logged;
// queries then fall back to lexical ranking.
func (s *Server) index(c echo.Context, entry session.Entry) bool {
	if s.config.Indexer == nil || s.config.Chunker == nil {
		return false
	}
	doc := entry.Loaded.Document
	if doc.IsEmpty() {
		return false
	}

	chunks, err := s.config.Chunker.Chunk(doc.Text)
	if err == nil {
		err = s.config.Indexer.Index(c.Request().Context(), entry.ID, chunks)
	}
	if err != nil {
		s.log.Warn("failed to index document",
			zap.String("file_id", entry.ID),
			zap.Error(err))
		return false
	}
	return true
}

type analyzeRequest struct {
	Query    string `json:"query" form:"query" msgpack:"query"`
	FileID   string `json:"file_id" form:"file_id" msgpack:"file_id"`
	FileName string `json:"file_name" form:"file_name" msgpack:"file_name"`
}

type analyzeResponse struct {
	FileID   string               `json:"file_id" msgpack:"file_id"`
	Agent    models.AgentChoice   `json:"agent" msgpack:"agent"`
	Response models.AgentResponse `json:"response" msgpack:"response"`
}

// lookup finds the upload a request refers to, by id first and then by name.
func (s *Server) lookup(fileID, fileName string) (session.Entry, error) {
	switch {
	case fileID != "":
		if e, ok := s.sessions.Get(fileID); ok {
			return e, nil
		}
		return session.Entry{}, NewNotFoundError("file", fileID)
	case fileName != "":
		if e, ok := s.sessions.FindByName(fileName); ok {
			return e, nil
		}
		return session.Entry{}, NewNotFoundError("file", fileName)
	}
	return session.Entry{}, NewBadRequestError("file_id or file_name is required", nil)
}

func (s *Server) analyze(c echo.Context, req analyzeRequest) (analyzeResponse, error) {
	entry, err := s.lookup(strings.TrimSpace(req.FileID), strings.TrimSpace(req.FileName))
	if err != nil {
		return analyzeResponse{}, err
	}

	resp, err := s.analyzeEntry(c.Request().Context(), entry, req.Query)
	if err != nil {
		s.log.Info("analysis failed",
			zap.String("file_id", entry.ID),
			zap.String("kind", string(errs.KindOf(err))),
			zap.Error(err))
		return analyzeResponse{}, err
	}
	return analyzeResponse{FileID: entry.ID, Agent: resp.Agent, Response: resp}, nil
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	out, err := s.analyze(c, req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, out)
}

func (s *Server) handleListFiles(c echo.Context) error {
	entries := s.sessions.List()
	out := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, newFileInfo(e, "loaded"))
	}
	return respond(c, http.StatusOK, out)
}

func (s *Server) handleGetFile(c echo.Context) error {
	id := c.Param("id")
	e, ok := s.sessions.Get(id)
	if !ok {
		return NewNotFoundError("file", id)
	}
	return respond(c, http.StatusOK, newFileInfo(e, "loaded"))
}

func (s *Server) handleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if !s.sessions.Delete(id) {
		return NewNotFoundError("file", id)
	}
	return c.NoContent(http.StatusNoContent)
}
