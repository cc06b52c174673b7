// Package agent routes queries about an uploaded file to the data agent or the
// research agent and implements both.
package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/internal/types"
	"github.com/xhad/insight/pkg/loader"
	"github.com/xhad/insight/pkg/session"
)

// Route chooses the agent for a file type. It is a pure function of the file
// type; the query only has to be non-blank.
func Route(fileType models.FileType, query string) (models.AgentChoice, error) {
	var choice models.AgentChoice
	switch fileType {
	case models.FileTypeCSV, models.FileTypeXLSX:
		choice = models.AgentData
	case models.FileTypePDF, models.FileTypeDOCX:
		choice = models.AgentResearch
	default:
		return "", errs.New(errs.UnsupportedFileType, "unsupported file type %q", fileType)
	}
	if strings.TrimSpace(query) == "" {
		return "", errs.New(errs.InvalidQuery, "query is empty")
	}
	return choice, nil
}

// RouteFile detects the file type from filename and routes it.
func RouteFile(filename, query string) (models.AgentChoice, error) {
	fileType, err := models.DetectFileType(filename)
	if err != nil {
		return "", err
	}
	return Route(fileType, query)
}

type OrchestratorConfig struct {
	Data     types.DataAnswerer
	Research types.DocumentAnswerer
	Logger   *zap.Logger
}

// Orchestrator loads uploads and dispatches queries to the agent chosen by
// Route.
type Orchestrator struct {
	data     types.DataAnswerer
	research types.DocumentAnswerer
	log      *zap.Logger
}

func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Orchestrator{
		data:     config.Data,
		research: config.Research,
		log:      config.Logger,
	}
}

// Handle routes, loads and answers a query about upload in one step. Nothing
// is loaded and no agent runs when routing fails.
func (o *Orchestrator) Handle(ctx context.Context, upload models.UploadedFile, query string) (models.AgentResponse, error) {
	if _, err := o.route(upload.Name, upload.Type, query); err != nil {
		return models.AgentResponse{}, err
	}
	loaded, err := loader.Load(upload)
	if err != nil {
		return models.AgentResponse{}, err
	}
	return o.dispatch(ctx, "", loaded, query)
}

// HandleLoaded answers a query about an upload that was loaded earlier.
func (o *Orchestrator) HandleLoaded(ctx context.Context, entry session.Entry, query string) (models.AgentResponse, error) {
	if _, err := o.route(entry.Name, entry.Type, query); err != nil {
		return models.AgentResponse{}, err
	}
	return o.dispatch(ctx, entry.ID, entry.Loaded, query)
}

func (o *Orchestrator) route(name string, fileType models.FileType, query string) (models.AgentChoice, error) {
	choice, err := Route(fileType, query)
	if err != nil {
		o.log.Info("routing rejected",
			zap.String("file", name),
			zap.String("file_type", fileType.String()),
			zap.Error(err))
		return "", err
	}
	o.log.Info("routed query",
		zap.String("query", query),
		zap.String("file", name),
		zap.String("file_type", fileType.String()),
		zap.String("agent", string(choice)))
	return choice, nil
}

// dispatch sends query to the agent matching the loaded content. docID is the
// key the document was indexed under, empty when it was not indexed.
func (o *Orchestrator) dispatch(ctx context.Context, docID string, loaded loader.Loaded, query string) (models.AgentResponse, error) {
	switch {
	case loaded.Dataset != nil:
		if o.data == nil {
			return models.AgentResponse{}, errs.New(errs.LLMRequestFailed, "data agent is not configured")
		}
		return o.data.Answer(ctx, loaded.Dataset, query)
	case loaded.Document != nil:
		if o.research == nil {
			return models.AgentResponse{}, errs.New(errs.LLMRequestFailed, "research agent is not configured")
		}
		doc := *loaded.Document
		doc.SourceID = docID
		return o.research.Answer(ctx, doc, query)
	}
	return models.AgentResponse{}, errs.New(errs.UnreadableFile, "upload has no loaded content")
}
