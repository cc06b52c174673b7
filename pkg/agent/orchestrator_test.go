package agent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/internal/testutil"
	"github.com/xhad/insight/pkg/agent"
	"github.com/xhad/insight/pkg/loader"
	"github.com/xhad/insight/pkg/session"
)

type countingData struct{ calls int }

func (c *countingData) Answer(context.Context, *models.TabularDataset, string) (models.AgentResponse, error) {
	c.calls++
	return models.TextResponse(models.AgentData, models.IntentAggregate, "data"), nil
}

type countingResearch struct {
	calls int
	docs  []models.DocumentText
}

func (c *countingResearch) Answer(_ context.Context, doc models.DocumentText, _ string) (models.AgentResponse, error) {
	c.calls++
	c.docs = append(c.docs, doc)
	return models.TextResponse(models.AgentResearch, models.IntentQA, "research"), nil
}

func TestRoute(t *testing.T) {
	tests := []struct {
		file     string
		query    string
		want     models.AgentChoice
		wantKind errs.Kind
	}{
		{"sales.csv", "What is the total revenue?", models.AgentData, errs.Unknown},
		{"Budget.XLSX", "plot cost by month", models.AgentData, errs.Unknown},
		{"report.pdf", "Summarize the paper", models.AgentResearch, errs.Unknown},
		{"memo.docx", "total revenue", models.AgentResearch, errs.Unknown},
		{"notes.txt", "Summarize", "", errs.UnsupportedFileType},
		{"archive", "Summarize", "", errs.UnsupportedFileType},
		{"sales.csv", "  ", "", errs.InvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.query, func(t *testing.T) {
			got, err := agent.RouteFile(tt.file, tt.query)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantKind, errs.KindOf(err), "got %v", err)
		})
	}
}

func TestRouteDependsOnlyOnFileType(t *testing.T) {
	queries := []string{"Summarize the paper", "plot revenue", "what is the total?", "keywords"}
	for _, q := range queries {
		got, err := agent.Route(models.FileTypeCSV, q)
		require.NoError(t, err)
		assert.Equal(t, models.AgentData, got)

		got, err = agent.Route(models.FileTypeDOCX, q)
		require.NoError(t, err)
		assert.Equal(t, models.AgentResearch, got)
	}
}

func TestHandleUnsupportedInvokesNoAgent(t *testing.T) {
	data, research := &countingData{}, &countingResearch{}
	o := agent.NewOrchestrator(agent.OrchestratorConfig{Data: data, Research: research})

	upload := models.UploadedFile{Name: "notes.txt", Data: []byte("hello")}
	_, err := o.Handle(context.Background(), upload, "Summarize")
	assert.Equal(t, errs.UnsupportedFileType, errs.KindOf(err))
	assert.Zero(t, data.calls)
	assert.Zero(t, research.calls)
}

func TestHandleSalesCSV(t *testing.T) {
	o := agent.NewOrchestrator(agent.OrchestratorConfig{
		Data: agent.NewDataAgent(agent.DataConfig{LLM: testutil.StaticLLM("Total revenue is 300.")}),
	})
	upload, err := models.NewUploadedFile("sales.csv", []byte("region,revenue\neast,100\nwest,200\n"))
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), upload, "What is the total revenue?")
	require.NoError(t, err)
	assert.Equal(t, models.AgentData, resp.Agent)
	assert.Contains(t, resp.Message, "300")
}

func TestHandleReportPDF(t *testing.T) {
	fake := &testutil.FakeLLM{Reply: func(_, user string) (string, error) {
		return "The report states: " + user, nil
	}}
	research := newResearch(t, fake, nil)
	o := agent.NewOrchestrator(agent.OrchestratorConfig{Research: research})

	upload, err := models.NewUploadedFile("report.pdf", testutil.BuildPDF("Key finding: X improves Y by 10%."))
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), upload, "Summarize the paper")
	require.NoError(t, err)
	assert.Equal(t, models.AgentResearch, resp.Agent)
	assert.Equal(t, models.IntentSummarize, resp.Intent)
	assert.Contains(t, resp.Message, "X improves Y by 10%")
}

func TestHandleEmptyDocument(t *testing.T) {
	fake := testutil.StaticLLM("unused")
	o := agent.NewOrchestrator(agent.OrchestratorConfig{Research: newResearch(t, fake, nil)})

	upload, err := models.NewUploadedFile("blank.docx", testutil.BuildDOCX(`<w:p></w:p><w:p><w:r><w:t> </w:t></w:r></w:p>`))
	require.NoError(t, err)

	_, err = o.Handle(context.Background(), upload, "Summarize the paper")
	assert.Equal(t, errs.EmptyDocument, errs.KindOf(err))
	assert.Zero(t, fake.CallCount())
}

func TestHandleUnreadableFile(t *testing.T) {
	data := &countingData{}
	o := agent.NewOrchestrator(agent.OrchestratorConfig{Data: data})

	upload, err := models.NewUploadedFile("broken.xlsx", []byte("not a workbook"))
	require.NoError(t, err)

	_, err = o.Handle(context.Background(), upload, "total")
	assert.Equal(t, errs.UnreadableFile, errs.KindOf(err))
	assert.Zero(t, data.calls)
}

func TestHandleLoadedPassesDocumentID(t *testing.T) {
	research := &countingResearch{}
	o := agent.NewOrchestrator(agent.OrchestratorConfig{Research: research})

	upload, err := models.NewUploadedFile("memo.docx", testutil.DOCXParagraphs("Churn fell.", "Retention rose."))
	require.NoError(t, err)
	loaded, err := loader.Load(upload)
	require.NoError(t, err)

	store := session.NewWithConfig(session.Config{})
	entry := store.Put(upload.Name, len(upload.Data), loaded)

	resp, err := o.HandleLoaded(context.Background(), entry, "what happened to churn?")
	require.NoError(t, err)
	assert.Equal(t, "research", resp.Message)

	require.Len(t, research.docs, 1)
	assert.Equal(t, entry.ID, research.docs[0].SourceID)
	assert.True(t, strings.HasPrefix(research.docs[0].Text, "Churn fell."))
}

func TestHandleWithoutConfiguredAgent(t *testing.T) {
	o := agent.NewOrchestrator(agent.OrchestratorConfig{})
	upload, err := models.NewUploadedFile("sales.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)

	_, err = o.Handle(context.Background(), upload, "total b")
	assert.Equal(t, errs.LLMRequestFailed, errs.KindOf(err))
}
