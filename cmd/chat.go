package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/pkg/agent"
	"github.com/xhad/insight/pkg/loader"
	"github.com/xhad/insight/pkg/session"
	"github.com/xhad/insight/server"
)

var chatFile string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Load a file and ask questions about it interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatFile, "file", "f", "", "CSV, XLSX, PDF or DOCX file to analyze")
	_ = chatCmd.MarkFlagRequired("file")
}

func getSpinner(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// withSpinner animates a spinner on out while fn runs.
func withSpinner(out io.Writer, description string, fn func() error) error {
	bar := getSpinner(out, description)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	err := fn()
	close(done)
	<-stopped
	_ = bar.Finish()
	return err
}

func runChat(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.chat(ctx, chatFile, os.Stdin, color.Output)
}

// chat loads path and answers questions about it from in until exit. The
// document index, if any, is dropped on return.
func (a *app) chat(ctx context.Context, path string, in io.Reader, out io.Writer) error {
	sessions := session.NewWithConfig(session.Config{
		Logger:   logger.Named("session"),
		OnRemove: a.dropIndex,
	})

	var entry session.Entry
	err := withSpinner(out, fmt.Sprintf("Loading %s...", filepath.Base(path)), func() error {
		var err error
		entry, err = loadEntry(ctx, a, sessions, path)
		return err
	})
	if err != nil {
		return err
	}
	defer sessions.Delete(entry.ID)

	color.New(color.FgGreen).Fprintf(out, "\n✓ %s\n", describeEntry(entry))
	return chatLoop(ctx, in, out, a.orchestrator, entry)
}

// loadEntry reads and loads path, registers it and indexes documents when a
// vector store is configured.
func loadEntry(ctx context.Context, a *app, sessions *session.Store, path string) (session.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Entry{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	upload, err := models.NewUploadedFile(filepath.Base(path), data)
	if err != nil {
		return session.Entry{}, err
	}
	loaded, err := loader.Load(upload)
	if err != nil {
		return session.Entry{}, err
	}
	entry := sessions.Put(upload.Name, len(data), loaded)

	if a.vectors != nil && loaded.Document != nil && !loaded.Document.IsEmpty() {
		chunks, err := a.processor.Chunk(loaded.Document.Text)
		if err == nil {
			err = a.vectors.Index(ctx, entry.ID, chunks)
		}
		if err != nil {
			logger.Warn("failed to index document, using lexical ranking",
				zap.String("file", entry.Name),
				zap.Error(err))
		}
	}
	return entry, nil
}

// describeEntry summarizes what was loaded from an upload.
func describeEntry(e session.Entry) string {
	choice, _ := agent.Route(e.Type, "describe")
	switch {
	case e.Loaded.Dataset != nil:
		ds := e.Loaded.Dataset
		return fmt.Sprintf("Loaded %s for the %s agent: %d rows, columns: %s",
			e.Name, choice, len(ds.Rows), strings.Join(ds.Columns, ", "))
	case e.Loaded.Document != nil:
		doc := e.Loaded.Document
		desc := fmt.Sprintf("Loaded %s for the %s agent: %d characters", e.Name, choice, len([]rune(doc.Text)))
		switch n := len(doc.Pages); {
		case n == 1:
			desc += ", 1 page"
		case n > 1:
			desc += fmt.Sprintf(", %d pages", n)
		}
		return desc
	}
	return fmt.Sprintf("Loaded %s", e.Name)
}

// chatLoop reads questions from in until EOF or "exit" and prints each answer
// to out. Failed questions are reported and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, analyzer server.Analyzer, entry session.Entry) error {
	color.New(color.FgCyan).Fprintf(out, "\nAsk about %s (type 'exit' to quit)\n", entry.Name)

	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen).FprintfFunc()
	assistantPrompt := color.New(color.FgCyan).FprintfFunc()
	errorPrompt := color.New(color.FgRed).FprintfFunc()

	for {
		userPrompt(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(query, "exit") {
			break
		}
		if query == "" {
			continue
		}

		var resp models.AgentResponse
		err := withSpinner(out, "Thinking...", func() error {
			var err error
			resp, err = analyzer.HandleLoaded(ctx, entry, query)
			return err
		})
		if err != nil {
			errorPrompt(out, "Error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		assistantPrompt(out, "Assistant: %s\n", formatResponse(resp))
	}
	return scanner.Err()
}

// formatResponse renders an agent response as terminal text.
func formatResponse(resp models.AgentResponse) string {
	switch resp.Kind {
	case models.ResponseChartSpec:
		if resp.Chart == nil {
			return resp.Caption
		}
		return formatChart(resp.Caption, resp.Chart)
	case models.ResponseKeywordList:
		return "Keywords: " + strings.Join(resp.Keywords, ", ")
	}
	return resp.Message
}

func formatChart(caption string, chart *models.ChartSpec) string {
	var b strings.Builder
	if caption != "" {
		b.WriteString(caption)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s chart %q\n", chart.Type, chart.Title)
	fmt.Fprintf(&b, "  x: %s", chart.X)
	if chart.Y != "" {
		fmt.Fprintf(&b, ", y: %s", chart.Y)
	}
	if chart.Aggregation != "" {
		fmt.Fprintf(&b, " (%s)", chart.Aggregation)
	}
	for _, p := range chart.Points {
		b.WriteString("\n  ")
		if chart.Type == models.ChartScatter {
			fmt.Fprintf(&b, "(%s, %s)", agent.FormatValue(p.X), agent.FormatValue(p.Value))
			continue
		}
		fmt.Fprintf(&b, "%s: %s", p.Label, agent.FormatValue(p.Value))
	}
	return b.String()
}
