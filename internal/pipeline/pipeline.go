// Package pipeline drives a document end to end: classification, handler
// dispatch, and export. Failures are converted to uniform error results so
// batch runs continue past bad documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karsov/docroute/internal/agents"
	"github.com/karsov/docroute/internal/classify"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the per-document outcome contract.
type Result struct {
	Status           string         `json:"status"`
	ThreadID         string         `json:"thread_id,omitempty"`
	Format           string         `json:"format,omitempty"`
	Intent           string         `json:"intent,omitempty"`
	ProcessingResult *agents.Result `json:"processing_result,omitempty"`
	OutputPath       string         `json:"output_path,omitempty"`
	Message          string         `json:"message,omitempty"`
}

// Exporter is the slice of the store the pipeline needs for artifacts.
type Exporter interface {
	ExportAll(destination string) (string, error)
}

// Classifier routes raw documents into tracked threads.
type Classifier interface {
	Process(path string) (classify.Classification, error)
}

// Pipeline sequences classifier, handlers, and export. It holds no
// mutable state beyond its injected dependencies.
type Pipeline struct {
	exporter   Exporter
	classifier Classifier
	handlers   map[string]agents.Handler
	outputDir  string
	logger     *slog.Logger
}

// New wires a Pipeline. Handlers are keyed by their routing name.
func New(exporter Exporter, classifier Classifier, handlers []agents.Handler, outputDir string) *Pipeline {
	byName := make(map[string]agents.Handler, len(handlers))
	for _, h := range handlers {
		byName[h.Name()] = h
	}
	return &Pipeline{
		exporter:   exporter,
		classifier: classifier,
		handlers:   byName,
		outputDir:  outputDir,
		logger:     slog.Default(),
	}
}

// ProcessDocument runs one document through the full pipeline. Every
// failure is returned as an error-status Result; the thread, if created,
// keeps whatever status it last reached.
func (p *Pipeline) ProcessDocument(ctx context.Context, path string) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusError, Message: err.Error()}
	}

	if _, err := os.Stat(path); err != nil {
		p.logger.Error("file not found", "path", path)
		return Result{Status: StatusError, Message: fmt.Sprintf("file not found: %s", path)}
	}

	p.logger.Info("processing document", "path", path)

	classification, err := p.classifier.Process(path)
	if err != nil {
		var unsupported *classify.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			return Result{
				Status:  StatusError,
				Format:  string(unsupported.Format),
				Message: err.Error(),
			}
		}
		return Result{Status: StatusError, Message: err.Error()}
	}

	handler, ok := p.handlers[classification.TargetAgent]
	if !ok {
		return p.errorResult(classification, fmt.Sprintf("unknown target agent: %s", classification.TargetAgent))
	}

	p.logger.Info("routing to handler",
		"thread_id", classification.ThreadID,
		"target_agent", classification.TargetAgent,
		"intent", classification.Intent,
	)

	processed, err := handler.Process(classification.ThreadID, classification.Content)
	if err != nil {
		p.logger.Error("handler failed", "thread_id", classification.ThreadID, "error", err)
		return p.errorResult(classification, err.Error())
	}

	artifact := filepath.Join(p.outputDir, "document_"+classification.ThreadID+".json")
	outputPath, err := p.exporter.ExportAll(artifact)
	if err != nil {
		p.logger.Error("export failed", "thread_id", classification.ThreadID, "error", err)
		return p.errorResult(classification, err.Error())
	}

	p.logger.Info("document processed", "thread_id", classification.ThreadID, "output", outputPath)

	return Result{
		Status:           StatusSuccess,
		ThreadID:         classification.ThreadID,
		Format:           string(classification.Format),
		Intent:           classification.Intent,
		ProcessingResult: &processed,
		OutputPath:       outputPath,
	}
}

// ProcessBatch runs every regular file in dir through ProcessDocument,
// never aborting on a single failure, and writes one trailing full export.
func (p *Pipeline) ProcessBatch(ctx context.Context, dir string) []Result {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []Result{{Status: StatusError, Message: fmt.Sprintf("directory not found: %s", dir)}}
	}

	var results []Result
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		results = append(results, p.ProcessDocument(ctx, filepath.Join(dir, entry.Name())))
	}

	if _, err := p.exporter.ExportAll(filepath.Join(p.outputDir, "logs.json")); err != nil {
		p.logger.Error("batch export failed", "error", err)
	}

	p.logger.Info("batch completed", "dir", dir, "documents", len(results))
	return results
}

func (p *Pipeline) errorResult(c classify.Classification, msg string) Result {
	return Result{
		Status:   StatusError,
		ThreadID: c.ThreadID,
		Format:   string(c.Format),
		Intent:   c.Intent,
		Message:  msg,
	}
}
