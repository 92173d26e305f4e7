// Package classify is the pipeline entry point: it detects a document's
// format and intent, creates the tracking thread, and selects the handler.
package classify

import (
	"fmt"
	"log/slog"

	"github.com/karsov/docroute/internal/agents"
	"github.com/karsov/docroute/internal/detect"
	"github.com/karsov/docroute/internal/intent"
)

// AgentName is the component name the classifier logs hand-offs under.
const AgentName = "classifier_agent"

// contentSampleLimit bounds the content sample recorded in metadata.
const contentSampleLimit = 200

// UnsupportedFormatError reports a detected format outside the supported
// set. No thread is created for these documents.
type UnsupportedFormatError struct {
	Format detect.Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Format)
}

// ThreadStore is the slice of the store the classifier needs.
type ThreadStore interface {
	CreateThread(inputSource, format, intent string) (string, error)
	UpdateMetadata(threadID string, patch map[string]any) error
	LogRouting(threadID, fromAgent, toAgent, reason string) error
}

// Classification is the routed, tracked unit of work handed to the
// orchestrator.
type Classification struct {
	ThreadID    string
	Format      detect.Format
	Intent      string
	Confidence  float64
	TargetAgent string
	Content     agents.Content
}

// Classifier translates a raw document into a Classification. Exactly one
// thread and one routing-log entry are created per successful call.
type Classifier struct {
	store    ThreadStore
	detector intent.Detector
	logger   *slog.Logger
}

// New creates a Classifier. A nil detector falls back to the keyword
// scoring strategy.
func New(store ThreadStore, detector intent.Detector) *Classifier {
	if detector == nil {
		detector = intent.NewKeywordDetector()
	}
	return &Classifier{store: store, detector: detector, logger: slog.Default()}
}

// Process detects format and intent for the file at path, creates the
// thread, and logs the routing decision. Unsupported formats return an
// UnsupportedFormatError without creating a thread.
func (c *Classifier) Process(path string) (Classification, error) {
	format := detect.DetectFormat(path)

	var (
		label      string
		confidence float64
		content    agents.Content
		sample     string
	)

	switch format {
	case detect.FormatPDF:
		text, err := detect.ExtractPDFText(path)
		if err != nil {
			return Classification{}, fmt.Errorf("extracting pdf text: %w", err)
		}
		label, confidence = c.detector.Score(text)
		// PDFs are routed to the email agent; wrap the text so its
		// heuristics scan the document body.
		content = agents.Content{Email: detect.Email{Body: text}}
		sample = text
	case detect.FormatJSON:
		doc, err := detect.ParseJSONFile(path)
		if err != nil {
			return Classification{}, fmt.Errorf("parsing json document: %w", err)
		}
		label, confidence = intent.FromJSON(c.detector, doc)
		content = agents.Content{JSON: doc}
		sample = fmt.Sprintf("%v", doc)
	case detect.FormatEmail:
		email, err := detect.ParseEmail(path)
		if err != nil {
			return Classification{}, fmt.Errorf("parsing email: %w", err)
		}
		label, confidence = intent.FromEmail(c.detector, email.Subject, email.Body)
		content = agents.Content{Email: email}
		sample = fmt.Sprintf("%v", email.Map())
	default:
		return Classification{}, &UnsupportedFormatError{Format: format}
	}

	threadID, err := c.store.CreateThread(path, string(format), label)
	if err != nil {
		return Classification{}, fmt.Errorf("creating thread: %w", err)
	}

	if err := c.store.UpdateMetadata(threadID, map[string]any{
		"confidence":     confidence,
		"content_sample": truncate(sample, contentSampleLimit),
	}); err != nil {
		return Classification{}, fmt.Errorf("recording classification metadata: %w", err)
	}

	targetAgent := agents.EmailAgentName
	if format == detect.FormatJSON {
		targetAgent = agents.JSONAgentName
	}

	reason := fmt.Sprintf("Detected format: %s, intent: %s with confidence: %.2f", format, label, confidence)
	if err := c.store.LogRouting(threadID, AgentName, targetAgent, reason); err != nil {
		return Classification{}, fmt.Errorf("logging routing decision: %w", err)
	}

	c.logger.Info("document classified",
		"thread_id", threadID,
		"format", format,
		"intent", label,
		"confidence", confidence,
		"target_agent", targetAgent,
	)

	return Classification{
		ThreadID:    threadID,
		Format:      format,
		Intent:      label,
		Confidence:  confidence,
		TargetAgent: targetAgent,
		Content:     content,
	}, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
