// Package agents holds the format-specific document handlers. Each handler
// moves its thread to a processing status, extracts a fixed field set,
// runs a data-quality pass, and marks the thread completed. On failure the
// intermediate status is left in place for forensic inspection.
package agents

import (
	"github.com/karsov/docroute/internal/detect"
	"github.com/karsov/docroute/internal/schema"
	"github.com/karsov/docroute/internal/storage"
)

// Agent names used in routing decisions.
const (
	JSONAgentName  = "json_agent"
	EmailAgentName = "email_agent"
)

// ThreadStore is the slice of the store handlers need.
type ThreadStore interface {
	UpdateStatus(threadID, status string) error
	StoreExtractedField(threadID, name string, value any) error
	GetThread(threadID string) (storage.ThreadSnapshot, error)
}

// Content carries the structured document a handler receives. Exactly one
// member is populated, matching the handler the router selected.
type Content struct {
	JSON  map[string]any
	Email detect.Email
}

// DataQuality is the handler's quality report. Validation is set by the
// JSON handler; the remaining members by the email handler.
type DataQuality struct {
	Validation     *schema.Result `json:"validation,omitempty"`
	Urgency        string         `json:"urgency,omitempty"`
	Contacts       []string       `json:"contacts,omitempty"`
	Dates          []string       `json:"dates,omitempty"`
	Amounts        []string       `json:"amounts,omitempty"`
	PotentialValue *float64       `json:"potential_value,omitempty"`
}

// Result is the uniform handler outcome.
type Result struct {
	ThreadID        string         `json:"thread_id"`
	ExtractedFields map[string]any `json:"extracted_fields"`
	DataQuality     DataQuality    `json:"data_quality"`
}

// Handler processes one routed document against its thread.
type Handler interface {
	Name() string
	Process(threadID string, content Content) (Result, error)
}
