package agents

import (
	"fmt"
	"log/slog"

	"github.com/karsov/docroute/internal/schema"
	"github.com/karsov/docroute/internal/storage"
)

// JSONAgent validates JSON documents against the per-intent schema
// registry and extracts intent-specific fields.
type JSONAgent struct {
	store    ThreadStore
	registry *schema.Registry
	logger   *slog.Logger
}

// NewJSONAgent creates a JSONAgent. A nil registry falls back to the
// built-in schemas.
func NewJSONAgent(store ThreadStore, registry *schema.Registry) *JSONAgent {
	if registry == nil {
		registry = schema.DefaultRegistry()
	}
	return &JSONAgent{store: store, registry: registry, logger: slog.Default()}
}

func (a *JSONAgent) Name() string { return JSONAgentName }

// Process validates and extracts the document. Fields are written
// individually so earlier writes survive a later failure; the thread moves
// to completed only after every step succeeded.
func (a *JSONAgent) Process(threadID string, content Content) (Result, error) {
	if err := a.store.UpdateStatus(threadID, storage.StatusProcessingPrefix+"json"); err != nil {
		return Result{}, fmt.Errorf("marking thread processing: %w", err)
	}

	snap, err := a.store.GetThread(threadID)
	if err != nil {
		return Result{}, fmt.Errorf("loading thread: %w", err)
	}
	intent := snap.Intent

	validation := a.registry.Validate(intent, content.JSON)
	if err := a.store.StoreExtractedField(threadID, "validation_result", validation); err != nil {
		return Result{}, fmt.Errorf("storing validation result: %w", err)
	}
	if validation.Validity == schema.ValidityUnknown {
		a.logger.Warn("no schema for intent, validity unknown", "thread_id", threadID, "intent", intent)
	}

	extracted := extractJSONFields(content.JSON, intent)
	for name, value := range extracted {
		if err := a.store.StoreExtractedField(threadID, name, value); err != nil {
			return Result{}, fmt.Errorf("storing field %q: %w", name, err)
		}
	}

	if len(validation.MissingFields) > 0 {
		if err := a.store.StoreExtractedField(threadID, "missing_fields", validation.MissingFields); err != nil {
			return Result{}, fmt.Errorf("storing missing fields: %w", err)
		}
	}
	if len(validation.Anomalies) > 0 {
		if err := a.store.StoreExtractedField(threadID, "anomalous_fields", validation.Anomalies); err != nil {
			return Result{}, fmt.Errorf("storing anomalies: %w", err)
		}
	}

	if err := a.store.UpdateStatus(threadID, storage.StatusCompleted); err != nil {
		return Result{}, fmt.Errorf("marking thread completed: %w", err)
	}

	return Result{
		ThreadID:        threadID,
		ExtractedFields: extracted,
		DataQuality:     DataQuality{Validation: &validation},
	}, nil
}

// extractJSONFields is a best-effort lookup: absent keys produce absent
// fields, never errors.
func extractJSONFields(doc map[string]any, intent string) map[string]any {
	extracted := make(map[string]any)

	for _, field := range []string{"id", "date", "type"} {
		if v, ok := doc[field]; ok {
			extracted[field] = v
		}
	}

	switch intent {
	case "invoice":
		for _, field := range []string{"invoice_number", "total_amount", "currency", "payment_terms"} {
			if v, ok := doc[field]; ok {
				extracted[field] = v
			}
		}
		if name, ok := nestedName(doc, "vendor"); ok {
			extracted["vendor_name"] = name
		}
		if name, ok := nestedName(doc, "customer"); ok {
			extracted["customer_name"] = name
		}
		if items, ok := doc["items"].([]any); ok {
			extracted["items_count"] = len(items)
			total := 0.0
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					if amount, ok := m["amount"].(float64); ok {
						total += amount
					}
				}
			}
			extracted["items_total"] = total
		}
	case "rfq":
		for _, field := range []string{"rfq_number", "delivery_date", "contact_person"} {
			if v, ok := doc[field]; ok {
				extracted[field] = v
			}
		}
		if name, ok := nestedName(doc, "customer"); ok {
			extracted["customer_name"] = name
		}
		if items, ok := doc["items"].([]any); ok {
			extracted["items_count"] = len(items)
			summary := make([]string, 0, len(items))
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					if desc, ok := m["description"].(string); ok {
						summary = append(summary, desc)
					} else {
						summary = append(summary, "unknown item")
					}
				}
			}
			extracted["items_summary"] = summary
		}
	case "complaint":
		for _, field := range []string{"customer_id", "message", "severity", "category"} {
			if v, ok := doc[field]; ok {
				extracted[field] = v
			}
		}
	}

	return extracted
}

// nestedName pulls the "name" member out of an object-valued field.
func nestedName(doc map[string]any, field string) (string, bool) {
	obj, ok := doc[field].(map[string]any)
	if !ok {
		return "", false
	}
	name, ok := obj["name"].(string)
	return name, ok
}
