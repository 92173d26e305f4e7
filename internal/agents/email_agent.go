package agents

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karsov/docroute/internal/detect"
	"github.com/karsov/docroute/internal/heuristics"
	"github.com/karsov/docroute/internal/storage"
)

// EmailAgent extracts structured information from email documents and
// normalizes it into a CRM-friendly shape.
type EmailAgent struct {
	store  ThreadStore
	logger *slog.Logger
}

func NewEmailAgent(store ThreadStore) *EmailAgent {
	return &EmailAgent{store: store, logger: slog.Default()}
}

func (a *EmailAgent) Name() string { return EmailAgentName }

// Process extracts header fields and runs the heuristic data-quality pass
// (urgency, contacts, dates, amounts). Independent fields are written as
// they are produced.
func (a *EmailAgent) Process(threadID string, content Content) (Result, error) {
	if err := a.store.UpdateStatus(threadID, storage.StatusProcessingPrefix+"email"); err != nil {
		return Result{}, fmt.Errorf("marking thread processing: %w", err)
	}

	email := content.Email
	if email.From == "" {
		a.logger.Warn("email has no sender header", "thread_id", threadID)
	}
	extracted := map[string]any{
		"sender":  email.From,
		"subject": email.Subject,
		"date":    email.Date,
	}
	for _, name := range []string{"sender", "subject", "date"} {
		if err := a.store.StoreExtractedField(threadID, name, extracted[name]); err != nil {
			return Result{}, fmt.Errorf("storing field %q: %w", name, err)
		}
	}

	domain := heuristics.SenderDomain(email.From)
	if domain != "" {
		extracted["sender_domain"] = domain
		if err := a.store.StoreExtractedField(threadID, "sender_domain", domain); err != nil {
			return Result{}, fmt.Errorf("storing sender domain: %w", err)
		}
	}

	urgency := heuristics.Urgency(email.Subject, email.Body)
	if err := a.store.StoreExtractedField(threadID, "urgency", urgency); err != nil {
		return Result{}, fmt.Errorf("storing urgency: %w", err)
	}

	contacts := heuristics.Contacts(email.Body)
	if len(contacts) > 0 {
		if err := a.store.StoreExtractedField(threadID, "mentioned_contacts", contacts); err != nil {
			return Result{}, fmt.Errorf("storing contacts: %w", err)
		}
	}

	dates := heuristics.Dates(email.Body)
	if len(dates) > 0 {
		if err := a.store.StoreExtractedField(threadID, "mentioned_dates", dates); err != nil {
			return Result{}, fmt.Errorf("storing dates: %w", err)
		}
	}

	amounts := heuristics.Amounts(email.Body)
	if len(amounts) > 0 {
		if err := a.store.StoreExtractedField(threadID, "mentioned_amounts", amounts); err != nil {
			return Result{}, fmt.Errorf("storing amounts: %w", err)
		}
	}

	snap, err := a.store.GetThread(threadID)
	if err != nil {
		return Result{}, fmt.Errorf("loading thread: %w", err)
	}

	quality := DataQuality{
		Urgency:  urgency,
		Contacts: contacts,
		Dates:    dates,
		Amounts:  amounts,
	}
	if v, ok := heuristics.PotentialValue(amounts); ok {
		quality.PotentialValue = &v
	}

	crm := normalizeCRM(email, snap.Intent, snap.CreatedAt, domain, quality)
	if err := a.store.StoreExtractedField(threadID, "crm_normalized", crm); err != nil {
		return Result{}, fmt.Errorf("storing crm output: %w", err)
	}

	if err := a.store.UpdateStatus(threadID, storage.StatusCompleted); err != nil {
		return Result{}, fmt.Errorf("marking thread completed: %w", err)
	}

	extracted["urgency"] = urgency
	return Result{
		ThreadID:        threadID,
		ExtractedFields: extracted,
		DataQuality:     quality,
	}, nil
}

// normalizeCRM builds the CRM-friendly grouping of everything extracted.
func normalizeCRM(email detect.Email, intent string, received time.Time, domain string, q DataQuality) map[string]any {
	var potential any
	if q.PotentialValue != nil {
		potential = *q.PotentialValue
	}
	return map[string]any{
		"contact": map[string]any{
			"email":            email.From,
			"domain":           domain,
			"organization":     domain,
			"related_contacts": q.Contacts,
		},
		"communication": map[string]any{
			"channel":         "email",
			"subject":         email.Subject,
			"urgency":         q.Urgency,
			"category":        intent,
			"received_date":   received.UTC().Format(time.RFC3339),
			"mentioned_dates": q.Dates,
		},
		"business": map[string]any{
			"mentioned_amounts":  q.Amounts,
			"potential_value":    potential,
			"follow_up_required": q.Urgency != heuristics.UrgencyLow,
		},
	}
}
