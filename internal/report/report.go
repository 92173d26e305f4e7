// Package report aggregates store contents into a processing summary.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/karsov/docroute/internal/storage"
)

// ThreadSource is the slice of the store the report needs.
type ThreadSource interface {
	ListThreadIDs() ([]string, error)
	GetThread(threadID string) (storage.ThreadSnapshot, error)
}

// Summary is the aggregate view over all processed documents.
type Summary struct {
	TotalThreads  int            `json:"total_threads"`
	ByFormat      map[string]int `json:"by_format"`
	ByIntent      map[string]int `json:"by_intent"`
	ByStatus      map[string]int `json:"by_status"`
	ByUrgency     map[string]int `json:"by_urgency"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// FromStore loads every thread and aggregates it.
func FromStore(src ThreadSource) (Summary, error) {
	ids, err := src.ListThreadIDs()
	if err != nil {
		return Summary{}, fmt.Errorf("listing threads: %w", err)
	}
	snapshots := make([]storage.ThreadSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := src.GetThread(id)
		if err != nil {
			return Summary{}, fmt.Errorf("loading thread %s: %w", id, err)
		}
		snapshots = append(snapshots, snap)
	}
	return Build(snapshots), nil
}

// Build aggregates snapshots into a Summary.
func Build(snapshots []storage.ThreadSnapshot) Summary {
	s := Summary{
		ByFormat:  make(map[string]int),
		ByIntent:  make(map[string]int),
		ByStatus:  make(map[string]int),
		ByUrgency: make(map[string]int),
	}

	var confidenceSum float64
	var confidenceCount int

	for _, snap := range snapshots {
		s.TotalThreads++
		s.ByFormat[snap.Format]++
		s.ByIntent[snap.Intent]++
		s.ByStatus[snap.Status]++

		if urgency, ok := snap.ExtractedFields["urgency"].(string); ok {
			s.ByUrgency[urgency]++
		}
		if c, ok := snap.Metadata["confidence"].(float64); ok {
			confidenceSum += c
			confidenceCount++
		}
	}

	if confidenceCount > 0 {
		s.AvgConfidence = confidenceSum / float64(confidenceCount)
	}
	return s
}

// WriteMarkdown renders the summary as a small markdown document.
func WriteMarkdown(w io.Writer, s Summary) error {
	if _, err := fmt.Fprintf(w, "# Processing summary\n\nTotal documents: %d\n", s.TotalThreads); err != nil {
		return err
	}
	if s.TotalThreads == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "Average detection confidence: %.2f\n", s.AvgConfidence); err != nil {
		return err
	}

	sections := []struct {
		title  string
		counts map[string]int
	}{
		{"By format", s.ByFormat},
		{"By intent", s.ByIntent},
		{"By status", s.ByStatus},
		{"By urgency", s.ByUrgency},
	}
	for _, sec := range sections {
		if len(sec.counts) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n## %s\n\n", sec.title); err != nil {
			return err
		}
		keys := make([]string, 0, len(sec.counts))
		for k := range sec.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "- %s: %d\n", k, sec.counts[k]); err != nil {
				return err
			}
		}
	}
	return nil
}
