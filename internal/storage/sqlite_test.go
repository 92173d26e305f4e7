package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_extracted_fields_thread", "idx_routing_log_thread", "idx_threads_created", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestCreateThreadAndGet(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateThread("docs/invoice.json", "json", "invoice")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty thread id")
	}

	snap, err := s.GetThread(id)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if snap.ThreadID != id {
		t.Errorf("thread id = %q, want %q", snap.ThreadID, id)
	}
	if snap.InputSource != "docs/invoice.json" {
		t.Errorf("input source = %q", snap.InputSource)
	}
	if snap.Format != "json" || snap.Intent != "invoice" {
		t.Errorf("format/intent = %q/%q", snap.Format, snap.Intent)
	}
	if snap.Status != StatusStarted {
		t.Errorf("initial status = %q, want %q", snap.Status, StatusStarted)
	}
	if snap.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
	if len(snap.ExtractedFields) != 0 {
		t.Errorf("new thread has %d fields", len(snap.ExtractedFields))
	}
	if len(snap.RoutingHistory) != 0 {
		t.Errorf("new thread has %d routing entries", len(snap.RoutingHistory))
	}
}

func TestCreateThreadIDsUnique(t *testing.T) {
	s := openTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := s.CreateThread(fmt.Sprintf("doc-%d", i), "email", "unknown")
		if err != nil {
			t.Fatalf("CreateThread %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate thread id %s", id)
		}
		seen[id] = true
	}
}

func TestUnknownThreadRejected(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpdateStatus("no-such-thread", StatusCompleted); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("UpdateStatus error = %v, want ErrUnknownThread", err)
	}
	if err := s.UpdateMetadata("no-such-thread", map[string]any{"k": "v"}); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("UpdateMetadata error = %v, want ErrUnknownThread", err)
	}
	if err := s.StoreExtractedField("no-such-thread", "sender", "a@b.com"); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("StoreExtractedField error = %v, want ErrUnknownThread", err)
	}
	if err := s.LogRouting("no-such-thread", "classifier_agent", "email_agent", "x"); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("LogRouting error = %v, want ErrUnknownThread", err)
	}
	if _, err := s.GetThread("no-such-thread"); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("GetThread error = %v, want ErrUnknownThread", err)
	}

	// No orphan child rows may exist after the rejected writes.
	var orphans int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM extracted_fields").Scan(&orphans); err != nil {
		t.Fatalf("counting fields: %v", err)
	}
	if orphans != 0 {
		t.Errorf("found %d orphan field rows", orphans)
	}
}

func TestUnknownThreadMatchesNotFound(t *testing.T) {
	s := openTestStore(t)

	// Callers outside this package match on ErrNotFound; the thread
	// sentinel must satisfy both.
	_, err := s.GetThread("no-such-thread")
	if !errors.Is(err, ErrUnknownThread) {
		t.Fatalf("GetThread error = %v, want ErrUnknownThread", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetThread error = %v, should also match ErrNotFound", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateThread("doc.eml", "email", "complaint")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if err := s.UpdateStatus(id, "processing_email"); err != nil {
		t.Fatalf("started -> processing_email: %v", err)
	}
	if err := s.UpdateStatus(id, StatusStarted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("regression to started: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.UpdateStatus(id, "processing_json"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("sideways to processing_json: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.UpdateStatus(id, StatusCompleted); err != nil {
		t.Fatalf("processing_email -> completed: %v", err)
	}
	if err := s.UpdateStatus(id, "processing_email"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("regression from completed: err = %v, want ErrInvalidTransition", err)
	}

	// Error sink is reachable from completed but is terminal.
	if err := s.UpdateStatus(id, StatusError); err != nil {
		t.Fatalf("completed -> error: %v", err)
	}
	if err := s.UpdateStatus(id, StatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("leaving error: err = %v, want ErrInvalidTransition", err)
	}

	if err := s.UpdateStatus(id, "shipped"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown status: err = %v, want ErrInvalidTransition", err)
	}
}

func TestMetadataMergeLastWriteWins(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateThread("doc.json", "json", "invoice")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if err := s.UpdateMetadata(id, map[string]any{"confidence": 0.4, "source": "cli"}); err != nil {
		t.Fatalf("first UpdateMetadata: %v", err)
	}
	if err := s.UpdateMetadata(id, map[string]any{"confidence": 0.9}); err != nil {
		t.Fatalf("second UpdateMetadata: %v", err)
	}

	snap, err := s.GetThread(id)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got := snap.Metadata["confidence"]; got != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got)
	}
	if got := snap.Metadata["source"]; got != "cli" {
		t.Errorf("source = %v, want cli (merge dropped untouched key)", got)
	}
}

func TestExtractedFieldsAppendOnly(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateThread("doc.eml", "email", "update")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if err := s.StoreExtractedField(id, "urgency", "low"); err != nil {
		t.Fatalf("first StoreExtractedField: %v", err)
	}
	if err := s.StoreExtractedField(id, "urgency", "high"); err != nil {
		t.Fatalf("second StoreExtractedField: %v", err)
	}

	history, err := s.FieldHistory(id, "urgency")
	if err != nil {
		t.Fatalf("FieldHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Value != "low" || history[1].Value != "high" {
		t.Errorf("history values = %v, %v", history[0].Value, history[1].Value)
	}
	if history[0].Seq >= history[1].Seq {
		t.Errorf("sequence not increasing: %d, %d", history[0].Seq, history[1].Seq)
	}

	snap, err := s.GetThread(id)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got := snap.ExtractedFields["urgency"]; got != "high" {
		t.Errorf("latest urgency = %v, want high", got)
	}
}

func TestFieldValueRoundTripsStructures(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateThread("doc.json", "json", "invoice")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	nested := map[string]any{
		"contact": map[string]any{"email": "a@b.com"},
		"amounts": []any{"$1,250.00"},
	}
	if err := s.StoreExtractedField(id, "crm_normalized", nested); err != nil {
		t.Fatalf("StoreExtractedField: %v", err)
	}

	snap, err := s.GetThread(id)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	got, ok := snap.ExtractedFields["crm_normalized"].(map[string]any)
	if !ok {
		t.Fatalf("crm_normalized decoded as %T, want map", snap.ExtractedFields["crm_normalized"])
	}
	contact, ok := got["contact"].(map[string]any)
	if !ok || contact["email"] != "a@b.com" {
		t.Errorf("nested contact not reconstructed: %v", got["contact"])
	}
}

func TestSnapshotIsolatedPerThread(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateThread("a.json", "json", "invoice")
	if err != nil {
		t.Fatalf("CreateThread a: %v", err)
	}
	b, err := s.CreateThread("b.eml", "email", "complaint")
	if err != nil {
		t.Fatalf("CreateThread b: %v", err)
	}

	// Interleave writes across both threads.
	if err := s.StoreExtractedField(a, "invoice_number", "X1"); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreExtractedField(b, "sender", "c@d.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.LogRouting(a, "classifier_agent", "json_agent", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := s.LogRouting(b, "classifier_agent", "email_agent", "r2"); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreExtractedField(a, "total_amount", 99.5); err != nil {
		t.Fatal(err)
	}

	snapA, err := s.GetThread(a)
	if err != nil {
		t.Fatalf("GetThread a: %v", err)
	}
	if len(snapA.ExtractedFields) != 2 {
		t.Errorf("thread a has %d fields, want 2", len(snapA.ExtractedFields))
	}
	if len(snapA.RoutingHistory) != 1 || snapA.RoutingHistory[0].ToAgent != "json_agent" {
		t.Errorf("thread a routing = %+v", snapA.RoutingHistory)
	}

	snapB, err := s.GetThread(b)
	if err != nil {
		t.Fatalf("GetThread b: %v", err)
	}
	if len(snapB.ExtractedFields) != 1 {
		t.Errorf("thread b has %d fields, want 1", len(snapB.ExtractedFields))
	}
	if snapB.ExtractedFields["sender"] != "c@d.com" {
		t.Errorf("thread b sender = %v", snapB.ExtractedFields["sender"])
	}
}

func TestExportAllDeterministic(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateThread("doc.json", "json", "invoice")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := s.StoreExtractedField(id, "invoice_number", "X1"); err != nil {
		t.Fatal(err)
	}
	if err := s.LogRouting(id, "classifier_agent", "json_agent", "detected"); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out", "logs.json")

	p1, err := s.ExportAll(dest)
	if err != nil {
		t.Fatalf("first ExportAll: %v", err)
	}
	if p1 != dest {
		t.Errorf("export path = %q, want %q", p1, dest)
	}
	first, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}

	if _, err := s.ExportAll(dest); err != nil {
		t.Fatalf("second ExportAll: %v", err)
	}
	second, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("re-reading export: %v", err)
	}

	if string(first) != string(second) {
		t.Error("repeated export over unchanged data differs")
	}
	if len(first) == 0 || first[0] != '[' {
		t.Errorf("export is not a JSON array: %q", string(first[:min(len(first), 20)]))
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "process_document", PayloadJSON: `{"path":"doc.json"}`, MaxAttempts: 2}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"process_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil || claimed.ID != "job-1" {
		t.Fatalf("claimed = %+v", claimed)
	}
	if claimed.Status != "running" {
		t.Errorf("claimed status = %q", claimed.Status)
	}

	// Nothing else pending.
	none, err := s.ClaimNextJob([]string{"process_document"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if none != nil {
		t.Errorf("claimed a running job: %+v", none)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := s.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestFailJobRetriesThenFails(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-2", Type: "process_document", PayloadJSON: `{}`, MaxAttempts: 2}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if err := s.FailJob("job-2", "boom"); err != nil {
		t.Fatalf("first FailJob: %v", err)
	}
	var status string
	if err := s.db.QueryRow("SELECT status FROM jobs WHERE id = 'job-2'").Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "pending" {
		t.Errorf("status after first failure = %q, want pending (retry)", status)
	}

	if err := s.FailJob("job-2", "boom again"); err != nil {
		t.Fatalf("second FailJob: %v", err)
	}
	if err := s.db.QueryRow("SELECT status FROM jobs WHERE id = 'job-2'").Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "failed" {
		t.Errorf("status after max attempts = %q, want failed", status)
	}
}

func TestJobBackoffDoubles(t *testing.T) {
	for attempts, want := range map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
	} {
		if got := jobBackoff(attempts); got != want {
			t.Errorf("jobBackoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}
