package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateThread allocates a new thread for a document and persists it with
// status "started". Returns the new thread id.
func (s *Store) CreateThread(inputSource, format, intent string) (string, error) {
	threadID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`
		INSERT INTO threads (thread_id, input_source, created_at, format, intent, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?, '{}')`,
		threadID, inputSource, now, format, intent, StatusStarted,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return "", fmt.Errorf("thread %s: %w", threadID, ErrDuplicateThread)
		}
		return "", fmt.Errorf("inserting thread: %w", err)
	}
	return threadID, nil
}

// UpdateStatus moves a thread to the next lifecycle status. Transitions must
// be monotonic: started -> processing_<agent> -> completed, with "error"
// accepted from any live state. Regressions fail with ErrInvalidTransition.
func (s *Store) UpdateStatus(threadID, status string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning status transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow("SELECT status FROM threads WHERE thread_id = ?", threadID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("thread %s: %w", threadID, ErrUnknownThread)
	}
	if err != nil {
		return fmt.Errorf("reading current status: %w", err)
	}

	if !validTransition(current, status) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, current, status)
	}

	if _, err := tx.Exec("UPDATE threads SET status = ? WHERE thread_id = ?", status, threadID); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return tx.Commit()
}

// UpdateMetadata merges patch into the thread's metadata, last write wins
// per key. The read-merge-write happens inside one transaction.
func (s *Store) UpdateMetadata(threadID string, patch map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning metadata transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow("SELECT metadata FROM threads WHERE thread_id = ?", threadID).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("thread %s: %w", threadID, ErrUnknownThread)
	}
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}

	merged := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &merged); err != nil {
			return fmt.Errorf("parsing stored metadata: %w", err)
		}
	}
	for k, v := range patch {
		merged[k] = v
	}

	buf, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	if _, err := tx.Exec("UPDATE threads SET metadata = ? WHERE thread_id = ?", string(buf), threadID); err != nil {
		return fmt.Errorf("updating metadata: %w", err)
	}
	return tx.Commit()
}

// StoreExtractedField appends a field record for a thread. Previous values
// with the same name are retained, never overwritten.
func (s *Store) StoreExtractedField(threadID, name string, value any) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding field %q: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning field transaction: %w", err)
	}
	defer tx.Rollback()

	if err := threadExists(tx, threadID); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO extracted_fields (thread_id, field_name, field_value)
		VALUES (?, ?, ?)`,
		threadID, name, string(buf),
	); err != nil {
		return fmt.Errorf("inserting field %q: %w", name, err)
	}
	return tx.Commit()
}

// LogRouting appends a routing record with a store-assigned timestamp.
func (s *Store) LogRouting(threadID, fromAgent, toAgent, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning routing transaction: %w", err)
	}
	defer tx.Rollback()

	if err := threadExists(tx, threadID); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO routing_log (thread_id, timestamp, from_agent, to_agent, reason)
		VALUES (?, ?, ?, ?, ?)`,
		threadID, now, fromAgent, toAgent, reason,
	); err != nil {
		return fmt.Errorf("inserting routing entry: %w", err)
	}
	return tx.Commit()
}

// GetThread returns the full snapshot of a thread: main record, latest
// value per field name, and the complete routing history in order.
func (s *Store) GetThread(threadID string) (ThreadSnapshot, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return ThreadSnapshot{}, fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	snap, err := snapshotThread(tx, threadID)
	if err != nil {
		return ThreadSnapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return ThreadSnapshot{}, err
	}
	return snap, nil
}

// FieldHistory returns every stored value for one field name in insertion
// order, including superseded ones.
func (s *Store) FieldHistory(threadID, name string) ([]FieldValue, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	if err := threadExists(tx, threadID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(`
		SELECT id, field_value FROM extracted_fields
		WHERE thread_id = ? AND field_name = ? ORDER BY id ASC`,
		threadID, name,
	)
	if err != nil {
		return nil, err
	}

	var history []FieldValue
	for rows.Next() {
		var seq int64
		var raw string
		if err := rows.Scan(&seq, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		history = append(history, FieldValue{Name: name, Value: decodeFieldValue(raw), Seq: seq})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	return history, tx.Commit()
}

// ListThreadIDs returns every thread id ordered by creation time, then id,
// so exports are deterministic for fixed data.
func (s *Store) ListThreadIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT thread_id FROM threads ORDER BY created_at ASC, thread_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListThreads returns the most recent thread records (without child records).
func (s *Store) ListThreads(limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT thread_id, input_source, created_at, format, intent, status, metadata
		FROM threads ORDER BY created_at DESC, thread_id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (Thread, error) {
	var t Thread
	var createdAt, metadata string
	if err := row.Scan(&t.ID, &t.InputSource, &createdAt, &t.Format, &t.Intent, &t.Status, &metadata); err != nil {
		return Thread{}, err
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Thread{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.CreatedAt = ts
	t.Metadata = make(map[string]any)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
			return Thread{}, fmt.Errorf("parsing metadata: %w", err)
		}
	}
	return t, nil
}

// snapshotThread reads a full thread snapshot within an open transaction.
func snapshotThread(tx *sql.Tx, threadID string) (ThreadSnapshot, error) {
	row := tx.QueryRow(`
		SELECT thread_id, input_source, created_at, format, intent, status, metadata
		FROM threads WHERE thread_id = ?`, threadID,
	)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return ThreadSnapshot{}, fmt.Errorf("thread %s: %w", threadID, ErrUnknownThread)
	}
	if err != nil {
		return ThreadSnapshot{}, err
	}

	snap := ThreadSnapshot{
		ThreadID:        t.ID,
		InputSource:     t.InputSource,
		CreatedAt:       t.CreatedAt,
		Format:          t.Format,
		Intent:          t.Intent,
		Status:          t.Status,
		Metadata:        t.Metadata,
		ExtractedFields: make(map[string]any),
	}

	// Rows come back in insertion order, so the last value per name wins.
	fieldRows, err := tx.Query(`
		SELECT field_name, field_value FROM extracted_fields
		WHERE thread_id = ? ORDER BY id ASC`, threadID,
	)
	if err != nil {
		return ThreadSnapshot{}, err
	}
	defer fieldRows.Close()
	for fieldRows.Next() {
		var name, raw string
		if err := fieldRows.Scan(&name, &raw); err != nil {
			return ThreadSnapshot{}, err
		}
		snap.ExtractedFields[name] = decodeFieldValue(raw)
	}
	if err := fieldRows.Err(); err != nil {
		return ThreadSnapshot{}, err
	}

	routingRows, err := tx.Query(`
		SELECT timestamp, from_agent, to_agent, reason FROM routing_log
		WHERE thread_id = ? ORDER BY id ASC`, threadID,
	)
	if err != nil {
		return ThreadSnapshot{}, err
	}
	defer routingRows.Close()
	for routingRows.Next() {
		var entry RoutingEntry
		var ts string
		if err := routingRows.Scan(&ts, &entry.FromAgent, &entry.ToAgent, &entry.Reason); err != nil {
			return ThreadSnapshot{}, err
		}
		if entry.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return ThreadSnapshot{}, fmt.Errorf("parsing routing timestamp: %w", err)
		}
		snap.RoutingHistory = append(snap.RoutingHistory, entry)
	}
	return snap, routingRows.Err()
}

// threadExists maps a missing thread to ErrUnknownThread inside tx.
func threadExists(tx *sql.Tx, threadID string) error {
	var one int
	err := tx.QueryRow("SELECT 1 FROM threads WHERE thread_id = ?", threadID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("thread %s: %w", threadID, ErrUnknownThread)
	}
	return err
}

// decodeFieldValue reconstructs a stored JSON value. Values are always
// written by json.Marshal, so a decode failure means raw legacy data;
// return it as-is rather than dropping it.
func decodeFieldValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
