package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/karsov/docroute/internal/queue"
	"github.com/karsov/docroute/internal/storage"
)

const testToken = "test-token-12345"

func setupAppHandler(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewAppHandler(AppDeps{
		Store: store,
		Token: token,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func seedThread(t *testing.T, store *storage.Store, format, intent string) string {
	t.Helper()
	id, err := store.CreateThread("test.json", format, intent)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	return id
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/threads", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/threads", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthDisabledWhenTokenEmpty(t *testing.T) {
	h, _ := setupAppHandler(t, "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/healthz", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestListThreads(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	seedThread(t, store, "json", "invoice")
	seedThread(t, store, "email", "complaint")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/threads", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var threads []storage.Thread
	if err := json.Unmarshal(rr.Body.Bytes(), &threads); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("got %d threads, want 2", len(threads))
	}
}

func TestListThreadsEmptyIsArray(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/threads", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want []", got)
	}
}

func TestGetThread(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	id := seedThread(t, store, "json", "invoice")
	if err := store.StoreExtractedField(id, "vendor_name", "Acme Corp"); err != nil {
		t.Fatalf("StoreExtractedField failed: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/threads/"+id, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var snapshot storage.ThreadSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if snapshot.ThreadID != id {
		t.Fatalf("thread id = %q, want %q", snapshot.ThreadID, id)
	}
	if len(snapshot.ExtractedFields) != 1 {
		t.Fatalf("got %d extracted fields, want 1", len(snapshot.ExtractedFields))
	}
}

func TestGetThreadNotFound(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/threads/nonexistent", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStats(t *testing.T) {
	h, store := setupAppHandler(t, testToken)
	seedThread(t, store, "json", "invoice")
	seedThread(t, store, "email", "complaint")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/stats", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var summary struct {
		TotalThreads int            `json:"total_threads"`
		ByFormat     map[string]int `json:"by_format"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if summary.TotalThreads != 2 {
		t.Fatalf("total_threads = %d, want 2", summary.TotalThreads)
	}
	if summary.ByFormat["json"] != 1 {
		t.Fatalf("by_format[json] = %d, want 1", summary.ByFormat["json"])
	}
}

func TestSubmitDocumentQueuesJob(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/documents", `{"path":"/docs/invoice.json"}`, testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp["status"] != "queued" || resp["job_id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	job, err := store.ClaimNextJob([]string{queue.JobTypeProcessDocument})
	if err != nil {
		t.Fatalf("claiming job: %v", err)
	}
	if job == nil {
		t.Fatal("expected a queued job")
	}
	if job.ID != resp["job_id"] {
		t.Fatalf("job id = %q, want %q", job.ID, resp["job_id"])
	}
}

func TestSubmitDocumentRejectsEmptyPath(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/documents", `{"path":""}`, testToken)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
