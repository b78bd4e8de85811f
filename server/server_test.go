package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"redmatrix/ledger"
	"redmatrix/models"
	"redmatrix/notes"
	"redmatrix/verification"
)

type stubLedger struct {
	entries []ledger.TxMetadata
	err     error
}

func (s *stubLedger) FetchMetadata(ctx context.Context, txHash string) ([]ledger.TxMetadata, error) {
	return s.entries, s.err
}

func setupServer(t *testing.T, client verification.LedgerClient) (*Server, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	verifications, err := verification.NewService(verification.Config{DB: db, Ledger: client})
	if err != nil {
		t.Fatalf("verification service: %v", err)
	}
	noteService, err := notes.NewService(notes.Config{DB: db, Verifications: verifications})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	verifications.SetNotes(noteService)

	worker := verification.NewWorker(verification.WorkerConfig{Service: verifications})
	return New(Config{Notes: noteService, Verifications: verifications, Worker: worker, Ledger: client}), db
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNoteLifecycleOverHTTP(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{err: ledger.ErrNotFound})
	h := srv.Handler()

	res := doJSON(t, h, http.MethodPost, "/api/notes", map[string]string{
		"title":       "manifest",
		"content":     "cargo list",
		"txHash":      "tx-1",
		"ownerWallet": "addr1",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", res.Code, res.Body.String())
	}
	var note models.Note
	if err := json.Unmarshal(res.Body.Bytes(), &note); err != nil {
		t.Fatalf("decode note: %v", err)
	}
	if note.ContentHash == "" {
		t.Fatal("expected server-computed content hash")
	}

	res = doJSON(t, h, http.MethodGet, "/api/notes/"+note.ID.String(), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", res.Code)
	}

	res = doJSON(t, h, http.MethodGet, "/api/notes/search?keyword=manifest", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", res.Code)
	}
	var found []models.Note
	if err := json.Unmarshal(res.Body.Bytes(), &found); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}

	// Saving with a tx hash queued a verification record.
	res = doJSON(t, h, http.MethodGet, "/api/verifications/tx/tx-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("verification lookup: expected 200, got %d", res.Code)
	}

	res = doJSON(t, h, http.MethodDelete, "/api/notes/"+note.ID.String(), nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", res.Code)
	}
	res = doJSON(t, h, http.MethodGet, "/api/notes/"+note.ID.String(), nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", res.Code)
	}
}

func TestCreateNoteValidation(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{})
	res := doJSON(t, srv.Handler(), http.MethodPost, "/api/notes", map[string]string{"content": "no title"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestEnqueueAndRetryVerification(t *testing.T) {
	client := &stubLedger{entries: []ledger.TxMetadata{{
		Label:        "674",
		JSONMetadata: map[string]any{"contentHash": "hash-1", "msg": "note created"},
	}}}
	srv, _ := setupServer(t, client)
	h := srv.Handler()
	noteID := uuid.New()

	res := doJSON(t, h, http.MethodPost, "/api/verifications", map[string]any{
		"noteId":      noteID,
		"txHash":      "tx-9",
		"contentHash": "hash-1",
		"ownerWallet": "addr1",
	})
	if res.Code != http.StatusAccepted {
		t.Fatalf("enqueue: expected 202, got %d (%s)", res.Code, res.Body.String())
	}
	var rec models.TransactionVerification
	if err := json.Unmarshal(res.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Status != models.StatusPending {
		t.Fatalf("expected PENDING, got %s", rec.Status)
	}

	res = doJSON(t, h, http.MethodPost, "/api/verifications/"+rec.ID.String()+"/retry", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	var after models.TransactionVerification
	if err := json.Unmarshal(res.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if after.Status != models.StatusVerified {
		t.Fatalf("expected VERIFIED after retry, got %s", after.Status)
	}

	res = doJSON(t, h, http.MethodGet, "/api/verifications/stats", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", res.Code)
	}
	var stats map[string]int64
	if err := json.Unmarshal(res.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["verified"] != 1 || stats["total"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestVerificationNotFoundResponses(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{})
	h := srv.Handler()

	res := doJSON(t, h, http.MethodGet, "/api/verifications/"+uuid.NewString(), nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 by id, got %d", res.Code)
	}
	res = doJSON(t, h, http.MethodGet, "/api/verifications/tx/tx-unknown", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 by tx hash, got %d", res.Code)
	}
	res = doJSON(t, h, http.MethodGet, "/api/verifications/not-a-uuid", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", res.Code)
	}
}

func TestWorkerStatusEndpoint(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{})
	res := doJSON(t, srv.Handler(), http.MethodGet, "/api/verifications/worker/status", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var status verification.WorkerStatus
	if err := json.Unmarshal(res.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running {
		t.Fatal("worker must be idle")
	}
}

func TestTransactionMetadataPassthrough(t *testing.T) {
	client := &stubLedger{entries: []ledger.TxMetadata{{
		Label:        "674",
		JSONMetadata: map[string]any{"contentHash": "abc"},
	}}}
	srv, _ := setupServer(t, client)
	h := srv.Handler()

	res := doJSON(t, h, http.MethodGet, "/api/blockfrost/txs/tx-1/metadata", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	var entries []ledger.TxMetadata
	if err := json.Unmarshal(res.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Label != "674" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}

func TestTransactionMetadataUnconfigured(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{err: ledger.ErrUnconfigured})
	res := doJSON(t, srv.Handler(), http.MethodGet, "/api/blockfrost/txs/tx-1/metadata", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestTransactionMetadataNotFound(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{err: ledger.ErrNotFound})
	res := doJSON(t, srv.Handler(), http.MethodGet, "/api/blockfrost/txs/tx-missing/metadata", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t, &stubLedger{})
	res := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
