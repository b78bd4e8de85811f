package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchMetadataSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/txs/tx-abc/metadata" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("project_id"); got != "secret" {
			t.Errorf("expected project_id header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"label":"674","json_metadata":{"contentHash":"abc","msg":["note created"]}},
			{"label":"721","json_metadata":"something else"}
		]`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ProjectID: "secret"})
	entries, err := client.FetchMetadata(context.Background(), "tx-abc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Label != "674" {
		t.Fatalf("expected label 674, got %s", entries[0].Label)
	}
	payload, ok := entries[0].JSONMetadata.(map[string]any)
	if !ok {
		t.Fatalf("expected structured payload, got %T", entries[0].JSONMetadata)
	}
	if payload["contentHash"] != "abc" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestFetchMetadataNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_code":404}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ProjectID: "secret"})
	if _, err := client.FetchMetadata(context.Background(), "tx-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchMetadataUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ProjectID: "secret"})
	if _, err := client.FetchMetadata(context.Background(), "tx-abc"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestFetchMetadataUnconfigured(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:0"})
	if _, err := client.FetchMetadata(context.Background(), "tx-abc"); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured, got %v", err)
	}
}

func TestFetchMetadataRequiresHash(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:0", ProjectID: "secret"})
	if _, err := client.FetchMetadata(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank tx hash")
	}
}
