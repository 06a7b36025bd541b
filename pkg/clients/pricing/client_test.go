package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mamadbah2/restock/internal/config"
)

func TestWebhookClient_TriggerRecompute(t *testing.T) {
	var got recomputeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewWebhookClient(config.PriceSyncConfig{WebhookURL: srv.URL})
	if err := client.TriggerRecompute(context.Background(), "tenant-1", "branch-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TenantID != "tenant-1" || got.LocationID != "branch-a" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestWebhookClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewWebhookClient(config.PriceSyncConfig{WebhookURL: srv.URL})
	if err := client.TriggerRecompute(context.Background(), "tenant-1", "branch-a"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
