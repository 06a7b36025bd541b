package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := Load("does-not-exist.env")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.MongoDB.TxTimeout != 10*time.Second {
		t.Errorf("expected 10s tx timeout, got %s", cfg.MongoDB.TxTimeout)
	}
	if cfg.Outbox.BatchSize != 50 || cfg.Outbox.MaxAttempts != 8 {
		t.Errorf("unexpected outbox defaults %+v", cfg.Outbox)
	}
	if cfg.WhatsApp.Enabled() || cfg.Sheets.Enabled() {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing_mongo",
			env:  map[string]string{"MONGODB_URI": ""},
			want: "MONGODB_URI",
		},
		{
			name: "bad_duration",
			env:  map[string]string{"MONGODB_URI": "mongodb://x", "MONGODB_TX_TIMEOUT": "soon"},
			want: "MONGODB_TX_TIMEOUT",
		},
		{
			name: "whatsapp_without_recipient",
			env:  map[string]string{"MONGODB_URI": "mongodb://x", "WHATSAPP_TOKEN": "tok", "WHATSAPP_PHONE_NUMBER_ID": "123"},
			want: "WHATSAPP_NOTIFY_TO",
		},
		{
			name: "sheets_without_credentials",
			env:  map[string]string{"MONGODB_URI": "mongodb://x", "GOOGLE_SHEET_AUDIT_ID": "sheet"},
			want: "GOOGLE_SHEETS_CREDENTIALS_PATH",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("does-not-exist.env")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
