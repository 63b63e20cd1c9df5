package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/3obby/voicelink/internal/voiceconfig"
)

func TestTokenClient_Issue(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer api-key-123" {
			t.Errorf("auth header: %q", auth)
		}
		gotQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		fmt.Fprintf(w, `{"token":"ephemeral-abc","expires_at":%d}`, time.Now().Add(time.Minute).Unix())
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "api-key-123")
	cfg := voiceconfig.Default()
	cfg.Language = "en"

	cred, err := client.Issue(context.Background(), cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cred.Token != "ephemeral-abc" {
		t.Errorf("token: %q", cred.Token)
	}
	if cred.ExpiresAt.Before(time.Now()) {
		t.Errorf("expiry in the past: %v", cred.ExpiresAt)
	}

	for key, want := range map[string]string{
		"voice":               "sage",
		"modality":            "both",
		"vad_mode":            "server_vad",
		"vad_threshold":       "0.5",
		"prefix_padding_ms":   "300",
		"silence_duration_ms": "500",
		"temperature":         "0.8",
		"max_response_tokens": "4096",
		"audio_format":        "pcm16",
		"language":            "en",
	} {
		if gotQuery[key] != want {
			t.Errorf("query %s: got %q, want %q", key, gotQuery[key], want)
		}
	}
}

func TestTokenClient_RejectionVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"voice not permitted for this account"}`)
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "api-key-123")
	_, err := client.Issue(context.Background(), voiceconfig.Default())
	var ce *CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want *CredentialError", err)
	}
	if ce.StatusCode != http.StatusForbidden {
		t.Errorf("status: %d", ce.StatusCode)
	}
	if ce.Detail != `{"error":"voice not permitted for this account"}` {
		t.Errorf("detail not verbatim: %q", ce.Detail)
	}
}

func TestTokenClient_EmptyTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":"","expires_at":0}`)
	}))
	defer server.Close()

	client := NewTokenClient(server.URL, "")
	_, err := client.Issue(context.Background(), voiceconfig.Default())
	var ce *CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *CredentialError", err)
	}
}

func TestTokenClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewTokenClient(server.URL, "")
	_, err := client.Issue(context.Background(), voiceconfig.Default())
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	var ce *CredentialError
	if errors.As(err, &ce) {
		t.Errorf("network failure misclassified as credential rejection: %v", err)
	}
}
