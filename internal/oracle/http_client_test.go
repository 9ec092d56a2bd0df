package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_RequestRandomness(t *testing.T) {
	var got requestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	cfg := Config{
		KeyHash:          "0xkeyhash",
		SubscriptionID:   7,
		CallbackGasLimit: 250_000,
		Confirmations:    3,
	}
	if err := client.RequestRandomness(context.Background(), 42, cfg); err != nil {
		t.Fatalf("request randomness: %v", err)
	}

	if got.RequestID != 42 || got.KeyHash != "0xkeyhash" || got.SubscriptionID != 7 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.CallbackGasLimit != 250_000 || got.Confirmations != 3 {
		t.Fatalf("oracle config not forwarded: %+v", got)
	}
}

func TestHTTPClient_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "subscription exhausted", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	if err := client.RequestRandomness(context.Background(), 1, Config{}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestHTTPClient_MissingEndpoint(t *testing.T) {
	client := &HTTPClient{HTTP: http.DefaultClient}
	if err := client.RequestRandomness(context.Background(), 1, Config{}); err == nil {
		t.Fatal("expected error when endpoint is unset")
	}
}
