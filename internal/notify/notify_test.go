package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devblac/bridge-relay/internal/config"
)

func TestSlackSenderRendersTemplate(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, err := NewSlackSender(server.URL, "")
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	err = sender.Send(context.Background(), Payload{
		Direction: config.SourceToDestination,
		Chain:     "source",
		TxHash:    "0x1234567890abcdef",
		LogIndex:  2,
		Action:    "mint",
		Outcome:   "timed_out",
		Detail:    "no receipt",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	want := "RELAY timed_out source_to_destination source 0x1234...cdef#2 mint: no receipt"
	if got["text"] != want {
		t.Fatalf("text = %q, want %q", got["text"], want)
	}
}

func TestWebhookStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, http.MethodPost, "msg", nil)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if err := sender.Send(context.Background(), Payload{Outcome: "failed"}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestFromConfig(t *testing.T) {
	senders, err := FromConfig([]config.Notify{
		{ID: "ops", Type: "slack", WebhookURL: "http://localhost/hook"},
		{ID: "audit", Type: "webhook", URL: "http://localhost/audit", Method: "put"},
	})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if len(senders) != 2 {
		t.Fatalf("expected 2 senders, got %d", len(senders))
	}
	if hs := senders["audit"].(*httpSender); hs.method != http.MethodPut {
		t.Fatalf("method = %s", hs.method)
	}

	if _, err := FromConfig([]config.Notify{{ID: "x", Type: "pager"}}); err == nil || !strings.Contains(err.Error(), "pager") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}
