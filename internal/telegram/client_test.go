package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_SendMessage(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("bot-token", WithBaseURL(srv.URL))
	if err := c.SendMessage(context.Background(), "12345", "안녕"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Errorf("path: %q", gotPath)
	}
	if gotBody["chat_id"] != "12345" || gotBody["text"] != "안녕" {
		t.Errorf("body: %v", gotBody)
	}
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := NewClient("bot-token", WithBaseURL(srv.URL))
	err := c.SendMessage(context.Background(), "12345", "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("want API error with description, got %v", err)
	}
}

func TestClient_WebhookManagement(t *testing.T) {
	t.Parallel()

	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("bot-token", WithBaseURL(srv.URL))
	if err := c.SetWebhook(context.Background(), "https://example.com/tg/secret"); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	if err := c.DeleteWebhook(context.Background()); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if len(methods) != 2 || methods[0] != "setWebhook" || methods[1] != "deleteWebhook" {
		t.Errorf("methods: %v", methods)
	}
}
