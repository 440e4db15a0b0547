package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookSendsContractBody(t *testing.T) {
	var captured webhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"html_content": "<p>done</p>",
			"text_content": "done",
		})
	}))
	defer srv.Close()

	backend := NewWebhookBackend(srv.URL)
	result, err := backend.Run(context.Background(), sampleContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.HTMLContent != "<p>done</p>" || result.TextContent != "done" {
		t.Fatalf("result = %+v", result)
	}

	if captured.NewsletterID != "n1" || captured.NewsletterTitle != "Edition 1" {
		t.Fatalf("identity fields = %+v", captured)
	}
	if len(captured.Links) != 2 || captured.Links[0] != "https://a.com" {
		t.Fatalf("links = %v", captured.Links)
	}
	if captured.Project.NewsletterType != "personal" || captured.Project.AuthorName != "Ana" {
		t.Fatalf("project = %+v", captured.Project)
	}
	if len(captured.ProjectData) != 1 || captured.ProjectData[0].SpreadsheetName != "Metrics" {
		t.Fatalf("project data = %+v", captured.ProjectData)
	}
}

func TestWebhookNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	backend := NewWebhookBackend(srv.URL)
	_, err := backend.Run(context.Background(), sampleContext())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status failure", err)
	}
}

func TestWebhookMissingFieldFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"html_content": "<p>half</p>"})
	}))
	defer srv.Close()

	backend := NewWebhookBackend(srv.URL)
	if _, err := backend.Run(context.Background(), sampleContext()); err == nil {
		t.Fatal("expected error for missing text_content")
	}
}

func TestWebhookTimeoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	backend := NewWebhookBackend(srv.URL)
	backend.timeout = 50 * time.Millisecond
	backend.httpClient.Timeout = 50 * time.Millisecond

	_, err := backend.Run(context.Background(), sampleContext())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v, want timeout indication", err)
	}
}
