package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// WebhookTimeout bounds one outbound webhook generation call.
const WebhookTimeout = 60 * time.Second

// WebhookBackend submits the generation context to a user-configured
// endpoint and expects {html_content, text_content} back synchronously.
// Endpoints that answer asynchronously use the callback route instead.
type WebhookBackend struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWebhookBackend builds a webhook generation backend for one endpoint.
func NewWebhookBackend(endpoint string) *WebhookBackend {
	return &WebhookBackend{
		endpoint: endpoint,
		timeout:  WebhookTimeout,
		httpClient: &http.Client{
			Timeout: WebhookTimeout,
		},
	}
}

// Run implements Backend against the outbound webhook contract.
func (w *WebhookBackend) Run(ctx context.Context, gc GenerationContext) (Result, error) {
	body, err := json.Marshal(webhookRequestFromContext(gc))
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Info("webhook generation request", "newsletter_id", gc.NewsletterID, "endpoint", w.endpoint)
	resp, err := w.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{}, fmt.Errorf("webhook request timed out after %s", w.timeout)
		}
		return Result{}, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var payload struct {
		HTMLContent string `json:"html_content"`
		TextContent string `json:"text_content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("webhook response decode: %w", err)
	}
	if payload.HTMLContent == "" || payload.TextContent == "" {
		return Result{}, fmt.Errorf("webhook response missing html_content or text_content")
	}
	return Result{HTMLContent: payload.HTMLContent, TextContent: payload.TextContent}, nil
}

func isTimeout(err error) bool {
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// Outbound webhook wire format.

type webhookRequest struct {
	NewsletterID    string                  `json:"newsletter_id"`
	NewsletterTitle string                  `json:"newsletter_title"`
	Links           []string                `json:"links"`
	Notes           string                  `json:"notes"`
	Project         webhookProject          `json:"project"`
	ProjectData     []webhookProjectDataset `json:"project_data"`
}

type webhookProject struct {
	Name             string `json:"name"`
	AuthorName       string `json:"author_name"`
	AuthorBio        string `json:"author_bio"`
	Tone             string `json:"tone"`
	Structure        string `json:"structure"`
	Language         string `json:"language"`
	NewsletterType   string `json:"newsletter_type"`
	LogoURL          string `json:"logo_url"`
	DesignGuidelines string `json:"design_guidelines"`
	HTMLTemplate     string `json:"html_template"`
}

type webhookProjectDataset struct {
	SpreadsheetName string           `json:"spreadsheet_name"`
	Description     string           `json:"description"`
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
}

func webhookRequestFromContext(gc GenerationContext) webhookRequest {
	links := make([]string, 0, len(gc.Links))
	for _, link := range gc.Links {
		links = append(links, link.URL)
	}
	datasets := make([]webhookProjectDataset, 0, len(gc.Datasets))
	for _, ds := range gc.Datasets {
		datasets = append(datasets, webhookProjectDataset{
			SpreadsheetName: ds.Name,
			Description:     ds.Description,
			Columns:         ds.Columns,
			Rows:            ds.Rows,
		})
	}
	return webhookRequest{
		NewsletterID:    gc.NewsletterID,
		NewsletterTitle: gc.Title,
		Links:           links,
		Notes:           gc.Notes,
		Project: webhookProject{
			Name:             gc.Project.Name,
			AuthorName:       gc.Project.AuthorName,
			AuthorBio:        gc.Project.AuthorBio,
			Tone:             gc.Project.Tone,
			Structure:        gc.Project.Structure,
			Language:         gc.Project.Language,
			NewsletterType:   gc.Project.NewsletterType,
			LogoURL:          gc.Project.LogoURL,
			DesignGuidelines: gc.Project.DesignGuidelines,
			HTMLTemplate:     gc.Project.HTMLTemplate,
		},
		ProjectData: datasets,
	}
}
