package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// BuiltinBackend calls an OpenAI-compatible /v1/chat/completions endpoint
// with a forced format_newsletter function call, so the model must answer
// with exactly the two content fields.
type BuiltinBackend struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewBuiltinBackend builds the builtin AI generation backend.
// baseURL should include the /v1 prefix, e.g. "https://gateway.example/v1".
func NewBuiltinBackend(baseURL, apiKey, model string) *BuiltinBackend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &BuiltinBackend{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Run implements Backend using a chat completion with a forced tool call.
func (g *BuiltinBackend) Run(ctx context.Context, gc GenerationContext) (Result, error) {
	if g.model == "" {
		return Result{}, fmt.Errorf("builtin generation model required")
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(gc)},
			{Role: "user", Content: UserPrompt(gc)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: toolFunction{
				Name:        "format_newsletter",
				Description: "Formats the newsletter in HTML and plain-text versions",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"html_content": map[string]any{
							"type":        "string",
							"description": "Newsletter HTML with inline styles",
						},
						"text_content": map[string]any{
							"type":        "string",
							"description": "Newsletter plain-text version",
						},
					},
					"required":             []string{"html_content", "text_content"},
					"additionalProperties": false,
				},
			},
		}},
		ToolChoice: &chatToolChoice{
			Type:     "function",
			Function: toolChoiceFunction{Name: "format_newsletter"},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	url := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	slog.Info("builtin generation request", "newsletter_id", gc.NewsletterID, "model", g.model)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ai gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp chatErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return Result{}, fmt.Errorf("ai gateway error: %s", errResp.Error.Message)
		}
		return Result{}, fmt.Errorf("ai gateway error: %s", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Result{}, fmt.Errorf("ai gateway decode: %w", err)
	}
	return extractToolResult(chatResp)
}

func extractToolResult(resp chatResponse) (Result, error) {
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return Result{}, fmt.Errorf("ai response missing the expected function call")
	}
	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	var content struct {
		HTMLContent string `json:"html_content"`
		TextContent string `json:"text_content"`
	}
	if err := json.Unmarshal([]byte(args), &content); err != nil {
		return Result{}, fmt.Errorf("ai response arguments: %w", err)
	}
	if content.HTMLContent == "" || content.TextContent == "" {
		return Result{}, fmt.Errorf("ai response missing html_content or text_content")
	}
	return Result{HTMLContent: content.HTMLContent, TextContent: content.TextContent}, nil
}

// OpenAI-compatible request/response types.

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatToolChoice struct {
	Type     string             `json:"type"`
	Function toolChoiceFunction `json:"function"`
}

type toolChoiceFunction struct {
	Name string `json:"name"`
}

type chatToolCall struct {
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model      string          `json:"model"`
	Messages   []chatMessage   `json:"messages"`
	Tools      []chatTool      `json:"tools,omitempty"`
	ToolChoice *chatToolChoice `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
