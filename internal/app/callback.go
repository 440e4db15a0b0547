package app

import (
	"context"
	"fmt"
	"strings"

	"letterforge/internal/util"
	"letterforge/pkg/domain"
)

// callbackErrorPrefix marks error messages delivered by an asynchronous
// webhook backend.
const callbackErrorPrefix = "webhook error: "

// CallbackRequest is the inbound payload from an asynchronous webhook
// backend that could not answer the original call synchronously.
type CallbackRequest struct {
	NewsletterID string `json:"newsletter_id"`
	HTMLContent  string `json:"html_content"`
	TextContent  string `json:"text_content"`
	Error        string `json:"error"`
}

// CallbackOutcome reports what a callback did to the newsletter record.
type CallbackOutcome string

const (
	// CallbackApplied means the result or error was written.
	CallbackApplied CallbackOutcome = "applied"
	// CallbackNotGenerating means the record had already left generating;
	// nothing was written.
	CallbackNotGenerating CallbackOutcome = "no longer generating"
)

// HandleCallback reconciles an asynchronous webhook result into newsletter
// state, honoring the same guarded transitions as the synchronous path.
func (a *App) HandleCallback(ctx context.Context, req CallbackRequest) (CallbackOutcome, error) {
	logger := util.LoggerFromContext(ctx)

	id := strings.TrimSpace(req.NewsletterID)
	if id == "" {
		return "", validationErr("newsletter_id is required")
	}

	n, ok, err := a.store.GetNewsletter(id)
	if err != nil {
		return "", fmt.Errorf("load newsletter: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	if n.Status != domain.StatusGenerating {
		logger.Info("callback ignored, not generating", "newsletter_id", id, "status", n.Status)
		return CallbackNotGenerating, nil
	}

	if strings.TrimSpace(req.Error) != "" {
		applied, err := a.store.CommitGenerationFailure(id, callbackErrorPrefix+req.Error)
		if err != nil {
			return "", fmt.Errorf("record callback error: %w", err)
		}
		if !applied {
			logger.Info("stale callback error discarded", "newsletter_id", id)
			return CallbackNotGenerating, nil
		}
		return CallbackApplied, nil
	}

	if req.HTMLContent == "" || req.TextContent == "" {
		return "", validationErr("both html_content and text_content are required")
	}
	applied, err := a.store.CommitGenerationSuccess(id, req.HTMLContent, req.TextContent)
	if err != nil {
		return "", fmt.Errorf("record callback result: %w", err)
	}
	if !applied {
		logger.Info("stale callback result discarded", "newsletter_id", id)
		return CallbackNotGenerating, nil
	}
	logger.Info("callback result applied", "newsletter_id", id)
	return CallbackApplied, nil
}
