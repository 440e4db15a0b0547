package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"letterforge/internal/util"
	"letterforge/pkg/ai"
	"letterforge/pkg/domain"
	"letterforge/pkg/store"
)

// cancellationNote is recorded as the error message when a user cancels a
// running generation.
const cancellationNote = "Generation cancelled by user"

// Enqueuer schedules an asynchronous generation attempt for a newsletter.
type Enqueuer interface {
	Enqueue(ctx context.Context, newsletterID string) error
}

// EnqueueFunc adapts a function to the Enqueuer interface.
type EnqueueFunc func(ctx context.Context, newsletterID string) error

func (f EnqueueFunc) Enqueue(ctx context.Context, newsletterID string) error {
	return f(ctx, newsletterID)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Builtin     ai.Backend
	Enqueuer    Enqueuer
	EnrichLinks bool
}

// App wires storage, the generation backends, and the job queue into the
// newsletter pipeline.
type App struct {
	store    store.Store
	builtin  ai.Backend
	enqueuer Enqueuer
	enricher *LinkEnricher
	enrich   bool

	// newWebhook builds the webhook backend for a project endpoint.
	// Overridable in tests.
	newWebhook func(endpoint string) ai.Backend
}

// New constructs the application with database-backed storage by default.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Builtin == nil {
		return nil, fmt.Errorf("builtin generation backend required")
	}
	if cfg.Enqueuer == nil {
		return nil, fmt.Errorf("enqueuer required")
	}
	return &App{
		store:    dataStore,
		builtin:  cfg.Builtin,
		enqueuer: cfg.Enqueuer,
		enricher: NewLinkEnricher(),
		enrich:   cfg.EnrichLinks,
		newWebhook: func(endpoint string) ai.Backend {
			return ai.NewWebhookBackend(endpoint)
		},
	}, nil
}

// ProjectInput carries the mutable project fields.
type ProjectInput struct {
	Name             string                `json:"name"`
	Description      string                `json:"description"`
	Language         string                `json:"language"`
	Frequency        string                `json:"frequency"`
	AuthorName       string                `json:"author_name"`
	AuthorBio        string                `json:"author_bio"`
	Tone             string                `json:"tone"`
	Structure        string                `json:"structure"`
	Kind             domain.NewsletterKind `json:"newsletter_type"`
	LogoURL          string                `json:"logo_url"`
	DesignGuidelines string                `json:"design_guidelines"`
	HTMLTemplate     string                `json:"html_template"`
	Backend          domain.BackendKind    `json:"generation_backend"`
	WebhookURL       string                `json:"webhook_url"`
}

func (in ProjectInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return validationErr("project name is required")
	}
	if strings.TrimSpace(in.AuthorName) == "" {
		return validationErr("author name is required")
	}
	switch in.Kind {
	case "", domain.KindPersonal, domain.KindInstitutional:
	default:
		return validationErr("unknown newsletter type %q", in.Kind)
	}
	switch in.Backend {
	case "", domain.BackendBuiltin, domain.BackendWebhook:
	default:
		return validationErr("unknown generation backend %q", in.Backend)
	}
	if in.Backend == domain.BackendWebhook && strings.TrimSpace(in.WebhookURL) == "" {
		return validationErr("webhook backend requires a webhook URL")
	}
	return nil
}

func (in ProjectInput) apply(p *domain.Project) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Language = in.Language
	p.Frequency = in.Frequency
	p.AuthorName = strings.TrimSpace(in.AuthorName)
	p.AuthorBio = in.AuthorBio
	p.Tone = in.Tone
	p.Structure = in.Structure
	p.Kind = in.Kind
	if p.Kind == "" {
		p.Kind = domain.KindPersonal
	}
	p.LogoURL = in.LogoURL
	p.DesignGuidelines = in.DesignGuidelines
	p.HTMLTemplate = in.HTMLTemplate
	p.Backend = in.Backend
	if p.Backend == "" {
		p.Backend = domain.BackendBuiltin
	}
	p.WebhookURL = strings.TrimSpace(in.WebhookURL)
}

// CreateProject creates a project owned by the given user.
func (a *App) CreateProject(ownerID string, in ProjectInput) (domain.Project, error) {
	if err := in.validate(); err != nil {
		return domain.Project{}, err
	}
	now := time.Now().UTC()
	p := domain.Project{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(&p)
	if err := a.store.SaveProject(p); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return p, nil
}

// GetProject returns a project after checking ownership.
func (a *App) GetProject(ownerID, id string) (domain.Project, error) {
	p, ok, err := a.store.GetProject(id)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	if p.OwnerID != ownerID {
		return domain.Project{}, ErrForbidden
	}
	return p, nil
}

// ListProjects returns the user's projects.
func (a *App) ListProjects(ownerID string) ([]domain.Project, error) {
	return a.store.ListProjectsByOwner(ownerID)
}

// UpdateProject replaces the mutable fields of a project.
func (a *App) UpdateProject(ownerID, id string, in ProjectInput) (domain.Project, error) {
	p, err := a.GetProject(ownerID, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Project{}, err
	}
	in.apply(&p)
	p.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveProject(p); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project and everything it owns.
func (a *App) DeleteProject(ownerID, id string) error {
	if _, err := a.GetProject(ownerID, id); err != nil {
		return err
	}
	return a.store.DeleteProject(id)
}

// NewsletterInput carries the user-editable newsletter fields.
type NewsletterInput struct {
	Title    string `json:"title"`
	LinksRaw string `json:"links_raw"`
	Notes    string `json:"notes"`
}

// CreateNewsletter creates a draft edition, optionally starting generation
// immediately.
func (a *App) CreateNewsletter(ctx context.Context, ownerID, projectID string, in NewsletterInput, generate bool) (domain.Newsletter, error) {
	if _, err := a.GetProject(ownerID, projectID); err != nil {
		return domain.Newsletter{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Newsletter{}, validationErr("newsletter title is required")
	}
	now := time.Now().UTC()
	n := domain.Newsletter{
		ID:        util.NewID(),
		ProjectID: projectID,
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(in.Title),
		LinksRaw:  in.LinksRaw,
		Notes:     in.Notes,
		Status:    domain.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if generate {
		// Validate up front so an unsaveable edition is never created in
		// generating state.
		if err := ValidateGenerationInput(n); err != nil {
			return domain.Newsletter{}, err
		}
	}
	if err := a.store.SaveNewsletter(n); err != nil {
		return domain.Newsletter{}, fmt.Errorf("save newsletter: %w", err)
	}
	if generate {
		return a.Generate(ctx, ownerID, n.ID)
	}
	return n, nil
}

// GetNewsletter returns a newsletter after checking ownership.
func (a *App) GetNewsletter(ownerID, id string) (domain.Newsletter, error) {
	n, ok, err := a.store.GetNewsletter(id)
	if err != nil {
		return domain.Newsletter{}, err
	}
	if !ok {
		return domain.Newsletter{}, ErrNotFound
	}
	if n.OwnerID != ownerID {
		return domain.Newsletter{}, ErrForbidden
	}
	return n, nil
}

// ListNewsletters returns the editions of a project.
func (a *App) ListNewsletters(ownerID, projectID string) ([]domain.Newsletter, error) {
	if _, err := a.GetProject(ownerID, projectID); err != nil {
		return nil, err
	}
	return a.store.ListNewslettersByProject(projectID)
}

// UpdateNewsletter edits title/links/notes. The write is guarded at the
// store, so an edit racing a concurrent generation start is rejected instead
// of rewinding status or content.
func (a *App) UpdateNewsletter(ownerID, id string, in NewsletterInput) (domain.Newsletter, error) {
	if _, err := a.GetNewsletter(ownerID, id); err != nil {
		return domain.Newsletter{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Newsletter{}, validationErr("newsletter title is required")
	}
	applied, err := a.store.UpdateNewsletterFields(id, strings.TrimSpace(in.Title), in.LinksRaw, in.Notes)
	if err != nil {
		return domain.Newsletter{}, fmt.Errorf("update newsletter: %w", err)
	}
	if !applied {
		return domain.Newsletter{}, ErrGenerating
	}
	return a.GetNewsletter(ownerID, id)
}

// DeleteNewsletter removes an edition. A pending generation result for a
// deleted record is dropped by the guarded commit finding no row.
func (a *App) DeleteNewsletter(ownerID, id string) error {
	if _, err := a.GetNewsletter(ownerID, id); err != nil {
		return err
	}
	return a.store.DeleteNewsletter(id)
}

// Generate validates the edition and moves it into generating, then hands it
// to the queue. The backend call itself happens in ProcessGeneration.
func (a *App) Generate(ctx context.Context, ownerID, id string) (domain.Newsletter, error) {
	n, err := a.GetNewsletter(ownerID, id)
	if err != nil {
		return domain.Newsletter{}, err
	}
	if err := ValidateGenerationInput(n); err != nil {
		return domain.Newsletter{}, err
	}

	applied, err := a.store.MarkGenerating(id)
	if err != nil {
		return domain.Newsletter{}, fmt.Errorf("mark generating: %w", err)
	}
	if !applied {
		return domain.Newsletter{}, ErrGenerating
	}

	if err := a.enqueuer.Enqueue(ctx, id); err != nil {
		// The record must not stay stuck in generating when no job exists.
		if _, ferr := a.store.CommitGenerationFailure(id, "failed to queue generation: "+err.Error()); ferr != nil {
			util.LoggerFromContext(ctx).Error("record enqueue failure", "newsletter_id", id, "err", ferr)
		}
		return domain.Newsletter{}, fmt.Errorf("enqueue generation: %w", err)
	}

	return a.GetNewsletter(ownerID, id)
}

// Cancel moves a generating edition back to draft. The in-flight backend
// call keeps running; its result is discarded by the guarded commit.
func (a *App) Cancel(ctx context.Context, ownerID, id string) (domain.Newsletter, error) {
	if _, err := a.GetNewsletter(ownerID, id); err != nil {
		return domain.Newsletter{}, err
	}
	applied, err := a.store.CancelGeneration(id, cancellationNote)
	if err != nil {
		return domain.Newsletter{}, fmt.Errorf("cancel generation: %w", err)
	}
	if !applied {
		return domain.Newsletter{}, ErrNotGenerating
	}
	util.LoggerFromContext(ctx).Info("generation cancelled", "newsletter_id", id)
	return a.GetNewsletter(ownerID, id)
}

// ProcessGeneration is the queue handler: it builds the context, runs the
// chosen backend, and commits the outcome through the guarded transitions.
func (a *App) ProcessGeneration(ctx context.Context, newsletterID string) error {
	logger := util.LoggerFromContext(ctx).With("newsletter_id", newsletterID)

	n, ok, err := a.store.GetNewsletter(newsletterID)
	if err != nil {
		return fmt.Errorf("load newsletter: %w", err)
	}
	if !ok {
		logger.Info("generation skipped, newsletter deleted")
		return nil
	}
	if n.Status != domain.StatusGenerating {
		logger.Info("generation skipped, not generating", "status", n.Status)
		return nil
	}

	project, ok, err := a.store.GetProject(n.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if !ok {
		a.commitFailure(ctx, newsletterID, "project no longer exists")
		return nil
	}

	links := a.resolveLinks(ctx, n.LinksRaw)
	gc, err := BuildGenerationContext(a.store, project, n, links)
	if err != nil {
		a.commitFailure(ctx, newsletterID, err.Error())
		return nil
	}

	backend := a.backendFor(project)
	result, err := backend.Run(ctx, gc)
	if err != nil {
		logger.Warn("generation backend failed", "err", err)
		a.commitFailure(ctx, newsletterID, err.Error())
		return nil
	}

	applied, err := a.store.CommitGenerationSuccess(newsletterID, result.HTMLContent, result.TextContent)
	if err != nil {
		return fmt.Errorf("commit generation result: %w", err)
	}
	if !applied {
		logger.Info("stale generation result discarded")
		return nil
	}
	logger.Info("generation completed")
	return nil
}

func (a *App) commitFailure(ctx context.Context, newsletterID, msg string) {
	logger := util.LoggerFromContext(ctx).With("newsletter_id", newsletterID)
	applied, err := a.store.CommitGenerationFailure(newsletterID, msg)
	if err != nil {
		logger.Error("record generation failure", "err", err)
		return
	}
	if !applied {
		logger.Info("stale generation failure discarded")
	}
}

func (a *App) resolveLinks(ctx context.Context, linksRaw string) []ai.Link {
	urls := ParseLinks(linksRaw)
	if a.enrich {
		return a.enricher.Enrich(ctx, urls)
	}
	links := make([]ai.Link, len(urls))
	for i, u := range urls {
		links[i] = ai.Link{URL: u}
	}
	return links
}

func (a *App) backendFor(p domain.Project) ai.Backend {
	if p.Backend == domain.BackendWebhook && strings.TrimSpace(p.WebhookURL) != "" {
		return a.newWebhook(p.WebhookURL)
	}
	return a.builtin
}
