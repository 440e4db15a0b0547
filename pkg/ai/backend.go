package ai

import "context"

// Result is the normalized output of any generation backend.
type Result struct {
	HTMLContent string
	TextContent string
}

// Backend turns a generation context into newsletter content.
// The builtin AI adapter and the webhook adapter both implement it.
type Backend interface {
	Run(ctx context.Context, gc GenerationContext) (Result, error)
}

// Link is one article URL, optionally enriched with the page title.
type Link struct {
	URL   string
	Title string
}

// ProjectContext is the project configuration snapshot sent to a backend.
type ProjectContext struct {
	Name             string
	AuthorName       string
	AuthorBio        string
	Tone             string
	Structure        string
	Language         string
	NewsletterType   string
	LogoURL          string
	DesignGuidelines string
	HTMLTemplate     string
}

// Dataset is a spreadsheet projected for prompt inclusion. Rows holds at
// most the first ten rows; TotalRows reports the true count.
type Dataset struct {
	Name        string
	Description string
	Columns     []string
	Rows        []map[string]any
	TotalRows   int
}

// Directive is a tagged free-text instruction for the builtin prompt.
type Directive struct {
	Tag  string
	Text string
}

// GenerationContext is the ephemeral bundle assembled per generation
// attempt. It is owned by the dispatch that built it and never persisted.
type GenerationContext struct {
	NewsletterID string
	Title        string
	Links        []Link
	Notes        string
	Project      ProjectContext
	Datasets     []Dataset
	Directives   []Directive
}
