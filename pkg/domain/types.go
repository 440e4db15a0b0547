package domain

import "time"

// NewsletterStatus is the generation lifecycle state of a newsletter.
type NewsletterStatus string

const (
	StatusDraft      NewsletterStatus = "draft"
	StatusGenerating NewsletterStatus = "generating"
	StatusFinal      NewsletterStatus = "final"
	StatusError      NewsletterStatus = "error"
)

// NewsletterKind selects the editorial voice of a project.
type NewsletterKind string

const (
	KindPersonal      NewsletterKind = "personal"
	KindInstitutional NewsletterKind = "institutional"
)

// BackendKind selects which generation backend a project uses.
type BackendKind string

const (
	BackendBuiltin BackendKind = "builtin"
	BackendWebhook BackendKind = "webhook"
)

// ColumnType is the semantic type assigned to a spreadsheet column.
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnNumber  ColumnType = "number"
	ColumnDate    ColumnType = "date"
	ColumnBoolean ColumnType = "boolean"
)

// Project is a reusable newsletter configuration owned by a user.
type Project struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Language         string         `json:"language,omitempty"`
	Frequency        string         `json:"frequency,omitempty"`
	AuthorName       string         `json:"author_name"`
	AuthorBio        string         `json:"author_bio,omitempty"`
	Tone             string         `json:"tone,omitempty"`
	Structure        string         `json:"structure,omitempty"`
	Kind             NewsletterKind `json:"newsletter_type"`
	LogoURL          string         `json:"logo_url,omitempty"`
	DesignGuidelines string         `json:"design_guidelines,omitempty"`
	HTMLTemplate     string         `json:"html_template,omitempty"`
	Backend          BackendKind    `json:"generation_backend"`
	WebhookURL       string         `json:"webhook_url,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Spreadsheet is a named tabular dataset attached to a project.
type Spreadsheet struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SpreadsheetColumn is one column of a spreadsheet, ordered by Order.
type SpreadsheetColumn struct {
	ID            string     `json:"id"`
	SpreadsheetID string     `json:"spreadsheet_id"`
	Name          string     `json:"name"`
	Type          ColumnType `json:"column_type"`
	Order         int        `json:"column_order"`
}

// SpreadsheetRow is one row of cell values keyed by column name.
// Keys that no longer match a column are tolerated and ignored on read.
type SpreadsheetRow struct {
	ID            string         `json:"id"`
	SpreadsheetID string         `json:"spreadsheet_id"`
	Data          map[string]any `json:"data"`
	Order         int            `json:"row_order"`
}

// Newsletter is one edition tied to a project.
// HTMLContent and TextContent are populated together or not at all and are
// only meaningful when Status is final.
type Newsletter struct {
	ID           string           `json:"id"`
	ProjectID    string           `json:"project_id"`
	OwnerID      string           `json:"owner_id"`
	Title        string           `json:"title"`
	LinksRaw     string           `json:"links_raw,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	HTMLContent  string           `json:"html_content,omitempty"`
	TextContent  string           `json:"text_content,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Status       NewsletterStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
