package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ProjectModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	Name             string `gorm:"not null"`
	Description      string
	Language         string
	Frequency        string
	AuthorName       string
	AuthorBio        string
	Tone             string
	Structure        string
	Kind             string `gorm:"not null"`
	LogoURL          string
	DesignGuidelines string `gorm:"type:text"`
	HTMLTemplate     string `gorm:"type:text"`
	Backend          string `gorm:"not null"`
	WebhookURL       string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type SpreadsheetModel struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type SpreadsheetColumnModel struct {
	ID            string `gorm:"primaryKey"`
	SpreadsheetID string `gorm:"not null;index"`
	Name          string `gorm:"not null"`
	ColumnType    string `gorm:"not null"`
	ColumnOrder   int    `gorm:"not null"`
}

type SpreadsheetRowModel struct {
	ID            string         `gorm:"primaryKey"`
	SpreadsheetID string         `gorm:"not null;index"`
	Data          datatypes.JSON `gorm:"type:jsonb"`
	RowOrder      int            `gorm:"not null"`
}

type NewsletterModel struct {
	ID           string `gorm:"primaryKey"`
	ProjectID    string `gorm:"not null;index"`
	OwnerID      string `gorm:"not null;index"`
	Title        string `gorm:"not null"`
	LinksRaw     string `gorm:"type:text"`
	Notes        string `gorm:"type:text"`
	HTMLContent  string `gorm:"type:text"`
	TextContent  string `gorm:"type:text"`
	ErrorMessage string
	Status       string    `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}
