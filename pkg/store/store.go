package store

import "letterforge/pkg/domain"

// Store is the persistence boundary for projects, spreadsheets, and
// newsletters. Implementations must make the guarded lifecycle transitions
// atomic: the condition check and the write happen as one operation, so a
// stale generation result can never overwrite a user-initiated cancel.
type Store interface {
	// Projects.
	SaveProject(p domain.Project) error
	GetProject(id string) (domain.Project, bool, error)
	ListProjectsByOwner(ownerID string) ([]domain.Project, error)
	// DeleteProject cascades to the project's newsletters and spreadsheets.
	DeleteProject(id string) error

	// Spreadsheets.
	SaveSpreadsheet(s domain.Spreadsheet) error
	GetSpreadsheet(id string) (domain.Spreadsheet, bool, error)
	ListSpreadsheetsByProject(projectID string) ([]domain.Spreadsheet, error)
	DeleteSpreadsheet(id string) error
	// ReplaceSheetData swaps all columns and rows of a spreadsheet in one
	// transaction. Used by import.
	ReplaceSheetData(spreadsheetID string, cols []domain.SpreadsheetColumn, rows []domain.SpreadsheetRow) error
	// ListColumns returns columns ordered by column order.
	ListColumns(spreadsheetID string) ([]domain.SpreadsheetColumn, error)
	// ListRows returns rows ordered by row order.
	ListRows(spreadsheetID string) ([]domain.SpreadsheetRow, error)

	// Newsletters.
	SaveNewsletter(n domain.Newsletter) error
	// UpdateNewsletterFields writes the user-editable fields only. Applies
	// while the record is not generating; status and content never change, so
	// an edit cannot race a concurrent generation start into rewinding state.
	UpdateNewsletterFields(id, title, linksRaw, notes string) (bool, error)
	GetNewsletter(id string) (domain.Newsletter, bool, error)
	ListNewslettersByProject(projectID string) ([]domain.Newsletter, error)
	DeleteNewsletter(id string) error

	// Guarded lifecycle transitions. The returned bool reports whether the
	// conditional write applied; false means the record was not in the
	// required state and nothing was written.

	// MarkGenerating moves a newsletter into generating and clears any prior
	// error message. Applies only when the record is not already generating.
	MarkGenerating(id string) (bool, error)
	// CommitGenerationSuccess writes both content fields and moves the record
	// to final. Applies only while the record is still generating.
	CommitGenerationSuccess(id, htmlContent, textContent string) (bool, error)
	// CommitGenerationFailure records the failure message and moves the
	// record to error. Applies only while the record is still generating.
	CommitGenerationFailure(id, errMsg string) (bool, error)
	// CancelGeneration moves a generating newsletter back to draft and
	// records the cancellation note as its error message.
	CancelGeneration(id, note string) (bool, error)
}
