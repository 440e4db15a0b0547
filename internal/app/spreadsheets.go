package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"letterforge/internal/util"
	"letterforge/pkg/domain"
	"letterforge/pkg/tabular"
)

// SheetData bundles a spreadsheet with its ordered columns and rows.
type SheetData struct {
	Spreadsheet domain.Spreadsheet         `json:"spreadsheet"`
	Columns     []domain.SpreadsheetColumn `json:"columns"`
	Rows        []domain.SpreadsheetRow    `json:"rows"`
}

// CreateSpreadsheet attaches an empty named dataset to a project.
func (a *App) CreateSpreadsheet(ownerID, projectID, name, description string) (domain.Spreadsheet, error) {
	if _, err := a.GetProject(ownerID, projectID); err != nil {
		return domain.Spreadsheet{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Spreadsheet{}, validationErr("spreadsheet name is required")
	}
	now := time.Now().UTC()
	s := domain.Spreadsheet{
		ID:          util.NewID(),
		ProjectID:   projectID,
		Name:        strings.TrimSpace(name),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveSpreadsheet(s); err != nil {
		return domain.Spreadsheet{}, fmt.Errorf("save spreadsheet: %w", err)
	}
	return s, nil
}

// ListSpreadsheets returns a project's datasets.
func (a *App) ListSpreadsheets(ownerID, projectID string) ([]domain.Spreadsheet, error) {
	if _, err := a.GetProject(ownerID, projectID); err != nil {
		return nil, err
	}
	return a.store.ListSpreadsheetsByProject(projectID)
}

// GetSpreadsheetData returns a dataset with its columns and rows.
func (a *App) GetSpreadsheetData(ownerID, id string) (SheetData, error) {
	sheet, err := a.getOwnedSpreadsheet(ownerID, id)
	if err != nil {
		return SheetData{}, err
	}
	columns, err := a.store.ListColumns(id)
	if err != nil {
		return SheetData{}, fmt.Errorf("load columns: %w", err)
	}
	rows, err := a.store.ListRows(id)
	if err != nil {
		return SheetData{}, fmt.Errorf("load rows: %w", err)
	}
	return SheetData{Spreadsheet: sheet, Columns: columns, Rows: rows}, nil
}

// DeleteSpreadsheet removes a dataset with its columns and rows.
func (a *App) DeleteSpreadsheet(ownerID, id string) error {
	if _, err := a.getOwnedSpreadsheet(ownerID, id); err != nil {
		return err
	}
	return a.store.DeleteSpreadsheet(id)
}

// ImportSpreadsheet decodes an uploaded CSV/XLSX file, infers column types,
// and replaces the dataset's contents.
func (a *App) ImportSpreadsheet(ownerID, id, filename string, r io.Reader) (SheetData, error) {
	sheet, err := a.getOwnedSpreadsheet(ownerID, id)
	if err != nil {
		return SheetData{}, err
	}
	imported, err := tabular.Decode(filename, r)
	if err != nil {
		return SheetData{}, validationErr("%s", err.Error())
	}

	columns := make([]domain.SpreadsheetColumn, 0, len(imported.Columns))
	for i, col := range imported.Columns {
		columns = append(columns, domain.SpreadsheetColumn{
			ID:            util.NewID(),
			SpreadsheetID: id,
			Name:          col.Name,
			Type:          col.Type,
			Order:         i,
		})
	}
	rows := make([]domain.SpreadsheetRow, 0, len(imported.Rows))
	for i, data := range imported.Rows {
		rows = append(rows, domain.SpreadsheetRow{
			ID:            util.NewID(),
			SpreadsheetID: id,
			Data:          data,
			Order:         i,
		})
	}

	if err := a.store.ReplaceSheetData(id, columns, rows); err != nil {
		return SheetData{}, fmt.Errorf("replace sheet data: %w", err)
	}
	sheet.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveSpreadsheet(sheet); err != nil {
		return SheetData{}, fmt.Errorf("save spreadsheet: %w", err)
	}
	return SheetData{Spreadsheet: sheet, Columns: columns, Rows: rows}, nil
}

// UpdateColumnType overrides the inferred type of one column. Inference is
// advisory; the user has the final word.
func (a *App) UpdateColumnType(ownerID, spreadsheetID, columnID string, colType domain.ColumnType) ([]domain.SpreadsheetColumn, error) {
	if _, err := a.getOwnedSpreadsheet(ownerID, spreadsheetID); err != nil {
		return nil, err
	}
	switch colType {
	case domain.ColumnText, domain.ColumnNumber, domain.ColumnDate, domain.ColumnBoolean:
	default:
		return nil, validationErr("unknown column type %q", colType)
	}
	columns, err := a.store.ListColumns(spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	found := false
	for i := range columns {
		if columns[i].ID == columnID {
			columns[i].Type = colType
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	rows, err := a.store.ListRows(spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}
	if err := a.store.ReplaceSheetData(spreadsheetID, columns, rows); err != nil {
		return nil, fmt.Errorf("replace sheet data: %w", err)
	}
	return columns, nil
}

func (a *App) getOwnedSpreadsheet(ownerID, id string) (domain.Spreadsheet, error) {
	sheet, ok, err := a.store.GetSpreadsheet(id)
	if err != nil {
		return domain.Spreadsheet{}, err
	}
	if !ok {
		return domain.Spreadsheet{}, ErrNotFound
	}
	if _, err := a.GetProject(ownerID, sheet.ProjectID); err != nil {
		return domain.Spreadsheet{}, err
	}
	return sheet, nil
}
