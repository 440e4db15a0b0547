package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"letterforge/pkg/domain"
)

const migrateLockID int64 = 52415241

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&ProjectModel{},
			&SpreadsheetModel{},
			&SpreadsheetColumnModel{},
			&SpreadsheetRowModel{},
			&NewsletterModel{},
		)
	}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)"); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)")
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string) error {
	_, err := conn.ExecContext(ctx, query, migrateLockID)
	return err
}

// SaveProject stores or updates a project.
func (s *GormStore) SaveProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "language", "frequency", "author_name",
			"author_bio", "tone", "structure", "kind", "logo_url",
			"design_guidelines", "html_template", "backend", "webhook_url",
			"updated_at",
		}),
	}).Create(&model).Error
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjectsByOwner returns projects ordered by creation time.
func (s *GormStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// DeleteProject removes the project, its newsletters, and its spreadsheets.
func (s *GormStore) DeleteProject(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var sheets []SpreadsheetModel
		if err := tx.Where("project_id = ?", id).Find(&sheets).Error; err != nil {
			return err
		}
		for _, sheet := range sheets {
			if err := deleteSheetData(tx, sheet.ID); err != nil {
				return err
			}
		}
		if err := tx.Delete(&SpreadsheetModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&NewsletterModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ProjectModel{}, "id = ?", id).Error
	})
}

// SaveSpreadsheet stores or updates spreadsheet metadata.
func (s *GormStore) SaveSpreadsheet(sheet domain.Spreadsheet) error {
	model := spreadsheetToModel(sheet)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "updated_at"}),
	}).Create(&model).Error
}

// GetSpreadsheet retrieves a spreadsheet.
func (s *GormStore) GetSpreadsheet(id string) (domain.Spreadsheet, bool, error) {
	var model SpreadsheetModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Spreadsheet{}, false, nil
		}
		return domain.Spreadsheet{}, false, err
	}
	return spreadsheetFromModel(model), true, nil
}

// ListSpreadsheetsByProject returns spreadsheets ordered by creation time.
func (s *GormStore) ListSpreadsheetsByProject(projectID string) ([]domain.Spreadsheet, error) {
	var models []SpreadsheetModel
	if err := s.db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Spreadsheet, 0, len(models))
	for _, m := range models {
		res = append(res, spreadsheetFromModel(m))
	}
	return res, nil
}

// DeleteSpreadsheet removes a spreadsheet with its columns and rows.
func (s *GormStore) DeleteSpreadsheet(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := deleteSheetData(tx, id); err != nil {
			return err
		}
		return tx.Delete(&SpreadsheetModel{}, "id = ?", id).Error
	})
}

// ReplaceSheetData swaps all columns and rows of a spreadsheet.
func (s *GormStore) ReplaceSheetData(spreadsheetID string, cols []domain.SpreadsheetColumn, rows []domain.SpreadsheetRow) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := deleteSheetData(tx, spreadsheetID); err != nil {
			return err
		}
		if len(cols) > 0 {
			models := make([]SpreadsheetColumnModel, 0, len(cols))
			for _, col := range cols {
				model := columnToModel(col)
				model.SpreadsheetID = spreadsheetID
				models = append(models, model)
			}
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		if len(rows) > 0 {
			models := make([]SpreadsheetRowModel, 0, len(rows))
			for _, row := range rows {
				model := rowToModel(row)
				model.SpreadsheetID = spreadsheetID
				models = append(models, model)
			}
			return tx.CreateInBatches(&models, 200).Error
		}
		return nil
	})
}

func deleteSheetData(tx *gorm.DB, spreadsheetID string) error {
	if err := tx.Delete(&SpreadsheetColumnModel{}, "spreadsheet_id = ?", spreadsheetID).Error; err != nil {
		return err
	}
	return tx.Delete(&SpreadsheetRowModel{}, "spreadsheet_id = ?", spreadsheetID).Error
}

// ListColumns returns columns ordered by column order.
func (s *GormStore) ListColumns(spreadsheetID string) ([]domain.SpreadsheetColumn, error) {
	var models []SpreadsheetColumnModel
	if err := s.db.Where("spreadsheet_id = ?", spreadsheetID).Order("column_order ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SpreadsheetColumn, 0, len(models))
	for _, m := range models {
		res = append(res, columnFromModel(m))
	}
	return res, nil
}

// ListRows returns rows ordered by row order.
func (s *GormStore) ListRows(spreadsheetID string) ([]domain.SpreadsheetRow, error) {
	var models []SpreadsheetRowModel
	if err := s.db.Where("spreadsheet_id = ?", spreadsheetID).Order("row_order ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SpreadsheetRow, 0, len(models))
	for _, m := range models {
		res = append(res, rowFromModel(m))
	}
	return res, nil
}

// SaveNewsletter stores or updates a newsletter.
func (s *GormStore) SaveNewsletter(n domain.Newsletter) error {
	model := newsletterToModel(n)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "links_raw", "notes", "html_content", "text_content",
			"error_message", "status", "updated_at",
		}),
	}).Create(&model).Error
}

// UpdateNewsletterFields writes the user-editable fields while the record is
// not generating. The update set deliberately excludes status and content.
func (s *GormStore) UpdateNewsletterFields(id, title, linksRaw, notes string) (bool, error) {
	return s.guardedUpdate(
		s.db.Model(&NewsletterModel{}).
			Where("id = ? AND status <> ?", id, string(domain.StatusGenerating)).
			Updates(map[string]any{
				"title":      title,
				"links_raw":  linksRaw,
				"notes":      notes,
				"updated_at": time.Now().UTC(),
			}),
	)
}

// GetNewsletter retrieves a newsletter.
func (s *GormStore) GetNewsletter(id string) (domain.Newsletter, bool, error) {
	var model NewsletterModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Newsletter{}, false, nil
		}
		return domain.Newsletter{}, false, err
	}
	return newsletterFromModel(model), true, nil
}

// ListNewslettersByProject returns newsletters newest first.
func (s *GormStore) ListNewslettersByProject(projectID string) ([]domain.Newsletter, error) {
	var models []NewsletterModel
	if err := s.db.Where("project_id = ?", projectID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Newsletter, 0, len(models))
	for _, m := range models {
		res = append(res, newsletterFromModel(m))
	}
	return res, nil
}

// DeleteNewsletter removes a newsletter.
func (s *GormStore) DeleteNewsletter(id string) error {
	return s.db.Delete(&NewsletterModel{}, "id = ?", id).Error
}

// MarkGenerating conditionally moves a newsletter into generating.
func (s *GormStore) MarkGenerating(id string) (bool, error) {
	return s.guardedUpdate(
		s.db.Model(&NewsletterModel{}).
			Where("id = ? AND status <> ?", id, string(domain.StatusGenerating)).
			Updates(map[string]any{
				"status":        string(domain.StatusGenerating),
				"error_message": "",
				"updated_at":    time.Now().UTC(),
			}),
	)
}

// CommitGenerationSuccess applies a generation result while still generating.
// The status guard in the WHERE clause is what makes a late result lose to an
// already-applied cancel.
func (s *GormStore) CommitGenerationSuccess(id, htmlContent, textContent string) (bool, error) {
	return s.guardedUpdate(
		s.db.Model(&NewsletterModel{}).
			Where("id = ? AND status = ?", id, string(domain.StatusGenerating)).
			Updates(map[string]any{
				"html_content":  htmlContent,
				"text_content":  textContent,
				"status":        string(domain.StatusFinal),
				"error_message": "",
				"updated_at":    time.Now().UTC(),
			}),
	)
}

// CommitGenerationFailure records a backend failure while still generating.
func (s *GormStore) CommitGenerationFailure(id, errMsg string) (bool, error) {
	return s.guardedUpdate(
		s.db.Model(&NewsletterModel{}).
			Where("id = ? AND status = ?", id, string(domain.StatusGenerating)).
			Updates(map[string]any{
				"status":        string(domain.StatusError),
				"error_message": errMsg,
				"updated_at":    time.Now().UTC(),
			}),
	)
}

// CancelGeneration moves a generating newsletter back to draft.
func (s *GormStore) CancelGeneration(id, note string) (bool, error) {
	return s.guardedUpdate(
		s.db.Model(&NewsletterModel{}).
			Where("id = ? AND status = ?", id, string(domain.StatusGenerating)).
			Updates(map[string]any{
				"status":        string(domain.StatusDraft),
				"error_message": note,
				"updated_at":    time.Now().UTC(),
			}),
	)
}

func (s *GormStore) guardedUpdate(tx *gorm.DB) (bool, error) {
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Name:             p.Name,
		Description:      p.Description,
		Language:         p.Language,
		Frequency:        p.Frequency,
		AuthorName:       p.AuthorName,
		AuthorBio:        p.AuthorBio,
		Tone:             p.Tone,
		Structure:        p.Structure,
		Kind:             string(p.Kind),
		LogoURL:          p.LogoURL,
		DesignGuidelines: p.DesignGuidelines,
		HTMLTemplate:     p.HTMLTemplate,
		Backend:          string(p.Backend),
		WebhookURL:       p.WebhookURL,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Name:             m.Name,
		Description:      m.Description,
		Language:         m.Language,
		Frequency:        m.Frequency,
		AuthorName:       m.AuthorName,
		AuthorBio:        m.AuthorBio,
		Tone:             m.Tone,
		Structure:        m.Structure,
		Kind:             domain.NewsletterKind(m.Kind),
		LogoURL:          m.LogoURL,
		DesignGuidelines: m.DesignGuidelines,
		HTMLTemplate:     m.HTMLTemplate,
		Backend:          domain.BackendKind(m.Backend),
		WebhookURL:       m.WebhookURL,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func spreadsheetToModel(s domain.Spreadsheet) SpreadsheetModel {
	return SpreadsheetModel{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func spreadsheetFromModel(m SpreadsheetModel) domain.Spreadsheet {
	return domain.Spreadsheet{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func columnToModel(c domain.SpreadsheetColumn) SpreadsheetColumnModel {
	return SpreadsheetColumnModel{
		ID:            c.ID,
		SpreadsheetID: c.SpreadsheetID,
		Name:          c.Name,
		ColumnType:    string(c.Type),
		ColumnOrder:   c.Order,
	}
}

func columnFromModel(m SpreadsheetColumnModel) domain.SpreadsheetColumn {
	return domain.SpreadsheetColumn{
		ID:            m.ID,
		SpreadsheetID: m.SpreadsheetID,
		Name:          m.Name,
		Type:          domain.ColumnType(m.ColumnType),
		Order:         m.ColumnOrder,
	}
}

func rowToModel(r domain.SpreadsheetRow) SpreadsheetRowModel {
	data, _ := json.Marshal(r.Data)
	return SpreadsheetRowModel{
		ID:            r.ID,
		SpreadsheetID: r.SpreadsheetID,
		Data:          datatypes.JSON(data),
		RowOrder:      r.Order,
	}
}

func rowFromModel(m SpreadsheetRowModel) domain.SpreadsheetRow {
	var data map[string]any
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return domain.SpreadsheetRow{
		ID:            m.ID,
		SpreadsheetID: m.SpreadsheetID,
		Data:          data,
		Order:         m.RowOrder,
	}
}

func newsletterToModel(n domain.Newsletter) NewsletterModel {
	return NewsletterModel{
		ID:           n.ID,
		ProjectID:    n.ProjectID,
		OwnerID:      n.OwnerID,
		Title:        n.Title,
		LinksRaw:     n.LinksRaw,
		Notes:        n.Notes,
		HTMLContent:  n.HTMLContent,
		TextContent:  n.TextContent,
		ErrorMessage: n.ErrorMessage,
		Status:       string(n.Status),
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func newsletterFromModel(m NewsletterModel) domain.Newsletter {
	return domain.Newsletter{
		ID:           m.ID,
		ProjectID:    m.ProjectID,
		OwnerID:      m.OwnerID,
		Title:        m.Title,
		LinksRaw:     m.LinksRaw,
		Notes:        m.Notes,
		HTMLContent:  m.HTMLContent,
		TextContent:  m.TextContent,
		ErrorMessage: m.ErrorMessage,
		Status:       domain.NewsletterStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
