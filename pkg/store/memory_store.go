package store

import (
	"sort"
	"sync"
	"time"

	"letterforge/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local runs
// without Postgres; the guarded transitions hold the same atomicity contract
// as GormStore because check and write happen under one lock.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]domain.Project
	sheets      map[string]domain.Spreadsheet
	columns     map[string][]domain.SpreadsheetColumn
	rows        map[string][]domain.SpreadsheetRow
	newsletters map[string]domain.Newsletter
	order       []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[string]domain.Project),
		sheets:      make(map[string]domain.Spreadsheet),
		columns:     make(map[string][]domain.SpreadsheetColumn),
		rows:        make(map[string][]domain.SpreadsheetRow),
		newsletters: make(map[string]domain.Newsletter),
	}
}

func (m *MemoryStore) SaveProject(p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[p.ID]; !exists {
		m.order = append(m.order, p.ID)
	}
	m.projects[p.ID] = p
	return nil
}

func (m *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

func (m *MemoryStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0)
	for _, id := range m.order {
		if p, ok := m.projects[id]; ok && p.OwnerID == ownerID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	for sheetID, sheet := range m.sheets {
		if sheet.ProjectID == id {
			delete(m.sheets, sheetID)
			delete(m.columns, sheetID)
			delete(m.rows, sheetID)
		}
	}
	for nlID, nl := range m.newsletters {
		if nl.ProjectID == id {
			delete(m.newsletters, nlID)
		}
	}
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

func (m *MemoryStore) SaveSpreadsheet(s domain.Spreadsheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSpreadsheet(id string) (domain.Spreadsheet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sheets[id]
	return s, ok, nil
}

func (m *MemoryStore) ListSpreadsheetsByProject(projectID string) ([]domain.Spreadsheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Spreadsheet, 0)
	for _, s := range m.sheets {
		if s.ProjectID == projectID {
			res = append(res, s)
		}
	}
	sortByCreated(res)
	return res, nil
}

func (m *MemoryStore) DeleteSpreadsheet(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sheets, id)
	delete(m.columns, id)
	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) ReplaceSheetData(spreadsheetID string, cols []domain.SpreadsheetColumn, rows []domain.SpreadsheetRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	colCopy := make([]domain.SpreadsheetColumn, len(cols))
	copy(colCopy, cols)
	for i := range colCopy {
		colCopy[i].SpreadsheetID = spreadsheetID
	}
	rowCopy := make([]domain.SpreadsheetRow, len(rows))
	copy(rowCopy, rows)
	for i := range rowCopy {
		rowCopy[i].SpreadsheetID = spreadsheetID
	}
	m.columns[spreadsheetID] = colCopy
	m.rows[spreadsheetID] = rowCopy
	return nil
}

func (m *MemoryStore) ListColumns(spreadsheetID string) ([]domain.SpreadsheetColumn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cols := m.columns[spreadsheetID]
	res := make([]domain.SpreadsheetColumn, len(cols))
	copy(res, cols)
	sort.Slice(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res, nil
}

func (m *MemoryStore) ListRows(spreadsheetID string) ([]domain.SpreadsheetRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.rows[spreadsheetID]
	res := make([]domain.SpreadsheetRow, len(rows))
	copy(res, rows)
	sort.Slice(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res, nil
}

func (m *MemoryStore) SaveNewsletter(n domain.Newsletter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newsletters[n.ID] = n
	return nil
}

func (m *MemoryStore) UpdateNewsletterFields(id, title, linksRaw, notes string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.newsletters[id]
	if !ok || n.Status == domain.StatusGenerating {
		return false, nil
	}
	n.Title = title
	n.LinksRaw = linksRaw
	n.Notes = notes
	n.UpdatedAt = time.Now().UTC()
	m.newsletters[id] = n
	return true, nil
}

func (m *MemoryStore) GetNewsletter(id string) (domain.Newsletter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.newsletters[id]
	return n, ok, nil
}

func (m *MemoryStore) ListNewslettersByProject(projectID string) ([]domain.Newsletter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Newsletter, 0)
	for _, n := range m.newsletters {
		if n.ProjectID == projectID {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteNewsletter(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.newsletters, id)
	return nil
}

func (m *MemoryStore) MarkGenerating(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.newsletters[id]
	if !ok || n.Status == domain.StatusGenerating {
		return false, nil
	}
	n.Status = domain.StatusGenerating
	n.ErrorMessage = ""
	n.UpdatedAt = time.Now().UTC()
	m.newsletters[id] = n
	return true, nil
}

func (m *MemoryStore) CommitGenerationSuccess(id, htmlContent, textContent string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.newsletters[id]
	if !ok || n.Status != domain.StatusGenerating {
		return false, nil
	}
	n.HTMLContent = htmlContent
	n.TextContent = textContent
	n.Status = domain.StatusFinal
	n.ErrorMessage = ""
	n.UpdatedAt = time.Now().UTC()
	m.newsletters[id] = n
	return true, nil
}

func (m *MemoryStore) CommitGenerationFailure(id, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.newsletters[id]
	if !ok || n.Status != domain.StatusGenerating {
		return false, nil
	}
	n.Status = domain.StatusError
	n.ErrorMessage = errMsg
	n.UpdatedAt = time.Now().UTC()
	m.newsletters[id] = n
	return true, nil
}

func (m *MemoryStore) CancelGeneration(id, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.newsletters[id]
	if !ok || n.Status != domain.StatusGenerating {
		return false, nil
	}
	n.Status = domain.StatusDraft
	n.ErrorMessage = note
	n.UpdatedAt = time.Now().UTC()
	m.newsletters[id] = n
	return true, nil
}

func sortByCreated(sheets []domain.Spreadsheet) {
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].CreatedAt.Before(sheets[j].CreatedAt) })
}
