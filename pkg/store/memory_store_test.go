package store

import (
	"testing"

	"letterforge/pkg/domain"
)

func seedGenerating(t *testing.T, m *MemoryStore) {
	t.Helper()
	if err := m.SaveNewsletter(domain.Newsletter{
		ID:        "n1",
		ProjectID: "p1",
		OwnerID:   "u1",
		Title:     "Edition 1",
		Status:    domain.StatusGenerating,
	}); err != nil {
		t.Fatalf("save newsletter: %v", err)
	}
}

func TestMarkGenerating(t *testing.T) {
	m := NewMemoryStore()
	if err := m.SaveNewsletter(domain.Newsletter{ID: "n1", Status: domain.StatusError, ErrorMessage: "old"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	applied, err := m.MarkGenerating("n1")
	if err != nil || !applied {
		t.Fatalf("MarkGenerating: applied=%v err=%v", applied, err)
	}
	n, _, _ := m.GetNewsletter("n1")
	if n.Status != domain.StatusGenerating || n.ErrorMessage != "" {
		t.Fatalf("record = %+v, want generating with cleared error", n)
	}

	// Already generating: no double entry.
	applied, err = m.MarkGenerating("n1")
	if err != nil || applied {
		t.Fatalf("second MarkGenerating: applied=%v err=%v, want not applied", applied, err)
	}
}

func TestGuardedCommitsRequireGenerating(t *testing.T) {
	m := NewMemoryStore()
	if err := m.SaveNewsletter(domain.Newsletter{ID: "n1", Status: domain.StatusDraft}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if applied, _ := m.CommitGenerationSuccess("n1", "<p>x</p>", "x"); applied {
		t.Fatal("success applied to draft record")
	}
	if applied, _ := m.CommitGenerationFailure("n1", "boom"); applied {
		t.Fatal("failure applied to draft record")
	}
	if applied, _ := m.CancelGeneration("n1", "note"); applied {
		t.Fatal("cancel applied to draft record")
	}
	n, _, _ := m.GetNewsletter("n1")
	if n.Status != domain.StatusDraft || n.HTMLContent != "" || n.ErrorMessage != "" {
		t.Fatalf("record mutated by rejected transitions: %+v", n)
	}
}

func TestCancelThenLateCommit(t *testing.T) {
	m := NewMemoryStore()
	seedGenerating(t, m)

	applied, err := m.CancelGeneration("n1", "Generation cancelled by user")
	if err != nil || !applied {
		t.Fatalf("CancelGeneration: applied=%v err=%v", applied, err)
	}

	// The backend finished after the cancel; its result must be dropped.
	applied, err = m.CommitGenerationSuccess("n1", "<p>late</p>", "late")
	if err != nil {
		t.Fatalf("CommitGenerationSuccess: %v", err)
	}
	if applied {
		t.Fatal("late success overwrote an applied cancel")
	}
	n, _, _ := m.GetNewsletter("n1")
	if n.Status != domain.StatusDraft || n.HTMLContent != "" {
		t.Fatalf("record = %+v, want draft with no content", n)
	}
}

func TestCommitSuccessSetsBothFields(t *testing.T) {
	m := NewMemoryStore()
	seedGenerating(t, m)

	applied, err := m.CommitGenerationSuccess("n1", "<p>ok</p>", "ok")
	if err != nil || !applied {
		t.Fatalf("CommitGenerationSuccess: applied=%v err=%v", applied, err)
	}
	n, _, _ := m.GetNewsletter("n1")
	if n.Status != domain.StatusFinal || n.HTMLContent != "<p>ok</p>" || n.TextContent != "ok" {
		t.Fatalf("record = %+v, want final with both fields", n)
	}
}

func TestUpdateNewsletterFieldsGuarded(t *testing.T) {
	m := NewMemoryStore()
	seedGenerating(t, m)

	applied, err := m.UpdateNewsletterFields("n1", "Edit", "https://x.com", "notes")
	if err != nil {
		t.Fatalf("UpdateNewsletterFields: %v", err)
	}
	if applied {
		t.Fatal("edit applied to a generating record")
	}
	n, _, _ := m.GetNewsletter("n1")
	if n.Title != "Edition 1" || n.Status != domain.StatusGenerating {
		t.Fatalf("record mutated by rejected edit: %+v", n)
	}

	if _, err := m.CommitGenerationSuccess("n1", "<p>ok</p>", "ok"); err != nil {
		t.Fatalf("CommitGenerationSuccess: %v", err)
	}
	applied, err = m.UpdateNewsletterFields("n1", "Edit", "https://x.com", "notes")
	if err != nil || !applied {
		t.Fatalf("UpdateNewsletterFields: applied=%v err=%v", applied, err)
	}
	n, _, _ = m.GetNewsletter("n1")
	if n.Title != "Edit" || n.Status != domain.StatusFinal || n.HTMLContent != "<p>ok</p>" {
		t.Fatalf("edit touched status or content: %+v", n)
	}
}

func TestGuardedTransitionsMissingRecord(t *testing.T) {
	m := NewMemoryStore()
	if applied, err := m.CommitGenerationSuccess("ghost", "a", "b"); err != nil || applied {
		t.Fatalf("missing record: applied=%v err=%v, want not applied", applied, err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	m := NewMemoryStore()
	if err := m.SaveProject(domain.Project{ID: "p1", OwnerID: "u1", Name: "P"}); err != nil {
		t.Fatalf("save project: %v", err)
	}
	if err := m.SaveSpreadsheet(domain.Spreadsheet{ID: "s1", ProjectID: "p1", Name: "S"}); err != nil {
		t.Fatalf("save spreadsheet: %v", err)
	}
	if err := m.ReplaceSheetData("s1",
		[]domain.SpreadsheetColumn{{ID: "c1", Name: "A", Type: domain.ColumnText}},
		[]domain.SpreadsheetRow{{ID: "r1", Data: map[string]any{"A": "x"}}},
	); err != nil {
		t.Fatalf("replace sheet data: %v", err)
	}
	if err := m.SaveNewsletter(domain.Newsletter{ID: "n1", ProjectID: "p1", Status: domain.StatusDraft}); err != nil {
		t.Fatalf("save newsletter: %v", err)
	}

	if err := m.DeleteProject("p1"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, ok, _ := m.GetSpreadsheet("s1"); ok {
		t.Fatal("spreadsheet survived project delete")
	}
	if _, ok, _ := m.GetNewsletter("n1"); ok {
		t.Fatal("newsletter survived project delete")
	}
	if cols, _ := m.ListColumns("s1"); len(cols) != 0 {
		t.Fatalf("columns survived project delete: %v", cols)
	}
}

func TestListOrdering(t *testing.T) {
	m := NewMemoryStore()
	if err := m.SaveSpreadsheet(domain.Spreadsheet{ID: "s1", ProjectID: "p1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cols := []domain.SpreadsheetColumn{
		{ID: "c3", Name: "Third", Order: 2},
		{ID: "c1", Name: "First", Order: 0},
		{ID: "c2", Name: "Second", Order: 1},
	}
	rows := []domain.SpreadsheetRow{
		{ID: "r2", Order: 1},
		{ID: "r1", Order: 0},
	}
	if err := m.ReplaceSheetData("s1", cols, rows); err != nil {
		t.Fatalf("replace: %v", err)
	}

	gotCols, _ := m.ListColumns("s1")
	if gotCols[0].Name != "First" || gotCols[2].Name != "Third" {
		t.Fatalf("columns out of order: %+v", gotCols)
	}
	gotRows, _ := m.ListRows("s1")
	if gotRows[0].ID != "r1" {
		t.Fatalf("rows out of order: %+v", gotRows)
	}
}
