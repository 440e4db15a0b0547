package app

import (
	"fmt"

	"letterforge/pkg/ai"
	"letterforge/pkg/domain"
	"letterforge/pkg/store"
)

// promptRowLimit caps how many rows per spreadsheet are serialized into the
// prompt. The true total is still reported alongside.
const promptRowLimit = 10

// BuildGenerationContext assembles the ephemeral context for one generation
// attempt: project configuration, attached datasets, links, and notes.
func BuildGenerationContext(st store.Store, project domain.Project, n domain.Newsletter, links []ai.Link) (ai.GenerationContext, error) {
	gc := ai.GenerationContext{
		NewsletterID: n.ID,
		Title:        n.Title,
		Links:        links,
		Notes:        n.Notes,
		Project: ai.ProjectContext{
			Name:             project.Name,
			AuthorName:       project.AuthorName,
			AuthorBio:        project.AuthorBio,
			Tone:             project.Tone,
			Structure:        project.Structure,
			Language:         project.Language,
			NewsletterType:   string(project.Kind),
			LogoURL:          project.LogoURL,
			DesignGuidelines: project.DesignGuidelines,
			HTMLTemplate:     project.HTMLTemplate,
		},
		Directives: styleDirectives(project),
	}

	sheets, err := st.ListSpreadsheetsByProject(project.ID)
	if err != nil {
		return ai.GenerationContext{}, fmt.Errorf("load spreadsheets: %w", err)
	}
	for _, sheet := range sheets {
		ds, err := buildDataset(st, sheet)
		if err != nil {
			return ai.GenerationContext{}, err
		}
		gc.Datasets = append(gc.Datasets, ds)
	}
	return gc, nil
}

func buildDataset(st store.Store, sheet domain.Spreadsheet) (ai.Dataset, error) {
	columns, err := st.ListColumns(sheet.ID)
	if err != nil {
		return ai.Dataset{}, fmt.Errorf("load columns for %s: %w", sheet.ID, err)
	}
	rows, err := st.ListRows(sheet.ID)
	if err != nil {
		return ai.Dataset{}, fmt.Errorf("load rows for %s: %w", sheet.ID, err)
	}

	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}

	ds := ai.Dataset{
		Name:        sheet.Name,
		Description: sheet.Description,
		Columns:     names,
		TotalRows:   len(rows),
	}
	for _, row := range rows {
		if len(ds.Rows) == promptRowLimit {
			break
		}
		// Restrict each row to known column names; dangling keys are dropped.
		projected := make(map[string]any, len(names))
		for _, name := range names {
			if v, ok := row.Data[name]; ok {
				projected[name] = v
			}
		}
		ds.Rows = append(ds.Rows, projected)
	}
	return ds, nil
}

func styleDirectives(project domain.Project) []ai.Directive {
	var out []ai.Directive
	switch project.Kind {
	case domain.KindInstitutional:
		out = append(out, ai.Directive{
			Tag:  "voice",
			Text: "Write in a corporate, neutral voice on behalf of the organization.",
		})
		if project.LogoURL != "" {
			out = append(out, ai.Directive{
				Tag:  "design",
				Text: fmt.Sprintf("Place the logo (%s) in the newsletter header.", project.LogoURL),
			})
		}
	default:
		out = append(out, ai.Directive{
			Tag:  "voice",
			Text: fmt.Sprintf("Write in the first person as %s, in an author-centric voice.", project.AuthorName),
		})
		out = append(out, ai.Directive{
			Tag:  "voice",
			Text: "Close the newsletter with a personal sign-off from the author.",
		})
	}

	if project.Tone != "" {
		out = append(out, ai.Directive{Tag: "tone", Text: project.Tone})
	}
	if project.Structure != "" {
		out = append(out, ai.Directive{Tag: "structure", Text: project.Structure})
	}
	if project.DesignGuidelines != "" {
		out = append(out, ai.Directive{Tag: "design", Text: project.DesignGuidelines})
	}
	if project.HTMLTemplate != "" {
		out = append(out, ai.Directive{Tag: "template", Text: project.HTMLTemplate})
	}
	return out
}
