package ai

import (
	"fmt"
	"strings"
)

// SystemPrompt renders the directive bundle for the builtin backend: project
// configuration, the kind-specific style directives, and attached datasets.
func SystemPrompt(gc GenerationContext) string {
	var b strings.Builder
	b.WriteString("You are an assistant specialized in writing professional newsletters.\n")
	b.WriteString("Analyze the provided links and produce a complete newsletter in two formats: HTML and plain text.\n\n")

	b.WriteString("Project configuration:\n")
	b.WriteString("- Tone of voice: " + orDefault(gc.Project.Tone, "professional and informative") + "\n")
	b.WriteString("- Structure: " + orDefault(gc.Project.Structure, "standard") + "\n")
	b.WriteString("- Language: " + orDefault(gc.Project.Language, "en") + "\n")
	b.WriteString("- Author name: " + gc.Project.AuthorName + "\n")
	if gc.Project.AuthorBio != "" {
		b.WriteString("- Author bio: " + gc.Project.AuthorBio + "\n")
	}

	if len(gc.Directives) > 0 {
		b.WriteString("\nDirectives:\n")
		for _, d := range gc.Directives {
			fmt.Fprintf(&b, "[%s] %s\n", d.Tag, d.Text)
		}
	}

	for _, ds := range gc.Datasets {
		b.WriteString("\nAttached dataset: " + ds.Name + "\n")
		if ds.Description != "" {
			b.WriteString(ds.Description + "\n")
		}
		b.WriteString("Columns: " + strings.Join(ds.Columns, ", ") + "\n")
		fmt.Fprintf(&b, "Rows (%d of %d shown):\n", len(ds.Rows), ds.TotalRows)
		for _, row := range ds.Rows {
			b.WriteString(renderRow(ds.Columns, row) + "\n")
		}
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. Write a well-organized newsletter with a summary or comment on every link provided.\n")
	b.WriteString("2. Keep the configured tone of voice and follow the project structure.\n")
	b.WriteString("3. For the HTML version use email-safe formatting: inline styles, tables for layout.\n")
	b.WriteString("4. For the text version keep clean, readable formatting.\n")
	return b.String()
}

// UserPrompt renders the per-edition inputs: links and notes.
func UserPrompt(gc GenerationContext) string {
	var b strings.Builder
	b.WriteString("Write a newsletter based on the following links:\n\n")
	for i, link := range gc.Links {
		if link.Title != "" {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, link.URL, link.Title)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, link.URL)
		}
	}
	if gc.Notes != "" {
		b.WriteString("\nNotes/brief for this edition:\n")
		b.WriteString(gc.Notes)
		b.WriteString("\n")
	}
	b.WriteString("\nReturn the newsletter through the format_newsletter function with both the html_content and text_content fields.")
	return b.String()
}

func renderRow(columns []string, row map[string]any) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("%s=%v", col, row[col]))
	}
	return "- " + strings.Join(parts, "; ")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
