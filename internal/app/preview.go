package app

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var notesMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// PreviewNotes renders the markdown notes/brief of an edition as HTML so the
// editor can show a formatted preview before generation.
func (a *App) PreviewNotes(notes string) (string, error) {
	var b strings.Builder
	if err := notesMarkdown.Convert([]byte(notes), &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
