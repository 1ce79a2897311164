package web

import (
	"bytes"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// maxNoteRunes caps how much of a note is rendered into a table cell.
const maxNoteRunes = 500

var (
	// Raw HTML in notes is never passed through; goldmark omits it.
	noteMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	)
	notePolicy = newNotePolicy()
)

// newNotePolicy allows the inline formatting a table cell can hold. Headings,
// images and tables are reduced to their text.
func newNotePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "del", "code", "ul", "ol", "li")
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// RenderMarkdown converts a license note to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	src = truncateNote(src)

	var buf bytes.Buffer
	if err := noteMarkdown.Convert([]byte(src), &buf); err != nil {
		return notePolicy.Sanitize(src)
	}

	return notePolicy.Sanitize(buf.String())
}

func truncateNote(src string) string {
	if utf8.RuneCountInString(src) <= maxNoteRunes {
		return src
	}
	runes := []rune(src)
	return string(runes[:maxNoteRunes]) + "..."
}
