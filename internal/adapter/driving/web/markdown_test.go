package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestRenderMarkdown_PlainText(t *testing.T) {
	result := RenderMarkdown("issued to Acme Corp")
	assert.Contains(t, result, "issued to Acme Corp")
}

func TestRenderMarkdown_Bold(t *testing.T) {
	result := RenderMarkdown("**enterprise** seat")
	assert.Contains(t, result, "<strong>enterprise</strong>")
}

func TestRenderMarkdown_InlineCode(t *testing.T) {
	result := RenderMarkdown("order `INV-2041`")
	assert.Contains(t, result, "<code>INV-2041</code>")
}

func TestRenderMarkdown_Link(t *testing.T) {
	result := RenderMarkdown("[ticket](https://example.com/t/1)")
	assert.Contains(t, result, `href="https://example.com/t/1"`)
	assert.Contains(t, result, `rel="nofollow`)
	assert.Contains(t, result, "ticket</a>")
}

func TestRenderMarkdown_SanitizesScript(t *testing.T) {
	result := RenderMarkdown(`<script>alert("xss")</script>`)
	assert.NotContains(t, result, "<script>")
}

func TestRenderMarkdown_SanitizesEventHandlers(t *testing.T) {
	result := RenderMarkdown(`<img src="x" onerror="alert(1)">`)
	assert.NotContains(t, result, "onerror")
}

func TestRenderMarkdown_GFMStrikethrough(t *testing.T) {
	result := RenderMarkdown("~~trial~~ paid")
	assert.Contains(t, result, "<del>trial</del>")
}

func TestRenderMarkdown_DropsRawHTML(t *testing.T) {
	result := RenderMarkdown(`seat for <b>Acme</b>`)
	assert.NotContains(t, result, "<b>")
	assert.Contains(t, result, "seat for")
}

func TestRenderMarkdown_FlattensBlockElements(t *testing.T) {
	result := RenderMarkdown("# Renewal\n\n![logo](https://example.com/logo.png)")
	assert.NotContains(t, result, "<h1")
	assert.NotContains(t, result, "<img")
	assert.Contains(t, result, "Renewal")
}

func TestRenderMarkdown_TruncatesLongNotes(t *testing.T) {
	result := RenderMarkdown(strings.Repeat("é", maxNoteRunes+50))
	assert.Contains(t, result, strings.Repeat("é", maxNoteRunes)+"...")
	assert.NotContains(t, result, strings.Repeat("é", maxNoteRunes+1))
}

func TestRenderMarkdown_LinkifiesBareURLs(t *testing.T) {
	result := RenderMarkdown("see https://example.com/orders/7")
	assert.Contains(t, result, `href="https://example.com/orders/7"`)
	assert.Contains(t, result, `target="_blank"`)
}
