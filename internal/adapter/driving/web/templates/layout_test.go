package templates

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>body</p>")
		return err
	})

	var buf bytes.Buffer
	require.NoError(t, Layout("Licenses & <Keys>", body).Render(context.Background(), &buf))
	html := buf.String()

	assert.Contains(t, html, "<title>Licenses &amp; &lt;Keys&gt;</title>")
	assert.Contains(t, html, `<main class="container"><p>body</p></main>`)
	assert.Contains(t, html, `href="/static/gitlicense.css"`)
}
