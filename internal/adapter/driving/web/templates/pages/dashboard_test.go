package pages

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vm "github.com/ericfisherdev/gitlicense/internal/adapter/driving/web/viewmodel"
)

func render(t *testing.T, m vm.DashboardViewModel) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Dashboard(m).Render(context.Background(), &buf))
	return buf.String()
}

func TestDashboard_RevokedRow(t *testing.T) {
	html := render(t, vm.DashboardViewModel{
		Rows: []vm.LicenseRowViewModel{{
			Key:         "K1",
			ShortKey:    "K1",
			Status:      "blocked",
			RevokedAt:   "2026-02-10 12:00 UTC",
			NoteHTML:    "<p><em>vip</em></p>",
			Revoked:     true,
			StatusClass: "status-revoked",
			ActionPath:  "/admin/licenses/K1",
		}},
		Summary:         vm.LicenseSummary{Total: 1, Revoked: 1, Unbound: 1},
		CSRFToken:       "tok",
		HashIdentifiers: true,
	})

	assert.Contains(t, html, `<tr class="status-revoked">`)
	assert.Contains(t, html, `<code title="K1">K1</code>`)
	assert.Contains(t, html, `<em>unbound</em>`)
	assert.Contains(t, html, `<small>2026-02-10 12:00 UTC</small>`)
	assert.Contains(t, html, `<p><em>vip</em></p>`)
	assert.Contains(t, html, `action="/admin/licenses/K1/unrevoke"`)
	assert.NotContains(t, html, `action="/admin/licenses/K1/revoke"`)
	assert.Contains(t, html, `<button type="submit" class="danger">Delete</button>`)
	assert.Contains(t, html, `<input type="hidden" name="csrf_token" value="tok">`)
	assert.Contains(t, html, "<strong>1</strong> revoked")
	assert.Contains(t, html, "stored as SHA-256 digests")
	assert.NotContains(t, html, "No licenses yet.")
}

func TestDashboard_EscapesText(t *testing.T) {
	html := render(t, vm.DashboardViewModel{
		Flash: `<b>saved</b>`,
		Rows: []vm.LicenseRowViewModel{{
			Key:         `"><script>`,
			ShortKey:    `"><script>`,
			MachineID:   "<i>pc</i>",
			Status:      "active",
			Bound:       true,
			StatusClass: "status-active",
			ActionPath:  "/admin/licenses/x",
		}},
	})

	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>saved</b>")
	assert.Contains(t, html, "&lt;i&gt;pc&lt;/i&gt;")
	assert.NotContains(t, html, "stored as SHA-256 digests")
}

func TestDashboard_Empty(t *testing.T) {
	html := render(t, vm.DashboardViewModel{Location: "acme/licenses@main"})

	assert.Contains(t, html, "No licenses yet.")
	assert.Contains(t, html, `<p class="location">acme/licenses@main</p>`)
	assert.NotContains(t, html, "<table>")
}
