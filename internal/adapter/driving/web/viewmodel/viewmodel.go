// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// LicenseRowViewModel holds presentation-ready data for one row of the license table.
type LicenseRowViewModel struct {
	Key       string
	ShortKey  string
	MachineID string
	Status    string
	ExpiresAt string
	NoteHTML  string // Sanitized markdown.
	UpdatedAt string
	RevokedAt string
	Revoked   bool
	Expired   bool
	Bound     bool

	// StatusClass is the CSS class of the row: status-active, status-expired
	// or status-revoked.
	StatusClass string

	// ActionPath is the URL prefix for this row's POST forms.
	ActionPath string
}

// LicenseSummary holds the counters shown above the table.
type LicenseSummary struct {
	Total   int
	Active  int
	Revoked int
	Expired int
	Unbound int
}

// DashboardViewModel holds everything the admin dashboard page renders.
type DashboardViewModel struct {
	Location        string
	Today           string
	Rows            []LicenseRowViewModel
	Summary         LicenseSummary
	CSRFToken       string
	Flash           string
	Error           string
	HashIdentifiers bool
}
