package web

import (
	"net/url"
	"time"

	vm "github.com/ericfisherdev/gitlicense/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

const shortKeyLength = 12

// toLicenseRowViewModel converts a domain License to a table row.
func toLicenseRowViewModel(lic model.License, today string) vm.LicenseRowViewModel {
	shortKey := lic.Key
	if len(shortKey) > shortKeyLength+3 {
		shortKey = shortKey[:shortKeyLength] + "..."
	}

	statusClass := "status-active"
	switch {
	case lic.IsRevoked():
		statusClass = "status-revoked"
	case lic.IsExpiredOn(today):
		statusClass = "status-expired"
	}

	return vm.LicenseRowViewModel{
		Key:        lic.Key,
		ShortKey:   shortKey,
		MachineID:  lic.MachineID,
		Status:     string(lic.Status),
		ExpiresAt:  lic.ExpiresAt,
		NoteHTML:   RenderMarkdown(lic.Note),
		UpdatedAt:  formatTimestamp(lic.UpdatedAt),
		RevokedAt:  formatTimestamp(lic.RevokedAt),
		Revoked:    lic.IsRevoked(),
		Expired:    lic.IsExpiredOn(today),
		Bound:      lic.IsBound(),
		ActionPath: "/admin/licenses/" + url.PathEscape(lic.Key),

		StatusClass: statusClass,
	}
}

// toDashboardViewModel builds the dashboard from the registry listing.
func toDashboardViewModel(licenses []model.License, now time.Time) vm.DashboardViewModel {
	today := model.Today(now)

	rows := make([]vm.LicenseRowViewModel, 0, len(licenses))
	var summary vm.LicenseSummary
	for _, lic := range licenses {
		row := toLicenseRowViewModel(lic, today)
		rows = append(rows, row)

		summary.Total++
		switch {
		case row.Revoked:
			summary.Revoked++
		case row.Expired:
			summary.Expired++
		default:
			summary.Active++
		}
		if !row.Bound {
			summary.Unbound++
		}
	}

	return vm.DashboardViewModel{
		Today:   today,
		Rows:    rows,
		Summary: summary,
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
