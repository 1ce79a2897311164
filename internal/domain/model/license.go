package model

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for license expiry. Dates in
// this layout order the same lexicographically and chronologically.
const DateLayout = "2006-01-02"

// License is a single license record in the registry. Key is unique within a
// Registry; MachineID is empty until the license is bound to a machine.
type License struct {
	Key       string
	MachineID string
	Status    LicenseStatus
	ExpiresAt string // YYYY-MM-DD, last valid day inclusive. Empty means no expiry.
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt time.Time // Zero unless the license is currently revoked.
}

// IsBound reports whether the license is bound to a machine.
func (l License) IsBound() bool {
	return l.MachineID != ""
}

// IsRevoked reports whether the license has been blocked by an administrator.
func (l License) IsRevoked() bool {
	return l.Status == LicenseStatusBlocked
}

// IsExpiredOn reports whether the license is past its last valid day.
// today must be in DateLayout. The expiry date itself is still valid.
func (l License) IsExpiredOn(today string) bool {
	return l.ExpiresAt != "" && today > l.ExpiresAt
}

// ValidateExpiry checks that s is empty or a real calendar date in DateLayout.
func ValidateExpiry(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return ErrInvalidLicense
	}
	return nil
}

// Today returns the UTC calendar date of t in DateLayout.
func Today(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NormalizeKey trims surrounding whitespace from a license key or machine ID.
func NormalizeKey(s string) string {
	return strings.TrimSpace(s)
}
