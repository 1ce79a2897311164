package model

// LicenseStatus is the administrative state of a license, independent of expiry.
type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusBlocked LicenseStatus = "blocked"
)

// Valid reports whether s is a known status.
func (s LicenseStatus) Valid() bool {
	return s == LicenseStatusActive || s == LicenseStatusBlocked
}

// Verdict is the outcome of a license check. Every verdict is a normal result,
// not an error.
type Verdict string

const (
	VerdictValid           Verdict = "VALID"
	VerdictNotFound        Verdict = "NOT_FOUND"
	VerdictRevoked         Verdict = "REVOKED"
	VerdictMachineMismatch Verdict = "MACHINE_MISMATCH"
	VerdictExpired         Verdict = "EXPIRED"
)

// UpsertMode tells whether a create-or-update call created a new license.
type UpsertMode string

const (
	UpsertModeCreated UpsertMode = "CREATED"
	UpsertModeUpdated UpsertMode = "UPDATED"
)
