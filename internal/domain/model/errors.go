package model

import "errors"

// Sentinel errors for registry mutations. They describe normal, reportable
// outcomes rather than infrastructure failures.
var (
	// ErrLicenseNotFound indicates no license with the requested key exists.
	ErrLicenseNotFound = errors.New("license not found")

	// ErrDuplicateKey indicates a license with the same key already exists.
	ErrDuplicateKey = errors.New("license key already exists")

	// ErrInvalidLicense indicates a missing key or a malformed field value.
	ErrInvalidLicense = errors.New("invalid license")
)
