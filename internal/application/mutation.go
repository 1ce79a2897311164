package application

import (
	"fmt"
	"slices"
	"time"

	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

// The functions in this file are pure transformations over a registry
// snapshot. They never perform I/O and never modify their input, so the
// License Store can re-run them safely after a version conflict.

// LicenseUpdate carries the fields of an update. Nil fields are left unchanged.
type LicenseUpdate struct {
	MachineID *string
	Status    *model.LicenseStatus
	ExpiresAt *string
	Note      *string
}

// IsEmpty reports whether the update sets no field at all.
func (u LicenseUpdate) IsEmpty() bool {
	return u.MachineID == nil && u.Status == nil && u.ExpiresAt == nil && u.Note == nil
}

func (u LicenseUpdate) validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidLicense, *u.Status)
	}
	if u.ExpiresAt != nil {
		if err := model.ValidateExpiry(*u.ExpiresAt); err != nil {
			return fmt.Errorf("%w: expiresAt must be YYYY-MM-DD, got %q", model.ErrInvalidLicense, *u.ExpiresAt)
		}
	}
	return nil
}

// CreateLicense appends a new license. Returns model.ErrDuplicateKey if a
// license with the same key exists.
func CreateLicense(reg model.Registry, lic model.License, now time.Time) (model.Registry, error) {
	if lic.Key == "" {
		return reg, fmt.Errorf("%w: key is required", model.ErrInvalidLicense)
	}
	if reg.IndexOf(lic.Key) >= 0 {
		return reg, fmt.Errorf("create %q: %w", lic.Key, model.ErrDuplicateKey)
	}
	if lic.Status == "" {
		lic.Status = model.LicenseStatusActive
	}
	upd := LicenseUpdate{Status: &lic.Status, ExpiresAt: &lic.ExpiresAt}
	if err := upd.validate(); err != nil {
		return reg, err
	}

	now = now.UTC()
	lic.CreatedAt = now
	lic.UpdatedAt = now
	lic.RevokedAt = time.Time{}
	if lic.IsRevoked() {
		lic.RevokedAt = now
	}

	out := reg.Clone()
	out.Licenses = append(out.Licenses, lic)
	return out, nil
}

// UpdateLicense merges the non-nil fields of upd into the license with the
// given key and refreshes UpdatedAt. Returns model.ErrLicenseNotFound if absent.
func UpdateLicense(reg model.Registry, key string, upd LicenseUpdate, now time.Time) (model.Registry, error) {
	if err := upd.validate(); err != nil {
		return reg, err
	}
	i := reg.IndexOf(key)
	if i < 0 {
		return reg, fmt.Errorf("update %q: %w", key, model.ErrLicenseNotFound)
	}

	out := reg.Clone()
	lic := &out.Licenses[i]
	now = now.UTC()

	if upd.MachineID != nil {
		lic.MachineID = *upd.MachineID
	}
	if upd.ExpiresAt != nil {
		lic.ExpiresAt = *upd.ExpiresAt
	}
	if upd.Note != nil {
		lic.Note = *upd.Note
	}
	if upd.Status != nil {
		setStatus(lic, *upd.Status, now)
	}
	lic.UpdatedAt = now

	return out, nil
}

// UpsertLicense creates the license when the key is absent and otherwise
// merges upd into the existing record. Duplicate keys are always resolved by
// updating, whatever the caller.
func UpsertLicense(reg model.Registry, key string, upd LicenseUpdate, now time.Time) (model.Registry, model.UpsertMode, error) {
	if key == "" {
		return reg, "", fmt.Errorf("%w: key is required", model.ErrInvalidLicense)
	}
	if reg.IndexOf(key) >= 0 {
		out, err := UpdateLicense(reg, key, upd, now)
		return out, model.UpsertModeUpdated, err
	}
	if err := upd.validate(); err != nil {
		return reg, "", err
	}

	lic := model.License{Key: key}
	if upd.MachineID != nil {
		lic.MachineID = *upd.MachineID
	}
	if upd.Status != nil {
		lic.Status = *upd.Status
	}
	if upd.ExpiresAt != nil {
		lic.ExpiresAt = *upd.ExpiresAt
	}
	if upd.Note != nil {
		lic.Note = *upd.Note
	}

	out, err := CreateLicense(reg, lic, now)
	return out, model.UpsertModeCreated, err
}

// RevokeLicense blocks the license and stamps RevokedAt.
func RevokeLicense(reg model.Registry, key string, now time.Time) (model.Registry, error) {
	blocked := model.LicenseStatusBlocked
	return UpdateLicense(reg, key, LicenseUpdate{Status: &blocked}, now)
}

// UnrevokeLicense reactivates the license and clears RevokedAt.
func UnrevokeLicense(reg model.Registry, key string, now time.Time) (model.Registry, error) {
	active := model.LicenseStatusActive
	return UpdateLicense(reg, key, LicenseUpdate{Status: &active}, now)
}

// DeleteLicense removes the license. Returns model.ErrLicenseNotFound if absent.
func DeleteLicense(reg model.Registry, key string) (model.Registry, error) {
	i := reg.IndexOf(key)
	if i < 0 {
		return reg, fmt.Errorf("delete %q: %w", key, model.ErrLicenseNotFound)
	}

	out := reg.Clone()
	out.Licenses = slices.Delete(out.Licenses, i, i+1)
	return out, nil
}

// BindMachine records machineID on an unbound license. A license that is
// already bound, to any machine, is returned unchanged: an existing binding
// is never overridden here.
func BindMachine(reg model.Registry, key, machineID string, now time.Time) (model.Registry, error) {
	if machineID == "" {
		return reg, fmt.Errorf("%w: machine id is required", model.ErrInvalidLicense)
	}
	i := reg.IndexOf(key)
	if i < 0 {
		return reg, fmt.Errorf("bind %q: %w", key, model.ErrLicenseNotFound)
	}
	if reg.Licenses[i].IsBound() {
		return reg, nil
	}

	out := reg.Clone()
	out.Licenses[i].MachineID = machineID
	out.Licenses[i].UpdatedAt = now.UTC()
	return out, nil
}

// setStatus applies a status change, keeping RevokedAt consistent with it.
// Re-revoking an already blocked license keeps the original RevokedAt.
func setStatus(lic *model.License, status model.LicenseStatus, now time.Time) {
	switch {
	case status == model.LicenseStatusBlocked && !lic.IsRevoked():
		lic.RevokedAt = now
	case status == model.LicenseStatusActive:
		lic.RevokedAt = time.Time{}
	}
	lic.Status = status
}
