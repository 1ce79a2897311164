package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitlicense/internal/application"
	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

func strPtr(s string) *string { return &s }

func statusPtr(s model.LicenseStatus) *model.LicenseStatus { return &s }

func sampleRegistry() model.Registry {
	created := testNow.Add(-24 * time.Hour)
	return model.Registry{
		Version: "v1",
		Licenses: []model.License{
			{Key: "A", MachineID: "M-A", Status: model.LicenseStatusActive, ExpiresAt: "2099-01-01", CreatedAt: created, UpdatedAt: created},
			{Key: "B", Status: model.LicenseStatusActive, Note: "unbound", CreatedAt: created, UpdatedAt: created},
		},
	}
}

func TestCreateLicense(t *testing.T) {
	reg := sampleRegistry()

	out, err := application.CreateLicense(reg, model.License{Key: "C", ExpiresAt: "2030-01-01", Note: "n"}, testNow)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	c, ok := out.Find("C")
	require.True(t, ok)
	assert.Equal(t, model.LicenseStatusActive, c.Status)
	assert.Equal(t, "", c.MachineID)
	assert.Equal(t, testNow, c.CreatedAt)
	assert.Equal(t, testNow, c.UpdatedAt)
	assert.True(t, c.RevokedAt.IsZero())

	// Input snapshot untouched.
	assert.Equal(t, 2, reg.Len())
}

func TestCreateLicense_Blocked(t *testing.T) {
	out, err := application.CreateLicense(model.Registry{}, model.License{Key: "C", Status: model.LicenseStatusBlocked}, testNow)
	require.NoError(t, err)

	c, _ := out.Find("C")
	assert.Equal(t, testNow, c.RevokedAt)
}

func TestCreateLicense_Errors(t *testing.T) {
	tests := []struct {
		name    string
		license model.License
		wantErr error
	}{
		{name: "duplicate key", license: model.License{Key: "A"}, wantErr: model.ErrDuplicateKey},
		{name: "empty key", license: model.License{}, wantErr: model.ErrInvalidLicense},
		{name: "bad expiry", license: model.License{Key: "C", ExpiresAt: "2030-02-30"}, wantErr: model.ErrInvalidLicense},
		{name: "bad status", license: model.License{Key: "C", Status: "paused"}, wantErr: model.ErrInvalidLicense},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := application.CreateLicense(sampleRegistry(), tt.license, testNow)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateLicense_MergesOnlyProvidedFields(t *testing.T) {
	reg := sampleRegistry()

	out, err := application.UpdateLicense(reg, "A", application.LicenseUpdate{ExpiresAt: strPtr("2100-06-30")}, testNow)
	require.NoError(t, err)

	a, _ := out.Find("A")
	assert.Equal(t, "2100-06-30", a.ExpiresAt)
	assert.Equal(t, "M-A", a.MachineID)
	assert.Equal(t, model.LicenseStatusActive, a.Status)
	assert.Equal(t, testNow, a.UpdatedAt)
	assert.Equal(t, reg.Licenses[0].CreatedAt, a.CreatedAt)

	original, _ := reg.Find("A")
	assert.Equal(t, "2099-01-01", original.ExpiresAt)
}

func TestUpdateLicense_ClearExpiryAndBinding(t *testing.T) {
	out, err := application.UpdateLicense(sampleRegistry(), "A", application.LicenseUpdate{
		ExpiresAt: strPtr(""),
		MachineID: strPtr(""),
	}, testNow)
	require.NoError(t, err)

	a, _ := out.Find("A")
	assert.Equal(t, "", a.ExpiresAt)
	assert.False(t, a.IsBound())
}

func TestUpdateLicense_NotFound(t *testing.T) {
	_, err := application.UpdateLicense(sampleRegistry(), "Z", application.LicenseUpdate{Note: strPtr("x")}, testNow)
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)
}

func TestUpsertLicense(t *testing.T) {
	reg := sampleRegistry()

	out, mode, err := application.UpsertLicense(reg, "C", application.LicenseUpdate{ExpiresAt: strPtr("2099-01-01")}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeCreated, mode)
	assert.Equal(t, 3, out.Len())

	out, mode, err = application.UpsertLicense(out, "C", application.LicenseUpdate{Note: strPtr("renewed")}, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeUpdated, mode)
	assert.Equal(t, 3, out.Len())

	c, _ := out.Find("C")
	assert.Equal(t, "renewed", c.Note)
	assert.Equal(t, "2099-01-01", c.ExpiresAt)
	assert.Equal(t, testNow, c.CreatedAt)
	assert.Equal(t, testNow.Add(time.Minute), c.UpdatedAt)
}

func TestRevokeUnrevoke(t *testing.T) {
	reg := sampleRegistry()

	out, err := application.RevokeLicense(reg, "A", testNow)
	require.NoError(t, err)
	a, _ := out.Find("A")
	assert.True(t, a.IsRevoked())
	assert.Equal(t, testNow, a.RevokedAt)
	assert.Equal(t, testNow, a.UpdatedAt)

	// Revoking again keeps the first revocation time.
	later := testNow.Add(time.Hour)
	out, err = application.RevokeLicense(out, "A", later)
	require.NoError(t, err)
	a, _ = out.Find("A")
	assert.Equal(t, testNow, a.RevokedAt)
	assert.Equal(t, later, a.UpdatedAt)

	out, err = application.UnrevokeLicense(out, "A", later)
	require.NoError(t, err)
	a, _ = out.Find("A")
	assert.False(t, a.IsRevoked())
	assert.True(t, a.RevokedAt.IsZero())
	assert.Equal(t, "M-A", a.MachineID)

	_, err = application.RevokeLicense(reg, "Z", testNow)
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)
	_, err = application.UnrevokeLicense(reg, "Z", testNow)
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)
}

func TestDeleteLicense(t *testing.T) {
	reg := sampleRegistry()

	out, err := application.DeleteLicense(reg, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, -1, out.IndexOf("A"))
	assert.Equal(t, 0, out.IndexOf("B"))

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, "A", reg.Licenses[0].Key)

	_, err = application.DeleteLicense(reg, "Z")
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)
}

func TestBindMachine(t *testing.T) {
	reg := sampleRegistry()

	out, err := application.BindMachine(reg, "B", "M-B", testNow)
	require.NoError(t, err)
	b, _ := out.Find("B")
	assert.Equal(t, "M-B", b.MachineID)
	assert.Equal(t, testNow, b.UpdatedAt)

	original, _ := reg.Find("B")
	assert.False(t, original.IsBound())
}

func TestBindMachine_NeverOverridesBinding(t *testing.T) {
	reg := sampleRegistry()

	out, err := application.BindMachine(reg, "A", "M-OTHER", testNow)
	require.NoError(t, err)

	a, _ := out.Find("A")
	assert.Equal(t, "M-A", a.MachineID)
	assert.Equal(t, reg.Licenses[0].UpdatedAt, a.UpdatedAt)
}

func TestBindMachine_Errors(t *testing.T) {
	_, err := application.BindMachine(sampleRegistry(), "Z", "M", testNow)
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)

	_, err = application.BindMachine(sampleRegistry(), "B", "", testNow)
	assert.ErrorIs(t, err, model.ErrInvalidLicense)
}
