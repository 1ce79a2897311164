package application_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitlicense/internal/application"
	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

func newTestService(t *testing.T, blobs *memBlobStore, hash bool) (*application.LicenseService, *recordingTelemetry) {
	t.Helper()
	telemetry := &recordingTelemetry{}
	store := newTestStore(blobs, telemetry)
	clock := func() time.Time { return testNow }
	return application.NewLicenseServiceWithClock(store, telemetry, hash, clock, discardLogger()), telemetry
}

func TestLicenseService_ActivationScenario(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": []}`)
	svc, telemetry := newTestService(t, blobs, false)
	ctx := context.Background()

	lic, mode, err := svc.CreateOrUpdate(ctx, "ABC123", application.LicenseUpdate{
		MachineID: strPtr(""),
		ExpiresAt: strPtr("2099-01-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeCreated, mode)
	assert.Equal(t, "", lic.MachineID)

	res, err := svc.Validate(ctx, "ABC123", "MACHINE-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictValid, res.Verdict)
	assert.True(t, res.Activated)

	stored, ok := decodeStored(t, blobs).Find("ABC123")
	require.True(t, ok)
	assert.Equal(t, "MACHINE-1", stored.MachineID)
	assert.Equal(t, testNow, stored.UpdatedAt)

	res, err = svc.Validate(ctx, "ABC123", "MACHINE-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictValid, res.Verdict)
	assert.False(t, res.Activated, "only the first check activates")

	res, err = svc.Validate(ctx, "ABC123", "MACHINE-2")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictMachineMismatch, res.Verdict)

	require.NoError(t, svc.Revoke(ctx, "ABC123"))

	res, err = svc.Validate(ctx, "ABC123", "MACHINE-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRevoked, res.Verdict)

	assert.Equal(t, []model.Verdict{
		model.VerdictValid,
		model.VerdictValid,
		model.VerdictMachineMismatch,
		model.VerdictRevoked,
	}, telemetry.verdicts)
}

func TestLicenseService_ValidateUnknownKeyDoesNotWrite(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": []}`)
	svc, _ := newTestService(t, blobs, false)

	res, err := svc.Validate(context.Background(), "NOPE", "M1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNotFound, res.Verdict)
	assert.Equal(t, 0, blobs.puts)
}

func TestLicenseService_ValidateMissingParams(t *testing.T) {
	svc, _ := newTestService(t, newMemBlobStore(), false)

	_, err := svc.Validate(context.Background(), "  ", "M1")
	assert.ErrorIs(t, err, model.ErrInvalidLicense)

	_, err = svc.Validate(context.Background(), "K", "")
	assert.ErrorIs(t, err, model.ErrInvalidLicense)
}

func TestLicenseService_ValidateTrimsInput(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": [{"key": "K1", "machineId": "M1", "status": "active"}]}`)
	svc, _ := newTestService(t, blobs, false)

	res, err := svc.Validate(context.Background(), " K1 ", "M1\n")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictValid, res.Verdict)
}

func TestLicenseService_ValidateLosesBindingRace(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": [{"key": "K1", "status": "active", "expiresAt": "2099-01-01"}]}`)
	svc, _ := newTestService(t, blobs, false)

	// Another machine binds the license between our load and our write, so
	// the conditional write conflicts and the retry sees the binding.
	blobs.afterGet = func(n int) {
		if n == 2 {
			blobs.seed(`{"licenses": [{"key": "K1", "machineId": "OTHER", "status": "active", "expiresAt": "2099-01-01"}]}`)
		}
	}

	res, err := svc.Validate(context.Background(), "K1", "MINE")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictMachineMismatch, res.Verdict)
	assert.False(t, res.Activated)

	stored, _ := decodeStored(t, blobs).Find("K1")
	assert.Equal(t, "OTHER", stored.MachineID)
	assert.Equal(t, 1, blobs.conflicts)
	assert.Equal(t, 1, blobs.puts)
}

func TestLicenseService_ValidateRevokedBeforeBinding(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": [{"key": "K1", "status": "active"}]}`)
	svc, _ := newTestService(t, blobs, false)

	// The revoke lands right after the read-only snapshot; the bind transform
	// must see it on reload and leave the license unbound.
	blobs.afterGet = func(n int) {
		if n == 1 {
			blobs.seed(`{"licenses": [{"key": "K1", "status": "blocked"}]}`)
		}
	}

	res, err := svc.Validate(context.Background(), "K1", "M1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRevoked, res.Verdict)
	assert.False(t, res.Activated)

	stored, _ := decodeStored(t, blobs).Find("K1")
	assert.False(t, stored.IsBound(), "a revoked license must never be bound")
	assert.Equal(t, 0, blobs.puts)
}

func TestLicenseService_ValidateExpired(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": [
  {"key": "K1", "machineId": "M1", "status": "active", "expiresAt": "2026-02-09"},
  {"key": "K2", "machineId": "M1", "status": "active", "expiresAt": "2026-02-10"}
]}`)
	svc, _ := newTestService(t, blobs, false)

	res, err := svc.Validate(context.Background(), "K1", "M1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictExpired, res.Verdict)
	assert.Equal(t, "2026-02-09", res.License.ExpiresAt)

	res, err = svc.Validate(context.Background(), "K2", "M1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictValid, res.Verdict)
}

func TestLicenseService_AdminOperations(t *testing.T) {
	blobs := newMemBlobStore()
	svc, _ := newTestService(t, blobs, false)
	ctx := context.Background()

	created, err := svc.Create(ctx, model.License{Key: "K1", MachineID: "M1", ExpiresAt: "2099-01-01", Note: "first"})
	require.NoError(t, err)
	assert.Equal(t, model.LicenseStatusActive, created.Status)

	_, err = svc.Create(ctx, model.License{Key: "K1"})
	assert.ErrorIs(t, err, model.ErrDuplicateKey)

	updated, err := svc.Update(ctx, "K1", application.LicenseUpdate{Note: strPtr("second")})
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Note)
	assert.Equal(t, "M1", updated.MachineID)

	_, err = svc.Update(ctx, "NOPE", application.LicenseUpdate{Note: strPtr("x")})
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)

	require.NoError(t, svc.Revoke(ctx, "K1"))
	got, err := svc.Get(ctx, "K1")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())

	require.NoError(t, svc.Unrevoke(ctx, "K1"))
	got, err = svc.Get(ctx, "K1")
	require.NoError(t, err)
	assert.False(t, got.IsRevoked())

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, "K1"))
	assert.ErrorIs(t, svc.Delete(ctx, "K1"), model.ErrLicenseNotFound)
	assert.ErrorIs(t, svc.Revoke(ctx, "K1"), model.ErrLicenseNotFound)

	_, err = svc.Get(ctx, "K1")
	assert.ErrorIs(t, err, model.ErrLicenseNotFound)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLicenseService_CreateOrUpdateUpdatesExisting(t *testing.T) {
	blobs := newMemBlobStore()
	svc, _ := newTestService(t, blobs, false)
	ctx := context.Background()

	_, mode, err := svc.CreateOrUpdate(ctx, "K1", application.LicenseUpdate{ExpiresAt: strPtr("2030-01-01")})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeCreated, mode)

	lic, mode, err := svc.CreateOrUpdate(ctx, "K1", application.LicenseUpdate{ExpiresAt: strPtr("2031-01-01")})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeUpdated, mode)
	assert.Equal(t, "2031-01-01", lic.ExpiresAt)

	assert.Equal(t, 1, decodeStored(t, blobs).Len())
}

func TestLicenseService_HashedIdentifiers(t *testing.T) {
	blobs := newMemBlobStore()
	svc, _ := newTestService(t, blobs, true)
	ctx := context.Background()

	digest := func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}

	_, _, err := svc.CreateOrUpdate(ctx, "ABC123", application.LicenseUpdate{ExpiresAt: strPtr("2099-01-01")})
	require.NoError(t, err)

	res, err := svc.Validate(ctx, "ABC123", "MACHINE-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictValid, res.Verdict)

	stored := decodeStored(t, blobs)
	lic, ok := stored.Find(digest("ABC123"))
	require.True(t, ok, "key must be stored as a digest")
	assert.Equal(t, digest("MACHINE-1"), lic.MachineID, "machine must be stored as a digest")
	assert.NotContains(t, string(blobs.stored()), "ABC123")

	res, err = svc.Validate(ctx, "ABC123", "MACHINE-2")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictMachineMismatch, res.Verdict)

	// Admins may address the license by raw key or by the listed digest.
	require.NoError(t, svc.Revoke(ctx, "ABC123"))
	require.NoError(t, svc.Unrevoke(ctx, digest("ABC123")))

	got, err := svc.Get(ctx, digest("ABC123"))
	require.NoError(t, err)
	assert.False(t, got.IsRevoked())
}

func TestLicenseService_ValidateAfterRevokeDoesNotJoinEarlierRead(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.seed(`{"licenses": [{"key": "K", "machineId": "M", "status": "active"}]}`)
	svc, _ := newTestService(t, blobs, false)
	ctx := context.Background()

	// The first read stalls until released, keeping its shared load in flight
	// while the revoke is written.
	reading := make(chan struct{})
	release := make(chan struct{})
	blobs.afterGet = func(n int) {
		if n == 1 {
			close(reading)
			<-release
		}
	}

	early := make(chan error, 1)
	go func() {
		_, err := svc.Validate(ctx, "K", "M")
		early <- err
	}()
	<-reading

	require.NoError(t, svc.Revoke(ctx, "K"))

	lateCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := svc.Validate(lateCtx, "K", "M")
	require.NoError(t, err, "a check started after the revoke must not wait on the earlier read")
	assert.Equal(t, model.VerdictRevoked, res.Verdict)

	close(release)
	require.NoError(t, <-early)
}

func TestLicenseService_HashedUpsertByListedDigest(t *testing.T) {
	blobs := newMemBlobStore()
	svc, _ := newTestService(t, blobs, true)
	ctx := context.Background()

	sum := sha256.Sum256([]byte("RAW"))
	digest := hex.EncodeToString(sum[:])

	_, mode, err := svc.CreateOrUpdate(ctx, "RAW", application.LicenseUpdate{ExpiresAt: strPtr("2099-01-01")})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeCreated, mode)

	lic, mode, err := svc.CreateOrUpdate(ctx, digest, application.LicenseUpdate{Note: strPtr("renewed")})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertModeUpdated, mode)
	assert.Equal(t, digest, lic.Key)
	assert.Equal(t, "renewed", lic.Note)
	assert.Equal(t, "2099-01-01", lic.ExpiresAt)

	_, err = svc.Create(ctx, model.License{Key: digest})
	assert.ErrorIs(t, err, model.ErrDuplicateKey)
	_, err = svc.Create(ctx, model.License{Key: "RAW"})
	assert.ErrorIs(t, err, model.ErrDuplicateKey)

	assert.Equal(t, 1, decodeStored(t, blobs).Len())
}

func TestLicenseService_KeysNeverWrittenToLogsOrCommits(t *testing.T) {
	const key = "PLAIN-KEY-7731"

	blobs := newMemBlobStore()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := application.NewLicenseStore(blobs, application.StoreConfig{
		Location:  testPath,
		RetryBase: time.Millisecond,
	}, nil, logger)
	svc := application.NewLicenseServiceWithClock(store, nil, false, func() time.Time { return testNow }, logger)
	ctx := context.Background()

	_, _, err := svc.CreateOrUpdate(ctx, key, application.LicenseUpdate{ExpiresAt: strPtr("2099-01-01")})
	require.NoError(t, err)
	_, err = svc.Validate(ctx, key, "M1")
	require.NoError(t, err)
	_, err = svc.Update(ctx, key, application.LicenseUpdate{Note: strPtr("n")})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, key))
	require.NoError(t, svc.Delete(ctx, key))
	require.ErrorIs(t, svc.Delete(ctx, key), model.ErrLicenseNotFound)

	assert.NotContains(t, logs.String(), key)
	require.Len(t, blobs.messages, 5)
	for _, msg := range blobs.messages {
		assert.NotContains(t, msg, key)
	}

	// Entries still carry a stable fingerprint to correlate operations.
	sum := sha256.Sum256([]byte(key))
	assert.Contains(t, logs.String(), "key="+hex.EncodeToString(sum[:])[:12])
}
