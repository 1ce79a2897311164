package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/gitlicense/internal/domain/model"
	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

// keyRefLen is the number of digest characters kept by keyRef.
const keyRefLen = 12

// CheckResult is the outcome of a license check.
type CheckResult struct {
	Verdict   model.Verdict
	License   model.License // Zero value when Verdict is VerdictNotFound.
	Activated bool          // True only for the call that performed first-use binding.
}

// LicenseService is the use-case facade over the registry. Reads go through
// LicenseStore.Snapshot; every mutation goes through LicenseStore.Apply.
//
// When hashIdentifiers is set, license keys and machine IDs are stored as
// SHA-256 hex digests. The digest is applied on every path, so a deployment
// never mixes plaintext and hashed identifiers.
type LicenseService struct {
	store           *LicenseStore
	telemetry       driven.Telemetry
	hashIdentifiers bool
	now             func() time.Time
	logger          *slog.Logger
}

// NewLicenseService creates a LicenseService using the wall clock.
func NewLicenseService(store *LicenseStore, telemetry driven.Telemetry, hashIdentifiers bool, logger *slog.Logger) *LicenseService {
	return NewLicenseServiceWithClock(store, telemetry, hashIdentifiers, time.Now, logger)
}

// NewLicenseServiceWithClock creates a LicenseService with an injected clock.
// This constructor is intended for testing expiry and timestamps.
func NewLicenseServiceWithClock(
	store *LicenseStore,
	telemetry driven.Telemetry,
	hashIdentifiers bool,
	now func() time.Time,
	logger *slog.Logger,
) *LicenseService {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &LicenseService{
		store:           store,
		telemetry:       telemetry,
		hashIdentifiers: hashIdentifiers,
		now:             now,
		logger:          logger,
	}
}

// HashesIdentifiers reports whether keys and machine IDs are stored as digests.
func (s *LicenseService) HashesIdentifiers() bool {
	return s.hashIdentifiers
}

// Validate checks whether machineID may use the license identified by key.
// Business outcomes (not found, revoked, mismatch, expired) are verdicts, not
// errors; only store failures are returned as errors.
//
// The first successful check of an unbound license binds it to machineID
// through a conditional write before VerdictValid is reported. The verdict is
// then re-evaluated against the document that write produced, so a machine
// that lost a binding race sees VerdictMachineMismatch.
func (s *LicenseService) Validate(ctx context.Context, key, machineID string) (CheckResult, error) {
	key = s.identify(key)
	machineID = s.identify(machineID)
	if key == "" || machineID == "" {
		return CheckResult{}, fmt.Errorf("%w: key and machine are required", model.ErrInvalidLicense)
	}

	now := s.now()
	today := model.Today(now)

	reg, err := s.store.Snapshot(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	decision := Evaluate(reg, key, machineID, today)
	var activated bool

	if decision.NeedsBinding {
		reg, err = s.store.Apply(ctx, "bind", s.keyRef(key), func(r model.Registry) (model.Registry, error) {
			activated = false
			if !Evaluate(r, key, machineID, today).NeedsBinding {
				return r, nil
			}
			activated = true
			return BindMachine(r, key, machineID, now)
		})
		if err != nil {
			return CheckResult{}, err
		}

		decision = Evaluate(reg, key, machineID, today)
		activated = activated && decision.Verdict == model.VerdictValid
		if activated {
			s.logger.Info("license activated", "key", s.keyRef(key), "machine_id", machineID)
		}
	}

	s.telemetry.VerdictIssued(decision.Verdict)

	return CheckResult{
		Verdict:   decision.Verdict,
		License:   decision.License,
		Activated: activated,
	}, nil
}

// CreateOrUpdate creates the license when key is unknown and otherwise merges
// the given fields into it. key is resolved like every other admin key, so
// the digest shown in listings updates the existing license.
func (s *LicenseService) CreateOrUpdate(ctx context.Context, key string, upd LicenseUpdate) (model.License, model.UpsertMode, error) {
	upd = s.identifyUpdate(upd)

	var (
		mode   model.UpsertMode
		stored string
	)
	reg, err := s.store.Apply(ctx, "upsert", s.keyRef(s.identify(key)), func(r model.Registry) (model.Registry, error) {
		stored = s.resolveKey(r, key)
		var err error
		r, mode, err = UpsertLicense(r, stored, upd, s.now())
		return r, err
	})
	if err != nil {
		return model.License{}, "", err
	}

	lic, _ := reg.Find(stored)
	s.logger.Info("license saved", "key", s.keyRef(stored), "mode", mode)
	return lic, mode, nil
}

// Create adds a new license. Returns model.ErrDuplicateKey if the key exists,
// whether it is given raw or as its stored digest.
func (s *LicenseService) Create(ctx context.Context, lic model.License) (model.License, error) {
	raw := lic.Key
	lic.MachineID = s.identify(lic.MachineID)

	reg, err := s.store.Apply(ctx, "create", s.keyRef(s.identify(raw)), func(r model.Registry) (model.Registry, error) {
		lic.Key = s.resolveKey(r, raw)
		return CreateLicense(r, lic, s.now())
	})
	if err != nil {
		return model.License{}, err
	}

	created, _ := reg.Find(lic.Key)
	s.logger.Info("license created", "key", s.keyRef(lic.Key))
	return created, nil
}

// Update merges the given fields into an existing license.
func (s *LicenseService) Update(ctx context.Context, key string, upd LicenseUpdate) (model.License, error) {
	upd = s.identifyUpdate(upd)

	var stored string
	reg, err := s.store.Apply(ctx, "update", s.keyRef(s.identify(key)), func(r model.Registry) (model.Registry, error) {
		stored = s.resolveKey(r, key)
		return UpdateLicense(r, stored, upd, s.now())
	})
	if err != nil {
		return model.License{}, err
	}

	lic, _ := reg.Find(stored)
	s.logger.Info("license updated", "key", s.keyRef(stored))
	return lic, nil
}

// Get returns a single license.
func (s *LicenseService) Get(ctx context.Context, key string) (model.License, error) {
	reg, err := s.store.Snapshot(ctx)
	if err != nil {
		return model.License{}, err
	}

	lic, ok := reg.Find(s.resolveKey(reg, key))
	if !ok {
		return model.License{}, model.ErrLicenseNotFound
	}
	return lic, nil
}

// List returns all licenses in stored order.
func (s *LicenseService) List(ctx context.Context) ([]model.License, error) {
	reg, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Licenses, nil
}

// Revoke blocks a license. A revoked license fails every check until unrevoked.
func (s *LicenseService) Revoke(ctx context.Context, key string) error {
	return s.mutate(ctx, "revoke", key, func(r model.Registry, stored string) (model.Registry, error) {
		return RevokeLicense(r, stored, s.now())
	})
}

// Unrevoke reactivates a revoked license.
func (s *LicenseService) Unrevoke(ctx context.Context, key string) error {
	return s.mutate(ctx, "unrevoke", key, func(r model.Registry, stored string) (model.Registry, error) {
		return UnrevokeLicense(r, stored, s.now())
	})
}

// Delete removes a license permanently.
func (s *LicenseService) Delete(ctx context.Context, key string) error {
	return s.mutate(ctx, "delete", key, func(r model.Registry, stored string) (model.Registry, error) {
		return DeleteLicense(r, stored)
	})
}

// mutate applies an admin operation addressed by key, resolving the stored key
// against each freshly loaded registry.
func (s *LicenseService) mutate(ctx context.Context, op, key string, fn func(model.Registry, string) (model.Registry, error)) error {
	var stored string
	_, err := s.store.Apply(ctx, op, s.keyRef(s.identify(key)), func(r model.Registry) (model.Registry, error) {
		stored = s.resolveKey(r, key)
		return fn(r, stored)
	})
	if err != nil {
		if !errors.Is(err, model.ErrLicenseNotFound) {
			s.logger.Error("license mutation failed", "op", op, "key", s.keyRef(s.identify(key)), "error", err)
		}
		return err
	}

	s.logger.Info("license mutated", "op", op, "key", s.keyRef(stored))
	return nil
}

// identify normalizes a raw key or machine ID into its stored form.
func (s *LicenseService) identify(raw string) string {
	v := model.NormalizeKey(raw)
	if v == "" || !s.hashIdentifiers {
		return v
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func (s *LicenseService) identifyUpdate(upd LicenseUpdate) LicenseUpdate {
	if upd.MachineID != nil {
		machineID := s.identify(*upd.MachineID)
		upd.MachineID = &machineID
	}
	return upd
}

// resolveKey maps an admin-supplied key to the key stored in reg. With hashed
// identifiers an administrator may address a license either by its raw key or
// by the digest shown in listings.
func (s *LicenseService) resolveKey(reg model.Registry, key string) string {
	id := s.identify(key)
	if !s.hashIdentifiers || reg.IndexOf(id) >= 0 {
		return id
	}
	if raw := model.NormalizeKey(key); reg.IndexOf(raw) >= 0 {
		return raw
	}
	return id
}

// keyRef returns a short fingerprint of a stored key for logs and commit
// messages. Keys are bearer credentials and are never written out in full.
// With hashed identifiers the fingerprint is the prefix of the listed digest.
func (s *LicenseService) keyRef(stored string) string {
	if stored == "" {
		return ""
	}
	ref := stored
	if !s.hashIdentifiers || len(stored) != 2*sha256.Size {
		sum := sha256.Sum256([]byte(stored))
		ref = hex.EncodeToString(sum[:])
	}
	return ref[:keyRefLen]
}
