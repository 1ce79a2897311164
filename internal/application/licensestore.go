package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/gitlicense/internal/domain/model"
	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

// ErrConcurrentUpdate is returned by Apply when every attempt lost the
// compare-and-swap race against other writers.
var ErrConcurrentUpdate = errors.New("concurrent update: retries exhausted")

// Default store settings.
const (
	DefaultMaxAttempts = 5
	DefaultTimeout     = 10 * time.Second
	DefaultRetryBase   = 50 * time.Millisecond
)

// StoreConfig locates the registry document and bounds remote work.
type StoreConfig struct {
	Location    string        // Path of the document inside the blob store.
	MaxAttempts int           // Load-transform-write cycles before ErrConcurrentUpdate.
	Timeout     time.Duration // Deadline for the remote calls of one cycle.
	RetryBase   time.Duration // Initial backoff between conflicting cycles.
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	return c
}

// Transform computes the next registry from a freshly loaded one. It must be
// free of side effects: it can run several times for one Apply.
type Transform func(model.Registry) (model.Registry, error)

// LicenseStore provides read-modify-write access to the registry document with
// optimistic concurrency: every write carries the version it was derived from
// and is rejected by the blob store if another writer got there first.
type LicenseStore struct {
	blobs     driven.BlobStore
	cfg       StoreConfig
	telemetry driven.Telemetry
	logger    *slog.Logger
	loads     singleflight.Group

	// generation counts accepted writes. Snapshot keys its shared loads by
	// generation so a caller never joins a read that began before a write
	// it has already observed.
	generation atomic.Uint64
}

// NewLicenseStore creates a LicenseStore. telemetry may be nil.
func NewLicenseStore(blobs driven.BlobStore, cfg StoreConfig, telemetry driven.Telemetry, logger *slog.Logger) *LicenseStore {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &LicenseStore{
		blobs:     blobs,
		cfg:       cfg.withDefaults(),
		telemetry: telemetry,
		logger:    logger,
	}
}

// Location returns the path of the registry document.
func (s *LicenseStore) Location() string {
	return s.cfg.Location
}

// Load reads and decodes the registry. A missing document yields an empty
// registry with an empty version, so the first write creates it. Content that
// exists but cannot be decoded yields a *CorruptDocumentError.
func (s *LicenseStore) Load(ctx context.Context) (model.Registry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	return s.load(ctx)
}

// Snapshot is Load for read-only callers. Concurrent calls share a single
// remote read; each caller receives its own copy of the result. A read that
// started before the latest accepted write is never shared with later callers.
func (s *LicenseStore) Snapshot(ctx context.Context) (model.Registry, error) {
	key := "registry@" + strconv.FormatUint(s.generation.Load(), 10)
	ch := s.loads.DoChan(key, func() (any, error) {
		return s.Load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.Registry{}, res.Err
		}
		return res.Val.(model.Registry).Clone(), nil
	case <-ctx.Done():
		return model.Registry{}, ctx.Err()
	}
}

// Apply runs load, transform and conditional write until the write is
// accepted. On a version conflict the whole cycle is repeated against the
// newly stored document, up to MaxAttempts times, after which Apply returns
// ErrConcurrentUpdate. Errors from transform and non-conflict store errors end
// the operation immediately. op names the operation for logs and metrics;
// subject is appended to the commit message.
func (s *LicenseStore) Apply(ctx context.Context, op, subject string, transform Transform) (model.Registry, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryBase
	eb.MaxInterval = time.Second
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.MaxAttempts-1)), ctx)

	var (
		result  model.Registry
		attempt int
	)
	err := backoff.Retry(func() error {
		attempt++
		reg, err := s.applyOnce(ctx, op, subject, transform)
		if errors.Is(err, driven.ErrVersionConflict) {
			s.telemetry.VersionConflict(op)
			s.logger.Warn("registry version conflict, retrying",
				"op", op,
				"attempt", attempt,
				"max_attempts", s.cfg.MaxAttempts,
			)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		result = reg
		return nil
	}, policy)

	if errors.Is(err, driven.ErrVersionConflict) {
		s.telemetry.ConcurrentUpdateFailed(op)
		s.logger.Error("registry update abandoned", "op", op, "attempts", attempt)
		return model.Registry{}, fmt.Errorf("%s after %d attempts: %w", op, attempt, ErrConcurrentUpdate)
	}
	if err != nil {
		return model.Registry{}, err
	}

	return result, nil
}

// applyOnce performs a single load-transform-write cycle under the configured
// timeout. When the transform leaves the registry unchanged, nothing is
// written and the loaded version is kept.
func (s *LicenseStore) applyOnce(ctx context.Context, op, subject string, transform Transform) (model.Registry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	current, err := s.load(ctx)
	if err != nil {
		return model.Registry{}, err
	}
	before, err := EncodeRegistry(current)
	if err != nil {
		return model.Registry{}, err
	}

	next, err := transform(current.Clone())
	if err != nil {
		return model.Registry{}, err
	}

	content, err := EncodeRegistry(next)
	if err != nil {
		return model.Registry{}, err
	}
	if bytes.Equal(content, before) {
		next.Version = current.Version
		return next, nil
	}

	message := "gitlicense: " + op
	if subject != "" {
		message += " " + subject
	}

	version, err := s.blobs.Put(ctx, s.cfg.Location, content, current.Version, message)
	if err != nil {
		if errors.Is(err, driven.ErrVersionConflict) {
			return model.Registry{}, err
		}
		return model.Registry{}, fmt.Errorf("writing %s: %w", s.cfg.Location, err)
	}
	s.generation.Add(1)

	s.logger.Debug("registry written",
		"op", op,
		"licenses", next.Len(),
		"previous_version", current.Version,
		"version", version,
	)

	next.Version = version
	return next, nil
}

func (s *LicenseStore) load(ctx context.Context) (model.Registry, error) {
	content, version, err := s.blobs.Get(ctx, s.cfg.Location)
	if errors.Is(err, driven.ErrBlobNotFound) {
		return model.Registry{}, nil
	}
	if err != nil {
		return model.Registry{}, fmt.Errorf("loading %s: %w", s.cfg.Location, err)
	}

	reg, err := DecodeRegistry(content)
	if err != nil {
		var corrupt *CorruptDocumentError
		if errors.As(err, &corrupt) {
			corrupt.Path = s.cfg.Location
			s.telemetry.CorruptDocument()
			s.logger.Error("license document is corrupt",
				"path", s.cfg.Location,
				"version", version,
				"error", corrupt.Err,
			)
		}
		return model.Registry{}, err
	}

	reg.Version = version
	return reg, nil
}
