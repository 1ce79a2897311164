package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/gitlicense/internal/domain/model"
	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

// --- In-memory BlobStore with compare-and-swap semantics ---

type memBlobStore struct {
	mu      sync.Mutex
	content []byte
	version int
	exists  bool

	getErr error
	putErr error

	// conflictNext rejects the next N Puts with ErrVersionConflict regardless
	// of the version supplied.
	conflictNext int

	// blockGet makes Get wait for context cancellation.
	blockGet bool

	// rendezvous makes the first rendezvousN Gets wait for each other, so
	// concurrent writers observe the same version.
	rendezvous  *sync.WaitGroup
	rendezvousN int

	// afterGet runs after the nth Get has read the document.
	afterGet func(n int)

	gets      int
	puts      int
	conflicts int
	messages  []string
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{}
}

// seed stores content as if written by someone else.
func (m *memBlobStore) seed(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = []byte(content)
	m.version++
	m.exists = true
}

func (m *memBlobStore) versionToken() string {
	if !m.exists {
		return ""
	}
	return fmt.Sprintf("v%d", m.version)
}

func (m *memBlobStore) Get(ctx context.Context, _ string) ([]byte, string, error) {
	m.mu.Lock()
	m.gets++
	wait := m.rendezvous != nil && m.gets <= m.rendezvousN
	block := m.blockGet
	m.mu.Unlock()

	if wait {
		m.rendezvous.Done()
		m.rendezvous.Wait()
	}
	if block {
		<-ctx.Done()
		return nil, "", fmt.Errorf("%w: %w", driven.ErrTransport, ctx.Err())
	}

	m.mu.Lock()
	n := m.gets
	hook := m.afterGet
	if m.getErr != nil {
		m.mu.Unlock()
		return nil, "", m.getErr
	}
	if !m.exists {
		m.mu.Unlock()
		return nil, "", driven.ErrBlobNotFound
	}
	content, version := append([]byte(nil), m.content...), m.versionToken()
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return content, version, nil
}

func (m *memBlobStore) Put(_ context.Context, _ string, content []byte, expectedVersion, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++

	if m.putErr != nil {
		return "", m.putErr
	}
	if m.conflictNext > 0 {
		m.conflictNext--
		m.conflicts++
		return "", driven.ErrVersionConflict
	}
	if expectedVersion != m.versionToken() {
		m.conflicts++
		return "", driven.ErrVersionConflict
	}

	m.content = append([]byte(nil), content...)
	m.version++
	m.exists = true
	m.messages = append(m.messages, message)
	return m.versionToken(), nil
}

func (m *memBlobStore) stored() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.content...)
}

// --- Telemetry recorder ---

type recordingTelemetry struct {
	mu        sync.Mutex
	verdicts  []model.Verdict
	conflicts int
	failures  int
	corrupt   int
}

func (r *recordingTelemetry) VerdictIssued(v model.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, v)
}

func (r *recordingTelemetry) VersionConflict(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func (r *recordingTelemetry) ConcurrentUpdateFailed(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingTelemetry) CorruptDocument() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrupt++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
