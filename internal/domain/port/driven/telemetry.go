package driven

import "github.com/ericfisherdev/gitlicense/internal/domain/model"

// Telemetry defines the driven port for operational counters. Implementations
// must be safe for concurrent use.
type Telemetry interface {
	VerdictIssued(verdict model.Verdict)
	VersionConflict(op string)
	ConcurrentUpdateFailed(op string)
	CorruptDocument()
}

// NopTelemetry discards all events.
type NopTelemetry struct{}

func (NopTelemetry) VerdictIssued(model.Verdict) {}
func (NopTelemetry) VersionConflict(string) {}
func (NopTelemetry) ConcurrentUpdateFailed(string) {}
func (NopTelemetry) CorruptDocument() {}
