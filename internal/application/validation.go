package application

import "github.com/ericfisherdev/gitlicense/internal/domain/model"

// Decision is the result of evaluating a license check against a registry
// snapshot. NeedsBinding is set when the check passes only once the license is
// bound to the requesting machine; the caller must perform that binding
// through the License Store before reporting the verdict.
type Decision struct {
	Verdict      model.Verdict
	License      model.License // Zero value when Verdict is VerdictNotFound.
	NeedsBinding bool
}

// Evaluate decides whether machineID may use the license identified by key on
// the given day (DateLayout). It is a pure function of its inputs.
//
// Checks run in a fixed order: existence, revocation, machine binding, expiry.
// A revoked license is reported as revoked before any binding is considered,
// so it can never be bound to a new machine. An unbound license that is
// already expired reports VerdictExpired and is not bound.
func Evaluate(reg model.Registry, key, machineID, today string) Decision {
	lic, ok := reg.Find(key)
	if !ok {
		return Decision{Verdict: model.VerdictNotFound}
	}

	if lic.IsRevoked() {
		return Decision{Verdict: model.VerdictRevoked, License: lic}
	}

	if !lic.IsBound() {
		if lic.IsExpiredOn(today) {
			return Decision{Verdict: model.VerdictExpired, License: lic}
		}
		return Decision{Verdict: model.VerdictValid, License: lic, NeedsBinding: true}
	}

	if lic.MachineID != machineID {
		return Decision{Verdict: model.VerdictMachineMismatch, License: lic}
	}

	if lic.IsExpiredOn(today) {
		return Decision{Verdict: model.VerdictExpired, License: lic}
	}

	return Decision{Verdict: model.VerdictValid, License: lic}
}
