package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

// CorruptDocumentError reports stored content that exists but cannot be decoded
// into a registry. It is never treated as an empty registry.
type CorruptDocumentError struct {
	Path string
	Err  error
}

func (e *CorruptDocumentError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corrupt license document: %v", e.Err)
	}
	return fmt.Sprintf("corrupt license document at %s: %v", e.Path, e.Err)
}

func (e *CorruptDocumentError) Unwrap() error {
	return e.Err
}

// documentJSON is the persisted layout of the registry.
type documentJSON struct {
	Licenses []licenseJSON `json:"licenses"`
}

// licenseJSON is the persisted layout of a single license. The legacy fields
// are read from documents written by older tooling and never written back.
type licenseJSON struct {
	Key       string `json:"key"`
	MachineID string `json:"machineId"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	RevokedAt string `json:"revokedAt,omitempty"`

	LegacyKeyHash   string `json:"license_key_hash,omitempty"`
	LegacyMachineID string `json:"machine_id,omitempty"`
	LegacyExpiry    string `json:"expiry,omitempty"`
	LegacyRevoked   *bool  `json:"revoked,omitempty"`
}

// EncodeRegistry serializes the registry to its canonical stored form:
// an object with a "licenses" array, indented with two spaces.
func EncodeRegistry(reg model.Registry) ([]byte, error) {
	doc := documentJSON{Licenses: make([]licenseJSON, 0, len(reg.Licenses))}
	for _, l := range reg.Licenses {
		doc.Licenses = append(doc.Licenses, toLicenseJSON(l))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode license document: %w", err)
	}
	return append(data, '\n'), nil
}

// keyedLicenseJSON is a record of the oldest layout, an object mapping each
// key digest to its binding: {"<sha256>": {"machine": "...", "expire": "..."}}.
type keyedLicenseJSON struct {
	Machine *string `json:"machine"`
	Expire  *string `json:"expire"`
	Status  string  `json:"status"`
}

// DecodeRegistry parses stored content. Empty content and the empty object
// yield an empty registry. The canonical object form, a bare array of
// licenses and an object keyed by license digest are accepted. Any other
// shape, an undecodable record, or a repeated key returns a
// *CorruptDocumentError, so unknown content is never replaced by an empty
// registry.
func DecodeRegistry(content []byte) (model.Registry, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return model.Registry{}, nil
	}

	var (
		records []licenseJSON
		err     error
	)
	switch trimmed[0] {
	case '{':
		records, err = decodeObject(trimmed)
	case '[':
		err = json.Unmarshal(trimmed, &records)
	default:
		err = errors.New("expected an object or an array")
	}
	if err != nil {
		return model.Registry{}, &CorruptDocumentError{Err: err}
	}

	reg := model.Registry{Licenses: make([]model.License, 0, len(records))}
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		l, err := fromLicenseJSON(rec)
		if err != nil {
			return model.Registry{}, &CorruptDocumentError{Err: fmt.Errorf("license %d: %w", i, err)}
		}
		if _, dup := seen[l.Key]; dup {
			return model.Registry{}, &CorruptDocumentError{Err: fmt.Errorf("license %d: duplicate key %q", i, l.Key)}
		}
		seen[l.Key] = struct{}{}
		reg.Licenses = append(reg.Licenses, l)
	}

	return reg, nil
}

// decodeObject reads the records of an object document. A "licenses" field
// must be the only field and must hold an array. Without it, every field must
// be a keyed record.
func decodeObject(content []byte) ([]licenseJSON, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(content, &fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	raw, ok := fields["licenses"]
	if !ok {
		return decodeKeyed(fields)
	}
	if len(fields) > 1 {
		return nil, errors.New("unexpected fields next to \"licenses\"")
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.New("\"licenses\" is null")
	}

	var records []licenseJSON
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("\"licenses\": %w", err)
	}
	return records, nil
}

// decodeKeyed reads the digest-keyed layout in key order. Each value must be
// an object carrying at least one of "machine" or "expire".
func decodeKeyed(fields map[string]json.RawMessage) ([]licenseJSON, error) {
	records := make([]licenseJSON, 0, len(fields))
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		dec := json.NewDecoder(bytes.NewReader(fields[key]))
		dec.DisallowUnknownFields()

		var rec *keyedLicenseJSON
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if rec == nil || (rec.Machine == nil && rec.Expire == nil) {
			return nil, fmt.Errorf("field %q is not a license record", key)
		}

		lic := licenseJSON{Key: key, Status: rec.Status}
		if rec.Machine != nil {
			lic.MachineID = *rec.Machine
		}
		if rec.Expire != nil {
			lic.ExpiresAt = *rec.Expire
		}
		records = append(records, lic)
	}
	return records, nil
}

func toLicenseJSON(l model.License) licenseJSON {
	status := l.Status
	if status == "" {
		status = model.LicenseStatusActive
	}

	return licenseJSON{
		Key:       l.Key,
		MachineID: l.MachineID,
		Status:    string(status),
		ExpiresAt: l.ExpiresAt,
		Note:      l.Note,
		CreatedAt: formatTime(l.CreatedAt),
		UpdatedAt: formatTime(l.UpdatedAt),
		RevokedAt: formatTime(l.RevokedAt),
	}
}

func fromLicenseJSON(rec licenseJSON) (model.License, error) {
	l := model.License{
		Key:       firstNonEmpty(rec.Key, rec.LegacyKeyHash),
		MachineID: firstNonEmpty(rec.MachineID, rec.LegacyMachineID),
		ExpiresAt: firstNonEmpty(rec.ExpiresAt, rec.LegacyExpiry),
		Note:      rec.Note,
	}
	if l.Key == "" {
		return model.License{}, errors.New("missing key")
	}

	switch {
	case rec.Status != "":
		l.Status = model.LicenseStatus(rec.Status)
		if !l.Status.Valid() {
			return model.License{}, fmt.Errorf("unknown status %q", rec.Status)
		}
	case rec.LegacyRevoked != nil && *rec.LegacyRevoked:
		l.Status = model.LicenseStatusBlocked
	default:
		l.Status = model.LicenseStatusActive
	}

	var err error
	if l.CreatedAt, err = parseTime(rec.CreatedAt); err != nil {
		return model.License{}, fmt.Errorf("createdAt: %w", err)
	}
	if l.UpdatedAt, err = parseTime(rec.UpdatedAt); err != nil {
		return model.License{}, fmt.Errorf("updatedAt: %w", err)
	}
	if l.RevokedAt, err = parseTime(rec.RevokedAt); err != nil {
		return model.License{}, fmt.Errorf("revokedAt: %w", err)
	}

	return l, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
