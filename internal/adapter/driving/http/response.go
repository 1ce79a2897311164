package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitlicense/internal/application"
	"github.com/ericfisherdev/gitlicense/internal/domain/model"
	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

// Machine-readable error codes returned in errorResponse.Code.
const (
	CodeMissingParams    = "MISSING_PARAMS"
	CodeInvalidBody      = "INVALID_BODY"
	CodeInvalidLicense   = "INVALID_LICENSE"
	CodeKeyNotFound      = "KEY_NOT_FOUND"
	CodeDuplicateKey     = "DUPLICATE_KEY"
	CodeUnknownAction    = "UNKNOWN_ACTION"
	CodeMissingActionKey = "MISSING_ACTION_OR_KEY"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeConcurrentUpdate = "CONCURRENT_UPDATE"
	CodeCorruptDocument  = "CORRUPT_DOCUMENT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"INTERNAL"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code, code and message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorStatus maps a service error to its HTTP status and error code.
func errorStatus(err error) (int, string, string) {
	var corrupt *application.CorruptDocumentError
	switch {
	case errors.Is(err, model.ErrLicenseNotFound):
		return http.StatusNotFound, CodeKeyNotFound, "license not found"
	case errors.Is(err, model.ErrDuplicateKey):
		return http.StatusConflict, CodeDuplicateKey, "license already exists"
	case errors.Is(err, model.ErrInvalidLicense):
		return http.StatusBadRequest, CodeInvalidLicense, err.Error()
	case errors.Is(err, application.ErrConcurrentUpdate):
		return http.StatusConflict, CodeConcurrentUpdate, "registry is being modified concurrently, try again"
	case errors.As(err, &corrupt):
		return http.StatusInternalServerError, CodeCorruptDocument, "license document is corrupt"
	case errors.Is(err, driven.ErrTransport):
		return http.StatusBadGateway, CodeStoreUnavailable, "license store unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal server error"
	}
}

// LicenseResponse is the JSON representation of a license record.
type LicenseResponse struct {
	Key       string `json:"key"`
	MachineID string `json:"machineId"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	RevokedAt string `json:"revokedAt,omitempty"`
}

// ListResponse wraps the license list the way the registry document does.
type ListResponse struct {
	OK       bool              `json:"ok"`
	Licenses []LicenseResponse `json:"licenses"`
}

// UpsertResponse is returned by the create-or-update endpoint.
type UpsertResponse struct {
	Mode    string          `json:"mode"`
	License LicenseResponse `json:"license"`
}

// ActionResponse acknowledges revoke, unrevoke and delete.
type ActionResponse struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	Key    string `json:"key"`
}

// CheckResponse is the result of a license check. Status carries the verdict.
type CheckResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Note      string `json:"note,omitempty"`
	Activated bool   `json:"activated,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
// Registry is one of the RegistryOK, RegistryUnavailable or RegistryCorrupt
// states; Licenses is set only when the registry could be read.
type HealthResponse struct {
	Status   string `json:"status"`
	Registry string `json:"registry"`
	Licenses int    `json:"licenses,omitempty"`
	Time     string `json:"time"`
}

// Registry states reported by the health endpoint.
const (
	RegistryOK          = "ok"
	RegistryUnavailable = "unavailable"
	RegistryCorrupt     = "corrupt"
)

// CheckRequest is the optional JSON body of POST /api/v1/check.
type CheckRequest struct {
	Key     string `json:"key"`
	Machine string `json:"machine"`
}

// UpsertLicenseRequest is the JSON body for the create-or-update endpoint.
// Absent fields are left unchanged on update.
type UpsertLicenseRequest struct {
	Key       string  `json:"key"`
	MachineID *string `json:"machineId"`
	Status    *string `json:"status"`
	ExpiresAt *string `json:"expiresAt"`
	Note      *string `json:"note"`
}

// UpdateLicenseRequest is the JSON body for PATCH /api/v1/licenses/{key}.
type UpdateLicenseRequest struct {
	MachineID *string `json:"machineId"`
	Status    *string `json:"status"`
	ExpiresAt *string `json:"expiresAt"`
	Note      *string `json:"note"`
}

// AdminActionRequest is the JSON body of the action-style admin endpoint.
type AdminActionRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
}

func (r UpsertLicenseRequest) toUpdate() application.LicenseUpdate {
	return UpdateLicenseRequest{
		MachineID: r.MachineID,
		Status:    r.Status,
		ExpiresAt: r.ExpiresAt,
		Note:      r.Note,
	}.toUpdate()
}

func (r UpdateLicenseRequest) toUpdate() application.LicenseUpdate {
	upd := application.LicenseUpdate{
		MachineID: r.MachineID,
		ExpiresAt: r.ExpiresAt,
		Note:      r.Note,
	}
	if r.Status != nil {
		status := model.LicenseStatus(*r.Status)
		upd.Status = &status
	}
	return upd
}

// formatTime renders t as stored in the registry, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// toLicenseResponse converts a domain License to its JSON response representation.
func toLicenseResponse(lic model.License) LicenseResponse {
	return LicenseResponse{
		Key:       lic.Key,
		MachineID: lic.MachineID,
		Status:    string(lic.Status),
		ExpiresAt: lic.ExpiresAt,
		Note:      lic.Note,
		CreatedAt: formatTime(lic.CreatedAt),
		UpdatedAt: formatTime(lic.UpdatedAt),
		RevokedAt: formatTime(lic.RevokedAt),
	}
}

// toCheckResponse converts a check result. NOT_FOUND never echoes record data.
func toCheckResponse(res application.CheckResult) CheckResponse {
	resp := CheckResponse{
		Status: string(res.Verdict),
		Reason: verdictReason(res.Verdict),
	}
	if res.Verdict != model.VerdictNotFound {
		resp.ExpiresAt = res.License.ExpiresAt
		resp.Note = res.License.Note
	}
	resp.Activated = res.Activated
	return resp
}

func verdictReason(v model.Verdict) string {
	switch v {
	case model.VerdictNotFound:
		return "license key does not exist"
	case model.VerdictRevoked:
		return "license has been revoked"
	case model.VerdictMachineMismatch:
		return "license is bound to another machine"
	case model.VerdictExpired:
		return "license has expired"
	default:
		return ""
	}
}
