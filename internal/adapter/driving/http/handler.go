package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/gitlicense/internal/application"
	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// healthTimeout bounds the registry read behind /api/v1/health.
const healthTimeout = 2 * time.Second

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	licenses    *application.LicenseService
	adminSecret string
	metrics     http.Handler
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. metrics may be
// nil, in which case /metrics is not registered.
func NewHandler(
	licenses *application.LicenseService,
	adminSecret string,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		licenses:    licenses,
		adminSecret: adminSecret,
		metrics:     metrics,
		logger:      logger,
	}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/check", h.Check)
	mux.HandleFunc("POST /api/v1/check", h.Check)

	mux.HandleFunc("GET /api/v1/licenses", h.requireAdmin(h.ListLicenses))
	mux.HandleFunc("POST /api/v1/licenses", h.requireAdmin(h.UpsertLicense))
	mux.HandleFunc("GET /api/v1/licenses/{key}", h.requireAdmin(h.GetLicense))
	mux.HandleFunc("PATCH /api/v1/licenses/{key}", h.requireAdmin(h.UpdateLicense))
	mux.HandleFunc("DELETE /api/v1/licenses/{key}", h.requireAdmin(h.DeleteLicense))
	mux.HandleFunc("POST /api/v1/licenses/{key}/revoke", h.requireAdmin(h.RevokeLicense))
	mux.HandleFunc("POST /api/v1/licenses/{key}/unrevoke", h.requireAdmin(h.UnrevokeLicense))

	mux.HandleFunc("GET /api/v1/admin", h.requireAdmin(h.ListLicenses))
	mux.HandleFunc("POST /api/v1/admin", h.requireAdmin(h.AdminAction))

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.requireAdmin(h.metrics.ServeHTTP))
	}
}

// Wrap applies the standard middleware chain to next.
func Wrap(next http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, next)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// NewServeMux creates an http.Handler with all API routes registered and
// wrapped with request id, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return Wrap(mux, logger)
}

// Health reports liveness and whether the registry document can be read.
// An unreadable registry answers 503 so container health checks surface it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Registry: RegistryOK,
		Time:     time.Now().UTC().Format(time.RFC3339),
	}

	licenses, err := h.licenses.List(ctx)
	if err != nil {
		var corrupt *application.CorruptDocumentError
		resp.Status = "degraded"
		resp.Registry = RegistryUnavailable
		if errors.As(err, &corrupt) {
			resp.Registry = RegistryCorrupt
		}
		h.logger.Warn("health check: registry not readable", "registry", resp.Registry, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Licenses = len(licenses)
	writeJSON(w, http.StatusOK, resp)
}

// Check validates a key for a machine. Parameters come from the query string
// or, on POST, from a JSON or form body. Verdicts are always 200.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	machine := r.URL.Query().Get("machine")

	if r.Method == http.MethodPost && (key == "" || machine == "") {
		req, err := decodeCheckBody(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body")
			return
		}
		if key == "" {
			key = req.Key
		}
		if machine == "" {
			machine = req.Machine
		}
	}

	if strings.TrimSpace(key) == "" || strings.TrimSpace(machine) == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParams, "key and machine are required")
		return
	}

	res, err := h.licenses.Validate(r.Context(), key, machine)
	if err != nil {
		h.writeServiceError(w, r, "check", err)
		return
	}

	writeJSON(w, http.StatusOK, toCheckResponse(res))
}

// decodeCheckBody reads key and machine from a JSON or form-encoded body.
func decodeCheckBody(w http.ResponseWriter, r *http.Request) (CheckRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return CheckRequest{}, err
		}
		return CheckRequest{Key: r.PostForm.Get("key"), Machine: r.PostForm.Get("machine")}, nil
	}

	var req CheckRequest
	if r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return CheckRequest{}, err
	}
	return req, nil
}

// ListLicenses returns every license in stored order.
func (h *Handler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.licenses.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list", err)
		return
	}

	resp := ListResponse{OK: true, Licenses: make([]LicenseResponse, 0, len(licenses))}
	for _, lic := range licenses {
		resp.Licenses = append(resp.Licenses, toLicenseResponse(lic))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLicense returns a single license by key.
func (h *Handler) GetLicense(w http.ResponseWriter, r *http.Request) {
	lic, err := h.licenses.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "get", err)
		return
	}

	writeJSON(w, http.StatusOK, toLicenseResponse(lic))
}

// UpsertLicense creates a license or merges the supplied fields into an
// existing one. Responds 201 on create and 200 on update.
func (h *Handler) UpsertLicense(w http.ResponseWriter, r *http.Request) {
	var req UpsertLicenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParams, "key is required")
		return
	}

	lic, mode, err := h.licenses.CreateOrUpdate(r.Context(), req.Key, req.toUpdate())
	if err != nil {
		h.writeServiceError(w, r, "upsert", err)
		return
	}

	status := http.StatusOK
	if mode == model.UpsertModeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, UpsertResponse{Mode: string(mode), License: toLicenseResponse(lic)})
}

// UpdateLicense merges the supplied fields into an existing license.
func (h *Handler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	var req UpdateLicenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lic, err := h.licenses.Update(r.Context(), r.PathValue("key"), req.toUpdate())
	if err != nil {
		h.writeServiceError(w, r, "update", err)
		return
	}

	writeJSON(w, http.StatusOK, toLicenseResponse(lic))
}

// RevokeLicense blocks a license.
func (h *Handler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "revoke", r.PathValue("key"))
}

// UnrevokeLicense reactivates a license.
func (h *Handler) UnrevokeLicense(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "unrevoke", r.PathValue("key"))
}

// DeleteLicense removes a license.
func (h *Handler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "delete", r.PathValue("key"))
}

// AdminAction is the action-style admin endpoint: {"action": "revoke", "key": "..."}.
func (h *Handler) AdminAction(w http.ResponseWriter, r *http.Request) {
	var req AdminActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := strings.TrimSpace(req.Key)
	if req.Action == "" || key == "" {
		writeError(w, http.StatusBadRequest, CodeMissingActionKey, "action and key are required")
		return
	}

	switch req.Action {
	case "revoke", "unrevoke", "delete":
		h.runAction(w, r, req.Action, key)
	default:
		writeError(w, http.StatusBadRequest, CodeUnknownAction, "unknown action "+req.Action)
	}
}

func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, action, key string) {
	var err error
	switch action {
	case "revoke":
		err = h.licenses.Revoke(r.Context(), key)
	case "unrevoke":
		err = h.licenses.Unrevoke(r.Context(), key)
	case "delete":
		err = h.licenses.Delete(r.Context(), key)
	}
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}

	writeJSON(w, http.StatusOK, ActionResponse{OK: true, Action: action, Key: key})
}

// decodeBody decodes a bounded JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps err to an HTTP response. Client errors are not
// logged; infrastructure failures are logged at Error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, message := errorStatus(err)
	if status >= http.StatusInternalServerError || code == CodeConcurrentUpdate {
		h.logger.Error("license operation failed",
			"op", op,
			"code", code,
			"error", err,
			"request_id", RequestID(r.Context()),
		)
	}
	writeError(w, status, code, message)
}
