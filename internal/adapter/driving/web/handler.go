// Package web implements the HTML admin dashboard driving adapter using templ components.
package web

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	httphandler "github.com/ericfisherdev/gitlicense/internal/adapter/driving/http"
	"github.com/ericfisherdev/gitlicense/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/gitlicense/internal/adapter/driving/web/templates/pages"
	"github.com/ericfisherdev/gitlicense/internal/application"
	"github.com/ericfisherdev/gitlicense/internal/domain/model"
)

const (
	sessionCookieName = "gitlicense_admin"
	sessionMaxAge     = 12 * time.Hour
)

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	licenses    *application.LicenseService
	adminSecret string
	location    string
	now         func() time.Time
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. location is
// shown in the page header to identify the registry being edited.
func NewHandler(
	licenses *application.LicenseService,
	adminSecret string,
	location string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		licenses:    licenses,
		adminSecret: adminSecret,
		location:    location,
		now:         time.Now,
		logger:      logger,
	}
}

// Dashboard renders the license table. A valid ?secret= exchanges the secret
// for a session cookie and redirects to the clean URL.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if secret := r.URL.Query().Get("secret"); secret != "" {
		if !httphandler.SecretMatches(h.adminSecret, secret) {
			h.unauthorized(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    h.sessionValue(),
			Path:     "/admin",
			MaxAge:   int(sessionMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
			Secure:   r.TLS != nil,
		})
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}

	if !h.authorized(r) {
		h.unauthorized(w, r)
		return
	}

	licenses, err := h.licenses.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list licenses for dashboard", "error", err)
		http.Error(w, "license store unavailable", http.StatusBadGateway)
		return
	}

	m := toDashboardViewModel(licenses, h.now())
	m.Location = h.location
	m.CSRFToken = csrfToken(w, r)
	m.Flash = r.URL.Query().Get("msg")
	m.Error = r.URL.Query().Get("err")
	m.HashIdentifiers = h.licenses.HashesIdentifiers()

	w.Header().Set("Cache-Control", "no-store")
	layout := templates.Layout("Licenses", pages.Dashboard(m))
	if err := layout.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// CreateLicense handles the dashboard's add-license form.
func (h *Handler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	if !h.guardPost(w, r) {
		return
	}

	lic := model.License{
		Key:       r.PostFormValue("key"),
		MachineID: r.PostFormValue("machineId"),
		ExpiresAt: strings.TrimSpace(r.PostFormValue("expiresAt")),
		Note:      r.PostFormValue("note"),
	}

	created, err := h.licenses.Create(r.Context(), lic)
	if err != nil {
		h.redirectError(w, r, "create", err)
		return
	}

	redirectFlash(w, r, "msg", "Added "+created.Key)
}

// LicenseAction handles revoke, unrevoke and delete row buttons.
func (h *Handler) LicenseAction(w http.ResponseWriter, r *http.Request) {
	if !h.guardPost(w, r) {
		return
	}

	key := r.PathValue("key")
	action := r.PathValue("action")

	var err error
	switch action {
	case "revoke":
		err = h.licenses.Revoke(r.Context(), key)
	case "unrevoke":
		err = h.licenses.Unrevoke(r.Context(), key)
	case "delete":
		err = h.licenses.Delete(r.Context(), key)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.redirectError(w, r, action, err)
		return
	}

	redirectFlash(w, r, "msg", actionPastTense(action)+" "+key)
}

// guardPost authenticates the session and validates the CSRF token.
func (h *Handler) guardPost(w http.ResponseWriter, r *http.Request) bool {
	if !h.authorized(r) {
		h.unauthorized(w, r)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return false
	}
	if !validateCSRF(r) {
		h.logger.Warn("csrf validation failed", "path", r.URL.Path)
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return false
	}
	return true
}

// authorized accepts the session cookie or an admin secret header.
func (h *Handler) authorized(r *http.Request) bool {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if httphandler.SecretMatches(h.sessionValue(), cookie.Value) {
			return true
		}
	}
	return httphandler.SecretMatches(h.adminSecret, r.Header.Get(httphandler.AdminSecretHeader))
}

// sessionValue derives the cookie value from the secret so the secret itself
// never sits in the browser.
func (h *Handler) sessionValue() string {
	if h.adminSecret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte("gitlicense-admin-session:" + h.adminSecret))
	return hex.EncodeToString(sum[:])
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("dashboard request rejected", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var corrupt *application.CorruptDocumentError
	var message string
	switch {
	case errors.Is(err, model.ErrLicenseNotFound):
		message = "License not found"
	case errors.Is(err, model.ErrDuplicateKey):
		message = "A license with that key already exists"
	case errors.Is(err, model.ErrInvalidLicense):
		message = err.Error()
	case errors.Is(err, application.ErrConcurrentUpdate):
		message = "The registry changed while saving, please retry"
	case errors.As(err, &corrupt):
		message = "The license document is corrupt and was not modified"
		h.logger.Error("dashboard operation failed", "op", op, "error", err)
	default:
		message = "The license store is unavailable"
		h.logger.Error("dashboard operation failed", "op", op, "error", err)
	}
	redirectFlash(w, r, "err", message)
}

func redirectFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	http.Redirect(w, r, "/admin?"+url.Values{kind: {message}}.Encode(), http.StatusSeeOther)
}

func actionPastTense(action string) string {
	switch action {
	case "revoke":
		return "Revoked"
	case "unrevoke":
		return "Reactivated"
	default:
		return "Deleted"
	}
}
