package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const (
	csrfCookieName = "csrf_token"
	csrfFormField  = "csrf_token"
	csrfTokenBytes = 32
)

// csrfToken returns the request's CSRF token, setting a fresh cookie when the
// request carries none. The token is embedded in every dashboard form as a
// hidden field and must echo the cookie (double-submit).
func csrfToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	token := generateToken()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/admin",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	return token
}

// validateCSRF checks that the CSRF token (from header or form field) matches
// the cookie. Returns true if the tokens match and are non-empty.
func validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	token := r.Header.Get("X-CSRF-Token")
	if token == "" {
		token = r.PostFormValue(csrfFormField)
	}

	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) == 1
}

func generateToken() string {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: failed to generate random token: " + err.Error())
	}
	return hex.EncodeToString(b)
}
