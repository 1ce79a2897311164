package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all admin dashboard routes on the provided mux.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Page routes.
	mux.HandleFunc("GET /admin", h.Dashboard)
	mux.HandleFunc("POST /admin/licenses", h.CreateLicense)
	mux.HandleFunc("POST /admin/licenses/{key}/{action}", h.LicenseAction)
}
