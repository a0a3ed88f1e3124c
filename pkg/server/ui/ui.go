// Package ui serves the server-rendered operator dashboard: upload,
// run progress, findings, and the downloadable audit document.
package ui

import (
	"io/fs"
	"net/http"

	gomponents "maragu.dev/gomponents"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/review"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/middleware"
	"github.com/aegisid/aegisid/pkg/server/store"
	"github.com/aegisid/aegisid/pkg/server/ui/assets"
)

// Handler renders the dashboard pages. It reads through the same stores
// as the JSON API and keeps no state of its own.
type Handler struct {
	Identities store.IdentityStore
	Runs       store.RunStore
	Findings   store.FindingStore
	Chain      *audit.Chain
	Engine     *review.Engine
	Config     *config.AegisConfig

	auth *middleware.TokenAuthenticator
}

// Register mounts the dashboard under /ui. Static assets and the login
// page are open; every other page requires an operator token, carried in
// a cookie and checked by the same authenticator as the API.
func Register(s *server.Server) {
	h := &Handler{
		Identities: s.Identities,
		Runs:       s.Runs,
		Findings:   s.Findings,
		Chain:      s.Chain,
		Engine:     s.Engine,
		Config:     s.Config,
		auth:       s.TokenAuth,
	}

	if staticFS, err := fs.Sub(assets.StaticFS(), "static"); err == nil {
		s.Router.PathPrefix("/ui/static/").
			Handler(http.StripPrefix("/ui/static/", http.FileServer(http.FS(staticFS))))
	}

	s.Router.HandleFunc("/ui/login", h.LoginPage).Methods("GET")
	s.Router.HandleFunc("/ui/login", h.LoginSubmit).Methods("POST")
	s.Router.HandleFunc("/ui/logout", h.Logout).Methods("POST")

	r := s.Router.PathPrefix("/ui").Subrouter()
	r.Use(h.requireOperator)
	r.HandleFunc("", h.Home).Methods("GET")
	r.HandleFunc("/upload", h.UploadPage).Methods("GET")
	r.Handle("/upload", middleware.RequireAdmin(http.HandlerFunc(h.UploadSubmit))).Methods("POST")
	r.HandleFunc("/runs/{id}", h.RunDetail).Methods("GET")
	r.HandleFunc("/results", h.Results).Methods("GET")
	r.HandleFunc("/audit", h.AuditFile).Methods("GET")
	r.HandleFunc("/audit/download", h.AuditDownload).Methods("GET")
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}
