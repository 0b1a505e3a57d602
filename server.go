package main

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/monitor"
	"github.com/oszuidwest/zwfm-soundmeter/internal/server"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

var (
	loginTmpl   = template.Must(template.New("login").Parse(loginHTML))
	indexTmpl   = template.Must(template.New("index").Parse(indexHTML))
	faviconTmpl = template.Must(template.New("favicon").Parse(faviconSVG))
)

const readHeaderTimeout = 10 * time.Second

// pageData feeds both HTML templates. The index page ignores the login fields.
type pageData struct {
	StationName string
	PrimaryCSS  template.CSS
	Version     string
	Year        int

	Error     bool
	CSRFToken string
}

// asset is an embedded file served verbatim.
type asset struct {
	contentType string
	body        string
}

// assets maps URL paths to embedded files. The favicon is rendered per
// request with the station color and is not listed here.
var assets = map[string]asset{
	"/style.css": {contentType: "text/css; charset=utf-8", body: styleCSS},
	"/app.js":    {contentType: "text/javascript; charset=utf-8", body: appJS},
}

// Server serves the dashboard, its WebSocket and the REST API.
type Server struct {
	config          *config.Config
	monitor         *monitor.Monitor
	sessions        *server.SessionManager
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegAvailable bool
}

// NewServer wires the HTTP surface to the monitor.
func NewServer(cfg *config.Config, mon *monitor.Monitor, version *VersionChecker, ffmpegAvailable bool) *Server {
	return &Server{
		config:          cfg,
		monitor:         mon,
		sessions:        server.NewSessionManager(),
		commands:        server.NewCommandHandler(cfg, mon),
		version:         version,
		ffmpegAvailable: ffmpegAvailable,
	}
}

// SetupRoutes returns the full handler tree.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware()

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	// The login page needs its stylesheet and icon before a session exists.
	mux.HandleFunc("/style.css", s.handleAsset)
	mux.HandleFunc("/favicon.svg", s.handleFavicon)

	s.registerAPIRoutes(mux, s.sessions.APIMiddleware(s.config.GetAPIKey))

	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/", auth(s.handleDashboard))

	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// page returns the template data shared by every HTML page.
func (s *Server) page() pageData {
	cfg := s.config.Snapshot()
	return pageData{
		StationName: cfg.StationName,
		PrimaryCSS:  template.CSS(util.GenerateBrandCSS(cfg.StationColorLight, cfg.StationColorDark)), //nolint:gosec // generated from validated hex colors
		Version:     Version,
		Year:        time.Now().Year(),
	}
}

func render(w http.ResponseWriter, tmpl *template.Template, contentType string, data any) {
	w.Header().Set("Content-Type", contentType)
	if err := tmpl.Execute(w, data); err != nil {
		slog.Error("failed to render template", "template", tmpl.Name(), "error", err)
	}
}

// writeAsset writes the embedded file for path and reports whether one exists.
func writeAsset(w http.ResponseWriter, path string) bool {
	a, ok := assets[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", a.contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(a.body)); err != nil {
		slog.Debug("failed to write asset", "path", path, "error", err)
	}
	return true
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	if !writeAsset(w, r.URL.Path) {
		http.NotFound(w, r)
	}
}

func (s *Server) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	color := s.config.Snapshot().StationColorLight
	render(w, faviconTmpl, "image/svg+xml", struct{ Color string }{color})
}

// handleDashboard serves the meter page at / and the remaining assets.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
		render(w, indexTmpl, "text/html; charset=utf-8", s.page())
	default:
		if !writeAsset(w, r.URL.Path) {
			http.NotFound(w, r)
		}
	}
}

// handleLogin shows the form on GET and checks credentials on POST. Every
// render carries a fresh single-use CSRF token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.sessions.HasSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	data := s.page()
	if r.Method == http.MethodPost {
		if !s.sessions.ValidateCSRFToken(r.FormValue("csrf_token")) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		cfg := s.config.Snapshot()
		if s.sessions.Login(w, r, r.FormValue("username"), r.FormValue("password"), cfg.WebUser, cfg.WebPassword) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		data.Error = true
	}
	data.CSRFToken = s.sessions.CreateCSRFToken()

	render(w, loginTmpl, "text/html; charset=utf-8", data)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Start listens on the configured port in the background. The returned
// server is used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	slog.Info("starting web server", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}
