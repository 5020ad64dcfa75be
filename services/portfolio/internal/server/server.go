package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"portfolio/internal/ratelimit"
	"portfolio/internal/util"
	"portfolio/pkg/domain"
	"portfolio/pkg/store"
	"portfolio/services/portfolio/internal/app"
	"portfolio/services/portfolio/internal/security"
	"portfolio/services/portfolio/internal/web"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App        *app.App
	Sessions   *store.GormSessionStore
	CookieName string

	// Views renders the built-in pages. Ignored when Static is set.
	Views *web.Views
	// Static serves a prebuilt client bundle for every non-API path.
	Static http.Handler

	// Redis enables rate limiting of login and contact submissions.
	Redis                     redis.Scripter
	LoginRateLimitPerMinute   int
	ContactRateLimitPerMinute int

	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string

	// ImageOrigins are extra img-src sources for pages, such as the object
	// store's public origin.
	ImageOrigins []string
	Health       func(context.Context) error
}

// Server exposes the portfolio API and pages.
type Server struct {
	app            *app.App
	sessions       *store.GormSessionStore
	cookieName     string
	router         chi.Router
	views          *web.Views
	static         http.Handler
	loginLimiter   *ratelimit.FixedWindowLimiter
	contactLimiter *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
	trusted        *util.TrustedProxies
	corsOrigins    []string
	imageOrigins   []string
	health         func(context.Context) error
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil || cfg.Sessions == nil {
		return nil, errors.New("server: app and session store are required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "portfolio.sid"
	}
	s := &Server{
		app:          cfg.App,
		sessions:     cfg.Sessions,
		cookieName:   cfg.CookieName,
		views:        cfg.Views,
		static:       cfg.Static,
		trusted:      cfg.TrustedProxies,
		corsOrigins:  cfg.CORSAllowedOrigins,
		imageOrigins: cfg.ImageOrigins,
		health:       cfg.Health,
	}
	if cfg.Redis != nil {
		s.alerter = security.NewAuditAlerter(cfg.Redis, "")
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "portfolio:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if cfg.LoginRateLimitPerMinute > 0 {
			if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute); err != nil {
				return nil, err
			}
		}
		if cfg.ContactRateLimitPerMinute > 0 {
			if s.contactLimiter, err = newLimiter("contact", cfg.ContactRateLimitPerMinute); err != nil {
				return nil, err
			}
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.router
	h = util.WithCORS(s.corsOrigins)(h)
	h = util.WithSecurityHeaders(h, s.imageOrigins...)
	h = util.WithRequestLog("portfolio", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Get("/auth/me", s.handleMe)
		r.Method(http.MethodPost, "/auth/logout", s.authenticated(s.handleLogout))

		r.Get("/portfolio", s.handleListPortfolio)
		r.Method(http.MethodPost, "/portfolio", s.authenticated(s.handleCreatePortfolio))
		r.Method(http.MethodPut, "/portfolio/{id}", s.authenticated(s.handleUpdatePortfolio))
		r.Method(http.MethodDelete, "/portfolio/{id}", s.authenticated(s.handleDeletePortfolio))

		r.Post("/contacts", s.handleSubmitContact)
		r.Method(http.MethodGet, "/contacts", s.authenticated(s.handleListContacts))

		r.Method(http.MethodPost, "/uploads", s.authenticated(s.handleUpload))

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			methodNotAllowed(w)
		})
	})

	switch {
	case s.static != nil:
		r.Handle("/*", s.static)
	case s.views != nil:
		r.Get("/", s.views.Index)
		r.Get("/admin", s.views.Admin)
		r.Handle("/assets/*", http.StripPrefix("/assets", web.Assets()))
	}
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, err := s.currentUser(r)
		if err != nil {
			if !errors.Is(err, app.ErrUnauthenticated) {
				s.internalError(w, r, err, "Authentication failed")
				return
			}
			s.audit(r, "portfolio.authorize", "fail", "reason", "no_session")
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		s.audit(r, "portfolio.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

// currentUser resolves the session cookie to a live user. A missing, forged
// or expired cookie yields ErrUnauthenticated; storage failures are returned
// as is.
func (s *Server) currentUser(r *http.Request) (domain.User, *sessions.Session, error) {
	session, err := s.session(r)
	if err != nil {
		return domain.User{}, nil, err
	}
	if session.IsNew {
		return domain.User{}, session, app.ErrUnauthenticated
	}
	userID, _ := session.Values[store.SessionUserIDKey].(int64)
	user, err := s.app.UserByID(r.Context(), userID)
	if err != nil {
		return domain.User{}, session, err
	}
	return user, session, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool            `json:"success"`
	User    domain.Identity `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "portfolio.login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "portfolio.login", "fail", "reason", "invalid_json")
		return
	}
	user, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			s.audit(r, "portfolio.login", "fail", "reason", "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.internalError(w, r, err, "Login failed")
		return
	}

	// Regenerate: drop any previous session row and issue a new token.
	session, err := s.session(r)
	if err != nil {
		s.internalError(w, r, err, "Login failed")
		return
	}
	if session.ID != "" {
		if err := s.sessions.Destroy(r.Context(), session.ID); err != nil {
			s.internalError(w, r, err, "Login failed")
			return
		}
	}
	session.ID = ""
	session.IsNew = true
	session.Values = map[any]any{store.SessionUserIDKey: user.ID}
	if err := session.Save(r, w); err != nil {
		s.internalError(w, r, err, "Login failed")
		return
	}
	s.audit(r, "portfolio.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: user.Identity()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	session, err := s.session(r)
	if err != nil {
		s.internalError(w, r, err, "Logout failed")
		return
	}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		s.internalError(w, r, err, "Logout failed")
		return
	}
	s.audit(r, "portfolio.logout", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _, err := s.currentUser(r)
	if err != nil {
		if !errors.Is(err, app.ErrUnauthenticated) {
			s.internalError(w, r, err, "Authentication failed")
			return
		}
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.Identity{"user": user.Identity()})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, s.clientIP(r))
	if err != nil {
		logger.Warn("security alert counter failed", "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", s.clientIP(r),
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	ok, retryAfter := limiter.Allow(r.Context(), s.clientIP(r))
	if ok {
		return true
	}
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return s.trusted.ClientIP(r)
}

// internalError logs err with the request id and answers 500 with a fixed message.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	util.LoggerFromContext(r.Context()).Error(msg, "err", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, msg)
}

// session returns the request's session. Decode failures fall back to a
// fresh session; only storage failures are errors.
func (s *Server) session(r *http.Request) (*sessions.Session, error) {
	session, err := s.sessions.Get(r, s.cookieName)
	if errors.Is(err, store.ErrSessionUnavailable) {
		return nil, err
	}
	if err != nil {
		util.LoggerFromContext(r.Context()).Debug("session decode failed", "err", err)
	}
	if session == nil {
		if err == nil {
			err = errors.New("no session returned")
		}
		return nil, fmt.Errorf("session %q: %w", s.cookieName, err)
	}
	return session, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
