package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/serverhub/hubauth"
	"github.com/serverhub/hubauth/middleware"
	"github.com/serverhub/hubauth/permission"
)

const (
	maxBodyBytes = 1 << 16
	// maxBanSeconds is the longest duration that fits a time.Duration.
	maxBanSeconds = math.MaxInt64 / int64(time.Second)
)

type server struct {
	engine  *hubauth.Engine
	logger  *slog.Logger
	metrics http.Handler
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.engine))
			r.Get("/whoami", s.handleWhoAmI)
			r.Post("/logout", s.handleLogout)
			r.Post("/logout/all", s.handleLogoutAll)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine, permission.ViewLogs))
			r.Get("/audit", s.handleAudit)
			r.Get("/security", s.handleSecurityReport)
		})

		r.Route("/bans", func(r chi.Router) {
			r.Use(middleware.Guard(s.engine, permission.BanUnban))
			r.Get("/", s.handleListBans)
			r.Post("/", s.handleBan)
			r.Delete("/{kind}/{name}", s.handleUnban)
		})

		r.With(middleware.Guard(s.engine, permission.ModifyAccess)).Put("/users/{username}/access", s.handleUpdateAccess)
	})

	return r
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	ctx := hubauth.WithClientIP(r.Context(), middleware.ClientIP(r))
	res, err := s.engine.Register(ctx, in.Username, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: res.Token, Username: res.User.Username, ExpiresAt: res.Session.ExpiresAt})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	ctx := hubauth.WithClientIP(r.Context(), middleware.ClientIP(r))
	res, err := s.engine.Login(ctx, in.Username, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: res.Token, Username: res.User.Username, ExpiresAt: res.Session.ExpiresAt})
}

func (s *server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"username":    p.Username,
		"assignment":  p.Assignment.String(),
		"permissions": p.Permissions.Names(),
		"expires_at":  p.Session.ExpiresAt,
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.engine.RevokeSessionByID(r.Context(), p.Session.ID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	removed, err := s.engine.RevokeAllSessions(r.Context(), p.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	events, err := s.engine.AuditLog(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SecurityReport())
}

type banRequest struct {
	EntityName string          `json:"entity_name"`
	Kind       hubauth.BanKind `json:"kind"`
	Reason     string          `json:"reason"`
	// Seconds; zero or absent means permanent.
	Duration int64 `json:"duration"`
}

func (s *server) handleBan(w http.ResponseWriter, r *http.Request) {
	var in banRequest
	if !decode(w, r, &in) {
		return
	}
	p, _ := middleware.PrincipalFromContext(r.Context())

	req := hubauth.BanRequest{
		EntityName: in.EntityName,
		Kind:       in.Kind,
		Reason:     in.Reason,
		IssuedBy:   p.Username,
	}
	if in.Duration > maxBanSeconds || in.Duration < -maxBanSeconds {
		s.writeError(w, hubauth.ErrInvalidDuration)
		return
	}
	if in.Duration != 0 {
		d := time.Duration(in.Duration) * time.Second
		req.Duration = &d
	}

	block, err := s.engine.Ban(r.Context(), req)
	if err != nil && !errors.Is(err, hubauth.ErrRevocationFailed) {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *server) handleUnban(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	kind := hubauth.BanKind(chi.URLParam(r, "kind"))
	if err := s.engine.Unban(r.Context(), p.Username, chi.URLParam(r, "name"), kind); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListBans(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.engine.ActiveBans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

type accessRequest struct {
	Role   *string  `json:"role"`
	Rights []string `json:"rights"`
}

func (s *server) handleUpdateAccess(w http.ResponseWriter, r *http.Request) {
	var in accessRequest
	if !decode(w, r, &in) {
		return
	}
	update := hubauth.AccessUpdate{Role: in.Role}
	if in.Rights != nil {
		set, err := permission.Parse(in.Rights)
		if err != nil {
			s.writeError(w, hubauth.ErrInvalidRights)
			return
		}
		update.Rights = &set
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	user, err := s.engine.UpdateAccessRights(r.Context(), p.Username, chi.URLParam(r, "username"), update)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":    user.Username,
		"assignment":  user.Assignment.String(),
		"permissions": user.Permissions.Names(),
	})
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hubauth.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, hubauth.ErrInvalidCredentials), errors.Is(err, hubauth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, hubauth.ErrInsufficientAccessRights), errors.Is(err, hubauth.ErrBanned):
		status = http.StatusForbidden
	case errors.Is(err, hubauth.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, hubauth.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, hubauth.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, hubauth.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
