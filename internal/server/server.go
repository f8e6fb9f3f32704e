// Package server exposes the HTTP boundary: auth endpoints, the external
// platform callback, and the sync trigger.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/config"
	"github.com/trailframes/server/internal/model"
	"github.com/trailframes/server/internal/service"
)

// AccountService is the slice of account operations the handlers need.
type AccountService interface {
	Register(ctx context.Context, email, password string) (*model.Account, error)
	Login(ctx context.Context, email, password string) (*model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
}

// TokenService issues, validates, rotates, and revokes session tokens.
type TokenService interface {
	IssuePair(ctx context.Context, accountID uuid.UUID, email string) (model.TokenPair, error)
	ValidateAccess(token string) (model.TokenPayload, error)
	RotateRefresh(ctx context.Context, oldToken string) (model.TokenPair, error)
	Revoke(ctx context.Context, token string) error
}

// CredentialLinker links an account to the external platform.
type CredentialLinker interface {
	LinkWithCode(ctx context.Context, accountID uuid.UUID, code string) (*model.Account, error)
}

// Syncer imports the external activity history.
type Syncer interface {
	SyncAll(ctx context.Context, accountID uuid.UUID) (service.SyncResult, error)
}

// LoginLimiter throttles repeated failed logins.
type LoginLimiter interface {
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	Success(ctx context.Context, email string, ipHash []byte) error
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Server wires the echo router to the application services.
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	accounts AccountService
	tokens   TokenService
	linker   CredentialLinker
	syncer   Syncer
	limiter  LoginLimiter
	logger   *zap.Logger
}

// NewServer builds the router with all middleware and routes registered.
func NewServer(cfg *config.Config, accounts AccountService, tokens TokenService, linker CredentialLinker, syncer Syncer, limiter LoginLimiter, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		config:   cfg,
		accounts: accounts,
		tokens:   tokens,
		linker:   linker,
		syncer:   syncer,
		limiter:  limiter,
		logger:   logger,
	}

	e.Use(middleware.Recover())
	e.Use(s.errorMiddleware())

	csrf := middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:" + echo.HeaderXCSRFToken,
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.IsProduction(),
		CookieSameSite: s.sameSite(),
	})

	auth := e.Group("/auth", csrf)
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.POST("/refresh", s.handleRefresh)
	auth.POST("/logout", s.handleLogout)
	auth.GET("/csrf", s.handleCsrfToken)
	auth.GET("/current-user", s.handleCurrentUser, s.requireAuth)
	auth.GET("/strava/callback", s.handleStravaCallback, s.requireAuth)

	e.POST("/activities/sync", s.handleSync, csrf, s.requireAuth)

	e.GET("/health", s.handleHealth)

	return s
}

// Start begins serving on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP makes the Server usable directly in httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
