package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/limiter"
	"github.com/trailframes/server/internal/model"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// accountView is the safe serialization of an account: no password
// material and no raw or encrypted token fields ever leave the server.
type accountView struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	AthleteID int64   `json:"athleteId,omitempty"`
	Linked    bool    `json:"linked"`
	Username  string  `json:"username,omitempty"`
	FirstName string  `json:"firstName,omitempty"`
	LastName  string  `json:"lastName,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Sex       string  `json:"sex,omitempty"`
	Weight    float64 `json:"weight,omitempty"`
	Premium   bool    `json:"premium,omitempty"`
	Profile   string  `json:"profile,omitempty"`
}

func viewOf(a *model.Account) accountView {
	return accountView{
		ID:        a.ID.String(),
		Email:     a.Email,
		AthleteID: a.AthleteID,
		Linked:    a.Credentials.Linked(),
		Username:  a.Profile.Username,
		FirstName: a.Profile.FirstName,
		LastName:  a.Profile.LastName,
		City:      a.Profile.City,
		Country:   a.Profile.Country,
		Sex:       a.Profile.Sex,
		Weight:    a.Profile.Weight,
		Premium:   a.Profile.Premium,
		Profile:   a.Profile.Profile,
	}
}

// handleRegister creates an account and starts a session in one step.
func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed body", errs.ErrValidation)
	}

	account, err := s.accounts.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	pair, err := s.tokens.IssuePair(c.Request().Context(), account.ID, account.Email)
	if err != nil {
		return err
	}
	s.setAuthCookies(c, pair.AccessToken, pair.RefreshToken)

	s.logger.Info("account registered", zap.String("account_id", account.ID.String()))
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "user": viewOf(account)})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed body", errs.ErrValidation)
	}

	ctx := c.Request().Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ipHash := limiter.HashIP(c.RealIP())

	allowed, wait, err := s.limiter.Allow(ctx, email, ipHash)
	if err != nil {
		return err
	}
	if !allowed {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
		return errs.ErrRateLimited
	}

	account, err := s.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidCredentials) {
			_, _, _ = s.limiter.Failure(ctx, email, ipHash)
		}
		return err
	}
	if err := s.limiter.Success(ctx, email, ipHash); err != nil {
		s.logger.Warn("limiter reset failed", zap.Error(err))
	}

	pair, err := s.tokens.IssuePair(c.Request().Context(), account.ID, account.Email)
	if err != nil {
		return err
	}
	s.setAuthCookies(c, pair.AccessToken, pair.RefreshToken)

	s.logger.Info("account logged in", zap.String("account_id", account.ID.String()))
	return c.JSON(http.StatusOK, map[string]any{"success": true, "user": viewOf(account)})
}

// handleRefresh rotates the refresh token. On any failure both cookies
// are cleared so the client falls back to a clean login.
func (s *Server) handleRefresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		s.clearAuthCookies(c)
		return fmt.Errorf("%w: refresh token not found", errs.ErrValidation)
	}

	pair, err := s.tokens.RotateRefresh(c.Request().Context(), cookie.Value)
	if err != nil {
		s.clearAuthCookies(c)
		return err
	}
	s.setAuthCookies(c, pair.AccessToken, pair.RefreshToken)

	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "tokens refreshed"})
}

// handleLogout revokes the presented refresh token and clears both
// cookies. Logging out twice is fine.
func (s *Server) handleLogout(c echo.Context) error {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := s.tokens.Revoke(c.Request().Context(), cookie.Value); err != nil {
			return err
		}
	}
	s.clearAuthCookies(c)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

func (s *Server) handleCurrentUser(c echo.Context) error {
	payload := sessionPayload(c)
	account, err := s.accounts.GetByID(c.Request().Context(), payload.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "user": viewOf(account)})
}

// handleCsrfToken hands the double-submit token to the client; the CSRF
// middleware has already planted the matching cookie.
func (s *Server) handleCsrfToken(c echo.Context) error {
	token, _ := c.Get("csrf").(string)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "csrfToken": token})
}

// handleStravaCallback exchanges the authorization code carried in the
// query string and links the external identity to the current account.
func (s *Server) handleStravaCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return fmt.Errorf("%w: missing authorization code", errs.ErrValidation)
	}

	payload := sessionPayload(c)
	account, err := s.linker.LinkWithCode(c.Request().Context(), payload.AccountID, code)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "user": viewOf(account)})
}
