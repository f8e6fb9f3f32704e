package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
)

// payloadKey is the context key under which requireAuth stores the
// validated token payload.
const payloadKey = "sessionPayload"

// requireAuth validates the access cookie and stores its payload in the
// request context. Validation is stateless; no store lookup happens here.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(accessCookieName)
		if err != nil || cookie.Value == "" {
			return errs.ErrInvalidToken
		}
		payload, err := s.tokens.ValidateAccess(cookie.Value)
		if err != nil {
			return err
		}
		c.Set(payloadKey, payload)
		return next(c)
	}
}

func sessionPayload(c echo.Context) model.TokenPayload {
	payload, _ := c.Get(payloadKey).(model.TokenPayload)
	return payload
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// errorMiddleware maps service errors onto HTTP responses. Internal and
// decryption failures collapse to a generic message; full detail goes to
// the server log only (and to the response body outside production).
func (s *Server) errorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo's own errors (CSRF middleware, routing) keep their status.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				s.logError(c, httpErr.Code, err)
				msg, _ := httpErr.Message.(string)
				if msg == "" {
					msg = http.StatusText(httpErr.Code)
				}
				return c.JSON(httpErr.Code, errorResponse{Error: msg})
			}

			status, message := s.classify(err)
			s.logError(c, status, err)

			resp := errorResponse{Error: message}
			if status == http.StatusInternalServerError && !s.config.IsProduction() {
				resp.Details = err.Error()
			}
			return c.JSON(status, resp)
		}
	}
}

func (s *Server) classify(err error) (int, string) {
	var ext *errs.ExternalError
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errs.IsAuthentication(err):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errs.ErrCsrf):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "this email address is already in use"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.As(err, &ext):
		return http.StatusBadGateway, "external service request failed"
	default:
		// errs.ErrDecryption and anything unexpected.
		return http.StatusInternalServerError, "an unexpected error occurred, please try again later"
	}
}

// logError records the failure. An unauthenticated probe of the
// current-user endpoint is a normal condition and is not logged.
func (s *Server) logError(c echo.Context, status int, err error) {
	if status == http.StatusUnauthorized && strings.HasSuffix(c.Path(), "/current-user") {
		return
	}

	fields := []zap.Field{
		zap.String("path", c.Request().URL.Path),
		zap.String("method", c.Request().Method),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
		return
	}
	s.logger.Warn("request rejected", fields...)
}
