package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Cookie names are stable; clients never parse the token values.
const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

func (s *Server) sameSite() http.SameSite {
	if s.config.IsProduction() {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func (s *Server) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: s.sameSite(),
	}
}

// setAuthCookies writes both session cookies onto the response.
func (s *Server) setAuthCookies(c echo.Context, accessToken, refreshToken string) {
	c.SetCookie(s.cookie(accessCookieName, accessToken, int(s.config.AccessTTL.Seconds())))
	c.SetCookie(s.cookie(refreshCookieName, refreshToken, int(s.config.RefreshTTL.Seconds())))
}

// clearAuthCookies expires both session cookies.
func (s *Server) clearAuthCookies(c echo.Context) {
	c.SetCookie(s.cookie(accessCookieName, "", -1))
	c.SetCookie(s.cookie(refreshCookieName, "", -1))
}
