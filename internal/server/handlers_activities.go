package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleSync triggers a full import of the external activity history for
// the authenticated account. The call blocks until the sync finishes or
// fails; there is no mid-flight abort.
func (s *Server) handleSync(c echo.Context) error {
	payload := sessionPayload(c)

	result, err := s.syncer.SyncAll(c.Request().Context(), payload.AccountID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"fetched":  result.Fetched,
		"inserted": result.Inserted,
	})
}
