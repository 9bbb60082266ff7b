package routes

import (
	"errors"
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetCaseAuditHandler returns a case's full audit trail, oldest entry first.
func GetCaseAuditHandler(c echo.Context) error {
	type getAuditResponse struct {
		Message string              `json:"message"`
		Entries []common.AuditEntry `json:"entries,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, getAuditResponse{
			Message: "Missing case id",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	entries, err := app.Cases.ListAuditEntries(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrCaseNotFound) {
			return c.JSON(http.StatusNotFound, getAuditResponse{
				Message: "Case not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, getAuditResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getAuditResponse{
		Message: "Audit trail retrieved",
		Entries: entries,
	})
}
