package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// PostCaseDecisionHandler applies one reviewer decision to a case. The
// request carries the state the reviewer observed; a stale view is rejected
// with a conflict so the reviewer re-reads before deciding again.
func PostCaseDecisionHandler(c echo.Context) error {
	type postDecisionBody struct {
		PreviousState string `json:"previous_state" validate:"required,oneof=pending reviewed approved rejected escalated"`
		NewState      string `json:"new_state" validate:"required,oneof=reviewed approved rejected escalated"`
		Rationale     string `json:"rationale" validate:"required"`
	}

	type postDecisionResponse struct {
		Message string             `json:"message"`
		Case    *common.Case       `json:"case,omitempty"`
		Entry   *common.AuditEntry `json:"audit_entry,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, postDecisionResponse{
			Message: "Missing case id",
		})
	}

	data := new(postDecisionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, postDecisionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, postDecisionResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, postDecisionResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	updated, entry, err := app.Cases.Decide(ctx, store.DecideParams{
		CaseID:        id,
		Actor:         fmt.Sprintf("user:%d", user.UserID),
		Action:        "decision",
		PreviousState: common.CaseState(data.PreviousState),
		NewState:      common.CaseState(data.NewState),
		Rationale:     data.Rationale,
	})
	if err != nil {
		var conflict *store.ConflictError
		switch {
		case errors.Is(err, store.ErrCaseNotFound):
			return c.JSON(http.StatusNotFound, postDecisionResponse{
				Message: "Case not found",
			})
		case errors.Is(err, store.ErrInvalidTransition):
			return c.JSON(http.StatusBadRequest, postDecisionResponse{
				Message: "Invalid state transition",
			})
		case errors.As(err, &conflict):
			return c.JSON(http.StatusConflict, postDecisionResponse{
				Message: conflict.Error(),
			})
		default:
			return c.JSON(http.StatusInternalServerError, postDecisionResponse{
				Message: "Internal server error",
			})
		}
	}

	return c.JSON(http.StatusOK, postDecisionResponse{
		Message: "Decision recorded",
		Case:    updated,
		Entry:   entry,
	})
}
