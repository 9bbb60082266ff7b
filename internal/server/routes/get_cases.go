package routes

import (
	"errors"
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetCasesHandler lists screening cases, optionally filtered by state.
func GetCasesHandler(c echo.Context) error {
	type getCasesParams struct {
		State string `query:"state" validate:"omitempty,oneof=pending reviewed approved rejected escalated"`
		Limit int    `query:"limit" validate:"omitempty,min=1,max=500"`
	}

	type getCasesResponse struct {
		Message string        `json:"message"`
		Cases   []common.Case `json:"cases,omitempty"`
	}

	params := new(getCasesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getCasesResponse{
			Message: "Invalid query parameters",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getCasesResponse{
			Message: "Invalid query parameters",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	cases, err := app.Cases.ListCases(ctx, store.ListCasesParams{
		State: common.CaseState(params.State),
		Limit: params.Limit,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getCasesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCasesResponse{
		Message: "Cases retrieved",
		Cases:   cases,
	})
}

// GetCaseHandler returns one case by id.
func GetCaseHandler(c echo.Context) error {
	type getCaseResponse struct {
		Message string       `json:"message"`
		Case    *common.Case `json:"case,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, getCaseResponse{
			Message: "Missing case id",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	screenedCase, err := app.Cases.GetCase(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrCaseNotFound) {
			return c.JSON(http.StatusNotFound, getCaseResponse{
				Message: "Case not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, getCaseResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCaseResponse{
		Message: "Case retrieved",
		Case:    screenedCase,
	})
}
