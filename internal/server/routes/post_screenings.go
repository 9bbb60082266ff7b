package routes

import (
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/pipeline"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PostScreeningHandler runs the screening pipeline synchronously on an
// inlined document and initializes the resulting case. Large batches should
// go through the document upload endpoint instead.
func PostScreeningHandler(c echo.Context) error {
	type postScreeningBody struct {
		DocumentID string `json:"document_id"`
		Document   string `json:"document" validate:"required"`
	}

	type postScreeningResponse struct {
		Message string           `json:"message"`
		Case    *common.Case     `json:"case,omitempty"`
		Result  *pipeline.Result `json:"result,omitempty"`
	}

	data := new(postScreeningBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, postScreeningResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, postScreeningResponse{
			Message: "Invalid request body",
		})
	}

	if data.DocumentID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, postScreeningResponse{
				Message: "Internal server error",
			})
		}
		data.DocumentID = id
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Orchestrator.Run(ctx, data.DocumentID, []byte(data.Document))
	if err != nil {
		logger.Error("[Server] Screening failed", "documentId", data.DocumentID, "err", err)
		return c.JSON(http.StatusInternalServerError, postScreeningResponse{
			Message: "Screening failed",
		})
	}

	if res.Record != nil {
		if err := app.Records.SaveRecord(ctx, *res.Record); err != nil {
			logger.Error("[Server] Failed to save record", "documentId", data.DocumentID, "err", err)
			return c.JSON(http.StatusInternalServerError, postScreeningResponse{
				Message: "Failed to save record",
			})
		}
	}

	screenedCase, _, err := app.Cases.InitCase(ctx, res.Seed())
	if err != nil {
		logger.Error("[Server] Failed to initialize case", "documentId", data.DocumentID, "err", err)
		return c.JSON(http.StatusInternalServerError, postScreeningResponse{
			Message: "Failed to initialize case",
		})
	}

	return c.JSON(http.StatusOK, postScreeningResponse{
		Message: "Screening complete",
		Case:    screenedCase,
		Result:  res,
	})
}
