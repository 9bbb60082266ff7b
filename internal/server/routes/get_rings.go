package routes

import (
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetNetworkRingsHandler returns the suspected fraud rings over the full
// record registry, building (or reusing) the graph snapshot for it.
func GetNetworkRingsHandler(c echo.Context) error {
	type getRingsResponse struct {
		Message     string             `json:"message"`
		Fingerprint common.Fingerprint `json:"fingerprint,omitempty"`
		Rings       []common.FraudRing `json:"rings,omitempty"`
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	records, err := app.Records.ListRecords(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getRingsResponse{
			Message: "Internal server error",
		})
	}
	if len(records) == 0 {
		return c.JSON(http.StatusOK, getRingsResponse{
			Message: "No beneficiary records screened yet",
		})
	}

	snapshot, err := app.GraphCache.GetOrBuild(ctx, records)
	if err != nil {
		logger.Error("[Server] Failed to build graph snapshot for rings", "err", err)
		return c.JSON(http.StatusInternalServerError, getRingsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRingsResponse{
		Message:     "Fraud rings retrieved",
		Fingerprint: snapshot.Fingerprint,
		Rings:       snapshot.Rings,
	})
}
