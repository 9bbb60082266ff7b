package routes

import (
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	serverutil "github.com/prayatna/fraudscreen/backend/internal/server/util"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetDashboardHandler returns the reviewer dashboard summary: case counts
// by state plus the fraud-network picture. The snapshot is obtained from
// the record registry through the graph cache, so documents screened by
// worker processes are reflected here too; a repeat request for an
// unchanged registry is a cache hit.
func GetDashboardHandler(c echo.Context) error {
	type getDashboardResponse struct {
		Message string                     `json:"message"`
		Stats   *serverutil.DashboardStats `json:"stats,omitempty"`
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	cases, err := app.Cases.ListCases(ctx, store.ListCasesParams{Limit: 500})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getDashboardResponse{
			Message: "Internal server error",
		})
	}

	var snapshot *graph.Snapshot
	records, err := app.Records.ListRecords(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getDashboardResponse{
			Message: "Internal server error",
		})
	}
	if len(records) > 0 {
		snapshot, err = app.GraphCache.GetOrBuild(ctx, records)
		if err != nil {
			// The case counts are still worth returning without the
			// network picture.
			logger.Error("[Server] Failed to build graph snapshot for dashboard", "err", err)
			snapshot = nil
		}
	}

	stats := serverutil.ComputeDashboardStats(cases, snapshot)

	return c.JSON(http.StatusOK, getDashboardResponse{
		Message: "Dashboard stats computed",
		Stats:   &stats,
	})
}
