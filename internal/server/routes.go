package server

import (
	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document intake routes
	apiRoutes.POST("/documents", routes.PostDocumentHandler, middleware.RequirePermission("document.submit"))
	apiRoutes.POST("/screenings", routes.PostScreeningHandler, middleware.RequirePermission("screen.run"))

	// Case routes
	apiRoutes.GET("/cases", routes.GetCasesHandler, middleware.RequirePermission("case.view"))
	apiRoutes.GET("/cases/:id", routes.GetCaseHandler, middleware.RequirePermission("case.view"))
	apiRoutes.POST("/cases/:id/decision", routes.PostCaseDecisionHandler, middleware.RequirePermission("case.decide"))
	apiRoutes.GET("/cases/:id/audit", routes.GetCaseAuditHandler, middleware.RequireAnyPermission("case.audit:view", "case.view"))

	// Dashboard and network routes
	apiRoutes.GET("/dashboard", routes.GetDashboardHandler, middleware.RequirePermission("dashboard.view"))
	apiRoutes.GET("/network/rings", routes.GetNetworkRingsHandler, middleware.RequirePermission("network.view"))
}
