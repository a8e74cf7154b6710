// Package api implements the HTTP edge (§6 HTTP surface): file upload,
// schema upload/removal, and task-status lookup, backed by the task
// repository, the publisher, and the schema store.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sheetflow/sheetflow/common"
)

// APIKeyAuth creates an Echo middleware validating the "X-API-Key" header
// against validKey. A missing or mismatched key is a bad-credentials error
// per §6's error-code table, not a generic unauthorized.
func APIKeyAuth(validKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" || key != validKey {
				return echo.NewHTTPError(http.StatusForbidden, common.ErrBadCredentials.Error())
			}
			return next(c)
		}
	}
}

// RegisterRoutes wires e's routing-key-facing the Edge's handlers behind
// APIKeyAuth, plus an unauthenticated health-check route.
func RegisterRoutes(e *echo.Echo, edge *Edge, apiKey string) {
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK!")
	})

	g := e.Group("", APIKeyAuth(apiKey))
	g.POST("/validation/upload/:import_name", edge.UploadValidation)
	g.GET("/validation/status", edge.ValidationStatus)
	g.POST("/schemas/upload/:import_name", edge.UploadSchema)
	g.DELETE("/schemas/remove/:import_name", edge.RemoveSchema)
}
