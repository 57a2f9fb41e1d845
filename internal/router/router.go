// Package router wires the HTTP surface onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/group-cart/internal/handler"
)

// RegisterRoutes registers the routes that take no middleware.
// Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterGroups registers the group API under /v1/groups with the
// given middleware chain (participant extraction, rate limiting).
func RegisterGroups(e *echo.Echo, h *handler.GroupHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1/groups", mw...)
	g.POST("/new", h.New)
	g.POST("/join", h.Join)
	g.GET("/group", h.Group)
	g.POST("/update-variants", h.UpdateVariants)
	g.POST("/update-member", h.UpdateMember)
	g.POST("/checkout", h.Checkout)
	g.POST("/cart", h.Cart)
	g.POST("/complete", h.Complete)
}
