// Package router registers the HTTP routes of the engine on an echo
// instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/restaurant-sales-engine/internal/handler"
)

// RegisterRoutes registers the unauthenticated endpoints: the health
// check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Register wires every /v1 route.  Each group carries JWT authentication
// and the roles allowed on it.
func Register(e *echo.Echo, h *handler.Handler, jwtSecret string) {
	RegisterRoutes(e)
	RegisterReservations(e, h, jwtSecret)
	RegisterSales(e, h, jwtSecret)
	RegisterTables(e, h, jwtSecret)
}
