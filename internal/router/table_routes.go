package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/handler"
	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
)

// RegisterTables registers table management, availability and branch
// default taxes.  Reads are open to both roles so customers can check a
// branch before booking; the table listing goes through the response
// cache.
func RegisterTables(e *echo.Echo, h *handler.Handler, jwtSecret string) {
	read := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleBusiness, middleware.RoleClient),
	)
	read.GET("/branches/:id/tables", h.ListTables, h.Cache.Middleware("id"))
	read.GET("/branches/:id/tables/free", h.FreeTables)
	read.GET("/tables/:id/availability", h.TableAvailability)

	staff := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleBusiness),
	)
	staff.POST("/branches/:id/tables", h.RegisterTable)
	staff.GET("/branches/:id/tables/occupied", h.OccupiedTables)
	staff.PUT("/tables/:id", h.RenameTable)
	staff.DELETE("/tables/:id", h.ReleaseTable)

	// ---- Default taxes ----
	staff.GET("/branches/:id/default-taxes", h.GetDefaultTaxes)
	staff.PUT("/branches/:id/default-taxes", h.PutDefaultTaxes)
}
