package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/handler"
	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
)

// RegisterReservations registers the reservation lifecycle.  Customers
// may request, read and cancel their own reservations; every other
// transition is staff only.
func RegisterReservations(e *echo.Echo, h *handler.Handler, jwtSecret string) {
	member := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleBusiness, middleware.RoleClient),
	)
	member.POST("/reservations", h.CreateReservation)
	member.GET("/reservations", h.ListReservations)
	member.GET("/reservations/:id", h.GetReservation)
	member.POST("/reservations/:id/cancel", h.CancelReservation)

	staff := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleBusiness),
	)
	staff.POST("/reservations/:id/accept", h.AcceptReservation)
	staff.POST("/reservations/:id/reject", h.RejectReservation)
	staff.POST("/reservations/:id/start", h.StartReservation)
	staff.POST("/reservations/:id/retire", h.RetireReservation)
	staff.POST("/reservations/:id/close", h.CloseReservation)
}
