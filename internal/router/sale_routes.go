package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/handler"
	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
)

// RegisterSales registers sale endpoints.  All of them are staff only.
func RegisterSales(e *echo.Echo, h *handler.Handler, jwtSecret string) {
	g := e.Group("/v1/sales",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleBusiness),
	)
	g.POST("", h.CreateSale)
	g.GET("", h.ListSales)
	g.GET("/:id", h.GetSale)

	// ---- Products ----
	g.POST("/:id/products", h.AddProduct)
	g.PUT("/:id/products/:lineId", h.UpdateProduct)
	g.DELETE("/:id/products/:lineId", h.RemoveProduct)

	// ---- Taxes ----
	g.POST("/:id/taxes", h.AddTax)
	g.PUT("/:id/taxes/:taxId", h.UpdateTax)
	g.DELETE("/:id/taxes/:taxId", h.RemoveTax)

	g.PUT("/:id/note", h.UpdateNote)
	g.PUT("/:id/tables", h.RebindTables)
	g.POST("/:id/close", h.CloseSale)
}
