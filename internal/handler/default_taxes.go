package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

type defaultTaxesRequest struct {
	Taxes []model.Tax `json:"taxes"`
}

// GetDefaultTaxes handles GET /v1/branches/:id/default-taxes.
func (h *Handler) GetDefaultTaxes(c echo.Context) error {
	branchID, ok, err := h.branchParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.Defaults.For(branchID)})
}

// PutDefaultTaxes handles PUT /v1/branches/:id/default-taxes.  The list
// replaces the branch template; open sales keep the taxes they copied.
func (h *Handler) PutDefaultTaxes(c echo.Context) error {
	branchID, ok, err := h.branchParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	var req defaultTaxesRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	items, err := h.Defaults.Set(c.Request().Context(), branchID, req.Taxes)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Log.Info().Uint64("branch_id", branchID).Int("taxes", len(items)).Msg("default taxes replaced")
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
