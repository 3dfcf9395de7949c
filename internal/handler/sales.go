package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	"github.com/iliyamo/restaurant-sales-engine/internal/sales"
)

// createSaleRequest opens a walk-in sale.  Omitted taxes mean the branch
// defaults; an explicit empty list means no taxes.
type createSaleRequest struct {
	BranchID   uint64       `json:"branch_id"`
	CustomerID uint64       `json:"customer_id"`
	TableIDs   []uint64     `json:"table_ids"`
	Taxes      *[]model.Tax `json:"taxes"`
	Note       string       `json:"note"`
}

type amountRequest struct {
	Amount int `json:"amount"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type tablesRequest struct {
	TableIDs []uint64 `json:"table_ids"`
}

// CreateSale handles POST /v1/sales.
func (h *Handler) CreateSale(c echo.Context) error {
	who, ok := callerOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var req createSaleRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	if req.BranchID == 0 {
		return h.writeError(c, apperr.Validation("branch_id is required"))
	}
	if !who.CanAccessBranch(req.BranchID) {
		return forbidden(c, "branch not allowed")
	}
	taxes := h.Defaults.For(req.BranchID)
	if req.Taxes != nil {
		taxes = *req.Taxes
	}
	s, err := h.Ledger.Create(c.Request().Context(), sales.CreateInput{
		BranchID:   req.BranchID,
		CustomerID: req.CustomerID,
		TableIDs:   req.TableIDs,
		Taxes:      taxes,
		Note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, s.BranchID)
	return c.JSON(http.StatusCreated, echo.Map{"item": s})
}

// ListSales handles GET /v1/sales?branch_id=&status=.
func (h *Handler) ListSales(c echo.Context) error {
	who, ok := callerOf(c)
	if !ok {
		return unauthenticated(c)
	}
	branchID, err := queryUint(c, "branch_id")
	if err != nil {
		return h.writeError(c, err)
	}
	if who.BranchID != 0 {
		if branchID != 0 && branchID != who.BranchID {
			return forbidden(c, "branch not allowed")
		}
		branchID = who.BranchID
	}
	items := h.Ledger.List(sales.Filter{
		BranchID: branchID,
		Status:   model.SaleStatus(strings.ToUpper(c.QueryParam("status"))),
	})
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// branchSale loads the sale named by :id when it belongs to a branch the
// caller works at.  Sales of other branches are reported as not found.
func (h *Handler) branchSale(c echo.Context) (model.Sale, error) {
	who, ok := callerOf(c)
	if !ok {
		return model.Sale{}, apperr.NotFound("sale not found")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return model.Sale{}, err
	}
	s, err := h.Ledger.Get(id)
	if err != nil {
		return model.Sale{}, err
	}
	if !who.CanAccessBranch(s.BranchID) {
		return model.Sale{}, apperr.NotFound("sale %d not found", id)
	}
	return s, nil
}

// GetSale handles GET /v1/sales/:id.
func (h *Handler) GetSale(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// AddProduct handles POST /v1/sales/:id/products.  Adding a product that
// is already on the sale raises the amount of its line; the line keeps
// the price it was first added at.
func (h *Handler) AddProduct(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var in sales.ProductInput
	if err := bindJSON(c, &in); err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.AddProduct(c.Request().Context(), s.ID, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// UpdateProduct handles PUT /v1/sales/:id/products/:lineId.
func (h *Handler) UpdateProduct(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	lineID, err := parseID(c, "lineId")
	if err != nil {
		return h.writeError(c, err)
	}
	var req amountRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.UpdateProductAmount(c.Request().Context(), s.ID, lineID, req.Amount)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// RemoveProduct handles DELETE /v1/sales/:id/products/:lineId.
func (h *Handler) RemoveProduct(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	lineID, err := parseID(c, "lineId")
	if err != nil {
		return h.writeError(c, err)
	}
	if _, err := h.Ledger.RemoveProduct(c.Request().Context(), s.ID, lineID); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddTax handles POST /v1/sales/:id/taxes.
func (h *Handler) AddTax(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var t model.Tax
	if err := bindJSON(c, &t); err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.AddTax(c.Request().Context(), s.ID, t)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// UpdateTax handles PUT /v1/sales/:id/taxes/:taxId.  Omitted fields keep
// their value.
func (h *Handler) UpdateTax(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	taxID, err := parseID(c, "taxId")
	if err != nil {
		return h.writeError(c, err)
	}
	var patch model.TaxPatch
	if err := bindJSON(c, &patch); err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.UpdateTax(c.Request().Context(), s.ID, taxID, patch)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// RemoveTax handles DELETE /v1/sales/:id/taxes/:taxId.
func (h *Handler) RemoveTax(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	taxID, err := parseID(c, "taxId")
	if err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.RemoveTax(c.Request().Context(), s.ID, taxID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// UpdateNote handles PUT /v1/sales/:id/note.
func (h *Handler) UpdateNote(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req noteRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.UpdateNote(c.Request().Context(), s.ID, strings.TrimSpace(req.Note))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// RebindTables handles PUT /v1/sales/:id/tables.
func (h *Handler) RebindTables(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req tablesRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	s, err = h.Ledger.RebindTables(c.Request().Context(), s.ID, req.TableIDs)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, s.BranchID)
	return c.JSON(http.StatusOK, echo.Map{"item": s})
}

// CloseSale handles POST /v1/sales/:id/close.  A reservation's sale is
// closed together with its reservation.
func (h *Handler) CloseSale(c echo.Context) error {
	s, err := h.branchSale(c)
	if err != nil {
		return h.writeError(c, err)
	}
	s, r, err := h.Machine.CloseBySale(c.Request().Context(), s.ID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, s.BranchID)
	h.Events.SaleClosed(s)
	resp := echo.Map{"item": s}
	if r != nil {
		h.Events.ReservationChanged(*r, model.ReservationStarted)
		resp["reservation"] = r
	}
	return c.JSON(http.StatusOK, resp)
}
