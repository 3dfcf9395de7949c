package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

type tableRequest struct {
	Name string `json:"name"`
}

// tableView is a table plus the sale currently sitting at it.
type tableView struct {
	model.Table
	SaleID   uint64 `json:"sale_id,omitempty"`
	Occupied bool   `json:"occupied"`
}

func (h *Handler) invalidate(c echo.Context, branchID uint64) {
	h.Cache.Invalidate(c.Request().Context(), strconv.FormatUint(branchID, 10))
}

// branchParam reads :id as a branch the caller may manage.
func (h *Handler) branchParam(c echo.Context) (uint64, bool, error) {
	branchID, err := parseID(c, "id")
	if err != nil {
		return 0, false, err
	}
	who, ok := callerOf(c)
	if !ok {
		return branchID, false, nil
	}
	if who.IsBusiness() && !who.CanAccessBranch(branchID) {
		return branchID, false, nil
	}
	return branchID, true, nil
}

// RegisterTable handles POST /v1/branches/:id/tables.
func (h *Handler) RegisterTable(c echo.Context) error {
	branchID, ok, err := h.branchParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	var req tableRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	t, err := h.Tables.Register(c.Request().Context(), branchID, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, branchID)
	return c.JSON(http.StatusCreated, echo.Map{"item": t})
}

// ListTables handles GET /v1/branches/:id/tables.  The response is
// cached per branch and invalidated by every binding change.
func (h *Handler) ListTables(c echo.Context) error {
	branchID, ok, err := h.branchParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	bound := h.Tables.Bindings(branchID)
	list := h.Tables.ListByBranch(branchID)
	items := make([]tableView, 0, len(list))
	for _, t := range list {
		saleID, occupied := bound[t.ID]
		items = append(items, tableView{Table: t, SaleID: saleID, Occupied: occupied})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// managedTable loads the table named by :id when the caller may manage
// its branch.
func (h *Handler) managedTable(c echo.Context) (model.Table, bool, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return model.Table{}, false, err
	}
	t, err := h.Tables.Get(id)
	if err != nil {
		return model.Table{}, false, err
	}
	who, ok := callerOf(c)
	if !ok || !who.CanAccessBranch(t.BranchID) {
		return t, false, nil
	}
	return t, true, nil
}

// RenameTable handles PUT /v1/tables/:id.
func (h *Handler) RenameTable(c echo.Context) error {
	t, ok, err := h.managedTable(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	var req tableRequest
	if err := bindJSON(c, &req); err != nil {
		return h.writeError(c, err)
	}
	t, err = h.Tables.Rename(c.Request().Context(), t.ID, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, t.BranchID)
	return c.JSON(http.StatusOK, echo.Map{"item": t})
}

// ReleaseTable handles DELETE /v1/tables/:id.  A table serving an ongoing
// sale cannot be released.
func (h *Handler) ReleaseTable(c echo.Context) error {
	t, ok, err := h.managedTable(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	if err := h.Tables.Release(c.Request().Context(), t.ID); err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, t.BranchID)
	return c.NoContent(http.StatusNoContent)
}

// OccupiedTables handles GET /v1/branches/:id/tables/occupied.
func (h *Handler) OccupiedTables(c echo.Context) error {
	branchID, ok, err := h.branchParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	items := h.Availability.ListOccupiedTables(branchID)
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// FreeTables handles GET /v1/branches/:id/tables/free?from=&to=.
func (h *Handler) FreeTables(c echo.Context) error {
	branchID, ok, err := h.branchParam(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if !ok {
		return forbidden(c, "branch not allowed")
	}
	from, to, err := queryWindow(c)
	if err != nil {
		return h.writeError(c, err)
	}
	items, err := h.Availability.FreeTables(branchID, from, to)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// TableAvailability handles GET /v1/tables/:id/availability?from=&to=.
func (h *Handler) TableAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}
	from, to, err := queryWindow(c)
	if err != nil {
		return h.writeError(c, err)
	}
	free, err := h.Availability.IsTableFree(id, from, to)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"table_id": id, "from": from, "to": to, "free": free})
}
