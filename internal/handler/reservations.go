package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	"github.com/iliyamo/restaurant-sales-engine/internal/reservations"
)

type reasonBody struct {
	Reason string `json:"reason"`
}

// CreateReservation handles POST /v1/reservations.  A client books for
// itself; staff book on behalf of a customer of their branch.  The
// request is refused up front when the branch cannot seat it over the
// window, but tables are only bound at start.
func (h *Handler) CreateReservation(c echo.Context) error {
	who, ok := callerOf(c)
	if !ok {
		return unauthenticated(c)
	}
	var in reservations.CreateInput
	if err := bindJSON(c, &in); err != nil {
		return h.writeError(c, err)
	}
	if who.IsBusiness() {
		if !who.CanAccessBranch(in.BranchID) {
			return forbidden(c, "branch not allowed")
		}
		in.ByClient = false
	} else {
		in.CustomerID = who.UserID
		in.ByClient = true
	}
	if err := h.checkCapacity(in); err != nil {
		return h.writeError(c, err)
	}
	r, err := h.Machine.Create(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Events.ReservationChanged(r, "")
	return c.JSON(http.StatusCreated, echo.Map{"item": r})
}

// checkCapacity is the soft availability check of a new request.  Windows
// that will fail validation are left to the machine.
func (h *Handler) checkCapacity(in reservations.CreateInput) error {
	if in.BranchID == 0 || in.DateIn.IsZero() || !in.DateOut.After(in.DateIn) {
		return nil
	}
	if len(in.TableIDs) > 0 {
		for _, id := range in.TableIDs {
			free, err := h.Availability.IsTableFree(id, in.DateIn, in.DateOut)
			if err != nil {
				return err
			}
			if !free {
				return apperr.New(apperr.KindNoTablesAvailable, "table %d is taken over the requested window", id)
			}
		}
		return nil
	}
	n, err := h.Availability.Capacity(in.BranchID, in.DateIn, in.DateOut)
	if err != nil {
		return err
	}
	if n < in.TableNumber {
		return apperr.New(apperr.KindNoTablesAvailable, "branch %d can seat %d more tables, %d requested", in.BranchID, n, in.TableNumber)
	}
	return nil
}

// ListReservations handles GET /v1/reservations.  Clients only ever see
// their own; staff bound to a branch only see that branch.
func (h *Handler) ListReservations(c echo.Context) error {
	who, ok := callerOf(c)
	if !ok {
		return unauthenticated(c)
	}
	branchID, err := queryUint(c, "branch_id")
	if err != nil {
		return h.writeError(c, err)
	}
	f := reservations.Filter{
		BranchID: branchID,
		Status:   model.ReservationStatus(strings.ToUpper(c.QueryParam("status"))),
	}
	if who.IsBusiness() {
		if who.BranchID != 0 {
			if branchID != 0 && branchID != who.BranchID {
				return forbidden(c, "branch not allowed")
			}
			f.BranchID = who.BranchID
		}
		if f.CustomerID, err = queryUint(c, "customer_id"); err != nil {
			return h.writeError(c, err)
		}
	} else {
		f.CustomerID = who.UserID
	}
	items := h.Machine.List(f)
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// visibleReservation loads a reservation the caller may see.  Other
// customers' reservations are reported as not found.
func (h *Handler) visibleReservation(c echo.Context) (model.Reservation, error) {
	who, ok := callerOf(c)
	if !ok {
		return model.Reservation{}, apperr.NotFound("reservation not found")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return model.Reservation{}, err
	}
	r, err := h.Machine.Get(id)
	if err != nil {
		return model.Reservation{}, err
	}
	if who.IsBusiness() && who.CanAccessBranch(r.BranchID) {
		return r, nil
	}
	if !who.IsBusiness() && r.CustomerID == who.UserID {
		return r, nil
	}
	return model.Reservation{}, apperr.NotFound("reservation %d not found", id)
}

// GetReservation handles GET /v1/reservations/:id.
func (h *Handler) GetReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

func (h *Handler) readReason(c echo.Context) (string, error) {
	var body reasonBody
	if err := bindJSON(c, &body); err != nil {
		return "", err
	}
	return body.Reason, nil
}

// AcceptReservation handles POST /v1/reservations/:id/accept.
func (h *Handler) AcceptReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	r, err = h.Machine.Accept(c.Request().Context(), r.ID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Events.ReservationChanged(r, model.ReservationPending)
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// RejectReservation handles POST /v1/reservations/:id/reject.
func (h *Handler) RejectReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	reason, err := h.readReason(c)
	if err != nil {
		return h.writeError(c, err)
	}
	r, err = h.Machine.Reject(c.Request().Context(), r.ID, reason)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Events.ReservationChanged(r, model.ReservationPending)
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// CancelReservation handles POST /v1/reservations/:id/cancel.  Clients
// may cancel their own accepted reservations.
func (h *Handler) CancelReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	reason, err := h.readReason(c)
	if err != nil {
		return h.writeError(c, err)
	}
	r, err = h.Machine.Cancel(c.Request().Context(), r.ID, reason)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Events.ReservationChanged(r, model.ReservationAccepted)
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}

// StartReservation handles POST /v1/reservations/:id/start.  The reply
// carries the opened sale next to the reservation.
func (h *Handler) StartReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	r, err = h.Machine.Start(c.Request().Context(), r.ID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, r.BranchID)
	h.Events.ReservationChanged(r, model.ReservationAccepted)
	s, err := h.Ledger.Get(r.SaleID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r, "sale": s})
}

// CloseReservation handles POST /v1/reservations/:id/close.
func (h *Handler) CloseReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	r, err = h.Machine.Close(c.Request().Context(), r.ID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, r.BranchID)
	h.Events.ReservationChanged(r, model.ReservationStarted)
	s, err := h.Ledger.Get(r.SaleID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Events.SaleClosed(s)
	return c.JSON(http.StatusOK, echo.Map{"item": r, "sale": s})
}

// RetireReservation handles POST /v1/reservations/:id/retire.  The sale
// is closed as void.
func (h *Handler) RetireReservation(c echo.Context) error {
	r, err := h.visibleReservation(c)
	if err != nil {
		return h.writeError(c, err)
	}
	reason, err := h.readReason(c)
	if err != nil {
		return h.writeError(c, err)
	}
	r, err = h.Machine.Retire(c.Request().Context(), r.ID, reason)
	if err != nil {
		return h.writeError(c, err)
	}
	h.invalidate(c, r.BranchID)
	h.Events.ReservationChanged(r, model.ReservationStarted)
	s, err := h.Ledger.Get(r.SaleID)
	if err != nil {
		return h.writeError(c, err)
	}
	h.Events.SaleClosed(s)
	return c.JSON(http.StatusOK, echo.Map{"item": r, "sale": s})
}
