// Package handler exposes the engine over HTTP.  Handlers parse and
// authorize the request, call one component operation, publish the
// resulting domain event and map typed errors to a status code.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/availability"
	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
	"github.com/iliyamo/restaurant-sales-engine/internal/reservations"
	"github.com/iliyamo/restaurant-sales-engine/internal/sales"
	"github.com/iliyamo/restaurant-sales-engine/internal/service"
	"github.com/iliyamo/restaurant-sales-engine/internal/tables"
	"github.com/iliyamo/restaurant-sales-engine/internal/tax"
)

// Handler bundles the components the HTTP surface drives.
type Handler struct {
	Ledger       *sales.Ledger
	Machine      *reservations.Machine
	Tables       *tables.Registry
	Availability *availability.Query
	Defaults     *tax.Defaults
	Events       *service.Events
	Cache        *middleware.ResponseCache
	Log          zerolog.Logger
}

// New constructs a Handler and panics if a component is missing.  Cache
// may be nil.
func New(ledger *sales.Ledger, machine *reservations.Machine, registry *tables.Registry, query *availability.Query, defaults *tax.Defaults, events *service.Events, cache *middleware.ResponseCache, log zerolog.Logger) *Handler {
	if ledger == nil || machine == nil || registry == nil || query == nil || defaults == nil || events == nil {
		panic("nil component passed to handler.New")
	}
	return &Handler{
		Ledger:       ledger,
		Machine:      machine,
		Tables:       registry,
		Availability: query,
		Defaults:     defaults,
		Events:       events,
		Cache:        cache,
		Log:          log.With().Str("component", "http").Logger(),
	}
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTableAlreadyBound, apperr.KindTableInUse, apperr.KindNoTablesAvailable,
		apperr.KindAlreadyClosed, apperr.KindInvalidTransition, apperr.KindDuplicateName:
		return http.StatusConflict
	case apperr.KindCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError is the single place typed errors become responses.
func (h *Handler) writeError(c echo.Context, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"kind": "Internal", "message": "internal error"})
	}
	return c.JSON(statusOf(ae.Kind), echo.Map{"kind": string(ae.Kind), "message": ae.Message})
}

func forbidden(c echo.Context, msg string) error {
	return c.JSON(http.StatusForbidden, echo.Map{"kind": "Forbidden", "message": msg})
}

// callerOf returns the identity set by middleware.JWTAuth.
func callerOf(c echo.Context) (middleware.Identity, bool) {
	return middleware.IdentityFrom(c)
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"kind": "Unauthenticated", "message": "missing identity"})
}

func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func queryUint(c echo.Context, name string) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid %s", name)
	}
	return v, nil
}

// queryWindow reads ?from=&to= as RFC3339 timestamps.
func queryWindow(c echo.Context) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("from must be an RFC3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("to must be an RFC3339 timestamp")
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, apperr.Validation("to must be after from")
	}
	return from, to, nil
}

func bindJSON(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}
