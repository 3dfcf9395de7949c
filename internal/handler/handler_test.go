package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-sales-engine/internal/availability"
	"github.com/iliyamo/restaurant-sales-engine/internal/handler"
	"github.com/iliyamo/restaurant-sales-engine/internal/keylock"
	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	"github.com/iliyamo/restaurant-sales-engine/internal/reservations"
	"github.com/iliyamo/restaurant-sales-engine/internal/router"
	"github.com/iliyamo/restaurant-sales-engine/internal/sales"
	"github.com/iliyamo/restaurant-sales-engine/internal/service"
	"github.com/iliyamo/restaurant-sales-engine/internal/tables"
	"github.com/iliyamo/restaurant-sales-engine/internal/tax"
	"github.com/iliyamo/restaurant-sales-engine/internal/utils"
)

const secret = "handler-secret"

type server struct {
	e        *echo.Echo
	staff    string
	client   string
	stranger string
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zerolog.Nop()
	locks := keylock.New(keylock.Config{Attempts: 20, InitialBackoff: time.Millisecond})
	registry := tables.NewRegistry(nil, log)
	ledger := sales.NewLedger(locks, registry, nil, log)
	defaults := tax.NewDefaults(nil, log)
	machine := reservations.NewMachine(locks, ledger, registry, defaults, nil, log)
	query := availability.New(registry, ledger, machine)
	events := service.NewEvents(nil, time.Second, log)
	h := handler.New(ledger, machine, registry, query, defaults, events, nil, log)

	e := echo.New()
	router.Register(e, h, secret)
	return &server{
		e:        e,
		staff:    token(t, 100, middleware.RoleBusiness, 1),
		client:   token(t, 7, middleware.RoleClient, 0),
		stranger: token(t, 8, middleware.RoleClient, 0),
	}
}

func token(t *testing.T, userID uint64, role string, branchID uint64) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, role, branchID, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (s *server) call(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env struct {
		Item json.RawMessage `json:"item"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Item, dst))
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Kind
}

func (s *server) table(t *testing.T, name string) model.Table {
	t.Helper()
	rec := s.call(t, http.MethodPost, "/v1/branches/1/tables", s.staff, echo.Map{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tbl model.Table
	decodeItem(t, rec, &tbl)
	return tbl
}

func (s *server) requestReservation(t *testing.T, tok string) *httptest.ResponseRecorder {
	t.Helper()
	return s.call(t, http.MethodPost, "/v1/reservations", tok, echo.Map{
		"branch_id":     1,
		"date_in":       "2024-06-01T20:00:00Z",
		"date_out":      "2024-06-01T22:00:00Z",
		"price":         "0",
		"table_number":  1,
		"client_number": 2,
		"occasion":      "birthday",
	})
}

func TestReservationToClosedSale(t *testing.T) {
	s := newServer(t)
	t1 := s.table(t, "T1")

	rec := s.requestReservation(t, s.client)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r model.Reservation
	decodeItem(t, rec, &r)
	assert.Equal(t, uint64(7), r.CustomerID)
	assert.True(t, r.ByClient)
	assert.Equal(t, model.ReservationPending, r.Status)

	base := fmt.Sprintf("/v1/reservations/%d", r.ID)
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, base+"/accept", s.staff, nil).Code)

	rec = s.call(t, http.MethodPost, base+"/start", s.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeItem(t, rec, &r)
	assert.Equal(t, model.ReservationStarted, r.Status)
	require.NotZero(t, r.SaleID)

	rec = s.call(t, http.MethodGet, "/v1/branches/1/tables/occupied", s.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"T1"`)

	sale := fmt.Sprintf("/v1/sales/%d", r.SaleID)
	rec = s.call(t, http.MethodPost, sale+"/products", s.staff, echo.Map{"product_id": 1, "name": "Soup", "price": "10", "amount": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.call(t, http.MethodPost, sale+"/taxes", s.staff, echo.Map{"name": "VAT", "value": "10", "is_percentage": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodPost, sale+"/close", s.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed model.Sale
	decodeItem(t, rec, &closed)
	assert.Equal(t, model.SaleClosed, closed.Status)
	assert.True(t, decimal.NewFromInt(20).Equal(closed.Subtotal), closed.Subtotal.String())
	assert.True(t, decimal.NewFromInt(22).Equal(closed.Total), closed.Total.String())
	assert.Contains(t, rec.Body.String(), `"reservation"`)

	rec = s.call(t, http.MethodGet, base, s.client, nil)
	decodeItem(t, rec, &r)
	assert.Equal(t, model.ReservationClosed, r.Status)

	rec = s.call(t, http.MethodGet, fmt.Sprintf("/v1/tables/%d/availability?from=2024-06-01T20:00:00Z&to=2024-06-01T22:00:00Z", t1.ID), s.client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"free":true`)

	rec = s.call(t, http.MethodPost, sale+"/close", s.staff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyClosed", errorKind(t, rec))
}

func TestAuthAndRoles(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/v1/sales", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.call(t, http.MethodGet, "/v1/sales", s.client, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.call(t, http.MethodPost, "/v1/branches/1/tables", s.client, echo.Map{"name": "T1"}).Code)

	other := token(t, 101, middleware.RoleBusiness, 2)
	rec := s.call(t, http.MethodPost, "/v1/branches/1/tables", other, echo.Map{"name": "T1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClientsOnlySeeTheirReservations(t *testing.T) {
	s := newServer(t)
	s.table(t, "T1")
	rec := s.requestReservation(t, s.client)
	require.Equal(t, http.StatusCreated, rec.Code)
	var r model.Reservation
	decodeItem(t, rec, &r)

	path := fmt.Sprintf("/v1/reservations/%d", r.ID)
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, path, s.client, nil).Code)
	rec = s.call(t, http.MethodGet, path, s.stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", errorKind(t, rec))

	rec = s.call(t, http.MethodGet, "/v1/reservations", s.stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	assert.Equal(t, http.StatusForbidden, s.call(t, http.MethodPost, path+"/accept", s.client, nil).Code)
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	s := newServer(t)
	s.table(t, "T1")
	rec := s.requestReservation(t, s.client)
	var r model.Reservation
	decodeItem(t, rec, &r)

	rec = s.call(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/start", r.ID), s.staff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", errorKind(t, rec))

	rec = s.call(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/reject", r.ID), s.staff, echo.Map{"reason": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/reject", r.ID), s.staff, echo.Map{"reason": "kitchen closed"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeItem(t, rec, &r)
	assert.Equal(t, model.ReservationRejected, r.Status)
	assert.Equal(t, "kitchen closed", r.Reason)
}

func TestCreateRefusedWhenBranchIsFull(t *testing.T) {
	s := newServer(t)
	s.table(t, "T1")

	rec := s.requestReservation(t, s.client)
	var r model.Reservation
	decodeItem(t, rec, &r)
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/accept", r.ID), s.staff, nil).Code)

	rec = s.requestReservation(t, s.stranger)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NoTablesAvailable", errorKind(t, rec))
}

func TestWalkInSaleUsesBranchDefaults(t *testing.T) {
	s := newServer(t)
	t1 := s.table(t, "T1")

	rec := s.call(t, http.MethodPut, "/v1/branches/1/default-taxes", s.staff, echo.Map{
		"taxes": []echo.Map{{"name": "Service", "value": "5", "is_percentage": false}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodPost, "/v1/sales", s.staff, echo.Map{"branch_id": 1, "table_ids": []uint64{t1.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale model.Sale
	decodeItem(t, rec, &sale)
	require.Len(t, sale.Taxes, 1)
	assert.Equal(t, "Service", sale.Taxes[0].Name)

	rec = s.call(t, http.MethodPost, "/v1/sales", s.staff, echo.Map{"branch_id": 1, "table_ids": []uint64{t1.ID}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TableAlreadyBound", errorKind(t, rec))

	rec = s.call(t, http.MethodDelete, fmt.Sprintf("/v1/tables/%d", t1.ID), s.staff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TableInUse", errorKind(t, rec))

	base := fmt.Sprintf("/v1/sales/%d", sale.ID)
	rec = s.call(t, http.MethodPost, base+"/products", s.staff, echo.Map{"product_id": 3, "name": "Tea", "price": "2.5", "amount": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeItem(t, rec, &sale)
	require.Len(t, sale.Products, 1)

	line := fmt.Sprintf("%s/products/%d", base, sale.Products[0].ID)
	rec = s.call(t, http.MethodPut, line, s.staff, echo.Map{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusNoContent, s.call(t, http.MethodDelete, line, s.staff, nil).Code)

	rec = s.call(t, http.MethodGet, base, s.staff, nil)
	decodeItem(t, rec, &sale)
	assert.Empty(t, sale.Products)
	assert.True(t, decimal.NewFromInt(5).Equal(sale.Total), sale.Total.String())
}

func TestBadInput(t *testing.T) {
	s := newServer(t)

	rec := s.call(t, http.MethodGet, "/v1/sales/abc", s.staff, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", errorKind(t, rec))

	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, "/v1/sales/99", s.staff, nil).Code)

	rec = s.call(t, http.MethodGet, "/v1/branches/1/tables/free?from=yesterday", s.staff, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.table(t, "T1")
	rec = s.call(t, http.MethodPost, "/v1/branches/1/tables", s.staff, echo.Map{"name": "T1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DuplicateName", errorKind(t, rec))
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRepeatedProductMergesIntoOneLine(t *testing.T) {
	s := newServer(t)
	rec := s.call(t, http.MethodPost, "/v1/sales", s.staff, echo.Map{"branch_id": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale model.Sale
	decodeItem(t, rec, &sale)

	path := fmt.Sprintf("/v1/sales/%d/products", sale.ID)
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, path, s.staff, echo.Map{"product_id": 3, "name": "Tea", "price": "2.5", "amount": 1}).Code)
	rec = s.call(t, http.MethodPost, path, s.staff, echo.Map{"product_id": 3, "name": "Tea", "price": "9", "amount": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeItem(t, rec, &sale)

	require.Len(t, sale.Products, 1)
	assert.Equal(t, 3, sale.Products[0].Amount)
	assert.True(t, decimal.RequireFromString("2.5").Equal(sale.Products[0].Price))
	assert.True(t, decimal.RequireFromString("7.5").Equal(sale.Total), sale.Total.String())
}
