// Package reservations owns reservation aggregates and their transition
// graph:
//
//	PENDING  -> ACCEPTED (accept) | REJECTED (reject)
//	ACCEPTED -> STARTED (start)   | CANCELED (cancel)
//	STARTED  -> CLOSED (close)    | RETIRED (retire)
//
// REJECTED, RETIRED, CANCELED, CLOSED and RETURNED are terminal.  Start
// opens a sale through the ledger and close or retire end it; the sale
// side effect always happens before the status changes, under the
// reservation lock, so a failed side effect leaves the reservation
// untouched.
package reservations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/keylock"
	"github.com/iliyamo/restaurant-sales-engine/internal/metrics"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	"github.com/iliyamo/restaurant-sales-engine/internal/sales"
)

// Ledger is the part of the sale ledger the machine drives.
type Ledger interface {
	Create(ctx context.Context, in sales.CreateInput) (model.Sale, error)
	Close(ctx context.Context, saleID uint64) (model.Sale, error)
	Void(ctx context.Context, saleID uint64) (model.Sale, error)
	Get(id uint64) (model.Sale, error)
}

// Tables is the read side of the table registry.
type Tables interface {
	ListByBranch(branchID uint64) []model.Table
	Lookup(ids []uint64) ([]model.Table, error)
	BoundTo(id uint64) (uint64, bool)
}

// DefaultTaxes supplies the taxes copied into a sale at start.
type DefaultTaxes interface {
	For(branchID uint64) []model.Tax
}

// Journal persists committed reservations.
type Journal interface {
	SaveReservation(ctx context.Context, r model.Reservation) error
}

// CreateInput describes a new reservation request.
type CreateInput struct {
	BranchID     uint64          `json:"branch_id"`
	CustomerID   uint64          `json:"customer_id"`
	ByClient     bool            `json:"by_client"`
	DateIn       time.Time       `json:"date_in"`
	DateOut      time.Time       `json:"date_out"`
	Price        decimal.Decimal `json:"price"`
	TableNumber  int             `json:"table_number"`
	TableIDs     []uint64        `json:"table_ids"`
	ClientNumber int             `json:"client_number"`
	Occasion     string          `json:"occasion"`
}

// Filter selects reservations in List.  Zero fields match everything.
type Filter struct {
	BranchID   uint64
	CustomerID uint64
	Status     model.ReservationStatus
}

// Machine owns every reservation.
type Machine struct {
	locks    *keylock.Locker
	ledger   Ledger
	tables   Tables
	defaults DefaultTaxes

	mu           sync.RWMutex
	reservations map[uint64]model.Reservation
	nextID       atomic.Uint64

	journal Journal
	log     zerolog.Logger
	now     func() time.Time
}

// NewMachine wires a machine to its collaborators.  journal and defaults
// may be nil.
func NewMachine(locks *keylock.Locker, ledger Ledger, tables Tables, defaults DefaultTaxes, journal Journal, log zerolog.Logger) *Machine {
	return &Machine{
		locks:        locks,
		ledger:       ledger,
		tables:       tables,
		defaults:     defaults,
		reservations: make(map[uint64]model.Reservation),
		journal:      journal,
		log:          log.With().Str("component", "reservations").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads persisted reservations.
func (m *Machine) Restore(list []model.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range list {
		m.reservations[r.ID] = r.Clone()
		if r.ID > m.nextID.Load() {
			m.nextID.Store(r.ID)
		}
	}
}

func reservationKey(id uint64) string { return fmt.Sprintf("reservation:%d", id) }

// Create validates a request and stores it as PENDING.
func (m *Machine) Create(ctx context.Context, in CreateInput) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, apperr.Wrap(apperr.KindCancelled, err, "create reservation")
	}
	if in.BranchID == 0 {
		return model.Reservation{}, apperr.Validation("branch_id is required")
	}
	if in.DateIn.IsZero() || in.DateOut.IsZero() {
		return model.Reservation{}, apperr.Validation("date_in and date_out are required")
	}
	if !in.DateOut.After(in.DateIn) {
		return model.Reservation{}, apperr.Validation("date_out must be after date_in")
	}
	if in.TableNumber == 0 {
		in.TableNumber = len(in.TableIDs)
	}
	if in.TableNumber < 1 {
		return model.Reservation{}, apperr.Validation("table_number must be >= 1")
	}
	if len(in.TableIDs) > 0 && len(in.TableIDs) != in.TableNumber {
		return model.Reservation{}, apperr.Validation("table_number %d does not match %d table ids", in.TableNumber, len(in.TableIDs))
	}
	if in.ClientNumber < 1 {
		return model.Reservation{}, apperr.Validation("client_number must be >= 1")
	}
	if in.Price.IsNegative() {
		return model.Reservation{}, apperr.Validation("price must be >= 0")
	}
	if len(in.TableIDs) > 0 {
		tbls, err := m.tables.Lookup(in.TableIDs)
		if err != nil {
			return model.Reservation{}, err
		}
		seen := make(map[uint64]struct{}, len(tbls))
		for _, t := range tbls {
			if t.BranchID != in.BranchID {
				return model.Reservation{}, apperr.Validation("table %d does not belong to branch %d", t.ID, in.BranchID)
			}
			if _, dup := seen[t.ID]; dup {
				return model.Reservation{}, apperr.Validation("table %d listed twice", t.ID)
			}
			seen[t.ID] = struct{}{}
		}
	}

	now := m.now()
	r := model.Reservation{
		ID:           m.nextID.Add(1),
		BranchID:     in.BranchID,
		CustomerID:   in.CustomerID,
		ByClient:     in.ByClient,
		RequestDate:  now,
		DateIn:       in.DateIn.UTC(),
		DateOut:      in.DateOut.UTC(),
		Price:        in.Price,
		Status:       model.ReservationPending,
		TableNumber:  in.TableNumber,
		TableIDs:     append([]uint64(nil), in.TableIDs...),
		ClientNumber: in.ClientNumber,
		Occasion:     strings.TrimSpace(in.Occasion),
		UpdatedAt:    now,
	}
	m.commit(ctx, r)
	m.log.Info().Uint64("reservation_id", r.ID).Uint64("branch_id", r.BranchID).Time("date_in", r.DateIn).Msg("reservation requested")
	return r.Clone(), nil
}

// transition runs fn on a copy of the reservation under its lock and
// commits the copy when fn succeeds.
func (m *Machine) transition(ctx context.Context, id uint64, fn func(r *model.Reservation) error) (model.Reservation, error) {
	unlock, err := m.locks.Lock(ctx, reservationKey(id))
	if err != nil {
		return model.Reservation{}, err
	}
	defer unlock()

	r, err := m.Get(id)
	if err != nil {
		return model.Reservation{}, err
	}
	from := r.Status
	if err := fn(&r); err != nil {
		return model.Reservation{}, err
	}
	r.UpdatedAt = m.now()
	m.commit(ctx, r)
	metrics.ReservationTransitions.WithLabelValues(string(from), string(r.Status)).Inc()
	m.log.Info().Uint64("reservation_id", id).Str("from", string(from)).Str("to", string(r.Status)).Msg("reservation transition")
	return r.Clone(), nil
}

func (m *Machine) commit(ctx context.Context, r model.Reservation) {
	m.mu.Lock()
	m.reservations[r.ID] = r
	m.mu.Unlock()
	if m.journal != nil {
		if err := m.journal.SaveReservation(ctx, r); err != nil {
			metrics.JournalErrors.WithLabelValues("reservation").Inc()
			m.log.Error().Err(err).Uint64("reservation_id", r.ID).Msg("journal save failed")
		}
	}
}

func expect(r *model.Reservation, want model.ReservationStatus, action string) error {
	if r.Status != want {
		return apperr.InvalidTransition(string(r.Status), action)
	}
	return nil
}

func requireReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperr.Validation("reason is required")
	}
	return reason, nil
}

// Accept moves a PENDING reservation to ACCEPTED.
func (m *Machine) Accept(ctx context.Context, id uint64) (model.Reservation, error) {
	return m.transition(ctx, id, func(r *model.Reservation) error {
		if err := expect(r, model.ReservationPending, "accept"); err != nil {
			return err
		}
		r.Status = model.ReservationAccepted
		return nil
	})
}

// Reject moves a PENDING reservation to REJECTED.
func (m *Machine) Reject(ctx context.Context, id uint64, reason string) (model.Reservation, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return model.Reservation{}, err
	}
	return m.transition(ctx, id, func(r *model.Reservation) error {
		if err := expect(r, model.ReservationPending, "reject"); err != nil {
			return err
		}
		r.Status = model.ReservationRejected
		r.Reason = reason
		return nil
	})
}

// Cancel moves an ACCEPTED reservation to CANCELED.
func (m *Machine) Cancel(ctx context.Context, id uint64, reason string) (model.Reservation, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return model.Reservation{}, err
	}
	return m.transition(ctx, id, func(r *model.Reservation) error {
		if err := expect(r, model.ReservationAccepted, "cancel"); err != nil {
			return err
		}
		r.Status = model.ReservationCanceled
		r.Reason = reason
		return nil
	})
}

// Start opens the sale of an ACCEPTED reservation and binds its tables.
// Explicitly requested tables are bound as given; otherwise TableNumber
// tables of the branch that are unbound and not promised to another
// reservation overlapping this window are picked.
func (m *Machine) Start(ctx context.Context, id uint64) (model.Reservation, error) {
	return m.transition(ctx, id, func(r *model.Reservation) error {
		if err := expect(r, model.ReservationAccepted, "start"); err != nil {
			return err
		}
		ids := r.TableIDs
		picked := len(ids) == 0
		if picked {
			var err error
			if ids, err = m.pickTables(r); err != nil {
				return err
			}
		}
		var taxes []model.Tax
		if m.defaults != nil {
			taxes = m.defaults.For(r.BranchID)
		}
		s, err := m.ledger.Create(ctx, sales.CreateInput{
			BranchID:      r.BranchID,
			CustomerID:    r.CustomerID,
			ByClient:      r.ByClient,
			ReservationID: r.ID,
			TableIDs:      ids,
			Taxes:         taxes,
		})
		if err != nil {
			if picked && apperr.IsKind(err, apperr.KindTableAlreadyBound) {
				return apperr.Wrap(apperr.KindNoTablesAvailable, err, "tables taken while starting reservation %d", r.ID)
			}
			if !picked && apperr.IsKind(err, apperr.KindNotFound) {
				return apperr.Wrap(apperr.KindNoTablesAvailable, err, "a table requested by reservation %d was released", r.ID)
			}
			return err
		}
		r.Status = model.ReservationStarted
		r.SaleID = s.ID
		return nil
	})
}

// pickTables chooses free tables for r, lowest ids first.
func (m *Machine) pickTables(r *model.Reservation) ([]uint64, error) {
	promised := m.promisedTables(r)
	out := make([]uint64, 0, r.TableNumber)
	for _, t := range m.tables.ListByBranch(r.BranchID) {
		if len(out) == r.TableNumber {
			break
		}
		if _, bound := m.tables.BoundTo(t.ID); bound {
			continue
		}
		if _, ok := promised[t.ID]; ok {
			continue
		}
		out = append(out, t.ID)
	}
	if len(out) < r.TableNumber {
		return nil, apperr.New(apperr.KindNoTablesAvailable, "branch %d has %d free tables, reservation %d needs %d", r.BranchID, len(out), r.ID, r.TableNumber)
	}
	return out, nil
}

// promisedTables returns the tables explicitly requested by other
// accepted reservations whose window overlaps r.  Started reservations
// are seen through the registry bindings of their sales.
func (m *Machine) promisedTables(r *model.Reservation) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.reservations {
		if o.ID == r.ID || o.BranchID != r.BranchID || !o.Overlaps(r.DateIn, r.DateOut) {
			continue
		}
		if o.Status != model.ReservationAccepted {
			continue
		}
		for _, id := range o.TableIDs {
			out[id] = struct{}{}
		}
	}
	return out
}

// Close closes the sale of a STARTED reservation, then the reservation.
func (m *Machine) Close(ctx context.Context, id uint64) (model.Reservation, error) {
	r, _, err := m.closeReservation(ctx, id)
	return r, err
}

func (m *Machine) closeReservation(ctx context.Context, id uint64) (model.Reservation, model.Sale, error) {
	var closed model.Sale
	r, err := m.transition(ctx, id, func(r *model.Reservation) error {
		if err := expect(r, model.ReservationStarted, "close"); err != nil {
			return err
		}
		s, err := m.ledger.Close(ctx, r.SaleID)
		if err != nil {
			return err
		}
		closed = s
		r.Status = model.ReservationClosed
		return nil
	})
	return r, closed, err
}

// Retire voids the sale of a STARTED reservation, freeing its tables
// without charging it.
func (m *Machine) Retire(ctx context.Context, id uint64, reason string) (model.Reservation, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return model.Reservation{}, err
	}
	return m.transition(ctx, id, func(r *model.Reservation) error {
		if err := expect(r, model.ReservationStarted, "retire"); err != nil {
			return err
		}
		if _, err := m.ledger.Void(ctx, r.SaleID); err != nil {
			return err
		}
		r.Status = model.ReservationRetired
		r.Reason = reason
		return nil
	})
}

// CloseBySale closes a sale.  A sale opened by a reservation is closed
// through the reservation so both end together.  It returns the closed
// sale and, when linked, the closed reservation.
func (m *Machine) CloseBySale(ctx context.Context, saleID uint64) (model.Sale, *model.Reservation, error) {
	s, err := m.ledger.Get(saleID)
	if err != nil {
		return model.Sale{}, nil, err
	}
	if s.Status == model.SaleClosed {
		return model.Sale{}, nil, apperr.New(apperr.KindAlreadyClosed, "sale %d is closed", saleID)
	}
	if s.ReservationID == 0 {
		s, err = m.ledger.Close(ctx, saleID)
		return s, nil, err
	}
	r, closed, err := m.closeReservation(ctx, s.ReservationID)
	if err != nil {
		return model.Sale{}, nil, err
	}
	return closed, &r, nil
}

// Get returns a copy of a reservation.
func (m *Machine) Get(id uint64) (model.Reservation, error) {
	m.mu.RLock()
	r, ok := m.reservations[id]
	m.mu.RUnlock()
	if !ok {
		return model.Reservation{}, apperr.NotFound("reservation %d not found", id)
	}
	return r.Clone(), nil
}

// List returns copies of the matching reservations ordered by id.
func (m *Machine) List(f Filter) []model.Reservation {
	m.mu.RLock()
	out := make([]model.Reservation, 0)
	for _, r := range m.reservations {
		if f.BranchID != 0 && r.BranchID != f.BranchID {
			continue
		}
		if f.CustomerID != 0 && r.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the ACCEPTED and STARTED reservations of a branch whose
// window overlaps [from, to).
func (m *Machine) Active(branchID uint64, from, to time.Time) []model.Reservation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, r := range m.reservations {
		if r.BranchID != branchID || !r.Overlaps(from, to) {
			continue
		}
		if r.Status == model.ReservationAccepted || r.Status == model.ReservationStarted {
			out = append(out, r.Clone())
		}
	}
	return out
}
