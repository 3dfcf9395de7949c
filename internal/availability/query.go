// Package availability answers read-only questions about table
// occupancy.  It composes the table registry, the sale ledger and the
// reservation machine and never mutates any of them.
package availability

import (
	"time"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// Tables is the read side of the table registry.
type Tables interface {
	Get(id uint64) (model.Table, error)
	ListByBranch(branchID uint64) []model.Table
	Bindings(branchID uint64) map[uint64]uint64
}

// Sales resolves the sale a table is bound to.
type Sales interface {
	Get(id uint64) (model.Sale, error)
}

// Reservations lists reservations holding tables over a window.
type Reservations interface {
	Active(branchID uint64, from, to time.Time) []model.Reservation
}

// Query is the availability read model.
type Query struct {
	tables       Tables
	sales        Sales
	reservations Reservations
}

// New returns a Query.  reservations may be nil, in which case only live
// sales are considered.
func New(tables Tables, sales Sales, reservations Reservations) *Query {
	return &Query{tables: tables, sales: sales, reservations: reservations}
}

func checkWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return apperr.Validation("from and to are required")
	}
	if !to.After(from) {
		return apperr.Validation("to must be after from")
	}
	return nil
}

// busy returns the tables of a branch that are taken over [from, to):
// bound to an ongoing sale that started before to, or promised to an
// accepted reservation overlapping the window.  A started reservation
// holds whatever its sale is bound to, which the bindings already cover.
func (q *Query) busy(branchID uint64, from, to time.Time) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for tableID, saleID := range q.tables.Bindings(branchID) {
		s, err := q.sales.Get(saleID)
		if err != nil || s.Status != model.SaleOngoing {
			continue
		}
		if s.StartTime.Before(to) {
			out[tableID] = struct{}{}
		}
	}
	if q.reservations == nil {
		return out
	}
	for _, r := range q.reservations.Active(branchID, from, to) {
		if r.Status != model.ReservationAccepted {
			continue
		}
		for _, id := range r.TableIDs {
			out[id] = struct{}{}
		}
	}
	return out
}

// IsTableFree reports whether a table can be used over [from, to).
func (q *Query) IsTableFree(tableID uint64, from, to time.Time) (bool, error) {
	if err := checkWindow(from, to); err != nil {
		return false, err
	}
	t, err := q.tables.Get(tableID)
	if err != nil {
		return false, err
	}
	_, taken := q.busy(t.BranchID, from, to)[tableID]
	return !taken, nil
}

// FreeTables lists the tables of a branch free over [from, to).
func (q *Query) FreeTables(branchID uint64, from, to time.Time) ([]model.Table, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	taken := q.busy(branchID, from, to)
	out := make([]model.Table, 0)
	for _, t := range q.tables.ListByBranch(branchID) {
		if _, ok := taken[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListOccupiedTables lists the tables of a branch bound to an ongoing
// sale right now, ordered by id.
func (q *Query) ListOccupiedTables(branchID uint64) []model.Table {
	bound := q.tables.Bindings(branchID)
	out := make([]model.Table, 0, len(bound))
	for _, t := range q.tables.ListByBranch(branchID) {
		if _, ok := bound[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Capacity returns how many more tables a branch can promise over
// [from, to): the free tables less those owed to accepted reservations
// that asked for a count rather than specific tables.
func (q *Query) Capacity(branchID uint64, from, to time.Time) (int, error) {
	free, err := q.FreeTables(branchID, from, to)
	if err != nil {
		return 0, err
	}
	n := len(free)
	if q.reservations != nil {
		for _, r := range q.reservations.Active(branchID, from, to) {
			if r.Status == model.ReservationAccepted && len(r.TableIDs) == 0 {
				n -= r.TableNumber
			}
		}
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}
