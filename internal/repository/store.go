package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// Store bundles the journals over one connection pool.  It satisfies the
// journal interfaces of the table registry, the sale ledger, the
// reservation machine and the default tax templates.
type Store struct {
	*TableRepo
	*SaleRepo
	*ReservationRepo
	*DefaultTaxRepo
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		TableRepo:       NewTableRepo(db),
		SaleRepo:        NewSaleRepo(db),
		ReservationRepo: NewReservationRepo(db),
		DefaultTaxRepo:  NewDefaultTaxRepo(db),
	}
}

// Snapshot is the journal content read back at boot.
type Snapshot struct {
	Tables       []model.Table
	Sales        []model.Sale
	Reservations []model.Reservation
	DefaultTaxes map[uint64][]model.Tax
}

// Bindings returns sale id -> table ids for every ongoing sale.
func (s Snapshot) Bindings() map[uint64][]uint64 {
	out := make(map[uint64][]uint64)
	for _, sale := range s.Sales {
		if sale.Status == model.SaleOngoing && len(sale.Tables) > 0 {
			out[sale.ID] = sale.TableIDs()
		}
	}
	return out
}

// Load reads everything back.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	sales, err := s.ListSales(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	reservations, err := s.ListReservations(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defaults, err := s.ListDefaultTaxes(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Tables: tables, Sales: sales, Reservations: reservations, DefaultTaxes: defaults}, nil
}
