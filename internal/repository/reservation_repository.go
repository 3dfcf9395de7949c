package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// ReservationRepo journals reservations.  Requested table ids are kept
// as a JSON array in a single column; they are never queried by value.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to db.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// SaveReservation upserts a reservation.
func (r *ReservationRepo) SaveReservation(ctx context.Context, res model.Reservation) error {
	ids := res.TableIDs
	if ids == nil {
		ids = []uint64{}
	}
	tableIDs, err := json.Marshal(ids)
	if err != nil {
		return wrap("save reservation", err)
	}
	const q = `INSERT INTO reservations
		(id, branch_id, customer_id, by_client, request_date, date_in, date_out, price, status,
		 table_number, table_ids, client_number, occasion, reason, sale_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), reason = VALUES(reason),
		sale_id = VALUES(sale_id), updated_at = VALUES(updated_at)`
	_, err = r.db.ExecContext(ctx, q,
		res.ID, res.BranchID, res.CustomerID, res.ByClient, res.RequestDate, res.DateIn, res.DateOut, res.Price,
		string(res.Status), res.TableNumber, string(tableIDs), res.ClientNumber, res.Occasion, res.Reason,
		res.SaleID, res.UpdatedAt,
	)
	return wrap("save reservation", err)
}

var reservationStatuses = map[model.ReservationStatus]bool{
	model.ReservationPending:  true,
	model.ReservationAccepted: true,
	model.ReservationRejected: true,
	model.ReservationRetired:  true,
	model.ReservationStarted:  true,
	model.ReservationClosed:   true,
	model.ReservationCanceled: true,
	model.ReservationReturned: true,
}

// ListReservations loads every stored reservation ordered by id.
func (r *ReservationRepo) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, branch_id, customer_id, by_client, request_date, date_in, date_out,
		price, status, table_number, table_ids, client_number, occasion, reason, sale_id, updated_at
		FROM reservations ORDER BY id`)
	if err != nil {
		return nil, wrap("list reservations", err)
	}
	defer rows.Close()

	out := make([]model.Reservation, 0)
	for rows.Next() {
		var (
			res      model.Reservation
			status   string
			tableIDs string
		)
		if err := rows.Scan(&res.ID, &res.BranchID, &res.CustomerID, &res.ByClient, &res.RequestDate, &res.DateIn,
			&res.DateOut, &res.Price, &status, &res.TableNumber, &tableIDs, &res.ClientNumber, &res.Occasion,
			&res.Reason, &res.SaleID, &res.UpdatedAt); err != nil {
			return nil, wrap("scan reservation", err)
		}
		res.Status = model.ReservationStatus(status)
		if !reservationStatuses[res.Status] {
			return nil, wrap("scan reservation", fmt.Errorf("%w: reservation %d has status %q", ErrCorruptRow, res.ID, status))
		}
		if tableIDs != "" {
			if err := json.Unmarshal([]byte(tableIDs), &res.TableIDs); err != nil {
				return nil, wrap("scan reservation", fmt.Errorf("%w: reservation %d table_ids: %v", ErrCorruptRow, res.ID, err))
			}
		}
		if len(res.TableIDs) == 0 {
			res.TableIDs = nil
		}
		out = append(out, res)
	}
	return out, wrap("list reservations", rows.Err())
}
