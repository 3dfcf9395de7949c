package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the state of a reservation in its transition graph.
type ReservationStatus string

const (
	ReservationPending  ReservationStatus = "PENDING"
	ReservationAccepted ReservationStatus = "ACCEPTED"
	ReservationRejected ReservationStatus = "REJECTED"
	ReservationRetired  ReservationStatus = "RETIRED"
	ReservationStarted  ReservationStatus = "STARTED"
	ReservationClosed   ReservationStatus = "CLOSED"
	ReservationCanceled ReservationStatus = "CANCELED"
	ReservationReturned ReservationStatus = "RETURNED"
)

// Terminal reports whether no transition leaves s.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationRejected, ReservationRetired, ReservationCanceled, ReservationClosed, ReservationReturned:
		return true
	}
	return false
}

// Reservation records a booking request for a future time window.  It is
// independent of any sale until it is started.
//
// Fields:
//  ID           – identifier assigned by the reservation machine.
//  BranchID     – branch being booked.
//  CustomerID   – guest or client who booked.
//  ByClient     – true when booked by a registered client.
//  RequestDate  – when the request was received.
//  DateIn       – start of the booked window.
//  DateOut      – end of the booked window, always after DateIn.
//  Price        – booking price.
//  Status       – current state.
//  TableNumber  – number of tables requested.
//  TableIDs     – specific tables requested (optional).
//  ClientNumber – party size.
//  Occasion     – free-form occasion label.
//  Reason       – reason given when rejected, canceled or retired.
//  SaleID       – sale created when started (zero before).
//  UpdatedAt    – last transition timestamp.
type Reservation struct {
	ID           uint64            `json:"id"`
	BranchID     uint64            `json:"branch_id"`
	CustomerID   uint64            `json:"customer_id"`
	ByClient     bool              `json:"by_client"`
	RequestDate  time.Time         `json:"request_date"`
	DateIn       time.Time         `json:"date_in"`
	DateOut      time.Time         `json:"date_out"`
	Price        decimal.Decimal   `json:"price"`
	Status       ReservationStatus `json:"status"`
	TableNumber  int               `json:"table_number"`
	TableIDs     []uint64          `json:"table_ids,omitempty"`
	ClientNumber int               `json:"client_number"`
	Occasion     string            `json:"occasion"`
	Reason       string            `json:"reason,omitempty"`
	SaleID       uint64            `json:"sale_id,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Overlaps reports whether the reservation window intersects [from, to).
func (r *Reservation) Overlaps(from, to time.Time) bool {
	return r.DateIn.Before(to) && from.Before(r.DateOut)
}

// Clone returns a deep copy.
func (r Reservation) Clone() Reservation {
	out := r
	out.TableIDs = append([]uint64(nil), r.TableIDs...)
	return out
}
