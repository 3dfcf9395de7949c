// Package queue defines the domain events exchanged over the message
// broker and the audit consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// Queue (RabbitMQ) and topic (Kafka) names.
const (
	ReservationStatusChanged = "reservation.status_changed"
	SaleClosed               = "sale.closed"
)

// ReservationStatusChangedEvent is published after every committed
// reservation transition, including creation (From is empty).
type ReservationStatusChangedEvent struct {
	EventID       string `json:"event_id"`
	ReservationID uint64 `json:"reservation_id"`
	BranchID      uint64 `json:"branch_id"`
	CustomerID    uint64 `json:"customer_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Reason        string `json:"reason,omitempty"`
	SaleID        uint64 `json:"sale_id,omitempty"`
	ChangedAt     string `json:"changed_at"`
}

// SaleClosedEvent is published when a sale is closed or voided.
type SaleClosedEvent struct {
	EventID       string   `json:"event_id"`
	SaleID        uint64   `json:"sale_id"`
	BranchID      uint64   `json:"branch_id"`
	ReservationID uint64   `json:"reservation_id,omitempty"`
	TableIDs      []uint64 `json:"table_ids"`
	Subtotal      string   `json:"subtotal"`
	Total         string   `json:"total"`
	Voided        bool     `json:"voided"`
	ClosedAt      string   `json:"closed_at"`
}

// NewReservationStatusChanged builds the event for r having left from.
func NewReservationStatusChanged(r model.Reservation, from model.ReservationStatus) ReservationStatusChangedEvent {
	return ReservationStatusChangedEvent{
		EventID:       uuid.NewString(),
		ReservationID: r.ID,
		BranchID:      r.BranchID,
		CustomerID:    r.CustomerID,
		From:          string(from),
		To:            string(r.Status),
		Reason:        r.Reason,
		SaleID:        r.SaleID,
		ChangedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewSaleClosed builds the event for a closed sale.  Amounts are rounded
// to cents.
func NewSaleClosed(s model.Sale) SaleClosedEvent {
	closedAt := time.Now().UTC()
	if s.EndTime != nil {
		closedAt = s.EndTime.UTC()
	}
	return SaleClosedEvent{
		EventID:       uuid.NewString(),
		SaleID:        s.ID,
		BranchID:      s.BranchID,
		ReservationID: s.ReservationID,
		TableIDs:      s.TableIDs(),
		Subtotal:      s.Subtotal.StringFixed(2),
		Total:         s.Total.StringFixed(2),
		Voided:        s.Voided,
		ClosedAt:      closedAt.Format(time.RFC3339),
	}
}
