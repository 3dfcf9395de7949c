package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SaleOngoing SaleStatus = "ONGOING"
	SaleClosed  SaleStatus = "CLOSED"
)

// SaleProductLine is one product on a sale.  Price is the unit price
// captured when the product was first added; later catalog price changes
// do not affect it.  Amount is always at least one.
type SaleProductLine struct {
	ID        uint64          `json:"id"`
	SaleID    uint64          `json:"sale_id"`
	ProductID uint64          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Amount    int             `json:"amount"`
}

// Sale is a point-of-sale transaction occupying zero or more tables.
//
// Fields:
//  ID            – identifier assigned by the sale ledger.
//  BranchID      – branch the sale runs in.
//  CustomerID    – client or guest the sale is for (zero for walk-ins).
//  ByClient      – true when CustomerID refers to a registered client.
//  ReservationID – reservation that started the sale (zero if none).
//  Status        – ONGOING until closed or voided.
//  Voided        – closed without charging (reservation retired).
//  StartTime     – when the sale was opened.
//  EndTime       – set exactly once, when the sale is closed.
//  Note          – free-form staff note.
//  Tables        – tables bound to the sale while it is ongoing.
//  Products      – product lines.
//  Taxes         – sale-scoped taxes.
//  Subtotal      – Σ price × amount, kept current by the ledger.
//  Total         – subtotal plus every tax computed on the subtotal.
type Sale struct {
	ID            uint64            `json:"id"`
	BranchID      uint64            `json:"branch_id"`
	CustomerID    uint64            `json:"customer_id"`
	ByClient      bool              `json:"by_client"`
	ReservationID uint64            `json:"reservation_id,omitempty"`
	Status        SaleStatus        `json:"status"`
	Voided        bool              `json:"voided"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       *time.Time        `json:"end_time"`
	Note          string            `json:"note"`
	Tables        []Table           `json:"tables"`
	Products      []SaleProductLine `json:"products"`
	Taxes         []Tax             `json:"taxes"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Total         decimal.Decimal   `json:"total"`
}

// TableIDs returns the ids of the bound tables in binding order.
func (s *Sale) TableIDs() []uint64 {
	ids := make([]uint64, 0, len(s.Tables))
	for _, t := range s.Tables {
		ids = append(ids, t.ID)
	}
	return ids
}

// Clone returns a deep copy so that a committed sale is never mutated in
// place.
func (s Sale) Clone() Sale {
	out := s
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	out.Tables = append(make([]Table, 0, len(s.Tables)), s.Tables...)
	out.Products = append(make([]SaleProductLine, 0, len(s.Products)), s.Products...)
	out.Taxes = append(make([]Tax, 0, len(s.Taxes)), s.Taxes...)
	return out
}
