package model

import "github.com/shopspring/decimal"

// Tax is either a percentage of a sale subtotal or a fixed amount.  Taxes
// live inside a sale, or inside a branch as default taxes which are copied
// into every new sale and are independent from then on.
//
// Fields:
//  ID           – identifier, unique within its owner.
//  Name         – label shown on receipts.
//  Value        – percent when IsPercentage, otherwise a currency amount.
//  IsPercentage – selects how Value is applied.
type Tax struct {
	ID           uint64          `json:"id"`
	Name         string          `json:"name"`
	Value        decimal.Decimal `json:"value"`
	IsPercentage bool            `json:"is_percentage"`
}

// TaxPatch carries the optional fields of a tax update.  Nil fields keep
// their current value.
type TaxPatch struct {
	Name         *string          `json:"name"`
	Value        *decimal.Decimal `json:"value"`
	IsPercentage *bool            `json:"is_percentage"`
}
