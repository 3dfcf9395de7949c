package model

import "time"

// Table is a physical table of a branch.  Its identity never changes;
// the name is the only mutable, display-only attribute.  A table can be
// deleted only while it is not bound to an ongoing sale.
//
// Fields:
//  ID        – identifier assigned by the table registry.
//  BranchID  – branch the table belongs to.
//  Name      – display name, unique per branch.
//  CreatedAt – registration timestamp.
type Table struct {
	ID        uint64    `json:"id"`         // tables.id
	BranchID  uint64    `json:"branch_id"`  // tables.branch_id
	Name      string    `json:"name"`       // tables.name
	CreatedAt time.Time `json:"created_at"` // tables.created_at
}
