package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// TableRepo journals restaurant tables.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo returns a TableRepo bound to db.
func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

// SaveTable inserts a table or updates its name.
func (r *TableRepo) SaveTable(ctx context.Context, t model.Table) error {
	const q = `INSERT INTO restaurant_tables (id, branch_id, name, created_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.BranchID, t.Name, t.CreatedAt)
	return wrap("save table", err)
}

// DeleteTable removes a table.  Deleting a missing table is not an error.
func (r *TableRepo) DeleteTable(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM restaurant_tables WHERE id = ?`, id)
	return wrap("delete table", err)
}

// ListTables returns every stored table ordered by id.
func (r *TableRepo) ListTables(ctx context.Context) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, branch_id, name, created_at FROM restaurant_tables ORDER BY id`)
	if err != nil {
		return nil, wrap("list tables", err)
	}
	defer rows.Close()

	out := make([]model.Table, 0)
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.BranchID, &t.Name, &t.CreatedAt); err != nil {
			return nil, wrap("scan table", err)
		}
		out = append(out, t)
	}
	return out, wrap("list tables", rows.Err())
}
