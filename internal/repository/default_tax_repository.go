package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// DefaultTaxRepo journals the default tax template of each branch.
type DefaultTaxRepo struct {
	db *sql.DB
}

// NewDefaultTaxRepo returns a DefaultTaxRepo bound to db.
func NewDefaultTaxRepo(db *sql.DB) *DefaultTaxRepo { return &DefaultTaxRepo{db: db} }

// SaveDefaultTaxes replaces the stored template of a branch.  An empty
// list clears it.
func (r *DefaultTaxRepo) SaveDefaultTaxes(ctx context.Context, branchID uint64, taxes []model.Tax) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save default taxes", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = wrap("save default taxes", err)
			return
		}
		err = wrap("save default taxes", tx.Commit())
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM default_taxes WHERE branch_id = ?`, branchID); err != nil {
		return err
	}
	if len(taxes) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(taxes)*5)
	for _, t := range taxes {
		args = append(args, branchID, t.ID, t.Name, t.Value, t.IsPercentage)
	}
	q := "INSERT INTO default_taxes (branch_id, id, name, value, is_percentage) VALUES " + placeholders(len(taxes), 5)
	_, err = tx.ExecContext(ctx, q, args...)
	return err
}

// ListDefaultTaxes returns every stored template keyed by branch.
func (r *DefaultTaxRepo) ListDefaultTaxes(ctx context.Context) (map[uint64][]model.Tax, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT branch_id, id, name, value, is_percentage FROM default_taxes ORDER BY branch_id, id`)
	if err != nil {
		return nil, wrap("list default taxes", err)
	}
	defer rows.Close()

	out := make(map[uint64][]model.Tax)
	for rows.Next() {
		var (
			branchID uint64
			t        model.Tax
		)
		if err := rows.Scan(&branchID, &t.ID, &t.Name, &t.Value, &t.IsPercentage); err != nil {
			return nil, wrap("scan default tax", err)
		}
		out[branchID] = append(out[branchID], t)
	}
	return out, wrap("list default taxes", rows.Err())
}
