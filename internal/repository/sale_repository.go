package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// SaleRepo journals sales together with their product lines, taxes and
// table bindings.  A save rewrites the child rows of the sale inside one
// transaction so the stored sale always matches one committed snapshot.
type SaleRepo struct {
	db *sql.DB
}

// NewSaleRepo returns a SaleRepo bound to db.
func NewSaleRepo(db *sql.DB) *SaleRepo { return &SaleRepo{db: db} }

// placeholders returns "(?, ?), (?, ?)" style groups for a bulk insert.
func placeholders(rows, cols int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = group
	}
	return strings.Join(parts, ", ")
}

// SaveSale upserts s and replaces its child rows.
func (r *SaleRepo) SaveSale(ctx context.Context, s model.Sale) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save sale", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = wrap("save sale", err)
			return
		}
		err = wrap("save sale", tx.Commit())
	}()

	var end sql.NullTime
	if s.EndTime != nil {
		end = sql.NullTime{Time: *s.EndTime, Valid: true}
	}
	const upsert = `INSERT INTO sales
		(id, branch_id, customer_id, by_client, reservation_id, status, voided, start_time, end_time, note, subtotal, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), voided = VALUES(voided), end_time = VALUES(end_time),
		note = VALUES(note), subtotal = VALUES(subtotal), total = VALUES(total)`
	if _, err = tx.ExecContext(ctx, upsert,
		s.ID, s.BranchID, s.CustomerID, s.ByClient, s.ReservationID, string(s.Status), s.Voided,
		s.StartTime, end, s.Note, s.Subtotal, s.Total,
	); err != nil {
		return err
	}

	for _, table := range []string{"sale_products", "sale_taxes", "sale_tables"} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE sale_id = ?", table), s.ID); err != nil {
			return err
		}
	}

	if len(s.Products) > 0 {
		args := make([]interface{}, 0, len(s.Products)*6)
		for _, p := range s.Products {
			args = append(args, p.ID, s.ID, p.ProductID, p.Name, p.Price, p.Amount)
		}
		q := "INSERT INTO sale_products (id, sale_id, product_id, name, price, amount) VALUES " + placeholders(len(s.Products), 6)
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	if len(s.Taxes) > 0 {
		args := make([]interface{}, 0, len(s.Taxes)*6)
		for i, t := range s.Taxes {
			args = append(args, s.ID, t.ID, i, t.Name, t.Value, t.IsPercentage)
		}
		q := "INSERT INTO sale_taxes (sale_id, id, position, name, value, is_percentage) VALUES " + placeholders(len(s.Taxes), 6)
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	if len(s.Tables) > 0 {
		args := make([]interface{}, 0, len(s.Tables)*5)
		for i, t := range s.Tables {
			args = append(args, s.ID, t.ID, i, t.BranchID, t.Name)
		}
		q := "INSERT INTO sale_tables (sale_id, table_id, position, branch_id, name) VALUES " + placeholders(len(s.Tables), 5)
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// ListSales loads every stored sale with its child rows, ordered by id.
func (r *SaleRepo) ListSales(ctx context.Context) ([]model.Sale, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, branch_id, customer_id, by_client, reservation_id, status, voided,
		start_time, end_time, note, subtotal, total FROM sales ORDER BY id`)
	if err != nil {
		return nil, wrap("list sales", err)
	}
	out := make([]model.Sale, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var (
			s      model.Sale
			status string
			end    sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.BranchID, &s.CustomerID, &s.ByClient, &s.ReservationID, &status, &s.Voided,
			&s.StartTime, &end, &s.Note, &s.Subtotal, &s.Total); err != nil {
			rows.Close()
			return nil, wrap("scan sale", err)
		}
		switch model.SaleStatus(status) {
		case model.SaleOngoing, model.SaleClosed:
			s.Status = model.SaleStatus(status)
		default:
			rows.Close()
			return nil, wrap("scan sale", fmt.Errorf("%w: sale %d has status %q", ErrCorruptRow, s.ID, status))
		}
		if end.Valid {
			t := end.Time
			s.EndTime = &t
		}
		s.Tables = make([]model.Table, 0)
		s.Products = make([]model.SaleProductLine, 0)
		s.Taxes = make([]model.Tax, 0)
		index[s.ID] = len(out)
		out = append(out, s)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, wrap("list sales", err)
	}

	if err := r.loadProducts(ctx, out, index); err != nil {
		return nil, err
	}
	if err := r.loadTaxes(ctx, out, index); err != nil {
		return nil, err
	}
	if err := r.loadTables(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SaleRepo) loadProducts(ctx context.Context, sales []model.Sale, index map[uint64]int) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, sale_id, product_id, name, price, amount FROM sale_products ORDER BY sale_id, id`)
	if err != nil {
		return wrap("list sale products", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.SaleProductLine
		if err := rows.Scan(&p.ID, &p.SaleID, &p.ProductID, &p.Name, &p.Price, &p.Amount); err != nil {
			return wrap("scan sale product", err)
		}
		if i, ok := index[p.SaleID]; ok {
			sales[i].Products = append(sales[i].Products, p)
		}
	}
	return wrap("list sale products", rows.Err())
}

func (r *SaleRepo) loadTaxes(ctx context.Context, sales []model.Sale, index map[uint64]int) error {
	rows, err := r.db.QueryContext(ctx, `SELECT sale_id, id, name, value, is_percentage FROM sale_taxes ORDER BY sale_id, position`)
	if err != nil {
		return wrap("list sale taxes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			saleID uint64
			t      model.Tax
		)
		if err := rows.Scan(&saleID, &t.ID, &t.Name, &t.Value, &t.IsPercentage); err != nil {
			return wrap("scan sale tax", err)
		}
		if i, ok := index[saleID]; ok {
			sales[i].Taxes = append(sales[i].Taxes, t)
		}
	}
	return wrap("list sale taxes", rows.Err())
}

func (r *SaleRepo) loadTables(ctx context.Context, sales []model.Sale, index map[uint64]int) error {
	rows, err := r.db.QueryContext(ctx, `SELECT sale_id, table_id, branch_id, name FROM sale_tables ORDER BY sale_id, position`)
	if err != nil {
		return wrap("list sale tables", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			saleID uint64
			t      model.Table
		)
		if err := rows.Scan(&saleID, &t.ID, &t.BranchID, &t.Name); err != nil {
			return wrap("scan sale table", err)
		}
		if i, ok := index[saleID]; ok {
			sales[i].Tables = append(sales[i].Tables, t)
		}
	}
	return wrap("list sale tables", rows.Err())
}
