// Package sales implements the sale ledger.  Every mutation runs behind
// the per-sale lock and works on a copy of the committed sale; the copy
// replaces the committed value only when the whole operation succeeded,
// so callers never observe a half-applied change.
package sales

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/keylock"
	"github.com/iliyamo/restaurant-sales-engine/internal/metrics"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	"github.com/iliyamo/restaurant-sales-engine/internal/tax"
)

// TableBinder is the part of the table registry the ledger needs.
type TableBinder interface {
	Bind(ctx context.Context, saleID, branchID uint64, ids []uint64) error
	Rebind(ctx context.Context, saleID, branchID uint64, ids []uint64) error
	Unbind(saleID uint64)
	Lookup(ids []uint64) ([]model.Table, error)
}

// Journal persists committed sales.
type Journal interface {
	SaveSale(ctx context.Context, s model.Sale) error
}

// CreateInput describes a new sale.
type CreateInput struct {
	BranchID      uint64
	CustomerID    uint64
	ByClient      bool
	ReservationID uint64
	TableIDs      []uint64
	Taxes         []model.Tax
	Note          string
}

// ProductInput describes a product added to a sale.
type ProductInput struct {
	ProductID uint64          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Amount    int             `json:"amount"`
}

// Filter selects sales in List.  Zero fields match everything.
type Filter struct {
	BranchID uint64
	Status   model.SaleStatus
}

// Ledger owns every sale.
type Ledger struct {
	locks  *keylock.Locker
	tables TableBinder

	mu    sync.RWMutex
	sales map[uint64]model.Sale

	nextSale atomic.Uint64
	nextLine atomic.Uint64
	nextTax  atomic.Uint64

	journal Journal
	log     zerolog.Logger
	now     func() time.Time
}

// NewLedger returns an empty ledger.  journal may be nil.
func NewLedger(locks *keylock.Locker, tables TableBinder, journal Journal, log zerolog.Logger) *Ledger {
	return &Ledger{
		locks:   locks,
		tables:  tables,
		sales:   make(map[uint64]model.Sale),
		journal: journal,
		log:     log.With().Str("component", "sales").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads persisted sales.  Id counters continue after the highest
// restored ids.  Table bindings are restored separately by the registry.
func (l *Ledger) Restore(sales []model.Sale) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range sales {
		s = s.Clone()
		refresh(&s)
		l.sales[s.ID] = s
		bumpTo(&l.nextSale, s.ID)
		for _, p := range s.Products {
			bumpTo(&l.nextLine, p.ID)
		}
		for _, t := range s.Taxes {
			bumpTo(&l.nextTax, t.ID)
		}
	}
}

func bumpTo(c *atomic.Uint64, v uint64) {
	if v > c.Load() {
		c.Store(v)
	}
}

func saleKey(id uint64) string { return fmt.Sprintf("sale:%d", id) }

// refresh recomputes the derived totals.
func refresh(s *model.Sale) {
	s.Subtotal = tax.Subtotal(s.Products)
	s.Total = tax.Total(s.Subtotal, s.Taxes)
}

// Create opens a sale bound to the given tables.  Taxes are copied into
// the sale and numbered by the ledger.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (model.Sale, error) {
	if in.BranchID == 0 {
		return model.Sale{}, apperr.Validation("branch_id is required")
	}
	taxes := make([]model.Tax, 0, len(in.Taxes))
	for _, t := range in.Taxes {
		if err := tax.Validate(t); err != nil {
			return model.Sale{}, err
		}
		t.ID = l.nextTax.Add(1)
		taxes = append(taxes, t)
	}
	tableIDs := append([]uint64(nil), in.TableIDs...)
	tbls, err := l.tables.Lookup(tableIDs)
	if err != nil {
		return model.Sale{}, err
	}

	id := l.nextSale.Add(1)
	unlock, err := l.locks.Lock(ctx, saleKey(id))
	if err != nil {
		return model.Sale{}, err
	}
	defer unlock()

	if err := l.tables.Bind(ctx, id, in.BranchID, tableIDs); err != nil {
		return model.Sale{}, err
	}
	s := model.Sale{
		ID:            id,
		BranchID:      in.BranchID,
		CustomerID:    in.CustomerID,
		ByClient:      in.ByClient,
		ReservationID: in.ReservationID,
		Status:        model.SaleOngoing,
		StartTime:     l.now(),
		Note:          in.Note,
		Tables:        tbls,
		Products:      make([]model.SaleProductLine, 0),
		Taxes:         taxes,
	}
	refresh(&s)
	l.commit(ctx, s, "create")
	l.log.Info().Uint64("sale_id", id).Uint64("branch_id", in.BranchID).Uints64("tables", tableIDs).Msg("sale opened")
	return s.Clone(), nil
}

// mutate applies fn to a copy of an ongoing sale and commits the copy.
func (l *Ledger) mutate(ctx context.Context, id uint64, op string, fn func(s *model.Sale) error) (model.Sale, error) {
	unlock, err := l.locks.Lock(ctx, saleKey(id))
	if err != nil {
		return model.Sale{}, err
	}
	defer unlock()

	cur, err := l.Get(id)
	if err != nil {
		return model.Sale{}, err
	}
	if cur.Status == model.SaleClosed {
		return model.Sale{}, apperr.New(apperr.KindAlreadyClosed, "sale %d is closed", id)
	}
	if err := fn(&cur); err != nil {
		return model.Sale{}, err
	}
	refresh(&cur)
	l.commit(ctx, cur, op)
	return cur.Clone(), nil
}

func (l *Ledger) commit(ctx context.Context, s model.Sale, op string) {
	l.mu.Lock()
	l.sales[s.ID] = s
	l.mu.Unlock()
	metrics.SaleMutations.WithLabelValues(op).Inc()
	if l.journal != nil {
		if err := l.journal.SaveSale(ctx, s); err != nil {
			metrics.JournalErrors.WithLabelValues("sale").Inc()
			l.log.Error().Err(err).Uint64("sale_id", s.ID).Str("op", op).Msg("journal save failed")
		}
	}
}

// AddProduct adds a product line.  A line for the same product is merged
// by incrementing its amount; its frozen price is kept.
func (l *Ledger) AddProduct(ctx context.Context, saleID uint64, in ProductInput) (model.Sale, error) {
	if in.ProductID == 0 {
		return model.Sale{}, apperr.Validation("product_id is required")
	}
	if in.Amount <= 0 {
		return model.Sale{}, apperr.Validation("amount must be >= 1")
	}
	if in.Price.IsNegative() {
		return model.Sale{}, apperr.Validation("price must be >= 0")
	}
	return l.mutate(ctx, saleID, "add_product", func(s *model.Sale) error {
		for i := range s.Products {
			if s.Products[i].ProductID == in.ProductID {
				s.Products[i].Amount += in.Amount
				return nil
			}
		}
		s.Products = append(s.Products, model.SaleProductLine{
			ID:        l.nextLine.Add(1),
			SaleID:    saleID,
			ProductID: in.ProductID,
			Name:      strings.TrimSpace(in.Name),
			Price:     in.Price,
			Amount:    in.Amount,
		})
		return nil
	})
}

func lineIndex(s *model.Sale, lineID uint64) int {
	for i := range s.Products {
		if s.Products[i].ID == lineID {
			return i
		}
	}
	return -1
}

// UpdateProductAmount sets the amount of a line.  Zero is rejected; use
// RemoveProduct instead.
func (l *Ledger) UpdateProductAmount(ctx context.Context, saleID, lineID uint64, amount int) (model.Sale, error) {
	if amount <= 0 {
		return model.Sale{}, apperr.Validation("amount must be >= 1")
	}
	return l.mutate(ctx, saleID, "update_product", func(s *model.Sale) error {
		i := lineIndex(s, lineID)
		if i < 0 {
			return apperr.NotFound("product line %d not found in sale %d", lineID, saleID)
		}
		s.Products[i].Amount = amount
		return nil
	})
}

// RemoveProduct deletes a line.
func (l *Ledger) RemoveProduct(ctx context.Context, saleID, lineID uint64) (model.Sale, error) {
	return l.mutate(ctx, saleID, "remove_product", func(s *model.Sale) error {
		i := lineIndex(s, lineID)
		if i < 0 {
			return apperr.NotFound("product line %d not found in sale %d", lineID, saleID)
		}
		s.Products = append(s.Products[:i], s.Products[i+1:]...)
		return nil
	})
}

func taxIndex(s *model.Sale, taxID uint64) int {
	for i := range s.Taxes {
		if s.Taxes[i].ID == taxID {
			return i
		}
	}
	return -1
}

// AddTax adds a sale-scoped tax.
func (l *Ledger) AddTax(ctx context.Context, saleID uint64, t model.Tax) (model.Sale, error) {
	if err := tax.Validate(t); err != nil {
		return model.Sale{}, err
	}
	return l.mutate(ctx, saleID, "add_tax", func(s *model.Sale) error {
		t.ID = l.nextTax.Add(1)
		s.Taxes = append(s.Taxes, t)
		return nil
	})
}

// UpdateTax applies a patch to a tax of the sale.
func (l *Ledger) UpdateTax(ctx context.Context, saleID, taxID uint64, patch model.TaxPatch) (model.Sale, error) {
	return l.mutate(ctx, saleID, "update_tax", func(s *model.Sale) error {
		i := taxIndex(s, taxID)
		if i < 0 {
			return apperr.NotFound("tax %d not found in sale %d", taxID, saleID)
		}
		t := s.Taxes[i]
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.Value != nil {
			t.Value = *patch.Value
		}
		if patch.IsPercentage != nil {
			t.IsPercentage = *patch.IsPercentage
		}
		if err := tax.Validate(t); err != nil {
			return err
		}
		s.Taxes[i] = t
		return nil
	})
}

// RemoveTax deletes a tax of the sale.
func (l *Ledger) RemoveTax(ctx context.Context, saleID, taxID uint64) (model.Sale, error) {
	return l.mutate(ctx, saleID, "remove_tax", func(s *model.Sale) error {
		i := taxIndex(s, taxID)
		if i < 0 {
			return apperr.NotFound("tax %d not found in sale %d", taxID, saleID)
		}
		s.Taxes = append(s.Taxes[:i], s.Taxes[i+1:]...)
		return nil
	})
}

// UpdateNote replaces the staff note.
func (l *Ledger) UpdateNote(ctx context.Context, saleID uint64, note string) (model.Sale, error) {
	return l.mutate(ctx, saleID, "update_note", func(s *model.Sale) error {
		s.Note = note
		return nil
	})
}

// RebindTables replaces the table set of the sale.  The registry change
// is the last step so that a failure leaves both sides untouched.
func (l *Ledger) RebindTables(ctx context.Context, saleID uint64, tableIDs []uint64) (model.Sale, error) {
	return l.mutate(ctx, saleID, "rebind_tables", func(s *model.Sale) error {
		tbls, err := l.tables.Lookup(tableIDs)
		if err != nil {
			return err
		}
		if err := l.tables.Rebind(ctx, saleID, s.BranchID, tableIDs); err != nil {
			return err
		}
		s.Tables = tbls
		return nil
	})
}

// Close ends an ongoing sale and frees its tables.  Closing a closed sale
// fails with AlreadyClosed and changes nothing.
func (l *Ledger) Close(ctx context.Context, saleID uint64) (model.Sale, error) {
	return l.finish(ctx, saleID, false)
}

// Void ends an ongoing sale without charging it.
func (l *Ledger) Void(ctx context.Context, saleID uint64) (model.Sale, error) {
	return l.finish(ctx, saleID, true)
}

func (l *Ledger) finish(ctx context.Context, saleID uint64, voided bool) (model.Sale, error) {
	op := "close"
	if voided {
		op = "void"
	}
	s, err := l.mutate(ctx, saleID, op, func(s *model.Sale) error {
		end := l.now()
		s.EndTime = &end
		s.Status = model.SaleClosed
		s.Voided = voided
		l.tables.Unbind(saleID)
		return nil
	})
	if err != nil {
		return model.Sale{}, err
	}
	l.log.Info().Uint64("sale_id", saleID).Bool("voided", voided).Str("total", s.Total.String()).Msg("sale closed")
	return s, nil
}

// Get returns a copy of a sale.
func (l *Ledger) Get(id uint64) (model.Sale, error) {
	l.mu.RLock()
	s, ok := l.sales[id]
	l.mu.RUnlock()
	if !ok {
		return model.Sale{}, apperr.NotFound("sale %d not found", id)
	}
	return s.Clone(), nil
}

// List returns copies of the matching sales ordered by id.
func (l *Ledger) List(f Filter) []model.Sale {
	l.mu.RLock()
	out := make([]model.Sale, 0)
	for _, s := range l.sales {
		if f.BranchID != 0 && s.BranchID != f.BranchID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
