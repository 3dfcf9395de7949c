// Package tables implements the table registry: the single source of truth
// for which tables exist and which ongoing sale, if any, each table is
// bound to.  A table is bound to at most one sale at a time; every
// binding change is atomic under the registry's own mutex.
package tables

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/metrics"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// Journal persists table changes.  Bindings are not journaled here: they
// are part of the sale record and are restored from ongoing sales.
type Journal interface {
	SaveTable(ctx context.Context, t model.Table) error
	DeleteTable(ctx context.Context, id uint64) error
}

// Registry tracks tables and their bindings.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	tables  map[uint64]model.Table
	binding map[uint64]uint64   // table id -> sale id
	bySale  map[uint64][]uint64 // sale id -> table ids, in binding order

	journal Journal
	log     zerolog.Logger
	now     func() time.Time
}

// NewRegistry returns an empty registry.  journal may be nil.
func NewRegistry(journal Journal, log zerolog.Logger) *Registry {
	return &Registry{
		tables:  make(map[uint64]model.Table),
		binding: make(map[uint64]uint64),
		bySale:  make(map[uint64][]uint64),
		journal: journal,
		log:     log.With().Str("component", "tables").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads persisted tables and the bindings of ongoing sales.  It
// must run before the registry serves requests.
func (r *Registry) Restore(tables []model.Table, bindings map[uint64][]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tables {
		r.tables[t.ID] = t
		if t.ID > r.nextID {
			r.nextID = t.ID
		}
	}
	for saleID, ids := range bindings {
		for _, id := range ids {
			r.binding[id] = saleID
		}
		r.bySale[saleID] = append([]uint64(nil), ids...)
	}
}

func normalizeName(name string) string { return strings.TrimSpace(name) }

// nameTaken must be called with r.mu held.
func (r *Registry) nameTaken(branchID uint64, name string, except uint64) bool {
	for _, t := range r.tables {
		if t.BranchID == branchID && t.ID != except && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// Register adds a table to a branch and assigns its id.
func (r *Registry) Register(ctx context.Context, branchID uint64, name string) (model.Table, error) {
	if err := ctx.Err(); err != nil {
		return model.Table{}, apperr.Wrap(apperr.KindCancelled, err, "register table")
	}
	name = normalizeName(name)
	if branchID == 0 {
		return model.Table{}, apperr.Validation("branch_id is required")
	}
	if name == "" {
		return model.Table{}, apperr.Validation("table name is required")
	}

	r.mu.Lock()
	if r.nameTaken(branchID, name, 0) {
		r.mu.Unlock()
		return model.Table{}, apperr.New(apperr.KindDuplicateName, "table %q already exists in branch %d", name, branchID)
	}
	r.nextID++
	t := model.Table{ID: r.nextID, BranchID: branchID, Name: name, CreatedAt: r.now()}
	r.tables[t.ID] = t
	r.mu.Unlock()

	r.save(ctx, t)
	return t, nil
}

// Rename changes the display name of a table.
func (r *Registry) Rename(ctx context.Context, id uint64, name string) (model.Table, error) {
	if err := ctx.Err(); err != nil {
		return model.Table{}, apperr.Wrap(apperr.KindCancelled, err, "rename table")
	}
	name = normalizeName(name)
	if name == "" {
		return model.Table{}, apperr.Validation("table name is required")
	}

	r.mu.Lock()
	t, ok := r.tables[id]
	if !ok {
		r.mu.Unlock()
		return model.Table{}, apperr.NotFound("table %d not found", id)
	}
	if r.nameTaken(t.BranchID, name, id) {
		r.mu.Unlock()
		return model.Table{}, apperr.New(apperr.KindDuplicateName, "table %q already exists in branch %d", name, t.BranchID)
	}
	t.Name = name
	r.tables[id] = t
	r.mu.Unlock()

	r.save(ctx, t)
	return t, nil
}

// Release deletes a table.  It fails with TableInUse while the table is
// bound to an ongoing sale.
func (r *Registry) Release(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindCancelled, err, "release table")
	}
	r.mu.Lock()
	if _, ok := r.tables[id]; !ok {
		r.mu.Unlock()
		return apperr.NotFound("table %d not found", id)
	}
	if saleID, bound := r.binding[id]; bound {
		r.mu.Unlock()
		return apperr.New(apperr.KindTableInUse, "table %d is bound to ongoing sale %d", id, saleID)
	}
	delete(r.tables, id)
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.DeleteTable(ctx, id); err != nil {
			metrics.JournalErrors.WithLabelValues("table").Inc()
			r.log.Error().Err(err).Uint64("table_id", id).Msg("journal delete failed")
		}
	}
	return nil
}

// checkBindable validates ids for binding to saleID.  Must be called with
// r.mu held.  When branchID is non-zero every table must belong to it.
func (r *Registry) checkBindable(saleID, branchID uint64, ids []uint64) error {
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperr.Validation("table %d listed twice", id)
		}
		seen[id] = struct{}{}
		t, ok := r.tables[id]
		if !ok {
			return apperr.NotFound("table %d not found", id)
		}
		if branchID != 0 && t.BranchID != branchID {
			return apperr.Validation("table %d does not belong to branch %d", id, branchID)
		}
		if other, bound := r.binding[id]; bound && other != saleID {
			return apperr.New(apperr.KindTableAlreadyBound, "table %d is bound to sale %d", id, other)
		}
	}
	return nil
}

// Bind attaches tables to a sale, all or nothing.  Tables already bound to
// the same sale are accepted.  branchID, when non-zero, restricts the
// tables to that branch.
func (r *Registry) Bind(ctx context.Context, saleID, branchID uint64, ids []uint64) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindCancelled, err, "bind tables")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkBindable(saleID, branchID, ids); err != nil {
		return err
	}
	for _, id := range ids {
		if _, bound := r.binding[id]; bound {
			continue
		}
		r.binding[id] = saleID
		r.bySale[saleID] = append(r.bySale[saleID], id)
	}
	metrics.TableBindings.WithLabelValues("bind").Inc()
	return nil
}

// Rebind atomically replaces the table set of a sale.
func (r *Registry) Rebind(ctx context.Context, saleID, branchID uint64, ids []uint64) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindCancelled, err, "rebind tables")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkBindable(saleID, branchID, ids); err != nil {
		return err
	}
	for _, id := range r.bySale[saleID] {
		delete(r.binding, id)
	}
	delete(r.bySale, saleID)
	for _, id := range ids {
		r.binding[id] = saleID
	}
	if len(ids) > 0 {
		r.bySale[saleID] = append([]uint64(nil), ids...)
	}
	metrics.TableBindings.WithLabelValues("rebind").Inc()
	return nil
}

// Unbind frees every table of a sale.  Unbinding an unknown sale is a
// no-op.
func (r *Registry) Unbind(saleID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.bySale[saleID]
	if !ok {
		return
	}
	for _, id := range ids {
		if r.binding[id] == saleID {
			delete(r.binding, id)
		}
	}
	delete(r.bySale, saleID)
	metrics.TableBindings.WithLabelValues("unbind").Inc()
}

// IsFree reports whether a table exists and is not bound.
func (r *Registry) IsFree(id uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tables[id]; !ok {
		return false, apperr.NotFound("table %d not found", id)
	}
	_, bound := r.binding[id]
	return !bound, nil
}

// BoundTo returns the sale a table is bound to.
func (r *Registry) BoundTo(id uint64) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	saleID, ok := r.binding[id]
	return saleID, ok
}

// ActiveSaleCount is 1 when the table is bound, 0 otherwise.
func (r *Registry) ActiveSaleCount(id uint64) int {
	if _, ok := r.BoundTo(id); ok {
		return 1
	}
	return 0
}

// Get returns a table by id.
func (r *Registry) Get(id uint64) (model.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	if !ok {
		return model.Table{}, apperr.NotFound("table %d not found", id)
	}
	return t, nil
}

// Lookup resolves ids to tables, preserving order.
func (r *Registry) Lookup(ids []uint64) ([]model.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Table, 0, len(ids))
	for _, id := range ids {
		t, ok := r.tables[id]
		if !ok {
			return nil, apperr.NotFound("table %d not found", id)
		}
		out = append(out, t)
	}
	return out, nil
}

// ListByBranch returns the tables of a branch ordered by id.
func (r *Registry) ListByBranch(branchID uint64) []model.Table {
	r.mu.RLock()
	out := make([]model.Table, 0)
	for _, t := range r.tables {
		if t.BranchID == branchID {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Bindings returns a snapshot of table id -> sale id for a branch.
func (r *Registry) Bindings(branchID uint64) map[uint64]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint64]uint64)
	for tableID, saleID := range r.binding {
		if t, ok := r.tables[tableID]; ok && t.BranchID == branchID {
			out[tableID] = saleID
		}
	}
	return out
}

func (r *Registry) save(ctx context.Context, t model.Table) {
	if r.journal == nil {
		return
	}
	if err := r.journal.SaveTable(ctx, t); err != nil {
		metrics.JournalErrors.WithLabelValues("table").Inc()
		r.log.Error().Err(err).Uint64("table_id", t.ID).Msg("journal save failed")
	}
}
