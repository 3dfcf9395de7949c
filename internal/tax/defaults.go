package tax

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/metrics"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

// Journal persists branch templates.  Write failures are logged and
// counted; the in-memory template stays authoritative.
type Journal interface {
	SaveDefaultTaxes(ctx context.Context, branchID uint64, taxes []model.Tax) error
}

// Defaults holds the default taxes of each branch.  Sales copy them at
// creation time; changing a branch's defaults never touches existing
// sales.
type Defaults struct {
	mu       sync.RWMutex
	byBranch map[uint64][]model.Tax
	journal  Journal
	log      zerolog.Logger
}

// NewDefaults returns an empty store.  journal may be nil.
func NewDefaults(journal Journal, log zerolog.Logger) *Defaults {
	return &Defaults{byBranch: make(map[uint64][]model.Tax), journal: journal, log: log}
}

// Restore loads templates read back from the journal.
func (d *Defaults) Restore(byBranch map[uint64][]model.Tax) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for branchID, taxes := range byBranch {
		d.byBranch[branchID] = append(make([]model.Tax, 0, len(taxes)), taxes...)
	}
}

// Set replaces the default taxes of a branch.  Every tax is validated and
// numbered 1..n so that ids are stable within the template.
func (d *Defaults) Set(ctx context.Context, branchID uint64, taxes []model.Tax) ([]model.Tax, error) {
	out := make([]model.Tax, 0, len(taxes))
	for i, t := range taxes {
		if err := Validate(t); err != nil {
			return nil, err
		}
		t.ID = uint64(i + 1)
		out = append(out, t)
	}
	d.mu.Lock()
	d.byBranch[branchID] = out
	if d.journal != nil {
		if err := d.journal.SaveDefaultTaxes(ctx, branchID, out); err != nil {
			metrics.JournalErrors.WithLabelValues("default_taxes").Inc()
			d.log.Error().Err(err).Uint64("branch_id", branchID).Msg("journal default taxes failed")
		}
	}
	d.mu.Unlock()
	return append(make([]model.Tax, 0, len(out)), out...), nil
}

// For returns a copy of the default taxes of a branch.
func (d *Defaults) For(branchID uint64) []model.Tax {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(make([]model.Tax, 0, len(d.byBranch[branchID])), d.byBranch[branchID]...)
}
