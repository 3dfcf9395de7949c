package tables

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

type memJournal struct {
	mu      sync.Mutex
	saved   map[uint64]model.Table
	deleted []uint64
}

func (j *memJournal) SaveTable(_ context.Context, t model.Table) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.saved == nil {
		j.saved = make(map[uint64]model.Table)
	}
	j.saved[t.ID] = t
	return nil
}

func (j *memJournal) DeleteTable(_ context.Context, id uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deleted = append(j.deleted, id)
	return nil
}

func newRegistry(t *testing.T) (*Registry, *memJournal) {
	t.Helper()
	j := &memJournal{}
	return NewRegistry(j, zerolog.Nop()), j
}

func TestRegisterAssignsIDsAndRejectsDuplicates(t *testing.T) {
	r, j := newRegistry(t)
	ctx := context.Background()

	t1, err := r.Register(ctx, 1, "T1")
	require.NoError(t, err)
	t2, err := r.Register(ctx, 1, "T2")
	require.NoError(t, err)
	assert.NotEqual(t, t1.ID, t2.ID)
	assert.Equal(t, t1, j.saved[t1.ID])

	_, err = r.Register(ctx, 1, " t1 ")
	assert.True(t, apperr.IsKind(err, apperr.KindDuplicateName))

	// same name in another branch is fine
	_, err = r.Register(ctx, 2, "T1")
	assert.NoError(t, err)

	_, err = r.Register(ctx, 1, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = r.Register(ctx, 0, "X")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRename(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	t1, _ := r.Register(ctx, 1, "T1")
	_, _ = r.Register(ctx, 1, "T2")

	renamed, err := r.Rename(ctx, t1.ID, "Patio 1")
	require.NoError(t, err)
	assert.Equal(t, "Patio 1", renamed.Name)

	_, err = r.Rename(ctx, t1.ID, "T2")
	assert.True(t, apperr.IsKind(err, apperr.KindDuplicateName))
	_, err = r.Rename(ctx, 99, "X")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestBindAllOrNothing(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	t1, _ := r.Register(ctx, 1, "T1")
	t2, _ := r.Register(ctx, 1, "T2")
	t3, _ := r.Register(ctx, 1, "T3")

	require.NoError(t, r.Bind(ctx, 10, 1, []uint64{t1.ID}))

	err := r.Bind(ctx, 20, 1, []uint64{t2.ID, t1.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindTableAlreadyBound))
	free, _ := r.IsFree(t2.ID)
	assert.True(t, free, "partial bind must not happen")

	// rebinding the same sale is accepted
	require.NoError(t, r.Bind(ctx, 10, 1, []uint64{t1.ID, t3.ID}))
	saleID, ok := r.BoundTo(t3.ID)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), saleID)

	err = r.Bind(ctx, 20, 1, []uint64{t2.ID, t2.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	err = r.Bind(ctx, 20, 1, []uint64{999})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestBindRejectsOtherBranch(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	other, _ := r.Register(ctx, 2, "T1")
	err := r.Bind(ctx, 10, 1, []uint64{other.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestUnbindIsIdempotent(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	t1, _ := r.Register(ctx, 1, "T1")
	require.NoError(t, r.Bind(ctx, 10, 1, []uint64{t1.ID}))
	assert.Equal(t, 1, r.ActiveSaleCount(t1.ID))

	r.Unbind(10)
	r.Unbind(10)
	r.Unbind(77)
	free, err := r.IsFree(t1.ID)
	require.NoError(t, err)
	assert.True(t, free)
	assert.Equal(t, 0, r.ActiveSaleCount(t1.ID))
}

func TestRebindReplacesAtomically(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	t1, _ := r.Register(ctx, 1, "T1")
	t2, _ := r.Register(ctx, 1, "T2")
	t3, _ := r.Register(ctx, 1, "T3")
	require.NoError(t, r.Bind(ctx, 10, 1, []uint64{t1.ID}))
	require.NoError(t, r.Bind(ctx, 20, 1, []uint64{t3.ID}))

	err := r.Rebind(ctx, 10, 1, []uint64{t2.ID, t3.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindTableAlreadyBound))
	saleID, _ := r.BoundTo(t1.ID)
	assert.Equal(t, uint64(10), saleID, "failed rebind keeps the old set")

	require.NoError(t, r.Rebind(ctx, 10, 1, []uint64{t2.ID}))
	free, _ := r.IsFree(t1.ID)
	assert.True(t, free)
	saleID, _ = r.BoundTo(t2.ID)
	assert.Equal(t, uint64(10), saleID)
}

func TestReleaseFailsWhileBound(t *testing.T) {
	r, j := newRegistry(t)
	ctx := context.Background()
	t1, _ := r.Register(ctx, 1, "T1")
	require.NoError(t, r.Bind(ctx, 10, 1, []uint64{t1.ID}))

	err := r.Release(ctx, t1.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindTableInUse))

	r.Unbind(10)
	require.NoError(t, r.Release(ctx, t1.ID))
	assert.Equal(t, []uint64{t1.ID}, j.deleted)
	_, err = r.Get(t1.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.True(t, apperr.IsKind(r.Release(ctx, t1.ID), apperr.KindNotFound))
}

func TestConcurrentBindSingleWinner(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	t1, _ := r.Register(ctx, 1, "T1")

	var wins int32
	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(saleID uint64) {
			defer wg.Done()
			if err := r.Bind(ctx, saleID, 1, []uint64{t1.ID}); err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				assert.True(t, apperr.IsKind(err, apperr.KindTableAlreadyBound))
			}
		}(uint64(i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRestoreAndListings(t *testing.T) {
	r, _ := newRegistry(t)
	r.Restore([]model.Table{
		{ID: 5, BranchID: 1, Name: "A"},
		{ID: 3, BranchID: 1, Name: "B"},
		{ID: 4, BranchID: 2, Name: "C"},
	}, map[uint64][]uint64{42: {5}})

	list := r.ListByBranch(1)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(3), list[0].ID)
	assert.Equal(t, map[uint64]uint64{5: 42}, r.Bindings(1))
	assert.Empty(t, r.Bindings(2))

	next, err := r.Register(context.Background(), 1, "D")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next.ID)

	got, err := r.Lookup([]uint64{5, 3})
	require.NoError(t, err)
	assert.Equal(t, "A", got[0].Name)
}
