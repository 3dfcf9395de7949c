package availability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/keylock"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
	"github.com/iliyamo/restaurant-sales-engine/internal/reservations"
	"github.com/iliyamo/restaurant-sales-engine/internal/sales"
	"github.com/iliyamo/restaurant-sales-engine/internal/tables"
)

func TestAvailability(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	locks := keylock.New(keylock.DefaultConfig())
	reg := tables.NewRegistry(nil, log)
	ledger := sales.NewLedger(locks, reg, nil, log)
	machine := reservations.NewMachine(locks, ledger, reg, nil, nil, log)
	q := New(reg, ledger, machine)

	t1, _ := reg.Register(ctx, 1, "T1")
	t2, _ := reg.Register(ctx, 1, "T2")
	t3, _ := reg.Register(ctx, 1, "T3")

	now := time.Now().UTC()
	later := now.Add(2 * time.Hour)

	s, err := ledger.Create(ctx, sales.CreateInput{BranchID: 1, TableIDs: []uint64{t1.ID}})
	require.NoError(t, err)

	r, err := machine.Create(ctx, reservations.CreateInput{
		BranchID: 1, DateIn: later, DateOut: later.Add(time.Hour),
		TableIDs: []uint64{t2.ID}, ClientNumber: 2,
	})
	require.NoError(t, err)

	occupied := q.ListOccupiedTables(1)
	require.Len(t, occupied, 1)
	assert.Equal(t, t1.ID, occupied[0].ID)

	// pending reservations do not hold tables
	free, err := q.IsTableFree(t2.ID, later, later.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, free)

	_, err = machine.Accept(ctx, r.ID)
	require.NoError(t, err)
	free, _ = q.IsTableFree(t2.ID, later.Add(30*time.Minute), later.Add(90*time.Minute))
	assert.False(t, free)
	free, _ = q.IsTableFree(t2.ID, later.Add(time.Hour), later.Add(2*time.Hour))
	assert.True(t, free, "window starting at date_out does not overlap")

	free, _ = q.IsTableFree(t1.ID, now.Add(time.Minute), now.Add(time.Hour))
	assert.False(t, free)

	list, err := q.FreeTables(1, later, later.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, t3.ID, list[0].ID)

	_, err = ledger.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, q.ListOccupiedTables(1))
	free, _ = q.IsTableFree(t1.ID, now, later)
	assert.True(t, free)
}

func TestAvailabilityValidation(t *testing.T) {
	reg := tables.NewRegistry(nil, zerolog.Nop())
	ledger := sales.NewLedger(keylock.New(keylock.DefaultConfig()), reg, nil, zerolog.Nop())
	q := New(reg, ledger, nil)
	t1, _ := reg.Register(context.Background(), 1, "T1")

	now := time.Now()
	_, err := q.IsTableFree(t1.ID, now, now)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = q.FreeTables(1, time.Time{}, now)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = q.IsTableFree(99, now, now.Add(time.Hour))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	list, err := q.FreeTables(1, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []model.Table{t1}, list)
}

func TestCapacityCountsUnpinnedReservations(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	locks := keylock.New(keylock.DefaultConfig())
	reg := tables.NewRegistry(nil, log)
	ledger := sales.NewLedger(locks, reg, nil, log)
	machine := reservations.NewMachine(locks, ledger, reg, nil, nil, log)
	q := New(reg, ledger, machine)
	_, _ = reg.Register(ctx, 1, "T1")
	_, _ = reg.Register(ctx, 1, "T2")

	from := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	to := from.Add(2 * time.Hour)
	n, err := q.Capacity(1, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, err := machine.Create(ctx, reservations.CreateInput{BranchID: 1, DateIn: from, DateOut: to, TableNumber: 2, ClientNumber: 6})
	require.NoError(t, err)
	n, _ = q.Capacity(1, from, to)
	assert.Equal(t, 2, n, "pending requests hold nothing")

	_, err = machine.Accept(ctx, r.ID)
	require.NoError(t, err)
	n, _ = q.Capacity(1, from, to)
	assert.Equal(t, 0, n)

	n, _ = q.Capacity(1, to, to.Add(time.Hour))
	assert.Equal(t, 2, n)
}

func TestStartedReservationFollowsRebind(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	locks := keylock.New(keylock.DefaultConfig())
	reg := tables.NewRegistry(nil, log)
	ledger := sales.NewLedger(locks, reg, nil, log)
	machine := reservations.NewMachine(locks, ledger, reg, nil, nil, log)
	q := New(reg, ledger, machine)
	t1, _ := reg.Register(ctx, 1, "T1")
	t2, _ := reg.Register(ctx, 1, "T2")

	from := time.Now().UTC()
	to := from.Add(2 * time.Hour)
	r, err := machine.Create(ctx, reservations.CreateInput{BranchID: 1, DateIn: from, DateOut: to, TableIDs: []uint64{t1.ID}, ClientNumber: 2})
	require.NoError(t, err)
	_, err = machine.Accept(ctx, r.ID)
	require.NoError(t, err)
	r, err = machine.Start(ctx, r.ID)
	require.NoError(t, err)

	_, err = ledger.RebindTables(ctx, r.SaleID, []uint64{t2.ID})
	require.NoError(t, err)

	free, err := q.IsTableFree(t1.ID, from, to)
	require.NoError(t, err)
	assert.True(t, free, "T1 was released by the rebind")
	free, _ = q.IsTableFree(t2.ID, from, to)
	assert.False(t, free)

	list, err := q.FreeTables(1, from, to)
	require.NoError(t, err)
	assert.Equal(t, []model.Table{t1}, list)

	other, err := machine.Create(ctx, reservations.CreateInput{BranchID: 1, DateIn: from, DateOut: to, TableNumber: 1, ClientNumber: 2})
	require.NoError(t, err)
	_, err = machine.Accept(ctx, other.ID)
	require.NoError(t, err)
	other, err = machine.Start(ctx, other.ID)
	require.NoError(t, err)
	s, err := ledger.Get(other.SaleID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{t1.ID}, s.TableIDs())
}
