package tax

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-sales-engine/internal/apperr"
	"github.com/iliyamo/restaurant-sales-engine/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTotalPercentageAndFixed(t *testing.T) {
	taxes := []model.Tax{
		{Name: "VAT", Value: d("10"), IsPercentage: true},
		{Name: "service", Value: d("2.50")},
	}
	got := Total(d("20"), taxes)
	assert.True(t, got.Equal(d("24.5")), "got %s", got)
}

func TestTotalDoesNotCompound(t *testing.T) {
	a := model.Tax{Name: "a", Value: d("10"), IsPercentage: true}
	b := model.Tax{Name: "b", Value: d("10"), IsPercentage: true}
	c := model.Tax{Name: "c", Value: d("3")}

	first := Total(d("100"), []model.Tax{a, b, c})
	second := Total(d("100"), []model.Tax{c, b, a})

	assert.True(t, first.Equal(d("123")), "got %s", first)
	assert.True(t, first.Equal(second))
}

func TestTotalWithoutTaxesIsSubtotal(t *testing.T) {
	assert.True(t, Total(d("12.34"), nil).Equal(d("12.34")))
}

func TestSubtotal(t *testing.T) {
	lines := []model.SaleProductLine{
		{Price: d("10"), Amount: 2},
		{Price: d("0.35"), Amount: 3},
	}
	assert.True(t, Subtotal(lines).Equal(d("21.05")))
	assert.True(t, Subtotal(nil).Equal(decimal.Zero))
}

func TestRound(t *testing.T) {
	assert.Equal(t, "3.33", Round(d("10").Div(d("3"))).String())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(model.Tax{Name: "VAT", Value: d("0")}))
	assert.True(t, apperr.IsKind(Validate(model.Tax{Name: "VAT", Value: d("-1")}), apperr.KindValidation))
	assert.True(t, apperr.IsKind(Validate(model.Tax{Name: "  ", Value: d("1")}), apperr.KindValidation))
}

func TestDefaultsCopiedOut(t *testing.T) {
	defaults := NewDefaults(nil, zerolog.Nop())
	set, err := defaults.Set(context.Background(), 7, []model.Tax{{Name: "VAT", Value: d("21"), IsPercentage: true}})
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, uint64(1), set[0].ID)

	got := defaults.For(7)
	got[0].Name = "changed"
	assert.Equal(t, "VAT", defaults.For(7)[0].Name)
	assert.Empty(t, defaults.For(8))

	_, err = defaults.Set(context.Background(), 7, []model.Tax{{Name: "bad", Value: d("-2")}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Len(t, defaults.For(7), 1)
}

type recordingJournal struct {
	saved map[uint64][]model.Tax
	err   error
}

func (j *recordingJournal) SaveDefaultTaxes(_ context.Context, branchID uint64, taxes []model.Tax) error {
	if j.err != nil {
		return j.err
	}
	j.saved[branchID] = taxes
	return nil
}

func TestDefaultsJournalAndRestore(t *testing.T) {
	journal := &recordingJournal{saved: map[uint64][]model.Tax{}}
	defaults := NewDefaults(journal, zerolog.Nop())
	_, err := defaults.Set(context.Background(), 3, []model.Tax{
		{Name: "VAT", Value: d("21"), IsPercentage: true},
		{Name: "Cover", Value: d("1.5")},
	})
	require.NoError(t, err)
	require.Len(t, journal.saved[3], 2)
	assert.Equal(t, uint64(2), journal.saved[3][1].ID)

	restarted := NewDefaults(nil, zerolog.Nop())
	restarted.Restore(journal.saved)
	got := restarted.For(3)
	require.Len(t, got, 2)
	assert.Equal(t, "Cover", got[1].Name)
	assert.True(t, got[1].Value.Equal(d("1.5")))
}

func TestDefaultsKeepTemplateWhenJournalFails(t *testing.T) {
	defaults := NewDefaults(&recordingJournal{err: errors.New("down")}, zerolog.Nop())
	set, err := defaults.Set(context.Background(), 3, []model.Tax{{Name: "VAT", Value: d("21"), IsPercentage: true}})
	require.NoError(t, err)
	assert.Len(t, set, 1)
	assert.Len(t, defaults.For(3), 1)
}
