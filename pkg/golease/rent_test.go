package golease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRentAmountAsOf(t *testing.T) {
	c := baseContract()
	c.RentHistory = []RentChange{
		{EffectiveFrom: MustParseDate("2022-03-26"), AmountEUR: 1050},
		{EffectiveFrom: MustParseDate("2023-03-26"), AmountEUR: 1100},
	}

	tests := []struct {
		date string
		want float64
	}{
		{"2021-06-01", 1000},
		{"2022-03-25", 1000},
		{"2022-03-26", 1050},
		{"2023-01-01", 1050},
		{"2023-03-26", 1100},
		{"2030-01-01", 1100},
	}
	for _, tt := range tests {
		got, ok := RentAmountAsOf(&c, MustParseDate(tt.date))
		require.True(t, ok, tt.date)
		assert.Equal(t, tt.want, got, tt.date)
	}
}

func TestRentAmountAsOf_NoAmount(t *testing.T) {
	c := baseContract()
	c.RentAmountEUR = nil

	_, ok := RentAmountAsOf(&c, MustParseDate("2022-01-01"))
	assert.False(t, ok)

	c.RentHistory = []RentChange{{EffectiveFrom: MustParseDate("2022-06-01"), AmountEUR: 900}}
	_, ok = RentAmountAsOf(&c, MustParseDate("2022-01-01"))
	assert.False(t, ok, "history entries after the date do not apply")

	got, ok := RentAmountAsOf(&c, MustParseDate("2022-06-01"))
	assert.True(t, ok)
	assert.Equal(t, 900.0, got)
}

func TestAppendRentChange(t *testing.T) {
	c := baseContract()

	updated, err := AppendRentChange(c, RentChange{EffectiveFrom: MustParseDate("2022-03-26"), AmountEUR: 1050})
	require.NoError(t, err)
	assert.Len(t, updated.RentHistory, 1)
	assert.Empty(t, c.RentHistory)

	_, err = AppendRentChange(updated, RentChange{EffectiveFrom: MustParseDate("2022-01-01"), AmountEUR: 990})
	assert.True(t, IsValidationError(err))

	_, err = AppendRentChange(updated, RentChange{EffectiveFrom: MustParseDate("2023-01-01"), AmountEUR: -1})
	assert.True(t, IsValidationError(err))
}
