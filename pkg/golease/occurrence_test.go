package golease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlyContract(start, end string, mode InvoiceMonthMode) Contract {
	return Contract{
		ID:                "c1",
		Name:              "Warehouse A",
		Partner:           "Acme",
		StartDate:         MustParseDate(start),
		EndDate:           MustParseDate(end),
		RentType:          RentTypeMonthly,
		InvoiceMonthMode:  mode,
		RentAmountEUR:     floatPtr(1000),
		ExchangeRateRON:   floatPtr(5.0),
		TVAPercent:        19,
		CorrectionPercent: 0,
	}
}

func TestContractOccurrences_SingleEndToEnd(t *testing.T) {
	c := monthlyContract("2024-06-01", "2024-12-31", ModeCurrent)
	c.MonthlyInvoiceDay = 15

	occs := ContractOccurrences(&c, 2024, time.June, OccurrenceOptions{})
	require.Len(t, occs, 1)

	occ := occs[0]
	assert.Equal(t, MustParseDate("2024-06-15"), occ.IssuedAt)
	assert.Equal(t, Period{Start: MustParseDate("2024-06-01"), End: MustParseDate("2024-06-30")}, occ.Period)
	assert.Equal(t, "Acme", occ.PartnerName)
	require.True(t, occ.Priced())
	assert.InDelta(t, 1000, occ.Totals.CorrectedEUR, 1e-9)
	assert.InDelta(t, 5000, occ.Totals.NetRON, 1e-9)
	assert.InDelta(t, 950, occ.Totals.VATRON, 1e-9)
	assert.InDelta(t, 5950, occ.Totals.TotalRON, 1e-9)
	assert.Equal(t, SourceContract, occ.Rate.Source)
	assert.Nil(t, occ.ExchangeRateOverride)
}

func TestContractOccurrences_Idempotent(t *testing.T) {
	c := monthlyContract("2024-06-01", "2024-12-31", ModeCurrent)
	first := ContractOccurrences(&c, 2024, time.July, OccurrenceOptions{})
	second := ContractOccurrences(&c, 2024, time.July, OccurrenceOptions{})
	assert.Equal(t, first, second)
}

func TestContractOccurrences_CurrentMode(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		day        int
		month      time.Month
		wantIssued string
	}{
		{name: "default day is start day", start: "2024-03-20", end: "2024-12-31", month: time.April, wantIssued: "2024-04-20"},
		{name: "day clipped to month length", start: "2024-01-31", end: "2024-12-31", month: time.February, wantIssued: "2024-02-29"},
		{name: "explicit day", start: "2024-01-01", end: "2024-12-31", day: 5, month: time.May, wantIssued: "2024-05-05"},
		{name: "issue day before start in first month", start: "2024-03-20", end: "2024-12-31", day: 10, month: time.March},
		{name: "issue day after end in last month", start: "2024-01-01", end: "2024-12-10", day: 15, month: time.December},
		{name: "month outside contract", start: "2024-01-01", end: "2024-06-30", month: time.July},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := monthlyContract(tt.start, tt.end, ModeCurrent)
			c.MonthlyInvoiceDay = tt.day
			occs := ContractOccurrences(&c, 2024, tt.month, OccurrenceOptions{})
			if tt.wantIssued == "" {
				assert.Empty(t, occs)
				return
			}
			require.Len(t, occs, 1)
			assert.Equal(t, MustParseDate(tt.wantIssued), occs[0].IssuedAt)
			assert.InDelta(t, 1000, *occs[0].AmountEUR, 1e-9, "current mode never prorates")
		})
	}
}

func TestContractOccurrences_RentAsOfIssueDate(t *testing.T) {
	c := monthlyContract("2024-01-01", "2025-12-31", ModeCurrent)
	c.MonthlyInvoiceDay = 10
	c.RentHistory = []RentChange{{EffectiveFrom: MustParseDate("2024-06-15"), AmountEUR: 1100}}

	june := ContractOccurrences(&c, 2024, time.June, OccurrenceOptions{})
	require.Len(t, june, 1)
	assert.InDelta(t, 1000, *june[0].AmountEUR, 1e-9, "indexing after the issue day does not apply yet")

	july := ContractOccurrences(&c, 2024, time.July, OccurrenceOptions{})
	require.Len(t, july, 1)
	assert.InDelta(t, 1100, *july[0].AmountEUR, 1e-9)
}

func TestContractOccurrences_NextModeRentAsOfBilledMonth(t *testing.T) {
	c := monthlyContract("2024-01-01", "2025-12-31", ModeNext)
	c.MonthlyInvoiceDay = 20
	c.RentHistory = []RentChange{{EffectiveFrom: MustParseDate("2024-07-01"), AmountEUR: 1200}}

	occs := ContractOccurrences(&c, 2024, time.June, OccurrenceOptions{})
	require.Len(t, occs, 1)
	assert.Equal(t, MustParseDate("2024-06-20"), occs[0].IssuedAt)
	assert.Equal(t, Period{Start: MustParseDate("2024-07-01"), End: MustParseDate("2024-07-31")}, occs[0].Period)
	assert.InDelta(t, 1200, *occs[0].AmountEUR, 1e-9)
}

func TestContractOccurrences_NextModeProrated(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-08-10", ModeNext)
	occs := ContractOccurrences(&c, 2024, time.July, OccurrenceOptions{})
	require.Len(t, occs, 1)
	assert.InDelta(t, 10.0/31, occs[0].Fraction, 1e-9)
	assert.InDelta(t, 1000*10.0/31, *occs[0].AmountEUR, 1e-9)
	assert.Equal(t, MustParseDate("2024-08-10"), occs[0].Period.End)

	c.EndDate = MustParseDate("2024-08-02")
	assert.Empty(t, ContractOccurrences(&c, 2024, time.July, OccurrenceOptions{}))
}

func TestContractOccurrences_DecemberWrap(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-12-31", ModeNext)
	p := Prognosis([]Contract{c}, 2024, OccurrenceOptions{})
	assert.Zero(t, p.Months[11].TotalRON)

	c.EndDate = MustParseDate("2025-06-30")
	p = Prognosis([]Contract{c}, 2024, OccurrenceOptions{})
	assert.InDelta(t, 5950, p.Months[11].TotalRON, 1e-9)
}

func TestPrognosis_AnnualAggregation(t *testing.T) {
	const monthlyTotal = 5950.0

	current := monthlyContract("2024-03-01", "2024-10-31", ModeCurrent)
	p := Prognosis([]Contract{current}, 2024, OccurrenceOptions{})
	assert.InDelta(t, 8*monthlyTotal, p.TotalRON, 1e-6)
	assert.Len(t, p.Months, 12)

	next := monthlyContract("2024-03-01", "2024-10-31", ModeNext)
	p = Prognosis([]Contract{next}, 2024, OccurrenceOptions{})
	assert.InDelta(t, 7*monthlyTotal, p.TotalRON, 1e-6)
	assert.Zero(t, p.Months[9].TotalRON, "october advance invoice for november is excluded")
}

func TestContractOccurrences_PartnerFanOut(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-12-31", ModeCurrent)
	c.Partners = []Partner{
		{ID: "p1", Name: "Acme", SharePercent: 60},
		{ID: "p2", Name: "Globex", SharePercent: 40},
		{ID: "p3", Name: "Initech", SharePercent: 0},
	}

	occs := ContractOccurrences(&c, 2024, time.March, OccurrenceOptions{})
	require.Len(t, occs, 2)
	assert.Equal(t, "p1", occs[0].PartnerID)
	assert.InDelta(t, 600, *occs[0].AmountEUR, 1e-9)
	assert.InDelta(t, 1000, *occs[0].BaseAmountEUR, 1e-9)
	assert.Equal(t, "p2", occs[1].PartnerID)
	assert.InDelta(t, 400, *occs[1].AmountEUR, 1e-9)
	for _, o := range occs {
		assert.Equal(t, "Acme", o.ContractPartnerName)
	}
}

func TestContractOccurrences_SinglePartnerListNoFanOut(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-12-31", ModeCurrent)
	c.Partner = ""
	c.Partners = []Partner{{ID: "p1", Name: "Solo", SharePercent: 50}}

	occs := ContractOccurrences(&c, 2024, time.March, OccurrenceOptions{})
	require.Len(t, occs, 1)
	assert.Equal(t, "p1", occs[0].PartnerID)
	assert.InDelta(t, 1000, *occs[0].AmountEUR, 1e-9)
}

func TestContractOccurrences_Yearly(t *testing.T) {
	c := monthlyContract("2024-02-01", "2026-01-31", ModeCurrent)
	c.RentType = RentTypeYearly
	c.YearlyInvoices = []ScheduledInvoice{
		{Month: time.February, Day: 30, AmountEUR: floatPtr(2400)},
		{Month: time.February, Day: 1},
		{Month: time.August, Day: 15, AmountEUR: floatPtr(500)},
	}

	feb := ContractOccurrences(&c, 2024, time.February, OccurrenceOptions{})
	require.Len(t, feb, 2)
	assert.Equal(t, MustParseDate("2024-02-29"), feb[0].IssuedAt)
	assert.InDelta(t, 2400, *feb[0].AmountEUR, 1e-9)
	assert.Equal(t, MustParseDate("2025-02-27"), feb[0].Period.End)
	assert.Equal(t, MustParseDate("2024-02-01"), feb[1].IssuedAt)
	assert.InDelta(t, 1000, *feb[1].AmountEUR, 1e-9, "entry without amount bills the rent in force")

	assert.Len(t, ContractOccurrences(&c, 2024, time.August, OccurrenceOptions{}), 1)
	assert.Empty(t, ContractOccurrences(&c, 2024, time.March, OccurrenceOptions{}))

	// 2026-02 is outside the window even though the schedule matches
	assert.Empty(t, ContractOccurrences(&c, 2026, time.February, OccurrenceOptions{}))
}

func TestContractOccurrences_MissingData(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-12-31", ModeCurrent)
	c.ExchangeRateRON = nil

	occs := ContractOccurrences(&c, 2024, time.March, OccurrenceOptions{})
	require.Len(t, occs, 1)
	assert.False(t, occs[0].Priced())
	assert.Nil(t, occs[0].Totals)
	assert.NotNil(t, occs[0].AmountEUR)
	assert.Equal(t, "exchange rate", occs[0].Missing)

	c = monthlyContract("2024-01-01", "2024-12-31", ModeCurrent)
	c.RentAmountEUR = nil
	occs = ContractOccurrences(&c, 2024, time.March, OccurrenceOptions{})
	require.Len(t, occs, 1)
	assert.Nil(t, occs[0].AmountEUR, "absent rather than zero")
	assert.Equal(t, "rent amount", occs[0].Missing)
}

func TestContractOccurrences_RateOverride(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-12-31", ModeCurrent)
	override := &RateQuote{Rate: 4.97, Date: MustParseDate("2024-03-01"), Source: SourceBNR}

	occs := ContractOccurrences(&c, 2024, time.March, OccurrenceOptions{RateOverride: override})
	require.Len(t, occs, 1)
	require.NotNil(t, occs[0].ExchangeRateOverride)
	assert.Equal(t, 4.97, *occs[0].ExchangeRateOverride)
	assert.Equal(t, MustParseDate("2024-03-01"), occs[0].ExchangeRateDate)
	assert.InDelta(t, 4970, occs[0].Totals.NetRON, 1e-9)
}

func TestDueOccurrences_Sorted(t *testing.T) {
	a := monthlyContract("2024-01-20", "2024-12-31", ModeCurrent)
	a.ID = "b"
	b := monthlyContract("2024-01-05", "2024-12-31", ModeCurrent)
	b.ID = "a"
	c := monthlyContract("2024-01-20", "2024-12-31", ModeCurrent)
	c.ID = "a2"

	occs := DueOccurrences([]Contract{a, b, c}, 2024, time.May, OccurrenceOptions{})
	require.Len(t, occs, 3)
	assert.Equal(t, "a", occs[0].ContractID)
	assert.Equal(t, "a2", occs[1].ContractID)
	assert.Equal(t, "b", occs[2].ContractID)
}

func TestContractOccurrences_InvalidMonth(t *testing.T) {
	c := monthlyContract("2024-01-01", "2024-12-31", ModeCurrent)
	assert.Nil(t, ContractOccurrences(&c, 2024, 13, OccurrenceOptions{}))
}
