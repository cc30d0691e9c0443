package golease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func nextModeContract(start, end string) *Contract {
	return &Contract{
		ID:               "c1",
		StartDate:        MustParseDate(start),
		EndDate:          MustParseDate(end),
		RentType:         RentTypeMonthly,
		InvoiceMonthMode: ModeNext,
	}
}

func TestAdvanceCoverage(t *testing.T) {
	tests := []struct {
		name         string
		start, end   string
		year         int
		month        time.Month
		wantInclude  bool
		wantFraction float64
		wantEndDay   int
	}{
		{
			name: "full following month", start: "2024-01-01", end: "2024-12-31",
			year: 2024, month: time.May, wantInclude: true, wantFraction: 1, wantEndDay: 30,
		},
		{
			name: "december wraps into next year not covered", start: "2024-01-01", end: "2024-12-31",
			year: 2024, month: time.December, wantInclude: false,
		},
		{
			name: "december wraps into next year covered", start: "2024-01-01", end: "2025-06-30",
			year: 2024, month: time.December, wantInclude: true, wantFraction: 1, wantEndDay: 31,
		},
		{
			name: "ends on day 1 of billed month", start: "2024-01-01", end: "2024-08-01",
			year: 2024, month: time.July, wantInclude: false, wantEndDay: 1,
		},
		{
			name: "ends on day 2 of billed month", start: "2024-01-01", end: "2024-08-02",
			year: 2024, month: time.July, wantInclude: false, wantEndDay: 2,
		},
		{
			name: "ends on day 3 of billed month", start: "2024-01-01", end: "2024-08-03",
			year: 2024, month: time.July, wantInclude: true, wantFraction: 3.0 / 31, wantEndDay: 3,
		},
		{
			name: "ends on day 10 of a 31 day month", start: "2024-01-01", end: "2024-08-10",
			year: 2024, month: time.July, wantInclude: true, wantFraction: 10.0 / 31, wantEndDay: 10,
		},
		{
			name: "ends on last day of billed month", start: "2024-01-01", end: "2024-02-29",
			year: 2024, month: time.January, wantInclude: true, wantFraction: 1, wantEndDay: 29,
		},
		{
			name: "starts after billed month", start: "2024-09-01", end: "2025-08-31",
			year: 2024, month: time.July, wantInclude: false,
		},
		{
			name: "starts inside billed month bills full month", start: "2024-08-20", end: "2025-08-31",
			year: 2024, month: time.July, wantInclude: true, wantFraction: 1, wantEndDay: 31,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdvanceCoverage(nextModeContract(tt.start, tt.end), tt.year, tt.month)
			assert.Equal(t, tt.wantInclude, got.Include)
			if tt.wantInclude {
				assert.InDelta(t, tt.wantFraction, got.Fraction, 1e-9)
			}
			if tt.wantEndDay != 0 {
				assert.Equal(t, tt.wantEndDay, got.CoverageEndDay)
			}
		})
	}
}

func TestAdvanceCoverage_UsesExtensions(t *testing.T) {
	c := nextModeContract("2024-01-01", "2024-12-31")
	c.Extensions = []ContractExtension{{
		DocDate:       MustParseDate("2024-11-01"),
		ExtendedUntil: MustParseDate("2025-01-15"),
	}}

	got := AdvanceCoverage(c, 2024, time.December)
	assert.True(t, got.Include)
	assert.Equal(t, 2025, got.Year)
	assert.Equal(t, time.January, got.Month)
	assert.InDelta(t, 15.0/31, got.Fraction, 1e-9)
}
