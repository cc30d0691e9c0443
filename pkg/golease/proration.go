package golease

import "time"

// minAdvanceCoverageDays is the smallest number of covered days for which an
// advance invoice is issued. Months covered for only 1 or 2 days are skipped.
const minAdvanceCoverageDays = 3

// Coverage is the result of the advance billing check for one issue month.
type Coverage struct {
	Include bool
	// Fraction of the billed month that is covered, 1 for a full month.
	Fraction float64
	// Year and Month of the billed (following) month.
	Year  int
	Month time.Month
	// CoverageEndDay is the last covered day of the billed month.
	CoverageEndDay int
}

// AdvanceCoverage decides whether a next-mode invoice issued in (year, month)
// is due and which fraction of the following month it bills.
func AdvanceCoverage(c *Contract, year int, month time.Month) Coverage {
	ny, nm := nextMonth(year, month)
	cov := Coverage{Year: ny, Month: nm}

	first, last := monthBounds(ny, nm)
	end := EffectiveEndDate(c)
	if !overlaps(c.StartDate, end, first, last) {
		return cov
	}

	dim := last.Day
	cov.CoverageEndDay = dim
	if end.Within(first, last) {
		cov.CoverageEndDay = end.Day
	}

	if cov.CoverageEndDay < minAdvanceCoverageDays {
		return cov
	}

	cov.Include = true
	if cov.CoverageEndDay >= dim {
		cov.Fraction = 1
	} else {
		cov.Fraction = float64(cov.CoverageEndDay) / float64(dim)
	}
	return cov
}
