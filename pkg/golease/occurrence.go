package golease

import (
	"sort"
	"time"
)

// OccurrenceOptions carries the exchange rate context used to price occurrences.
type OccurrenceOptions struct {
	// RateOverride replaces the contract's own rate when set.
	RateOverride *RateQuote
}

// ContractOccurrences returns the occurrences due for one contract in the
// given month, priced with the rate context in opts. It has no side effects.
func ContractOccurrences(c *Contract, year int, month time.Month, opts OccurrenceOptions) []DueOccurrence {
	if !validMonth(month) {
		return nil
	}
	first, last := monthBounds(year, month)
	window := ActiveWindow(c)
	if !overlaps(window.Start, window.End, first, last) {
		return nil
	}

	var base []DueOccurrence
	switch c.RentType {
	case RentTypeMonthly:
		if occ, ok := monthlyOccurrence(c, year, month, window); ok {
			base = append(base, occ)
		}
	case RentTypeYearly:
		base = scheduledOccurrences(c, year, month, window)
	}

	out := make([]DueOccurrence, 0, len(base))
	for _, occ := range base {
		for _, o := range fanOut(c, occ) {
			out = append(out, PriceOccurrence(o, rateContext(c, opts)))
		}
	}
	return out
}

func monthlyOccurrence(c *Contract, year int, month time.Month, window Period) (DueOccurrence, bool) {
	day := c.MonthlyInvoiceDay
	if day == 0 {
		day = c.StartDate.Day
	}
	issued := clampDay(year, month, day)
	occ := newOccurrence(c, issued)

	switch c.mode() {
	case ModeNext:
		cov := AdvanceCoverage(c, year, month)
		if !cov.Include {
			return DueOccurrence{}, false
		}
		billedFirst := Date{Year: cov.Year, Month: cov.Month, Day: 1}
		occ.Fraction = cov.Fraction
		occ.Period = Period{
			Start: laterOf(billedFirst, window.Start),
			End:   Date{Year: cov.Year, Month: cov.Month, Day: cov.CoverageEndDay},
		}
		if amount, ok := RentAmountAsOf(c, billedFirst); ok {
			occ.BaseAmountEUR = floatPtr(amount * cov.Fraction)
		}
	default:
		if !issued.Within(window.Start, window.End) {
			return DueOccurrence{}, false
		}
		first, last := monthBounds(year, month)
		occ.Period = Period{Start: laterOf(first, window.Start), End: earlierOf(last, window.End)}
		if amount, ok := RentAmountAsOf(c, issued); ok {
			occ.BaseAmountEUR = floatPtr(amount)
		}
	}
	return occ, true
}

func scheduledOccurrences(c *Contract, year int, month time.Month, window Period) []DueOccurrence {
	var out []DueOccurrence
	for _, entry := range c.YearlyInvoices {
		if entry.Month != month {
			continue
		}
		issued := clampDay(year, month, entry.Day)
		if !issued.Within(window.Start, window.End) {
			continue
		}
		occ := newOccurrence(c, issued)
		occ.Period = Period{Start: issued, End: earlierOf(addYearsSafe(issued, 1).AddDays(-1), window.End)}
		switch {
		case entry.AmountEUR != nil:
			occ.BaseAmountEUR = floatPtr(*entry.AmountEUR)
		default:
			if amount, ok := RentAmountAsOf(c, issued); ok {
				occ.BaseAmountEUR = floatPtr(amount)
			}
		}
		out = append(out, occ)
	}
	return out
}

func newOccurrence(c *Contract, issued Date) DueOccurrence {
	pid, pname := c.PrimaryPartner()
	return DueOccurrence{
		ContractID:          c.ID,
		ContractName:        c.Name,
		IssuedAt:            issued,
		RentType:            c.RentType,
		Mode:                c.mode(),
		ContractPartnerID:   pid,
		ContractPartnerName: pname,
		Fraction:            1,
		CorrectionPercent:   c.CorrectionPercent,
		TVAPercent:          c.TVAPercent,
	}
}

// fanOut expands an occurrence into one per partner with a positive share,
// or keeps it whole under the primary partner identity.
func fanOut(c *Contract, occ DueOccurrence) []DueOccurrence {
	if !shouldFanOut(c.Partners) {
		occ.PartnerID, occ.PartnerName = occ.ContractPartnerID, occ.ContractPartnerName
		occ.AmountEUR = occ.BaseAmountEUR
		return []DueOccurrence{occ}
	}

	var base float64
	if occ.BaseAmountEUR != nil {
		base = *occ.BaseAmountEUR
	}
	shares := SplitAmount(base, c.Partners)
	out := make([]DueOccurrence, 0, len(shares))
	for _, share := range shares {
		o := occ
		o.PartnerID = share.Partner.ID
		o.PartnerName = share.Partner.Name
		o.SharePercent = share.Partner.SharePercent
		if occ.BaseAmountEUR != nil {
			o.AmountEUR = floatPtr(share.Amount)
		}
		out = append(out, o)
	}
	return out
}

func rateContext(c *Contract, opts OccurrenceOptions) *RateQuote {
	if opts.RateOverride != nil {
		q := *opts.RateOverride
		return &q
	}
	if c.ExchangeRateRON != nil && *c.ExchangeRateRON > 0 {
		return &RateQuote{Rate: *c.ExchangeRateRON, Source: SourceContract}
	}
	return nil
}

// PriceOccurrence returns occ priced with quote. A nil quote or a missing
// amount leaves the occurrence unpriced with the reason in Missing.
func PriceOccurrence(occ DueOccurrence, quote *RateQuote) DueOccurrence {
	occ.Totals = nil
	occ.Missing = ""
	occ.Rate = nil
	if quote != nil {
		q := *quote
		occ.Rate = &q
		if q.Source != SourceContract {
			occ.ExchangeRateOverride = floatPtr(q.Rate)
			occ.ExchangeRateDate = q.Date
		}
	}

	switch {
	case occ.AmountEUR == nil:
		occ.Missing = "rent amount"
	case quote == nil || quote.Rate <= 0:
		occ.Missing = "exchange rate"
	default:
		t := ComputeTotals(*occ.AmountEUR, occ.CorrectionPercent, quote.Rate, occ.TVAPercent)
		occ.Totals = &t
	}
	return occ
}

// DueOccurrences returns the occurrences due in a month across contracts,
// ordered by issue date, contract and partner.
func DueOccurrences(contracts []Contract, year int, month time.Month, opts OccurrenceOptions) []DueOccurrence {
	var out []DueOccurrence
	for i := range contracts {
		out = append(out, ContractOccurrences(&contracts[i], year, month, opts)...)
	}
	sortOccurrences(out)
	return out
}

func sortOccurrences(occs []DueOccurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if c := a.IssuedAt.Compare(b.IssuedAt); c != 0 {
			return c < 0
		}
		if a.ContractID != b.ContractID {
			return a.ContractID < b.ContractID
		}
		if a.PartnerID != b.PartnerID {
			return a.PartnerID < b.PartnerID
		}
		return a.PartnerName < b.PartnerName
	})
}

// Prognosis sums the expected totals of every month of year, ignoring what
// has already been issued. Unpriced occurrences are counted but add nothing.
func Prognosis(contracts []Contract, year int, opts OccurrenceOptions) YearPrognosis {
	p := YearPrognosis{Year: year, Months: make([]MonthPrognosis, 0, 12)}
	for m := time.January; m <= time.December; m++ {
		mp := summarizeMonth(m, DueOccurrences(contracts, year, m, opts))
		p.TotalRON += mp.TotalRON
		p.Months = append(p.Months, mp)
	}
	return p
}

func summarizeMonth(month time.Month, occs []DueOccurrence) MonthPrognosis {
	mp := MonthPrognosis{Month: month}
	for i := range occs {
		mp.Occurrences++
		if occs[i].Totals == nil {
			mp.Unpriced++
			continue
		}
		mp.TotalRON += occs[i].Totals.TotalRON
	}
	return mp
}

func laterOf(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func floatPtr(v float64) *float64 {
	return &v
}
