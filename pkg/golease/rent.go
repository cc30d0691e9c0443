package golease

// RentAmountAsOf returns the rent in force on date: the latest history entry
// with EffectiveFrom <= date, else the contract's base amount.
// The boolean is false when no amount applies.
func RentAmountAsOf(c *Contract, date Date) (float64, bool) {
	found := false
	var amount float64
	var from Date
	for _, change := range c.RentHistory {
		if change.EffectiveFrom.After(date) {
			continue
		}
		if !found || !change.EffectiveFrom.Before(from) {
			amount, from, found = change.AmountEUR, change.EffectiveFrom, true
		}
	}
	if found {
		return amount, true
	}
	if c.RentAmountEUR != nil {
		return *c.RentAmountEUR, true
	}
	return 0, false
}

// AppendRentChange returns a copy of c with change appended to its rent history.
// Changes must be appended in chronological order.
func AppendRentChange(c Contract, change RentChange) (Contract, error) {
	if change.EffectiveFrom.IsZero() {
		return c, newValidationError("rentHistory.effectiveFrom", nil, "is required")
	}
	if change.AmountEUR < 0 {
		return c, newValidationError("rentHistory.amountEUR", nil, "must not be negative")
	}
	if n := len(c.RentHistory); n > 0 && change.EffectiveFrom.Before(c.RentHistory[n-1].EffectiveFrom) {
		return c, newValidationError("rentHistory.effectiveFrom", change.EffectiveFrom,
			"must not precede the latest recorded change "+c.RentHistory[n-1].EffectiveFrom.String())
	}
	out := c
	out.RentHistory = make([]RentChange, len(c.RentHistory), len(c.RentHistory)+1)
	copy(out.RentHistory, c.RentHistory)
	out.RentHistory = append(out.RentHistory, change)
	return out, nil
}
