package golease

// PartnerAmount is one partner's portion of a base amount.
type PartnerAmount struct {
	Partner Partner
	Amount  float64
}

// SplitAmount divides base across partners by their share percentages.
// Partners with a share <= 0 are left out. Shares are not normalized, so a
// set summing to less or more than 100 under- or over-allocates on purpose.
func SplitAmount(base float64, partners []Partner) []PartnerAmount {
	out := make([]PartnerAmount, 0, len(partners))
	for _, p := range partners {
		if p.SharePercent <= 0 {
			continue
		}
		out = append(out, PartnerAmount{Partner: p, Amount: base * p.SharePercent / 100})
	}
	return out
}

// shouldFanOut reports whether a contract is billed per partner: more than
// one partner and a positive sum of shares.
func shouldFanOut(partners []Partner) bool {
	if len(partners) < 2 {
		return false
	}
	var sum float64
	for _, p := range partners {
		if p.SharePercent > 0 {
			sum += p.SharePercent
		}
	}
	return sum > 0
}
