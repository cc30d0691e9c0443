package golease

// ComputeTotals converts a EUR amount into RON net, VAT and total.
// Values are never rounded here; rounding belongs to presentation.
func ComputeTotals(amountEUR, correctionPercent, exchangeRateRON, tvaPercent float64) Totals {
	corrected := amountEUR * (1 + correctionPercent/100)
	net := corrected * exchangeRateRON
	vat := net * (tvaPercent / 100)
	return Totals{
		CorrectedEUR: corrected,
		NetRON:       net,
		VATRON:       vat,
		TotalRON:     net + vat,
	}
}
