package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/golease/pkg/golease"
)

// money renders an amount with two decimals. Amounts are computed in
// float64; decimal is only used for display.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func moneyPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v)
}

func rateString(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func partnerLabel(o *golease.DueOccurrence) string {
	switch {
	case o.PartnerName != "":
		return o.PartnerName
	case o.PartnerID != "":
		return o.PartnerID
	case o.ContractPartnerName != "":
		return o.ContractPartnerName
	default:
		return "-"
	}
}

func printOccurrences(w io.Writer, occs []golease.DueOccurrence) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CONTRACT\tISSUED\tPARTNER\tPERIOD\tEUR\tRATE\tTOTAL RON\tNOTE")
	for i := range occs {
		o := &occs[i]
		rateCol, totalCol, note := "-", "-", ""
		if o.Rate != nil {
			rateCol = rateString(o.Rate.Rate)
		}
		if o.Totals != nil {
			totalCol = money(o.Totals.TotalRON)
		}
		if !o.Priced() {
			note = "unpriced: " + o.Missing
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%s\t%s\t%s\t%s\n",
			o.ContractID, o.IssuedAt, partnerLabel(o), o.Period.Start, o.Period.End,
			moneyPtr(o.AmountEUR), rateCol, totalCol, note)
	}
	return tw.Flush()
}

func printInvoice(w io.Writer, inv *golease.Invoice) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID\t%s\n", inv.ID)
	fmt.Fprintf(tw, "Contract\t%s\n", inv.ContractID)
	fmt.Fprintf(tw, "Issued\t%s\n", inv.IssuedAt)
	if inv.Partner != "" {
		fmt.Fprintf(tw, "Partner\t%s\n", inv.Partner)
	}
	fmt.Fprintf(tw, "Amount EUR\t%s\n", money(inv.CorrectedAmountEUR))
	fmt.Fprintf(tw, "Rate\t%s (%s, %s)\n", rateString(inv.ExchangeRateRON), inv.ExchangeRateDate, inv.RateSource)
	fmt.Fprintf(tw, "Net RON\t%s\n", money(inv.NetRON))
	fmt.Fprintf(tw, "VAT RON\t%s\n", money(inv.VATRON))
	fmt.Fprintf(tw, "Total RON\t%s\n", money(inv.TotalRON))
	return tw.Flush()
}

func printPrognosis(w io.Writer, p *golease.YearPrognosis) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MONTH\tOCCURRENCES\tUNPRICED\tTOTAL RON")
	for _, m := range p.Months {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", m.Month, m.Occurrences, m.Unpriced, money(m.TotalRON))
	}
	fmt.Fprintf(tw, "%d\t\t\t%s\n", p.Year, money(p.TotalRON))
	return tw.Flush()
}
