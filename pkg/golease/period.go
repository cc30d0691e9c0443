package golease

import (
	"fmt"
	"sort"
	"strconv"
)

// EffectiveEndDate returns the latest ExtendedUntil among the contract's
// extensions, or EndDate when there are none. Extensions only move the end forward.
func EffectiveEndDate(c *Contract) Date {
	if len(c.Extensions) == 0 {
		return c.EndDate
	}
	end := c.Extensions[0].ExtendedUntil
	for _, ext := range c.Extensions[1:] {
		if ext.ExtendedUntil.After(end) {
			end = ext.ExtendedUntil
		}
	}
	return end
}

// ActiveWindow returns [StartDate, effective end].
func ActiveWindow(c *Contract) Period {
	return Period{Start: c.StartDate, End: EffectiveEndDate(c)}
}

// checkExtension enforces the write-time guard for one amendment against the
// effective end in force before it is applied.
func checkExtension(c *Contract, ext ContractExtension, currentEnd Date, field string) error {
	if ext.ExtendedUntil.IsZero() {
		return newValidationError(field+".extendedUntil", nil, "is required")
	}
	if ext.ExtendedUntil.Before(currentEnd) {
		return newValidationError(field+".extendedUntil", ext.ExtendedUntil,
			fmt.Sprintf("must not be earlier than the current end date %s", currentEnd))
	}
	if ext.DocDate.IsZero() {
		return newValidationError(field+".docDate", nil, "is required")
	}
	if !c.SignedAt.IsZero() && ext.DocDate.Before(c.SignedAt) {
		return newValidationError(field+".docDate", ext.DocDate,
			fmt.Sprintf("must not be before signedAt %s", c.SignedAt))
	}
	if ext.DocDate.After(ext.ExtendedUntil) {
		return newValidationError(field+".docDate", ext.DocDate,
			fmt.Sprintf("must not be after extendedUntil %s", ext.ExtendedUntil))
	}
	return nil
}

// AddExtension validates ext against c and returns a copy of c with ext appended.
// c itself is not modified.
func AddExtension(c Contract, ext ContractExtension) (Contract, error) {
	field := "contractExtensions[" + strconv.Itoa(len(c.Extensions)) + "]"
	if err := checkExtension(&c, ext, EffectiveEndDate(&c), field); err != nil {
		return c, err
	}
	out := c
	out.Extensions = make([]ContractExtension, len(c.Extensions), len(c.Extensions)+1)
	copy(out.Extensions, c.Extensions)
	out.Extensions = append(out.Extensions, ext)
	return out, nil
}

// ValidateContract checks the contract invariants and returns the first
// violation as a *ValidationError.
func ValidateContract(c *Contract) error {
	if c.ID == "" {
		return newValidationError("id", nil, "is required")
	}
	if c.StartDate.IsZero() {
		return newValidationError("startDate", nil, "is required")
	}
	if c.EndDate.IsZero() {
		return newValidationError("endDate", nil, "is required")
	}
	if !c.SignedAt.IsZero() && c.StartDate.Before(c.SignedAt) {
		return newValidationError("startDate", c.StartDate,
			fmt.Sprintf("must not be before signedAt %s", c.SignedAt))
	}
	if c.EndDate.Before(c.StartDate) {
		return newValidationError("endDate", c.EndDate,
			fmt.Sprintf("must not be before startDate %s", c.StartDate))
	}

	switch c.RentType {
	case RentTypeMonthly, RentTypeYearly:
	default:
		return &ValidationError{Field: "rentType", Value: string(c.RentType), Message: "must be monthly or yearly"}
	}
	switch c.InvoiceMonthMode {
	case "", ModeCurrent, ModeNext:
	default:
		return &ValidationError{Field: "invoiceMonthMode", Value: string(c.InvoiceMonthMode),
			Message: "must be current or next"}
	}
	if c.MonthlyInvoiceDay < 0 || c.MonthlyInvoiceDay > 31 {
		return &ValidationError{Field: "monthlyInvoiceDay", Value: strconv.Itoa(c.MonthlyInvoiceDay),
			Message: "must be between 1 and 31"}
	}

	for i, entry := range c.YearlyInvoices {
		field := "yearlyInvoices[" + strconv.Itoa(i) + "]"
		if !validMonth(entry.Month) {
			return &ValidationError{Field: field + ".month", Value: strconv.Itoa(int(entry.Month)),
				Message: "must be between 1 and 12"}
		}
		if entry.Day < 1 || entry.Day > 31 {
			return &ValidationError{Field: field + ".day", Value: strconv.Itoa(entry.Day),
				Message: "must be between 1 and 31"}
		}
		if entry.AmountEUR != nil && *entry.AmountEUR < 0 {
			return &ValidationError{Field: field + ".amountEUR", Message: "must not be negative"}
		}
	}

	for i, p := range c.Partners {
		if p.SharePercent < 0 {
			return &ValidationError{Field: "partners[" + strconv.Itoa(i) + "].sharePercent",
				Value: strconv.FormatFloat(p.SharePercent, 'f', -1, 64), Message: "must not be negative"}
		}
	}

	if c.RentAmountEUR != nil && *c.RentAmountEUR < 0 {
		return &ValidationError{Field: "rentAmountEuro", Message: "must not be negative"}
	}
	for i := 1; i < len(c.RentHistory); i++ {
		if c.RentHistory[i].EffectiveFrom.Before(c.RentHistory[i-1].EffectiveFrom) {
			return newValidationError("rentHistory["+strconv.Itoa(i)+"].effectiveFrom",
				c.RentHistory[i].EffectiveFrom, "entries must be in chronological order")
		}
	}

	// Replay amendments in signing order; each must hold against the end in force before it.
	exts := make([]ContractExtension, len(c.Extensions))
	copy(exts, c.Extensions)
	sort.SliceStable(exts, func(i, j int) bool { return exts[i].DocDate.Before(exts[j].DocDate) })
	end := c.EndDate
	for i, ext := range exts {
		if err := checkExtension(c, ext, end, "contractExtensions["+strconv.Itoa(i)+"]"); err != nil {
			return err
		}
		end = ext.ExtendedUntil
	}
	return nil
}
