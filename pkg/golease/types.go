package golease

import (
	"strings"
	"time"
)

// RentType selects how a contract is billed
type RentType string

const (
	// RentTypeMonthly bills once per calendar month
	RentTypeMonthly RentType = "monthly"
	// RentTypeYearly bills on the dates listed in the contract schedule
	RentTypeYearly RentType = "yearly"
)

// InvoiceMonthMode selects which month a monthly invoice covers
type InvoiceMonthMode string

const (
	// ModeCurrent bills the month the invoice is issued in
	ModeCurrent InvoiceMonthMode = "current"
	// ModeNext bills the following calendar month in advance
	ModeNext InvoiceMonthMode = "next"
)

// Partner is a co-tenant with a percentage share of the rent.
type Partner struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name,omitempty"`
	SharePercent float64 `json:"sharePercent,omitempty"`
}

// ScheduledInvoice is one entry of a yearly billing schedule.
// A nil AmountEUR bills the rent in force on the issue date.
type ScheduledInvoice struct {
	Month     time.Month `json:"month"`
	Day       int        `json:"day"`
	AmountEUR *float64   `json:"amountEUR,omitempty"`
}

// RentChange records a rent amount that applies from EffectiveFrom onwards.
type RentChange struct {
	EffectiveFrom Date    `json:"effectiveFrom"`
	AmountEUR     float64 `json:"amountEUR"`
}

// ContractExtension is a signed amendment pushing the contract end forward.
type ContractExtension struct {
	DocDate       Date   `json:"docDate"`
	Document      string `json:"document,omitempty"`
	ExtendedUntil Date   `json:"extendedUntil"`
}

// Contract is a leasing contract as exchanged with the contract store.
type Contract struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Owner string `json:"owner,omitempty"`

	// Primary partner identity
	PartnerID string `json:"partnerId,omitempty"`
	Partner   string `json:"partner,omitempty"`

	Partners []Partner `json:"partners,omitempty"`

	SignedAt  Date `json:"signedAt"`
	StartDate Date `json:"startDate"`
	EndDate   Date `json:"endDate"`

	RentType          RentType           `json:"rentType"`
	InvoiceMonthMode  InvoiceMonthMode   `json:"invoiceMonthMode,omitempty"`
	MonthlyInvoiceDay int                `json:"monthlyInvoiceDay,omitempty"`
	YearlyInvoices    []ScheduledInvoice `json:"yearlyInvoices,omitempty"`

	RentAmountEUR     *float64     `json:"rentAmountEuro,omitempty"`
	RentHistory       []RentChange `json:"rentHistory,omitempty"`
	ExchangeRateRON   *float64     `json:"exchangeRateRON,omitempty"`
	CorrectionPercent float64      `json:"correctionPercent,omitempty"`
	TVAPercent        float64      `json:"tvaPercent,omitempty"`

	Extensions []ContractExtension `json:"contractExtensions,omitempty"`
}

// PrimaryPartner returns the identity used when the contract is billed as a
// single occurrence: the contract-level partner, else the first listed partner.
func (c *Contract) PrimaryPartner() (id, name string) {
	if c.PartnerID != "" || c.Partner != "" {
		return c.PartnerID, c.Partner
	}
	if len(c.Partners) > 0 {
		return c.Partners[0].ID, c.Partners[0].Name
	}
	return "", ""
}

func (c *Contract) mode() InvoiceMonthMode {
	if c.InvoiceMonthMode == "" {
		return ModeCurrent
	}
	return c.InvoiceMonthMode
}

// Period is an inclusive range of calendar days.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// QuoteSource tells where a resolved exchange rate came from.
type QuoteSource string

const (
	SourceDB       QuoteSource = "db"
	SourceBNR      QuoteSource = "bnr"
	SourceCache    QuoteSource = "cache"
	SourceFallback QuoteSource = "fallback"
	// SourceContract marks the rate stored on the contract itself
	SourceContract QuoteSource = "contract"
	// SourceOverride marks a rate supplied by the caller
	SourceOverride QuoteSource = "override"
)

// RateQuote is a resolved EUR to RON rate.
type RateQuote struct {
	Rate   float64     `json:"rate"`
	Date   Date        `json:"date"`
	Source QuoteSource `json:"source"`
}

// RateRecord is one persisted exchange rate per calendar date.
// EffectiveDate is the publication date reported by the live source when
// it differs from Date (weekends, holidays).
type RateRecord struct {
	Date          Date      `json:"date"`
	Rate          float64   `json:"rate"`
	FetchedAt     time.Time `json:"fetchedAt"`
	EffectiveDate Date      `json:"effectiveDate,omitempty"`
}

func (r *RateRecord) effective() Date {
	if r.EffectiveDate.IsZero() {
		return r.Date
	}
	return r.EffectiveDate
}

// Totals are the local-currency amounts of one priced occurrence.
type Totals struct {
	CorrectedEUR float64 `json:"correctedEUR"`
	NetRON       float64 `json:"netRON"`
	VATRON       float64 `json:"vatRON"`
	TotalRON     float64 `json:"totalRON"`
}

// DueOccurrence is an invoice that should exist for a contract in a month.
// It is computed fresh on every query and never persisted as such.
// A nil AmountEUR or Totals means "unavailable", which is distinct from zero.
type DueOccurrence struct {
	ContractID   string           `json:"contractId"`
	ContractName string           `json:"contractName,omitempty"`
	IssuedAt     Date             `json:"issuedAt"`
	Period       Period           `json:"period"`
	RentType     RentType         `json:"rentType"`
	Mode         InvoiceMonthMode `json:"mode"`

	PartnerID           string  `json:"partnerId,omitempty"`
	PartnerName         string  `json:"partnerName,omitempty"`
	ContractPartnerID   string  `json:"contractPartnerId,omitempty"`
	ContractPartnerName string  `json:"contractPartnerName,omitempty"`
	SharePercent        float64 `json:"sharePercent,omitempty"`

	Fraction          float64  `json:"fraction"`
	BaseAmountEUR     *float64 `json:"baseAmountEUR,omitempty"`
	AmountEUR         *float64 `json:"amountEUR,omitempty"`
	CorrectionPercent float64  `json:"correctionPercent"`
	TVAPercent        float64  `json:"tvaPercent"`

	ExchangeRateOverride *float64   `json:"exchangeRateOverride,omitempty"`
	ExchangeRateDate     Date       `json:"exchangeRateDate,omitempty"`
	Rate                 *RateQuote `json:"rate,omitempty"`
	Totals               *Totals    `json:"totals,omitempty"`

	// Missing names the data that kept the occurrence unpriced.
	Missing string `json:"missing,omitempty"`
}

// Priced reports whether the occurrence has an amount and totals.
func (o *DueOccurrence) Priced() bool {
	return o.AmountEUR != nil && o.Totals != nil
}

// hasPartnerFields reports whether any partner-identifying field is set.
func (o *DueOccurrence) hasPartnerFields() bool {
	return strings.TrimSpace(o.PartnerID) != "" ||
		strings.TrimSpace(o.PartnerName) != "" ||
		strings.TrimSpace(o.ContractPartnerID) != "" ||
		strings.TrimSpace(o.ContractPartnerName) != ""
}

// Invoice is an issued, persisted invoice.
type Invoice struct {
	ID                 string      `json:"id"`
	ContractID         string      `json:"contractId"`
	IssuedAt           Date        `json:"issuedAt"`
	PartnerID          string      `json:"partnerId,omitempty"`
	Partner            string      `json:"partner,omitempty"`
	AmountEUR          float64     `json:"amountEUR"`
	CorrectionPercent  float64     `json:"correctionPercent"`
	CorrectedAmountEUR float64     `json:"correctedAmountEUR"`
	ExchangeRateRON    float64     `json:"exchangeRateRON"`
	ExchangeRateDate   Date        `json:"exchangeRateDate,omitempty"`
	RateSource         QuoteSource `json:"rateSource,omitempty"`
	TVAPercent         float64     `json:"tvaPercent"`
	NetRON             float64     `json:"netRON"`
	VATRON             float64     `json:"vatRON"`
	TotalRON           float64     `json:"totalRON"`
	PDFURL             string      `json:"pdfUrl,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
}

// PartnerToken is the normalized partner identity used in uniqueness keys:
// the partner id, else the partner name, lower-cased and trimmed.
func (inv *Invoice) PartnerToken() string {
	if t := normalizeToken(inv.PartnerID); t != "" {
		return t
	}
	return normalizeToken(inv.Partner)
}

// YearlyTotals aggregates the issued invoices of a contract for one year.
type YearlyTotals struct {
	ContractID string    `json:"contractId"`
	Year       int       `json:"year"`
	Invoices   int       `json:"invoices"`
	AmountEUR  float64   `json:"amountEUR"`
	NetRON     float64   `json:"netRON"`
	VATRON     float64   `json:"vatRON"`
	TotalRON   float64   `json:"totalRON"`
	ComputedAt time.Time `json:"computedAt"`
}

// MonthPrognosis is the expected billing total for one month.
type MonthPrognosis struct {
	Month       time.Month `json:"month"`
	Occurrences int        `json:"occurrences"`
	Unpriced    int        `json:"unpriced"`
	TotalRON    float64    `json:"totalRON"`
}

// YearPrognosis is the expected billing total for a year, month by month.
type YearPrognosis struct {
	Year     int              `json:"year"`
	Months   []MonthPrognosis `json:"months"`
	TotalRON float64          `json:"totalRON"`
}
