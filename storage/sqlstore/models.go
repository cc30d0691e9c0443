package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mihaimyh/golease/pkg/golease"
)

// Dates are stored as YYYY-MM-DD text so that lexical order is calendar
// order on every driver.

type contractRecord struct {
	ID        string `gorm:"primaryKey;size:128"`
	Name      string
	StartDate string `gorm:"size:10;not null"`
	EndDate   string `gorm:"size:10;not null"`
	Data      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (contractRecord) TableName() string { return "lease_contracts" }

type invoiceRecord struct {
	ID                 string `gorm:"primaryKey;size:64"`
	ContractID         string `gorm:"size:128;not null;uniqueIndex:idx_invoice_issuance,priority:1"`
	IssuedAt           string `gorm:"size:10;not null;index;uniqueIndex:idx_invoice_issuance,priority:2"`
	PartnerToken       string `gorm:"not null;uniqueIndex:idx_invoice_issuance,priority:3"`
	PartnerID          string
	Partner            string
	AmountEUR          float64
	CorrectionPercent  float64
	CorrectedAmountEUR float64
	ExchangeRateRON    float64
	ExchangeRateDate   string `gorm:"size:10"`
	RateSource         string
	TVAPercent         float64
	NetRON             float64
	VATRON             float64
	TotalRON           float64
	PDFURL             string
	CreatedAt          time.Time
}

func (invoiceRecord) TableName() string { return "lease_invoices" }

type rateRecord struct {
	Date          string  `gorm:"primaryKey;size:10"`
	Rate          float64 `gorm:"not null"`
	FetchedAt     time.Time
	EffectiveDate string `gorm:"size:10"`
}

func (rateRecord) TableName() string { return "exchange_rates" }

func dateString(d golease.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseOptionalDate(s string) (golease.Date, error) {
	if s == "" {
		return golease.Date{}, nil
	}
	return golease.ParseDate(s)
}

func newContractRecord(c *golease.Contract) (*contractRecord, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contract: %w", err)
	}
	return &contractRecord{
		ID:        c.ID,
		Name:      c.Name,
		StartDate: dateString(c.StartDate),
		EndDate:   dateString(c.EndDate),
		Data:      string(data),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (r *contractRecord) toContract() (*golease.Contract, error) {
	var c golease.Contract
	if err := json.Unmarshal([]byte(r.Data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode contract %s: %w", r.ID, err)
	}
	return &c, nil
}

func newInvoiceRecord(inv *golease.Invoice) *invoiceRecord {
	return &invoiceRecord{
		ID:                 inv.ID,
		ContractID:         inv.ContractID,
		IssuedAt:           dateString(inv.IssuedAt),
		PartnerToken:       inv.PartnerToken(),
		PartnerID:          inv.PartnerID,
		Partner:            inv.Partner,
		AmountEUR:          inv.AmountEUR,
		CorrectionPercent:  inv.CorrectionPercent,
		CorrectedAmountEUR: inv.CorrectedAmountEUR,
		ExchangeRateRON:    inv.ExchangeRateRON,
		ExchangeRateDate:   dateString(inv.ExchangeRateDate),
		RateSource:         string(inv.RateSource),
		TVAPercent:         inv.TVAPercent,
		NetRON:             inv.NetRON,
		VATRON:             inv.VATRON,
		TotalRON:           inv.TotalRON,
		PDFURL:             inv.PDFURL,
		CreatedAt:          inv.CreatedAt,
	}
}

func (r *invoiceRecord) toInvoice() (golease.Invoice, error) {
	issuedAt, err := golease.ParseDate(r.IssuedAt)
	if err != nil {
		return golease.Invoice{}, fmt.Errorf("invoice %s: %w", r.ID, err)
	}
	rateDate, err := parseOptionalDate(r.ExchangeRateDate)
	if err != nil {
		return golease.Invoice{}, fmt.Errorf("invoice %s: %w", r.ID, err)
	}
	return golease.Invoice{
		ID:                 r.ID,
		ContractID:         r.ContractID,
		IssuedAt:           issuedAt,
		PartnerID:          r.PartnerID,
		Partner:            r.Partner,
		AmountEUR:          r.AmountEUR,
		CorrectionPercent:  r.CorrectionPercent,
		CorrectedAmountEUR: r.CorrectedAmountEUR,
		ExchangeRateRON:    r.ExchangeRateRON,
		ExchangeRateDate:   rateDate,
		RateSource:         golease.QuoteSource(r.RateSource),
		TVAPercent:         r.TVAPercent,
		NetRON:             r.NetRON,
		VATRON:             r.VATRON,
		TotalRON:           r.TotalRON,
		PDFURL:             r.PDFURL,
		CreatedAt:          r.CreatedAt.UTC(),
	}, nil
}

func (r *rateRecord) toRecord() (*golease.RateRecord, error) {
	date, err := golease.ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	effective, err := parseOptionalDate(r.EffectiveDate)
	if err != nil {
		return nil, err
	}
	return &golease.RateRecord{
		Date:          date,
		Rate:          r.Rate,
		FetchedAt:     r.FetchedAt.UTC(),
		EffectiveDate: effective,
	}, nil
}
