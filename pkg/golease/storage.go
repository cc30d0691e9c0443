package golease

import (
	"context"
	"time"
)

// ContractStore provides the contracts to bill.
// All methods use concrete types from this package to avoid import cycles
type ContractStore interface {
	// ListActiveContracts returns every contract that may be billed.
	ListActiveContracts(ctx context.Context) ([]Contract, error)

	// GetContract returns a contract by id, or ErrContractNotFound.
	GetContract(ctx context.Context, id string) (*Contract, error)
}

// ContractWriter persists contracts. Callers validate before writing.
type ContractWriter interface {
	SaveContract(ctx context.Context, c *Contract) error
}

// InvoiceStore persists issued invoices.
//
// InsertInvoice must enforce uniqueness of (contractId, issuedAt, partnerToken)
// and return ErrDuplicateInvoice on conflict; the store is the authority for
// idempotency under concurrent issuance.
type InvoiceStore interface {
	// ListInvoicesForMonth returns invoices whose issue date lies in the month.
	ListInvoicesForMonth(ctx context.Context, year int, month time.Month) ([]Invoice, error)

	// ListInvoicesForYear returns a contract's invoices issued in year.
	ListInvoicesForYear(ctx context.Context, contractID string, year int) ([]Invoice, error)

	// InsertInvoice stores a new invoice.
	InsertInvoice(ctx context.Context, inv *Invoice) error

	// DeleteInvoicesFor removes all invoices of a contract on a date, regardless
	// of partner, and returns how many were removed.
	DeleteInvoicesFor(ctx context.Context, contractID string, issuedAt Date) (int, error)

	// InvalidateYearlyCache drops any cached yearly aggregate of the contract.
	InvalidateYearlyCache(ctx context.Context, contractID string) error
}

// YearlyTotalsCache caches yearly aggregates. Invoice stores may implement it
// themselves, or a separate cache can be configured on the Manager.
type YearlyTotalsCache interface {
	// GetYearlyTotals returns the cached totals or nil when absent.
	GetYearlyTotals(ctx context.Context, contractID string, year int) (*YearlyTotals, error)
	SetYearlyTotals(ctx context.Context, totals *YearlyTotals) error

	// InvalidateYearlyCache drops every cached year of the contract.
	InvalidateYearlyCache(ctx context.Context, contractID string) error
}

// RateStore persists exchange rate records, one per date.
type RateStore interface {
	// GetRate returns the record for date, or nil when absent.
	GetRate(ctx context.Context, date Date) (*RateRecord, error)

	// GetLatestRateOnOrBefore returns the most recent record dated <= date, or nil.
	GetLatestRateOnOrBefore(ctx context.Context, date Date) (*RateRecord, error)

	// UpsertRate inserts or overwrites the record for rec.Date.
	UpsertRate(ctx context.Context, rec *RateRecord) error
}

// FetchedRate is a rate returned by a live source.
type FetchedRate struct {
	Rate float64
	// EffectiveDate is the publication date of the rate, which may precede
	// the requested date on weekends and holidays.
	EffectiveDate Date
}

// LiveRateSource fetches rates from an external provider. It may fail.
type LiveRateSource interface {
	Name() string
	FetchRate(ctx context.Context, date Date) (*FetchedRate, error)
}

// PDFRenderer renders and stores the document of a newly issued invoice and
// returns its URL.
type PDFRenderer interface {
	RenderAndStoreInvoicePDF(ctx context.Context, inv *Invoice) (string, error)
}

// PDFRendererFunc adapts a function to PDFRenderer.
type PDFRendererFunc func(ctx context.Context, inv *Invoice) (string, error)

func (f PDFRendererFunc) RenderAndStoreInvoicePDF(ctx context.Context, inv *Invoice) (string, error) {
	return f(ctx, inv)
}
