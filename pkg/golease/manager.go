package golease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RatePolicy selects the exchange rate used to price due occurrences.
type RatePolicy string

const (
	// RatePolicyContract prices with the contract's own rate, resolving a
	// rate for the issue date only when the contract has none.
	RatePolicyContract RatePolicy = "contract"
	// RatePolicyDaily prices everything with today's rate as an override.
	RatePolicyDaily RatePolicy = "daily"
	// RatePolicyIssueDate resolves a rate for each issue date, with fallback.
	RatePolicyIssueDate RatePolicy = "issue-date"
)

// Config holds Manager configuration.
type Config struct {
	// Rates resolves exchange rates. Optional with RatePolicyContract
	Rates *RateResolver

	// RatePolicy defaults to RatePolicyContract
	RatePolicy RatePolicy

	// PDFRenderer is called once per newly issued invoice (optional)
	PDFRenderer PDFRenderer

	// YearlyCache caches yearly totals. Default: the invoice store, when it
	// implements YearlyTotalsCache
	YearlyCache YearlyTotalsCache

	// YearlyCacheTTL bounds cached yearly totals. Default: 1h
	YearlyCacheTTL time.Duration

	Clock   Clock
	Logger  Logger
	Metrics Metrics
}

// Manager computes due occurrences and issues or deletes invoices.
type Manager struct {
	contracts ContractStore
	invoices  InvoiceStore
	config    Config
	logger    Logger
	metrics   Metrics
}

// NewManager creates a new billing manager with the given stores and configuration
func NewManager(contracts ContractStore, invoices InvoiceStore, config Config) (*Manager, error) {
	if contracts == nil || invoices == nil {
		return nil, ErrStorageUnavailable
	}

	// Set defaults
	if config.RatePolicy == "" {
		config.RatePolicy = RatePolicyContract
	}
	switch config.RatePolicy {
	case RatePolicyContract:
	case RatePolicyDaily, RatePolicyIssueDate:
		if config.Rates == nil {
			return nil, fmt.Errorf("rate policy %q requires a rate resolver", config.RatePolicy)
		}
	default:
		return nil, fmt.Errorf("unknown rate policy %q", config.RatePolicy)
	}
	if config.YearlyCache == nil {
		if cache, ok := invoices.(YearlyTotalsCache); ok {
			config.YearlyCache = cache
		}
	}
	if config.YearlyCacheTTL == 0 {
		config.YearlyCacheTTL = time.Hour
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Manager{
		contracts: contracts,
		invoices:  invoices,
		config:    config,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}, nil
}

// Rates returns the configured rate resolver, or nil.
func (m *Manager) Rates() *RateResolver {
	return m.config.Rates
}

// ComputeDueOccurrences lists the occurrences due in (year, month) that have
// not been issued yet. Occurrences without an amount or rate are listed unpriced.
func (m *Manager) ComputeDueOccurrences(ctx context.Context, year int, month time.Month) ([]DueOccurrence, error) {
	if !validMonth(month) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	contracts, err := m.listContracts(ctx)
	if err != nil {
		return nil, err
	}

	due, err := m.pricedOccurrences(ctx, contracts, year, month)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	issued, err := m.invoices.ListInvoicesForMonth(ctx, year, month)
	m.metrics.RecordStorageOperation("list_invoices_month", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	remaining := NewIssuanceLedger(issued).FilterIssued(due)

	unpriced := 0
	for i := range remaining {
		if !remaining[i].Priced() {
			unpriced++
			m.logger.Warn("occurrence left unpriced",
				Field{"contractId", remaining[i].ContractID},
				Field{"issuedAt", remaining[i].IssuedAt.String()},
				Field{"missing", remaining[i].Missing},
			)
		}
	}
	m.metrics.RecordDueOccurrences(len(remaining), unpriced)
	return remaining, nil
}

func (m *Manager) listContracts(ctx context.Context) ([]Contract, error) {
	start := time.Now()
	contracts, err := m.contracts.ListActiveContracts(ctx)
	m.metrics.RecordStorageOperation("list_contracts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}

// pricedOccurrences generates the month's occurrences and prices them under
// the configured rate policy.
func (m *Manager) pricedOccurrences(
	ctx context.Context, contracts []Contract, year int, month time.Month,
) ([]DueOccurrence, error) {
	var opts OccurrenceOptions
	if m.config.RatePolicy == RatePolicyDaily {
		quote, err := m.config.Rates.DailyRate(ctx, false)
		if err != nil {
			m.logger.Warn("daily rate unavailable, using contract rates", Field{"error", err.Error()})
		} else {
			opts.RateOverride = quote
		}
	}

	occs := DueOccurrences(contracts, year, month, opts)
	if m.config.Rates == nil {
		return occs, nil
	}

	quotes := make(map[Date]*RateQuote)
	for i := range occs {
		needsRate := m.config.RatePolicy == RatePolicyIssueDate ||
			(occs[i].Rate == nil && occs[i].AmountEUR != nil)
		if !needsRate {
			continue
		}
		quote, ok := quotes[occs[i].IssuedAt]
		if !ok {
			q, err := m.config.Rates.Resolve(ctx, occs[i].IssuedAt, true)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				m.logger.Warn("no rate for issue date",
					Field{"issuedAt", occs[i].IssuedAt.String()},
					Field{"error", err.Error()},
				)
			}
			quote = q
			quotes[occs[i].IssuedAt] = quote
		}
		if quote != nil {
			occs[i] = PriceOccurrence(occs[i], quote)
		}
	}
	return occs, nil
}

// IssueOption customizes IssueOccurrence.
type IssueOption func(*issueOptions)

type issueOptions struct {
	rateOverride *RateQuote
}

// WithRateOverride prices the invoice with rate as published on date.
func WithRateOverride(rate float64, date Date) IssueOption {
	return func(o *issueOptions) {
		o.rateOverride = &RateQuote{Rate: rate, Date: date, Source: SourceOverride}
	}
}

// IssueOccurrence persists occ as an invoice, renders its PDF and invalidates
// the contract's yearly aggregate. occ only identifies the occurrence by
// contract, issue date and partner; it is regenerated and priced from the
// stored contract, and a *ValidationError is returned when the contract has
// no such occurrence. An occurrence already issued yields ErrDuplicateInvoice;
// an unpriced one yields a *MissingDataError.
func (m *Manager) IssueOccurrence(ctx context.Context, occ DueOccurrence, opts ...IssueOption) (*Invoice, error) {
	var o issueOptions
	for _, opt := range opts {
		opt(&o)
	}

	contract, err := m.contracts.GetContract(ctx, occ.ContractID)
	if err != nil {
		m.metrics.RecordInvoiceIssued("error")
		return nil, fmt.Errorf("failed to load contract %s: %w", occ.ContractID, err)
	}

	// Amounts and totals are always re-derived from the contract; only the
	// identity of the requested occurrence is taken from the caller.
	generated, err := m.pricedOccurrences(ctx, []Contract{*contract}, occ.IssuedAt.Year, occ.IssuedAt.Month)
	if err != nil {
		m.metrics.RecordInvoiceIssued("error")
		return nil, err
	}
	matched, err := matchOccurrence(generated, &occ)
	if err != nil {
		m.metrics.RecordInvoiceIssued("error")
		return nil, err
	}
	occ = *matched

	if o.rateOverride != nil {
		occ = PriceOccurrence(occ, o.rateOverride)
	}
	if !occ.Priced() {
		m.metrics.RecordInvoiceIssued("unpriced")
		what := occ.Missing
		if what == "" {
			what = "pricing"
		}
		return nil, &MissingDataError{ContractID: occ.ContractID, IssuedAt: occ.IssuedAt, What: what}
	}

	// Advisory check; the store's uniqueness constraint is authoritative.
	issued, err := m.invoices.ListInvoicesForMonth(ctx, occ.IssuedAt.Year, occ.IssuedAt.Month)
	if err != nil {
		m.metrics.RecordInvoiceIssued("error")
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	if NewIssuanceLedger(issued).IsIssued(&occ, 0) {
		m.metrics.RecordInvoiceIssued("duplicate")
		m.logger.Info("occurrence already issued",
			Field{"contractId", occ.ContractID},
			Field{"issuedAt", occ.IssuedAt.String()},
		)
		return nil, ErrDuplicateInvoice
	}

	inv := newInvoice(occ, m.config.Clock.Now().UTC())

	if m.config.PDFRenderer != nil {
		url, err := m.config.PDFRenderer.RenderAndStoreInvoicePDF(ctx, inv)
		if err != nil {
			m.metrics.RecordInvoiceIssued("error")
			return nil, fmt.Errorf("failed to render invoice pdf: %w", err)
		}
		inv.PDFURL = url
	}

	start := time.Now()
	err = m.invoices.InsertInvoice(ctx, inv)
	m.metrics.RecordStorageOperation("insert_invoice", time.Since(start), err)
	if err != nil {
		if errors.Is(err, ErrDuplicateInvoice) {
			m.metrics.RecordInvoiceIssued("duplicate")
			return nil, ErrDuplicateInvoice
		}
		m.metrics.RecordInvoiceIssued("error")
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	m.invalidateYearly(ctx, inv.ContractID)
	m.metrics.RecordInvoiceIssued("issued")
	m.logger.Info("invoice issued",
		Field{"invoiceId", inv.ID},
		Field{"contractId", inv.ContractID},
		Field{"issuedAt", inv.IssuedAt.String()},
		Field{"partner", inv.PartnerToken()},
	)
	return inv, nil
}

// matchOccurrence picks the generated occurrence that req refers to: same
// issue date and, when req names a partner, the same partner id or name.
func matchOccurrence(generated []DueOccurrence, req *DueOccurrence) (*DueOccurrence, error) {
	id, name := normalizeToken(req.PartnerID), normalizeToken(req.PartnerName)

	var matches []*DueOccurrence
	for i := range generated {
		g := &generated[i]
		if !g.IssuedAt.Equal(req.IssuedAt) {
			continue
		}
		if (id != "" || name != "") && !partnerMatches(g, id, name) {
			continue
		}
		matches = append(matches, g)
	}

	switch len(matches) {
	case 0:
		return nil, &ValidationError{Field: "issuedAt", Value: req.IssuedAt.String(),
			Message: "contract has no occurrence due on this date for this partner"}
	case 1:
		return matches[0], nil
	default:
		return nil, &ValidationError{Field: "partner", Value: req.IssuedAt.String(),
			Message: fmt.Sprintf("%d partner occurrences are due on this date, name one", len(matches))}
	}
}

func partnerMatches(g *DueOccurrence, id, name string) bool {
	gid, gname := normalizeToken(g.PartnerID), normalizeToken(g.PartnerName)
	if id != "" && (id == gid || id == gname) {
		return true
	}
	return name != "" && (name == gname || name == gid)
}

func newInvoice(occ DueOccurrence, now time.Time) *Invoice {
	inv := &Invoice{
		ID:                 uuid.NewString(),
		ContractID:         occ.ContractID,
		IssuedAt:           occ.IssuedAt,
		PartnerID:          occ.PartnerID,
		Partner:            occ.PartnerName,
		AmountEUR:          *occ.AmountEUR,
		CorrectionPercent:  occ.CorrectionPercent,
		CorrectedAmountEUR: occ.Totals.CorrectedEUR,
		TVAPercent:         occ.TVAPercent,
		NetRON:             occ.Totals.NetRON,
		VATRON:             occ.Totals.VATRON,
		TotalRON:           occ.Totals.TotalRON,
		CreatedAt:          now,
	}
	if occ.Rate != nil {
		inv.ExchangeRateRON = occ.Rate.Rate
		inv.ExchangeRateDate = occ.Rate.Date
		inv.RateSource = occ.Rate.Source
	}
	return inv
}

// DeleteIssuedInvoice removes every invoice of contractID issued on issuedAt,
// whatever the partner, then invalidates the contract's yearly aggregate.
func (m *Manager) DeleteIssuedInvoice(ctx context.Context, contractID string, issuedAt Date) (int, error) {
	if contractID == "" {
		return 0, &ValidationError{Field: "contractId", Message: "is required"}
	}
	if issuedAt.IsZero() {
		return 0, &ValidationError{Field: "issuedAt", Message: "is required"}
	}

	start := time.Now()
	n, err := m.invoices.DeleteInvoicesFor(ctx, contractID, issuedAt)
	m.metrics.RecordStorageOperation("delete_invoices", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete invoices: %w", err)
	}

	if err := m.invalidateYearlyCaches(ctx, contractID); err != nil {
		return n, fmt.Errorf("failed to invalidate yearly cache: %w", err)
	}

	m.metrics.RecordInvoicesDeleted(n)
	m.logger.Info("invoices deleted",
		Field{"contractId", contractID},
		Field{"issuedAt", issuedAt.String()},
		Field{"count", n},
	)
	return n, nil
}

// invalidateYearlyCaches invalidates the invoice store and, when it is a
// separate component, the configured yearly cache.
func (m *Manager) invalidateYearlyCaches(ctx context.Context, contractID string) error {
	if err := m.invoices.InvalidateYearlyCache(ctx, contractID); err != nil {
		return err
	}
	if m.config.YearlyCache == nil {
		return nil
	}
	if store, ok := m.config.YearlyCache.(InvoiceStore); ok && store == m.invoices {
		return nil
	}
	return m.config.YearlyCache.InvalidateYearlyCache(ctx, contractID)
}

func (m *Manager) invalidateYearly(ctx context.Context, contractID string) {
	if err := m.invalidateYearlyCaches(ctx, contractID); err != nil {
		m.logger.Warn("failed to invalidate yearly cache",
			Field{"contractId", contractID},
			Field{"error", err.Error()},
		)
	}
}

// Prognosis returns the expected monthly totals of year for all active
// contracts, ignoring what has been issued. Occurrences are priced under the
// same rate policy as ComputeDueOccurrences.
func (m *Manager) Prognosis(ctx context.Context, year int) (*YearPrognosis, error) {
	contracts, err := m.listContracts(ctx)
	if err != nil {
		return nil, err
	}

	p := &YearPrognosis{Year: year, Months: make([]MonthPrognosis, 0, 12)}
	for month := time.January; month <= time.December; month++ {
		occs, err := m.pricedOccurrences(ctx, contracts, year, month)
		if err != nil {
			return nil, err
		}
		mp := summarizeMonth(month, occs)
		p.TotalRON += mp.TotalRON
		p.Months = append(p.Months, mp)
	}
	return p, nil
}

// YearlyTotals aggregates the invoices issued for a contract in year, served
// from the store's yearly cache when it has one.
func (m *Manager) YearlyTotals(ctx context.Context, contractID string, year int) (*YearlyTotals, error) {
	cache := m.config.YearlyCache
	cacheable := cache != nil
	if cacheable {
		cached, err := cache.GetYearlyTotals(ctx, contractID, year)
		if err != nil {
			m.logger.Warn("yearly cache read failed", Field{"contractId", contractID}, Field{"error", err.Error()})
		} else if cached != nil && m.config.Clock.Now().Sub(cached.ComputedAt) < m.config.YearlyCacheTTL {
			m.metrics.RecordCacheHit("yearly")
			return cached, nil
		}
		m.metrics.RecordCacheMiss("yearly")
	}

	start := time.Now()
	invoices, err := m.invoices.ListInvoicesForYear(ctx, contractID, year)
	m.metrics.RecordStorageOperation("list_invoices_year", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	totals := AggregateYearly(contractID, year, invoices)
	totals.ComputedAt = m.config.Clock.Now().UTC()

	if cacheable {
		if err := cache.SetYearlyTotals(ctx, totals); err != nil {
			m.logger.Warn("yearly cache write failed", Field{"contractId", contractID}, Field{"error", err.Error()})
		}
	}
	return totals, nil
}

// AggregateYearly sums invoices of contractID issued in year.
func AggregateYearly(contractID string, year int, invoices []Invoice) *YearlyTotals {
	t := &YearlyTotals{ContractID: contractID, Year: year}
	for i := range invoices {
		inv := &invoices[i]
		if inv.ContractID != contractID || inv.IssuedAt.Year != year {
			continue
		}
		t.Invoices++
		t.AmountEUR += inv.AmountEUR
		t.NetRON += inv.NetRON
		t.VATRON += inv.VATRON
		t.TotalRON += inv.TotalRON
	}
	return t
}
