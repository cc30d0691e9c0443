// Package postgres provides a PostgreSQL implementation of the golease storage interfaces.
// Invoice idempotency is enforced by a unique constraint on
// (contract_id, issued_at, partner_token); rates are upserted with ON CONFLICT.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/golease/pkg/golease"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Storage implements golease.ContractStore, golease.ContractWriter,
// golease.InvoiceStore, golease.YearlyTotalsCache and golease.RateStore
// using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Migrate creates the tables on startup when true
	Migrate bool

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often to run cleanup
	YearlyTotalsTTL time.Duration // Cached yearly totals older than this are deleted
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		Migrate:         true,
		CleanupEnabled:  true,
		CleanupInterval: 1 * time.Hour,
		YearlyTotalsTTL: 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.Migrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	if config.CleanupEnabled && config.CleanupInterval > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListActiveContracts implements golease.ContractStore
func (s *Storage) ListActiveContracts(ctx context.Context) ([]golease.Contract, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM contracts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var out []golease.Contract
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		var c golease.Contract
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode contract: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return out, nil
}

// GetContract implements golease.ContractStore
func (s *Storage) GetContract(ctx context.Context, id string) (*golease.Contract, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM contracts WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, golease.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	var c golease.Contract
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode contract: %w", err)
	}
	return &c, nil
}

// SaveContract implements golease.ContractWriter
func (s *Storage) SaveContract(ctx context.Context, c *golease.Contract) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid contract")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO contracts (id, data, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		c.ID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

const invoiceColumns = `id, contract_id, issued_at, partner_id, partner, amount_eur, correction_percent,
	corrected_amount_eur, exchange_rate_ron, exchange_rate_date, rate_source, tva_percent,
	net_ron, vat_ron, total_ron, pdf_url, created_at`

// ListInvoicesForMonth implements golease.InvoiceStore
func (s *Storage) ListInvoicesForMonth(ctx context.Context, year int, month time.Month) ([]golease.Invoice, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return s.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
			WHERE issued_at >= $1 AND issued_at < $2
			ORDER BY issued_at, contract_id, partner_token`,
		from, from.AddDate(0, 1, 0))
}

// ListInvoicesForYear implements golease.InvoiceStore
func (s *Storage) ListInvoicesForYear(ctx context.Context, contractID string, year int) ([]golease.Invoice, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return s.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
			WHERE contract_id = $1 AND issued_at >= $2 AND issued_at < $3
			ORDER BY issued_at, partner_token`,
		contractID, from, from.AddDate(1, 0, 0))
}

func (s *Storage) queryInvoices(ctx context.Context, query string, args ...interface{}) ([]golease.Invoice, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []golease.Invoice
	for rows.Next() {
		var (
			inv       golease.Invoice
			issuedAt  time.Time
			rateDate  *time.Time
			rateSrc   string
			createdAt time.Time
		)
		if err := rows.Scan(
			&inv.ID, &inv.ContractID, &issuedAt, &inv.PartnerID, &inv.Partner,
			&inv.AmountEUR, &inv.CorrectionPercent, &inv.CorrectedAmountEUR,
			&inv.ExchangeRateRON, &rateDate, &rateSrc, &inv.TVAPercent,
			&inv.NetRON, &inv.VATRON, &inv.TotalRON, &inv.PDFURL, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.IssuedAt = golease.DateOf(issuedAt)
		if rateDate != nil {
			inv.ExchangeRateDate = golease.DateOf(*rateDate)
		}
		inv.RateSource = golease.QuoteSource(rateSrc)
		inv.CreatedAt = createdAt.UTC()
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return out, nil
}

// InsertInvoice implements golease.InvoiceStore. The issuance key constraint
// turns a concurrent second issuance into golease.ErrDuplicateInvoice.
func (s *Storage) InsertInvoice(ctx context.Context, inv *golease.Invoice) error {
	if inv == nil || inv.ContractID == "" || inv.IssuedAt.IsZero() {
		return fmt.Errorf("invalid invoice")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoices (`+invoiceColumns+`, partner_token)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		inv.ID, inv.ContractID, inv.IssuedAt.Time(), inv.PartnerID, inv.Partner,
		inv.AmountEUR, inv.CorrectionPercent, inv.CorrectedAmountEUR,
		inv.ExchangeRateRON, nullableDate(inv.ExchangeRateDate), string(inv.RateSource), inv.TVAPercent,
		inv.NetRON, inv.VATRON, inv.TotalRON, inv.PDFURL, inv.CreatedAt,
		inv.PartnerToken(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return golease.ErrDuplicateInvoice
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// DeleteInvoicesFor implements golease.InvoiceStore
func (s *Storage) DeleteInvoicesFor(ctx context.Context, contractID string, issuedAt golease.Date) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM invoices WHERE contract_id = $1 AND issued_at = $2`,
		contractID, issuedAt.Time())
	if err != nil {
		return 0, fmt.Errorf("failed to delete invoices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// InvalidateYearlyCache implements golease.InvoiceStore
func (s *Storage) InvalidateYearlyCache(ctx context.Context, contractID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM yearly_totals WHERE contract_id = $1`, contractID); err != nil {
		return fmt.Errorf("failed to invalidate yearly totals: %w", err)
	}
	return nil
}

// GetYearlyTotals implements golease.YearlyTotalsCache
func (s *Storage) GetYearlyTotals(ctx context.Context, contractID string, year int) (*golease.YearlyTotals, error) {
	t := golease.YearlyTotals{ContractID: contractID, Year: year}
	err := s.pool.QueryRow(ctx,
		`SELECT invoices, amount_eur, net_ron, vat_ron, total_ron, computed_at
			FROM yearly_totals WHERE contract_id = $1 AND year = $2`,
		contractID, year).Scan(&t.Invoices, &t.AmountEUR, &t.NetRON, &t.VATRON, &t.TotalRON, &t.ComputedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get yearly totals: %w", err)
	}
	return &t, nil
}

// SetYearlyTotals implements golease.YearlyTotalsCache
func (s *Storage) SetYearlyTotals(ctx context.Context, t *golease.YearlyTotals) error {
	if t == nil || t.ContractID == "" {
		return fmt.Errorf("invalid yearly totals")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO yearly_totals (contract_id, year, invoices, amount_eur, net_ron, vat_ron, total_ron, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (contract_id, year) DO UPDATE SET
				invoices = EXCLUDED.invoices,
				amount_eur = EXCLUDED.amount_eur,
				net_ron = EXCLUDED.net_ron,
				vat_ron = EXCLUDED.vat_ron,
				total_ron = EXCLUDED.total_ron,
				computed_at = EXCLUDED.computed_at`,
		t.ContractID, t.Year, t.Invoices, t.AmountEUR, t.NetRON, t.VATRON, t.TotalRON, t.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set yearly totals: %w", err)
	}
	return nil
}

// GetRate implements golease.RateStore
func (s *Storage) GetRate(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	return s.queryRate(ctx,
		`SELECT date, rate, fetched_at, effective_date FROM exchange_rates WHERE date = $1`,
		date.Time())
}

// GetLatestRateOnOrBefore implements golease.RateStore
func (s *Storage) GetLatestRateOnOrBefore(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	return s.queryRate(ctx,
		`SELECT date, rate, fetched_at, effective_date FROM exchange_rates
			WHERE date <= $1 ORDER BY date DESC LIMIT 1`,
		date.Time())
}

func (s *Storage) queryRate(ctx context.Context, query string, arg interface{}) (*golease.RateRecord, error) {
	var (
		rec       golease.RateRecord
		date      time.Time
		effective *time.Time
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(&date, &rec.Rate, &rec.FetchedAt, &effective)
	if err == pgx.ErrNoRows {
		return nil, nil // No record is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	rec.Date = golease.DateOf(date)
	if effective != nil {
		rec.EffectiveDate = golease.DateOf(*effective)
	}
	return &rec, nil
}

// UpsertRate implements golease.RateStore
func (s *Storage) UpsertRate(ctx context.Context, rec *golease.RateRecord) error {
	if rec == nil || rec.Date.IsZero() {
		return fmt.Errorf("invalid rate record")
	}
	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchange_rates (date, rate, fetched_at, effective_date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (date) DO UPDATE SET
				rate = EXCLUDED.rate,
				fetched_at = EXCLUDED.fetched_at,
				effective_date = EXCLUDED.effective_date`,
		rec.Date.Time(), rec.Rate, fetchedAt, nullableDate(rec.EffectiveDate),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rate: %w", err)
	}
	return nil
}

func nullableDate(d golease.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

// startCleanup periodically deletes stale cached yearly totals.
// Uses a dedicated context that is canceled via Close().
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Cleanup(ctx) //nolint:errcheck // retried on the next tick
		}
	}
}

// Cleanup deletes cached yearly totals older than YearlyTotalsTTL.
func (s *Storage) Cleanup(ctx context.Context) error {
	if s.config.YearlyTotalsTTL <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.config.YearlyTotalsTTL)
	if _, err := s.pool.Exec(ctx, `DELETE FROM yearly_totals WHERE computed_at < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to cleanup yearly totals: %w", err)
	}
	return nil
}
