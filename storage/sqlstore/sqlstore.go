// Package sqlstore keeps contracts, invoices and exchange rates in a
// relational schema managed by gorm. It runs on PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mihaimyh/golease/pkg/golease"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the gorm connection settings
type Config struct {
	// Driver is "postgres" or "sqlite"
	Driver string

	// DSN is the driver-specific data source name
	DSN string

	// AutoMigrate creates or updates the tables on open
	AutoMigrate bool

	// Debug logs every SQL statement
	Debug bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Driver:      DriverPostgres,
		AutoMigrate: true,
	}
}

// Storage implements golease.ContractStore, golease.ContractWriter,
// golease.InvoiceStore and golease.RateStore on top of gorm
type Storage struct {
	db *gorm.DB
}

// Open connects with the configured driver and returns a storage adapter
func Open(config Config) (*Storage, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(config.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", config.Driver)
	}

	logLevel := logger.Silent
	if config.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	s, err := New(db)
	if err != nil {
		return nil, err
	}
	if config.AutoMigrate {
		if err := s.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing gorm handle. The handle should be opened with
// TranslateError so unique violations can be recognized.
func New(db *gorm.DB) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	return &Storage{db: db}, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	for _, m := range []interface{}{&contractRecord{}, &invoiceRecord{}, &rateRecord{}} {
		if err := s.db.WithContext(ctx).AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListActiveContracts implements golease.ContractStore
func (s *Storage) ListActiveContracts(ctx context.Context) ([]golease.Contract, error) {
	var records []contractRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	out := make([]golease.Contract, 0, len(records))
	for i := range records {
		c, err := records[i].toContract()
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// GetContract implements golease.ContractStore
func (s *Storage) GetContract(ctx context.Context, id string) (*golease.Contract, error) {
	var rec contractRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, golease.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return rec.toContract()
}

// SaveContract implements golease.ContractWriter
func (s *Storage) SaveContract(ctx context.Context, c *golease.Contract) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid contract")
	}
	rec, err := newContractRecord(c)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// ListInvoicesForMonth implements golease.InvoiceStore
func (s *Storage) ListInvoicesForMonth(ctx context.Context, year int, month time.Month) ([]golease.Invoice, error) {
	from := golease.NewDate(year, month, 1)
	to := golease.DateOf(from.Time().AddDate(0, 1, 0))
	return s.findInvoices(s.db.WithContext(ctx).
		Where("issued_at >= ? AND issued_at < ?", from.String(), to.String()).
		Order("issued_at, contract_id, partner_token"))
}

// ListInvoicesForYear implements golease.InvoiceStore
func (s *Storage) ListInvoicesForYear(ctx context.Context, contractID string, year int) ([]golease.Invoice, error) {
	from := golease.NewDate(year, time.January, 1)
	to := golease.NewDate(year+1, time.January, 1)
	return s.findInvoices(s.db.WithContext(ctx).
		Where("contract_id = ? AND issued_at >= ? AND issued_at < ?", contractID, from.String(), to.String()).
		Order("issued_at, partner_token"))
}

func (s *Storage) findInvoices(query *gorm.DB) ([]golease.Invoice, error) {
	var records []invoiceRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	out := make([]golease.Invoice, 0, len(records))
	for i := range records {
		inv, err := records[i].toInvoice()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// InsertInvoice implements golease.InvoiceStore. The issuance unique index
// turns a concurrent second issuance into golease.ErrDuplicateInvoice.
func (s *Storage) InsertInvoice(ctx context.Context, inv *golease.Invoice) error {
	if inv == nil || inv.ContractID == "" || inv.IssuedAt.IsZero() {
		return fmt.Errorf("invalid invoice")
	}
	err := s.db.WithContext(ctx).Create(newInvoiceRecord(inv)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return golease.ErrDuplicateInvoice
	}
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// DeleteInvoicesFor implements golease.InvoiceStore
func (s *Storage) DeleteInvoicesFor(ctx context.Context, contractID string, issuedAt golease.Date) (int, error) {
	res := s.db.WithContext(ctx).
		Where("contract_id = ? AND issued_at = ?", contractID, issuedAt.String()).
		Delete(&invoiceRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete invoices: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// InvalidateYearlyCache implements golease.InvoiceStore. This store keeps no
// yearly aggregates; configure a separate cache on the Manager.
func (s *Storage) InvalidateYearlyCache(_ context.Context, _ string) error {
	return nil
}

// GetRate implements golease.RateStore
func (s *Storage) GetRate(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	return s.findRate(s.db.WithContext(ctx).Where("date = ?", date.String()))
}

// GetLatestRateOnOrBefore implements golease.RateStore
func (s *Storage) GetLatestRateOnOrBefore(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	return s.findRate(s.db.WithContext(ctx).Where("date <= ?", date.String()).Order("date DESC"))
}

func (s *Storage) findRate(query *gorm.DB) (*golease.RateRecord, error) {
	var rec rateRecord
	err := query.Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // No record is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	return rec.toRecord()
}

// UpsertRate implements golease.RateStore
func (s *Storage) UpsertRate(ctx context.Context, rec *golease.RateRecord) error {
	if rec == nil || rec.Date.IsZero() {
		return fmt.Errorf("invalid rate record")
	}
	row := rateRecord{
		Date:          rec.Date.String(),
		Rate:          rec.Rate,
		FetchedAt:     rec.FetchedAt,
		EffectiveDate: dateString(rec.EffectiveDate),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "fetched_at", "effective_date"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert rate: %w", err)
	}
	return nil
}
