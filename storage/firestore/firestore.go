// Package firestore provides a Google Cloud Firestore implementation of
// golease.ContractStore, golease.InvoiceStore and golease.RateStore.
//
// Invoice documents are keyed by the issuance key, so Create fails with
// AlreadyExists on a second issuance of the same occurrence.
package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/golease/pkg/golease"
)

// Storage implements the golease storage interfaces using Google Cloud Firestore
type Storage struct {
	client              *firestore.Client
	contractsCollection string
	invoicesCollection  string
	ratesCollection     string
}

// Config holds Firestore storage configuration
type Config struct {
	// ContractsCollection is the Firestore collection for contracts
	// Default: "lease_contracts"
	ContractsCollection string

	// InvoicesCollection is the Firestore collection for issued invoices
	// Default: "lease_invoices"
	InvoicesCollection string

	// RatesCollection is the Firestore collection for exchange rates
	// Default: "exchange_rates"
	RatesCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.ContractsCollection == "" {
		config.ContractsCollection = "lease_contracts"
	}
	if config.InvoicesCollection == "" {
		config.InvoicesCollection = "lease_invoices"
	}
	if config.RatesCollection == "" {
		config.RatesCollection = "exchange_rates"
	}

	return &Storage{
		client:              client,
		contractsCollection: config.ContractsCollection,
		invoicesCollection:  config.InvoicesCollection,
		ratesCollection:     config.RatesCollection,
	}, nil
}

// ListActiveContracts implements golease.ContractStore
func (s *Storage) ListActiveContracts(ctx context.Context) ([]golease.Contract, error) {
	docs, err := s.client.Collection(s.contractsCollection).OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	out := make([]golease.Contract, 0, len(docs))
	for _, snap := range docs {
		c, err := decodeContract(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// GetContract implements golease.ContractStore
func (s *Storage) GetContract(ctx context.Context, id string) (*golease.Contract, error) {
	snap, err := s.client.Collection(s.contractsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, golease.ErrContractNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	if !snap.Exists() {
		return nil, golease.ErrContractNotFound
	}
	return decodeContract(snap)
}

// SaveContract implements golease.ContractWriter. The contract is kept as its
// JSON encoding next to a few queryable fields.
func (s *Storage) SaveContract(ctx context.Context, c *golease.Contract) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid contract")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}

	_, err = s.client.Collection(s.contractsCollection).Doc(c.ID).Set(ctx, map[string]interface{}{
		"name":      c.Name,
		"startDate": c.StartDate.String(),
		"endDate":   golease.EffectiveEndDate(c).String(),
		"json":      string(data),
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

func decodeContract(snap *firestore.DocumentSnapshot) (*golease.Contract, error) {
	var c golease.Contract
	if err := json.Unmarshal([]byte(getString(snap.Data(), "json")), &c); err != nil {
		return nil, fmt.Errorf("failed to decode contract %s: %w", snap.Ref.ID, err)
	}
	return &c, nil
}

// ListInvoicesForMonth implements golease.InvoiceStore
func (s *Storage) ListInvoicesForMonth(ctx context.Context, year int, month time.Month) ([]golease.Invoice, error) {
	first := golease.NewDate(year, month, 1)
	last := golease.NewDate(year, month, golease.DaysInMonth(year, month))
	return s.queryInvoices(ctx, s.client.Collection(s.invoicesCollection).
		Where("issuedAt", ">=", first.String()).
		Where("issuedAt", "<=", last.String()))
}

// ListInvoicesForYear implements golease.InvoiceStore.
// Requires a composite index on (contractId, issuedAt).
func (s *Storage) ListInvoicesForYear(ctx context.Context, contractID string, year int) ([]golease.Invoice, error) {
	return s.queryInvoices(ctx, s.client.Collection(s.invoicesCollection).
		Where("contractId", "==", contractID).
		Where("issuedAt", ">=", golease.NewDate(year, time.January, 1).String()).
		Where("issuedAt", "<=", golease.NewDate(year, time.December, 31).String()))
}

func (s *Storage) queryInvoices(ctx context.Context, q firestore.Query) ([]golease.Invoice, error) {
	docs, err := q.OrderBy("issuedAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	out := make([]golease.Invoice, 0, len(docs))
	for _, snap := range docs {
		out = append(out, invoiceFromData(snap.Ref.ID, snap.Data()))
	}
	return out, nil
}

// InsertInvoice implements golease.InvoiceStore
func (s *Storage) InsertInvoice(ctx context.Context, inv *golease.Invoice) error {
	if inv == nil || inv.ContractID == "" || inv.IssuedAt.IsZero() {
		return fmt.Errorf("invalid invoice")
	}

	doc := s.client.Collection(s.invoicesCollection).Doc(invoiceDocID(inv))
	_, err := doc.Create(ctx, invoiceToData(inv))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return golease.ErrDuplicateInvoice
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// DeleteInvoicesFor implements golease.InvoiceStore
func (s *Storage) DeleteInvoicesFor(ctx context.Context, contractID string, issuedAt golease.Date) (int, error) {
	docs, err := s.client.Collection(s.invoicesCollection).
		Where("contractId", "==", contractID).
		Where("issuedAt", "==", issuedAt.String()).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to find invoices: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, snap := range docs {
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to delete invoice: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return deleted, fmt.Errorf("failed to delete invoice: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// InvalidateYearlyCache implements golease.InvoiceStore. Firestore keeps no
// yearly aggregates; configure a separate cache on the Manager if needed.
func (s *Storage) InvalidateYearlyCache(_ context.Context, _ string) error {
	return nil
}

// GetRate implements golease.RateStore
func (s *Storage) GetRate(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	snap, err := s.client.Collection(s.ratesCollection).Doc(date.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil // No record is not an error
		}
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return rateFromData(snap.Data())
}

// GetLatestRateOnOrBefore implements golease.RateStore
func (s *Storage) GetLatestRateOnOrBefore(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	docs, err := s.client.Collection(s.ratesCollection).
		Where("date", "<=", date.String()).
		OrderBy("date", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return rateFromData(docs[0].Data())
}

// UpsertRate implements golease.RateStore
func (s *Storage) UpsertRate(ctx context.Context, rec *golease.RateRecord) error {
	if rec == nil || rec.Date.IsZero() {
		return fmt.Errorf("invalid rate record")
	}
	data := map[string]interface{}{
		"date":          rec.Date.String(),
		"rate":          rec.Rate,
		"fetchedAt":     rec.FetchedAt,
		"effectiveDate": rec.EffectiveDate.String(),
	}
	if _, err := s.client.Collection(s.ratesCollection).Doc(rec.Date.String()).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to upsert rate: %w", err)
	}
	return nil
}

// invoiceDocID is the issuance key with characters Firestore reserves replaced.
func invoiceDocID(inv *golease.Invoice) string {
	key := golease.InvoiceKey(inv.ContractID, inv.IssuedAt, inv.PartnerToken())
	return strings.ReplaceAll(key, "/", "_")
}

func invoiceToData(inv *golease.Invoice) map[string]interface{} {
	return map[string]interface{}{
		"id":                 inv.ID,
		"contractId":         inv.ContractID,
		"issuedAt":           inv.IssuedAt.String(),
		"partnerId":          inv.PartnerID,
		"partner":            inv.Partner,
		"partnerToken":       inv.PartnerToken(),
		"amountEUR":          inv.AmountEUR,
		"correctionPercent":  inv.CorrectionPercent,
		"correctedAmountEUR": inv.CorrectedAmountEUR,
		"exchangeRateRON":    inv.ExchangeRateRON,
		"exchangeRateDate":   inv.ExchangeRateDate.String(),
		"rateSource":         string(inv.RateSource),
		"tvaPercent":         inv.TVAPercent,
		"netRON":             inv.NetRON,
		"vatRON":             inv.VATRON,
		"totalRON":           inv.TotalRON,
		"pdfUrl":             inv.PDFURL,
		"createdAt":          inv.CreatedAt,
	}
}

func invoiceFromData(docID string, data map[string]interface{}) golease.Invoice {
	id := getString(data, "id")
	if id == "" {
		id = docID
	}
	return golease.Invoice{
		ID:                 id,
		ContractID:         getString(data, "contractId"),
		IssuedAt:           getDate(data, "issuedAt"),
		PartnerID:          getString(data, "partnerId"),
		Partner:            getString(data, "partner"),
		AmountEUR:          getFloat(data, "amountEUR"),
		CorrectionPercent:  getFloat(data, "correctionPercent"),
		CorrectedAmountEUR: getFloat(data, "correctedAmountEUR"),
		ExchangeRateRON:    getFloat(data, "exchangeRateRON"),
		ExchangeRateDate:   getDate(data, "exchangeRateDate"),
		RateSource:         golease.QuoteSource(getString(data, "rateSource")),
		TVAPercent:         getFloat(data, "tvaPercent"),
		NetRON:             getFloat(data, "netRON"),
		VATRON:             getFloat(data, "vatRON"),
		TotalRON:           getFloat(data, "totalRON"),
		PDFURL:             getString(data, "pdfUrl"),
		CreatedAt:          getTime(data, "createdAt"),
	}
}

func rateFromData(data map[string]interface{}) (*golease.RateRecord, error) {
	date, err := golease.ParseDate(getString(data, "date"))
	if err != nil {
		return nil, fmt.Errorf("invalid rate document: %w", err)
	}
	return &golease.RateRecord{
		Date:          date,
		Rate:          getFloat(data, "rate"),
		FetchedAt:     getTime(data, "fetchedAt"),
		EffectiveDate: getDate(data, "effectiveDate"),
	}, nil
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func getDate(data map[string]interface{}, key string) golease.Date {
	d, err := golease.ParseDate(getString(data, key))
	if err != nil {
		return golease.Date{}
	}
	return d
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
