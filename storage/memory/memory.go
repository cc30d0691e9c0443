// Package memory provides an in-memory implementation of the golease storage interfaces.
// This implementation is primarily intended for testing, development and the CLI.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mihaimyh/golease/pkg/golease"
)

// Storage implements golease.ContractStore, golease.ContractWriter,
// golease.InvoiceStore, golease.YearlyTotalsCache and golease.RateStore
// using in-memory maps
type Storage struct {
	mu        sync.RWMutex
	contracts map[string]*golease.Contract
	invoices  map[string]*golease.Invoice // keyed by contractId|issuedAt|partnerToken
	rates     map[golease.Date]*golease.RateRecord
	yearly    map[string]*golease.YearlyTotals
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		contracts: make(map[string]*golease.Contract),
		invoices:  make(map[string]*golease.Invoice),
		rates:     make(map[golease.Date]*golease.RateRecord),
		yearly:    make(map[string]*golease.YearlyTotals),
	}
}

// LoadContracts decodes a JSON array of contracts, validates each one and
// stores them.
func (s *Storage) LoadContracts(r io.Reader) error {
	var contracts []golease.Contract
	if err := json.NewDecoder(r).Decode(&contracts); err != nil {
		return fmt.Errorf("failed to decode contracts: %w", err)
	}
	for i := range contracts {
		if err := golease.ValidateContract(&contracts[i]); err != nil {
			return fmt.Errorf("contract %d (%s): %w", i, contracts[i].ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range contracts {
		c := contracts[i]
		s.contracts[c.ID] = &c
	}
	return nil
}

// LoadContractsFile reads contracts from a JSON file.
func (s *Storage) LoadContractsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open contracts file: %w", err)
	}
	defer f.Close()
	return s.LoadContracts(f)
}

// ListActiveContracts implements golease.ContractStore
func (s *Storage) ListActiveContracts(_ context.Context) ([]golease.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]golease.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetContract implements golease.ContractStore
func (s *Storage) GetContract(_ context.Context, id string) (*golease.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, golease.ErrContractNotFound
	}
	// Return a copy to prevent external mutations
	cCopy := *c
	return &cCopy, nil
}

// SaveContract implements golease.ContractWriter
func (s *Storage) SaveContract(_ context.Context, c *golease.Contract) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid contract")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cCopy := *c
	s.contracts[c.ID] = &cCopy
	return nil
}

// ListInvoicesForMonth implements golease.InvoiceStore
func (s *Storage) ListInvoicesForMonth(_ context.Context, year int, month time.Month) ([]golease.Invoice, error) {
	return s.filterInvoices(func(inv *golease.Invoice) bool {
		return inv.IssuedAt.Year == year && inv.IssuedAt.Month == month
	}), nil
}

// ListInvoicesForYear implements golease.InvoiceStore
func (s *Storage) ListInvoicesForYear(_ context.Context, contractID string, year int) ([]golease.Invoice, error) {
	return s.filterInvoices(func(inv *golease.Invoice) bool {
		return inv.ContractID == contractID && inv.IssuedAt.Year == year
	}), nil
}

func (s *Storage) filterInvoices(keep func(*golease.Invoice) bool) []golease.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []golease.Invoice
	for _, inv := range s.invoices {
		if keep(inv) {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].IssuedAt.Compare(out[j].IssuedAt); c != 0 {
			return c < 0
		}
		if out[i].ContractID != out[j].ContractID {
			return out[i].ContractID < out[j].ContractID
		}
		return out[i].PartnerToken() < out[j].PartnerToken()
	})
	return out
}

// InsertInvoice implements golease.InvoiceStore. A second invoice with the same
// contract, issue date and partner token is rejected with ErrDuplicateInvoice.
func (s *Storage) InsertInvoice(_ context.Context, inv *golease.Invoice) error {
	if inv == nil || inv.ContractID == "" || inv.IssuedAt.IsZero() {
		return fmt.Errorf("invalid invoice")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := golease.InvoiceKey(inv.ContractID, inv.IssuedAt, inv.PartnerToken())
	if _, exists := s.invoices[key]; exists {
		return golease.ErrDuplicateInvoice
	}
	invCopy := *inv
	s.invoices[key] = &invCopy
	return nil
}

// DeleteInvoicesFor implements golease.InvoiceStore
func (s *Storage) DeleteInvoicesFor(_ context.Context, contractID string, issuedAt golease.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, inv := range s.invoices {
		if inv.ContractID == contractID && inv.IssuedAt.Equal(issuedAt) {
			delete(s.invoices, key)
			deleted++
		}
	}
	return deleted, nil
}

// InvalidateYearlyCache implements golease.InvoiceStore
func (s *Storage) InvalidateYearlyCache(_ context.Context, contractID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.yearly {
		if t.ContractID == contractID {
			delete(s.yearly, key)
		}
	}
	return nil
}

// GetYearlyTotals implements golease.YearlyTotalsCache
func (s *Storage) GetYearlyTotals(_ context.Context, contractID string, year int) (*golease.YearlyTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.yearly[yearlyKey(contractID, year)]
	if !ok {
		return nil, nil
	}
	tCopy := *t
	return &tCopy, nil
}

// SetYearlyTotals implements golease.YearlyTotalsCache
func (s *Storage) SetYearlyTotals(_ context.Context, totals *golease.YearlyTotals) error {
	if totals == nil || totals.ContractID == "" {
		return fmt.Errorf("invalid yearly totals")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tCopy := *totals
	s.yearly[yearlyKey(totals.ContractID, totals.Year)] = &tCopy
	return nil
}

func yearlyKey(contractID string, year int) string {
	return fmt.Sprintf("%s:%d", contractID, year)
}

// GetRate implements golease.RateStore
func (s *Storage) GetRate(_ context.Context, date golease.Date) (*golease.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.rates[date]
	if !ok {
		return nil, nil // No record is not an error
	}
	recCopy := *rec
	return &recCopy, nil
}

// GetLatestRateOnOrBefore implements golease.RateStore
func (s *Storage) GetLatestRateOnOrBefore(_ context.Context, date golease.Date) (*golease.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *golease.RateRecord
	for d, rec := range s.rates {
		if d.After(date) {
			continue
		}
		if best == nil || d.After(best.Date) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	recCopy := *best
	return &recCopy, nil
}

// UpsertRate implements golease.RateStore
func (s *Storage) UpsertRate(_ context.Context, rec *golease.RateRecord) error {
	if rec == nil || rec.Date.IsZero() {
		return fmt.Errorf("invalid rate record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *rec
	s.rates[rec.Date] = &recCopy
	return nil
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contracts = make(map[string]*golease.Contract)
	s.invoices = make(map[string]*golease.Invoice)
	s.rates = make(map[golease.Date]*golease.RateRecord)
	s.yearly = make(map[string]*golease.YearlyTotals)
}
