package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/golease/pkg/golease"
)

func TestStorage_GetSaveContract(t *testing.T) {
	storage := New()
	ctx := context.Background()

	// Test getting non-existent contract
	_, err := storage.GetContract(ctx, "c1")
	if !errors.Is(err, golease.ErrContractNotFound) {
		t.Errorf("Expected ErrContractNotFound, got %v", err)
	}

	c := &golease.Contract{ID: "c1", Name: "Warehouse", Partner: "Acme"}
	if err := storage.SaveContract(ctx, c); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}

	// Mutating the caller's value must not leak into the store
	c.Name = "changed"

	retrieved, err := storage.GetContract(ctx, "c1")
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if retrieved.Name != "Warehouse" {
		t.Errorf("Name mismatch: got %s, want Warehouse", retrieved.Name)
	}
}

func TestStorage_LoadContracts(t *testing.T) {
	storage := New()
	ctx := context.Background()

	input := `[
		{"id":"b","name":"Office","startDate":"2024-01-01","endDate":"2024-12-31","rentType":"monthly","monthlyInvoiceDay":5,"rentAmountEuro":800},
		{"id":"a","name":"Shop","startDate":"2024-02-01","endDate":"2025-01-31","rentType":"monthly","monthlyInvoiceDay":1,"rentAmountEuro":1200}
	]`
	if err := storage.LoadContracts(strings.NewReader(input)); err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}

	contracts, err := storage.ListActiveContracts(ctx)
	if err != nil {
		t.Fatalf("ListActiveContracts failed: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("Expected 2 contracts, got %d", len(contracts))
	}
	if contracts[0].ID != "a" || contracts[1].ID != "b" {
		t.Errorf("Expected contracts sorted by id, got %s, %s", contracts[0].ID, contracts[1].ID)
	}
}

func TestStorage_LoadContracts_Invalid(t *testing.T) {
	storage := New()

	input := `[{"id":"x","startDate":"2024-06-01","endDate":"2024-01-01","rentType":"monthly"}]`
	err := storage.LoadContracts(strings.NewReader(input))
	if !golease.IsValidationError(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func testInvoice(contractID, issuedAt, partner string) *golease.Invoice {
	return &golease.Invoice{
		ID:         contractID + issuedAt + partner,
		ContractID: contractID,
		IssuedAt:   golease.MustParseDate(issuedAt),
		Partner:    partner,
		AmountEUR:  1000,
		NetRON:     5000,
		VATRON:     950,
		TotalRON:   5950,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestStorage_InsertInvoice_Uniqueness(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.InsertInvoice(ctx, testInvoice("c1", "2024-06-15", "Acme")); err != nil {
		t.Fatalf("InsertInvoice failed: %v", err)
	}

	// Same partner token, different spelling
	err := storage.InsertInvoice(ctx, testInvoice("c1", "2024-06-15", " ACME "))
	if !errors.Is(err, golease.ErrDuplicateInvoice) {
		t.Errorf("Expected ErrDuplicateInvoice, got %v", err)
	}

	// Another partner on the same date is allowed
	if err := storage.InsertInvoice(ctx, testInvoice("c1", "2024-06-15", "Beta")); err != nil {
		t.Errorf("InsertInvoice for second partner failed: %v", err)
	}

	invoices, err := storage.ListInvoicesForMonth(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("ListInvoicesForMonth failed: %v", err)
	}
	if len(invoices) != 2 {
		t.Errorf("Expected 2 invoices, got %d", len(invoices))
	}
}

func TestStorage_ListAndDeleteInvoices(t *testing.T) {
	storage := New()
	ctx := context.Background()

	for _, inv := range []*golease.Invoice{
		testInvoice("c1", "2024-06-15", "Acme"),
		testInvoice("c1", "2024-06-15", "Beta"),
		testInvoice("c1", "2024-07-15", "Acme"),
		testInvoice("c2", "2024-06-15", "Acme"),
		testInvoice("c1", "2023-06-15", "Acme"),
	} {
		if err := storage.InsertInvoice(ctx, inv); err != nil {
			t.Fatalf("InsertInvoice failed: %v", err)
		}
	}

	year, _ := storage.ListInvoicesForYear(ctx, "c1", 2024)
	if len(year) != 3 {
		t.Errorf("Expected 3 invoices for c1 in 2024, got %d", len(year))
	}

	n, err := storage.DeleteInvoicesFor(ctx, "c1", golease.MustParseDate("2024-06-15"))
	if err != nil {
		t.Fatalf("DeleteInvoicesFor failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 deleted invoices, got %d", n)
	}

	june, _ := storage.ListInvoicesForMonth(ctx, 2024, time.June)
	if len(june) != 1 || june[0].ContractID != "c2" {
		t.Errorf("Expected only c2 left in June, got %+v", june)
	}
}

func TestStorage_YearlyTotals(t *testing.T) {
	storage := New()
	ctx := context.Background()

	got, err := storage.GetYearlyTotals(ctx, "c1", 2024)
	if err != nil || got != nil {
		t.Fatalf("Expected no cached totals, got %v, %v", got, err)
	}

	_ = storage.SetYearlyTotals(ctx, &golease.YearlyTotals{ContractID: "c1", Year: 2024, Invoices: 3})
	_ = storage.SetYearlyTotals(ctx, &golease.YearlyTotals{ContractID: "c1", Year: 2023, Invoices: 12})
	_ = storage.SetYearlyTotals(ctx, &golease.YearlyTotals{ContractID: "c2", Year: 2024, Invoices: 1})

	got, _ = storage.GetYearlyTotals(ctx, "c1", 2024)
	if got == nil || got.Invoices != 3 {
		t.Fatalf("Expected cached totals with 3 invoices, got %+v", got)
	}

	if err := storage.InvalidateYearlyCache(ctx, "c1"); err != nil {
		t.Fatalf("InvalidateYearlyCache failed: %v", err)
	}
	if got, _ := storage.GetYearlyTotals(ctx, "c1", 2023); got != nil {
		t.Errorf("Expected every year of c1 invalidated")
	}
	if got, _ := storage.GetYearlyTotals(ctx, "c2", 2024); got == nil {
		t.Errorf("Expected c2 totals to survive")
	}
}

func TestStorage_Rates(t *testing.T) {
	storage := New()
	ctx := context.Background()

	rec, err := storage.GetRate(ctx, golease.MustParseDate("2024-06-14"))
	if err != nil || rec != nil {
		t.Fatalf("Expected no rate, got %v, %v", rec, err)
	}

	for _, r := range []golease.RateRecord{
		{Date: golease.MustParseDate("2024-06-12"), Rate: 4.96},
		{Date: golease.MustParseDate("2024-06-14"), Rate: 4.97},
		{Date: golease.MustParseDate("2024-06-18"), Rate: 4.98},
	} {
		r := r
		if err := storage.UpsertRate(ctx, &r); err != nil {
			t.Fatalf("UpsertRate failed: %v", err)
		}
	}

	latest, err := storage.GetLatestRateOnOrBefore(ctx, golease.MustParseDate("2024-06-16"))
	if err != nil {
		t.Fatalf("GetLatestRateOnOrBefore failed: %v", err)
	}
	if latest == nil || latest.Rate != 4.97 {
		t.Errorf("Expected 4.97 from 2024-06-14, got %+v", latest)
	}

	if latest, _ := storage.GetLatestRateOnOrBefore(ctx, golease.MustParseDate("2024-06-01")); latest != nil {
		t.Errorf("Expected nothing before the first record, got %+v", latest)
	}

	// Upsert overwrites
	_ = storage.UpsertRate(ctx, &golease.RateRecord{Date: golease.MustParseDate("2024-06-14"), Rate: 5.01})
	rec, _ = storage.GetRate(ctx, golease.MustParseDate("2024-06-14"))
	if rec.Rate != 5.01 {
		t.Errorf("Expected overwritten rate 5.01, got %v", rec.Rate)
	}
}
