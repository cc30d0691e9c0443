package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/golease/internal/httputil"
	"github.com/mihaimyh/golease/pkg/api"
	"github.com/mihaimyh/golease/pkg/golease"
	"github.com/mihaimyh/golease/storage/memory"
)

type recordingLogger struct {
	golease.NoopLogger
	mu    sync.Mutex
	count int
}

func (l *recordingLogger) Info(_ string, _ ...golease.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
}

func ptr(f float64) *float64 { return &f }

// Test helper to create a handler over one monthly contract
func setupHandler(t *testing.T) *api.Handler {
	t.Helper()

	storage := memory.New()
	err := storage.SaveContract(context.Background(), &golease.Contract{
		ID:                "c1",
		Partner:           "Acme",
		StartDate:         golease.MustParseDate("2024-06-01"),
		EndDate:           golease.MustParseDate("2024-12-31"),
		RentType:          golease.RentTypeMonthly,
		MonthlyInvoiceDay: 15,
		RentAmountEUR:     ptr(1000),
		ExchangeRateRON:   ptr(5),
		TVAPercent:        19,
	})
	if err != nil {
		t.Fatalf("Failed to save contract: %v", err)
	}

	manager, err := golease.NewManager(storage, storage, golease.Config{})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	h, err := api.NewHandler(api.Config{Manager: manager})
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}
	return h
}

func TestRegister_IssueFlow(t *testing.T) {
	e := echo.New()
	Register(e, setupHandler(t))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/occurrences?year=2024&month=6", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var list api.OccurrencesResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(list.Occurrences) != 1 {
		t.Fatalf("Expected 1 occurrence, got %d", len(list.Occurrences))
	}

	body, err := json.Marshal(api.IssueRequest{Occurrence: list.Occurrences[0]})
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(string(body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("Issue %d: expected status %d, got %d", i, want, rec.Code)
		}
	}
}

func TestRegister_Group(t *testing.T) {
	e := echo.New()
	Register(e.Group("/v1"), setupHandler(t))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/prognosis?year=2024", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestMiddleware_RateLimitAndLogging(t *testing.T) {
	logger := &recordingLogger{}
	e := echo.New()
	Register(e, setupHandler(t), Middleware(Config{
		Limiter: httputil.NewRateLimiter(2, time.Minute),
		Logger:  logger,
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prognosis?year=2024", http.NoBody))
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Unexpected status sequence %v", codes)
	}
	if logger.count != 2 {
		t.Errorf("Expected 2 logged requests, got %d", logger.count)
	}
}

func TestRegister_NilHandlerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil handler")
		}
	}()
	Register(echo.New(), nil)
}
