package mux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/golease/internal/httputil"
	httpmw "github.com/mihaimyh/golease/middleware/http"
	"github.com/mihaimyh/golease/pkg/api"
	"github.com/mihaimyh/golease/pkg/golease"
	"github.com/mihaimyh/golease/storage/memory"
)

func setupHandler(t *testing.T) *api.Handler {
	t.Helper()
	storage := memory.New()
	rent, rate := 1000.0, 5.0
	require.NoError(t, storage.SaveContract(context.Background(), &golease.Contract{
		ID:                "c1",
		Partner:           "Acme",
		StartDate:         golease.MustParseDate("2024-06-01"),
		EndDate:           golease.MustParseDate("2024-12-31"),
		RentType:          golease.RentTypeMonthly,
		MonthlyInvoiceDay: 15,
		RentAmountEUR:     &rent,
		ExchangeRateRON:   &rate,
		TVAPercent:        19,
	}))
	manager, err := golease.NewManager(storage, storage, golease.Config{})
	require.NoError(t, err)
	h, err := api.NewHandler(api.Config{Manager: manager})
	require.NoError(t, err)
	return h
}

func TestRegister(t *testing.T) {
	r := mux.NewRouter()
	Register(r.PathPrefix("/api").Subrouter(), setupHandler(t))

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"occurrences", http.MethodGet, "/api/occurrences?year=2024&month=6", http.StatusOK},
		{"totals", http.MethodGet, "/api/totals?contractId=c1&year=2024", http.StatusOK},
		{"delete nothing", http.MethodDelete, "/api/invoices?contractId=c1&issuedAt=2024-06-15", http.StatusOK},
		{"wrong method", http.MethodPut, "/api/invoices", http.StatusMethodNotAllowed},
		{"wrong method on last path", http.MethodPost, "/api/totals", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRegister_WithMiddleware(t *testing.T) {
	r := mux.NewRouter()
	Register(r, setupHandler(t), httpmw.Middleware(httpmw.Config{
		Limiter: httputil.NewRateLimiter(1, time.Minute),
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/prognosis?year=2024", http.NoBody))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRegister_MethodNotAllowedThroughMiddleware(t *testing.T) {
	r := mux.NewRouter()
	var seen []string
	trace := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			seen = append(seen, req.Method+" "+req.URL.Path)
			next.ServeHTTP(w, req)
		})
	}
	Register(r.PathPrefix("/v1").Subrouter(), setupHandler(t), trace)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/v1/invoices", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST, DELETE", w.Header().Get("Allow"))
	assert.Contains(t, w.Body.String(), "method PATCH not allowed")
	assert.Equal(t, []string{"PATCH /v1/invoices"}, seen)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/prognosis?year=2024", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, seen, 2)
}

func TestRegister_NilHandlerPanics(t *testing.T) {
	assert.Panics(t, func() { Register(mux.NewRouter(), nil) })
}
