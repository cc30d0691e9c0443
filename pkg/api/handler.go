package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mihaimyh/golease/internal/httputil"
	"github.com/mihaimyh/golease/pkg/golease"
)

// Handler provides HTTP endpoints over a golease.Manager. Every parameter is
// read from the query string or the body, so the handlers mount on any router.
type Handler struct {
	config Config
}

// ListOccurrences handles GET /occurrences?year=&month=
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	year, err := intParam(r, "year")
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	month, err := intParam(r, "month")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	occs, err := h.config.Manager.ComputeDueOccurrences(r.Context(), year, time.Month(month))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := OccurrencesResponse{Year: year, Month: month, Occurrences: occs}
	if resp.Occurrences == nil {
		resp.Occurrences = []golease.DueOccurrence{}
	}
	for i := range occs {
		if !occs[i].Priced() {
			resp.Unpriced++
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// IssueInvoice handles POST /invoices
func (h *Handler) IssueInvoice(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := httputil.DecodeJSONStrict(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.handleError(w, r, badRequest(err))
		return
	}
	if req.Occurrence.ContractID == "" || req.Occurrence.IssuedAt.IsZero() {
		h.handleError(w, r, &golease.ValidationError{Field: "occurrence", Message: "contractId and issuedAt are required"})
		return
	}

	var opts []golease.IssueOption
	if req.RateOverride != nil {
		if *req.RateOverride <= 0 {
			h.handleError(w, r, &golease.ValidationError{Field: "rateOverride", Message: "must be positive"})
			return
		}
		date := req.Occurrence.IssuedAt
		if req.RateOverrideDate != nil && !req.RateOverrideDate.IsZero() {
			date = *req.RateOverrideDate
		}
		opts = append(opts, golease.WithRateOverride(*req.RateOverride, date))
	}

	inv, err := h.config.Manager.IssueOccurrence(r.Context(), req.Occurrence, opts...)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inv)
}

// DeleteInvoices handles DELETE /invoices?contractId=&issuedAt=
func (h *Handler) DeleteInvoices(w http.ResponseWriter, r *http.Request) {
	issuedAt, err := dateParam(r, "issuedAt")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	n, err := h.config.Manager.DeleteIssuedInvoice(r.Context(), r.URL.Query().Get("contractId"), issuedAt)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// GetRate handles GET /rates?date=&fallback=
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	rates := h.config.Manager.Rates()
	if rates == nil {
		h.handleError(w, r, errNoResolver)
		return
	}
	date, err := dateParam(r, "date")
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	fallback, err := boolParam(r, "fallback", true)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	quote, err := rates.Resolve(r.Context(), date, fallback)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// GetDailyRate handles GET /rates/daily?force=
func (h *Handler) GetDailyRate(w http.ResponseWriter, r *http.Request) {
	rates := h.config.Manager.Rates()
	if rates == nil {
		h.handleError(w, r, errNoResolver)
		return
	}
	force, err := boolParam(r, "force", false)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	quote, err := rates.DailyRate(r.Context(), force)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// GetPrognosis handles GET /prognosis?year=
func (h *Handler) GetPrognosis(w http.ResponseWriter, r *http.Request) {
	year, err := intParam(r, "year")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.config.Manager.Prognosis(r.Context(), year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetTotals handles GET /totals?contractId=&year=
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	contractID := r.URL.Query().Get("contractId")
	if contractID == "" {
		h.handleError(w, r, &golease.ValidationError{Field: "contractId", Message: "is required"})
		return
	}
	year, err := intParam(r, "year")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	totals, err := h.config.Manager.YearlyTotals(r.Context(), contractID, year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, totals)
}

var errNoResolver = fmt.Errorf("no rate resolver configured: %w", golease.ErrRateUnavailable)

// requestError marks malformed requests that carry no domain error.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &golease.ValidationError{Field: name, Message: "is required"}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &golease.ValidationError{Field: name, Value: raw, Message: "must be an integer"}
	}
	return v, nil
}

func dateParam(r *http.Request, name string) (golease.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return golease.Date{}, &golease.ValidationError{Field: name, Message: "is required"}
	}
	return golease.ParseDate(raw)
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &golease.ValidationError{Field: name, Value: raw, Message: "must be a boolean"}
	}
	return v, nil
}

// StatusCode maps an error returned by the manager to an HTTP status
func StatusCode(err error) int {
	var reqErr *requestError
	var missing *golease.MissingDataError
	switch {
	case errors.As(err, &reqErr),
		golease.IsValidationError(err),
		errors.Is(err, golease.ErrInvalidMonth),
		errors.Is(err, golease.ErrInvalidDate):
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.Is(err, golease.ErrContractNotFound):
		return http.StatusNotFound
	case errors.Is(err, golease.ErrDuplicateInvoice):
		return http.StatusConflict
	case errors.As(err, &missing), errors.Is(err, golease.ErrOccurrenceUnpriced):
		return http.StatusUnprocessableEntity
	case errors.Is(err, golease.ErrRateUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.config.Logger.Error("request failed",
			golease.Field{Key: "method", Value: r.Method},
			golease.Field{Key: "path", Value: r.URL.Path},
			golease.Field{Key: "error", Value: err.Error()},
		)
	}

	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	httputil.WriteError(w, code, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	if err := httputil.WriteJSON(w, code, data); err != nil {
		// Log encoding error but response already sent
		h.config.Logger.Debug("failed to encode response", golease.Field{Key: "error", Value: err.Error()})
	}
}
