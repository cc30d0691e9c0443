package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts every endpoint on a chi router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	for _, e := range h.Endpoints() {
		r.Method(e.Method, e.Path, e.Handler)
	}
	return r
}

// Endpoint describes one API route so router adapters can mount them all
type Endpoint struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Endpoints lists every route served by the handler
func (h *Handler) Endpoints() []Endpoint {
	return []Endpoint{
		{Method: http.MethodGet, Path: "/occurrences", Handler: h.ListOccurrences},
		{Method: http.MethodPost, Path: "/invoices", Handler: h.IssueInvoice},
		{Method: http.MethodDelete, Path: "/invoices", Handler: h.DeleteInvoices},
		{Method: http.MethodGet, Path: "/rates", Handler: h.GetRate},
		{Method: http.MethodGet, Path: "/rates/daily", Handler: h.GetDailyRate},
		{Method: http.MethodGet, Path: "/prognosis", Handler: h.GetPrognosis},
		{Method: http.MethodGet, Path: "/totals", Handler: h.GetTotals},
	}
}
