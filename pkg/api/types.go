package api

import "github.com/mihaimyh/golease/pkg/golease"

// OccurrencesResponse lists the occurrences still to be issued in a month
type OccurrencesResponse struct {
	Year        int                     `json:"year"`
	Month       int                     `json:"month"`
	Occurrences []golease.DueOccurrence `json:"occurrences"`
	Unpriced    int                     `json:"unpriced"`
}

// IssueRequest issues one due occurrence. Only the occurrence's contractId,
// issuedAt and partner fields identify it; amounts and totals are recomputed
// from the stored contract. RateOverride, when set, prices the invoice with
// that rate as published on RateOverrideDate.
type IssueRequest struct {
	Occurrence       golease.DueOccurrence `json:"occurrence"`
	RateOverride     *float64              `json:"rateOverride,omitempty"`
	RateOverrideDate *golease.Date         `json:"rateOverrideDate,omitempty"`
}

// DeleteResponse reports how many invoices were removed
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}
