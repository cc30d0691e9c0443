// Package bnr fetches EUR to RON reference rates published by the
// National Bank of Romania.
package bnr

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihaimyh/golease/pkg/golease"
)

const (
	sourceName         = "bnr"
	defaultBaseURL     = "https://www.bnr.ro"
	defaultHTTPTimeout = 10 * time.Second
	defaultCurrency    = "EUR"
	defaultRecentDays  = 10
	maxBodyBytes       = 8 << 20
)

// Config configures the BNR source
type Config struct {
	// BaseURL of the feeds. Default: https://www.bnr.ro
	BaseURL string

	// HTTPClient is used for all requests. Default: client with a 10s timeout
	HTTPClient *http.Client

	// Currency quoted against RON. Default: EUR
	Currency string

	// RecentDays is how far back the ten-day feed is trusted before the
	// yearly archive is used instead. Default: 10
	RecentDays int

	// Clock and Location define "today". Defaults: system clock, Europe/Bucharest
	Clock    golease.Clock
	Location *time.Location
}

// Source implements golease.LiveRateSource over the BNR XML feeds
type Source struct {
	baseURL    string
	httpClient *http.Client
	currency   string
	recentDays int
	clock      golease.Clock
	location   *time.Location
}

// NewSource creates a BNR rate source
func NewSource(config Config) (*Source, error) {
	// Set defaults
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if config.Currency == "" {
		config.Currency = defaultCurrency
	}
	if config.RecentDays <= 0 {
		config.RecentDays = defaultRecentDays
	}
	if config.Clock == nil {
		config.Clock = golease.SystemClock{}
	}
	if config.Location == nil {
		loc, err := golease.LoadBusinessLocation("")
		if err != nil {
			return nil, fmt.Errorf("failed to load business timezone: %w", err)
		}
		config.Location = loc
	}

	return &Source{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: config.HTTPClient,
		currency:   strings.ToUpper(config.Currency),
		recentDays: config.RecentDays,
		clock:      config.Clock,
		location:   config.Location,
	}, nil
}

// Name returns the source name
func (s *Source) Name() string {
	return sourceName
}

// FetchRate returns the rate published on date or, on days without a
// publication, the latest one before it. EffectiveDate is the publication date.
func (s *Source) FetchRate(ctx context.Context, date golease.Date) (*golease.FetchedRate, error) {
	today := golease.DateOf(s.clock.Now().In(s.location))
	if date.After(today) {
		return nil, fmt.Errorf("no rate published yet for %s", date)
	}

	if !date.Before(today.AddDays(-s.recentDays)) {
		if rate, err := s.fetchFrom(ctx, s.baseURL+"/nbrfxrates10days.xml", date); err == nil {
			return rate, nil
		}
		// the ten-day feed may lag at year boundaries; the archive is authoritative
	}

	rate, err := s.fetchFrom(ctx, s.yearURL(date.Year), date)
	if err == nil {
		return rate, nil
	}
	if errNoCube(err) {
		// early January: the latest publication is in last year's archive
		return s.fetchFrom(ctx, s.yearURL(date.Year-1), date)
	}
	return nil, err
}

func (s *Source) yearURL(year int) string {
	return fmt.Sprintf("%s/files/xml/years/nbrfxrates%d.xml", s.baseURL, year)
}

func (s *Source) fetchFrom(ctx context.Context, url string, date golease.Date) (*golease.FetchedRate, error) {
	doc, err := s.fetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}
	return doc.latestOnOrBefore(date, s.currency)
}

func (s *Source) fetchDocument(ctx context.Context, url string) (*dataSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("bnr feed error: status %d for %s", res.StatusCode, url)
	}

	var doc dataSet
	if err := xml.NewDecoder(io.LimitReader(res.Body, maxBodyBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	return &doc, nil
}

// dataSet mirrors the BNR feed layout:
// <DataSet><Body><Cube date="..."><Rate currency="EUR">4.97</Rate></Cube></Body></DataSet>
type dataSet struct {
	Cubes []cube `xml:"Body>Cube"`
}

type cube struct {
	Date  string     `xml:"date,attr"`
	Rates []cubeRate `xml:"Rate"`
}

type cubeRate struct {
	Currency   string `xml:"currency,attr"`
	Multiplier string `xml:"multiplier,attr"`
	Value      string `xml:",chardata"`
}

type noCubeError struct {
	date golease.Date
}

func (e *noCubeError) Error() string {
	return fmt.Sprintf("no publication on or before %s", e.date)
}

func errNoCube(err error) bool {
	_, ok := err.(*noCubeError)
	return ok
}

// latestOnOrBefore picks the most recent cube dated <= date that quotes currency.
func (d *dataSet) latestOnOrBefore(date golease.Date, currency string) (*golease.FetchedRate, error) {
	var (
		best     golease.Date
		bestRate float64
		found    bool
	)
	for _, c := range d.Cubes {
		cubeDate, err := golease.ParseDate(c.Date)
		if err != nil || cubeDate.After(date) {
			continue
		}
		if found && !cubeDate.After(best) {
			continue
		}
		rate, ok, err := c.rateFor(currency)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		best, bestRate, found = cubeDate, rate, true
	}
	if !found {
		return nil, &noCubeError{date: date}
	}
	return &golease.FetchedRate{Rate: bestRate, EffectiveDate: best}, nil
}

func (c *cube) rateFor(currency string) (float64, bool, error) {
	for _, r := range c.Rates {
		if !strings.EqualFold(r.Currency, currency) {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s rate %q on %s: %w", currency, r.Value, c.Date, err)
		}
		if r.Multiplier != "" {
			m, err := strconv.ParseFloat(r.Multiplier, 64)
			if err != nil || m <= 0 {
				return 0, false, fmt.Errorf("invalid multiplier %q on %s", r.Multiplier, c.Date)
			}
			value /= m
		}
		return value, true, nil
	}
	return 0, false, nil
}
