package golease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// RateResolverConfig configures a RateResolver.
type RateResolverConfig struct {
	// Store is the persisted rate collection (required)
	Store RateStore

	// Cache sits in front of Store. Default: in-memory LRU of 1000 dates
	Cache RateCache

	// Source is the live rate provider. Nil disables live fetches
	Source LiveRateSource

	// CacheTTL bounds how long a cached rate is trusted. Default: 24h
	CacheTTL time.Duration

	// FetchTimeout bounds a single live fetch. Default: 10s
	FetchTimeout time.Duration

	// CircuitBreaker guards the live source. Default: opens after 5 failures for 1m
	CircuitBreaker CircuitBreaker

	// Location defines "today" for DailyRate. Default: Europe/Bucharest
	Location *time.Location

	Clock   Clock
	Logger  Logger
	Metrics Metrics
}

// RateResolver resolves date-effective EUR to RON rates through the chain
// cache, store, previous record, live source, previous record.
type RateResolver struct {
	store    RateStore
	cache    RateCache
	source   LiveRateSource
	ttl      time.Duration
	timeout  time.Duration
	breaker  CircuitBreaker
	location *time.Location
	clock    Clock
	logger   Logger
	metrics  Metrics
	fallback *previousRateFallback
	group    singleflight.Group
}

// NewRateResolver creates a resolver with the given configuration
func NewRateResolver(config RateResolverConfig) (*RateResolver, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("rate store is required: %w", ErrStorageUnavailable)
	}

	// Set defaults
	if config.Cache == nil {
		config.Cache = NewLRURateCache(1000)
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Location == nil {
		loc, err := LoadBusinessLocation("")
		if err != nil {
			return nil, fmt.Errorf("failed to load business timezone: %w", err)
		}
		config.Location = loc
	}
	if config.CircuitBreaker == nil {
		metrics, logger := config.Metrics, config.Logger
		config.CircuitBreaker = NewDefaultCircuitBreaker(5, time.Minute, func(state CircuitBreakerState) {
			metrics.RecordCircuitBreakerStateChange(string(state))
			logger.Warn("live rate source circuit changed state", Field{"state", string(state)})
		})
	}

	return &RateResolver{
		store:    config.Store,
		cache:    config.Cache,
		source:   config.Source,
		ttl:      config.CacheTTL,
		timeout:  config.FetchTimeout,
		breaker:  config.CircuitBreaker,
		location: config.Location,
		clock:    config.Clock,
		logger:   config.Logger,
		metrics:  config.Metrics,
		fallback: &previousRateFallback{
			cache:  config.Cache,
			store:  config.Store,
			logger: config.Logger,
		},
	}, nil
}

// Location returns the business timezone.
func (r *RateResolver) Location() *time.Location {
	return r.location
}

// Today returns the current calendar day in the business timezone.
func (r *RateResolver) Today() Date {
	return todayIn(r.clock, r.location)
}

// Resolve returns the rate for date. With allowFallback, the most recent
// earlier record is used when no exact record exists (before going live) and
// when the live source fails. Without it, only an exact or live rate is returned.
func (r *RateResolver) Resolve(ctx context.Context, date Date, allowFallback bool) (*RateQuote, error) {
	start := time.Now()
	quote, err := r.resolve(ctx, date, allowFallback)
	source := "unavailable"
	if err == nil {
		source = string(quote.Source)
	}
	r.metrics.RecordRateResolution(source, time.Since(start))
	return quote, err
}

func (r *RateResolver) resolve(ctx context.Context, date Date, allowFallback bool) (*RateQuote, error) {
	if date.IsZero() {
		return nil, ErrInvalidDate
	}

	// 1. Cache
	if quote := r.fromCache(ctx, date); quote != nil {
		return quote, nil
	}

	// 2. Store, exact date
	if quote := r.fromStore(ctx, date); quote != nil {
		return quote, nil
	}

	// 3. Previous record
	if allowFallback {
		if rec, err := r.fallback.lookup(ctx, date); err == nil {
			return fallbackQuote(rec), nil
		}
	}

	// 4. Live source
	quote, liveErr := r.fetchAndStore(ctx, date)
	if liveErr == nil {
		return quote, nil
	}

	// 5. Previous record after live failure
	if allowFallback {
		if rec, err := r.fallback.lookup(ctx, date); err == nil {
			return fallbackQuote(rec), nil
		}
	}

	// 6. Nothing
	return nil, fmt.Errorf("%w for %s: %w", ErrRateUnavailable, date, liveErr)
}

// DailyRate returns the rate for today in the business timezone. It never
// substitutes another date. Without forceRefresh the cache and store are tried
// before the live source; with it the live source is tried first and the
// cache and store only serve when it fails.
func (r *RateResolver) DailyRate(ctx context.Context, forceRefresh bool) (*RateQuote, error) {
	start := time.Now()
	quote, err := r.daily(ctx, r.Today(), forceRefresh)
	source := "unavailable"
	if err == nil {
		source = string(quote.Source)
	}
	r.metrics.RecordRateResolution(source, time.Since(start))
	return quote, err
}

func (r *RateResolver) daily(ctx context.Context, today Date, forceRefresh bool) (*RateQuote, error) {
	if !forceRefresh {
		if quote := r.fromCache(ctx, today); quote != nil {
			return quote, nil
		}
		if quote := r.fromStore(ctx, today); quote != nil {
			return quote, nil
		}
	}

	quote, liveErr := r.fetchAndStore(ctx, today)
	if liveErr == nil {
		return quote, nil
	}

	if forceRefresh {
		if quote := r.fromCache(ctx, today); quote != nil {
			return quote, nil
		}
		if quote := r.fromStore(ctx, today); quote != nil {
			return quote, nil
		}
	}
	return nil, fmt.Errorf("%w for %s: %w", ErrRateUnavailable, today, liveErr)
}

func (r *RateResolver) fromCache(ctx context.Context, date Date) *RateQuote {
	rec, ok := r.cache.Get(ctx, date)
	if !ok {
		r.metrics.RecordCacheMiss("rate")
		return nil
	}
	r.metrics.RecordCacheHit("rate")
	return &RateQuote{Rate: rec.Rate, Date: rec.effective(), Source: SourceCache}
}

func (r *RateResolver) fromStore(ctx context.Context, date Date) *RateQuote {
	start := time.Now()
	rec, err := r.store.GetRate(ctx, date)
	r.metrics.RecordStorageOperation("get_rate", time.Since(start), err)
	if err != nil {
		r.logger.Warn("rate store lookup failed",
			Field{"date", date.String()},
			Field{"error", err.Error()},
		)
		return nil
	}
	if rec == nil {
		return nil
	}
	r.cache.Set(ctx, rec, r.ttl)
	return &RateQuote{Rate: rec.Rate, Date: rec.effective(), Source: SourceDB}
}

func fallbackQuote(rec *RateRecord) *RateQuote {
	return &RateQuote{Rate: rec.Rate, Date: rec.effective(), Source: SourceFallback}
}

// fetchAndStore fetches date from the live source and persists the result under
// both the requested and the effective date. Concurrent fetches of the same
// date share one request, which a cancelled caller abandons without failing
// it for the others.
func (r *RateResolver) fetchAndStore(ctx context.Context, date Date) (*RateQuote, error) {
	if r.source == nil {
		return nil, errors.New("no live rate source configured")
	}

	// The shared fetch outlives any single caller; r.timeout still bounds it.
	ch := r.group.DoChan(date.String(), func() (interface{}, error) {
		return r.fetchLive(context.WithoutCancel(ctx), date)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		r.logger.Warn("live rate fetch failed",
			Field{"date", date.String()},
			Field{"source", r.source.Name()},
			Field{"error", err.Error()},
		)
		return nil, err
	}
	fetched, ok := v.(*FetchedRate)
	if !ok || fetched == nil {
		return nil, &SourceError{Source: r.source.Name(), Date: date, Err: errors.New("empty result")}
	}

	effective := fetched.EffectiveDate
	if effective.IsZero() {
		effective = date
	}
	now := r.clock.Now().UTC()

	requested := &RateRecord{Date: date, Rate: fetched.Rate, FetchedAt: now}
	if !effective.Equal(date) {
		requested.EffectiveDate = effective
	}
	r.persist(ctx, requested)
	if !effective.Equal(date) {
		r.persist(ctx, &RateRecord{Date: effective, Rate: fetched.Rate, FetchedAt: now})
	}

	return &RateQuote{Rate: fetched.Rate, Date: effective, Source: SourceBNR}, nil
}

func (r *RateResolver) fetchLive(ctx context.Context, date Date) (*FetchedRate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	var fetched *FetchedRate
	err := r.breaker.Execute(fetchCtx, func() error {
		f, err := r.source.FetchRate(fetchCtx, date)
		if err != nil {
			return err
		}
		if f == nil || f.Rate <= 0 {
			return fmt.Errorf("invalid rate returned for %s", date)
		}
		fetched = f
		return nil
	})
	r.metrics.RecordLiveFetch(time.Since(start), err)
	if err != nil {
		return nil, &SourceError{Source: r.source.Name(), Date: date, Err: err}
	}
	return fetched, nil
}

// persist writes a record to the store and the cache. Store failures are logged
// only; the fetched rate is still served.
func (r *RateResolver) persist(ctx context.Context, rec *RateRecord) {
	start := time.Now()
	err := r.store.UpsertRate(ctx, rec)
	r.metrics.RecordStorageOperation("upsert_rate", time.Since(start), err)
	if err != nil {
		r.logger.Warn("failed to persist rate",
			Field{"date", rec.Date.String()},
			Field{"error", err.Error()},
		)
	}
	r.cache.Set(ctx, rec, r.ttl)
}

// Invalidate drops a cached date so the next lookup reaches the store.
func (r *RateResolver) Invalidate(ctx context.Context, date Date) {
	r.cache.Invalidate(ctx, date)
}
