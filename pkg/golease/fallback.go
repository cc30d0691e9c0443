package golease

import (
	"context"
	"fmt"
)

// previousRateFallback finds the most recent known rate dated on or before a
// requested date, looking in the cache and the store and keeping the later one.
type previousRateFallback struct {
	cache  RateCache
	store  RateStore
	logger Logger
}

func (f *previousRateFallback) lookup(ctx context.Context, date Date) (*RateRecord, error) {
	var best *RateRecord
	if rec, ok := f.cache.LatestOnOrBefore(ctx, date); ok {
		best = rec
	}

	rec, err := f.store.GetLatestRateOnOrBefore(ctx, date)
	if err != nil {
		f.logger.Warn("rate store fallback lookup failed",
			Field{"date", date.String()},
			Field{"error", err.Error()},
		)
	} else if rec != nil && (best == nil || rec.Date.After(best.Date)) {
		best = rec
	}

	if best == nil {
		return nil, fmt.Errorf("no rate on or before %s: %w", date, ErrFallbackUnavailable)
	}

	f.logger.Info("using previous rate for fallback",
		Field{"requested", date.String()},
		Field{"date", best.Date.String()},
	)
	return best, nil
}
