// Package tiered provides a Hot/Cold tiered golease.RateStore that pairs a
// fast store (Hot, e.g. Redis) with a durable one (Cold, e.g. Postgres).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mihaimyh/golease/pkg/golease"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 rate store (e.g., Redis, Memory)
	Hot golease.RateStore

	// Cold is the L2 rate store (e.g., Postgres, Firestore) and the source of truth
	Cold golease.RateStore

	// AsyncHotWrites writes to Hot from a background worker after Cold has
	// accepted the record. If false, both writes are synchronous.
	AsyncHotWrites bool

	// SyncBufferSize is the size of the buffered channel for async writes.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when an async write fails.
	AsyncErrorHandler func(error)
}

// Storage implements golease.RateStore over two tiers:
// - Read-Through with read-repair: GetRate (Hot → Cold → populate Hot)
// - Cold-first: GetLatestRateOnOrBefore (Cold, Hot only when Cold fails)
// - Write-Through: UpsertRate (Cold → Hot)
type Storage struct {
	hot  golease.RateStore
	cold golease.RateStore
	conf Config

	// Channel for async hot writes
	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncHotWrites {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncHotWrites {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background write loop.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				if err := job(); err != nil {
					s.reportAsync(err)
				}
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.syncQueue:
						_ = job() //nolint:errcheck // Best effort during shutdown
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) reportAsync(err error) {
	if s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
	}
}

// GetRate implements golease.RateStore with read-through strategy.
func (s *Storage) GetRate(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	// 1. Try Hot
	rec, err := s.hot.GetRate(ctx, date)
	if err == nil && rec != nil {
		return rec, nil
	}

	// 2. Try Cold (Source of Truth)
	rec, err = s.cold.GetRate(ctx, date)
	if err != nil || rec == nil {
		return rec, err
	}

	// 3. Populate Hot (Read-Repair)
	// We ignore errors here as it's just a cache fill
	_ = s.hot.UpsertRate(ctx, rec) //nolint:errcheck // Read-repair is best-effort
	return rec, nil
}

// GetLatestRateOnOrBefore implements golease.RateStore. Hot may hold only a
// subset of dates, so Cold answers unless it is unavailable.
func (s *Storage) GetLatestRateOnOrBefore(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	rec, err := s.cold.GetLatestRateOnOrBefore(ctx, date)
	if err == nil {
		return rec, nil
	}

	hotRec, hotErr := s.hot.GetLatestRateOnOrBefore(ctx, date)
	if hotErr != nil || hotRec == nil {
		return nil, err
	}
	return hotRec, nil
}

// UpsertRate implements golease.RateStore with write-through strategy.
func (s *Storage) UpsertRate(ctx context.Context, rec *golease.RateRecord) error {
	// 1. Write to Cold first (Source of Truth)
	if err := s.cold.UpsertRate(ctx, rec); err != nil {
		return err
	}

	// 2. Update Hot
	if s.conf.AsyncHotWrites {
		recCopy := *rec
		job := func() error {
			return s.hot.UpsertRate(context.Background(), &recCopy)
		}
		select {
		case s.syncQueue <- job:
		default:
			s.reportAsync(errors.New("sync queue full, hot write dropped"))
		}
		return nil
	}

	// Cold succeeded; a failed Hot write only costs a later read-repair
	_ = s.hot.UpsertRate(ctx, rec) //nolint:errcheck
	return nil
}
