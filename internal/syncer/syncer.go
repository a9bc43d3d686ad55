package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dtelabs/escrow-api/internal/types"
)

// SyncState is the synchronizer's write guard. While a manual mutation is in
// flight the state is Syncing and poll results are discarded, so a stale
// read can never clobber an optimistic update.
type SyncState int32

const (
	StateIdle SyncState = iota
	StateSyncing
)

// DefaultPollInterval matches the reference behaviour of one fetch per second.
const DefaultPollInterval = time.Second

// Synchronizer owns a viewer's local view of the trade collection. It polls
// the record store on a fixed interval, merges results into the cache, and
// funnels every mutation through the store followed by a reconciling refresh.
// The cache is the only state the lifecycle projector ever reads.
type Synchronizer struct {
	store    RecordStore
	interval time.Duration
	logger   zerolog.Logger

	state atomic.Int32

	mu      sync.RWMutex
	records []types.TradeRecord
}

// New creates a synchronizer polling the given store. A zero interval falls
// back to DefaultPollInterval.
func New(store RecordStore, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Synchronizer{
		store:    store,
		interval: interval,
		logger:   log.With().Str("component", "synchronizer").Logger(),
	}
}

// Start begins periodic polling until ctx is cancelled. A failed fetch keeps
// the previous cache; the next tick is the retry.
func (s *Synchronizer) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("starting record store polling")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("shutting down record store polling")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("poll fetch failed, keeping stale cache")
			}
		}
	}
}

// Refresh performs one immediate fetch and replaces the cache. It is a
// silent no-op while a manual write is in flight, and the fetched result is
// re-checked against the guard before it lands, since a write may have
// started while the fetch was on the wire.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if s.State() == StateSyncing {
		return nil
	}

	records, err := s.store.ListTrades(ctx)
	if err != nil {
		return err
	}

	if s.State() == StateSyncing {
		return nil
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Create registers a new trade through the store.
func (s *Synchronizer) Create(ctx context.Context, input types.NewTrade) (*types.TradeRecord, error) {
	var created *types.TradeRecord
	err := s.mutate(ctx, func() error {
		trade, err := s.store.CreateTrade(ctx, input)
		if err != nil {
			return err
		}
		created = trade
		return nil
	})
	return created, err
}

// Update pushes a partial record update through the store.
func (s *Synchronizer) Update(ctx context.Context, update types.TradeUpdate) (*types.TradeRecord, error) {
	var updated *types.TradeRecord
	err := s.mutate(ctx, func() error {
		trade, err := s.store.UpdateTrade(ctx, update)
		if err != nil {
			return err
		}
		updated = trade
		return nil
	})
	return updated, err
}

// Clear resets the whole collection.
func (s *Synchronizer) Clear(ctx context.Context) error {
	return s.mutate(ctx, func() error {
		return s.store.ClearTrades(ctx)
	})
}

// mutate runs op with the write guard held, then refreshes once regardless
// of op's outcome so the cache cannot diverge for more than one interval.
func (s *Synchronizer) mutate(ctx context.Context, op func() error) error {
	s.state.Store(int32(StateSyncing))
	opErr := op()
	s.state.Store(int32(StateIdle))

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("post-mutate refresh failed")
	}

	if opErr != nil {
		s.logger.Error().Err(opErr).Msg("record store mutation failed")
	}
	return opErr
}

// Snapshot returns a copy of the cached collection.
func (s *Synchronizer) Snapshot() []types.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]types.TradeRecord, len(s.records))
	copy(records, s.records)
	return records
}

// State reports the current write guard state.
func (s *Synchronizer) State() SyncState {
	return SyncState(s.state.Load())
}
