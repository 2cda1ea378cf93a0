package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	"Tradeflow/pkg/cache"
	"Tradeflow/pkg/logger"
)

const (
	phaseKeyPrefix   = "tradeflow:phase"
	claimKeyPrefix   = "tradeflow:claim"
	archiveKeyPrefix = "tradeflow:day"

	defaultPhaseTTL = 7 * 24 * time.Hour
)

// PhaseStore keeps completed phases and archived days in the shared cache so
// replicas and restarts see the same history.
type PhaseStore struct {
	cache  cache.Service
	ttl    time.Duration
	logger *logger.Logger
}

type PhaseStoreOption func(*PhaseStore)

// WithPhaseTTL sets how long completed phases and archives are kept.
func WithPhaseTTL(ttl time.Duration) PhaseStoreOption {
	return func(s *PhaseStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewPhaseStore(c cache.Service, l *logger.Logger, opts ...PhaseStoreOption) *PhaseStore {
	s := &PhaseStore{cache: c, ttl: defaultPhaseTTL, logger: l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PhaseStore) Get(ctx context.Context, date string, phase models.Phase) (models.PhaseStatus, error) {
	var st models.PhaseStatus
	key := cache.GenerateKeyWithParams(phaseKeyPrefix, date, phase)
	if err := s.cache.Get(ctx, key, &st); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.PhaseStatus{}, domrepo.ErrNotFound
		}
		return models.PhaseStatus{}, fmt.Errorf("get phase %s: %w", key, err)
	}
	if st.Events == nil {
		st.Events = []models.Event{}
	}
	return st, nil
}

// Put stores a finished phase. Errored phases are not kept so they can be retried.
func (s *PhaseStore) Put(ctx context.Context, status models.PhaseStatus) error {
	if !status.Complete {
		return nil
	}
	key := cache.GenerateKeyWithParams(phaseKeyPrefix, status.TradingDate, status.Phase)
	if err := s.cache.Set(ctx, key, status, s.ttl); err != nil {
		return fmt.Errorf("put phase %s: %w", key, err)
	}
	return nil
}

func (s *PhaseStore) Claim(ctx context.Context, date string, phase models.Phase, ttl time.Duration) (func(), bool, error) {
	key := cache.GenerateKeyWithParams(claimKeyPrefix, date, phase)
	token, ok, err := s.cache.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The run's context may already be cancelled; unlock regardless.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		switch err := s.cache.Unlock(ctx, key, token); {
		case errors.Is(err, cache.ErrLockNotHeld):
			s.logger.Warn("phase claim expired before release", logger.String("key", key), logger.Duration("ttl", ttl))
		case err != nil:
			s.logger.Warn("release phase claim failed", logger.String("key", key), logger.Error(err))
		}
	}
	return release, true, nil
}

func (s *PhaseStore) Save(ctx context.Context, state *models.TradingDayState) error {
	if state == nil {
		return errors.New("save day: nil state")
	}
	key := cache.GenerateKeyWithParams(archiveKeyPrefix, state.TradingDate)
	if err := s.cache.Set(ctx, key, state, s.ttl); err != nil {
		return fmt.Errorf("save day %s: %w", state.TradingDate, err)
	}
	return nil
}

func (s *PhaseStore) Load(ctx context.Context, date string) (*models.TradingDayState, error) {
	state := models.NewTradingDayState(date, 0)
	key := cache.GenerateKeyWithParams(archiveKeyPrefix, date)
	if err := s.cache.Get(ctx, key, state); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("load day %s: %w", date, err)
	}
	return state, nil
}

var (
	_ domrepo.PhaseCache = (*PhaseStore)(nil)
	_ domrepo.DayArchive = (*PhaseStore)(nil)
)
