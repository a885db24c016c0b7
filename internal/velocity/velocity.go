// Package velocity provides transaction velocity lookups for scoring.
package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// countTTL bounds how stale a memoized velocity count may be. Scoring
// tolerates slightly stale counts; a fresh graph query per account per
// score would dominate run time.
const countTTL = 30 * time.Second

// Service calculates transaction velocity for accounts, memoizing
// counts through the cache.
type Service struct {
	store domain.GraphStore
	cache domain.Cache
}

// NewService creates a velocity service.
func NewService(store domain.GraphStore, cache domain.Cache) *Service {
	return &Service{store: store, cache: cache}
}

// TransactionCount returns the number of transactions touching the
// account within the trailing window.
func (s *Service) TransactionCount(ctx context.Context, accountID string, window time.Duration) (int, error) {
	if accountID == "" {
		return 0, fmt.Errorf("account id is required")
	}

	key := countKey("txcount", accountID, window)
	if n, ok := s.cachedCount(ctx, key); ok {
		return n, nil
	}

	txs, err := s.store.TransactionsForAccount(ctx, accountID, time.Now().UTC().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("count transactions for %s: %w", accountID, err)
	}

	s.storeCount(ctx, key, len(txs))
	return len(txs), nil
}

// FlaggedCount returns the number of flagged transactions touching the
// account within the trailing window.
func (s *Service) FlaggedCount(ctx context.Context, accountID string, window time.Duration) (int, error) {
	if accountID == "" {
		return 0, fmt.Errorf("account id is required")
	}

	key := countKey("flagged", accountID, window)
	if n, ok := s.cachedCount(ctx, key); ok {
		return n, nil
	}

	txs, err := s.store.TransactionsForAccount(ctx, accountID, time.Now().UTC().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("count flagged transactions for %s: %w", accountID, err)
	}

	n := 0
	for _, tx := range txs {
		if tx.Flagged {
			n++
		}
	}

	s.storeCount(ctx, key, n)
	return n, nil
}

// RecordTransaction bumps the live per-account counter used by
// ingestion-time throttling. Returns the new count in the window.
func (s *Service) RecordTransaction(ctx context.Context, accountID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, countKey("live", accountID, window), window)
}

// Invalidate drops memoized counts for an account, typically after the
// scoring pipeline flags its transactions.
func (s *Service) Invalidate(ctx context.Context, accountID string, windows ...time.Duration) {
	if s.cache == nil {
		return
	}
	for _, w := range windows {
		_ = s.cache.Delete(ctx, countKey("txcount", accountID, w))
		_ = s.cache.Delete(ctx, countKey("flagged", accountID, w))
	}
}

func (s *Service) cachedCount(ctx context.Context, key string) (int, bool) {
	if s.cache == nil {
		return 0, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Service) storeCount(ctx context.Context, key string, n int) {
	if s.cache == nil {
		return
	}
	// Cache write failures are invisible to callers: the next lookup
	// just misses.
	_ = s.cache.Set(ctx, key, []byte(strconv.Itoa(n)), countTTL)
}

func countKey(kind, accountID string, window time.Duration) string {
	return "velocity:" + kind + ":" + accountID + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
}
