package attendance

import (
	"context"

	"go.uber.org/zap"

	"classroom/internal/metrics"
	"classroom/internal/model"
)

// Leaderboard sizes.
const (
	DefaultTop = 10
	MaxTop     = 100
)

// Top returns the n longest current streaks, longest first. n is clamped to
// [1, MaxTop]; zero or less means DefaultTop.
func (s *Service) Top(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	switch {
	case n <= 0:
		n = DefaultTop
	case n > MaxTop:
		n = MaxTop
	}

	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	entries, err := s.cache.Top(cctx, n)
	if err == nil {
		return entries, nil
	}

	metrics.CacheFallbacks.WithLabelValues("leaderboard").Inc()
	s.log.Warn("leaderboard cache unavailable, ranking from durable streaks", zap.Error(err))
	return s.repo.TopStreaks(ctx, n)
}
