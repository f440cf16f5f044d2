package attendance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"classroom/internal/model"
)

// LeaderboardKey is the sorted set ranking students by current streak.
const LeaderboardKey = "leaderboard:streaks"

const (
	fieldCurrent     = "current"
	fieldLastPresent = "last_present"
	fieldBonus       = "bonus"
)

// Cache keeps streak state in Redis: a hash per student plus the leaderboard.
type Cache struct {
	client *redis.Client
}

// NewCache creates a cache over client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func streakKey(studentID string) string {
	return "streak:" + studentID
}

// Get returns the cached streak. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, studentID string) (model.Streak, bool, error) {
	fields, err := c.client.HGetAll(ctx, streakKey(studentID)).Result()
	if err != nil {
		return model.Streak{}, false, err
	}
	return decodeStreak(fields)
}

// Put overwrites the cached streak of studentID and its leaderboard score in
// one MULTI/EXEC.
func (c *Cache) Put(ctx context.Context, studentID string, st model.Streak) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeStreak(ctx, pipe, studentID, st)
		return nil
	})
	return err
}

// Replace drops the leaderboard and loads streaks in its place.
func (c *Cache) Replace(ctx context.Context, streaks map[string]model.Streak) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, LeaderboardKey)
		for id, st := range streaks {
			writeStreak(ctx, pipe, id, st)
		}
		return nil
	})
	return err
}

// Top returns the n best current streaks. Equal scores come in reverse
// lexicographic member order.
func (c *Cache) Top(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	zs, err := c.client.ZRevRangeWithScores(ctx, LeaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, model.LeaderboardEntry{StudentID: member, Streak: int(z.Score)})
	}
	return out, nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func writeStreak(ctx context.Context, pipe redis.Pipeliner, studentID string, st model.Streak) {
	last := ""
	if st.LastPresent != nil {
		last = st.LastPresent.String()
	}
	pipe.HSet(ctx, streakKey(studentID),
		fieldCurrent, st.Current,
		fieldLastPresent, last,
		fieldBonus, st.Bonus,
	)
	pipe.ZAdd(ctx, LeaderboardKey, redis.Z{Score: float64(st.Current), Member: studentID})
}

func decodeStreak(fields map[string]string) (model.Streak, bool, error) {
	raw, ok := fields[fieldCurrent]
	if !ok {
		return model.Streak{}, false, nil
	}
	var st model.Streak
	var err error
	if st.Current, err = strconv.Atoi(raw); err != nil {
		return model.Streak{}, false, fmt.Errorf("decode cached streak: %w", err)
	}
	if st.Bonus, err = strconv.Atoi(fields[fieldBonus]); err != nil {
		return model.Streak{}, false, fmt.Errorf("decode cached bonus: %w", err)
	}
	if last := fields[fieldLastPresent]; last != "" {
		d, err := model.ParseDate(last)
		if err != nil {
			return model.Streak{}, false, fmt.Errorf("decode cached last present: %w", err)
		}
		st.LastPresent = &d
	}
	return st, true, nil
}
