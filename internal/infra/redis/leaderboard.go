package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"event-quiz-service/internal/domain"
)

const (
	userBoardKey  = "leaderboard:users"
	groupBoardKey = "leaderboard:groups"
)

// Leaderboard keeps user and group scores in two Redis sorted sets. ZINCRBY
// is atomic on the server, which is all the engine's at-most-once contract
// needs.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) IncrementUserScore(ctx context.Context, userID string, delta int) error {
	if err := l.client.ZIncrBy(ctx, userBoardKey, float64(delta), userID).Err(); err != nil {
		return domain.Wrap(domain.KindInternal, "increment user score", err)
	}
	return nil
}

func (l *Leaderboard) IncrementGroupScore(ctx context.Context, groupID string, delta int) error {
	if err := l.client.ZIncrBy(ctx, groupBoardKey, float64(delta), groupID).Err(); err != nil {
		return domain.Wrap(domain.KindInternal, "increment group score", err)
	}
	return nil
}

func (l *Leaderboard) Reset(ctx context.Context) error {
	if err := l.client.Del(ctx, userBoardKey, groupBoardKey).Err(); err != nil {
		return domain.Wrap(domain.KindInternal, "reset leaderboard", err)
	}
	return nil
}

// TopUsers returns the highest-scored users, best first.
func (l *Leaderboard) TopUsers(ctx context.Context, n int64) ([]redis.Z, error) {
	entries, err := l.client.ZRevRangeWithScores(ctx, userBoardKey, 0, n-1).Result()
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "read user leaderboard", err)
	}
	return entries, nil
}

// TopGroups returns the highest-scored groups, best first.
func (l *Leaderboard) TopGroups(ctx context.Context, n int64) ([]redis.Z, error) {
	entries, err := l.client.ZRevRangeWithScores(ctx, groupBoardKey, 0, n-1).Result()
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "read group leaderboard", err)
	}
	return entries, nil
}
