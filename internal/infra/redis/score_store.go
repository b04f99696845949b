package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const globalScoresKey = "quiz:scores:global"

// ScoreStore keeps the all-time score table in a single Redis hash; HINCRBY
// makes each award one atomic step.
type ScoreStore struct {
	client *redis.Client
}

func NewScoreStore(client *redis.Client) *ScoreStore {
	return &ScoreStore{client: client}
}

func (s *ScoreStore) Increment(ctx context.Context, userID string) error {
	if err := s.client.HIncrBy(ctx, globalScoresKey, userID, 1).Err(); err != nil {
		return fmt.Errorf("increment score: %w", err)
	}
	return nil
}

func (s *ScoreStore) Load(ctx context.Context) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, globalScoresKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	scores := make(map[string]int, len(raw))
	for userID, value := range raw {
		points, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("score for %s: %w", userID, err)
		}
		scores[userID] = points
	}
	return scores, nil
}
