package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/max-mines/epic-bot/internal/model"
)

const answerKeyPrefix = "epic-bot:answers:"

// RedisAnswerCache is an AnswerCache backed by a Redis hash per user.
// Used when REDIS_URL is configured, so cached answers survive restarts
// and deploys.
type RedisAnswerCache struct {
	client *redis.Client
}

func NewRedisAnswerCache(client *redis.Client) *RedisAnswerCache {
	return &RedisAnswerCache{client: client}
}

func (c *RedisAnswerCache) Get(ctx context.Context, userID string) (model.Answers, bool, error) {
	fields, err := c.client.HGetAll(ctx, answerKeyPrefix+userID).Result()
	if err != nil {
		return model.Answers{}, false, fmt.Errorf("reading cached answers: %w", err)
	}
	if len(fields) == 0 {
		return model.Answers{}, false, nil
	}

	return model.Answers{
		Users:     fields["users"],
		Problem:   fields["problem"],
		TechStack: fields["tech_stack"],
	}, true, nil
}

func (c *RedisAnswerCache) Put(ctx context.Context, userID string, answers model.Answers) error {
	err := c.client.HSet(ctx, answerKeyPrefix+userID,
		"users", answers.Users,
		"problem", answers.Problem,
		"tech_stack", answers.TechStack,
	).Err()
	if err != nil {
		return fmt.Errorf("caching answers: %w", err)
	}
	return nil
}
