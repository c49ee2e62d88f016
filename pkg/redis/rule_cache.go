package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jukebox-queue-system/pkg/models"
)

const rulesKey = "rules:all"

// RuleCache holds the full rule set in front of the database.
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRuleCache(client *redis.Client, ttl time.Duration) *RuleCache {
	return &RuleCache{client: client, ttl: ttl}
}

// GetRules reports false on a cache miss.
func (c *RuleCache) GetRules(ctx context.Context) ([]models.Rule, bool, error) {
	rulesJSON, err := c.client.Get(ctx, rulesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached rules: %w", err)
	}

	var rules []models.Rule
	if err := json.Unmarshal(rulesJSON, &rules); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return rules, true, nil
}

func (c *RuleCache) SetRules(ctx context.Context, rules []models.Rule) error {
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if err := c.client.Set(ctx, rulesKey, rulesJSON, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache rules: %w", err)
	}
	return nil
}

func (c *RuleCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, rulesKey).Err()
}
