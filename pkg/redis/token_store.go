package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("token not found")

type TokenInfo struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at now, keeping a margin
// so a request does not start with a token about to lapse.
func (t *TokenInfo) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Add(30*time.Second).Before(t.ExpiresAt)
}

// TokenStore keeps service access tokens shared by every server instance.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore creates a new token store with the given Redis client
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(name string) string {
	return fmt.Sprintf("token:%s", name)
}

// StoreToken stores the token; Redis expires it together with the token.
func (s *TokenStore) StoreToken(ctx context.Context, name string, token *TokenInfo) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, tokenKey(name), tokenJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

// GetToken retrieves a stored token
func (s *TokenStore) GetToken(ctx context.Context, name string) (*TokenInfo, error) {
	tokenJSON, err := s.client.Get(ctx, tokenKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token TokenInfo
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// DeleteToken removes a stored token, e.g. one the issuer has revoked.
func (s *TokenStore) DeleteToken(ctx context.Context, name string) error {
	return s.client.Del(ctx, tokenKey(name)).Err()
}
