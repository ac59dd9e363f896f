package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

const defaultSettingsTTL = 5 * time.Minute

// ErrCacheMiss is returned when a key is absent; callers fall back to the
// database and repopulate.
var ErrCacheMiss = errors.New("settings cache miss")

// SettingsCache keeps hot per-tenant configuration (partners, keyword sets,
// delivery rules) in Redis so the ingest path does not hit Postgres on
// every inbound message.
type SettingsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSettingsCache(client *redis.Client, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = defaultSettingsTTL
	}
	return &SettingsCache{client: client, ttl: ttl}
}

func partnersKey(tenantID string) string {
	return fmt.Sprintf("orderrelay:settings:%s:partners", tenantID)
}

func keywordsKey(tenantID string) string {
	return fmt.Sprintf("orderrelay:settings:%s:keywords", tenantID)
}

func ruleKey(tenantID, region string) string {
	return fmt.Sprintf("orderrelay:settings:%s:rule:%s", tenantID, region)
}

func (c *SettingsCache) GetPartners(ctx context.Context, tenantID string) ([]domain.Partner, error) {
	var partners []domain.Partner
	if err := c.get(ctx, partnersKey(tenantID), &partners); err != nil {
		return nil, err
	}
	return partners, nil
}

func (c *SettingsCache) SetPartners(ctx context.Context, tenantID string, partners []domain.Partner) error {
	return c.set(ctx, partnersKey(tenantID), partners)
}

func (c *SettingsCache) GetKeywordConfig(ctx context.Context, tenantID string) (*domain.KeywordConfig, error) {
	var cfg domain.KeywordConfig
	if err := c.get(ctx, keywordsKey(tenantID), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SettingsCache) SetKeywordConfig(ctx context.Context, tenantID string, cfg *domain.KeywordConfig) error {
	return c.set(ctx, keywordsKey(tenantID), cfg)
}

func (c *SettingsCache) GetDeliveryRule(ctx context.Context, tenantID, region string) (*domain.DeliveryRule, error) {
	var rule domain.DeliveryRule
	if err := c.get(ctx, ruleKey(tenantID, region), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (c *SettingsCache) SetDeliveryRule(ctx context.Context, tenantID string, rule *domain.DeliveryRule) error {
	if rule == nil {
		return nil
	}
	return c.set(ctx, ruleKey(tenantID, rule.Region), rule)
}

// Invalidate drops every cached setting for the tenant. Called when an
// external settings change is signalled.
func (c *SettingsCache) Invalidate(ctx context.Context, tenantID string) error {
	pattern := fmt.Sprintf("orderrelay:settings:%s:*", tenantID)

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan settings keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *SettingsCache) get(ctx context.Context, key string, out any) error {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("failed to read settings cache: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode cached settings: %w", err)
	}
	return nil
}

func (c *SettingsCache) set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}
