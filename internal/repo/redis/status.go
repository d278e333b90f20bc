package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

var _ repo.StatusCache = (*StatusCache)(nil)

const keyPrefix = "synthetic:node-health:"

// StatusCache stores the latest NodeHealth per node as JSON with a TTL.
type StatusCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStatusCache(client *goredis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string, ttl time.Duration) (*StatusCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStatusCache(client, ttl), nil
}

func (c *StatusCache) Close() error { return c.client.Close() }

func key(nodeID int64) string { return keyPrefix + strconv.FormatInt(nodeID, 10) }

func (c *StatusCache) PutHealth(ctx context.Context, h domain.NodeHealth) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal node health: %w", err)
	}
	if err := c.client.Set(ctx, key(h.NodeID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save node health: %w", err)
	}
	return nil
}

func (c *StatusCache) GetHealth(ctx context.Context, nodeID int64) (*domain.NodeHealth, error) {
	data, err := c.client.Get(ctx, key(nodeID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get node health: %w", err)
	}
	var h domain.NodeHealth
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unmarshal node health: %w", err)
	}
	return &h, nil
}
