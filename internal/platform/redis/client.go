// Package redis opens the go-redis client backing the nullifier registry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"discard/internal/platform/config"
)

const healthTimeout = time.Second

type Client struct {
	*redis.Client
}

// New dials cfg.URL and pings once before returning.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	applyPool(opts, cfg)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}

func applyPool(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for dst, src := range map[*time.Duration]time.Duration{
		&opts.DialTimeout:  cfg.DialTimeout,
		&opts.ReadTimeout:  cfg.ReadTimeout,
		&opts.WriteTimeout: cfg.WriteTimeout,
	} {
		if src > 0 {
			*dst = src
		}
	}
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// RegisterPoolMetrics exposes connection pool occupancy as gauges.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) error {
	gauges := map[string]func(*redis.PoolStats) uint32{
		"total": func(s *redis.PoolStats) uint32 { return s.TotalConns },
		"idle":  func(s *redis.PoolStats) uint32 { return s.IdleConns },
		"stale": func(s *redis.PoolStats) uint32 { return s.StaleConns },
	}
	for state, read := range gauges {
		err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "discard_redis_pool_connections",
			Help:        "Redis pool connections by state",
			ConstLabels: prometheus.Labels{"state": state},
		}, func() float64 { return float64(read(c.PoolStats())) }))
		if err != nil {
			return fmt.Errorf("register redis pool metric %s: %w", state, err)
		}
	}
	return nil
}
