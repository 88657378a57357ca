// Package redis stores signals and verification tasks in Redis.
//
// Layout, with every key under a configurable prefix:
//
//	signal:{id}   JSON signal
//	task:{id}     JSON verification task
//	signals       ZSET of ids scored by created_at (ms)
//	due           ZSET of PENDING task ids scored by verify_at (ms)
//	completed     ZSET of COMPLETED ids scored by completed_at (ms)
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces keys when no prefix is configured.
const DefaultKeyPrefix = "fxsignal:"

// NewClient parses a redis:// URL, applies an optional password override and
// verifies the connection.
func NewClient(ctx context.Context, url, password string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opt.Password = password
	}

	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// keyspace builds keys under one prefix.
type keyspace string

func (k keyspace) signal(id string) string { return string(k) + "signal:" + id }
func (k keyspace) task(id string) string   { return string(k) + "task:" + id }
func (k keyspace) signals() string         { return string(k) + "signals" }
func (k keyspace) due() string             { return string(k) + "due" }
func (k keyspace) completed() string       { return string(k) + "completed" }
