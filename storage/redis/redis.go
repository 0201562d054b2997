// Package redis provides a Redis-based implementation of storage.Store. Each
// store keeps its entries in a hash and their first-insertion order in a
// sorted set, so several processes can share one namespace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/motebus/Ultra-MCP-Servers/storage"
)

// Config contains configuration options for the Redis storage
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "ultramcp:store:"
	KeyPrefix string

	// Namespace separates independent stores (e.g. "notes", "search")
	// sharing one Redis database. Default: "default"
	Namespace string
}

// Storage implements storage.Store using Redis
type Storage struct {
	client     *redis.Client
	dataKey    string
	orderKey   string
	seqKey     string
	changesKey string

	// origin tags the change events this instance writes.
	origin string
}

// changesMaxLen bounds the change stream; watchers only follow its tail.
const changesMaxLen = 1000

// putScript writes the entry and, only when the name is new, appends it to
// the order index under the next sequence number. Every write is appended
// to the change stream.
var putScript = redis.NewScript(`
local added = redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if added == 1 then
  local seq = redis.call('INCR', KEYS[3])
  redis.call('ZADD', KEYS[2], seq, ARGV[1])
end
redis.call('XADD', KEYS[4], 'MAXLEN', '~', ARGV[4], '*', 'name', ARGV[1], 'origin', ARGV[3])
return added
`)

// New creates a new Redis-based store.
func New(config Config) (*Storage, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "ultramcp:store:"
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	base := config.KeyPrefix + config.Namespace + ":"

	return &Storage{
		client:     config.Client,
		dataKey:    base + "data",
		orderKey:   base + "order",
		seqKey:     base + "seq",
		changesKey: base + "changes",
		origin:     uuid.NewString(),
	}, nil
}

// NewClient returns a client for addr. It connects on first use.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := NewClient(addr)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// Put creates or overwrites the entry.
func (s *Storage) Put(ctx context.Context, name, content string) error {
	keys := []string{s.dataKey, s.orderKey, s.seqKey, s.changesKey}
	if err := putScript.Run(ctx, s.client, keys, name, content, s.origin, changesMaxLen).Err(); err != nil {
		return fmt.Errorf("failed to put entry %s: %w", name, err)
	}
	return nil
}

// Get returns the entry content or storage.ErrNotFound.
func (s *Storage) Get(ctx context.Context, name string) (string, error) {
	content, err := s.client.HGet(ctx, s.dataKey, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to get entry %s: %w", name, err)
	}
	return content, nil
}

// List returns all entries in insertion order.
func (s *Storage) List(ctx context.Context) ([]storage.Entry, error) {
	names, err := s.client.ZRange(ctx, s.orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry order: %w", err)
	}
	if len(names) == 0 {
		return []storage.Entry{}, nil
	}
	values, err := s.client.HMGet(ctx, s.dataKey, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	out := make([]storage.Entry, 0, len(names))
	for i, name := range names {
		content, ok := values[i].(string)
		if !ok {
			continue
		}
		out = append(out, storage.Entry{Name: name, Content: content})
	}
	return out, nil
}

// Watch calls fn with the entry name of every write made through another
// Storage on the same namespace, starting with the next write. It blocks
// until ctx is done.
func (s *Storage) Watch(ctx context.Context, fn func(ctx context.Context, name string)) error {
	startID := "$"
	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.changesKey, startID},
			Count:   16,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read from stream %s: %w", s.changesKey, err)
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				startID = msg.ID
				if origin, _ := msg.Values["origin"].(string); origin == s.origin {
					continue
				}
				name, _ := msg.Values["name"].(string)
				fn(ctx, name)
			}
		}
	}
}

// Close closes the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}

// Compile-time interface checks
var (
	_ storage.Store   = (*Storage)(nil)
	_ storage.Watcher = (*Storage)(nil)
)
