// Package redisstore is a durable checkpoint.Store backed by Redis, using
// goa.design/pulse's node abstraction over go-redis the way
// features/stream/pulse/sink.go wraps a Pulse node for stream publishing.
// Checkpoints are plain values read and written with go-redis SET/GET;
// each key written is also added to an index set so recovery-on-start can
// list keys by prefix without a Redis SCAN over the whole keyspace. The
// Pulse node is created with the store and closed with it, but checkpoint
// reads and writes do not go through it.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/pulse/pulse"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
)

// Options configures Store.
type Options struct {
	// Namespace prefixes every Redis key, isolating multiple node
	// deployments sharing one Redis instance.
	Namespace string
}

// Store implements checkpoint.Store against Redis via a Pulse node.
type Store struct {
	rdb  *redis.Client
	node *pulse.Node
	ns   string
}

// New constructs a Store. nodeName identifies this node's Pulse namespace;
// rdb is an already-configured go-redis client.
func New(ctx context.Context, nodeName string, rdb *redis.Client, opts Options) (*Store, error) {
	node, err := pulse.AddNode(ctx, nodeName, pulse.WithRedis(rdb))
	if err != nil {
		return nil, fmt.Errorf("redisstore: add pulse node: %w", err)
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "agentnode"
	}
	return &Store{rdb: rdb, node: node, ns: ns}, nil
}

func (s *Store) redisKey(key string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.ns, key)
}

// Put implements checkpoint.Store.
func (s *Store) Put(ctx context.Context, key string, cp a2atypes.Checkpoint, ttl time.Duration) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redisstore: marshal checkpoint: %w", err)
	}
	rk := s.redisKey(key)
	if err := s.rdb.Set(ctx, rk, data, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", rk, err)
	}
	return s.rdb.SAdd(ctx, s.indexKey(), key).Err()
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, key string) (a2atypes.Checkpoint, bool, error) {
	data, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		_ = s.rdb.SRem(ctx, s.indexKey(), key).Err()
		return a2atypes.Checkpoint{}, false, nil
	}
	if err != nil {
		return a2atypes.Checkpoint{}, false, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	var cp a2atypes.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return a2atypes.Checkpoint{}, false, fmt.Errorf("redisstore: unmarshal checkpoint: %w", err)
	}
	return cp, true, nil
}

// Delete implements checkpoint.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: del %s: %w", key, err)
	}
	return s.rdb.SRem(ctx, s.indexKey(), key).Err()
}

// List implements checkpoint.Store. The index set is maintained
// alongside each Put/Delete so this never needs a Redis KEYS/SCAN sweep.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: smembers: %w", err)
	}
	var out []string
	for _, k := range keys {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) indexKey() string {
	return fmt.Sprintf("%s:checkpoint-index", s.ns)
}

// Close releases the underlying Pulse node.
func (s *Store) Close() {
	s.node.Close()
}

var _ checkpoint.Store = (*Store)(nil)
