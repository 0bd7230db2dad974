package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyPrefixSlot prefixes every slot key in Redis.
const KeyPrefixSlot = "stash:slot:"

// SlotKey returns the Redis key for a slot.
func SlotKey(slot Slot) string {
	return KeyPrefixSlot + string(slot)
}

// Redis stores each slot as a plain string key without TTL.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already connected client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, slot Slot) ([]byte, error) {
	data, err := r.client.Get(ctx, SlotKey(slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", slot, err)
	}
	return data, nil
}

func (r *Redis) Put(ctx context.Context, slot Slot, value []byte) error {
	if err := r.client.Set(ctx, SlotKey(slot), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", slot, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, slot Slot) error {
	if err := r.client.Del(ctx, SlotKey(slot)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", slot, err)
	}
	return nil
}

// Commit wraps the writes in MULTI/EXEC.
func (r *Redis) Commit(ctx context.Context, writes ...Write) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			if w.Delete {
				pipe.Del(ctx, SlotKey(w.Slot))
				continue
			}
			pipe.Set(ctx, SlotKey(w.Slot), w.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit %d writes: %w", len(writes), err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
