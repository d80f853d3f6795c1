//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// FlushDB flushes a specific Redis database.
func FlushDB(t *testing.T, db int) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: db})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// WriteHash writes a hash at key in db.
func WriteHash(t *testing.T, db int, key string, fields map[string]string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: db})
	defer client.Close()

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := client.HSet(context.Background(), key, args...).Err(); err != nil {
		t.Fatalf("writing %s: %v", key, err)
	}
}

// ReadHash reads the hash at key in db. A missing key reads as empty.
func ReadHash(t *testing.T, db int, key string) map[string]string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: db})
	defer client.Close()

	vals, err := client.HGetAll(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return vals
}

// KeyCount returns the number of keys matching pattern in db.
func KeyCount(t *testing.T, db int, pattern string) int {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: db})
	defer client.Close()

	keys, err := client.Keys(context.Background(), pattern).Result()
	if err != nil {
		t.Fatalf("listing %s in DB %d: %v", pattern, db, err)
	}
	return len(keys)
}
