// Package sonic connects the orchestrator to the Redis databases of a SONiC
// switch: the request table in APPL_DB, responses in APPL_STATE_DB, SAI
// objects and notifications in ASIC_DB, port names in COUNTERS_DB and port
// state in STATE_DB.
package sonic

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis database numbers used by SONiC.
const (
	ApplDBID      = 0
	AsicDBID      = 1
	CountersDBID  = 2
	StateDBID     = 6
	ApplStateDBID = 14
)

// Separators between table and key. APPL_DB and ASIC_DB use a colon,
// STATE_DB and COUNTERS_DB a pipe.
const (
	colon = ":"
	bar   = "|"
)

func newClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

// scanKeys uses SCAN to find keys matching a pattern (avoids KEYS on large databases).
func scanKeys(ctx context.Context, client *redis.Client, pattern string) ([]string, error) {
	var all []string
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", pattern, err)
		}
		all = append(all, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return all, nil
}

// hsetArgs flattens field/value pairs for HSET.
func hsetArgs(fields map[string]string) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
