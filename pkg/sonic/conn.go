package sonic

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// Conn holds one client per SONiC database the orchestrator touches, all
// on the same Redis server.
type Conn struct {
	Appl      *redis.Client // APPL_DB (0)
	Asic      *redis.Client // ASIC_DB (1)
	Counters  *redis.Client // COUNTERS_DB (2)
	State     *redis.Client // STATE_DB (6)
	ApplState *redis.Client // APPL_STATE_DB (14)

	addr   string
	tunnel *SSHTunnel // nil if direct

	mu     sync.Mutex
	closed bool
}

// Connect opens the database clients. When tunnel is not nil Redis is
// reached through SSH and addr is ignored.
func Connect(ctx context.Context, addr string, tunnel *TunnelConfig) (*Conn, error) {
	c := &Conn{addr: addr}
	if tunnel != nil {
		tun, err := NewSSHTunnel(*tunnel)
		if err != nil {
			return nil, fmt.Errorf("SSH tunnel to %s: %w", tunnel.Host, err)
		}
		c.tunnel = tun
		c.addr = tun.LocalAddr()
	}

	c.Appl = newClient(c.addr, ApplDBID)
	c.Asic = newClient(c.addr, AsicDBID)
	c.Counters = newClient(c.addr, CountersDBID)
	c.State = newClient(c.addr, StateDBID)
	c.ApplState = newClient(c.addr, ApplStateDBID)

	if err := c.Appl.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", c.addr, err)
	}
	util.WithField("addr", c.addr).Info("Connected")
	return c, nil
}

// Addr returns the Redis address in use, the tunnel's local end when
// tunneling.
func (c *Conn) Addr() string {
	return c.addr
}

// Close closes every client and the tunnel. It is safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	for _, client := range []*redis.Client{c.Appl, c.Asic, c.Counters, c.State, c.ApplState} {
		if client != nil {
			client.Close()
		}
	}
	if c.tunnel != nil {
		if err := c.tunnel.Close(); err != nil {
			return err
		}
	}
	util.WithField("addr", c.addr).Info("Disconnected")
	return nil
}
