package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records token ids invalidated before their natural expiry.
// Entries only need to live until the token would have expired anyway.
type Denylist interface {
	// Revoke adds id and reports whether it was newly added.
	Revoke(ctx context.Context, id string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, id string) (bool, error)
}

type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist(now func() time.Time) *MemoryDenylist {
	if now == nil {
		now = time.Now
	}
	return &MemoryDenylist{entries: make(map[string]time.Time), now: now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, id string, until time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.entries[id]; ok && now.Before(exp) {
		return false, nil
	}
	d.entries[id] = until
	d.sweep(now)
	return true, nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.entries[id]
	return ok && d.now().Before(exp), nil
}

// sweep drops entries whose token has expired. Caller holds mu.
func (d *MemoryDenylist) sweep(now time.Time) {
	for id, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, id)
		}
	}
}

// RedisDenylist shares revocations between processes.
type RedisDenylist struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

func NewRedisDenylist(client *redis.Client, keyPrefix string) *RedisDenylist {
	return &RedisDenylist{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (d *RedisDenylist) Revoke(ctx context.Context, id string, until time.Time) (bool, error) {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		// already expired; nothing can authenticate with it
		return true, nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return d.client.SetNX(ctx, d.keyPrefix+id, 1, ttl).Result()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Exists(ctx, d.keyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
