package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard serializes runs of a named job. TryAcquire returns false while a
// previous run still holds the slot.
type Guard interface {
	TryAcquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string)
}

// FlightGuard keeps one in-flight run per job within a single process.
type FlightGuard struct {
	mu      sync.Mutex
	flights map[string]bool
}

func NewFlightGuard(names ...string) *FlightGuard {
	g := &FlightGuard{flights: make(map[string]bool, len(names))}
	for _, name := range names {
		g.flights[name] = false
	}
	return g
}

func (g *FlightGuard) TryAcquire(_ context.Context, name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.flights[name] {
		return false, nil
	}
	g.flights[name] = true
	return true, nil
}

func (g *FlightGuard) Release(_ context.Context, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flights[name] = false
}

// leaseReleaseScript drops the lease only while this holder's token is still
// in it. A run that outlived its TTL must not delete the next holder's lease.
const leaseReleaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`

// LeaseGuard serializes runs across processes with a redis lease.
// The lease expires on its own if the holder dies mid-run.
type LeaseGuard struct {
	redis *redis.Client
	ttl   time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewLeaseGuard(rdb *redis.Client, ttl time.Duration) *LeaseGuard {
	return &LeaseGuard{redis: rdb, ttl: ttl, tokens: make(map[string]string)}
}

func (g *LeaseGuard) TryAcquire(ctx context.Context, name string) (bool, error) {
	token := leaseToken()
	ok, err := g.redis.SetNX(ctx, "jobs:lease:"+name, token, g.ttl).Result()
	if err != nil || !ok {
		return ok, err
	}

	g.mu.Lock()
	g.tokens[name] = token
	g.mu.Unlock()
	return true, nil
}

func (g *LeaseGuard) Release(ctx context.Context, name string) {
	g.mu.Lock()
	token, ok := g.tokens[name]
	delete(g.tokens, name)
	g.mu.Unlock()
	if !ok {
		return
	}

	g.redis.Eval(ctx, leaseReleaseScript, []string{"jobs:lease:" + name}, token)
}

func leaseToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
