package liquidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReleaseFunc gives up a lease taken by InFlightGuard.Acquire.
type ReleaseFunc func(ctx context.Context) error

// InFlightGuard allows at most one liquidation per vault at a time.
type InFlightGuard interface {
	// Acquire returns ErrVaultInFlight if the vault is already held.
	Acquire(ctx context.Context, vault common.Address) (ReleaseFunc, error)
}

// MemoryGuard is a process-local InFlightGuard.
type MemoryGuard struct {
	mu       sync.Mutex
	inFlight map[common.Address]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{inFlight: make(map[common.Address]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, vault common.Address) (ReleaseFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[vault]; held {
		return nil, fmt.Errorf("%w: %s", ErrVaultInFlight, vault.Hex())
	}
	g.inFlight[vault] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, vault)
			g.mu.Unlock()
		})
		return nil
	}, nil
}

const defaultGuardPrefix = "keeper:inflight:"

// releaseScript deletes the lease only if it still carries our token, so an
// expired lease taken over by another keeper is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares in-flight leases between keeper processes through Redis.
// Leases expire after TTL so a crashed keeper cannot block a vault forever.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("guard TTL must be positive, got %s", ttl)
	}
	return &RedisGuard{client: client, ttl: ttl, prefix: defaultGuardPrefix}, nil
}

func (g *RedisGuard) key(vault common.Address) string {
	return g.prefix + strings.ToLower(vault.Hex())
}

func (g *RedisGuard) Acquire(ctx context.Context, vault common.Address) (ReleaseFunc, error) {
	key := g.key(vault)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVaultInFlight, vault.Hex())
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, g.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lease %s: %w", key, err)
		}
		return nil
	}, nil
}
