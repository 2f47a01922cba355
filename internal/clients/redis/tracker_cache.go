package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/types"
)

const (
	trendingKey   = "tracker:trending"
	lockKeyPrefix = "tracker:lock:"
)

// unlockScript deletes the lock only if the caller still holds it.
var unlockScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// TrackerCache caches the trending list and serializes tracker runs with a
// per-kind lock, so overlapping scheduler invocations never write against
// the same petition set concurrently.
type TrackerCache interface {
	CacheTrending(ctx context.Context, petitions []*types.Petition, ttl time.Duration) error
	Trending(ctx context.Context) ([]*types.Petition, error)
	AcquireRunLock(ctx context.Context, kind string, ttl time.Duration) (release func(), ok bool, err error)
	Close() error
}

type trackerCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewTrackerCache(log *logger.Logger) (TrackerCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &trackerCache{
		log: log.With("client", "TrackerCache"),
		rdb: rdb,
	}, nil
}

func (c *trackerCache) CacheTrending(ctx context.Context, petitions []*types.Petition, ttl time.Duration) error {
	blob, err := json.Marshal(petitions)
	if err != nil {
		return fmt.Errorf("marshal trending list: %w", err)
	}
	if err := c.rdb.Set(ctx, trendingKey, blob, ttl).Err(); err != nil {
		return fmt.Errorf("cache trending list: %w", err)
	}
	c.log.Debug("trending list cached", "petitions", len(petitions), "ttl", ttl)
	return nil
}

// Trending returns (nil, nil) on a cache miss.
func (c *trackerCache) Trending(ctx context.Context) ([]*types.Petition, error) {
	blob, err := c.rdb.Get(ctx, trendingKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trending cache: %w", err)
	}

	var petitions []*types.Petition
	if err := json.Unmarshal(blob, &petitions); err != nil {
		return nil, fmt.Errorf("decode trending cache: %w", err)
	}
	return petitions, nil
}

// AcquireRunLock takes the per-kind run lock. ok=false means another run of
// the same kind is still in flight.
func (c *trackerCache) AcquireRunLock(ctx context.Context, kind string, ttl time.Duration) (func(), bool, error) {
	key := lockKeyPrefix + kind
	token := uuid.NewString()

	acquired, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock %q: %w", kind, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, c.rdb, []string{key}, token).Err(); err != nil {
			c.log.Warn("run lock release failed", "kind", kind, "error", err)
		}
	}
	return release, true, nil
}

func (c *trackerCache) Close() error {
	return c.rdb.Close()
}
