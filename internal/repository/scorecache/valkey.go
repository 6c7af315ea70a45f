package scorecache

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/db"
)

const keyPrefix = "fusegate:score_cache:"

// store is the consumer interface for the shared score cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Valkey is a score cache shared across replicas. Store failures degrade to
// misses; the cache never fails a query.
type Valkey struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewValkey creates the shared cache. cacheTotal is a counter vec with label
// "result" ("hit"/"miss"), passed explicitly, and may be nil.
func NewValkey(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Valkey {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valkey{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Get returns the cached score for key, treating any store failure as a miss.
func (v *Valkey) Get(ctx context.Context, key string) (float64, bool) {
	data, err := v.store.Get(ctx, keyPrefix+key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			v.logger.Warn("Failed to get cached score", zap.String("key", key), zap.Error(err))
		}
		v.incCache("miss")
		return 0, false
	}
	if len(data) != 8 {
		v.logger.Warn("Invalid cached score payload", zap.String("key", key), zap.Int("len", len(data)))
		v.incCache("miss")
		return 0, false
	}
	v.incCache("hit")
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), true
}

// Set stores the score for key with the configured TTL. Failures are logged
// and dropped.
func (v *Valkey) Set(ctx context.Context, key string, score float64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(score))
	if err := v.store.SetWithTTL(ctx, keyPrefix+key, buf, v.ttl); err != nil {
		v.logger.Warn("Failed to cache score", zap.String("key", key), zap.Error(err))
	}
}

func (v *Valkey) incCache(result string) {
	if v.cacheTotal != nil {
		v.cacheTotal.WithLabelValues(result).Inc()
	}
}
