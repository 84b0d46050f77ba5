package cache

import (
	"fmt"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ClaimStoreFactory builds the claim store the worker coordinates stage
// batches through: redis when reachable, optionally degrading to the
// in-process store.
type ClaimStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	meter                 metric.Meter
	allowInMemoryFallback bool
}

// ClaimStoreFactoryOption configures a ClaimStoreFactory.
type ClaimStoreFactoryOption func(*ClaimStoreFactory)

// WithLogger sets the logger the factory reports store selection on.
func WithLogger(logger *zap.Logger) ClaimStoreFactoryOption {
	return func(f *ClaimStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable redis degrades to
// the in-process store. On by default; production wiring turns it off
// because in-process claims cannot coordinate across worker instances.
func WithInMemoryFallback(allow bool) ClaimStoreFactoryOption {
	return func(f *ClaimStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithMeter instruments the created store with claim latency and contention
// metrics. Without a meter stores come back bare.
func WithMeter(meter metric.Meter) ClaimStoreFactoryOption {
	return func(f *ClaimStoreFactory) {
		f.meter = meter
	}
}

// NewClaimStoreFactory creates a factory for the given redis config.
func NewClaimStoreFactory(cfg config.RedisConfig, opts ...ClaimStoreFactoryOption) *ClaimStoreFactory {
	f := &ClaimStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore builds the claim store. Redis is tried first; when it is
// unreachable and fallback is allowed the in-process store takes over.
func (f *ClaimStoreFactory) CreateStore() (shared.BatchClaimer, error) {
	store, err := f.createRedisStore()
	if err == nil {
		f.logger.Info("Using redis claim store")
		return f.instrument(store), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for stage claims but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory claim store. "+
		"Stage batches are not coordinated across workers in distributed deployments.",
		zap.Error(err),
	)
	return f.instrument(NewInMemoryClaimStore()), nil
}

func (f *ClaimStoreFactory) createRedisStore() (shared.BatchClaimer, error) {
	store, err := NewRedisClaimStore(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis claim store: %w", err)
	}
	return store, nil
}

// instrument wraps the store with metrics when a meter is configured. A
// failure to build the instruments degrades to the bare store rather than
// failing store creation.
func (f *ClaimStoreFactory) instrument(store shared.BatchClaimer) shared.BatchClaimer {
	if f.meter == nil {
		return store
	}
	instrumented, err := newInstrumentedClaimer(store, f.meter)
	if err != nil {
		f.logger.Warn("Failed to instrument claim store", zap.Error(err))
		return store
	}
	return instrumented
}
