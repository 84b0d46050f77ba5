package cache

import (
	"testing"

	"github.com/clientpulse/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// unreachableRedis points at a closed local port so store creation fails
// fast instead of waiting out the ping timeout.
func unreachableRedis() config.RedisConfig {
	return config.RedisConfig{Host: "127.0.0.1", Port: 1}
}

func TestNewClaimStoreFactory_Defaults(t *testing.T) {
	f := NewClaimStoreFactory(config.RedisConfig{})

	assert.True(t, f.allowInMemoryFallback)
	assert.NotNil(t, f.logger)
	assert.Nil(t, f.meter)
}

func TestClaimStoreFactory_FallsBackToInMemory(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := NewClaimStoreFactory(unreachableRedis(), WithLogger(zap.New(core)))

	store, err := f.CreateStore()
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*InMemoryClaimStore)
	assert.True(t, ok, "unreachable redis should fall back to the in-memory store")
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestClaimStoreFactory_RequiresRedisWhenFallbackDisabled(t *testing.T) {
	f := NewClaimStoreFactory(unreachableRedis(), WithInMemoryFallback(false))

	store, err := f.CreateStore()
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "redis required for stage claims")
}

func TestClaimStoreFactory_WithMeter_WrapsStore(t *testing.T) {
	meter, _ := manualMeter(t)
	f := NewClaimStoreFactory(unreachableRedis(), WithMeter(meter))

	store, err := f.CreateStore()
	require.NoError(t, err)
	defer store.Close()

	instrumented, ok := store.(*instrumentedClaimer)
	require.True(t, ok, "a configured meter should wrap the store")
	_, ok = instrumented.inner.(*InMemoryClaimStore)
	assert.True(t, ok)
}
