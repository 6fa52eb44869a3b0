package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

func newTestStore(t *testing.T) ValkeyStore {
	t.Helper()
	return NewNoopValkeyStore(logger.New("error"))
}

func TestNoopStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, "k", "value", time.Minute))
	b, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), b)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.Error(t, err)
}

func TestNoopStoreMarshalsStructs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	type payload struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}
	require.NoError(t, store.Set(ctx, "p", payload{Name: "latency", Value: 12.5}, time.Minute))

	b, err := store.Get(ctx, "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"latency","value":12.5}`, string(b))
}

func TestNoopStoreKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, "alerts:active:a", "1", time.Minute))
	require.NoError(t, store.Set(ctx, "alerts:active:b", "2", time.Minute))
	require.NoError(t, store.Set(ctx, "anomaly:model:x", "3", time.Minute))

	keys, err := store.Keys(ctx, "alerts:active:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alerts:active:a", "alerts:active:b"}, keys)
}

func TestNoopStoreLocksAlwaysAcquire(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.AcquireLock(ctx, "flush", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, store.ReleaseLock(ctx, "flush"))
}

func TestNoopStoreHealthCheckReportsDegraded(t *testing.T) {
	assert.Error(t, newTestStore(t).HealthCheck(context.Background()))
}
