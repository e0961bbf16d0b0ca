package localstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastpartybox/internal/domain"
)

func TestMemoryKV_Quota(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(20)

	require.NoError(t, kv.Set(ctx, "a", "123456789"))
	assert.Equal(t, 10, kv.Used())

	err := kv.Set(ctx, "b", strings.Repeat("x", 15))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	_, ok, _ := kv.Get(ctx, "b")
	assert.False(t, ok, "rejected write must not be stored")

	// overwriting counts only the new value
	require.NoError(t, kv.Set(ctx, "a", strings.Repeat("y", 19)))
	assert.Equal(t, 20, kv.Used())

	require.NoError(t, kv.Remove(ctx, "a"))
	assert.Equal(t, 0, kv.Used())
	require.NoError(t, kv.Set(ctx, "b", strings.Repeat("x", 15)))
}

func TestMemoryKV_Unlimited(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(0)
	require.NoError(t, kv.Set(ctx, "big", strings.Repeat("z", 1<<20)))
	v, ok, err := kv.Get(ctx, "big")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, v, 1<<20)
}
