package offline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/localstore"
)

const tenant = "user-1"

func pendingOrder(localID, productID string, qty int64, image string) domain.PendingOrder {
	price := decimal.NewFromInt(10)
	total := price.Mul(decimal.NewFromInt(qty))
	return domain.PendingOrder{
		LocalID:        localID,
		CreatedOffline: true,
		Order: domain.Order{
			LocalID:       localID,
			Mode:          domain.ModeRetail,
			Items:         []domain.LineItem{{ProductID: productID, Name: "Hat", Quantity: qty, UnitPrice: price, ImageURL: image}},
			Total:         total,
			AmountPaid:    total,
			BalanceDue:    decimal.Zero,
			PaymentStatus: domain.PaymentPaid,
			Status:        domain.OrderStatusPending,
		},
	}
}

func TestPendingQueue_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemoryKV(0)

	q, err := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, q.Add(ctx, pendingOrder("1", "P1", 2, "")))
	require.NoError(t, q.Add(ctx, pendingOrder("2", "P2", 1, "")))

	before, err := json.Marshal(q.List())
	require.NoError(t, err)

	reloaded, err := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())
	require.NoError(t, err)
	after, err := json.Marshal(reloaded.List())
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, 2, reloaded.Len())

	other, err := LoadPendingQueue(ctx, kv, "user-2", zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, other.Len())
}

func TestPendingQueue_AddRemove(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemoryKV(0)
	q, _ := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())

	require.NoError(t, q.Add(ctx, pendingOrder("1", "P1", 1, "")))
	assert.True(t, errors.Is(q.Add(ctx, pendingOrder("1", "P1", 1, "")), domain.ErrValidation))
	assert.True(t, q.Contains("1"))

	removed, err := q.Remove(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = q.Remove(ctx, "1")
	require.NoError(t, err)
	assert.False(t, removed)

	raw, ok, _ := kv.Get(ctx, PendingKey(tenant))
	require.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestPendingQueue_DropsImagesUnderQuota(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemoryKV(1500)
	q, _ := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())

	image := "https://cdn.example/" + strings.Repeat("i", 2000)
	require.NoError(t, q.Add(ctx, pendingOrder("1", "P1", 1, image)))

	raw, ok, _ := kv.Get(ctx, PendingKey(tenant))
	require.True(t, ok)
	assert.NotContains(t, raw, "cdn.example")
	assert.Equal(t, image, q.List()[0].Order.Items[0].ImageURL, "in-memory entry keeps the image")
}

func TestPendingQueue_EvictsCatalogUnderQuota(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemoryKV(1500)
	require.NoError(t, kv.Set(ctx, CatalogKey(tenant), strings.Repeat("c", 1200)))

	q, _ := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())
	require.NoError(t, q.Add(ctx, pendingOrder("1", "P1", 1, "")))

	_, ok, _ := kv.Get(ctx, CatalogKey(tenant))
	assert.False(t, ok, "catalog snapshot evicted")
	_, ok, _ = kv.Get(ctx, PendingKey(tenant))
	assert.True(t, ok)
}

func TestPendingQueue_QuotaNeverLosesMemory(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemoryKV(100)
	q, _ := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())

	err := q.Add(ctx, pendingOrder("1", "P1", 1, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))

	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, PendingKey(tenant), qe.Key)
	assert.Equal(t, 1, q.Len())
}

func TestLoadPendingQueue_CorruptData(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemoryKV(0)
	require.NoError(t, kv.Set(ctx, PendingKey(tenant), "{not json"))

	q, err := LoadPendingQueue(ctx, kv, tenant, zap.NewNop())
	require.Error(t, err)
	require.NotNil(t, q)
	assert.Zero(t, q.Len())
}
