package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fastpartybox/internal/cache"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/repository"
)

func TestSubscription_DefaultsToFree(t *testing.T) {
	e := newEnv()
	assert.Equal(t, domain.TierFree, e.subs.Tier(context.Background(), "stranger"))
	assert.Equal(t, int64(100), e.subs.Limits(context.Background(), "stranger").MaxProducts)
}

func TestSubscription_TierIsCached(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tiers := cache.NewTTL[domain.Tier](time.Hour).WithClock(func() time.Time { return now })
	subs := NewSubscriptionService(store, store, tiers, zap.NewNop())

	assert.Equal(t, domain.TierFree, subs.Tier(ctx, "u1"))
	require.NoError(t, store.SaveAccount(ctx, &domain.Account{UserID: "u1", Tier: domain.TierPaid, Status: domain.AccountActive}))
	assert.Equal(t, domain.TierFree, subs.Tier(ctx, "u1"), "served from cache")

	now = now.Add(time.Hour)
	assert.Equal(t, domain.TierPaid, subs.Tier(ctx, "u1"), "re-read after expiry")
}

func TestSubscription_UnreachableStoreIsFree(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.store.SaveAccount(context.Background(), &domain.Account{UserID: tenant, Tier: domain.TierPaid}))
	e.store.SetUnavailable(errors.New("down"))
	assert.Equal(t, domain.TierFree, e.subs.Tier(context.Background(), tenant))

	e.store.SetUnavailable(nil)
	assert.Equal(t, domain.TierPaid, e.subs.Tier(context.Background(), tenant), "failures are not cached")
}

func TestSubscription_SetTier(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	_, err := e.subs.SetTier(ctx, tenant, domain.Tier("GOLD"))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	a, err := e.subs.SetTier(ctx, tenant, domain.TierPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountActive, a.Status)
	assert.Equal(t, int64(1000), e.subs.Limits(ctx, tenant).MaxProducts)
}

func TestSubscription_StartTrialOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	a, err := e.subs.StartTrial(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTrial, a.Status)
	assert.Equal(t, domain.TierFree, a.Tier)
	require.NotNil(t, a.TrialStartedAt)

	_, err = e.subs.SetTier(ctx, tenant, domain.TierPaid)
	require.NoError(t, err)
	again, err := e.subs.StartTrial(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPaid, again.Tier, "existing account untouched")
}
