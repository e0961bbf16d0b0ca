package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fastpartybox/internal/cache"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/repository"
)

// SubscriptionService определяет тариф пользователя и его лимиты
type SubscriptionService struct {
	accounts repository.AccountRepository
	products repository.ProductRepository
	tiers    *cache.TTL[domain.Tier]
	log      *zap.Logger
	now      func() time.Time
}

func NewSubscriptionService(accounts repository.AccountRepository, products repository.ProductRepository, tiers *cache.TTL[domain.Tier], log *zap.Logger) *SubscriptionService {
	if tiers == nil {
		tiers = cache.NewTTL[domain.Tier](cache.DefaultTTL)
	}
	return &SubscriptionService{
		accounts: accounts,
		products: products,
		tiers:    tiers,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Account returns the stored account, or a default FREE one when none exists.
func (s *SubscriptionService) Account(ctx context.Context, uid string) (*domain.Account, error) {
	a, err := s.accounts.GetAccount(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Account{UserID: uid, Tier: domain.TierFree, Status: domain.AccountActive}, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.Tier.Valid() {
		a.Tier = domain.TierFree
	}
	return a, nil
}

// Tier resolves the user's plan. Any failure to read the account yields
// FREE; only successful lookups are cached.
func (s *SubscriptionService) Tier(ctx context.Context, uid string) domain.Tier {
	if t, ok := s.tiers.Get(uid); ok {
		return t
	}
	a, err := s.Account(ctx, uid)
	if err != nil {
		s.log.Warn("tier lookup failed, assuming FREE", zap.String("user_id", uid), zap.Error(err))
		return domain.TierFree
	}
	s.tiers.Set(uid, a.Tier)
	return a.Tier
}

func (s *SubscriptionService) Limits(ctx context.Context, uid string) domain.TierLimits {
	return domain.LimitsFor(s.Tier(ctx, uid))
}

// CanAddProduct returns ErrLimitReached once the catalog is at the plan's cap.
func (s *SubscriptionService) CanAddProduct(ctx context.Context, uid string) error {
	tier := s.Tier(ctx, uid)
	limits := domain.LimitsFor(tier)
	n, err := s.products.CountProducts(ctx, uid)
	if err != nil {
		return err
	}
	if n >= limits.MaxProducts {
		return fmt.Errorf("%w: %s plan allows %d products", domain.ErrLimitReached, tier, limits.MaxProducts)
	}
	return nil
}

func (s *SubscriptionService) SetTier(ctx context.Context, uid string, tier domain.Tier) (*domain.Account, error) {
	if !tier.Valid() {
		return nil, domain.NewValidationError("tier", "must be FREE or PAID")
	}
	a, err := s.Account(ctx, uid)
	if err != nil {
		return nil, err
	}
	a.Tier = tier
	a.Status = domain.AccountActive
	if err := s.accounts.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	s.tiers.Delete(uid)
	s.log.Info("subscription changed", zap.String("user_id", uid), zap.String("tier", string(tier)))
	return a, nil
}

// StartTrial creates a trial account on first sign-in; existing accounts are
// returned untouched.
func (s *SubscriptionService) StartTrial(ctx context.Context, uid string) (*domain.Account, error) {
	a, err := s.accounts.GetAccount(ctx, uid)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := s.now()
	a = &domain.Account{
		UserID:         uid,
		Tier:           domain.TierFree,
		Status:         domain.AccountTrial,
		TrialStartedAt: &now,
	}
	if err := s.accounts.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
