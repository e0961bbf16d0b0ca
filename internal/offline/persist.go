package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/localstore"
)

func PendingKey(tenant string) string { return "pendingOrders/" + tenant }
func CartKey(tenant string) string { return "currentCart/" + tenant }
func CatalogKey(tenant string) string { return "catalog/" + tenant }

// persistJSON writes full under key. On quota overflow it falls back to
// compact, then evicts the given keys and retries compact once more.
// The final error is a *domain.QuotaExceededError.
func persistJSON(ctx context.Context, kv localstore.KV, key string, full, compact any, evict ...string) error {
	data, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = kv.Set(ctx, key, string(data))
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		return err
	}

	if compact != nil {
		if data, err = json.Marshal(compact); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		err = kv.Set(ctx, key, string(data))
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			return err
		}
	}

	if len(evict) == 0 {
		return &domain.QuotaExceededError{Key: key, Err: err}
	}
	for _, k := range evict {
		if rmErr := kv.Remove(ctx, k); rmErr != nil {
			return fmt.Errorf("evict %s: %w", k, rmErr)
		}
	}
	err = kv.Set(ctx, key, string(data))
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return &domain.QuotaExceededError{Key: key, Err: err}
	}
	return err
}

// loadJSON decodes key into dst; found is false when the key is absent.
func loadJSON(ctx context.Context, kv localstore.KV, key string, dst any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
