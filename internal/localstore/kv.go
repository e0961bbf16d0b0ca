// Package localstore is the node's durable key-value storage: the place the
// pending-order queue, the cart and the catalog snapshot survive restarts.
// Every backend enforces a byte quota and reports overflow as
// domain.QuotaExceededError so callers can degrade.
package localstore

import (
	"context"
)

type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
