package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "ar:open_invoices:version"

// Cache wraps Redis based caching of open-invoice listings with a global
// version. Every committed settlement bumps the version so stale due amounts
// never serve an allocation preview.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// OpenInvoicesKey composes the versioned cache key for a customer's open
// invoice list. customerID zero means all customers.
func (c *Cache) OpenInvoicesKey(ctx context.Context, customerID int64) (string, error) {
	parts := []string{"ar", "open_invoices", strconv.FormatInt(customerID, 10)}
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchOpenInvoices loads a cached invoice list or populates it from the
// loader. Degrades to a direct load when no client is configured.
func (c *Cache) FetchOpenInvoices(ctx context.Context, customerID int64, loader func(context.Context) ([]Invoice, error)) ([]Invoice, error) {
	if loader == nil {
		return nil, errors.New("ledger: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.OpenInvoicesKey(ctx, customerID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var invoices []Invoice
		if err := json.Unmarshal(payload, &invoices); err != nil {
			return nil, err
		}
		return invoices, nil
	}
	if err != redis.Nil {
		return nil, err
	}
	invoices, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(invoices)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Bump invalidates all cached listings by incrementing the global version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
