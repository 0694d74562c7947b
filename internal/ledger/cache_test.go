package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheFetchPopulatesAndServes(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	loads := 0
	loader := func(context.Context) ([]Invoice, error) {
		loads++
		return []Invoice{{ID: 1, Number: "INV-1", Total: money.MustParse("100.00"), AmountPaid: money.Zero()}}, nil
	}

	first, err := cache.FetchOpenInvoices(ctx, 7, loader)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, loads)

	second, err := cache.FetchOpenInvoices(ctx, 7, loader)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "100.00", second[0].Total.String())
	require.Equal(t, 1, loads, "second fetch must hit the cache")
}

func TestCacheBumpInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	loads := 0
	loader := func(context.Context) ([]Invoice, error) {
		loads++
		return nil, nil
	}

	_, err := cache.FetchOpenInvoices(ctx, 7, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))

	_, err = cache.FetchOpenInvoices(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads, "bump must force a reload")
}

func TestCacheNilClientDegradesToLoader(t *testing.T) {
	ctx := context.Background()
	var cache *Cache

	invoices, err := cache.FetchOpenInvoices(ctx, 0, func(context.Context) ([]Invoice, error) {
		return []Invoice{{ID: 9}}, nil
	})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.NoError(t, cache.Bump(ctx))
}
