package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/payment"
)

func TestRedisDraftStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisDraftStore(client, time.Hour)
	ctx := context.Background()

	d := sampleDraft()
	require.NoError(t, store.Put(ctx, d))
	assert.Equal(t, time.Hour, mr.TTL("sales:draft:d-1"))

	got, err := store.Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, d.InvoiceNumber, got.InvoiceNumber)
	assert.Equal(t, "2025-03-03", got.Header.Date.String())
	assert.Equal(t, d.Totals, got.Totals)
	assert.Equal(t, 2025, got.Window.Year.Year)
	assert.True(t, got.Window.Contains(day(2025, time.July, 1)))
	require.NotNil(t, got.Header.MultiplePayment)
	assert.Equal(t, payment.CashAllocation{CashBoxID: "cb-1", Amount: 10}, *got.Header.MultiplePayment.Cash)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "d-1")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestRedisDraftStoreDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisDraftStore(client, 0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleDraft()))
	assert.Equal(t, 24*time.Hour, mr.TTL("sales:draft:d-1"))
	require.NoError(t, store.Delete(ctx, "d-1"))
	_, err := store.Get(ctx, "d-1")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestMemoryDraftStoreIsolatesCopies(t *testing.T) {
	store := NewMemoryDraftStore()
	ctx := context.Background()
	d := sampleDraft()
	require.NoError(t, store.Put(ctx, d))

	d.Items[0].Quantity = 50
	got, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Items[0].Quantity)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}
