package docstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/docstore"
	"github.com/odyssey-erp/odyssey-invoicing/internal/testing/guard"
)

func openStore(t *testing.T) (*docstore.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := guard.PostgresDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return docstore.New(pool), pool
}

func TestStoreRoundTrip(t *testing.T) {
	store, pool := openStore(t)
	ctx := context.Background()
	collection := "it_" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM documents WHERE collection=$1`, collection)
	})

	id, err := store.Insert(ctx, collection, docstore.Fields{"branch": "br-1", "qty": 2})
	require.NoError(t, err)

	doc, err := store.Get(ctx, collection, id)
	require.NoError(t, err)
	require.Equal(t, "br-1", doc.Fields.String("branch"))
	require.Equal(t, 2.0, doc.Fields.Float("qty"))

	require.NoError(t, store.Update(ctx, collection, id, docstore.Fields{"qty": 5}))
	matches, err := store.Where(ctx, collection, "branch", "br-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 5.0, matches[0].Fields.Float("qty"))

	require.ErrorIs(t, store.Update(ctx, collection, "missing", docstore.Fields{"qty": 1}), docstore.ErrNotFound)
	require.NoError(t, store.Delete(ctx, collection, id))
	_, err = store.Get(ctx, collection, id)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStoreIncrementSeedsOnce(t *testing.T) {
	store, pool := openStore(t)
	ctx := context.Background()
	collection := "it_" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM documents WHERE collection=$1`, collection)
	})

	seeds := 0
	seed := func(context.Context) (int64, error) {
		seeds++
		return 41, nil
	}
	first, err := store.Increment(ctx, collection, "invoice:br-1:2025", "value", seed)
	require.NoError(t, err)
	second, err := store.Increment(ctx, collection, "invoice:br-1:2025", "value", seed)
	require.NoError(t, err)

	require.Equal(t, int64(42), first)
	require.Equal(t, int64(43), second)
	require.Equal(t, 1, seeds)
}
