package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/ir"
)

func TestUpsertPurchases_ReplacesByToken(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := ir.Purchase{Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 100}
	second := ir.Purchase{Token: "T1", ProductID: "one_apple", OrderID: "GPA.2", PurchaseTime: 200}

	require.NoError(t, s.UpsertPurchases(ctx, []ir.Purchase{first}))
	require.NoError(t, s.UpsertPurchases(ctx, []ir.Purchase{second}))

	purchases, err := s.Purchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1, "same token must never produce two rows")
	assert.Equal(t, second, purchases[0])
}

func TestUpsertPurchases_EmptyOrderStoredAsNull(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPurchases(ctx, []ir.Purchase{
		{Token: "H1", ProductID: "app_premium_feature", PurchaseTime: 5},
	}))

	var orderID sql.NullString
	err := s.db.QueryRow("SELECT order_id FROM purchases WHERE purchase_token = 'H1'").Scan(&orderID)
	require.NoError(t, err)
	assert.False(t, orderID.Valid)

	purchases, err := s.Purchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Empty(t, purchases[0].OrderID)
}

func TestUpsertPurchases_DuplicateInBatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPurchases(ctx, []ir.Purchase{
		{Token: "T1", ProductID: "one_apple", PurchaseTime: 1},
		{Token: "T1", ProductID: "one_apple", PurchaseTime: 2},
	}))

	purchases, err := s.Purchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(2), purchases[0].PurchaseTime)
}

func TestUpsertPurchases_RejectsEmptyTokenAtomically(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.UpsertPurchases(ctx, []ir.Purchase{
		{Token: "T1", ProductID: "one_apple"},
		{Token: "", ProductID: "one_apple"},
	})
	require.Error(t, err)

	purchases, err := s.Purchases(ctx)
	require.NoError(t, err)
	assert.Empty(t, purchases, "failed batch must not be partially committed")
}

func TestUpsertProducts_LatestWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProducts(ctx, []ir.Product{
		{ID: "one_apple", Kind: ir.KindOneTime, Price: "$0.99", Descriptor: "v1"},
	}))
	require.NoError(t, s.UpsertProducts(ctx, []ir.Product{
		{ID: "one_apple", Kind: ir.KindOneTime, Price: "$1.29", Descriptor: "v2"},
	}))

	p, ok, err := s.Product(ctx, "one_apple")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "$1.29", p.Price)
	assert.Equal(t, "v2", p.Descriptor)
}

func TestUpsertProducts_RejectsUnknownKind(t *testing.T) {
	s := createTestStore(t)

	err := s.UpsertProducts(context.Background(), []ir.Product{
		{ID: "x", Kind: ir.ProductKind("inapp")},
	})
	assert.Error(t, err)
}

func TestUpsert_EmptyBatchIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.UpsertProducts(ctx, nil))
	assert.NoError(t, s.UpsertPurchases(ctx, nil))
}
