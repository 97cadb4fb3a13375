package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/ir"
)

func seedCatalog(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.UpsertProducts(context.Background(), []ir.Product{
		{ID: "one_apple", Kind: ir.KindOneTime, Price: "$0.99", Descriptor: "apple"},
		{ID: "app_premium_feature", Kind: ir.KindOneTime, Price: "$4.99", Descriptor: "premium"},
		{ID: "unlimited_popcorn_monthly", Kind: ir.KindSubscription, Price: "$2.99", Descriptor: "popcorn"},
	}))
}

func TestProductsWithPurchases_JoinAndHidden(t *testing.T) {
	s := createTestStore(t, WithHiddenProduct("app_premium_feature"))
	ctx := context.Background()
	seedCatalog(t, s)

	require.NoError(t, s.UpsertPurchases(ctx, []ir.Purchase{
		{Token: "T2", ProductID: "one_apple", PurchaseTime: 20},
		{Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 10},
		{Token: "P1", ProductID: "app_premium_feature", PurchaseTime: 5},
		{Token: "X1", ProductID: "retired_sku", PurchaseTime: 1},
	}))

	views, err := s.ProductsWithPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "one_apple", views[0].Product.ID)
	require.Len(t, views[0].Purchases, 2)
	assert.Equal(t, "T1", views[0].Purchases[0].Token)
	assert.Equal(t, "GPA.1", views[0].Purchases[0].OrderID)
	assert.Equal(t, "T2", views[0].Purchases[1].Token)
	assert.True(t, views[0].Owned())

	assert.Equal(t, "unlimited_popcorn_monthly", views[1].Product.ID)
	assert.Equal(t, ir.KindSubscription, views[1].Product.Kind)
	assert.NotNil(t, views[1].Purchases)
	assert.False(t, views[1].Owned())
}

func TestProductsWithPurchases_Empty(t *testing.T) {
	s := createTestStore(t)

	views, err := s.ProductsWithPurchases(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestProduct_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.Product(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProduct_HiddenStillReadable(t *testing.T) {
	s := createTestStore(t, WithHiddenProduct("app_premium_feature"))
	seedCatalog(t, s)

	p, ok, err := s.Product(context.Background(), "app_premium_feature")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "premium", p.Descriptor)

	all, err := s.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHasPurchase(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	has, err := s.HasPurchase(ctx, "app_premium_feature")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.UpsertPurchases(ctx, []ir.Purchase{
		{Token: "P1", ProductID: "app_premium_feature", PurchaseTime: 5},
	}))

	has, err = s.HasPurchase(ctx, "app_premium_feature")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestWatchProductsWithPurchases(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := s.WatchProductsWithPurchases(ctx)

	select {
	case view := <-updates:
		assert.Empty(t, view)
	case <-time.After(2 * time.Second):
		t.Fatal("initial view not delivered")
	}

	seedCatalog(t, s)

	select {
	case view := <-updates:
		assert.Len(t, view, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("view after write not delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
