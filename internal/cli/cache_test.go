package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/ir"
	"github.com/roach88/billsync/internal/store"
)

// seedCacheFile writes a cache database holding the default catalog's
// products and two purchases.
func seedCacheFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.UpsertProducts(ctx, []ir.Product{
		{ID: "app_premium_feature", Kind: ir.KindOneTime, Price: "$4.99", Descriptor: "premium"},
		{ID: "one_apple", Kind: ir.KindOneTime, Price: "$0.99", Descriptor: "apple"},
		{ID: "unlimited_popcorn_monthly", Kind: ir.KindSubscription, Price: "$2.99", Descriptor: "popcorn"},
	}))
	require.NoError(t, st.UpsertPurchases(ctx, []ir.Purchase{
		{Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 1000},
		{Token: "T2", ProductID: "app_premium_feature", PurchaseTime: 2000},
	}))
	return path
}

func TestProductsText(t *testing.T) {
	db := seedCacheFile(t)

	out := &bytes.Buffer{}
	cmd := NewProductsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", db})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "one_apple")
	assert.Contains(t, text, "owned (1)")
	assert.Contains(t, text, "T1  order=GPA.1  time=1000")
	assert.Contains(t, text, "unlimited_popcorn_monthly")
	assert.Contains(t, text, "not owned")
	assert.NotContains(t, text, "app_premium_feature")
}

func TestProductsJSON(t *testing.T) {
	db := seedCacheFile(t)

	out := &bytes.Buffer{}
	cmd := NewProductsCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", db})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string                    `json:"status"`
		Data   []ir.ProductWithPurchases `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	for _, p := range resp.Data {
		assert.NotEqual(t, "app_premium_feature", p.Product.ID)
	}
}

func TestProductsCustomCatalogHidesNothing(t *testing.T) {
	db := seedCacheFile(t)
	catalog := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(catalog, []byte(`catalog: oneTime: ["app_premium_feature", "one_apple"]`), 0644))

	out := &bytes.Buffer{}
	cmd := NewProductsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", db, "--catalog", catalog})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "app_premium_feature")
}

func TestProductsEmptyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := &bytes.Buffer{}
	cmd := NewProductsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "No products cached.")
}

func TestProductsMissingDatabase(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewProductsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "nope.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "database not found")
}

func TestProductsRequiresDB(t *testing.T) {
	cmd := NewProductsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"db" not set`)
}

func TestOwned(t *testing.T) {
	db := seedCacheFile(t)

	tests := []struct {
		product string
		want    bool
	}{
		{"one_apple", true},
		{"app_premium_feature", true},
		{"unlimited_popcorn_monthly", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			out := &bytes.Buffer{}
			cmd := NewOwnedCommand(&RootOptions{Format: "json"})
			cmd.SetOut(out)
			cmd.SetArgs([]string{"--db", db, tt.product})
			require.NoError(t, cmd.Execute())

			var resp struct {
				Data OwnedResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
			assert.Equal(t, tt.product, resp.Data.ProductID)
			assert.Equal(t, tt.want, resp.Data.Owned)
		})
	}
}

func TestOwnedText(t *testing.T) {
	db := seedCacheFile(t)

	out := &bytes.Buffer{}
	cmd := NewOwnedCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", db, "one_apple"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "one_apple: owned\n", out.String())
}
