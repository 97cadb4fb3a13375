package billsync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/engine"
	"github.com/roach88/billsync/internal/ir"
	"github.com/roach88/billsync/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_WiresCacheEngineAndWatcher(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetPurchases(ir.KindOneTime, billing.Purchase{
		Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 1000, State: billing.StatePurchased,
	})
	watcher := testutil.NewFakeWatcher()
	reg := prometheus.NewRegistry()

	svc, err := Open(client, Options{
		Database:   filepath.Join(t.TempDir(), "billing.db"),
		Logger:     quietLogger(),
		Registerer: reg,
		Watcher:    watcher,
	})
	require.NoError(t, err)
	client.SetPurchasesListener(svc.Engine.OnPurchasesUpdated)

	rec := &testutil.Recorder{}
	svc.Engine.Subscribe(rec)
	assert.Equal(t, engine.StateOpen, svc.Engine.State())
	assert.True(t, watcher.Active())
	assert.Equal(t, 1, client.Count(testutil.MethodConsume, "T1"))

	require.NoError(t, svc.Engine.Flush(context.Background()))
	owned, err := svc.Cache.HasPurchase(context.Background(), "one_apple")
	require.NoError(t, err)
	assert.True(t, owned)

	count, err := promtest.GatherAndCount(reg, engine.MetricReconcilePasses)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, svc.Close())
	assert.False(t, watcher.Active())
	assert.Equal(t, 1, client.Count(testutil.MethodEndConnection, ""))
}

func TestOpen_CustomCatalog(t *testing.T) {
	catalog := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(catalog, []byte(`catalog: {
	oneTime: ["gem_pack"]
	subscription: []
	consumable: "gem_pack"
}
`), 0644))

	client := testutil.NewFakeClient()
	client.SetPurchases(ir.KindOneTime, billing.Purchase{Token: "G1", ProductID: "gem_pack", State: billing.StatePurchased})

	svc, err := Open(client, Options{
		Catalog:  catalog,
		Database: filepath.Join(t.TempDir(), "billing.db"),
		Logger:   quietLogger(),
		Watcher:  testutil.NewFakeWatcher(),
	})
	require.NoError(t, err)
	defer svc.Close()

	svc.Engine.Subscribe(&testutil.Recorder{})
	assert.Equal(t, 1, client.Count(testutil.MethodConsume, "G1"))
	assert.Equal(t, 0, client.Count(testutil.MethodAcknowledge, ""))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(nil, Options{Database: "x.db"})
	assert.ErrorContains(t, err, "nil billing client")

	_, err = Open(testutil.NewFakeClient(), Options{})
	assert.ErrorContains(t, err, "database path required")

	_, err = Open(testutil.NewFakeClient(), Options{
		Catalog:  filepath.Join(t.TempDir(), "missing.cue"),
		Database: filepath.Join(t.TempDir(), "billing.db"),
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
