// Package billsync assembles a purchase reconciliation engine for an
// enclosing application: it loads the product catalog, opens the local
// purchase cache, follows network reachability, and wires them to a
// caller-supplied billing client.
//
//	svc, err := billsync.Open(client, billsync.Options{Database: "billing.db"})
//	if err != nil { ... }
//	defer svc.Close()
//	// deliver the client's purchase pushes to svc.Engine.OnPurchasesUpdated
//	svc.Engine.Subscribe(screen)
package billsync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/config"
	"github.com/roach88/billsync/internal/engine"
	"github.com/roach88/billsync/internal/ir"
	"github.com/roach88/billsync/internal/network"
	"github.com/roach88/billsync/internal/store"
)

// Types a billing client implementation and its callers need.
type (
	Client               = billing.Client
	Result               = billing.Result
	ResponseCode         = billing.ResponseCode
	Feature              = billing.Feature
	Purchase             = billing.Purchase
	PurchaseState        = billing.PurchaseState
	HistoryRecord        = billing.HistoryRecord
	ProductDetails       = billing.ProductDetails
	ConnectionEvent      = billing.ConnectionEvent
	PurchasesUpdatedFunc = billing.PurchasesUpdatedFunc
	ProductKind          = ir.ProductKind
	Product              = ir.Product
	ProductWithPurchases = ir.ProductWithPurchases

	Engine     = engine.Engine
	Subscriber = engine.Subscriber
	Cache      = store.Store
	Watcher    = network.Watcher
)

// Options configures Open.
type Options struct {
	// Catalog is a CUE catalog file. Empty means the built-in catalog.
	Catalog  string
	// Database is the cache file path. Required.
	Database string

	// Logger defaults to slog.Default().
	Logger     *slog.Logger
	// Registerer receives the engine metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Watcher overrides the catalog's TCP reachability probe.
	Watcher    Watcher
}

// Service is an assembled engine with the cache it owns.
type Service struct {
	Engine *Engine
	Cache  *Cache
}

// Open loads the catalog, opens the cache and builds the engine. The
// engine does not connect until its first subscriber.
func Open(client Client, opts Options) (*Service, error) {
	if client == nil {
		return nil, errors.New("open billsync: nil billing client")
	}
	if opts.Database == "" {
		return nil, errors.New("open billsync: database path required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := config.Default()
	if opts.Catalog != "" {
		loaded, err := config.Load(opts.Catalog)
		if err != nil {
			return nil, fmt.Errorf("open billsync: %w", err)
		}
		cfg = loaded
	}

	st, err := store.Open(opts.Database, store.WithHiddenProduct(cfg.Hidden), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open billsync: %w", err)
	}

	var watcher Watcher = cfg.Watcher()
	if opts.Watcher != nil {
		watcher = opts.Watcher
	}

	eng := engine.New(client, st, cfg.Engine(),
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(opts.Registerer)),
		engine.WithNetwork(network.NewObserver(watcher, logger)),
	)
	logger.Debug("billsync opened", "database", opts.Database, "catalog", opts.Catalog)

	return &Service{Engine: eng, Cache: st}, nil
}

// Close drains the engine, ends the billing session and closes the cache.
func (s *Service) Close() error {
	return errors.Join(s.Engine.Close(), s.Cache.Close())
}
