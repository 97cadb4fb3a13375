package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
	"github.com/roach88/billsync/internal/network"
	"github.com/roach88/billsync/internal/worker"
)

// Defaults for Config fields left zero.
const (
	DefaultReconnectInitialInterval = 500 * time.Millisecond
	DefaultReconnectMaxInterval     = 30 * time.Second
)

var (
	// ErrUnknownProduct is returned by LaunchPurchase for a product that is
	// not in the local cache.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrSubscriptionsUnsupported is returned by LaunchPurchase for a
	// subscription product when the service does not support subscriptions.
	ErrSubscriptionsUnsupported = errors.New("subscriptions not supported")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// Subscriber is notified of billing errors the user should see.
type Subscriber interface {
	OnBillingError(message string)
}

// Cache is the local purchase cache.
type Cache interface {
	UpsertProducts(ctx context.Context, products []ir.Product) error
	UpsertPurchases(ctx context.Context, purchases []ir.Purchase) error
	Product(ctx context.Context, id string) (ir.Product, bool, error)
}

// Catalog names the products the engine manages.
type Catalog struct {
	OneTime      []string
	Subscription []string

	// Consumable is the one-time product that is consumed instead of
	// acknowledged.
	Consumable string
}

// Config holds engine tuning.
type Config struct {
	Catalog Catalog

	// Workers sizes the background pool. Zero means one per CPU.
	Workers int

	// DrainGrace bounds how long Close waits for queued cache writes.
	// Zero means worker.DefaultDrainGrace.
	DrainGrace time.Duration

	// ReconnectMaxInterval caps the delay between consecutive reconnects.
	// Zero means DefaultReconnectMaxInterval.
	ReconnectMaxInterval time.Duration
}

// Engine reconciles purchases between the billing service and the local
// cache.
//
// Thread-safety model:
//   - All exported methods are safe from any goroutine.
//   - Billing client callbacks may arrive on any goroutine.
//   - No engine lock is held while calling the client, the cache or a
//     subscriber.
type Engine struct {
	client   billing.Client
	cache    Cache
	catalog  Catalog
	observer *network.Observer
	pool     *worker.Pool
	grace    time.Duration

	logger  *slog.Logger
	metrics *Metrics
	passIDs PassIDGenerator

	session  *session
	pending  *PendingSet
	registry *registry

	mu          sync.Mutex
	accumulated []ir.Purchase
	closed      bool

	// Pass coalescing: at most one queried pass runs, and at most one
	// follow-up is queued behind it.
	passRunning bool
	passQueued  bool
	queuedOwned bool

	// Subscriber lifecycle: engaged is true while observation and the
	// session are held for subscribers.
	engaged        bool
	lifecycleBusy  bool
	lifecycleDirty bool
	connectPending bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: unregistered counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithPassIDGenerator sets the reconciliation pass id source.
// Default: UUIDv7Generator.
func WithPassIDGenerator(g PassIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.passIDs = g
		}
	}
}

// WithReconnectBackoff overrides the delay policy between consecutive
// reconnect attempts.
func WithReconnectBackoff(b backoff.BackOff) Option {
	return func(e *Engine) {
		if b != nil {
			e.session.backoff = b
		}
	}
}

// WithNetwork makes the engine follow connectivity: it subscribes to o
// while it has subscribers and reconnects when the network returns.
func WithNetwork(o *network.Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// New creates an Engine and starts its background pool.
// The engine does not connect until the first Subscribe.
func New(client billing.Client, cache Cache, cfg Config, opts ...Option) *Engine {
	maxInterval := cfg.ReconnectMaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultReconnectMaxInterval
	}
	grace := cfg.DrainGrace
	if grace <= 0 {
		grace = worker.DefaultDrainGrace
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultReconnectInitialInterval
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	e := &Engine{
		client:   client,
		cache:    cache,
		catalog:  cfg.Catalog,
		grace:    grace,
		logger:   slog.Default(),
		metrics:  NewMetrics(nil),
		passIDs:  UUIDv7Generator{},
		pending:  NewPendingSet(),
		registry: &registry{},
	}
	e.session = newSession(client, b, e.logger, e.metrics)

	for _, opt := range opts {
		opt(e)
	}

	e.session.logger = e.logger
	e.session.metrics = e.metrics
	e.session.onReady = e.onSessionReady
	e.session.onFailure = e.handleResult
	e.pool = worker.New(cfg.Workers, worker.WithLogger(e.logger))

	return e
}

// State returns the billing session state.
func (e *Engine) State() SessionState {
	return e.session.State()
}

// Pending returns the set of tokens with a dispatched consume request.
func (e *Engine) Pending() *PendingSet {
	return e.pending
}

// Accumulated returns a copy of the purchased list built by the latest pass.
func (e *Engine) Accumulated() []ir.Purchase {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ir.Purchase, len(e.accumulated))
	copy(out, e.accumulated)
	return out
}

// Connect opens the billing session if it is closed.
func (e *Engine) Connect() {
	if e.isClosed() {
		return
	}
	e.session.connect()
}

// ExecuteWhenReady runs op once the session is open, connecting if needed.
func (e *Engine) ExecuteWhenReady(op func()) {
	if e.isClosed() {
		return
	}
	e.session.executeWhenReady(op)
}

// OnNetworkAvailable reconnects if the session is closed.
func (e *Engine) OnNetworkAvailable() {
	e.logger.Debug("network available, connecting")
	e.Connect()
}

// OnNetworkLost is informational; the billing service reports its own drop.
func (e *Engine) OnNetworkLost() {
	e.logger.Debug("network lost")
}

// Flush waits until every queued cache write has finished.
func (e *Engine) Flush(ctx context.Context) error {
	return e.pool.Flush(ctx)
}

// Close drains queued cache writes within the drain grace, then closes the
// billing session. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.registry.clear()
	e.syncLifecycle(false)

	err := e.pool.Shutdown(e.grace)
	e.session.teardown()
	if err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// onSessionReady runs on every transition to OPEN.
func (e *Engine) onSessionReady() {
	if !e.subscriptionsSupported() {
		e.notify(billing.MessageSubscriptionsUnsupported)
	}
	e.FetchCatalog()
	e.ImportHistory()
	e.Reconcile()
}

// subscriptionsSupported asks the service whether the subscription family
// can be used in the current session.
func (e *Engine) subscriptionsSupported() bool {
	res := e.client.IsFeatureSupported(billing.FeatureSubscriptions)
	if !res.IsOK() {
		e.logger.Debug("subscriptions not supported", "code", res.Code.String())
		return false
	}
	return true
}

// submit queues a cache write on the background pool.
func (e *Engine) submit(what string, job worker.Job) {
	if !e.pool.Submit(job) {
		e.logger.Warn("cache write dropped, pool closed", "write", what)
	}
}

func (e *Engine) persistPurchases(logger *slog.Logger, purchases []ir.Purchase) {
	if len(purchases) == 0 {
		return
	}
	e.submit("purchases", func(ctx context.Context) {
		if err := e.cache.UpsertPurchases(ctx, purchases); err != nil {
			logger.Error("persist purchases", "count", len(purchases), "error", err)
			return
		}
		logger.Debug("purchases persisted", "count", len(purchases))
	})
}

func (e *Engine) persistProducts(products []ir.Product) {
	if len(products) == 0 {
		return
	}
	e.submit("products", func(ctx context.Context) {
		if err := e.cache.UpsertProducts(ctx, products); err != nil {
			e.logger.Error("persist products", "count", len(products), "error", err)
			return
		}
		e.logger.Debug("products persisted", "count", len(products))
	})
}

// LaunchPurchase starts the purchase flow for a cached product.
//
// The outcome of the flow arrives later through OnPurchasesUpdated.
func (e *Engine) LaunchPurchase(ctx context.Context, productID string) error {
	if e.isClosed() {
		return ErrClosed
	}

	product, ok, err := e.cache.Product(ctx, productID)
	if err != nil {
		return fmt.Errorf("launch purchase %s: %w", productID, err)
	}
	if !ok {
		return fmt.Errorf("launch purchase %s: %w", productID, ErrUnknownProduct)
	}

	if product.Kind == ir.KindSubscription && !e.subscriptionsSupported() {
		e.notify(billing.MessageSubscriptionsUnsupported)
		return fmt.Errorf("launch purchase %s: %w", productID, ErrSubscriptionsUnsupported)
	}

	e.logger.Info("launching purchase flow",
		"product_id", productID, "descriptor", ir.DescriptorHash(product.Descriptor))
	e.session.executeWhenReady(func() {
		res := e.client.LaunchPurchaseFlow(product.Descriptor)
		e.handleResult("launch purchase flow", res)
	})
	return nil
}
