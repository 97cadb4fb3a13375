package billing

import (
	"fmt"

	"github.com/roach88/billsync/internal/ir"
)

// Feature names an optional capability of the remote billing service.
type Feature string

// FeatureSubscriptions gates the subscription product family.
const FeatureSubscriptions Feature = "subscriptions"

// PurchaseState is the provider-reported state of a purchase.
type PurchaseState int

const (
	StateUnspecified PurchaseState = iota
	StatePurchased
	StatePending
)

func (s PurchaseState) String() string {
	switch s {
	case StatePurchased:
		return "PURCHASED"
	case StatePending:
		return "PENDING"
	default:
		return "UNSPECIFIED_STATE"
	}
}

// ParsePurchaseState accepts PURCHASED, PENDING and UNSPECIFIED_STATE.
func ParsePurchaseState(s string) (PurchaseState, error) {
	switch s {
	case "PURCHASED", "purchased":
		return StatePurchased, nil
	case "PENDING", "pending":
		return StatePending, nil
	case "UNSPECIFIED_STATE", "unspecified", "":
		return StateUnspecified, nil
	default:
		return StateUnspecified, fmt.Errorf("unknown purchase state %q", s)
	}
}

// Purchase is a purchase as reported by the remote service.
type Purchase struct {
	Token        string
	ProductID    string
	OrderID      string
	PurchaseTime int64
	State        PurchaseState
}

// Record converts the remote purchase into a cache record.
func (p Purchase) Record() ir.Purchase {
	return ir.Purchase{
		Token:        p.Token,
		ProductID:    p.ProductID,
		OrderID:      p.OrderID,
		PurchaseTime: p.PurchaseTime,
	}
}

// HistoryRecord is one entry of the remote purchase history. History
// entries carry no order id.
type HistoryRecord struct {
	Token        string
	ProductID    string
	PurchaseTime int64
}

// Record converts the history entry into a cache record with no order id.
func (h HistoryRecord) Record() ir.Purchase {
	return ir.Purchase{
		Token:        h.Token,
		ProductID:    h.ProductID,
		PurchaseTime: h.PurchaseTime,
	}
}

// ProductDetails is remote product metadata.
type ProductDetails struct {
	ID         string
	Kind       ir.ProductKind
	Price      string
	Descriptor string
}

// Product converts the details into a cache row.
func (d ProductDetails) Product() ir.Product {
	return ir.Product{
		ID:         d.ID,
		Kind:       d.Kind,
		Price:      d.Price,
		Descriptor: d.Descriptor,
	}
}

// ConnectionEventKind tags a ConnectionEvent.
type ConnectionEventKind int

const (
	// EventSetupFinished carries the outcome of StartConnection.
	EventSetupFinished ConnectionEventKind = iota
	// EventServiceDisconnected reports a transport drop after setup.
	EventServiceDisconnected
)

func (k ConnectionEventKind) String() string {
	if k == EventServiceDisconnected {
		return "service_disconnected"
	}
	return "setup_finished"
}

// ConnectionEvent is delivered to the StartConnection callback.
// Result is meaningful only for EventSetupFinished.
type ConnectionEvent struct {
	Kind   ConnectionEventKind
	Result Result
}

// Client is the remote billing service. Implementations may invoke
// callbacks on any goroutine, including synchronously from within the
// call that registered them; callers must not hold locks across calls.
type Client interface {
	// StartConnection opens a session. onEvent receives exactly one
	// EventSetupFinished and, later, any number of EventServiceDisconnected.
	StartConnection(onEvent func(ConnectionEvent))
	// EndConnection closes the session. No further events are delivered.
	EndConnection()
	IsReady() bool
	IsFeatureSupported(feature Feature) Result

	QueryPurchases(family ir.ProductKind) ([]Purchase, Result)
	QueryPurchaseHistory(family ir.ProductKind, done func(Result, []HistoryRecord))
	QueryProductDetails(family ir.ProductKind, ids []string, done func(Result, []ProductDetails))

	Consume(token string, done func(Result, string))
	Acknowledge(token string, done func(Result))

	// LaunchPurchaseFlow starts the provider's purchase UI. The outcome
	// arrives later as a purchases-updated push.
	LaunchPurchaseFlow(descriptor string) Result
}

// PurchasesUpdatedFunc receives unsolicited purchase pushes from the service.
type PurchasesUpdatedFunc func(Result, []Purchase)
