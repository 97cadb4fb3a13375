package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/billsync/internal/billing"
	"github.com/roach88/billsync/internal/ir"
)

// Scenario is a conformance scenario: a scripted billing service, a flow of
// steps driving the engine, and assertions on the resulting calls and cache.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE catalog path, relative to the scenario
	// file. Empty means the built-in catalog.
	Catalog string `yaml:"catalog,omitempty"`

	// PassID fixes the reconciliation pass id. Empty means "test-pass".
	PassID string `yaml:"pass_id,omitempty"`

	// Setup scripts the fake billing service and seeds the cache.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow drives the engine.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup scripts the fake billing service. Family keys are "one_time" and
// "subscription"; result values are response code names such as "ERROR".
type Setup struct {
	SubscriptionsSupported *bool `yaml:"subscriptions_supported,omitempty"`

	Purchases map[string][]PurchaseSpec `yaml:"purchases,omitempty"`
	History   map[string][]HistorySpec  `yaml:"history,omitempty"`
	Products  map[string][]ProductSpec  `yaml:"products,omitempty"`

	SetupResults       []string          `yaml:"setup_results,omitempty"`
	PurchasesResults   map[string]string `yaml:"purchases_results,omitempty"`
	HistoryResults     map[string]string `yaml:"history_results,omitempty"`
	DetailsResults     map[string]string `yaml:"details_results,omitempty"`
	ConsumeResults     map[string]string `yaml:"consume_results,omitempty"`
	AcknowledgeResults map[string]string `yaml:"acknowledge_results,omitempty"`
	LaunchResult       string            `yaml:"launch_result,omitempty"`

	// Cache seeds the local cache before the flow starts.
	Cache CacheSeed `yaml:"cache,omitempty"`
}

// CacheSeed is the initial cache content.
type CacheSeed struct {
	Products  []CachedProduct `yaml:"products,omitempty"`
	Purchases []PurchaseSpec  `yaml:"purchases,omitempty"`
}

// PurchaseSpec describes a purchase reported by the service.
type PurchaseSpec struct {
	Token        string `yaml:"token"`
	ProductID    string `yaml:"product_id"`
	OrderID      string `yaml:"order_id,omitempty"`
	PurchaseTime int64  `yaml:"purchase_time,omitempty"`

	// State defaults to PURCHASED.
	State string `yaml:"state,omitempty"`
}

// HistorySpec describes a purchase history record.
type HistorySpec struct {
	Token        string `yaml:"token"`
	ProductID    string `yaml:"product_id"`
	PurchaseTime int64  `yaml:"purchase_time,omitempty"`
}

// ProductSpec describes product details returned by the service. The kind
// comes from the family key it is listed under.
type ProductSpec struct {
	ID         string `yaml:"id"`
	Price      string `yaml:"price,omitempty"`
	Descriptor string `yaml:"descriptor,omitempty"`
}

// CachedProduct is a product seeded into the cache.
type CachedProduct struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	Price      string `yaml:"price,omitempty"`
	Descriptor string `yaml:"descriptor,omitempty"`
}

// Step is one flow step.
type Step struct {
	// Step is one of the Step* constants.
	Step string `yaml:"step"`

	// Subscriber names the subscriber for subscribe and unsubscribe.
	Subscriber string `yaml:"subscriber,omitempty"`

	// ProductID is the launch target.
	ProductID string `yaml:"product_id,omitempty"`

	// ExpectError is the launch error kind: unknown_product,
	// subscriptions_unsupported or closed. Empty expects success.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Code is the push_update response code. Empty means OK.
	Code string `yaml:"code,omitempty"`

	// Family selects the family for set_purchases.
	Family string `yaml:"family,omitempty"`

	// Purchases are pushed by push_update or installed by set_purchases.
	Purchases []PurchaseSpec `yaml:"purchases,omitempty"`

	// Supported is the value for set_subscriptions_supported.
	Supported *bool `yaml:"supported,omitempty"`
}

// Step kinds.
const (
	StepSubscribe                 = "subscribe"
	StepUnsubscribe               = "unsubscribe"
	StepReconcile                 = "reconcile"
	StepPushUpdate                = "push_update"
	StepDisconnect                = "disconnect"
	StepNetworkAvailable          = "network_available"
	StepNetworkLost               = "network_lost"
	StepLaunch                    = "launch"
	StepSetPurchases              = "set_purchases"
	StepSetSubscriptionsSupported = "set_subscriptions_supported"
	StepHoldCallbacks             = "hold_callbacks"
	StepReleaseCallbacks          = "release_callbacks"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Method and Arg select calls (call_count). An empty Arg matches every
	// call to Method.
	Method string `yaml:"method,omitempty"`
	Arg    string `yaml:"arg,omitempty"`

	// Count is the expected number of calls (call_count) or rows
	// (row_count).
	Count int `yaml:"count,omitempty"`

	// Methods is the expected relative order of first calls (call_order).
	Methods []string `yaml:"methods,omitempty"`

	// Table, Where and Expect query the cache (final_state, row_count).
	Table  string                 `yaml:"table,omitempty"`
	Where  map[string]interface{} `yaml:"where,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Subscriber and Messages check notifications (messages).
	Subscriber string   `yaml:"subscriber,omitempty"`
	Messages   []string `yaml:"messages,omitempty"`

	// State is the expected session state (session_state).
	State string `yaml:"state,omitempty"`

	// ProductID and Owned check ownership (owned).
	ProductID string `yaml:"product_id,omitempty"`
	Owned     *bool  `yaml:"owned,omitempty"`
}

// Assertion type constants.
const (
	AssertCallCount    = "call_count"
	AssertCallOrder    = "call_order"
	AssertFinalState   = "final_state"
	AssertRowCount     = "row_count"
	AssertMessages     = "messages"
	AssertSessionState = "session_state"
	AssertOwned        = "owned"
)

// LoadScenario reads and parses a scenario YAML file. A relative catalog
// path is resolved against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog file not found: %s", s.Catalog)
		}
	}

	if err := validateSetup(&s.Setup); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateSetup(s *Setup) error {
	families := []map[string]string{s.PurchasesResults, s.HistoryResults, s.DetailsResults}
	for _, m := range families {
		for family, code := range m {
			if _, err := ir.ParseProductKind(family); err != nil {
				return err
			}
			if _, err := billing.ParseResponseCode(code); err != nil {
				return err
			}
		}
	}
	for family, list := range s.Purchases {
		if _, err := ir.ParseProductKind(family); err != nil {
			return err
		}
		if err := validatePurchases(list); err != nil {
			return err
		}
	}
	for family := range s.History {
		if _, err := ir.ParseProductKind(family); err != nil {
			return err
		}
	}
	for family := range s.Products {
		if _, err := ir.ParseProductKind(family); err != nil {
			return err
		}
	}

	codes := append([]string(nil), s.SetupResults...)
	for _, c := range s.ConsumeResults {
		codes = append(codes, c)
	}
	for _, c := range s.AcknowledgeResults {
		codes = append(codes, c)
	}
	if s.LaunchResult != "" {
		codes = append(codes, s.LaunchResult)
	}
	for _, c := range codes {
		if _, err := billing.ParseResponseCode(c); err != nil {
			return err
		}
	}

	for _, p := range s.Cache.Products {
		if p.ID == "" {
			return fmt.Errorf("cache product id is required")
		}
		if _, err := ir.ParseProductKind(p.Kind); err != nil {
			return fmt.Errorf("cache product %s: %w", p.ID, err)
		}
	}
	return validatePurchases(s.Cache.Purchases)
}

func validatePurchases(list []PurchaseSpec) error {
	for _, p := range list {
		if p.Token == "" {
			return fmt.Errorf("purchase token is required")
		}
		if _, err := billing.ParsePurchaseState(p.State); err != nil {
			return fmt.Errorf("purchase %s: %w", p.Token, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Step {
	case StepSubscribe, StepUnsubscribe:
		if step.Subscriber == "" {
			return fmt.Errorf("subscriber is required for %s", step.Step)
		}
	case StepLaunch:
		if step.ProductID == "" {
			return fmt.Errorf("product_id is required for launch")
		}
		switch step.ExpectError {
		case "", launchErrUnknownProduct, launchErrSubscriptionsUnsupported, launchErrClosed:
		default:
			return fmt.Errorf("unknown expect_error %q", step.ExpectError)
		}
	case StepPushUpdate:
		if step.Code != "" {
			if _, err := billing.ParseResponseCode(step.Code); err != nil {
				return err
			}
		}
		return validatePurchases(step.Purchases)
	case StepSetPurchases:
		if _, err := ir.ParseProductKind(step.Family); err != nil {
			return err
		}
		return validatePurchases(step.Purchases)
	case StepSetSubscriptionsSupported:
		if step.Supported == nil {
			return fmt.Errorf("supported is required for %s", step.Step)
		}
	case StepReconcile, StepDisconnect, StepNetworkAvailable, StepNetworkLost,
		StepHoldCallbacks, StepReleaseCallbacks:
	case "":
		return fmt.Errorf("step is required")
	default:
		return fmt.Errorf("unknown step %q", step.Step)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCallCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for call_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertMessages:
		if a.Subscriber == "" {
			return fmt.Errorf("assertions[%d]: subscriber is required for messages", index)
		}
	case AssertSessionState:
		switch a.State {
		case "OPEN", "CONNECTING", "CLOSED":
		default:
			return fmt.Errorf("assertions[%d]: state must be OPEN, CONNECTING or CLOSED", index)
		}
	case AssertOwned:
		if a.ProductID == "" || a.Owned == nil {
			return fmt.Errorf("assertions[%d]: product_id and owned are required for owned", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
