package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/billsync/internal/engine"
	"github.com/roach88/billsync/internal/network"
)

// Config is a compiled catalog file.
type Config struct {
	// OneTime and Subscription list the managed product ids per family.
	OneTime      []string
	Subscription []string

	// Consumable is the one-time product consumed after each purchase.
	Consumable string

	// Hidden is excluded from the presentation view. Empty hides nothing.
	Hidden string

	Workers              int
	DrainGrace           time.Duration
	ReconnectMaxInterval time.Duration
	ProbeInterval        time.Duration
	ProbeAddress         string
}

// Default returns the built-in catalog.
func Default() *Config {
	return &Config{
		OneTime:       []string{"app_premium_feature", "one_apple"},
		Subscription:  []string{"unlimited_popcorn_monthly"},
		Consumable:    "one_apple",
		Hidden:        "app_premium_feature",
		ProbeInterval: network.DefaultProbeInterval,
		ProbeAddress:  network.DefaultProbeAddress,
	}
}

// Engine returns the engine configuration described by c.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Catalog: engine.Catalog{
			OneTime:      append([]string(nil), c.OneTime...),
			Subscription: append([]string(nil), c.Subscription...),
			Consumable:   c.Consumable,
		},
		Workers:              c.Workers,
		DrainGrace:           c.DrainGrace,
		ReconnectMaxInterval: c.ReconnectMaxInterval,
	}
}

// Watcher returns the network probe described by c.
func (c *Config) Watcher() *network.PollingWatcher {
	return network.NewPollingWatcher(c.ProbeAddress, c.ProbeInterval)
}

// ProductIDs returns every managed product id, one-time family first.
func (c *Config) ProductIDs() []string {
	ids := make([]string, 0, len(c.OneTime)+len(c.Subscription))
	ids = append(ids, c.OneTime...)
	return append(ids, c.Subscription...)
}

// CompileError is a catalog error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and compiles a catalog file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, path)
}

// Parse compiles catalog source. filename is used in error positions.
func Parse(src []byte, filename string) (*Config, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile extracts and validates a Config from a CUE value holding a
// top-level catalog struct and an optional engine struct.
func Compile(v cue.Value) (*Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	catalog := v.LookupPath(cue.ParsePath("catalog"))
	if !catalog.Exists() {
		return nil, &CompileError{Field: "catalog", Message: "catalog is required", Pos: v.Pos()}
	}

	cfg := &Config{
		ProbeInterval: network.DefaultProbeInterval,
		ProbeAddress:  network.DefaultProbeAddress,
	}

	var err error
	if cfg.OneTime, err = stringList(catalog, "oneTime"); err != nil {
		return nil, err
	}
	if cfg.Subscription, err = stringList(catalog, "subscription"); err != nil {
		return nil, err
	}
	if cfg.Consumable, err = optionalString(catalog, "consumable"); err != nil {
		return nil, err
	}
	if cfg.Hidden, err = optionalString(catalog, "hidden"); err != nil {
		return nil, err
	}

	if eng := v.LookupPath(cue.ParsePath("engine")); eng.Exists() {
		if err := compileEngine(eng, cfg); err != nil {
			return nil, err
		}
	}

	if err := validate(catalog, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func compileEngine(v cue.Value, cfg *Config) error {
	if w := v.LookupPath(cue.ParsePath("workers")); w.Exists() {
		n, err := w.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		if n < 0 {
			return &CompileError{Field: "engine.workers", Message: "must be >= 0", Pos: w.Pos()}
		}
		cfg.Workers = int(n)
	}

	durations := []struct {
		field string
		dst   *time.Duration
	}{
		{"drainGrace", &cfg.DrainGrace},
		{"reconnectMaxInterval", &cfg.ReconnectMaxInterval},
		{"probeInterval", &cfg.ProbeInterval},
	}
	for _, d := range durations {
		val := v.LookupPath(cue.ParsePath(d.field))
		if !val.Exists() {
			continue
		}
		s, err := val.String()
		if err != nil {
			return formatCUEError(err)
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return &CompileError{Field: "engine." + d.field, Message: fmt.Sprintf("invalid duration %q", s), Pos: val.Pos()}
		}
		if parsed < 0 {
			return &CompileError{Field: "engine." + d.field, Message: "must not be negative", Pos: val.Pos()}
		}
		*d.dst = parsed
	}

	addr, err := optionalString(v, "probeAddress")
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.ProbeAddress = addr
	}
	return nil
}

func validate(catalog cue.Value, cfg *Config) error {
	ids := cfg.ProductIDs()
	if len(ids) == 0 {
		return &CompileError{Field: "catalog", Message: "at least one product id is required", Pos: catalog.Pos()}
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return &CompileError{Field: "catalog", Message: "product id must not be empty", Pos: catalog.Pos()}
		}
		if seen[id] {
			return &CompileError{Field: "catalog", Message: fmt.Sprintf("duplicate product id %q", id), Pos: catalog.Pos()}
		}
		seen[id] = true
	}

	if cfg.Consumable != "" && !contains(cfg.OneTime, cfg.Consumable) {
		return &CompileError{
			Field:   "catalog.consumable",
			Message: fmt.Sprintf("%q is not a one-time product", cfg.Consumable),
			Pos:     catalog.LookupPath(cue.ParsePath("consumable")).Pos(),
		}
	}
	if cfg.Hidden != "" && !seen[cfg.Hidden] {
		return &CompileError{
			Field:   "catalog.hidden",
			Message: fmt.Sprintf("unknown product %q", cfg.Hidden),
			Pos:     catalog.LookupPath(cue.ParsePath("hidden")).Pos(),
		}
	}
	return nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
