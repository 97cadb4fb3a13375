package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/billsync/internal/ir"
)

// GoldenTrace renders a result as canonical JSON lines: a header, one line
// per trace event, one line per subscriber's messages, and a final-state
// line. Each line is RFC 8785 canonical JSON, so the output is byte-stable.
func GoldenTrace(scenario *Scenario, result *Result) ([]byte, error) {
	passID := scenario.PassID
	if passID == "" {
		passID = DefaultPassID
	}

	lines := []map[string]any{{
		"scenario": scenario.Name,
		"pass_id":  passID,
	}}

	for _, e := range result.Trace {
		line := map[string]any{"type": e.Type}
		switch e.Type {
		case EventStep:
			line["index"] = e.Index
			line["step"] = e.Step
		case EventCall:
			line["method"] = e.Method
			line["seq"] = e.Seq
		}
		if e.Arg != "" {
			line["arg"] = e.Arg
		}
		lines = append(lines, line)
	}

	for _, name := range result.SubscriberNames() {
		messages := result.Messages[name]
		if messages == nil {
			messages = []string{}
		}
		lines = append(lines, map[string]any{
			"type":       "messages",
			"subscriber": name,
			"messages":   messages,
		})
	}

	products := make([]string, len(result.Products))
	for i, p := range result.Products {
		products[i] = p.ID
	}
	purchases := make([]string, len(result.Purchases))
	for i, p := range result.Purchases {
		purchases[i] = p.Token
	}
	lines = append(lines, map[string]any{
		"type":      "final",
		"state":     result.State,
		"products":  products,
		"purchases": purchases,
	})

	var buf bytes.Buffer
	for _, line := range lines {
		data, err := ir.MarshalCanonical(line)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario, fails the test on assertion errors, and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := GoldenTrace(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
