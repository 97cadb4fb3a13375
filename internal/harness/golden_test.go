package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/ir"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		s, err := LoadScenario(f)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestGoldenTrace_Format(t *testing.T) {
	s := &Scenario{Name: "format"}
	r := NewResult()
	r.AddStepTrace(0, StepSubscribe, "ui")
	r.AddCallTrace("start_connection", "", 1)
	r.AddStepTrace(1, StepReconcile, "")
	r.Messages["ui"] = nil
	r.State = "OPEN"
	r.Products = []ir.Product{{ID: "one_apple", Kind: ir.KindOneTime}}
	r.Purchases = []ir.Purchase{{Token: "T1", ProductID: "one_apple"}}

	data, err := GoldenTrace(s, r)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Equal(t, []string{
		`{"pass_id":"test-pass","scenario":"format"}`,
		`{"arg":"ui","index":0,"step":"subscribe","type":"step"}`,
		`{"method":"start_connection","seq":1,"type":"call"}`,
		`{"index":1,"step":"reconcile","type":"step"}`,
		`{"messages":[],"subscriber":"ui","type":"messages"}`,
		`{"products":["one_apple"],"purchases":["T1"],"state":"OPEN","type":"final"}`,
	}, lines)
}

func TestGoldenTrace_Deterministic(t *testing.T) {
	s := &Scenario{Name: "determinism", PassID: "fixed"}
	r := sampleResult()
	r.Messages["analytics"] = []string{"x"}

	first, err := GoldenTrace(s, r)
	require.NoError(t, err)
	second, err := GoldenTrace(s, r)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(string(first), `{"pass_id":"fixed","scenario":"determinism"}`))

	// Subscribers are emitted in name order.
	out := string(first)
	assert.Less(t, strings.Index(out, `"subscriber":"analytics"`), strings.Index(out, `"subscriber":"ui"`))
}
