package harness

import "github.com/roach88/billsync/internal/ir"

// Trace event types.
const (
	EventStep = "step"
	EventCall = "call"
)

// TraceEvent is one entry of a scenario trace: either a flow step or a
// billing client call made while the step ran.
type TraceEvent struct {
	Type string `json:"type"`

	// Step fields.
	Index int    `json:"index,omitempty"`
	Step  string `json:"step,omitempty"`

	// Call fields.
	Method string `json:"method,omitempty"`
	Seq    int64  `json:"seq,omitempty"`

	// Arg is the step argument or the call argument. Empty is omitted.
	Arg string `json:"arg,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds steps and the calls they caused, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Messages holds billing error messages per subscriber name.
	Messages map[string][]string `json:"messages,omitempty"`

	// State is the session state after the flow.
	State string `json:"state"`

	// Products and Purchases are the cache contents after the flow.
	Products  []ir.Product  `json:"products"`
	Purchases []ir.Purchase `json:"purchases"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Messages: make(map[string][]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace appends a flow step marker.
func (r *Result) AddStepTrace(index int, step, arg string) {
	r.Trace = append(r.Trace, TraceEvent{Type: EventStep, Index: index, Step: step, Arg: arg})
}

// AddCallTrace appends a billing client call.
func (r *Result) AddCallTrace(method, arg string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Type: EventCall, Method: method, Arg: arg, Seq: seq})
}

// Calls returns the call events of the trace.
func (r *Result) Calls() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventCall {
			out = append(out, e)
		}
	}
	return out
}
