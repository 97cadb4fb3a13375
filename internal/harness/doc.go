// Package harness runs conformance scenarios against the reconciliation
// engine.
//
// A scenario scripts a fake billing service, drives a real engine over an
// in-memory cache through a flow of steps, and checks the resulting call
// trace and cache contents.
//
// # Scenario Format
//
//	name: consumable_repurchase
//	description: "A consumable purchase is consumed once"
//	catalog: catalog.cue        # optional, defaults to the built-in catalog
//	setup:
//	  purchases:
//	    one_time:
//	      - { token: T1, product_id: one_apple, purchase_time: 1000 }
//	  consume_results: { T1: ERROR }
//	flow:
//	  - step: subscribe
//	    subscriber: ui
//	  - step: reconcile
//	assertions:
//	  - type: call_count
//	    method: consume
//	    arg: T1
//	    count: 1
//	  - type: final_state
//	    table: purchases
//	    where: { purchase_token: T1 }
//	    expect: { product_id: one_apple }
//
// # Assertion Types
//
//   - call_count: a billing method (optionally with one argument) was called N times
//   - call_order: the first calls of the listed methods appear in order
//   - final_state: exactly one cache row matches and holds the expected values
//   - row_count: a cache table holds N matching rows
//   - messages: a subscriber received exactly these error messages
//   - session_state: the session ended in OPEN, CONNECTING or CLOSED
//   - owned: at least one purchase is cached for a product
//
// # Determinism
//
// Every scenario runs with a fixed pass id, a single cache-write worker and
// a synchronous fake client, and the harness waits for queued writes after
// each step. Traces are therefore byte-stable and are compared against
// golden files in testdata/golden.
package harness
