package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/billsync/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventStep:
				fmt.Fprintf(&buf, "  step %d: %s %s\n", event.Index, event.Step, event.Arg)
			case EventCall:
				fmt.Fprintf(&buf, "    [%d] %s %s\n", event.Seq, event.Method, event.Arg)
			}
		}
	}

	return buf.String()
}

// assertCallCount checks the number of calls to a method, optionally
// restricted to one argument.
func assertCallCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != EventCall || event.Method != assertion.Method {
			continue
		}
		if assertion.Arg == "" || event.Arg == assertion.Arg {
			count++
		}
	}

	if count != assertion.Count {
		target := assertion.Method
		if assertion.Arg != "" {
			target += "(" + assertion.Arg + ")"
		}
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d calls to %s", assertion.Count, target),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCallOrder checks that the first call of each method appears in the
// given order. Intervening calls are allowed.
func assertCallOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventCall {
			continue
		}
		if _, seen := positions[event.Method]; !seen {
			positions[event.Method] = i + 1
		}
	}

	for _, method := range assertion.Methods {
		if positions[method] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all methods called: %v", assertion.Methods),
				Actual:   fmt.Sprintf("missing method: %s", method),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Methods); i++ {
		prev, curr := assertion.Methods[i-1], assertion.Methods[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("methods in order: %v", assertion.Methods),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertMessages(result *Result, assertion Assertion) error {
	got := result.Messages[assertion.Subscriber]
	want := assertion.Messages
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{
			Type:     AssertMessages,
			Expected: fmt.Sprintf("subscriber %s received %q", assertion.Subscriber, want),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func assertSessionState(result *Result, assertion Assertion) error {
	if result.State != assertion.State {
		return &AssertionError{
			Type:     AssertSessionState,
			Expected: assertion.State,
			Actual:   result.State,
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertOwned(ctx context.Context, st *store.Store, assertion Assertion) error {
	owned, err := st.HasPurchase(ctx, assertion.ProductID)
	if err != nil {
		return fmt.Errorf("owned %s: %w", assertion.ProductID, err)
	}
	if owned != *assertion.Owned {
		return &AssertionError{
			Type:     AssertOwned,
			Expected: fmt.Sprintf("product %s owned=%t", assertion.ProductID, *assertion.Owned),
			Actual:   fmt.Sprintf("owned=%t", owned),
		}
	}
	return nil
}

// assertRowCount counts rows of a cache table matching Where.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// assertFinalState checks that exactly one cache row matches Where and
// that it holds the Expect values (subset semantics).
//
// Table and column names are validated against a whitelist pattern;
// values are always bound as parameters.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	whereDesc := formatWhereClause(assertion.Where)
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism. A nil value matches SQL NULL.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", key))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-decoded expected value with a value
// scanned from SQLite, which returns int64 for integers and may return
// []byte for text.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		actualInt, ok := actual.(int64)
		return ok && int64(exp) == actualInt
	case int64:
		actualInt, ok := actual.(int64)
		return ok && exp == actualInt
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		actualInt, ok := actual.(int64)
		return ok && exp == (actualInt != 0)
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for cache assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCallCount:
			err = assertCallCount(result.Trace, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result.Trace, assertion)
		case AssertMessages:
			err = assertMessages(result, assertion)
		case AssertSessionState:
			err = assertSessionState(result, assertion)
		case AssertFinalState, AssertRowCount, AssertOwned:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			case AssertRowCount:
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			default:
				err = assertOwned(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
