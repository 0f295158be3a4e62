package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// AssertionError is a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Seq, event.Action, event.Args, event.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func stepMatches(e TraceEvent, a Assertion) bool {
	return e.Action == a.Action && (a.Outcome == "" || e.Outcome == a.Outcome)
}

// assertTraceContains passes if some step has the action and its args
// include a.Args.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if stepMatches(e, a) && matchArgs(e.Args, a.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", a.Action, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks the first occurrences of the actions are in order.
// Other steps may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, e := range trace {
		if _, seen := positions[e.Action]; !seen {
			positions[e.Action] = e.Seq
		}
	}

	for _, action := range a.Actions {
		if _, ok := positions[action]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if stepMatches(e, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalState(result *Result, a Assertion) error {
	actual, ok := lookup(result.State, a.Path)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("path %q to exist", a.Path),
			Actual:   "path not found in final state",
		}
	}
	if !matchValue(a.Expect, actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", a.Path, a.Expect),
			Actual:   fmt.Sprintf("%s = %v", a.Path, actual),
		}
	}
	return nil
}

// lookup follows a dotted path through maps and, for numeric segments,
// slices.
func lookup(root any, path string) (any, bool) {
	cur := root
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// matchArgs reports whether actual includes every expected key with an
// equal value.
func matchArgs(actual, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	return matchValue(expected, actual)
}

// matchValue compares expected and actual after normalizing both to JSON
// values. Expected maps match as subsets; everything else must be equal.
func matchValue(expected, actual any) bool {
	return subset(normalize(expected), normalize(actual))
}

func subset(expected, actual any) bool {
	em, ok := expected.(map[string]any)
	if !ok {
		return reflect.DeepEqual(expected, actual)
	}
	am, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for k, ev := range em {
		av, ok := am[k]
		if !ok || !subset(ev, av) {
			return false
		}
	}
	return true
}

// normalize turns YAML- and Go-typed values into the shapes encoding/json
// decodes to, so 3 and 3.0 compare equal and typed slices become []any.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
