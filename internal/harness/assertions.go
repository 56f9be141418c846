package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/almanac/internal/ir"
)

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
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(ev TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", ev.Dir, ev.Type)
	if ev.ID != nil {
		fmt.Fprintf(&b, " id=%d", *ev.ID)
	}
	if ev.Module != "" {
		fmt.Fprintf(&b, " module=%s", ev.Module)
	}
	if ev.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", ev.Kind)
	}
	if ev.Count != nil {
		fmt.Fprintf(&b, " entries=%d", *ev.Count)
	}
	return b.String()
}

// eventMatches reports whether ev satisfies the assertion's message filters.
func eventMatches(ev TraceEvent, a Assertion) bool {
	if a.Dir != "" && ev.Dir != a.Dir {
		return false
	}
	if a.Message != "" && ev.Type != a.Message {
		return false
	}
	if a.ID != nil && (ev.ID == nil || *ev.ID != *a.ID) {
		return false
	}
	if a.Module != "" && ir.NormalizeModule(ev.Module) != ir.NormalizeModule(a.Module) {
		return false
	}
	if a.Kind != "" && ev.Kind != a.Kind {
		return false
	}
	return true
}

// assertTraceContains checks that some event matches the assertion filters.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if eventMatches(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(assertion),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the message types appear in order.
// Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(assertion.Messages) {
			break
		}
		if assertion.Dir != "" && event.Dir != assertion.Dir {
			continue
		}
		if event.Type == assertion.Messages[next] {
			next++
		}
	}

	if next < len(assertion.Messages) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("messages in order: %v", assertion.Messages),
			Actual:   fmt.Sprintf("matched %v, then no %s", assertion.Messages[:next], assertion.Messages[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks that matching events occur exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if eventMatches(event, assertion) {
			count++
		}
	}

	if count != *assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the final worker's entries.
// A Module filter narrows the entries before comparison.
func assertFinalState(final []ir.LogEntry, assertion Assertion) error {
	entries := final
	if assertion.Module != "" {
		want := ir.NormalizeModule(assertion.Module)
		entries = entries[:0:0]
		for _, e := range final {
			if e.Module == want {
				entries = append(entries, e)
			}
		}
	}

	if assertion.Count != nil && len(entries) != *assertion.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d entries", *assertion.Count),
			Actual:   fmt.Sprintf("%d entries", len(entries)),
		}
	}
	if len(assertion.Entries) > 0 {
		if msg := matchEntries(entries, assertion.Entries); msg != "" {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%d matching entries", len(assertion.Entries)),
				Actual:   msg,
			}
		}
	}
	return nil
}

// matchEntries compares entries in order against partial expectations.
// Returns "" on match, otherwise a description of the first mismatch.
func matchEntries(actual []ir.LogEntry, expected []EntryMatch) string {
	if len(actual) != len(expected) {
		return fmt.Sprintf("expected %d entries, got %d", len(expected), len(actual))
	}
	for i, want := range expected {
		got := actual[i]
		switch {
		case want.ID != 0 && got.ID != want.ID:
			return fmt.Sprintf("entries[%d]: id %d, want %d", i, got.ID, want.ID)
		case want.Module != "" && got.Module != ir.NormalizeModule(want.Module):
			return fmt.Sprintf("entries[%d]: module %q, want %q", i, got.Module, want.Module)
		case want.Query != "" && got.Query != want.Query:
			return fmt.Sprintf("entries[%d]: query %q, want %q", i, got.Query, want.Query)
		case want.Result != "" && got.Result != want.Result:
			return fmt.Sprintf("entries[%d]: result %q, want %q", i, got.Result, want.Result)
		}
	}
	return ""
}

func describeFilter(a Assertion) string {
	parts := []string{a.Message}
	if a.Dir != "" {
		parts = append(parts, "dir="+a.Dir)
	}
	if a.ID != nil {
		parts = append(parts, fmt.Sprintf("id=%d", *a.ID))
	}
	if a.Module != "" {
		parts = append(parts, "module="+a.Module)
	}
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	return strings.Join(parts, " ")
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: trace_count requires count", i)
			} else {
				err = assertTraceCount(result.Trace, assertion)
			}
		case AssertFinalState:
			err = assertFinalState(result.Final, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
