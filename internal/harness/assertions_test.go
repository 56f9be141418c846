package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/almanac/internal/ir"
)

func id64(n int64) *int64 { return &n }

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddSendTrace(ir.InitRequest{ID: 1}, "")
	r.AddResponseTrace(ir.Success{ID: 1})
	r.AddSendTrace(ir.LogRequest{ID: 2, Module: "oracle", Query: "q", Result: "r"}, "")
	r.AddPersistTrace()
	r.AddResponseTrace(ir.Success{ID: 2})
	r.AddSendTrace(ir.UnknownRequest{ID: 3, RawType: "DELETE"}, "")
	r.AddResponseTrace(ir.Failure{ID: 3, Kind: ir.KindEngine, Message: "unrecognized"})
	return r.Trace
}

func TestResult_SeqIsMonotonic(t *testing.T) {
	trace := sampleTrace()
	for i, ev := range trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Message: "LOG", Module: "oracle"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Message: "ERROR", ID: id64(3), Kind: "EngineError"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Message: "SUCCESS", Dir: DirRecv}))

	err := assertTraceContains(trace, Assertion{Message: "LOG", Module: "sabian"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "module=sabian")
	assert.Contains(t, err.Error(), "Full trace:")

	assert.Error(t, assertTraceContains(trace, Assertion{Message: "LOG", Dir: DirRecv}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Messages: []string{"INIT", "LOG", "DELETE"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Dir: DirRecv, Messages: []string{"SUCCESS", "PERSIST", "SUCCESS", "ERROR"}}))

	err := assertTraceOrder(trace, Assertion{Dir: DirRecv, Messages: []string{"SUCCESS", "SUCCESS", "PERSIST"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "then no PERSIST")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Message: "PERSIST", Count: intPtr(1)}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Message: "SUCCESS", Count: intPtr(2)}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Message: "RESTART", Count: intPtr(0)}))

	err := assertTraceCount(trace, Assertion{Message: "PERSIST", Count: intPtr(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	ts := time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC)
	final := []ir.LogEntry{
		{ID: 2, Module: "oracle", Query: "q1", Result: "r1", Timestamp: ts.Add(time.Second)},
		{ID: 1, Module: "sabian", Query: "0° Aries", Result: "...", Timestamp: ts},
	}

	assert.NoError(t, assertFinalState(final, Assertion{Count: intPtr(2)}))
	assert.NoError(t, assertFinalState(final, Assertion{Module: "sabian", Count: intPtr(1)}))
	assert.NoError(t, assertFinalState(final, Assertion{Entries: []EntryMatch{{ID: 2}, {Module: "sabian"}}}))
	assert.NoError(t, assertFinalState(nil, Assertion{Count: intPtr(0)}))

	assert.Error(t, assertFinalState(final, Assertion{Count: intPtr(3)}))
	assert.Error(t, assertFinalState(final, Assertion{Entries: []EntryMatch{{ID: 1}, {ID: 2}}}))
	assert.Error(t, assertFinalState(final, Assertion{Module: "transit", Count: intPtr(1)}))
}

func TestMatchEntries_NormalizesModule(t *testing.T) {
	final := []ir.LogEntry{{ID: 1, Module: ir.NormalizeModule("hélios")}}

	assert.Empty(t, matchEntries(final, []EntryMatch{{Module: "hélios"}}))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Message: "PERSIST", Count: intPtr(1)},
		{Type: AssertTraceCount, Message: "PERSIST"},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "requires count")
	assert.Contains(t, errs[1], "unknown assertion type")
}
