package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/testutil"
)

func TestQuery_EmptyStoreReturnsEmptySlice(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestQuery_SabianOracleScenario(t *testing.T) {
	s := createTestStore(t)

	sabian := mustInsert(t, s, "sabian", "0° Aries", "...")
	oracle := mustInsert(t, s, "oracle", "q1", "r1")

	all, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []ir.LogEntry{oracle, sabian}, all)

	onlySabian, err := s.Query(context.Background(), Filter{Module: "sabian"})
	require.NoError(t, err)
	assert.Equal(t, []ir.LogEntry{sabian}, onlySabian)
}

func TestQuery_OrdersByTimestampNotInsertion(t *testing.T) {
	// Wall clock jumps backwards between inserts.
	t0 := testutil.DefaultEpoch
	clock := testutil.NewScriptedClock(
		t0.Add(2*time.Hour),
		t0,
		t0.Add(time.Hour),
	)
	s := createTestStoreWithClock(t, clock)

	late := mustInsert(t, s, "m", "late", "")
	early := mustInsert(t, s, "m", "early", "")
	middle := mustInsert(t, s, "m", "middle", "")

	entries, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []ir.LogEntry{late, middle, early}, entries)
}

func TestQuery_TiesBrokenByIDDescending(t *testing.T) {
	clock := testutil.NewScriptedClock(testutil.DefaultEpoch)
	s := createTestStoreWithClock(t, clock)

	first := mustInsert(t, s, "m", "1", "")
	second := mustInsert(t, s, "m", "2", "")

	entries, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []ir.LogEntry{second, first}, entries)
}

func TestQuery_OrderingSurvivesSubsecondPrecision(t *testing.T) {
	// 999ms then 1s: naive variable-width formatting would sort these wrong.
	clock := testutil.NewScriptedClock(
		testutil.DefaultEpoch.Add(999*time.Millisecond),
		testutil.DefaultEpoch.Add(time.Second),
	)
	s := createTestStoreWithClock(t, clock)

	a := mustInsert(t, s, "m", "a", "")
	b := mustInsert(t, s, "m", "b", "")

	entries, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []ir.LogEntry{b, a}, entries)
}

func TestQuery_FilterIsOrderedSubset(t *testing.T) {
	s := createTestStore(t)
	modules := []string{"sabian", "oracle", "sabian", "transit", "oracle", "sabian"}
	for i, m := range modules {
		mustInsert(t, s, m, string(rune('a'+i)), "")
	}

	all, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)

	for _, module := range []string{"sabian", "oracle", "transit", "missing"} {
		t.Run(module, func(t *testing.T) {
			got, err := s.Query(context.Background(), Filter{Module: module})
			require.NoError(t, err)

			want := []ir.LogEntry{}
			for _, e := range all {
				if e.Module == module {
					want = append(want, e)
				}
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestQuery_Limit(t *testing.T) {
	s := createTestStore(t)
	for i := 0; i < 5; i++ {
		mustInsert(t, s, "oracle", "q", "r")
	}

	entries, err := s.Query(context.Background(), Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(5), entries[0].ID)
	assert.Equal(t, int64(4), entries[1].ID)

	entries, err = s.Query(context.Background(), Filter{Limit: -3})
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestCount(t *testing.T) {
	s := createTestStore(t)
	mustInsert(t, s, "sabian", "q", "r")
	mustInsert(t, s, "oracle", "q", "r")
	mustInsert(t, s, "oracle", "q", "r")

	total, err := s.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	oracle, err := s.Count(context.Background(), "oracle")
	require.NoError(t, err)
	assert.Equal(t, 2, oracle)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
	}{
		{"native", want},
		{"fixed width", "2024-03-20 03:06:00.000000000"},
		{"current_timestamp", "2024-03-20 03:06:00"},
		{"rfc3339 zulu", "2024-03-20T03:06:00Z"},
		{"bytes", []byte("2024-03-20 03:06:00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %v", got)
		})
	}

	_, err := parseTimestamp(nil)
	assert.Error(t, err)
	_, err = parseTimestamp("yesterday")
	assert.Error(t, err)
}
