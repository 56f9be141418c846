package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/almanac/internal/ir"
)

// serve runs the serve command over the given stdin lines and returns the
// envelopes written to stdout.
func serve(t *testing.T, opts *RootOptions, input []string, args ...string) []ir.Envelope {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewServeCommand(opts)
	cmd.SetIn(strings.NewReader(strings.Join(input, "\n") + "\n"))
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	var envs []ir.Envelope
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var env ir.Envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &env), "line: %s", scanner.Text())
		envs = append(envs, env)
	}
	require.NoError(t, scanner.Err())
	return envs
}

func envelopeTypes(envs []ir.Envelope) []string {
	types := make([]string, len(envs))
	for i, env := range envs {
		types[i] = string(env.Type)
		if env.ID != nil {
			types[i] += "#" + strconv.FormatInt(*env.ID, 10)
		}
	}
	return types
}

func TestServeProtocol(t *testing.T) {
	opts := testRootOptions(t)
	envs := serve(t, opts, []string{
		`{"id":1,"type":"INIT"}`,
		`{"id":2,"type":"LOG","payload":{"module":"sabian","query":"0° Aries","result":"..."}}`,
		`{"id":3,"type":"LOG","payload":{"module":"oracle","query":"q1","result":"r1"}}`,
		`{"id":4,"type":"GET","payload":{"module":"sabian"}}`,
	})

	assert.Equal(t, []string{
		"SUCCESS#1",
		"PERSIST",
		"SUCCESS#2",
		"PERSIST",
		"SUCCESS#3",
		"SUCCESS#4",
	}, envelopeTypes(envs))

	msg, err := ir.DecodeMessage(envs[5])
	require.NoError(t, err)
	success, ok := msg.(ir.Success)
	require.True(t, ok)
	require.Len(t, success.Entries, 1)
	assert.Equal(t, "0° Aries", success.Entries[0].Query)

	// Frames differ because the second includes one more row.
	first, err := ir.DecodeMessage(envs[1])
	require.NoError(t, err)
	second, err := ir.DecodeMessage(envs[3])
	require.NoError(t, err)
	assert.NotEqual(t, first.(ir.Persist).Snapshot, second.(ir.Persist).Snapshot)

	_, err = os.Stat(snapshotPath(t, opts))
	assert.True(t, os.IsNotExist(err), "serve without --persist must not write the snapshot file")
}

func TestServeNotInitialized(t *testing.T) {
	opts := testRootOptions(t)
	envs := serve(t, opts, []string{
		`{"id":7,"type":"LOG","payload":{"module":"m","query":"q","result":"r"}}`,
	})

	require.Len(t, envs, 1)
	assert.Equal(t, ir.TypeError, envs[0].Type)
	require.NotNil(t, envs[0].ID)
	assert.Equal(t, int64(7), *envs[0].ID)
	assert.Equal(t, ir.KindNotInitialized, envs[0].Kind)
}

func TestServeMalformedLines(t *testing.T) {
	opts := testRootOptions(t)
	envs := serve(t, opts, []string{
		`{"id":5,"type":"LOG","payload":"oops"}`,
		`not json`,
		``,
		`{"id":6,"type":"PING"}`,
	})

	require.Len(t, envs, 3)
	for _, env := range envs {
		assert.Equal(t, ir.TypeError, env.Type)
		assert.Equal(t, ir.KindEngine, env.Kind)
	}

	require.NotNil(t, envs[0].ID)
	assert.Equal(t, int64(5), *envs[0].ID)
	assert.Contains(t, envs[0].Error, "malformed envelope")
	assert.Contains(t, envs[1].Error, "malformed envelope")
	require.NotNil(t, envs[2].ID)
	assert.Equal(t, int64(6), *envs[2].ID)
	assert.Contains(t, envs[2].Error, "unrecognized message type")
}

func TestServeMalformedLineKeepsRequestOrder(t *testing.T) {
	opts := testRootOptions(t)
	input := []string{`{"id":1,"type":"INIT"}`}
	for id := 2; id <= 21; id++ {
		input = append(input, `{"id":`+strconv.Itoa(id)+`,"type":"LOG","payload":{"module":"m","query":"q","result":"r"}}`)
	}
	input = append(input, `{"id":99,"type":"LOG","payload":"oops"}`)

	envs := serve(t, opts, input)

	want := []string{"SUCCESS#1"}
	for id := 2; id <= 21; id++ {
		want = append(want, "PERSIST", "SUCCESS#"+strconv.Itoa(id))
	}
	want = append(want, "ERROR#99")
	assert.Equal(t, want, envelopeTypes(envs))
}

func TestServePersist(t *testing.T) {
	opts := testRootOptions(t)
	envs := serve(t, opts, []string{
		`{"id":1,"type":"INIT"}`,
		`{"id":2,"type":"LOG","payload":{"module":"m","query":"persisted-query","result":"r"}}`,
	}, "--persist")

	require.Len(t, envs, 3)
	msg, err := ir.DecodeMessage(envs[1])
	require.NoError(t, err)

	saved, err := os.ReadFile(snapshotPath(t, opts))
	require.NoError(t, err)
	assert.Equal(t, msg.(ir.Persist).Snapshot, saved)

	// The saved snapshot restores in a later command.
	out, err := execute(t, opts, NewGetCommand)
	require.NoError(t, err)
	assert.Contains(t, out, "persisted-query")
}

func TestDecodeLine(t *testing.T) {
	assert.Equal(t, ir.GetRequest{ID: 3, Limit: 2}, decodeLine(`{"id":3,"type":"GET","payload":{"limit":2}}`))

	m, ok := decodeLine(`{"id":9,"type":"SUCCESS"}`).(ir.MalformedRequest)
	require.True(t, ok)
	assert.Equal(t, int64(9), m.ID)
	assert.Equal(t, "SUCCESS", m.RawType)

	m, ok = decodeLine(`{"type":"LOG"}`).(ir.MalformedRequest)
	require.True(t, ok)
	assert.Equal(t, int64(0), m.ID)

	m, ok = decodeLine(`{"id":12,"type":"GET","payload":[`).(ir.MalformedRequest)
	require.True(t, ok)
	assert.Contains(t, m.Reason, "malformed envelope")
}
