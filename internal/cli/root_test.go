package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRootOptions isolates config and snapshot lookups under a temp dir.
func testRootOptions(t *testing.T) *RootOptions {
	t.Helper()
	home := t.TempDir()
	opts := &RootOptions{
		Format: "text",
		Env: map[string]string{
			"ALMANAC_HOME":      home,
			"ALMANAC_CONFIG":    "",
			"XDG_CONFIG_HOME":   filepath.Join(home, "config"),
			"ALMANAC_LOG_LEVEL": "error",
		},
	}
	t.Cleanup(func() { _ = opts.Close() })
	return opts
}

// execute runs one subcommand built by newCmd and returns its stdout.
func execute(t *testing.T, opts *RootOptions, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newCmd(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "almanac", cmd.Use)
	assert.Contains(t, cmd.Long, "SQLite")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"log", "get", "export", "import", "serve", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("snapshot"))
}

func TestGetCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	getCmd, _, err := cmd.Find([]string{"get"})
	require.NoError(t, err)

	require.NotNil(t, getCmd.Flags().Lookup("module"))
	limitFlag := getCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "0", limitFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	persistFlag := serveCmd.Flags().Lookup("persist")
	require.NotNil(t, persistFlag)
	assert.Equal(t, "false", persistFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden-dir"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "get"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootOptionsConfig(t *testing.T) {
	opts := testRootOptions(t)
	opts.SnapshotPath = filepath.Join(t.TempDir(), "custom.db")
	opts.Verbose = true

	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, opts.SnapshotPath, cfg.Snapshot.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Loaded once.
	opts.SnapshotPath = "elsewhere.db"
	again, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, cfg.Snapshot.Path, again.Snapshot.Path)
}

func TestRootOptionsDefaultSnapshotPath(t *testing.T) {
	opts := testRootOptions(t)

	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.Env["ALMANAC_HOME"], "almanac.db"), cfg.Snapshot.Path)
}

func TestRootOptionsBadConfig(t *testing.T) {
	opts := testRootOptions(t)
	opts.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := opts.Config()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
