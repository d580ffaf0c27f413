package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config pointing both backends at SQLite
// files in a temp dir, so state survives across command invocations the
// way it does for a real operator.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gridsync.yaml")
	cfg := fmt.Sprintf(`buffer:
  path: %s
sink:
  backend: sqlite
  path: %s
`, filepath.Join(dir, "buffer.db"), filepath.Join(dir, "grid.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

// runCLI executes the root command with args and captures stdout.
func runCLI(args ...string) (string, error) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// rowResponse mirrors the get command's JSON payload. Field values are
// *string so a JSON null (unset) stays distinguishable from "" (set
// empty).
type rowResponse struct {
	Status string `json:"status"`
	Data   struct {
		Key    string             `json:"key"`
		Fields map[string]*string `json:"fields"`
	} `json:"data"`
}

func TestIngestFlushGetRoundTrip(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("ingest", "--config", cfg,
		"--key", "msg-1", "--kind", "message_received",
		"--sender", "alice@example.com", "--subject", "hello")
	require.NoError(t, err)

	_, err = runCLI("ingest", "--config", cfg,
		`{"key":"msg-1","kind":"message_classified","tags":"inbox","summary":"greeting"}`)
	require.NoError(t, err)

	out, err := runCLI("flush", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Flushed 2 updates across 1 keys")

	out, err = runCLI("get", "--config", cfg, "--format", "json", "msg-1")
	require.NoError(t, err)

	var resp rowResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "msg-1", resp.Data.Key)

	// Both fragments landed in one row.
	require.NotNil(t, resp.Data.Fields["sender"])
	assert.Equal(t, "alice@example.com", *resp.Data.Fields["sender"])
	require.NotNil(t, resp.Data.Fields["tags"])
	assert.Equal(t, "inbox", *resp.Data.Fields["tags"])
}

func TestIngestEmptyStringStaysDistinctFromUnset(t *testing.T) {
	cfg := writeTestConfig(t)

	// --sender passed as empty string, --subject never passed.
	_, err := runCLI("ingest", "--config", cfg,
		"--key", "msg-2", "--kind", "message_received", "--sender", "")
	require.NoError(t, err)

	_, err = runCLI("flush", "--config", cfg)
	require.NoError(t, err)

	out, err := runCLI("get", "--config", cfg, "--format", "json", "msg-2")
	require.NoError(t, err)

	var resp rowResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Data.Fields["sender"], "empty string is a set value")
	assert.Equal(t, "", *resp.Data.Fields["sender"])
	assert.Nil(t, resp.Data.Fields["subject"], "never-passed field stays unset")
}

func TestFlushEmptyBuffer(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runCLI("flush", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to flush")
}

func TestGetMissingRow(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("get", "--config", cfg, "no-such-key")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestIngestUnknownKind(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("ingest", "--config", cfg,
		"--key", "msg-3", "--kind", "message_deleted")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIngestMissingKey(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("ingest", "--config", cfg,
		"--kind", "message_received", "--sender", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusCounts(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("ingest", "--config", cfg,
		"--key", "msg-a", "--kind", "message_received", "--sender", "a")
	require.NoError(t, err)
	_, err = runCLI("ingest", "--config", cfg,
		"--key", "msg-b", "--kind", "message_received", "--sender", "b")
	require.NoError(t, err)

	out, err := runCLI("status", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Buffered int `json:"buffered"`
			GridRows int `json:"grid_rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Buffered)
	assert.Equal(t, 0, resp.Data.GridRows)

	_, err = runCLI("flush", "--config", cfg)
	require.NoError(t, err)

	out, err = runCLI("status", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 0, resp.Data.Buffered)
	assert.Equal(t, 2, resp.Data.GridRows)
}

func TestResetRequiresConfirmation(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("reset", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResetClearsGrid(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI("ingest", "--config", cfg,
		"--key", "msg-x", "--kind", "message_received", "--sender", "x")
	require.NoError(t, err)
	_, err = runCLI("flush", "--config", cfg)
	require.NoError(t, err)

	out, err := runCLI("reset", "--config", cfg, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Grid cleared")

	_, err = runCLI("get", "--config", cfg, "msg-x")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
