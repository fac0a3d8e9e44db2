package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against a shared temp database and
// returns the captured stdout.
func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestOrderLifecycleEndToEnd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := runCLI(t, dbPath, "order", "create", "ord-1",
		"--user", "user-1", "--payload", `{"product_type":"song"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "ord-1 registered")

	out, err = runCLI(t, dbPath, "transition", "ord-1", "collecting_facts")
	require.NoError(t, err)
	assert.Contains(t, out, "moved to collecting_facts")

	out, err = runCLI(t, dbPath, "inspect", "timers", "ord-1")
	require.NoError(t, err)
	assert.Contains(t, out, "step=collecting_facts")
	assert.Contains(t, out, "product=song")

	out, err = runCLI(t, dbPath, "inspect", "history", "ord-1")
	require.NoError(t, err)
	assert.Contains(t, out, "new -> collecting_facts")
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	_, err := runCLI(t, dbPath, "transition", "ord-1", "shipped_to_mars")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTransitionMissingOrderFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	_, err := runCLI(t, dbPath, "transition", "missing", "paid")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOrderCreateRejectsInvalidPayload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	_, err := runCLI(t, dbPath, "order", "create", "ord-1",
		"--user", "user-1", "--payload", "{not json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTemplatesLoadAndList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	seedPath := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
templates:
  - step: song_collecting_facts
    delay_minutes: 60
    tag: facts_reminder
    body: "any news?"
`), 0o644))

	out, err := runCLI(t, dbPath, "templates", "load", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 1 templates")

	out, err = runCLI(t, dbPath, "templates", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "song_collecting_facts")
	assert.Contains(t, out, "facts_reminder")
}

func TestTemplatesLoadRejectsBadFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	seedPath := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
templates:
  - step: not_a_step
    tag: facts_reminder
    body: "x"
`), 0o644))

	_, err := runCLI(t, dbPath, "templates", "load", seedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEnqueueDirectTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := runCLI(t, dbPath, "enqueue", "ord-1", "user-1", "text", `{"text":"hi"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued for user user-1")

	out, err = runCLI(t, dbPath, "inspect", "outbox", "ord-1")
	require.NoError(t, err)
	assert.Contains(t, out, "kind=text")
	assert.Contains(t, out, "retries=0/4")
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	_, err := runCLI(t, dbPath, "enqueue", "ord-1", "user-1", "smoke_signal", `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInspectUnknownSubject(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	_, err := runCLI(t, dbPath, "inspect", "teapots", "ord-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown subject")
}

func TestInspectJSONFormat(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	_, err := runCLI(t, dbPath, "order", "create", "ord-1",
		"--user", "user-1", "--payload", `{"product_type":"book"}`)
	require.NoError(t, err)

	out, err := runCLI(t, dbPath, "--format", "json", "inspect", "timers", "ord-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)
}
