package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/journal"
)

const timersScript = `system.run(() => world.sendMessage("hello from tick " + system.currentTick));
system.runTimeout(() => system.sendScriptEvent("demo:done", "ok"), 2);
`

func TestRunCommandText(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "main.js", timersScript)

	stdout, _, err := execute(t, "run", path, "--ticks", "3")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "[tick 1] message: hello from tick 1\n")
	assert.Contains(t, stdout, "[tick 2] script_event demo:done: ok\n")
	assert.Contains(t, stdout, "Script finished at tick 3 (normal phase)")
}

func TestRunCommandJSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "main.js", timersScript)

	stdout, _, err := execute(t, "run", path, "--ticks", "2", "--format", "json")
	require.NoError(t, err, stdout)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Data.Tick)
	assert.Equal(t, []RunOutput{
		{Kind: "message", Phase: "normal", Tick: 1, Body: "hello from tick 1"},
		{Kind: "script_event", Phase: "normal", Tick: 2, Channel: "demo:done", Body: "ok"},
	}, resp.Data.Output)
}

func TestRunCommandScriptFails(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "main.js", `world.sendMessage("too early");`)

	stdout, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, host.IsPrivilegeError(err))
	assert.Contains(t, stdout, "Script failed:")
	assert.Contains(t, stdout, "sendMessage at main.js:1")
	assert.Contains(t, stdout, "EARLY-EXECUTION phase")
}

func TestRunCommandScriptFailsJSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "main.js", `throw new Error("nope");`)

	stdout, _, err := execute(t, "run", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCRIPT_FAILED", resp.Error.Code)
	assert.Contains(t, resp.Data.Error, "nope")
}

func TestRunCommandChecksDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_PHASE_CHECKS", "false")
	path := writeFile(t, t.TempDir(), "main.js", `world.sendMessage("early");`)

	stdout, _, err := execute(t, "run", path, "--ticks", "0")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "[tick 0] message: early\n")
}

func TestRunCommandMissingScript(t *testing.T) {
	clearEnv(t)

	stdout, _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]")
}

func TestRunCommandNegativeTicks(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "main.js", "")

	_, _, err := execute(t, "run", path, "--ticks", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandBadPolicy(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_GUARD_POLICY", "nonexistent")
	path := writeFile(t, t.TempDir(), "main.js", "")

	_, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandJournal(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "main.js", timersScript)
	db := filepath.Join(dir, "run.db")

	stdout, _, err := execute(t, "run", path, "--ticks", "3", "--journal", db, "--format", "json")
	require.NoError(t, err, stdout)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))

	st, err := journal.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, resp.Data.Env)
	require.NoError(t, err)
	assert.Equal(t, "main.js", sess.Name)
	assert.Equal(t, "default", sess.Policy)

	events, err := st.ReadRecords(ctx, resp.Data.Env, host.RecordScriptEvent)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "demo:done", events[0].Channel)
	assert.Equal(t, int64(2), events[0].Tick)
}
