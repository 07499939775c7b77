package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/journal"
)

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	clearEnv(t)

	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	clearEnv(t)

	stdout, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found.")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	clearEnv(t)

	stdout, _, err := execute(t, "test", "--format", "json", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.NotNil(t, resp.Data.Scenarios)
}

func TestTestCommandPassAndFail(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "a_greets.yaml", passingScenario)
	writeFile(t, dir, "b_wrong_phase.yaml", failingScenario)

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✓ greets")
	assert.Contains(t, stdout, "✗ wrong_phase")
	assert.Contains(t, stdout, "expected error privilege, got none")
	assert.Contains(t, stdout, "1 passed, 1 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "a_greets.yaml", passingScenario)
	writeFile(t, dir, "b_wrong_phase.yaml", failingScenario)

	stdout, _, err := execute(t, "test", "--format", "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "greets", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
	assert.Equal(t, "greets", resp.Data.Scenarios[0].Env, "session ID defaults to the scenario name")
	assert.False(t, resp.Data.Scenarios[1].Pass)
}

func TestTestCommandLoadError(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "broken.yaml", "name: broken\nsteps: [\n")

	stdout, _, err := execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ broken.yaml")
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestTestCommandFilter(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "greets.yaml", passingScenario)
	writeFile(t, dir, "wrong_phase.yaml", failingScenario)

	stdout, _, err := execute(t, "test", "--filter", "gree*", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, stdout, "wrong_phase")
}

func TestFilterScenarioFiles(t *testing.T) {
	files := []string{"a/timer-one.yaml", "a/timer-two.yml", "b/payload.yaml"}

	got, err := filterScenarioFiles(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)

	got, err = filterScenarioFiles(files, "timer-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/timer-one.yaml", "a/timer-two.yml"}, got)

	_, err = filterScenarioFiles(files, "[")
	assert.Error(t, err)
}

func TestTestCommandEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_PHASE_CHECKS", "false")
	dir := t.TempDir()
	// With checks off the early send is accepted, so expecting none passes.
	writeFile(t, dir, "unchecked.yaml", `name: unchecked
description: guards are off via the environment
initial_phase: early
steps:
  - send_message: "early"
    expect_error: none
`)

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "✓ unchecked")
}

func TestTestCommandScenarioOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_PHASE_CHECKS", "false")
	dir := t.TempDir()
	writeFile(t, dir, "checked.yaml", `name: checked
description: the scenario turns guards back on
phase_checks: true
initial_phase: early
steps:
  - send_message: "early"
    expect_error: privilege
`)

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "✓ checked")
}

func TestTestCommandPolicyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_GUARD_POLICY", "legacy")
	dir := t.TempDir()
	writeFile(t, dir, "legacy_timer.yaml", `name: legacy_timer
description: legacy forbids timers in read-only
initial_phase: read
steps:
  - run: {handler: t}
    expect_error: privilege
`)

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "✓ legacy_timer")
}

func TestTestCommandJournal(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "timer.yaml", timerScenario)
	db := filepath.Join(dir, "run.db")

	stdout, _, err := execute(t, "test", "--journal", db, "--format", "json", dir)
	require.NoError(t, err, stdout)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	envID := resp.Data.Scenarios[0].Env
	assert.NotEqual(t, "timer_then_message", envID, "journaled runs get a UUID session")

	st, err := journal.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, envID)
	require.NoError(t, err)
	assert.Equal(t, "timer_then_message", sess.Name)
	assert.Equal(t, "default", sess.Policy)

	msgs, err := st.ReadRecords(ctx, envID, host.RecordMessage)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "from timer", msgs[0].Body)
	assert.Equal(t, int64(1), msgs[0].Tick)

	timers, err := st.ReadRecords(ctx, envID, host.RecordTimer)
	require.NoError(t, err)
	assert.Len(t, timers, 1)
}

func TestTestCommandJournalFromEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "greets.yaml", passingScenario)
	db := filepath.Join(dir, "env.db")
	t.Setenv("MC_JOURNAL", db)

	_, _, err := execute(t, "test", dir)
	require.NoError(t, err)

	st, err := journal.Open(db)
	require.NoError(t, err)
	defer st.Close()
	sessions, err := st.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "greets", sessions[0].Name)
}
