package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDefaultTable(t *testing.T) {
	clearEnv(t)

	stdout, _, err := execute(t, "policy")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Guard profile: default")
	assert.Regexp(t, `OPERATION\s+INIT\s+EARLY\s+NORMAL\s+READ`, stdout)
	assert.Regexp(t, `sendMessage\s+forbidden\s+forbidden\s+allowed\s+forbidden`, stdout)
	assert.Regexp(t, `sendScriptEvent\s+forbidden\s+forbidden\s+allowed\s+allowed`, stdout)
	assert.Regexp(t, `subscribe\s+forbidden\s+allowed\s+allowed\s+allowed`, stdout)
	assert.Regexp(t, `startTimer\s+forbidden\s+allowed\s+allowed\s+allowed`, stdout)
}

func TestPolicyLegacyJSON(t *testing.T) {
	clearEnv(t)

	stdout, _, err := execute(t, "policy", "--profile", "legacy", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   PolicyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "legacy", resp.Data.Profile)
	assert.Equal(t, []string{"init", "early", "normal", "read"}, resp.Data.Phases)

	rows := map[string]map[string]bool{}
	for _, r := range resp.Data.Rows {
		rows[r.Operation] = r.Allowed
	}
	assert.Equal(t, map[string]bool{"init": false, "early": true, "normal": true, "read": false}, rows["startTimer"])
	assert.Len(t, rows, 5)
}

func TestPolicyFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "strict-timers.cue", `guards: startTimer: ["init", "early", "read"]`)
	t.Setenv("MC_GUARD_POLICY", path)

	stdout, _, err := execute(t, "policy")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Guard profile: strict-timers")
	assert.Regexp(t, `startTimer\s+forbidden\s+forbidden\s+allowed\s+forbidden`, stdout)
}

func TestPolicyFlagOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_GUARD_POLICY", "legacy")

	stdout, _, err := execute(t, "policy", "--profile", "default")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Guard profile: default")
}

func TestPolicyBadProfile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "bad.cue", `guards: {`)

	stdout, _, err := execute(t, "policy", "--profile", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E202]")
}
