package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostsim/internal/phase"
)

func TestLoad_OverridesBase(t *testing.T) {
	src := `
name: "strict-timers"
guards: {
	startTimer: ["init", "early", "read"]
}
`
	table, err := Load("strict.cue", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "strict-timers", table.Name())
	assert.Equal(t,
		[]phase.Phase{phase.Init, phase.EarlyExecution, phase.ReadOnly},
		table.Forbidden(OpStartTimer))
	assert.Equal(t, Default().Forbidden(OpSendMessage), table.Forbidden(OpSendMessage),
		"unlisted operations keep the base rules")
}

func TestLoad_LegacyBase(t *testing.T) {
	table, err := Load("old.cue", []byte(`base: "legacy"`))
	require.NoError(t, err)
	assert.Equal(t, "old", table.Name(), "name defaults to the file stem")
	assert.True(t, table.Equal(Legacy()))
}

func TestLoad_EmptyListAllowsEverywhere(t *testing.T) {
	table, err := Load("open.cue", []byte(`guards: sendMessage: []`))
	require.NoError(t, err)
	for _, p := range phase.All {
		assert.False(t, table.Forbids(OpSendMessage, p))
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"syntax", `guards: {`, ErrCodeSyntax},
		{"unknown operation", `guards: teleport: ["init"]`, ErrCodeSchema},
		{"unknown phase", `guards: subscribe: ["tick"]`, ErrCodeSchema},
		{"bad base", `base: "modern"`, ErrCodeSchema},
		{"not a list", `guards: subscribe: "init"`, ErrCodeSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad.cue", []byte(tt.src))
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code, le.Error())
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.cue")
	require.NoError(t, os.WriteFile(path, []byte(`guards: sendScriptEvent: ["init"]`), 0o644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "profile", table.Name())
	assert.False(t, table.Forbids(OpSendScriptEvent, phase.EarlyExecution))
	assert.True(t, table.Forbids(OpSendScriptEvent, phase.Init))
}
