package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ok.yaml", `
name: script_event_roundtrip
description: "a script event reaches its subscriber"
initial_phase: normal
steps:
  - subscribe: system.afterEvents.scriptEventReceive
    handler: listener
    do:
      - send_message: "got it"
  - send_script_event:
      id: "ns:ping"
      message: "hello"
assertions:
  - type: trace_count
    event: {type: handler, label: listener}
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "script_event_roundtrip", scenario.Name)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, OpSubscribe, scenario.Steps[0].Op())
	assert.Equal(t, "listener", scenario.Steps[0].Handler)
	require.Len(t, scenario.Steps[0].Do, 1)
	assert.Equal(t, "got it", *scenario.Steps[0].Do[0].SendMessage)
	assert.Equal(t, OpSendScriptEvent, scenario.Steps[1].Op())
	assert.Equal(t, "hello", scenario.Steps[1].SendScriptEvent.Text())
}

func TestLoadScenario_ResolvesProfileRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nested/profile.yaml", `
name: custom_profile
description: "uses a cue profile next to the scenario"
policy: strict.cue
steps:
  - drain: true
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "strict.cue"), scenario.Policy)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_UnknownFieldRejected(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "assertion instead of assertions"
steps:
  - drain: true
assertion: []
`))
	assert.ErrorContains(t, err, "failed to parse YAML")
	assert.NotErrorIs(t, err, ErrInvalidScenario)
}

func TestParseScenario_InvalidWrapsSentinel(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: empty
description: no steps
steps: []
`))
	require.ErrorIs(t, err, ErrInvalidScenario)
	assert.EqualError(t, err, "invalid scenario: steps list is required and must be non-empty")
}

func TestScriptEventStep_Repeat(t *testing.T) {
	s := &ScriptEventStep{ID: "a", Message: "ab", Repeat: 3}
	assert.Equal(t, "ababab", s.Text())

	s.Repeat = 0
	assert.Equal(t, "ab", s.Text())
}

func TestValidate_RepeatBounded(t *testing.T) {
	base := "name: n\ndescription: d\nsteps:\n  - send_script_event: {id: demo, message: %s, repeat: %d}\n"

	_, err := ParseScenario([]byte(fmt.Sprintf(base, "xy", MaxRepeatedMessageBytes/2)))
	require.NoError(t, err)

	_, err = ParseScenario([]byte(fmt.Sprintf(base, "xy", MaxRepeatedMessageBytes/2+1)))
	require.Error(t, err)
	assert.ErrorContains(t, err, "steps[0]: repeated message exceeds 8192 bytes")

	_, err = ParseScenario([]byte(fmt.Sprintf(base, "x", 10000000000)))
	assert.ErrorContains(t, err, "repeated message exceeds")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{drain: true}]",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps: [{drain: true}]",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\nsteps: []",
			want: "steps list is required",
		},
		{
			name: "bad policy",
			yaml: "name: n\ndescription: d\npolicy: strict\nsteps: [{drain: true}]",
			want: `policy "strict"`,
		},
		{
			name: "bad initial phase",
			yaml: "name: n\ndescription: d\ninitial_phase: tick\nsteps: [{drain: true}]",
			want: "initial_phase",
		},
		{
			name: "empty step",
			yaml: "name: n\ndescription: d\nsteps: [{expect_error: none}]",
			want: "steps[0]: no operation",
		},
		{
			name: "two operations",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true, advance: 2}]",
			want: "exactly one operation allowed, got drain, advance",
		},
		{
			name: "bad expect_error",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true, expect_error: boom}]",
			want: `expect_error "boom"`,
		},
		{
			name: "handler without subscribe",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true, handler: h}]",
			want: "only valid with subscribe",
		},
		{
			name: "payload without trigger",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true, payload: {a: 1}}]",
			want: "only valid with trigger",
		},
		{
			name: "bad phase",
			yaml: "name: n\ndescription: d\nsteps: [{set_phase: sleeping}]",
			want: "unknown phase",
		},
		{
			name: "negative advance",
			yaml: "name: n\ndescription: d\nsteps: [{advance: -1}]",
			want: "advance must be positive",
		},
		{
			name: "bad signal path",
			yaml: "name: n\ndescription: d\nsteps: [{subscribe: world.itemUse, handler: h}]",
			want: "invalid signal path",
		},
		{
			name: "subscribe without label",
			yaml: "name: n\ndescription: d\nsteps: [{subscribe: world.afterEvents.x}]",
			want: "requires a handler label",
		},
		{
			name: "bad trigger path",
			yaml: "name: n\ndescription: d\nsteps: [{trigger: elsewhere.afterEvents.x}]",
			want: "unknown namespace",
		},
		{
			name: "script event without id",
			yaml: "name: n\ndescription: d\nsteps: [{send_script_event: {message: m}}]",
			want: "requires an id",
		},
		{
			name: "timer without label",
			yaml: "name: n\ndescription: d\nsteps: [{run_timeout: {ticks: 3}}]",
			want: "run_timeout requires a handler label",
		},
		{
			name: "top-level fail",
			yaml: "name: n\ndescription: d\nsteps: [{fail: boom}]",
			want: "fail is only valid inside",
		},
		{
			name: "nested step invalid",
			yaml: "name: n\ndescription: d\nsteps: [{subscribe: world.afterEvents.x, handler: h, do: [{set_phase: x}]}]",
			want: "steps[0].do[0]",
		},
		{
			name: "nested timer step invalid",
			yaml: "name: n\ndescription: d\nsteps: [{run: {handler: t, do: [{drain: true, advance: 1}]}}]",
			want: "steps[0].run.do[0]",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true}]\nassertions: [{type: final_state}]",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "contains without event",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true}]\nassertions: [{type: trace_contains}]",
			want: "event is required",
		},
		{
			name: "order without events",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true}]\nassertions: [{type: trace_order}]",
			want: "events list is required",
		},
		{
			name: "bad final phase",
			yaml: "name: n\ndescription: d\nsteps: [{drain: true}]\nassertions: [{type: final_phase}]",
			want: "unknown phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_FailInsideHandlers(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: failing
description: "fail is allowed in handlers and timers"
steps:
  - subscribe: world.afterEvents.x
    handler: h
    do:
      - fail: "boom"
  - run_interval:
      handler: t
      ticks: 2
      do:
        - fail: "tick failed"
`))
	assert.NoError(t, err)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "x")
	writeFile(t, dir, "a.yml", "x")
	writeFile(t, dir, "sub/c.yaml", "x")
	writeFile(t, dir, "notes.txt", "x")
	explicit := writeFile(t, t.TempDir(), "explicit.scenario", "x")

	files, err := Discover([]string{dir, explicit})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
		explicit,
	}, files)
}

func TestDiscover_Missing(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "gone")})
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Error(), "does not exist")
}
