package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden traces for the scenarios under testdata/scenarios. To regenerate:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{
		"startup_and_timer",
		"before_event_read_only",
		"payload_limit",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_OmitsEmptyFields(t *testing.T) {
	result := &Result{
		FinalPhase: "normal",
		Trace: []TraceEvent{
			{Seq: 1, Type: EventTimer, Label: "t", Phase: "normal"},
		},
	}

	data, err := MarshalSnapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"final_phase":"normal","scenario_name":"tiny","trace":[{"label":"t","phase":"normal","seq":1,"type":"timer"}]}`,
		string(data))
}

func TestMarshalSnapshot_EmptyTrace(t *testing.T) {
	data, err := MarshalSnapshot("empty", &Result{FinalPhase: "init", Trace: []TraceEvent{}})
	require.NoError(t, err)
	assert.Equal(t, `{"final_phase":"init","scenario_name":"empty","trace":[]}`, string(data))
}
