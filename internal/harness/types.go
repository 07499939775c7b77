package harness

// Trace event types.
const (
	EventHandler     = "handler"
	EventTimer       = "timer"
	EventMessage     = "message"
	EventScriptEvent = "script_event"
	EventError       = "error"
)

// TraceEvent is one observable occurrence during a scenario run.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`  // handler label, channel id, or failing op
	Signal string `json:"signal,omitempty"` // signal path for handler events
	Phase  string `json:"phase"`            // phase at the time of the event
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: no step expectation and no
	// assertion failed.
	Pass bool `json:"pass"`

	// Env is the session ID of the environment the scenario ran in.
	Env string `json:"env"`

	// Trace contains every event in order.
	Trace []TraceEvent `json:"trace"`

	// FinalPhase is the phase after the last step.
	FinalPhase string `json:"final_phase"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends ev with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
