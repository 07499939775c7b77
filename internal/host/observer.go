package host

import (
	"github.com/roach88/hostsim/internal/phase"
)

// RecordKind distinguishes observable host output.
type RecordKind string

const (
	// RecordMessage is a world.sendMessage call that passed its guard.
	RecordMessage RecordKind = "message"

	// RecordScriptEvent is a dispatched system.sendScriptEvent.
	RecordScriptEvent RecordKind = "script_event"

	// RecordPhase is a phase transition; Body is "from->to".
	RecordPhase RecordKind = "phase"

	// RecordTimer is a timer callback firing; Channel is the handle.
	RecordTimer RecordKind = "timer"
)

// Record is one unit of observable output from an Environment.
type Record struct {
	Seq     int64 // per-environment, strictly increasing
	Env     string
	Kind    RecordKind
	Phase   phase.Phase // phase the record was produced in
	Tick    int64
	Channel string
	Body    string
}

// Observer receives records synchronously as they are produced. Observers
// must not fail the host operation; they log their own errors.
type Observer interface {
	Observe(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

// Observe calls f(r).
func (f ObserverFunc) Observe(r Record) { f(r) }

// Recorder is an Observer that keeps every record in memory.
type Recorder struct {
	records []Record
}

// Observe appends r.
func (r *Recorder) Observe(rec Record) {
	r.records = append(r.records, rec)
}

// Records returns the recorded records, optionally filtered by kind.
func (r *Recorder) Records(kinds ...RecordKind) []Record {
	if len(kinds) == 0 {
		out := make([]Record, len(r.records))
		copy(out, r.records)
		return out
	}
	var out []Record
	for _, rec := range r.records {
		for _, k := range kinds {
			if rec.Kind == k {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// Reset discards all records.
func (r *Recorder) Reset() {
	r.records = nil
}
