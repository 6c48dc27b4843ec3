package trace

import (
	"github.com/MateoLopez004/Gobackup/resolver"
	"github.com/MateoLopez004/Gobackup/types"
)

// Step is one replayed tick.
type Step struct {
	Record Record
	// Phase is the poll memory after this tick.
	Phase types.Phase
	// Replayed is the resolver's verdict today; zero for ticks without a
	// snapshot.
	Replayed types.Resolution
	// Drift is set when Replayed disagrees with the recorded verdict or path.
	Drift bool
}

// Replay re-runs the resolver over recorded snapshots with a fresh poll
// memory, as a new trigger cycle would.
func Replay(records []Record) []Step {
	var mem types.PollMemory
	steps := make([]Step, 0, len(records))
	for _, rec := range records {
		st := Step{Record: rec}
		if rec.Snapshot != nil {
			st.Replayed = resolver.Resolve(*rec.Snapshot, &mem)
			st.Drift = rec.Verdict != "" &&
				(st.Replayed.Verdict != rec.Verdict || st.Replayed.Path != rec.Path)
		}
		st.Phase = mem.Phase
		steps = append(steps, st)
	}
	return steps
}

// Completion returns the first step that resolved to Completed, or nil.
func Completion(steps []Step) *Step {
	for i := range steps {
		if steps[i].Replayed.Verdict == types.VerdictCompleted {
			return &steps[i]
		}
	}
	return nil
}
