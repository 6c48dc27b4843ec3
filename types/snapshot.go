package types

// StatusSnapshot is one reading of the service's job status.
// The service encodes field names capitalised; msgpack tags are used by traces.
type StatusSnapshot struct {
	TotalFiles  int      `json:"TotalFiles" msgpack:"total_files"`
	FilesCopied int      `json:"FilesCopied" msgpack:"files_copied"`
	Errors      []string `json:"Errors" msgpack:"errors"`
	InProgress  bool     `json:"InProgress" msgpack:"in_progress"`
}

// Verdict is the classification of a snapshot.
type Verdict string

const (
	// VerdictProgress means the job is running.
	VerdictProgress Verdict = "progress"
	// VerdictCompleted means the job finished.
	VerdictCompleted Verdict = "completed"
	// VerdictNoOp means the job has not visibly started yet.
	VerdictNoOp Verdict = "noop"
)

// CompletionPath records which rule resolved a Completed verdict.
type CompletionPath string

const (
	// PathNone is used for non-completed verdicts.
	PathNone CompletionPath = ""
	// PathPrimary means all files were reported copied.
	PathPrimary CompletionPath = "primary"
	// PathFallback means the job was seen running and then stopped,
	// without a matching copied count.
	PathFallback CompletionPath = "fallback"
)

// Phase is the client-side memory of the job's observed running state
// within one trigger cycle.
type Phase int

const (
	// PhaseNotStarted means InProgress was never observed true.
	PhaseNotStarted Phase = iota
	// PhaseRunning means InProgress is currently observed true.
	PhaseRunning
	// PhaseStopped means InProgress was observed true and later false.
	PhaseStopped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PollMemory is retained across ticks of a single trigger cycle.
// A fresh value is used for every trigger.
type PollMemory struct {
	Phase Phase
}

// ObservedRunning reports whether InProgress was ever true in this cycle.
func (m *PollMemory) ObservedRunning() bool {
	return m != nil && m.Phase != PhaseNotStarted
}

// Resolution is the result of classifying one snapshot.
type Resolution struct {
	Verdict Verdict
	// Path is set for Completed verdicts.
	Path CompletionPath
	// Percent is the copy progress in [0, 100].
	Percent int
	// Warnings are the snapshot's advisory errors.
	Warnings []string
}
