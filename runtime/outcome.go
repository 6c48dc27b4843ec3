package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/MateoLopez004/Gobackup/types"
)

// Exit codes of the run command.
const (
	ExitCodeDone        = 0   // archive retrieved
	ExitCodeFailed      = 1   // nothing uploaded or trigger failed
	ExitCodeTimedOut    = 2   // polling reached its attempt ceiling
	ExitCodeRetrieval   = 3   // metadata fetch or delivery failed
	ExitCodeInterrupted = 130 // canceled by signal
)

// Outcome is the process-level result of a run.
type Outcome struct {
	ExitCode int
	Message  string
}

// DetermineOutcome maps a cycle result, or the error that prevented one,
// to an exit code.
//
// Exit code mapping:
//   - 0: Done with a successful delivery
//   - 1: upload or trigger failure
//   - 2: TimedOut
//   - 3: Failed on metadata, or Done with a failed delivery
//   - 130: interrupted
func DetermineOutcome(res *CycleResult, err error) Outcome {
	if errors.Is(err, context.Canceled) {
		return Outcome{ExitCode: ExitCodeInterrupted, Message: "interrupted"}
	}
	if err != nil {
		return Outcome{ExitCode: ExitCodeFailed, Message: err.Error()}
	}
	if res == nil {
		return Outcome{ExitCode: ExitCodeFailed, Message: "no trigger cycle ran"}
	}
	if res.Abandoned {
		return Outcome{ExitCode: ExitCodeInterrupted, Message: "trigger cycle abandoned before completion"}
	}

	switch res.Status {
	case types.StatusDone:
		if res.Err != nil {
			return Outcome{ExitCode: ExitCodeRetrieval, Message: res.Err.Error()}
		}
		msg := "backup retrieved"
		if res.Path == types.PathFallback {
			msg = "backup retrieved (completion inferred from the job stopping)"
		}
		return Outcome{ExitCode: ExitCodeDone, Message: msg}

	case types.StatusTimedOut:
		return Outcome{ExitCode: ExitCodeTimedOut, Message: errMessage(res.Err, "polling timed out")}

	case types.StatusFailed:
		if errors.Is(res.Err, types.ErrMetadata) {
			return Outcome{ExitCode: ExitCodeRetrieval, Message: res.Err.Error()}
		}
		return Outcome{ExitCode: ExitCodeFailed, Message: errMessage(res.Err, "backup failed")}

	default:
		return Outcome{ExitCode: ExitCodeFailed, Message: fmt.Sprintf("cycle ended in unexpected status %q", res.Status)}
	}
}

func errMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
