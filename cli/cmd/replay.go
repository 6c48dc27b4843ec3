package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/cli/render"
	"github.com/MateoLopez004/Gobackup/trace"
	"github.com/MateoLopez004/Gobackup/types"
)

// ReplayRow is one replayed poll tick.
type ReplayRow struct {
	Seq        int64                `json:"seq" yaml:"seq"`
	Attempt    int                  `json:"attempt" yaml:"attempt"`
	InProgress *bool                `json:"in_progress,omitempty" yaml:"in_progress,omitempty"`
	Copied     int                  `json:"copied" yaml:"copied"`
	Total      int                  `json:"total" yaml:"total"`
	Recorded   types.Verdict        `json:"recorded" yaml:"recorded"`
	Replayed   types.Verdict        `json:"replayed" yaml:"replayed"`
	Path       types.CompletionPath `json:"path" yaml:"path"`
	Phase      string               `json:"phase" yaml:"phase"`
	Note       string               `json:"note" yaml:"note"`
}

// ReplayResponse is the replay command's output.
type ReplayResponse struct {
	SessionID string `json:"session_id" yaml:"session_id"`
	Server    string `json:"server,omitempty" yaml:"server,omitempty"`
	Ticks     int    `json:"ticks" yaml:"ticks"`
	// CompletedAt is the attempt that resolved to Completed (0 if none).
	CompletedAt    int                  `json:"completed_at" yaml:"completed_at"`
	CompletionPath types.CompletionPath `json:"completion_path,omitempty" yaml:"completion_path,omitempty"`
	Drift          int                  `json:"drift" yaml:"drift"`
	Steps          []ReplayRow          `json:"steps" yaml:"steps"`
}

// ReplayCommand returns the replay command, which re-runs completion
// resolution over a trace written by run --trace.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Explain how completion was decided from a recorded trace",
		ArgsUsage: "<trace-file>",
		Flags:     ReadOnlyFlags(),
		Action:    replayAction,
	}
}

func replayAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for replay command", 1)
	}
	if c.NArg() != 1 {
		return cli.Exit("replay requires exactly one trace file", 1)
	}

	tr, err := trace.Open(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("replay: %v", err), 1)
	}

	resp := BuildReplayResponse(tr)
	if r.Format() == render.FormatTable {
		return r.Render(resp.Steps)
	}
	return r.Render(resp)
}

// BuildReplayResponse replays a trace's records.
func BuildReplayResponse(tr *trace.Trace) ReplayResponse {
	steps := trace.Replay(tr.Records)
	resp := ReplayResponse{
		SessionID: tr.Header.SessionID,
		Server:    tr.Header.Server,
		Ticks:     len(steps),
		Steps:     make([]ReplayRow, 0, len(steps)),
	}
	if done := trace.Completion(steps); done != nil {
		resp.CompletedAt = done.Record.Attempt
		resp.CompletionPath = done.Replayed.Path
	}

	for _, st := range steps {
		row := ReplayRow{
			Seq:      st.Record.Seq,
			Attempt:  st.Record.Attempt,
			Recorded: st.Record.Verdict,
			Replayed: st.Replayed.Verdict,
			Path:     st.Replayed.Path,
			Phase:    st.Phase.String(),
		}
		switch {
		case st.Record.TimedOut:
			row.Note = "timed out"
		case st.Record.TransportError != "":
			row.Note = "transport error: " + st.Record.TransportError
		case st.Drift:
			row.Note = "drift"
			resp.Drift++
		}
		if s := st.Record.Snapshot; s != nil {
			inProgress := s.InProgress
			row.InProgress = &inProgress
			row.Copied = s.FilesCopied
			row.Total = s.TotalFiles
		}
		resp.Steps = append(resp.Steps, row)
	}
	return resp
}
