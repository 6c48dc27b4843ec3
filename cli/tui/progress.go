package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MateoLopez004/Gobackup/runtime"
	"github.com/MateoLopez004/Gobackup/types"
)

// maxWarnings caps the warning lines kept on screen.
const maxWarnings = 5

// EventMsg carries an orchestrator event into the progress model.
type EventMsg runtime.Event

// RunModel is a Bubble Tea model showing live progress of gobackup run.
type RunModel struct {
	sessionID     string
	status        types.SessionStatus
	uploaded      int
	failed        int
	attempt       int
	percent       int
	snapshot      *types.StatusSnapshot
	path          types.CompletionPath
	warnings      []string
	transportErrs int
	artifact      *types.ArtifactInfo
	location      string
	finished      bool
	err           error

	bar      progress.Model
	onQuit   func()
	quitting bool
}

// NewRunModel creates a progress model. onQuit, if set, is called when the
// user presses q or ctrl+c.
func NewRunModel(onQuit func()) RunModel {
	return RunModel{
		status: types.StatusIdle,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		onQuit: onQuit,
	}
}

// Init implements tea.Model.
func (m RunModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case EventMsg:
		m = m.apply(runtime.Event(msg))
		if m.finished {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m RunModel) apply(ev runtime.Event) RunModel {
	if ev.SessionID != "" {
		m.sessionID = ev.SessionID
	}
	switch ev.Kind {
	case runtime.EventSessionBound:
		m.status = types.StatusUploadsReady
	case runtime.EventFileUploaded:
		if ev.File != nil && ev.File.Succeeded() {
			m.uploaded++
		} else {
			m.failed++
		}
	case runtime.EventTriggered:
		m.status = types.StatusPolling
		m.attempt, m.percent, m.snapshot, m.path = 0, 0, nil, types.PathNone
		m.warnings, m.transportErrs = nil, 0
		m.artifact, m.location, m.finished, m.err = nil, "", false, nil
	case runtime.EventProgress, runtime.EventCompleted:
		m.attempt = ev.Attempt
		m.snapshot = ev.Snapshot
		if ev.Resolution != nil {
			m.percent = ev.Resolution.Percent
			m.path = ev.Resolution.Path
		}
		if ev.Kind == runtime.EventCompleted {
			m.status = types.StatusCompleted
			m.percent = 100
		}
	case runtime.EventWarning:
		m.warnings = append(m.warnings, ev.Warning)
		if len(m.warnings) > maxWarnings {
			m.warnings = m.warnings[len(m.warnings)-maxWarnings:]
		}
	case runtime.EventTransportError:
		m.attempt = ev.Attempt
		m.transportErrs++
	case runtime.EventRetrieved:
		m.status = types.StatusDone
		m.artifact = ev.Artifact
	case runtime.EventDelivered:
		if ev.Delivery != nil {
			m.location = ev.Delivery.Location
			if ev.Delivery.Err != nil {
				m.err = ev.Delivery.Err
			}
		}
	case runtime.EventFinished:
		m.status = ev.Status
		m.finished = true
		if ev.Err != nil {
			m.err = ev.Err
		}
	case runtime.EventReset:
		m = NewRunModel(m.onQuit)
	}
	return m
}

// View implements tea.Model.
func (m RunModel) View() string {
	if m.quitting && !m.finished {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("gobackup run"))
	b.WriteString("\n")

	b.WriteString(m.field("Session", orDash(m.sessionID)))
	b.WriteString(m.field("Status", StateStyle(string(m.status)).Render(string(m.status))))
	files := fmt.Sprintf("%d uploaded", m.uploaded)
	if m.failed > 0 {
		files += ErrorStyle.Render(fmt.Sprintf(", %d failed", m.failed))
	}
	b.WriteString(m.field("Files", files))

	if m.attempt > 0 || m.status == types.StatusPolling {
		b.WriteString("\n")
		b.WriteString(BarLabelStyle.Render(fmt.Sprintf("%3d%% ", m.percent)))
		b.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
		b.WriteString("\n")
		detail := fmt.Sprintf("attempt %d", m.attempt)
		if m.snapshot != nil {
			detail += fmt.Sprintf(", %d/%d files copied", m.snapshot.FilesCopied, m.snapshot.TotalFiles)
		}
		if m.transportErrs > 0 {
			detail += fmt.Sprintf(", %d transport errors", m.transportErrs)
		}
		b.WriteString(HelpStyle.UnsetMarginTop().Render(detail))
		b.WriteString("\n")
	}

	if m.path == types.PathFallback {
		b.WriteString(WarningStyle.Render("completion inferred from the job stopping"))
		b.WriteString("\n")
	}
	for _, w := range m.warnings {
		b.WriteString(WarningStyle.Render("! " + w))
		b.WriteString("\n")
	}

	if m.artifact != nil {
		b.WriteString("\n")
		b.WriteString(m.field("Archive", fmt.Sprintf("%s (%s)", m.artifact.Filename, m.artifact.SizeMB)))
	}
	if m.location != "" {
		b.WriteString(m.field("Delivered", m.location))
	}
	if m.err != nil {
		b.WriteString(ErrorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	if !m.finished {
		b.WriteString(HelpStyle.Render("Press q or Ctrl+C to cancel"))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(b.String()) + "\n"
}

func (m RunModel) field(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value) + "\n"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RunProgress drives a RunModel from orchestrator events.
type RunProgress struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

// StartRunProgress starts the progress view on out. Signals are left to
// the caller; q and ctrl+c call onQuit.
func StartRunProgress(out io.Writer, onQuit func()) *RunProgress {
	rp := &RunProgress{done: make(chan struct{})}
	rp.program = tea.NewProgram(NewRunModel(onQuit),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	)
	go func() {
		defer close(rp.done)
		_, rp.err = rp.program.Run()
	}()
	return rp
}

// Observe forwards an event to the view. It is safe to use as a
// runtime.Observer.
func (rp *RunProgress) Observe(ev runtime.Event) {
	rp.program.Send(EventMsg(ev))
}

// Stop quits the view and waits for the terminal to be restored.
func (rp *RunProgress) Stop() error {
	rp.program.Quit()
	<-rp.done
	return rp.err
}
