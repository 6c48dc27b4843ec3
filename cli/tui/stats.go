package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MateoLopez004/Gobackup/remote"
)

// historyRows caps the rows shown by the history view.
const historyRows = 15

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsSummary:
		content = m.renderSummary()
	case ViewStatsHistory:
		content = m.renderHistory()
	case ViewStatsFileTypes:
		content = m.renderFileTypes()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderSummary() string {
	data, ok := m.data.(*remote.StatsSummary)
	if !ok {
		return "Invalid data type for stats_summary"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Backup Summary"))
	b.WriteString("\n\n")

	top := []string{
		m.renderStatBox("Backups", fmt.Sprintf("%d", data.TotalBackups), accentColor),
		m.renderStatBox("Total Size", data.TotalSizeMB, sizeColor),
		m.renderStatBox("Avg Size", data.AvgSizeMB, sizeColor),
		m.renderStatBox("Avg Duration", data.AvgDuration, pendColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, top...))
	b.WriteString("\n")

	trends := []string{
		m.renderStatBox("Backups Trend", data.BackupsTrend, trendColor(data.BackupsTrend)),
		m.renderStatBox("Space Trend", data.SpaceTrend, trendColor(data.SpaceTrend)),
		m.renderStatBox("Largest", data.MaxSize, sizeColor),
		m.renderStatBox("Fastest", data.MinDuration, okColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, trends...))

	return b.String()
}

func (m StatsModel) renderHistory() string {
	data, ok := m.data.(*remote.History)
	if !ok {
		return "Invalid data type for stats_history"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Backup History"))
	b.WriteString("\n\n")

	if len(data.Backups) == 0 {
		b.WriteString(HelpStyle.UnsetMarginTop().Render("(no backups yet)"))
		return b.String()
	}

	header := fmt.Sprintf("%-20s  %-24s  %6s  %10s  %8s  %s", "TIME", "SESSION", "FILES", "SIZE", "SECONDS", "STATUS")
	b.WriteString(LabelStyle.UnsetWidth().Render(header))
	b.WriteString("\n")

	rows := data.Backups
	if len(rows) > historyRows {
		rows = rows[len(rows)-historyRows:]
	}
	for _, e := range rows {
		line := fmt.Sprintf("%-20s  %-24s  %6d  %10s  %8.1f  ",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			truncate(e.SessionID, 24),
			e.FilesCount,
			formatBytes(e.TotalSize),
			e.DurationSeconds,
		)
		b.WriteString(line)
		b.WriteString(StateStyle(e.Status).Render(e.Status))
		b.WriteString("\n")
	}
	if hidden := len(data.Backups) - len(rows); hidden > 0 {
		b.WriteString(HelpStyle.UnsetMarginTop().Render(fmt.Sprintf("... %d older entries", hidden)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m StatsModel) renderFileTypes() string {
	data, ok := m.data.(*remote.FileTypes)
	if !ok {
		return "Invalid data type for stats_filetypes"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Backed-up File Types"))
	b.WriteString("\n\n")

	if len(data.FileTypes) == 0 || data.TotalSize <= 0 {
		b.WriteString(HelpStyle.UnsetMarginTop().Render("(no data)"))
		return b.String()
	}

	bar := progress.New(progress.WithSolidFill(accentColor.Dark), progress.WithWidth(30), progress.WithoutPercentage())
	for _, ft := range data.FileTypes {
		share := float64(ft.Size) / float64(data.TotalSize)
		fmt.Fprintf(&b, "%-10s %s %5.1f%%  %s\n",
			truncate(ft.Type, 10), bar.ViewAs(share), share*100, formatBytes(ft.Size))
	}
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Total:"))
	b.WriteString(" ")
	b.WriteString(ValueStyle.Render(formatBytes(data.TotalSize)))

	return b.String()
}

func (m StatsModel) renderStatBox(label, value string, color lipgloss.TerminalColor) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	if value == "" {
		value = "-"
	}
	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// trendColor picks a color for a preformatted trend such as "+12.5%".
func trendColor(trend string) lipgloss.TerminalColor {
	switch {
	case strings.HasPrefix(trend, "+"):
		return okColor
	case strings.HasPrefix(trend, "-"):
		return badColor
	default:
		return dimColor
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
