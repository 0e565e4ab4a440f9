package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/nodeagent/internal/job"
)

func renderJob(snap job.Snapshot, theme Theme, width int) string {
	innerWidth := width - 4
	title := theme.Title.Render("JOB")

	if snap.State == "" || snap.State == job.StateIdle {
		return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			theme.Dim.Render("  Idle"),
		))
	}

	id := snap.ID
	if len(id) > 8 {
		id = id[:8]
	}

	lines := []string{
		title,
		fmt.Sprintf("  %s  [%s]  pid %d", stateLabel(snap, theme), id, snap.PID),
		"  " + theme.Highlight.Render(truncate(snap.Command, innerWidth-6)),
	}

	if snap.StartedAt != nil {
		end := time.Now()
		if snap.ExitedAt != nil {
			end = *snap.ExitedAt
		}
		runtime := formatDuration(end.Sub(*snap.StartedAt).Round(time.Second))
		lines = append(lines, theme.Dim.Render(fmt.Sprintf("  started %s  ran %s",
			snap.StartedAt.Local().Format("15:04:05"), runtime)))
	}

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func stateLabel(snap job.Snapshot, theme Theme) string {
	switch snap.State {
	case job.StateRunning:
		return theme.StatusRunning.Render("RUNNING")
	case job.StateCompleted:
		switch {
		case snap.ExitCode == nil:
			return theme.StatusFailed.Render("EXITED ?")
		case *snap.ExitCode == 0:
			return theme.StatusOK.Render("EXITED 0")
		case *snap.ExitCode < 0:
			return theme.StatusFailed.Render("KILLED")
		}
		return theme.StatusFailed.Render(fmt.Sprintf("EXITED %d", *snap.ExitCode))
	}
	return theme.StatusIdle.Render(string(snap.State))
}

func truncate(s string, n int) string {
	if n < 4 || lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) > n-3 {
		r = r[:n-3]
	}
	return string(r) + "..."
}
