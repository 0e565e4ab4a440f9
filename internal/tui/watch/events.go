package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/nodeagent/internal/events"
)

// maxEventRows is how many events the stream panel shows.
const maxEventRows = 6

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENTS"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= maxEventRows {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENTS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.JobStarted:
		typeStyle = theme.StatusRunning
	case events.JobInterrupted:
		typeStyle = theme.StatusFailed
	case events.JobExited:
		typeStyle = theme.StatusOK
		if code, ok := eventFields(e)["exit_code"].(float64); ok && code != 0 {
			typeStyle = theme.StatusFailed
		}
	case events.WorkspaceCleared, events.WorkspaceDeployed:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-20s", e.Type)), describeEvent(e))
}

func eventFields(e events.Event) map[string]any {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)
	return data
}

func describeEvent(e events.Event) string {
	data := eventFields(e)

	var parts []string
	if jobID, ok := data["job_id"].(string); ok {
		if len(jobID) > 8 {
			jobID = jobID[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", jobID))
	}
	if cmd, ok := data["cmd"].(string); ok {
		parts = append(parts, cmd)
	}
	if code, ok := data["exit_code"].(float64); ok {
		parts = append(parts, fmt.Sprintf("exit=%d", int(code)))
	}
	if files, ok := data["files"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d files", int(files)))
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if raw == "{}" || raw == "null" {
			return ""
		}
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
