package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/nodeagent/internal/sysstat"
)

// NodeState is what the last poll learned about the node.
type NodeState struct {
	Address   string
	Connected bool
	Status    string
	Usage     *sysstat.Usage
	LastCheck time.Time
}

func renderHeader(node NodeState, ticker Ticker, activity Activity, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("ALIVE")
	if !node.Connected {
		statusText = theme.StatusFailed.Render("UNREACHABLE")
	} else if node.Status != sysstat.Alive.Status {
		statusText = theme.StatusFailed.Render(strings.ToUpper(node.Status))
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" NODE %s %s", node.Address, tickerStr)

	pad := max(innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4, 1)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	checked := "never"
	if !node.LastCheck.IsZero() {
		checked = formatDuration(time.Since(node.LastCheck).Round(time.Second)) + " ago"
	}
	statusLine := fmt.Sprintf(" %s  checked %s", statusText, theme.Dim.Render(checked))

	gaugeWidth := max(innerWidth-20, 10)
	var gauges []string
	if node.Usage != nil {
		gauges = []string{
			renderGauge("CPU", node.Usage.CPU, gaugeWidth, theme),
			renderGauge("MEM", node.Usage.Memory, gaugeWidth, theme),
		}
	} else {
		gauges = []string{theme.Dim.Render(" resource usage unavailable")}
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = formatDuration(time.Since(activity.LastEvent()).Round(time.Second)) + " ago"
	}
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, activity.Render(theme))

	lines := append([]string{titleLine, statusLine}, gauges...)
	lines = append(lines, activityLine)
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
