package watch

import (
	"fmt"
	"strings"
	"time"
)

// Ticker alternates frames on every poll so a frozen view is obvious.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Activity lights up when an event arrives and fades over ten seconds.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func (a *Activity) OnEvent(now time.Time) {
	a.dots = 5
	a.lastEvent = now
}

func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	elapsed := now.Sub(a.lastEvent)
	a.dots = max(0, 5-int(elapsed/(2*time.Second)))
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}

// hotThreshold is the percentage above which a gauge turns red.
const hotThreshold = 85.0

// renderGauge draws pct (0-100) as a bar of width cells followed by the value.
func renderGauge(label string, pct float64, width int, theme Theme) string {
	if width < 1 {
		width = 1
	}
	clamped := min(max(pct, 0), 100)
	filled := int(clamped / 100 * float64(width))

	fill := theme.GaugeFill
	if clamped >= hotThreshold {
		fill = theme.GaugeHot
	}
	bar := fill.Render(strings.Repeat("█", filled)) +
		theme.GaugeEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf(" %-4s %s %5.1f%%", label, bar, pct)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
