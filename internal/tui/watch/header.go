package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tspl-agent/internal/api"
)

// HealthState tracks agent health from /health polling.
type HealthState struct {
	api.HealthResponse
	Connected bool
	LastCheck time.Time
}

func renderHeader(health HealthState, ticker Ticker, activity Activity, spin spinner.Model, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("READY")
	statusIcon := "✅"
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING " + spin.View())
		statusIcon = "🔌"
	case !health.OK:
		statusText = theme.StatusFailed.Render("DEGRADED")
		statusIcon = "⚠️"
	case health.Dispatch.InFlight > 0:
		statusText = theme.StatusRunning.Render("PRINTING " + spin.View())
		statusIcon = "🖨"
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !activity.LastEvent().IsZero() {
		ago := time.Since(activity.LastEvent()).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" TSPL AGENT WATCH %s", tickerStr)

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	printerLine := fmt.Sprintf(" 🏷  %s  %s  [%s]  %s",
		theme.Header.Render(health.Printer),
		theme.Dim.Render(health.Platform),
		strings.Join(health.Strategies, " → "),
		theme.Dim.Render(health.IPv4Local),
	)

	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  Printed: %d  Failed: %d  In flight: %d",
		statusIcon, statusText,
		uptime,
		health.Dispatch.Succeeded,
		health.Dispatch.Failed,
		health.Dispatch.InFlight,
	)

	activityLine := fmt.Sprintf(" Last event: %s %s",
		lastEventStr,
		activity.Render(theme),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		printerLine,
		statsLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
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
