package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/tspl-agent/internal/api"
)

// RenderStatus formats a health snapshot for the status command.
func RenderStatus(h api.HealthResponse, theme Theme) string {
	var b strings.Builder

	state := theme.StatusOK.Render("running")
	if !h.OK {
		state = theme.StatusFailed.Render("degraded")
	}
	auth := "disabled"
	if h.AuthRequired {
		auth = "token required"
	}

	fmt.Fprintf(&b, "Agent:      %s (%s)\n", state, h.Version)
	fmt.Fprintf(&b, "Printer:    %s\n", theme.Header.Render(h.Printer))
	fmt.Fprintf(&b, "Platform:   %s [%s]\n", h.Platform, strings.Join(h.Strategies, " → "))
	fmt.Fprintf(&b, "Uptime:     %s\n", formatDuration(time.Duration(h.UptimeSeconds)*time.Second))
	fmt.Fprintf(&b, "Auth:       %s\n", auth)
	fmt.Fprintf(&b, "Origins:    %s\n", strings.Join(h.Origins, ", "))
	fmt.Fprintf(&b, "LAN IPv4:   %s\n", h.IPv4Local)
	fmt.Fprintf(&b, "Jobs:       %d printed, %d failed, %d in flight\n",
		h.Dispatch.Succeeded, h.Dispatch.Failed, h.Dispatch.InFlight)
	return b.String()
}
