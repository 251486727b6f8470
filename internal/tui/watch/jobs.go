package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tspl-agent/internal/events"
)

// Job statuses shown in the jobs panel.
const (
	jobPrinting = "printing"
	jobPrinted  = "printed"
	jobFailed   = "failed"
)

// maxJobs is how many jobs the tracker remembers.
const maxJobs = 20

// JobState tracks one print job seen on the event stream.
type JobState struct {
	ID       string
	Printer  string
	From     string
	Size     int
	Digest   string
	Strategy string
	Status   string
	Error    string
	Started  time.Time
	Duration time.Duration
}

type jobPayload struct {
	JobID         string  `json:"job_id"`
	Printer       string  `json:"printer"`
	SubmittedFrom string  `json:"submitted_from"`
	Size          int     `json:"size"`
	Digest        string  `json:"digest"`
	Strategy      string  `json:"strategy"`
	Error         string  `json:"error"`
	DurationMS    float64 `json:"duration_ms"`
}

// jobTracker keeps the most recent jobs, newest first.
type jobTracker struct {
	byID  map[string]*JobState
	order []string
}

func newJobTracker() *jobTracker {
	return &jobTracker{byID: make(map[string]*JobState)}
}

// apply folds a print.* event into the tracker. Other events are ignored.
func (t *jobTracker) apply(e events.Event) {
	if !strings.HasPrefix(e.Type, "print.") {
		return
	}
	var p jobPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.JobID == "" {
		return
	}

	job, ok := t.byID[p.JobID]
	if !ok {
		job = &JobState{ID: p.JobID, Started: e.At}
		t.byID[p.JobID] = job
		t.order = append([]string{p.JobID}, t.order...)
		if len(t.order) > maxJobs {
			for _, id := range t.order[maxJobs:] {
				delete(t.byID, id)
			}
			t.order = t.order[:maxJobs]
		}
	}

	if p.Printer != "" {
		job.Printer = p.Printer
	}
	if p.SubmittedFrom != "" {
		job.From = p.SubmittedFrom
	}
	if p.Size > 0 {
		job.Size = p.Size
	}
	if p.Digest != "" {
		job.Digest = p.Digest
	}

	switch e.Type {
	case events.TypePrintStarted:
		job.Status = jobPrinting
	case events.TypePrintSucceeded:
		job.Status = jobPrinted
		job.Strategy = p.Strategy
		job.Duration = time.Duration(p.DurationMS * float64(time.Millisecond))
	case events.TypePrintFailed:
		job.Status = jobFailed
		job.Error = p.Error
		job.Duration = time.Duration(p.DurationMS * float64(time.Millisecond))
	}
}

// recent returns up to n jobs, newest first.
func (t *jobTracker) recent(n int) []*JobState {
	if n > len(t.order) {
		n = len(t.order)
	}
	out := make([]*JobState, 0, n)
	for _, id := range t.order[:n] {
		out = append(out, t.byID[id])
	}
	return out
}

func (t *jobTracker) active() int {
	n := 0
	for _, j := range t.byID {
		if j.Status == jobPrinting {
			n++
		}
	}
	return n
}

func renderJobs(t *jobTracker, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	jobs := t.recent(8)
	if len(jobs) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("JOBS"),
			theme.Dim.Render("  No print jobs yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := []string{theme.Title.Render(fmt.Sprintf("JOBS (%d printing)", t.active()))}
	for i, job := range jobs {
		lines = append(lines, renderJobRow(job, i == selected, theme))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderJobRow(job *JobState, isSelected bool, theme Theme) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}

	nameStyle := lipgloss.NewStyle()
	if isSelected {
		nameStyle = nameStyle.Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))
	}

	var status string
	switch job.Status {
	case jobPrinted:
		status = theme.StatusOK.Render(fmt.Sprintf("✅ %s via %s", job.Status, job.Strategy))
	case jobFailed:
		status = theme.StatusFailed.Render("❌ " + job.Status)
	default:
		status = theme.StatusRunning.Render("… " + job.Status)
	}

	duration := "-"
	if job.Duration > 0 {
		duration = job.Duration.Round(time.Millisecond).String()
	} else if !job.Started.IsZero() && job.Status == jobPrinting {
		duration = time.Since(job.Started).Round(time.Second).String()
	}

	line := fmt.Sprintf(" %s  %-16s %6dB  %s  %s",
		nameStyle.Render(id),
		job.From,
		job.Size,
		status,
		theme.Dim.Render(duration),
	)
	if isSelected && job.Error != "" {
		line += "\n    └─ " + theme.StatusFailed.Render(job.Error)
	}
	return line
}
