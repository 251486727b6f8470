package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tspl-agent/internal/api"
	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/events"
)

func printEvent(id int64, typ string, payload dispatch.JobEvent) events.Event {
	b, _ := json.Marshal(payload)
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: b}
}

func TestJobTracker_Lifecycle(t *testing.T) {
	tr := newJobTracker()

	tr.apply(printEvent(1, events.TypePrintStarted, dispatch.JobEvent{
		JobID: "job-1", Printer: "Label", SubmittedFrom: "10.0.0.5", Size: 42, Digest: "abcd",
	}))
	require.Len(t, tr.recent(10), 1)
	assert.Equal(t, jobPrinting, tr.recent(1)[0].Status)
	assert.Equal(t, 1, tr.active())

	tr.apply(printEvent(2, events.TypePrintSucceeded, dispatch.JobEvent{
		JobID: "job-1", Strategy: "lpr", DurationMS: 120,
	}))
	job := tr.recent(1)[0]
	assert.Equal(t, jobPrinted, job.Status)
	assert.Equal(t, "lpr", job.Strategy)
	assert.Equal(t, "10.0.0.5", job.From)
	assert.Equal(t, 42, job.Size)
	assert.Equal(t, 120*time.Millisecond, job.Duration)
	assert.Equal(t, 0, tr.active())
}

func TestJobTracker_FailureKeepsError(t *testing.T) {
	tr := newJobTracker()
	tr.apply(printEvent(1, events.TypePrintStarted, dispatch.JobEvent{JobID: "j"}))
	tr.apply(printEvent(2, events.TypePrintFailed, dispatch.JobEvent{
		JobID: "j", Error: "[lpr:exit status 1 :: no such printer]",
	}))

	job := tr.recent(1)[0]
	assert.Equal(t, jobFailed, job.Status)
	assert.Contains(t, job.Error, "no such printer")
}

func TestJobTracker_IgnoresOtherEvents(t *testing.T) {
	tr := newJobTracker()
	tr.apply(events.Event{ID: 1, Type: events.TypeAgentStarted, Data: json.RawMessage(`{"printer":"x"}`)})
	tr.apply(events.Event{ID: 2, Type: events.TypePrintStarted, Data: json.RawMessage(`{}`)})
	assert.Empty(t, tr.recent(10))
}

func TestJobTracker_NewestFirstAndBounded(t *testing.T) {
	tr := newJobTracker()
	for i := 0; i < maxJobs+5; i++ {
		id := string(rune('a'+i%26)) + string(rune('A'+i/26))
		tr.apply(printEvent(int64(i), events.TypePrintStarted, dispatch.JobEvent{JobID: id}))
	}
	assert.Len(t, tr.order, maxJobs)
	assert.Len(t, tr.byID, maxJobs)

	recent := tr.recent(2)
	last := maxJobs + 4
	assert.Equal(t, string(rune('a'+last%26))+string(rune('A'+last/26)), recent[0].ID)
}

func TestActivity_Decay(t *testing.T) {
	var a Activity
	now := time.Now()
	a.OnEvent(now)
	assert.Equal(t, 5, a.Dots())

	a.Decay(now.Add(3 * time.Second))
	assert.Equal(t, 4, a.Dots())

	a.Decay(now.Add(11 * time.Second))
	assert.Equal(t, 0, a.Dots())
}

func TestExtractEventDesc(t *testing.T) {
	e := printEvent(1, events.TypePrintSucceeded, dispatch.JobEvent{
		JobID: "0123456789", SubmittedFrom: "10.0.0.9", Strategy: "copy",
	})
	assert.Equal(t, "[01234567] 10.0.0.9 via copy", extractEventDesc(e))

	stopping := events.Event{Type: events.TypeAgentStopping, Data: json.RawMessage(`{}`)}
	assert.Equal(t, "", extractEventDesc(stopping))
}

func TestExtractEventDesc_TruncatesOnRuneBoundary(t *testing.T) {
	detail := "[copy:O arquivo não pôde ser copiado para a impressora compartilhada Etiquetadora]"
	e := printEvent(1, events.TypePrintFailed, dispatch.JobEvent{JobID: "j", Error: detail})

	desc := extractEventDesc(e)
	assert.True(t, utf8.ValidString(desc), "description must stay valid UTF-8: %q", desc)
	assert.True(t, strings.HasSuffix(desc, "..."))
	assert.Equal(t, "[j] "+string([]rune(detail)[:60])+"...", desc)

	assert.Equal(t, "ação", truncateRunes("ação", 4))
	assert.Equal(t, "açã...", truncateRunes("ação", 3))
}

func TestClient_HealthAndStream(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.HealthResponse{
			OK: true, Printer: "Label", Strategies: []string{"lpr"},
			Dispatch: dispatch.Stats{Succeeded: 3},
		})
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		_ = events.WriteSSE(w, events.Event{ID: 1, Type: events.TypeAgentStarted, Data: json.RawMessage(`{}`)})
		_, _ = w.Write([]byte(": keep-alive\n\n"))
		_ = events.WriteSSE(w, printEvent(2, events.TypePrintStarted, dispatch.JobEvent{JobID: "j1"}))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL+"/", "secret")

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Label", h.Printer)
	assert.Equal(t, int64(3), h.Dispatch.Succeeded)

	var got []events.Event
	err = c.Stream(context.Background(), func(ev events.Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeAgentStarted, got[0].Type)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Contains(t, string(got[1].Data), "j1")
}

func TestClient_StreamUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "").Stream(context.Background(), func(events.Event) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestModel_UpdateTracksEventsAndHealth(t *testing.T) {
	m := *New("http://127.0.0.1:1", "")

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)

	next, _ = m.Update(healthMsg(api.HealthResponse{
		OK: true, Printer: "Label_Printer", Platform: "posix", Strategies: []string{"lpr"},
	}))
	m = next.(Model)
	assert.True(t, m.health.Connected)

	next, _ = m.Update(eventMsg(printEvent(1, events.TypePrintStarted, dispatch.JobEvent{JobID: "job-1"})))
	m = next.(Model)
	assert.Equal(t, int64(1), m.health.Dispatch.InFlight)

	next, _ = m.Update(eventMsg(printEvent(2, events.TypePrintSucceeded, dispatch.JobEvent{JobID: "job-1", Strategy: "lpr"})))
	m = next.(Model)
	assert.Equal(t, int64(0), m.health.Dispatch.InFlight)
	assert.Equal(t, int64(1), m.health.Dispatch.Succeeded)
	assert.Len(t, m.eventLog, 2)

	view := m.View()
	assert.Contains(t, view, "Label_Printer")
	assert.Contains(t, view, "job-1")
	assert.Contains(t, view, "print.succeeded")
}

func TestModel_DisconnectShowsError(t *testing.T) {
	m := *New("http://127.0.0.1:1", "")
	m.health.Connected = true

	next, cmd := m.Update(sseDisconnectedMsg{})
	m = next.(Model)
	assert.False(t, m.health.Connected)
	assert.Contains(t, m.lastError, "reconnecting")
	assert.NotNil(t, cmd)
}

func TestModel_QuitKey(t *testing.T) {
	m := *New("http://127.0.0.1:1", "")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(api.HealthResponse{
		OK: true, Printer: "Label_Printer", Platform: "windows",
		Strategies: []string{"powershell", "copy"}, AuthRequired: true,
		Origins: []string{"http://localhost"}, IPv4Local: "192.168.1.20",
		UptimeSeconds: 125, Version: "1.2.3",
		Dispatch: dispatch.Stats{Succeeded: 7, Failed: 1},
	}, NewDefaultTheme())

	for _, want := range []string{
		"Label_Printer", "powershell → copy", "2m 5s", "token required",
		"192.168.1.20", "7 printed, 1 failed, 0 in flight", "1.2.3",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}
}
