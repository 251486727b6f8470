package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/events"
	"github.com/mattjoyce/tspl-agent/internal/spool"
)

type stack struct {
	server  *httptest.Server
	store   *spool.Store
	capture string
}

// newStack wires a real spool, dispatcher and scripted lpr behind the router.
func newStack(t *testing.T, lprBody string) *stack {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scripted lpr requires a POSIX shell")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	capture := t.TempDir()
	lprPath := filepath.Join(t.TempDir(), "lpr")
	script := "#!/bin/sh\nCAPTURE=" + capture + "\n" + lprBody
	require.NoError(t, os.WriteFile(lprPath, []byte(script), 0o755))

	store, err := spool.NewStore(filepath.Join(t.TempDir(), "spool"), spool.WithLogger(logger))
	require.NoError(t, err)

	hub := events.NewHub(32)
	runner := dispatch.NewExecRunner(10*time.Second, logger)
	d, err := dispatch.New(store, []dispatch.Strategy{dispatch.NewLPR(runner, lprPath)},
		dispatch.WithLogger(logger), dispatch.WithPublisher(hub))
	require.NoError(t, err)

	s := New(testConfig(""), d, hub, logger, WithInterfaces(fixedInterfaces))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &stack{server: ts, store: store, capture: capture}
}

// post submits a print request. It is safe to call from any goroutine.
func (st *stack) post(tspl string) (int, string, error) {
	body := fmt.Sprintf(`{"tspl":%q}`, tspl)
	resp, err := http.Post(st.server.URL+"/print", "application/json", strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(b), nil
}

func (st *stack) print(t *testing.T, tspl string) (int, string) {
	t.Helper()
	code, body, err := st.post(tspl)
	require.NoError(t, err)
	return code, body
}

func (st *stack) requireSpoolEmpty(t *testing.T) {
	t.Helper()
	pending, err := st.store.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "no document may outlive its request")
}

func TestIntegration_PrintThroughLPR(t *testing.T) {
	st := newStack(t, `cp "$5" "$CAPTURE/job.tspl"`+"\n")

	code, body := st.print(t, "SIZE 40 mm,30 mm\nCLS\nPRINT 1\n")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Sent to printer.", body)

	got, err := os.ReadFile(filepath.Join(st.capture, "job.tspl"))
	require.NoError(t, err)
	assert.Equal(t, "SIZE 40 mm,30 mm\nCLS\nPRINT 1\n", string(got))
	st.requireSpoolEmpty(t)
}

func TestIntegration_LPRFailureSurfacesStderr(t *testing.T) {
	st := newStack(t, "echo 'lpr: The printer or class does not exist.' >&2\nexit 1\n")

	code, body := st.print(t, "PRINT 1")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.True(t, strings.HasPrefix(body, "Print failed: "), body)
	assert.Contains(t, body, "The printer or class does not exist.")
	st.requireSpoolEmpty(t)
}

func TestIntegration_ConcurrentPrintsAreIsolated(t *testing.T) {
	// Each invocation stores the payload under its own document name.
	st := newStack(t, `cp "$5" "$CAPTURE/$(basename "$5")"`+"\n")

	const n = 12
	var wg sync.WaitGroup
	codes := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], _, errs[i] = st.post(fmt.Sprintf("PRINT %d", i))
		}(i)
	}
	wg.Wait()

	for i := range codes {
		require.NoError(t, errs[i], "request %d", i)
		assert.Equal(t, http.StatusOK, codes[i], "request %d", i)
	}

	files, err := filepath.Glob(filepath.Join(st.capture, "*.tspl"))
	require.NoError(t, err)
	require.Len(t, files, n)

	payloads := map[string]bool{}
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		payloads[string(b)] = true
	}
	assert.Len(t, payloads, n)
	st.requireSpoolEmpty(t)
}
