package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypePrintStarted, map[string]string{"job_id": "j1"})

	ev := <-ch
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, TypePrintStarted, ev.Type)
	assert.JSONEq(t, `{"job_id":"j1"}`, string(ev.Data))
}

func TestHubConcurrentPublishDeliversInOrder(t *testing.T) {
	h := NewHub(512)
	ch, cancel := h.Subscribe()
	defer cancel()

	const publishers, each = 8, 16
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				h.Publish(TypePrintStarted, nil)
			}
		}()
	}
	wg.Wait()

	var last int64
	for i := 0; i < publishers*each; i++ {
		ev := <-ch
		require.Greater(t, ev.ID, last, "event IDs must arrive in increasing order")
		last = ev.ID
	}
	assert.Equal(t, int64(publishers*each), last)
}

func TestHubRingBufferKeepsNewest(t *testing.T) {
	h := NewHub(2)
	h.Publish("a", nil)
	h.Publish("b", nil)
	h.Publish("c", nil)

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Type)
	assert.Equal(t, "c", snap[1].Type)

	assert.Len(t, h.SnapshotSince(2), 1)
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers())

	// cancel after close must not panic on a double close.
	cancel()

	h.Publish("late", nil)
	assert.Empty(t, h.SnapshotSince(0))

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestEventMarshalsDataInline(t *testing.T) {
	h := NewHub(1)
	h.Publish(TypePrintFailed, map[string]string{"error": "boom"})

	b, err := json.Marshal(h.SnapshotSince(0)[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":{"error":"boom"}`)
}

func TestSSERoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, Event{ID: 7, Type: TypePrintSucceeded, Data: json.RawMessage(`{"strategy":"lpr"}`)}))
	buf.WriteString(": keep-alive\n\n")
	require.NoError(t, WriteSSE(&buf, Event{ID: 8, Type: TypePrintFailed, Data: json.RawMessage(`{}`)}))

	var got []Event
	err := ReadSSE(&buf, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, TypePrintSucceeded, got[0].Type)
	assert.JSONEq(t, `{"strategy":"lpr"}`, string(got[0].Data))
	assert.Equal(t, TypePrintFailed, got[1].Type)
}

func TestReadSSEStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	stream := "id: 1\ndata: {}\n\nid: 2\ndata: {}\n\n"
	calls := 0
	err := ReadSSE(strings.NewReader(stream), func(Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
