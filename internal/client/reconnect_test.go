package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientReconnectsAfterServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connCount int32
	hold := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connCount, 1)
		conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"conn":%d}`, n)))
		if n == 1 {
			// Drop the first connection to force a reconnect.
			conn.Close()
			return
		}
		<-hold
		conn.Close()
	}))
	defer srv.Close()
	defer close(hold)

	messages := make(chan string, 16)
	states := make(chan State, 16)
	c := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		OnMessage:      func(data []byte) { messages <- string(data) },
		OnStateChange:  func(s State) { states <- s },
	})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Equal(t, `{"conn":1}`, waitFor(t, messages, "first connection message"))
	require.Equal(t, `{"conn":2}`, waitFor(t, messages, "post-reconnect message"))

	// The drop must have been observable as reconnecting before the second
	// connected state.
	seen := drainStates(states)
	assert.Contains(t, seen, StateConnecting)
	assert.Contains(t, seen, StateReconnecting)
	assert.Equal(t, StateConnected, c.State())
}

func TestServerDropWaitsOutBackoffBeforeRedial(t *testing.T) {
	upgrader := websocket.Upgrader{}
	dials := make(chan time.Time, 4)
	hold := make(chan struct{})
	var connCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		dials <- time.Now()
		if atomic.AddInt32(&connCount, 1) == 1 {
			conn.Close()
			return
		}
		<-hold
		conn.Close()
	}))
	defer srv.Close()
	defer close(hold)

	const initial = 200 * time.Millisecond
	c := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		InitialBackoff: initial,
		MaxBackoff:     time.Second,
	})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	first := waitForTime(t, dials, "first dial")
	second := waitForTime(t, dials, "redial after drop")

	// The gap must be at least the jitter floor of the first backoff step.
	assert.GreaterOrEqual(t, second.Sub(first), time.Duration(float64(initial)*jitterMin))
}

func TestCloseStopsReconnecting(t *testing.T) {
	// No server listening: every dial fails and the client sits in its
	// backoff loop until Close.
	states := make(chan State, 16)
	c := New(Options{
		URL:            "ws://127.0.0.1:1/ws",
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		OnStateChange:  func(s State) { states <- s },
	})

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func waitFor(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func waitForTime(t *testing.T, ch chan time.Time, what string) time.Time {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return time.Time{}
	}
}

func drainStates(ch chan State) []State {
	var out []State
	for {
		select {
		case s := <-ch:
			out = append(out, s)
		default:
			return out
		}
	}
}
