package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeisles-arena/services"
	"codeisles-arena/store"
)

// readSSE returns the next event name and data, skipping keepalive comments.
func readSSE(t *testing.T, sc *bufio.Scanner) (string, services.Event) {
	t.Helper()
	var name string
	var ev services.Event
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		case line == "" && name != "":
			return name, ev
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return "", ev
}

func TestWriteSSE(t *testing.T) {
	_, h := newTestApp(t, store.NewMemoryStore())
	ctx := context.Background()

	sub, err := h.Battles.Subscribe(ctx, "A")
	require.NoError(t, err)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- writeSSE(bufio.NewWriter(pw), sub, time.Hour)
	}()
	sc := bufio.NewScanner(pr)

	name, ev := readSSE(t, sc)
	assert.Equal(t, "no_active_session", name)
	assert.Equal(t, services.EventNoActiveSession, ev.Kind)

	_, err = h.Matchmaking.FindOrEnqueue(ctx, "A", "Graphs", "Hard")
	require.NoError(t, err)
	res, err := h.Matchmaking.FindOrEnqueue(ctx, "B", "Graphs", "Hard")
	require.NoError(t, err)

	name, ev = readSSE(t, sc)
	assert.Equal(t, "session", name)
	require.NotNil(t, ev.Session)
	assert.Equal(t, res.SessionID, ev.Session.ID)

	_, err = h.Battles.Submit(ctx, res.SessionID, "B")
	require.NoError(t, err)

	_, ev = readSSE(t, sc)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "B", *ev.Session.Winner)
	name, _ = readSSE(t, sc)
	assert.Equal(t, "no_active_session", name)

	// client goes away
	require.NoError(t, pr.Close())
	sub.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writeSSE did not return")
	}
}

func TestWebSocketStream(t *testing.T) {
	app, h := newTestApp(t, store.NewMemoryStore())
	ctx := context.Background()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	defer func() { _ = app.Shutdown() }()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testGatewayToken)
	header.Set("X-User-ID", "A")
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/battles", header)
	require.NoError(t, err)
	defer conn.Close()

	read := func() services.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev services.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	assert.Equal(t, services.EventNoActiveSession, read().Kind)

	_, err = h.Matchmaking.FindOrEnqueue(ctx, "B", "Strings", "Medium")
	require.NoError(t, err)
	res, err := h.Matchmaking.FindOrEnqueue(ctx, "A", "Strings", "Medium")
	require.NoError(t, err)

	ev := read()
	require.Equal(t, services.EventSession, ev.Kind)
	assert.Equal(t, res.SessionID, ev.Session.ID)
	assert.ElementsMatch(t, []string{"A", "B"}, ev.Session.Players())
}

func TestWebSocketRequiresAuth(t *testing.T) {
	app, _ := newTestApp(t, store.NewMemoryStore())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	defer func() { _ = app.Shutdown() }()

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/battles", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
