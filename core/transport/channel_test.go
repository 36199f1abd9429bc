package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testServer struct {
	*httptest.Server
	upgrader    websocket.Upgrader
	connections atomic.Int32
	handle      func(conn *websocket.Conn)
}

func newTestServer(t *testing.T, handle func(conn *websocket.Conn)) *testServer {
	t.Helper()

	server := &testServer{handle: handle}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := server.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		server.connections.Add(1)
		server.handle(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *testServer) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnectDispatchesParsedEventsAndDropsMalformed(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"missing":"type"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.created","response":{"id":"resp_1"}}`))
		time.Sleep(50 * time.Millisecond)
	})

	received := make(chan ServerEvent, 4)
	channel := NewChannel(wsURL(server), WithEventHandler(func(event ServerEvent) {
		received <- event
	}))

	if err := channel.Connect(context.Background(), "sess_1"); err != nil {
		t.Fatalf("expected connect to succeed, got error: %v", err)
	}
	defer channel.Disconnect()

	select {
	case event := <-received:
		if event.Type != TypeResponseCreated {
			t.Fatalf("expected response.created event, got %q", event.Type)
		}
		if got := event.ActiveResponseID(); got != "resp_1" {
			t.Fatalf("expected response id resp_1, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatched event")
	}

	select {
	case event := <-received:
		t.Fatalf("expected malformed messages to be dropped, got extra event %q", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectRejectsBeforeOpen(t *testing.T) {
	channel := NewChannel("ws://127.0.0.1:1")

	if err := channel.Connect(context.Background(), "sess_1"); err == nil {
		t.Fatalf("expected connect to a dead endpoint to fail")
	}
	if channel.IsConnected() {
		t.Fatalf("expected channel to stay disconnected after failed connect")
	}
}

func TestSendReportsDroppedWhenClosed(t *testing.T) {
	channel := NewChannel("ws://example.invalid")

	if sent := channel.Send(NewAudioAppendEvent([]byte{0x01})); sent {
		t.Fatalf("expected send on a closed channel to report a drop")
	}
}

func TestSendTransmitsWhenOpen(t *testing.T) {
	received := make(chan []byte, 1)
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg
	})

	channel := NewChannel(wsURL(server))
	if err := channel.Connect(context.Background(), "sess_1"); err != nil {
		t.Fatalf("expected connect to succeed, got error: %v", err)
	}
	defer channel.Disconnect()

	if sent := channel.Send(NewResponseCancelEvent("resp_9")); !sent {
		t.Fatalf("expected send on an open channel to be attempted")
	}

	select {
	case msg := <-received:
		if !strings.Contains(string(msg), `"response.cancel"`) || !strings.Contains(string(msg), `"resp_9"`) {
			t.Fatalf("expected serialized response.cancel event, got %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server to receive event")
	}
}

func TestDisconnectIsIdempotentAndSuppressesCloseCallback(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	closeCalls := atomic.Int32{}
	channel := NewChannel(wsURL(server), WithCloseHandler(func(error) {
		closeCalls.Add(1)
	}))

	if err := channel.Connect(context.Background(), "sess_1"); err != nil {
		t.Fatalf("expected connect to succeed, got error: %v", err)
	}

	if err := channel.Disconnect(); err != nil {
		t.Fatalf("expected first disconnect to succeed, got error: %v", err)
	}
	if err := channel.Disconnect(); err != nil {
		t.Fatalf("expected repeated disconnect to be a no-op, got error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := closeCalls.Load(); got != 0 {
		t.Fatalf("expected intentional disconnect to suppress close callback, got %d calls", got)
	}
}

func TestInvoluntaryCloseFiresCallbackOnceWithoutReconnect(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	closed := make(chan error, 2)
	channel := NewChannel(wsURL(server), WithCloseHandler(func(err error) {
		closed <- err
	}))

	if err := channel.Connect(context.Background(), "sess_1"); err != nil {
		t.Fatalf("expected connect to succeed, got error: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for close callback")
	}

	select {
	case <-closed:
		t.Fatalf("expected close callback to fire exactly once")
	case <-time.After(100 * time.Millisecond):
	}

	if channel.IsConnected() {
		t.Fatalf("expected channel to stay disconnected after involuntary close")
	}
	if got := server.connections.Load(); got != 1 {
		t.Fatalf("expected no automatic reconnection, server saw %d connections", got)
	}
}

func TestSessionURLBuildsPathAndScheme(t *testing.T) {
	testCases := []struct {
		name     string
		base     string
		expected string
	}{
		{name: "http upgrades to ws", base: "http://localhost:8000/ws/session", expected: "ws://localhost:8000/ws/session/sess_1"},
		{name: "https upgrades to wss", base: "https://backend/ws/session/", expected: "wss://backend/ws/session/sess_1"},
		{name: "ws passes through", base: "ws://backend/ws/session", expected: "ws://backend/ws/session/sess_1"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := sessionURL(testCase.base, "sess_1")
			if err != nil {
				t.Fatalf("expected url to build, got error: %v", err)
			}
			if got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}
