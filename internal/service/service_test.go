package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type sessionFixture struct {
	hub      *Hub
	relay    *fakeRelay
	presence *fakePresence
	ended    chan struct{}
	ws       *websocket.Conn
}

func startSession(t *testing.T) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		relay:    newFakeRelay(),
		presence: newFakePresence(),
		ended:    make(chan struct{}),
	}
	f.hub = NewHub(f.relay, logger.NewNop())
	rs := NewRealtimeService(f.hub, NewHeartbeatService(f.presence, f.relay, logger.NewNop()), logger.NewNop())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		rs.HandleConn(context.Background(), NewClient(3, "carol", conn, 16), 10)
		close(f.ended)
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	f.ws = ws

	waitFor(t, func() bool { return f.hub.ConnectionCount(10) == 1 })
	return f
}

func (f *sessionFixture) waitEnded(t *testing.T) {
	t.Helper()
	select {
	case <-f.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := startSession(t)
	ctx := context.Background()

	waitFor(t, func() bool { return len(f.relay.events(domain.EventUserJoined)) == 1 })
	if online, _ := f.presence.IsUserOnline(ctx, 3, 10); !online {
		t.Fatal("user not marked online")
	}

	if err := f.ws.WriteJSON(map[string]any{"type": "typing", "is_typing": true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return len(f.relay.events(domain.EventTyping)) == 1 })

	var typing domain.TypingData
	json.Unmarshal(f.relay.events(domain.EventTyping)[0].event.Data, &typing)
	if typing.UserID != 3 || typing.Username != "carol" || !typing.IsTyping {
		t.Fatalf("typing payload %+v", typing)
	}

	f.relay.deliver(10, &domain.Event{Type: domain.EventMessage, Data: json.RawMessage(`{"id":7}`)})
	f.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.Event
	if err := f.ws.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != domain.EventMessage || string(got.Data) != `{"id":7}` {
		t.Fatalf("received %s %s", got.Type, got.Data)
	}

	f.ws.Close()
	f.waitEnded(t)

	if f.hub.ConnectionCount(10) != 0 || f.relay.active() != 0 {
		t.Fatal("connection not cleaned up")
	}
	if online, _ := f.presence.IsUserOnline(ctx, 3, 10); online {
		t.Fatal("user still online after disconnect")
	}
	if len(f.relay.events(domain.EventUserLeft)) != 1 {
		t.Fatal("user_left not published")
	}
}

func TestSessionEndsOnHubShutdown(t *testing.T) {
	f := startSession(t)

	if err := f.hub.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	f.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := f.ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read err = %v, want going away close", err)
	}
	f.waitEnded(t)
}

func TestSessionIgnoresMalformedFrames(t *testing.T) {
	f := startSession(t)

	f.ws.WriteMessage(websocket.TextMessage, []byte("not json"))
	f.ws.WriteJSON(map[string]any{"type": "unknown"})
	f.ws.WriteJSON(map[string]any{"type": "heartbeat"})
	f.ws.WriteJSON(map[string]any{"type": "typing", "is_typing": false})

	waitFor(t, func() bool { return len(f.relay.events(domain.EventTyping)) == 1 })
	if f.hub.ConnectionCount(10) != 1 {
		t.Fatal("malformed frame ended the session")
	}
}

func TestClientSend(t *testing.T) {
	c := NewClient(1, "alice", nil, 1)
	ev := &domain.Event{Type: domain.EventTyping}

	if err := c.Send(ev); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send(ev); err != errSendBufferFull {
		t.Fatalf("full buffer: err = %v", err)
	}

	c.Close()
	c.Close()
	if err := c.Send(ev); err != errClientClosed {
		t.Fatalf("closed client: err = %v", err)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}
