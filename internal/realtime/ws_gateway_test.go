package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

func newTestGateway(t *testing.T) (*WSGateway, *Hub) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(log, NewStore(), nil)
	return NewWSGateway(log, hub, nil), hub
}

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialPeer(t *testing.T, url string) *wsPeer {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) send(req v1.Request) {
	p.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := json.Marshal(req)
	if err != nil {
		p.t.Fatalf("marshal: %v", err)
	}
	if err := p.conn.Write(ctx, websocket.MessageText, b); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

func (p *wsPeer) sendRaw(data string) {
	p.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.conn.Write(ctx, websocket.MessageText, []byte(data)); err != nil {
		p.t.Fatalf("write raw: %v", err)
	}
}

func (p *wsPeer) recv() v1.Event {
	p.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := p.conn.Read(ctx)
	if err != nil {
		p.t.Fatalf("read: %v", err)
	}
	ev, err := v1.ParseEvent(data)
	if err != nil {
		p.t.Fatalf("parse event: %v", err)
	}
	return ev
}

func (p *wsPeer) expect(typ string) v1.Event {
	p.t.Helper()
	ev := p.recv()
	if ev.Type != typ {
		p.t.Fatalf("event type=%s want=%s", ev.Type, typ)
	}
	return ev
}

func TestGatewayEndToEndSync(t *testing.T) {
	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	a := dialPeer(t, srv.URL)
	b := dialPeer(t, srv.URL)

	if init := a.expect(v1.TypeInit); len(init.Messages) != 0 {
		t.Fatalf("expected empty baseline, got %+v", init.Messages)
	}
	b.expect(v1.TypeInit)

	// create: both mirrors gain exactly one entry.
	a.send(v1.Request{Type: v1.TypeCreate, User: "Alice", Text: "hi"})
	created := b.expect(v1.TypeCreate).Message
	if created.ID != 1 || created.User != "Alice" || created.Text != "hi" {
		t.Fatalf("created=%+v", created)
	}
	own := a.expect(v1.TypeCreate).Message
	if *own != *created {
		t.Fatalf("sender event=%+v fanout event=%+v", own, created)
	}

	// update: same id, same timestamp.
	a.send(v1.Request{Type: v1.TypeUpdate, ID: created.ID, Text: "hello"})
	updated := b.expect(v1.TypeUpdate).Message
	if updated.ID != created.ID || updated.Text != "hello" || updated.Timestamp != created.Timestamp {
		t.Fatalf("updated=%+v created=%+v", updated, created)
	}
	a.expect(v1.TypeUpdate)

	// A newly connecting client receives the current snapshot and nothing else.
	c := dialPeer(t, srv.URL)
	snap := c.expect(v1.TypeInit).Messages
	if len(snap) != 1 || snap[0].ID != created.ID || snap[0].Text != "hello" {
		t.Fatalf("late join snapshot=%+v", snap)
	}

	// delete reaches everyone.
	a.send(v1.Request{Type: v1.TypeDelete, ID: created.ID})
	for _, p := range []*wsPeer{a, b, c} {
		ev := p.expect(v1.TypeDelete)
		if ev.ID != created.ID {
			t.Fatalf("delete id=%d want=%d", ev.ID, created.ID)
		}
	}
}

func TestGatewayIgnoresMalformedAndMissingID(t *testing.T) {
	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	a := dialPeer(t, srv.URL)
	b := dialPeer(t, srv.URL)
	a.expect(v1.TypeInit)
	b.expect(v1.TypeInit)

	// Malformed frames: dropped, connection stays open.
	a.sendRaw(`{broken`)
	a.sendRaw(`{"type":"merge","id":1}`)
	a.sendRaw(`{"type":"create","text":"missing user"}`)

	// Mutations against a missing id: no broadcast (silent no-op).
	a.send(v1.Request{Type: v1.TypeUpdate, ID: 42, Text: "ghost"})
	a.send(v1.Request{Type: v1.TypeDelete, ID: 42})

	// The connection must still work afterwards.
	a.send(v1.Request{Type: v1.TypeCreate, User: "Alice", Text: "still alive"})
	ev := b.expect(v1.TypeCreate)
	if ev.Message.Text != "still alive" {
		t.Fatalf("event=%+v", ev)
	}
	a.expect(v1.TypeCreate)
}

func TestGatewayReleasesConnectionOnClose(t *testing.T) {
	gw, hub := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	a := dialPeer(t, srv.URL)
	a.expect(v1.TypeInit)

	if got := waitMembers(hub, 1); got != 1 {
		t.Fatalf("members=%d want=1", got)
	}

	_ = a.conn.Close(websocket.StatusNormalClosure, "bye")

	if got := waitMembers(hub, 0); got != 0 {
		t.Fatalf("members=%d want=0 after close", got)
	}
}

func TestDeriveOriginPatternsKeepsPort(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{
		"http://localhost:3000",
		"https://chat.example.com",
		"127.0.0.1:9000",
		"  ",
		"*",
	})

	// websocket.Accept matches patterns against host:port, so the port must
	// survive derivation: a bare "localhost" pattern would reject
	// "localhost:3000".
	want := []string{"127.0.0.1:9000", "chat.example.com", "localhost:3000"}
	if len(got) != len(want) {
		t.Fatalf("patterns=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns=%v want=%v", got, want)
		}
	}
}

func TestGatewayAdmitsAllowedCrossPortOrigin(t *testing.T) {
	t.Setenv("CHATSYNC_WS_ALLOWED_ORIGINS", "http://localhost:3000")

	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The handshake is cross-origin relative to the server address, so it
	// passes only via the configured allowlist.
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://localhost:3000"}},
	})
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	p := &wsPeer{t: t, conn: conn}
	p.expect(v1.TypeInit)
}

func TestGatewayRejectsDisallowedOrigin(t *testing.T) {
	t.Setenv("CHATSYNC_WS_ALLOWED_ORIGINS", "http://localhost:3000")

	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(gw)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example.com"}},
	})
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		t.Fatal("handshake succeeded for a disallowed origin")
	}
}

func waitMembers(h *Hub, want int) int {
	deadline := time.Now().Add(3 * time.Second)
	for {
		got := h.Members()
		if got == want || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}
