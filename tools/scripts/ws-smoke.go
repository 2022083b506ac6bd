// Command ws-smoke is a CI-friendly websocket smoke test for chatsync.
//
// It validates:
//   - init snapshot on connect
//   - create -> fanout to all connected clients
//   - update -> same id, unchanged timestamp
//   - late joiner receives the current snapshot and nothing else
//   - delete -> fanout
//   - malformed frames are ignored without closing the connection
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Event
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:3001/ws", "WebSocket URL")
		user    = flag.String("user", "smoke", "User name for created messages")
		text    = flag.String("text", "hello chatsync", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *timeout)
	defer closeWS(a.conn)
	b := mustConnect(root, "B", *wsURL, *timeout)
	defer closeWS(b.conn)

	ainit := mustInit(a, *timeout)
	_ = mustInit(b, *timeout)
	if *verbose {
		fmt.Printf("connected: A and B, baseline=%d messages\n", len(ainit))
	}

	mustSend(a, v1.Request{Type: v1.TypeCreate, User: *user, Text: *text}, *timeout)
	created := mustEvent(a, v1.TypeCreate, *timeout).Message
	other := mustEvent(b, v1.TypeCreate, *timeout).Message
	if created == nil || other == nil || created.ID != other.ID || other.Text != *text {
		fatalf("create fanout mismatch: a=%+v b=%+v", created, other)
	}

	mustSend(a, v1.Request{Type: v1.TypeUpdate, ID: created.ID, Text: *text + "!"}, *timeout)
	updated := mustEvent(b, v1.TypeUpdate, *timeout).Message
	if updated == nil || updated.ID != created.ID || updated.Timestamp != created.Timestamp {
		fatalf("update mismatch: created=%+v updated=%+v", created, updated)
	}
	_ = mustEvent(a, v1.TypeUpdate, *timeout)

	// A late joiner is synchronized by snapshot alone.
	c := mustConnect(root, "C", *wsURL, *timeout)
	defer closeWS(c.conn)
	snap := mustInit(c, *timeout)
	if len(snap) == 0 || snap[len(snap)-1].ID != created.ID || snap[len(snap)-1].Text != *text+"!" {
		fatalf("late join snapshot mismatch: %+v", snap)
	}
	mustNoEvent(c, 750*time.Millisecond)

	// Malformed and unknown frames are dropped without closing the connection.
	mustSendRaw(a, []byte(`{not json`), *timeout)
	mustSendRaw(a, []byte(`{"type":"mutate","id":1}`), *timeout)
	mustNoEvent(b, 750*time.Millisecond)

	mustSend(a, v1.Request{Type: v1.TypeDelete, ID: created.ID}, *timeout)
	for _, cl := range []*smokeClient{a, b, c} {
		ev := mustEvent(cl, v1.TypeDelete, *timeout)
		if ev.ID != created.ID {
			fatalf("%s: delete id mismatch: got=%d want=%d", cl.name, ev.ID, created.ID)
		}
	}

	fmt.Printf("OK: id=%d baseline=%d\n", created.ID, len(ainit))
}

func mustConnect(ctx context.Context, name, wsURL string, timeout time.Duration) *smokeClient {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		fatalf("%s: dial: %v", name, err)
	}
	conn.SetReadLimit(maxReadBytes)

	cl := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Event, 64),
		errCh: make(chan error, 1),
	}

	go func() {
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				cl.errCh <- err
				return
			}
			ev, err := v1.ParseEvent(data)
			if err != nil {
				cl.errCh <- fmt.Errorf("parse event: %w", err)
				return
			}
			cl.inbox <- ev
		}
	}()

	return cl
}

func mustInit(cl *smokeClient, timeout time.Duration) []v1.Message {
	return mustEvent(cl, v1.TypeInit, timeout).Messages
}

func mustEvent(cl *smokeClient, typ string, timeout time.Duration) v1.Event {
	select {
	case ev := <-cl.inbox:
		if ev.Type != typ {
			fatalf("%s: unexpected event: got=%s want=%s", cl.name, ev.Type, typ)
		}
		return ev
	case err := <-cl.errCh:
		fatalf("%s: read: %v", cl.name, err)
	case <-time.After(timeout):
		fatalf("%s: timeout waiting for %s", cl.name, typ)
	}
	return v1.Event{}
}

func mustNoEvent(cl *smokeClient, window time.Duration) {
	select {
	case ev := <-cl.inbox:
		fatalf("%s: unexpected event during quiet window: %s", cl.name, ev.Type)
	case err := <-cl.errCh:
		fatalf("%s: read: %v", cl.name, err)
	case <-time.After(window):
	}
}

func mustSend(cl *smokeClient, req v1.Request, timeout time.Duration) {
	b, err := json.Marshal(req)
	if err != nil {
		fatalf("%s: marshal: %v", cl.name, err)
	}
	mustSendRaw(cl, b, timeout)
}

func mustSendRaw(cl *smokeClient, data []byte, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cl.conn.Write(ctx, websocket.MessageText, data); err != nil {
		fatalf("%s: write: %v", cl.name, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smoke: "+format+"\n", args...)
	os.Exit(1)
}
