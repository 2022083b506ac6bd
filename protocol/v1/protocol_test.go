package v1

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "create ok", in: `{"type":"create","user":"Alice","text":"hi"}`},
		{name: "update ok", in: `{"type":"update","id":3,"text":"hello"}`},
		{name: "delete ok", in: `{"type":"delete","id":3}`},
		{name: "not json", in: `{nope`, wantErr: true},
		{name: "missing type", in: `{"user":"Alice","text":"hi"}`, wantErr: true},
		{name: "unknown type", in: `{"type":"upsert","id":1,"text":"x"}`, wantErr: true},
		{name: "init is not a request", in: `{"type":"init"}`, wantErr: true},
		{name: "create without user", in: `{"type":"create","text":"hi"}`, wantErr: true},
		{name: "create without text", in: `{"type":"create","user":"Alice"}`, wantErr: true},
		{name: "update without id", in: `{"type":"update","text":"hi"}`, wantErr: true},
		{name: "update without text", in: `{"type":"update","id":1}`, wantErr: true},
		{name: "delete without id", in: `{"type":"delete"}`, wantErr: true},
		{name: "negative id", in: `{"type":"delete","id":-4}`, wantErr: true},
		{name: "text too long", in: `{"type":"create","user":"a","text":"` + strings.Repeat("x", MaxTextChars+1) + `"}`, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRequest([]byte(tc.in))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseRequest(%q): err=%v wantErr=%v", tc.in, err, tc.wantErr)
			}
		})
	}
}

func TestEventMarshalShapes(t *testing.T) {
	t.Parallel()

	msg := Message{ID: 1, User: "Alice", Text: "hi", Timestamp: 1700000000000}

	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "init empty snapshot keeps messages field",
			ev:   NewInitEvent(nil),
			want: `{"type":"init","messages":[]}`,
		},
		{
			name: "init with message",
			ev:   NewInitEvent([]Message{msg}),
			want: `{"type":"init","messages":[{"id":1,"user":"Alice","text":"hi","timestamp":1700000000000}]}`,
		},
		{
			name: "create carries message",
			ev:   NewCreateEvent(msg),
			want: `{"type":"create","message":{"id":1,"user":"Alice","text":"hi","timestamp":1700000000000}}`,
		},
		{
			name: "delete carries id only",
			ev:   NewDeleteEvent(7),
			want: `{"type":"delete","id":7}`,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tc.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("marshal=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestParseEventRoundTrip(t *testing.T) {
	t.Parallel()

	msg := Message{ID: 2, User: "Bob", Text: "yo", Timestamp: 1700000000001}
	for _, ev := range []Event{
		NewInitEvent([]Message{msg}),
		NewCreateEvent(msg),
		NewUpdateEvent(msg),
		NewDeleteEvent(2),
	} {
		b, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal %s: %v", ev.Type, err)
		}
		got, err := ParseEvent(b)
		if err != nil {
			t.Fatalf("parse %s: %v", ev.Type, err)
		}
		if got.Type != ev.Type {
			t.Fatalf("type=%s want=%s", got.Type, ev.Type)
		}
	}
}

func TestParseEventRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		`not json`,
		`{"type":"snapshot"}`,
		`{"type":"create"}`,
		`{"type":"delete"}`,
	} {
		if _, err := ParseEvent([]byte(in)); err == nil {
			t.Fatalf("ParseEvent(%q): expected error", in)
		}
	}
}
