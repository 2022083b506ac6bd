package client

import (
	"reflect"
	"testing"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

func TestApplyToMirror(t *testing.T) {
	t.Parallel()

	msg := func(id int64, text string) v1.Message {
		return v1.Message{ID: id, User: "u", Text: text, Timestamp: 1700000000000}
	}

	tests := []struct {
		name   string
		mirror []v1.Message
		ev     v1.Event
		want   []v1.Message
	}{
		{
			name:   "init replaces wholesale",
			mirror: []v1.Message{msg(9, "stale")},
			ev:     v1.NewInitEvent([]v1.Message{msg(1, "a"), msg(2, "b")}),
			want:   []v1.Message{msg(1, "a"), msg(2, "b")},
		},
		{
			name:   "init with empty snapshot clears",
			mirror: []v1.Message{msg(1, "a")},
			ev:     v1.NewInitEvent(nil),
			want:   []v1.Message{},
		},
		{
			name:   "create appends",
			mirror: []v1.Message{msg(1, "a")},
			ev:     v1.NewCreateEvent(msg(2, "b")),
			want:   []v1.Message{msg(1, "a"), msg(2, "b")},
		},
		{
			name:   "update replaces in place",
			mirror: []v1.Message{msg(1, "a"), msg(2, "b")},
			ev:     v1.NewUpdateEvent(msg(1, "a2")),
			want:   []v1.Message{msg(1, "a2"), msg(2, "b")},
		},
		{
			name:   "update for absent id is a no-op",
			mirror: []v1.Message{msg(1, "a")},
			ev:     v1.NewUpdateEvent(msg(7, "ghost")),
			want:   []v1.Message{msg(1, "a")},
		},
		{
			name:   "delete removes preserving order",
			mirror: []v1.Message{msg(1, "a"), msg(2, "b"), msg(3, "c")},
			ev:     v1.NewDeleteEvent(2),
			want:   []v1.Message{msg(1, "a"), msg(3, "c")},
		},
		{
			name:   "delete for absent id is a no-op",
			mirror: []v1.Message{msg(1, "a")},
			ev:     v1.NewDeleteEvent(7),
			want:   []v1.Message{msg(1, "a")},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := applyToMirror(append([]v1.Message(nil), tc.mirror...), tc.ev)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			if len(got) > 0 && !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestApplyToMirrorInitDetachesFromSnapshot(t *testing.T) {
	t.Parallel()

	snap := []v1.Message{{ID: 1, User: "u", Text: "a"}}
	mirror := applyToMirror(nil, v1.NewInitEvent(snap))
	snap[0].Text = "mutated"

	if mirror[0].Text != "a" {
		t.Fatal("mirror aliases the snapshot slice")
	}
}
