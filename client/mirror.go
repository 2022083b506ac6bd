package client

import v1 "github.com/chatsync/chatsync/protocol/v1"

// applyToMirror applies one server event to the local mirror and returns the
// new sequence. An init snapshot replaces the mirror wholesale; update and
// delete targeting an absent id are no-ops.
func applyToMirror(mirror []v1.Message, ev v1.Event) []v1.Message {
	switch ev.Type {
	case v1.TypeInit:
		return append([]v1.Message(nil), ev.Messages...)

	case v1.TypeCreate:
		if ev.Message == nil {
			return mirror
		}
		return append(mirror, *ev.Message)

	case v1.TypeUpdate:
		if ev.Message == nil {
			return mirror
		}
		for i := range mirror {
			if mirror[i].ID == ev.Message.ID {
				mirror[i] = *ev.Message
				break
			}
		}
		return mirror

	case v1.TypeDelete:
		for i := range mirror {
			if mirror[i].ID == ev.ID {
				return append(mirror[:i], mirror[i+1:]...)
			}
		}
		return mirror
	}

	return mirror
}
