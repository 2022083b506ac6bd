package realtime

import (
	"errors"
	"sync"
	"time"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

// ErrNotFound is returned by Update and Delete when no message has the
// requested id. The streaming path maps it to a silent no-op; the REST path
// maps it to 404.
var ErrNotFound = errors.New("message not found")

// Store is the sole authority over message identity and content.
//
// Invariants:
//   - ids are unique and strictly increasing in allocation order, starting
//     at 1; an id is never reused, even after its message is deleted
//   - the sequence holds messages in insertion order
//   - Create/Update/Delete are the only operations that change the sequence
//
// Store lives for the lifetime of the server process; there is no
// persistence.
type Store struct {
	mu     sync.Mutex
	nextID int64
	msgs   []v1.Message

	// now is swappable in tests for deterministic timestamps.
	now func() time.Time
}

// NewStore constructs an empty Store with the id counter at 1.
func NewStore() *Store {
	return &Store{
		nextID: 1,
		msgs:   make([]v1.Message, 0, 64),
		now:    time.Now,
	}
}

// Create allocates the next id, appends a message stamped with the current
// time, and returns it. Create never fails.
func (s *Store) Create(user, text string) v1.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := v1.Message{
		ID:        s.nextID,
		User:      user,
		Text:      text,
		Timestamp: s.now().UnixMilli(),
	}
	s.nextID++
	s.msgs = append(s.msgs, m)
	return m
}

// Update replaces the text of the message with the given id in place.
// The timestamp is unchanged. Returns ErrNotFound without mutating anything
// when the id is absent.
func (s *Store) Update(id int64, text string) (v1.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Text = text
			return s.msgs[i], nil
		}
	}
	return v1.Message{}, ErrNotFound
}

// Delete removes the message with the given id and returns the removed
// value. Returns ErrNotFound when the id is absent.
func (s *Store) Delete(id int64) (v1.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.msgs {
		if s.msgs[i].ID == id {
			removed := s.msgs[i]
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return removed, nil
		}
	}
	return v1.Message{}, ErrNotFound
}

// Snapshot returns a copy of the current full sequence in insertion order.
// It is the synchronization baseline for newly connecting clients.
func (s *Store) Snapshot() []v1.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]v1.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len reports the current number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}
