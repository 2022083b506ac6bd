package realtime

import (
	"log/slog"
	"sync"

	v1 "github.com/chatsync/chatsync/protocol/v1"
)

// Hub owns the broadcast set and serializes every mutation against the
// shared Store.
//
// Concurrency guarantees:
//   - mutate-then-broadcast runs as one critical section, so events reach
//     members in the exact order mutations committed
//   - Register snapshots the store inside the same critical section, so the
//     init baseline can never miss or duplicate an event
//   - Broadcast never blocks: members with a full queue or a closing client
//     are skipped (delivery is best-effort, at-most-once per connection)
type Hub struct {
	log     *slog.Logger
	store   *Store
	metrics *Metrics

	mu      sync.Mutex
	members map[string]*Client
}

// NewHub constructs a Hub bound to a store. metrics may be nil.
func NewHub(log *slog.Logger, store *Store, metrics *Metrics) *Hub {
	return &Hub{
		log:     log,
		store:   store,
		metrics: metrics,
		members: make(map[string]*Client),
	}
}

// Register adds a client to the broadcast set and queues its init snapshot.
// Both happen inside the mutation critical section, so the snapshot is an
// exact baseline: every later fanout lands behind the init event, and no
// committed mutation is missing from it. The snapshot is returned for
// logging.
func (h *Hub) Register(client *Client) []v1.Message {
	if client == nil || client.SessionID == "" {
		return nil
	}

	h.mu.Lock()
	h.members[client.SessionID] = client
	snap := h.store.Snapshot()
	client.Send <- v1.NewInitEvent(snap)
	h.mu.Unlock()

	h.metrics.connOpened()
	h.log.Info("hub.member.join", "session_id", client.SessionID, "snapshot_len", len(snap))
	return snap
}

// Unregister removes a client from the broadcast set and signals its
// shutdown. Removing before Close avoids race windows where a broadcaster
// still holds the pointer while the client goroutines are being torn down.
func (h *Hub) Unregister(sessionID string) {
	if sessionID == "" {
		return
	}

	h.mu.Lock()
	cl := h.members[sessionID]
	delete(h.members, sessionID)
	h.mu.Unlock()

	if cl != nil {
		cl.Close()
		h.metrics.connClosed()
	}

	h.log.Info("hub.member.leave", "session_id", sessionID)
}

// Create appends a new message and fans out the create event.
// It never fails.
func (h *Hub) Create(user, text string) v1.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := h.store.Create(user, text)
	h.metrics.mutation(v1.TypeCreate)
	h.fanoutLocked(v1.NewCreateEvent(m))
	return m
}

// Update replaces a message text and fans out the update event.
// ErrNotFound produces no broadcast.
func (h *Hub) Update(id int64, text string) (v1.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, err := h.store.Update(id, text)
	if err != nil {
		return v1.Message{}, err
	}
	h.metrics.mutation(v1.TypeUpdate)
	h.fanoutLocked(v1.NewUpdateEvent(m))
	return m, nil
}

// Delete removes a message and fans out the delete event.
// ErrNotFound produces no broadcast.
func (h *Hub) Delete(id int64) (v1.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, err := h.store.Delete(id)
	if err != nil {
		return v1.Message{}, err
	}
	h.metrics.mutation(v1.TypeDelete)
	h.fanoutLocked(v1.NewDeleteEvent(id))
	return m, nil
}

// fanoutLocked delivers one event to every member whose transport is still
// writable. Callers must hold h.mu.
func (h *Hub) fanoutLocked(ev v1.Event) {
	h.metrics.broadcast()

	for _, m := range h.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- ev:
		default:
			// Drop rather than block the whole fanout.
			h.metrics.dropped()
			h.log.Warn("hub.broadcast.drop", "session_id", m.SessionID, "type", ev.Type)
		}
	}
}

// Members reports the current broadcast set size.
func (h *Hub) Members() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}
