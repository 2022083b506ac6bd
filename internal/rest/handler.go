// Package rest exposes the fallback CRUD interface over the shared store.
//
// REST mutations flow through the same mutate-then-broadcast path as the
// streaming interface, so every connected client stays consistent regardless
// of which interface triggered the mutation. Unlike the streaming path,
// mutations targeting a missing id return an explicit 404 here.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/chatsync/chatsync/internal/realtime"
	v1 "github.com/chatsync/chatsync/protocol/v1"
)

// Handler serves the /messages endpoints.
type Handler struct {
	log   *slog.Logger
	store *realtime.Store
	hub   *realtime.Hub
}

// NewHandler constructs a Handler over the shared store and hub.
func NewHandler(log *slog.Logger, store *realtime.Store, hub *realtime.Hub) *Handler {
	return &Handler{log: log, store: store, hub: hub}
}

// Register mounts the message endpoints on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages", h.createMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", h.updateMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)
}

type createBody struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type updateBody struct {
	Text string `json:"text"`
}

func (h *Handler) listMessages(w http.ResponseWriter, _ *http.Request) {
	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) createMessage(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// Same structural rules as the streaming path, so nothing a websocket
	// client would be forbidden to send can enter through here.
	req := v1.Request{Type: v1.TypeCreate, User: body.User, Text: body.Text}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := h.hub.Create(body.User, body.Text)
	h.log.Info("rest.message.create", "id", m.ID, "user", m.User)
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) updateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req := v1.Request{Type: v1.TypeUpdate, ID: id, Text: body.Text}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.hub.Update(id, body.Text)
	if err != nil {
		if errors.Is(err, realtime.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info("rest.message.update", "id", m.ID)
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.hub.Delete(id)
	if err != nil {
		if errors.Is(err, realtime.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info("rest.message.delete", "id", id)
	writeJSON(w, http.StatusOK, m)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Snapshot of an empty store must render as [] rather than null.
	if msgs, ok := body.([]v1.Message); ok && msgs == nil {
		body = []v1.Message{}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
