// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package loopback is an in-memory homeserver implementing
// gateway.ProtocolGateway. It backs local development and tests, and can
// inject the failures a real backend produces.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/efchatnet/privchat/backend/gateway"
)

var ErrUnknownRoom = errors.New("loopback: unknown room")

// Hooks inject failures. Every field is optional.
type Hooks struct {
	CreateRoom func(req gateway.CreateRoomRequest) error
	Invite     func(roomID, userID string) error
	SendEvent  func(roomID string, content map[string]any) error
	Redact     func(roomID, eventID string) error

	// CreateRoomResponse replaces the response shape of CreateRoom.
	CreateRoomResponse func(roomID string) any
	// SendEventResponse replaces the response shape of SendEvent.
	SendEventResponse func(eventID string) any

	// DropInitialEncryption skips the encryption event in initial_state,
	// as backends that apply initial state asynchronously do.
	DropInitialEncryption bool
	// RejectEncryptionState ignores every m.room.encryption write.
	RejectEncryptionState bool
	// SyncAfter is the number of GetRoom calls that miss a new room
	// before it becomes visible. Negative never syncs.
	SyncAfter int
}

// Event is a stored timeline event.
type Event struct {
	ID       string
	Type     string
	Sender   string
	Content  map[string]any
	Redacted bool
	Reason   string
}

type room struct {
	id      string
	state   map[string]map[string]any
	events  map[string]*Event
	order   []string
	txns    map[string]string
	invited []string
	misses  int
	syncAt  int
}

// Server is the in-memory homeserver.
type Server struct {
	mu        sync.Mutex
	userID    string
	connected bool
	rooms     map[string]*room
	hooks     Hooks
	crypto    *Crypto
	calls     map[string]int
}

func New(userID string) *Server {
	return &Server{
		userID:    userID,
		connected: true,
		rooms:     make(map[string]*room),
		crypto:    NewCrypto(),
		calls:     make(map[string]int),
	}
}

// SetHooks replaces the fault injection hooks.
func (s *Server) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// SetConnected toggles the live connection flag.
func (s *Server) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// CryptoProvider returns the loopback crypto provider for inspection.
func (s *Server) CryptoProvider() *Crypto { return s.crypto }

// Calls returns how often a gateway method was invoked.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func stateKey(eventType, key string) string {
	return eventType + "\x00" + key
}

func (s *Server) CreateRoom(ctx context.Context, req gateway.CreateRoomRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateRoom"]++

	if s.hooks.CreateRoom != nil {
		if err := s.hooks.CreateRoom(req); err != nil {
			return nil, err
		}
	}

	r := &room{
		id:     fmt.Sprintf("!%s:loopback", uuid.New().String()),
		state:  make(map[string]map[string]any),
		events: make(map[string]*Event),
		txns:   make(map[string]string),
		syncAt: s.hooks.SyncAfter,
	}
	r.state[stateKey("m.room.create", "")] = map[string]any{"creator": s.userID}
	if req.Name != "" {
		r.state[stateKey("m.room.name", "")] = map[string]any{"name": req.Name}
	}
	if req.Topic != "" {
		r.state[stateKey("m.room.topic", "")] = map[string]any{"topic": req.Topic}
	}
	for _, ev := range req.InitialState {
		if ev.Type == "m.room.encryption" && (s.hooks.DropInitialEncryption || s.hooks.RejectEncryptionState) {
			continue
		}
		r.state[stateKey(ev.Type, ev.StateKey)] = cloneContent(ev.Content)
	}
	s.rooms[r.id] = r

	if s.hooks.CreateRoomResponse != nil {
		return s.hooks.CreateRoomResponse(r.id), nil
	}
	return gateway.CreateRoomResponse{RoomID: r.id}, nil
}

func (s *Server) Invite(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Invite"]++

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	if s.hooks.Invite != nil {
		if err := s.hooks.Invite(roomID, userID); err != nil {
			return err
		}
	}
	r.invited = append(r.invited, userID)
	return nil
}

func (s *Server) SendStateEvent(ctx context.Context, roomID, eventType string, content map[string]any, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["SendStateEvent"]++

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	if eventType == "m.room.encryption" && s.hooks.RejectEncryptionState {
		return nil
	}
	r.state[stateKey(eventType, key)] = cloneContent(content)
	return nil
}

func (s *Server) SendEvent(ctx context.Context, roomID, eventType string, content map[string]any, txnID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["SendEvent"]++

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrUnknownRoom
	}
	if s.hooks.SendEvent != nil {
		if err := s.hooks.SendEvent(roomID, content); err != nil {
			return nil, err
		}
	}

	eventID, seen := r.txns[txnID]
	if !seen || txnID == "" {
		eventID = "$" + uuid.New().String()
		r.events[eventID] = &Event{
			ID:      eventID,
			Type:    eventType,
			Sender:  s.userID,
			Content: cloneContent(content),
		}
		r.order = append(r.order, eventID)
		if txnID != "" {
			r.txns[txnID] = eventID
		}
	}

	if s.hooks.SendEventResponse != nil {
		return s.hooks.SendEventResponse(eventID), nil
	}
	return gateway.SendEventResponse{EventID: eventID}, nil
}

func (s *Server) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["RedactEvent"]++

	if s.hooks.Redact != nil {
		if err := s.hooks.Redact(roomID, eventID); err != nil {
			return err
		}
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	ev, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("loopback: unknown event %s", eventID)
	}
	ev.Redacted = true
	ev.Reason = reason
	ev.Content = map[string]any{}
	return nil
}

func (s *Server) GetRoom(roomID string) (gateway.RoomHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetRoom"]++

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	if r.syncAt < 0 {
		return nil, false
	}
	if r.misses < r.syncAt {
		r.misses++
		return nil, false
	}
	return &roomHandle{srv: s, roomID: roomID}, true
}

func (s *Server) Crypto() (gateway.CryptoHandle, bool) {
	if s.crypto == nil {
		return nil, false
	}
	return s.crypto, true
}

func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Server) UserID() string { return s.userID }

// SetState overwrites a state event directly, as another client would.
func (s *Server) SetState(roomID, eventType, key string, content map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	if content == nil {
		delete(r.state, stateKey(eventType, key))
		return nil
	}
	r.state[stateKey(eventType, key)] = cloneContent(content)
	return nil
}

// Invited lists the users invited to a room, in order.
func (s *Server) Invited(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]string(nil), r.invited...)
}

// Event returns a copy of a stored timeline event.
func (s *Server) Event(roomID, eventID string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return Event{}, false
	}
	ev, ok := r.events[eventID]
	if !ok {
		return Event{}, false
	}
	cp := *ev
	cp.Content = cloneContent(ev.Content)
	return cp, true
}

// Events returns the room timeline in send order.
func (s *Server) Events(roomID string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Event, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.events[id]
		cp.Content = cloneContent(cp.Content)
		out = append(out, cp)
	}
	return out
}

type roomHandle struct {
	srv    *Server
	roomID string
}

func (h *roomHandle) StateEvent(eventType, key string) (map[string]any, bool) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	r, ok := h.srv.rooms[h.roomID]
	if !ok {
		return nil, false
	}
	content, ok := r.state[stateKey(eventType, key)]
	if !ok {
		return nil, false
	}
	return cloneContent(content), true
}

func cloneContent(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
