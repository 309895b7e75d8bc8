// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sort"
	"time"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind names a change applied to the Store.
type EventKind string

const (
	EventAppended           EventKind = "appended"
	EventReplaced           EventKind = "replaced"
	EventFinalized          EventKind = "finalized"
	EventRemoved            EventKind = "removed"
	EventCleared            EventKind = "cleared"
	EventHydrated           EventKind = "hydrated"
	EventAssistantCompleted EventKind = "assistant_completed"
)

// Event describes one store change. Turn is the affected turn (zero for
// cleared/hydrated) and Count is the number of turns after the change.
type Event struct {
	Kind  EventKind
	Turn  model.Turn
	Count int
}

// Mutation reports whether the event changed the turn list.
func (e Event) Mutation() bool {
	return e.Kind != EventAssistantCompleted
}

// =============================================================================
// STORE
// =============================================================================

// Store is the canonical ordered turn log of one session. It is not safe for
// concurrent use; the Controller's Update loop is its only writer.
type Store struct {
	turns       []model.Turn
	index       map[string]int
	streamingID string
	ids         *model.IDGenerator
	subs        []subscriber
	nextSub     int
	now         func() time.Time
}

// NewStore creates an empty store minting ids from ids.
func NewStore(ids *model.IDGenerator) *Store {
	if ids == nil {
		ids = model.NewIDGenerator()
	}
	return &Store{
		index: make(map[string]int),
		ids:   ids,
		now:   time.Now,
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. Subscribers run synchronously in registration order.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) emit(kind EventKind, turn model.Turn) {
	ev := Event{Kind: kind, Turn: turn, Count: len(s.turns)}
	for _, sub := range s.subs {
		sub.fn(ev)
	}
}

// Append inserts turn at the end and returns it as stored. An empty or
// colliding id is silently replaced with a freshly minted one.
func (s *Store) Append(turn model.Turn) model.Turn {
	turn = s.prepare(turn)
	s.index[turn.ID] = len(s.turns)
	s.turns = append(s.turns, turn)
	s.emit(EventAppended, turn)
	return turn
}

func (s *Store) prepare(turn model.Turn) model.Turn {
	for turn.ID == "" || s.has(turn.ID) {
		turn.ID = s.ids.Next(turn.Role)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now().UTC()
	}
	return turn
}

func (s *Store) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// BeginStreamingTurn appends an empty turn and marks it as the streaming
// turn. Any previous streaming reference is dropped, so late updates aimed
// at it become no-ops.
func (s *Store) BeginStreamingTurn(role model.Role) string {
	s.streamingID = ""
	turn := s.prepare(model.Turn{Role: role})
	s.index[turn.ID] = len(s.turns)
	s.turns = append(s.turns, turn)
	s.streamingID = turn.ID
	s.emit(EventAppended, turn)
	return turn.ID
}

// ReplaceStreamingTurn updates the content of the streaming turn in place.
// It is a no-op returning false unless id is the current streaming turn.
func (s *Store) ReplaceStreamingTurn(id, content string) bool {
	if id == "" || id != s.streamingID {
		return false
	}
	i := s.index[id]
	s.turns[i].Content = content
	s.emit(EventReplaced, s.turns[i])
	return true
}

// FinalizeStreamingTurn writes the final content and clears the streaming
// reference. Same staleness guard as ReplaceStreamingTurn.
func (s *Store) FinalizeStreamingTurn(id, content string) bool {
	if id == "" || id != s.streamingID {
		return false
	}
	i := s.index[id]
	s.turns[i].Content = content
	s.streamingID = ""
	turn := s.turns[i]
	s.emit(EventFinalized, turn)
	if turn.Role == model.RoleAssistant {
		s.emit(EventAssistantCompleted, turn)
	}
	return true
}

// Remove deletes the turn with id. Only superseded streaming turns are
// removed in practice.
func (s *Store) Remove(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	turn := s.turns[i]
	s.turns = append(s.turns[:i], s.turns[i+1:]...)
	s.reindex()
	if s.streamingID == id {
		s.streamingID = ""
	}
	s.emit(EventRemoved, turn)
	return true
}

// Clear empties the log.
func (s *Store) Clear() {
	s.turns = nil
	s.index = make(map[string]int)
	s.streamingID = ""
	s.emit(EventCleared, model.Turn{})
}

// Hydrate replaces the log with persisted turns ordered by creation time.
// No assistant-completed events are emitted.
func (s *Store) Hydrate(turns []model.Turn) {
	sorted := model.CloneTurns(turns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	s.turns = make([]model.Turn, 0, len(sorted))
	s.index = make(map[string]int, len(sorted))
	s.streamingID = ""
	for _, t := range sorted {
		t = s.prepare(t)
		s.index[t.ID] = len(s.turns)
		s.turns = append(s.turns, t)
	}
	s.emit(EventHydrated, model.Turn{})
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.turns))
	for i, t := range s.turns {
		s.index[t.ID] = i
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Turns returns a copy of the log.
func (s *Store) Turns() []model.Turn {
	return model.CloneTurns(s.turns)
}

// Len returns the number of turns.
func (s *Store) Len() int {
	return len(s.turns)
}

// Get returns the turn with id.
func (s *Store) Get(id string) (model.Turn, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Turn{}, false
	}
	return s.turns[i], true
}

// StreamingID returns the id of the turn being revealed, or "".
func (s *Store) StreamingID() string {
	return s.streamingID
}

// History projects the finished user and assistant turns into inference
// context. Error turns and a partially revealed turn are never sent back.
func (s *Store) History() []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(s.turns))
	for _, t := range s.turns {
		if t.ID == s.streamingID {
			continue
		}
		if t.Role != model.RoleUser && t.Role != model.RoleAssistant {
			continue
		}
		out = append(out, model.HistoryEntry{Role: t.Role, Content: t.Content})
	}
	return out
}
