// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/medassist-tui/internal/model"
)

func recordEvents(s *Store) *[]Event {
	var events []Event
	s.Subscribe(func(ev Event) {
		events = append(events, ev)
	})
	return &events
}

func TestStoreAppendRemapsCollidingIDs(t *testing.T) {
	s := NewStore(nil)
	for i := 0; i < 50; i++ {
		s.Append(model.Turn{ID: "dup", Role: model.RoleUser, Content: "x"})
	}
	s.Append(model.Turn{Role: model.RoleAssistant, Content: "no id"})

	seen := make(map[string]bool)
	for _, turn := range s.Turns() {
		require.NotEmpty(t, turn.ID)
		assert.False(t, seen[turn.ID], "duplicate id %s", turn.ID)
		seen[turn.ID] = true
		assert.False(t, turn.CreatedAt.IsZero())
	}
	assert.Equal(t, 51, s.Len())

	first, ok := s.Get("dup")
	require.True(t, ok)
	assert.Equal(t, "x", first.Content)
}

func TestStoreStreamingGuards(t *testing.T) {
	s := NewStore(nil)
	events := recordEvents(s)

	id := s.BeginStreamingTurn(model.RoleAssistant)
	assert.Equal(t, id, s.StreamingID())

	assert.False(t, s.ReplaceStreamingTurn("other", "nope"))
	assert.True(t, s.ReplaceStreamingTurn(id, "Hel"))
	assert.True(t, s.FinalizeStreamingTurn(id, "Hello"))
	assert.Empty(t, s.StreamingID())

	// Late writes after finalize are ignored.
	assert.False(t, s.ReplaceStreamingTurn(id, "garbage"))
	assert.False(t, s.FinalizeStreamingTurn(id, "garbage"))

	turn, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Hello", turn.Content)

	kinds := make([]EventKind, 0, len(*events))
	for _, ev := range *events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventAppended, EventReplaced, EventFinalized, EventAssistantCompleted}, kinds)
}

func TestStoreNewStreamingTurnInvalidatesOld(t *testing.T) {
	s := NewStore(nil)
	a := s.BeginStreamingTurn(model.RoleAssistant)
	b := s.BeginStreamingTurn(model.RoleAssistant)

	assert.False(t, s.ReplaceStreamingTurn(a, "stale"))
	assert.True(t, s.ReplaceStreamingTurn(b, "fresh"))
}

func TestStoreRemoveAndReindex(t *testing.T) {
	s := NewStore(nil)
	u := s.Append(model.Turn{Role: model.RoleUser, Content: "one"})
	id := s.BeginStreamingTurn(model.RoleAssistant)
	last := s.Append(model.Turn{Role: model.RoleUser, Content: "two"})

	assert.True(t, s.Remove(id))
	assert.False(t, s.Remove(id))
	assert.Empty(t, s.StreamingID())
	assert.Equal(t, 2, s.Len())

	got, ok := s.Get(last.ID)
	require.True(t, ok)
	assert.Equal(t, "two", got.Content)
	got, ok = s.Get(u.ID)
	require.True(t, ok)
	assert.Equal(t, "one", got.Content)
}

func TestStoreHydrateOrdersByCreation(t *testing.T) {
	s := NewStore(nil)
	events := recordEvents(s)
	s.BeginStreamingTurn(model.RoleAssistant)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Hydrate([]model.Turn{
		{ID: "c", Role: model.RoleUser, Content: "3", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "a", Role: model.RoleUser, Content: "1", CreatedAt: base},
		{ID: "b", Role: model.RoleAssistant, Content: "2", CreatedAt: base.Add(time.Minute)},
	})

	turns := s.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{turns[0].ID, turns[1].ID, turns[2].ID})
	assert.Empty(t, s.StreamingID())

	for _, ev := range *events {
		assert.NotEqual(t, EventAssistantCompleted, ev.Kind)
	}
	assert.Equal(t, EventHydrated, (*events)[len(*events)-1].Kind)
}

func TestStoreClear(t *testing.T) {
	s := NewStore(nil)
	s.Append(model.Turn{Role: model.RoleUser, Content: "hi"})
	s.BeginStreamingTurn(model.RoleAssistant)
	s.Clear()

	assert.Zero(t, s.Len())
	assert.Empty(t, s.StreamingID())
}

func TestStoreHistorySkipsErrorsAndStreaming(t *testing.T) {
	s := NewStore(nil)
	s.Append(model.Turn{Role: model.RoleUser, Content: "q1"})
	s.Append(model.Turn{Role: model.RoleError, Content: "timeout"})
	s.Append(model.Turn{Role: model.RoleAssistant, Content: "a1"})
	id := s.BeginStreamingTurn(model.RoleAssistant)
	s.ReplaceStreamingTurn(id, "partial")

	assert.Equal(t, []model.HistoryEntry{
		{Role: model.RoleUser, Content: "q1"},
		{Role: model.RoleAssistant, Content: "a1"},
	}, s.History())
}

func TestStoreUnsubscribe(t *testing.T) {
	s := NewStore(nil)
	calls := 0
	unsubscribe := s.Subscribe(func(Event) { calls++ })
	s.Append(model.Turn{Role: model.RoleUser, Content: "a"})
	unsubscribe()
	s.Append(model.Turn{Role: model.RoleUser, Content: "b"})
	assert.Equal(t, 1, calls)
}

func TestStoreTurnsIsACopy(t *testing.T) {
	s := NewStore(nil)
	s.Append(model.Turn{Role: model.RoleUser, Content: "a"})
	turns := s.Turns()
	turns[0].Content = "changed"

	assert.Equal(t, "a", s.Turns()[0].Content)
}
