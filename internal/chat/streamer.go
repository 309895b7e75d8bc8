// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/medassist-tui/internal/model"
)

// DefaultEmptyReply replaces an empty inference reply before it is streamed.
const DefaultEmptyReply = "No response."

// DefaultRevealInterval is the delay between two revealed runes.
const DefaultRevealInterval = 12 * time.Millisecond

// RevealTickMsg asks the Streamer to reveal the next rune of generation Gen.
type RevealTickMsg struct {
	Gen uint64
}

// =============================================================================
// STREAMER
// =============================================================================

// Streamer reveals a fully known reply into the Store one rune per tick.
//
// Every Start or Cancel bumps the generation; a tick carrying an older
// generation, or arriving after the Store's streaming id moved on, is dropped
// without touching the Store. At most one reveal is live per Streamer.
type Streamer struct {
	store    *Store
	sched    Scheduler
	interval time.Duration
	fallback string

	gen    uint64
	turnID string
	runes  []rune
	pos    int
	active bool
}

// NewStreamer creates a streamer writing into store.
func NewStreamer(store *Store, sched Scheduler, interval time.Duration, fallback string) *Streamer {
	if sched == nil {
		sched = TickScheduler{}
	}
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	if fallback == "" {
		fallback = DefaultEmptyReply
	}
	return &Streamer{
		store:    store,
		sched:    sched,
		interval: interval,
		fallback: fallback,
	}
}

// Start begins revealing reply into a new assistant turn and returns that
// turn's id with the command for the first tick. Any live reveal is
// superseded first.
func (s *Streamer) Start(reply string) (string, tea.Cmd) {
	s.Cancel()

	if reply == "" {
		reply = s.fallback
	}
	s.gen++
	s.runes = []rune(reply)
	s.pos = 0
	s.turnID = s.store.BeginStreamingTurn(model.RoleAssistant)
	s.active = true

	return s.turnID, s.sched.After(s.interval, RevealTickMsg{Gen: s.gen})
}

// Tick reveals the next rune. It reports done once the turn is finalized.
func (s *Streamer) Tick(msg RevealTickMsg) (done bool, cmd tea.Cmd) {
	if !s.live(msg.Gen) {
		return false, nil
	}

	s.pos++
	if s.pos < len(s.runes) {
		s.store.ReplaceStreamingTurn(s.turnID, string(s.runes[:s.pos]))
		return false, s.sched.After(s.interval, RevealTickMsg{Gen: s.gen})
	}

	s.store.FinalizeStreamingTurn(s.turnID, string(s.runes))
	s.reset()
	return true, nil
}

func (s *Streamer) live(gen uint64) bool {
	return s.active && gen == s.gen && s.store.StreamingID() == s.turnID
}

// Flush finalizes the live reveal with the full reply at once. It reports
// whether a reveal was live.
func (s *Streamer) Flush() bool {
	if !s.live(s.gen) {
		return false
	}
	s.store.FinalizeStreamingTurn(s.turnID, string(s.runes))
	s.gen++
	s.reset()
	return true
}

// Cancel abandons the live reveal and removes its partial turn. It reports
// whether a reveal was live.
func (s *Streamer) Cancel() bool {
	if !s.active {
		return false
	}
	s.gen++
	if s.store.StreamingID() == s.turnID {
		s.store.Remove(s.turnID)
	}
	s.reset()
	return true
}

func (s *Streamer) reset() {
	s.active = false
	s.turnID = ""
	s.runes = nil
	s.pos = 0
}

// Active reports whether a reveal is in progress.
func (s *Streamer) Active() bool {
	return s.active
}

// TurnID returns the id of the turn being revealed, or "".
func (s *Streamer) TurnID() string {
	return s.turnID
}

// Generation returns the current reveal generation.
func (s *Streamer) Generation() uint64 {
	return s.gen
}
