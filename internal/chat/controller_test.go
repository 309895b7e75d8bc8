// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/inference"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/scratch"
	"github.com/jeranaias/medassist-tui/internal/session"
	"github.com/jeranaias/medassist-tui/internal/storage"
)

// =============================================================================
// HARNESS
// =============================================================================

// pump executes commands first in, first out and feeds their messages back
// through the controller, like a Bubble Tea program with instant timers.
type pump struct {
	t     *testing.T
	c     *Controller
	queue []tea.Cmd
}

func (p *pump) push(cmd tea.Cmd) {
	if cmd != nil {
		p.queue = append(p.queue, cmd)
	}
}

func (p *pump) step() bool {
	if len(p.queue) == 0 {
		return false
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	switch msg := next().(type) {
	case nil:
	case tea.BatchMsg:
		for _, cmd := range msg {
			p.push(cmd)
		}
	default:
		p.push(p.c.Update(msg))
	}
	return true
}

func (p *pump) drain() {
	p.t.Helper()
	for steps := 0; p.step(); steps++ {
		require.Less(p.t, steps, 100000, "command queue did not drain")
	}
}

func (p *pump) until(cond func() bool) {
	p.t.Helper()
	for steps := 0; !cond(); steps++ {
		require.Less(p.t, steps, 100000, "condition never reached")
		require.True(p.t, p.step(), "queue drained before condition")
	}
}

type fixture struct {
	c       *Controller
	p       *pump
	vp      *fakeViewport
	scratch *scratch.MemoryStorage
	durable *storage.MemoryStore
	user    *auth.User
}

func newFixture(t *testing.T, client inference.Client) *fixture {
	t.Helper()
	f := &fixture{
		vp:      &fakeViewport{},
		scratch: scratch.NewMemoryStorage(),
		durable: storage.NewMemoryStore(),
		user:    &auth.User{ID: "user-1", Email: "pat@example.com"},
	}
	lc := session.New(f.scratch, f.durable, auth.Static{User: f.user}, session.DefaultConfig())
	f.c = NewController(client, lc, Options{Scheduler: ImmediateScheduler{}})
	f.c.SetViewport(f.vp)
	f.p = &pump{t: t, c: f.c}
	f.p.push(f.c.NewChat())
	f.p.drain()
	return f
}

func replies(m map[string]string) inference.Client {
	return inference.ClientFunc(func(_ context.Context, msg string, _ []model.HistoryEntry) inference.Result {
		return inference.Succeeded(m[msg])
	})
}

func (f *fixture) scratchTurns(t *testing.T) (string, bool) {
	t.Helper()
	v, ok, err := f.scratch.Get(session.DefaultScratchKey)
	require.NoError(t, err)
	return v, ok
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestControllerHappyPath(t *testing.T) {
	f := newFixture(t, replies(map[string]string{
		"I have a headache": "Try resting and drink water.",
	}))
	completed := 0
	f.c.Store().Subscribe(func(ev Event) {
		if ev.Kind == EventAssistantCompleted {
			completed++
		}
	})

	f.p.push(f.c.Send("I have a headache"))
	require.Len(t, f.c.Turns(), 1)
	assert.Equal(t, model.RoleUser, f.c.Turns()[0].Role)
	assert.True(t, f.c.IsAwaitingReply())

	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Try resting and drink water.", turns[1].Content)
	assert.False(t, f.c.IsAwaitingReply())
	assert.Empty(t, f.c.StreamingTurnID())
	assert.False(t, f.c.Scroll().Continuous(), "continuous scroll stopped")
	assert.Positive(t, f.vp.bottoms)
	assert.Equal(t, 1, completed)
	assert.Equal(t, session.PhaseActive, f.c.Phase())

	raw, ok := f.scratchTurns(t)
	require.True(t, ok)
	assert.Contains(t, raw, "Try resting and drink water.")
}

func TestControllerInferenceFailure(t *testing.T) {
	calls := 0
	f := newFixture(t, inference.ClientFunc(func(context.Context, string, []model.HistoryEntry) inference.Result {
		calls++
		if calls == 1 {
			return inference.Result{Success: false, ErrorMessage: "timeout"}
		}
		return inference.Succeeded("Back online.")
	}))

	f.p.push(f.c.Send("hello"))
	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleError, turns[1].Role)
	assert.Contains(t, turns[1].Content, "timeout")
	assert.False(t, f.c.IsAwaitingReply())
	assert.Equal(t, session.PhaseActive, f.c.Phase())

	// The session stays usable.
	f.p.push(f.c.Send("again"))
	f.p.drain()
	turns = f.c.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, "Back online.", turns[3].Content)
}

func TestControllerFailureWithoutMessage(t *testing.T) {
	f := newFixture(t, inference.ClientFunc(func(context.Context, string, []model.HistoryEntry) inference.Result {
		return inference.Result{}
	}))
	f.p.push(f.c.Send("hello"))
	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, DefaultErrorText, turns[1].Content)
}

func TestControllerInferenceTimeout(t *testing.T) {
	f := newFixture(t, inference.ClientFunc(func(ctx context.Context, _ string, _ []model.HistoryEntry) inference.Result {
		<-ctx.Done()
		return inference.Failed(ctx.Err())
	}))
	f.c.opts.InferenceTimeout = 10 * time.Millisecond

	f.p.push(f.c.Send("are you there"))
	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleError, turns[1].Role)
	assert.Contains(t, turns[1].Content, "timeout")
}

func TestControllerNilClient(t *testing.T) {
	f := newFixture(t, nil)
	f.p.push(f.c.Send("hello"))
	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Content, "not configured")
}

func TestControllerIgnoresBlankInput(t *testing.T) {
	f := newFixture(t, replies(nil))
	assert.Nil(t, f.c.Send("   \n\t "))
	assert.Empty(t, f.c.Turns())
	assert.Equal(t, session.PhaseFresh, f.c.Phase())
}

func TestControllerNormalizesInput(t *testing.T) {
	var got string
	f := newFixture(t, inference.ClientFunc(func(_ context.Context, msg string, _ []model.HistoryEntry) inference.Result {
		got = msg
		return inference.Succeeded("ok")
	}))
	f.p.push(f.c.Send("  Café visit  "))
	f.p.drain()

	assert.Equal(t, "Café visit", got)
	assert.Equal(t, "Café visit", f.c.Turns()[0].Content)
}

func TestControllerHistoryPrecedesMessage(t *testing.T) {
	var histories [][]model.HistoryEntry
	f := newFixture(t, inference.ClientFunc(func(_ context.Context, msg string, h []model.HistoryEntry) inference.Result {
		histories = append(histories, h)
		return inference.Succeeded("re: " + msg)
	}))

	f.p.push(f.c.Send("one"))
	f.p.drain()
	f.p.push(f.c.Send("two"))
	f.p.drain()

	require.Len(t, histories, 2)
	assert.Empty(t, histories[0])
	assert.Equal(t, []model.HistoryEntry{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "re: one"},
	}, histories[1])
}

func TestControllerStreamingMonotonic(t *testing.T) {
	reply := "Stay hydrated and rest for a day or two."
	f := newFixture(t, replies(map[string]string{"cold": reply}))

	var lengths []int
	f.c.Store().Subscribe(func(ev Event) {
		if ev.Turn.Role == model.RoleAssistant && (ev.Kind == EventReplaced || ev.Kind == EventFinalized) {
			lengths = append(lengths, len([]rune(ev.Turn.Content)))
		}
	})

	f.p.push(f.c.Send("cold"))
	f.p.drain()

	require.NotEmpty(t, lengths)
	for i := 1; i < len(lengths); i++ {
		assert.Greater(t, lengths[i], lengths[i-1])
	}
	assert.Equal(t, len([]rune(reply)), lengths[len(lengths)-1])
}

func TestControllerEmptyReply(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"?": ""}))
	f.p.push(f.c.Send("?"))
	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "No response.", turns[1].Content)
}

func TestControllerSecondSendSupersedesStream(t *testing.T) {
	long := strings.Repeat("slow reply ", 5)
	f := newFixture(t, replies(map[string]string{
		"hello": long,
		"hi":    "Hi there!",
	}))

	f.p.push(f.c.Send("hello"))
	f.p.until(func() bool {
		turn, ok := f.c.Store().Get(f.c.StreamingTurnID())
		return ok && len(turn.Content) >= 5
	})
	turnA := f.c.StreamingTurnID()
	require.NotEmpty(t, turnA)

	cmd := f.c.Send("hi")
	violations := 0
	f.c.Store().Subscribe(func(ev Event) {
		if ev.Turn.ID == turnA {
			violations++
		}
	})
	f.p.push(cmd)
	f.p.drain()

	assert.Zero(t, violations, "no mutations from the superseded stream")
	var assistants []model.Turn
	for _, turn := range f.c.Turns() {
		if turn.Role == model.RoleAssistant {
			assistants = append(assistants, turn)
		}
	}
	require.Len(t, assistants, 1)
	assert.Equal(t, "Hi there!", assistants[0].Content)
	assert.Len(t, f.c.Turns(), 3)
	assert.False(t, f.c.IsAwaitingReply())
}

func TestControllerStaleInferenceResultDropped(t *testing.T) {
	calls := 0
	f := newFixture(t, inference.ClientFunc(func(_ context.Context, msg string, _ []model.HistoryEntry) inference.Result {
		calls++
		return inference.Succeeded("answer to " + msg)
	}))

	cmdA := f.c.Send("first")
	cmdB := f.c.Send("second")
	f.p.push(cmdA)
	f.p.push(cmdB)
	f.p.drain()

	assert.Equal(t, 2, calls)
	turns := f.c.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
	assert.Equal(t, "answer to second", turns[2].Content)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestControllerOpenHistorical(t *testing.T) {
	f := newFixture(t, replies(nil))
	ctx := context.Background()

	id, err := f.durable.CreateHeader(ctx, model.ConversationHeader{UserID: f.user.ID, Title: "abc"})
	require.NoError(t, err)
	base := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.durable.InsertTurns(ctx, id, []model.Turn{
		{ID: "1", Role: model.RoleUser, Content: "I feel dizzy", CreatedAt: base},
		{ID: "2", Role: model.RoleAssistant, Content: "Sit down for a moment.", CreatedAt: base.Add(time.Second)},
		{ID: "3", Role: model.RoleUser, Content: "Thanks", CreatedAt: base.Add(2 * time.Second)},
	}))

	header, cmd, err := f.c.OpenHistorical(ctx, id)
	require.NoError(t, err)
	f.p.push(cmd)
	f.p.drain()

	assert.Equal(t, "abc", header.Title)
	turns := f.c.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{turns[0].ID, turns[1].ID, turns[2].ID})
	assert.Empty(t, f.c.StreamingTurnID())
	assert.False(t, f.c.IsAwaitingReply())

	_, ok := f.scratchTurns(t)
	assert.False(t, ok, "hydration does not touch scratch")

	leave, _ := f.c.RequestExit()
	assert.True(t, leave, "no new turns to save")
}

func TestControllerSaveClearsScratch(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"I have a headache": "Try resting and drink water."}))
	f.p.push(f.c.Send("I have a headache"))
	f.p.drain()

	leave, cmd := f.c.RequestExit()
	f.p.push(cmd)
	f.p.drain()
	require.False(t, leave)
	assert.Equal(t, session.PhaseExitPending, f.c.Phase())

	msg, ok := f.c.SaveCmd()().(SaveResultMsg)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	assert.NotEmpty(t, msg.ConversationID)
	assert.Equal(t, session.PhaseSaved, f.c.Phase())

	_, ok = f.scratchTurns(t)
	assert.False(t, ok)

	conv, err := storage.LoadConversation(context.Background(), f.durable, f.user.ID, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "I have a headache", conv.Header.Title)
	assert.Len(t, conv.Turns, 2)

	assert.ErrorIs(t, f.c.Discard(), session.ErrNotExitPending)
}

func TestControllerDiscard(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"hi": "hello"}))
	f.p.push(f.c.Send("hi"))
	f.p.drain()

	leave, _ := f.c.RequestExit()
	require.False(t, leave)
	require.NoError(t, f.c.Discard())
	assert.Equal(t, session.PhaseDiscarded, f.c.Phase())

	_, ok := f.scratchTurns(t)
	assert.False(t, ok)
	headers, err := f.durable.ListHeaders(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, headers)

	_, err = f.c.Save(context.Background())
	assert.ErrorIs(t, err, session.ErrNotExitPending)
}

func TestControllerExitWithoutTurns(t *testing.T) {
	f := newFixture(t, replies(nil))
	leave, _ := f.c.RequestExit()
	assert.True(t, leave)
	assert.Equal(t, session.PhaseFresh, f.c.Phase())
}

func TestControllerCancelExit(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"hi": "hello"}))
	f.p.push(f.c.Send("hi"))
	f.p.drain()

	leave, _ := f.c.RequestExit()
	require.False(t, leave)
	f.c.CancelExit()
	assert.Equal(t, session.PhaseActive, f.c.Phase())
}

func TestControllerExitDuringStreamFlushesReply(t *testing.T) {
	reply := "A complete answer that streams slowly."
	f := newFixture(t, replies(map[string]string{"q": reply}))

	f.p.push(f.c.Send("q"))
	f.p.until(func() bool { return f.c.Streaming() })

	leave, cmd := f.c.RequestExit()
	f.p.push(cmd)
	require.False(t, leave)
	assert.False(t, f.c.Streaming())
	assert.False(t, f.c.IsAwaitingReply())
	assert.False(t, f.c.Scroll().Continuous())

	f.p.drain()
	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, reply, turns[1].Content)
}

func TestControllerInterruptDuringStream(t *testing.T) {
	reply := "Keep the wound clean and covered."
	f := newFixture(t, replies(map[string]string{"cut": reply}))

	f.p.push(f.c.Send("cut"))
	f.p.until(func() bool { return f.c.Streaming() })

	f.p.push(f.c.Interrupt())
	f.p.drain()

	turns := f.c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, reply, turns[1].Content)
	assert.False(t, f.c.IsAwaitingReply())
	assert.Equal(t, session.PhaseActive, f.c.Phase())
}

func TestControllerInterruptAbandonsPendingRequest(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"q": "late answer"}))

	f.p.push(f.c.Send("q"))
	f.p.push(f.c.Interrupt())
	assert.False(t, f.c.IsAwaitingReply())

	f.p.drain()
	turns := f.c.Turns()
	require.Len(t, turns, 1, "the abandoned reply never lands")
	assert.Equal(t, model.RoleUser, turns[0].Role)
}

func TestControllerNewChatResets(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"hi": "hello"}))
	f.p.push(f.c.Send("hi"))
	f.p.drain()

	f.p.push(f.c.NewChat())
	f.p.drain()
	assert.Empty(t, f.c.Turns())
	assert.Equal(t, session.PhaseFresh, f.c.Phase())
	_, ok := f.scratchTurns(t)
	assert.False(t, ok)
}

func TestControllerTeardownStopsTimers(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"q": "some longer reply text"}))
	f.p.push(f.c.Send("q"))
	f.p.until(func() bool { return f.c.Streaming() && f.c.Scroll().Continuous() })

	f.c.Teardown()
	assert.False(t, f.c.Scroll().Continuous())
	assert.False(t, f.c.Streaming())

	mutations := 0
	f.c.Store().Subscribe(func(Event) { mutations++ })
	f.p.drain()
	assert.Zero(t, mutations)

	_, ok := f.scratchTurns(t)
	assert.False(t, ok)
}

func TestControllerResumeFromScratch(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"hi": "hello"}))
	f.p.push(f.c.Send("hi"))
	f.p.drain()

	// A second controller over the same scratch slot, as after a crash.
	lc := session.New(f.scratch, f.durable, auth.Static{User: f.user}, session.DefaultConfig())
	c2 := NewController(replies(nil), lc, Options{Scheduler: ImmediateScheduler{}})
	n, _ := c2.Resume()
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello", c2.Turns()[1].Content)
	assert.Equal(t, session.PhaseActive, c2.Phase())
}

func TestControllerResumeMidStreamDropsPartialReply(t *testing.T) {
	f := newFixture(t, replies(map[string]string{"hi": "hello there, how can I help?"}))
	f.p.push(f.c.Send("hi"))
	f.p.until(func() bool {
		id := f.c.StreamingTurnID()
		if id == "" {
			return false
		}
		turn, ok := f.c.Store().Get(id)
		return ok && turn.Content != ""
	})

	// The process dies here; a new controller finds the scratch slot.
	lc := session.New(f.scratch, f.durable, auth.Static{User: f.user}, session.DefaultConfig())
	c2 := NewController(replies(nil), lc, Options{Scheduler: ImmediateScheduler{}})
	n, _ := c2.Resume()
	assert.Equal(t, 1, n)

	turns := c2.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, []model.HistoryEntry{{Role: model.RoleUser, Content: "hi"}}, c2.Store().History())
}

// countingScratch counts writes to the scratch slot.
type countingScratch struct {
	*scratch.MemoryStorage
	sets int
}

func (s *countingScratch) Set(key, value string) error {
	s.sets++
	return s.MemoryStorage.Set(key, value)
}

func TestControllerScratchWrittenPerTurnNotPerCharacter(t *testing.T) {
	reply := strings.Repeat("rest and fluids, ", 6) + "then sleep."
	sc := &countingScratch{MemoryStorage: scratch.NewMemoryStorage()}
	lc := session.New(sc, storage.NewMemoryStore(), auth.Static{}, session.DefaultConfig())
	c := NewController(replies(map[string]string{"fever": reply}), lc, Options{Scheduler: ImmediateScheduler{}})
	p := &pump{t: t, c: c}

	p.push(c.Send("fever"))
	p.drain()

	require.Len(t, c.Turns(), 2)
	assert.Equal(t, reply, c.Turns()[1].Content)
	assert.Equal(t, 2, sc.sets, "one write for the user turn, one for the finished reply")

	v, ok, err := sc.Get(session.DefaultScratchKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, v, "rest and fluids")
}
