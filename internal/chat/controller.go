// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/medassist-tui/internal/inference"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/session"
	"github.com/jeranaias/medassist-tui/internal/telemetry"
	"github.com/jeranaias/medassist-tui/internal/util"
)

const (
	// DefaultInferenceTimeout bounds one inference call.
	DefaultInferenceTimeout = 30 * time.Second

	// DefaultSaveTimeout bounds one durable save.
	DefaultSaveTimeout = 15 * time.Second

	// DefaultErrorText is shown when a failed call carries no message.
	DefaultErrorText = "The assistant could not answer. Please try again."
)

// =============================================================================
// MESSAGES
// =============================================================================

// InferenceResultMsg carries the answer to the send with generation Gen.
type InferenceResultMsg struct {
	Gen     uint64
	Result  inference.Result
	Latency time.Duration
}

// SaveResultMsg reports the outcome of SaveCmd.
type SaveResultMsg struct {
	ConversationID string
	Err            error
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Controller. Zero fields take defaults.
type Options struct {
	RevealInterval   time.Duration
	ScrollDebounce   time.Duration
	ScrollInterval   time.Duration
	InferenceTimeout time.Duration
	SaveTimeout      time.Duration

	// EmptyReplyText replaces an empty reply before streaming.
	EmptyReplyText string

	Scheduler Scheduler
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	IDs       *model.IDGenerator
}

// DefaultOptions returns production pacing with real timers.
func DefaultOptions() Options {
	return Options{
		RevealInterval:   DefaultRevealInterval,
		ScrollDebounce:   DefaultScrollDebounce,
		ScrollInterval:   DefaultScrollInterval,
		InferenceTimeout: DefaultInferenceTimeout,
		SaveTimeout:      DefaultSaveTimeout,
		EmptyReplyText:   DefaultEmptyReply,
		Scheduler:        TickScheduler{},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RevealInterval <= 0 {
		o.RevealInterval = def.RevealInterval
	}
	if o.ScrollDebounce <= 0 {
		o.ScrollDebounce = def.ScrollDebounce
	}
	if o.ScrollInterval <= 0 {
		o.ScrollInterval = def.ScrollInterval
	}
	if o.InferenceTimeout <= 0 {
		o.InferenceTimeout = def.InferenceTimeout
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = def.SaveTimeout
	}
	if o.EmptyReplyText == "" {
		o.EmptyReplyText = def.EmptyReplyText
	}
	if o.Scheduler == nil {
		o.Scheduler = def.Scheduler
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the streaming chat session controller. It owns the Store, the
// Streamer and the ScrollCoordinator of one session and forwards store
// mutations to the session lifecycle. Methods must be called from a single
// goroutine (the Bubble Tea Update loop or Run).
type Controller struct {
	store     *Store
	streamer  *Streamer
	scroll    *ScrollCoordinator
	client    inference.Client
	lifecycle *session.Lifecycle
	opts      Options
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	requestGen     uint64
	awaiting       bool
	cancelInflight context.CancelFunc
	pending        []tea.Cmd
}

// NewController wires a controller. A nil client answers every send with a
// not-configured error turn; a nil lifecycle disables scratch and save.
func NewController(client inference.Client, lifecycle *session.Lifecycle, opts Options) *Controller {
	opts = opts.withDefaults()
	if client == nil {
		client = inference.ClientFunc(func(context.Context, string, []model.HistoryEntry) inference.Result {
			return inference.Failed(inference.ErrNotConfigured)
		})
	}

	store := NewStore(opts.IDs)
	c := &Controller{
		store:     store,
		streamer:  NewStreamer(store, opts.Scheduler, opts.RevealInterval, opts.EmptyReplyText),
		scroll:    NewScrollCoordinator(nil, opts.Scheduler, opts.ScrollDebounce, opts.ScrollInterval),
		client:    client,
		lifecycle: lifecycle,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	store.Subscribe(c.onStoreEvent)
	return c
}

func (c *Controller) onStoreEvent(ev Event) {
	switch ev.Kind {
	case EventAppended:
		c.metrics.TurnAppended(ev.Turn.Role.String())
		c.queue(c.scroll.RequestScrollToBottom())
	case EventReplaced:
		if !c.scroll.Continuous() {
			c.queue(c.scroll.RequestScrollToBottom())
		}
	case EventFinalized, EventHydrated:
		c.queue(c.scroll.RequestScrollToBottom())
	}

	// Hydrated turns came from durable or scratch storage already. Reveal
	// ticks are skipped; the finalize that ends the stream writes the reply.
	if c.lifecycle == nil || !ev.Mutation() {
		return
	}
	switch ev.Kind {
	case EventHydrated, EventReplaced:
		return
	case EventAppended:
		if ev.Turn.ID == c.store.StreamingID() {
			return
		}
	}
	c.lifecycle.OnMutation(c.settledTurns())
}

// settledTurns is the transcript without the turn still being revealed, so a
// recovered scratch copy never holds a partial reply.
func (c *Controller) settledTurns() []model.Turn {
	turns := c.store.Turns()
	id := c.store.StreamingID()
	if id == "" {
		return turns
	}
	out := turns[:0]
	for _, t := range turns {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func (c *Controller) queue(cmd tea.Cmd) {
	if cmd != nil {
		c.pending = append(c.pending, cmd)
	}
}

func (c *Controller) flush() tea.Cmd {
	cmds := c.pending
	c.pending = nil
	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return cmds[0]
	default:
		return tea.Batch(cmds...)
	}
}

func (c *Controller) setAwaiting(v bool) {
	c.awaiting = v
	c.metrics.SetAwaiting(v)
}

// supersede abandons the live stream and any in-flight request.
func (c *Controller) supersede() {
	if id := c.streamer.TurnID(); c.streamer.Cancel() {
		c.logger.Info("stream superseded", "turn_id", id, "gen", c.streamer.Generation())
		c.metrics.StreamFinished(telemetry.OutcomeSuperseded)
	}
	c.scroll.StopContinuousScroll()
	if c.cancelInflight != nil {
		c.cancelInflight()
		c.cancelInflight = nil
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Send appends text as a user turn and starts the inference call for it.
// Blank input is ignored. A live stream or pending request is superseded.
func (c *Controller) Send(text string) tea.Cmd {
	text = util.NormalizeInput(text)
	if text == "" {
		return nil
	}

	c.supersede()
	history := c.store.History()
	c.store.Append(model.Turn{Role: model.RoleUser, Content: text})

	c.requestGen++
	gen := c.requestGen
	c.setAwaiting(true)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.InferenceTimeout)
	c.cancelInflight = cancel
	client := c.client
	c.logger.Debug("inference requested", "gen", gen, "history", len(history))

	c.queue(func() tea.Msg {
		defer cancel()
		start := time.Now()
		res := client.Send(ctx, text, history)
		return InferenceResultMsg{Gen: gen, Result: res, Latency: time.Since(start)}
	})
	return c.flush()
}

// Update handles controller messages and returns follow-up commands. Unknown
// messages are ignored.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case InferenceResultMsg:
		c.handleResult(msg)
	case RevealTickMsg:
		done, cmd := c.streamer.Tick(msg)
		c.queue(cmd)
		if done {
			c.finishStream()
		}
	case ScrollSettleMsg, ScrollPulseMsg:
		c.queue(c.scroll.Update(msg))
	}
	return c.flush()
}

func (c *Controller) handleResult(msg InferenceResultMsg) {
	if msg.Gen != c.requestGen || !c.awaiting {
		c.logger.Debug("stale inference result dropped", "gen", msg.Gen, "current", c.requestGen)
		return
	}
	c.cancelInflight = nil
	c.metrics.ObserveInference(msg.Latency)

	if !msg.Result.Success {
		text := msg.Result.ErrorMessage
		if text == "" {
			text = DefaultErrorText
		}
		c.logger.Warn("inference failed", "gen", msg.Gen, "error", text)
		c.scroll.StopContinuousScroll()
		c.store.Append(model.Turn{Role: model.RoleError, Content: text})
		c.setAwaiting(false)
		return
	}

	turnID, cmd := c.streamer.Start(msg.Result.Reply)
	c.logger.Debug("stream started", "turn_id", turnID, "gen", c.streamer.Generation(), "latency", msg.Latency)
	c.queue(cmd)
	c.queue(c.scroll.StartContinuousScroll())
}

func (c *Controller) finishStream() {
	c.scroll.StopContinuousScroll()
	c.setAwaiting(false)
	c.metrics.StreamFinished(telemetry.OutcomeCompleted)
}

// NewChat abandons the current transcript and starts a fresh consultation.
// Callers resolve unsaved turns through RequestExit first.
func (c *Controller) NewChat() tea.Cmd {
	c.supersede()
	c.requestGen++
	c.setAwaiting(false)
	c.store.Clear()
	if c.lifecycle != nil {
		c.lifecycle.Mount()
	}
	return c.flush()
}

// Teardown stops all timers and clears the scratch slot.
func (c *Controller) Teardown() {
	c.supersede()
	c.requestGen++
	c.setAwaiting(false)
	c.pending = nil
	if c.lifecycle != nil {
		c.lifecycle.Teardown()
	}
}

// OpenHistorical replaces the transcript with a saved consultation.
func (c *Controller) OpenHistorical(ctx context.Context, id string) (model.ConversationHeader, tea.Cmd, error) {
	if c.lifecycle == nil {
		return model.ConversationHeader{}, nil, session.ErrNotAuthenticated
	}
	conv, err := c.lifecycle.OpenHistorical(ctx, id)
	if err != nil {
		return model.ConversationHeader{}, nil, err
	}

	c.supersede()
	c.requestGen++
	c.setAwaiting(false)
	c.store.Hydrate(conv.Turns)
	c.logger.Info("conversation opened", "conversation_id", id, "turns", len(conv.Turns))
	return conv.Header, c.flush(), nil
}

// Resume restores unsaved turns left in scratch by a previous run and
// returns how many were restored.
func (c *Controller) Resume() (int, tea.Cmd) {
	if c.lifecycle == nil {
		return 0, nil
	}
	turns, ok := c.lifecycle.Recover()
	if !ok {
		return 0, nil
	}
	c.supersede()
	c.requestGen++
	c.setAwaiting(false)
	c.store.Hydrate(turns)
	return len(turns), c.flush()
}

// RequestExit freezes the transcript and reports whether the user may leave
// without a save or discard decision. A live stream is completed at once and
// a pending request is abandoned.
func (c *Controller) RequestExit() (bool, tea.Cmd) {
	c.settle()

	leave := true
	if c.lifecycle != nil {
		leave = c.lifecycle.RequestExit(c.store.Turns())
	}
	return leave, c.flush()
}

// Interrupt completes a live stream at once and abandons a pending request.
// The transcript stays usable.
func (c *Controller) Interrupt() tea.Cmd {
	c.settle()
	return c.flush()
}

func (c *Controller) settle() {
	if c.streamer.Flush() {
		c.metrics.StreamFinished(telemetry.OutcomeCompleted)
	}
	c.supersede()
	c.requestGen++
	c.setAwaiting(false)
}

// Save persists the transcript. Only valid while an exit decision is pending.
func (c *Controller) Save(ctx context.Context) (string, error) {
	if c.lifecycle == nil {
		return "", session.ErrNotExitPending
	}
	return c.lifecycle.Save(ctx, c.store.Turns())
}

// SaveCmd runs Save off the Update loop and reports a SaveResultMsg.
func (c *Controller) SaveCmd() tea.Cmd {
	if c.lifecycle == nil {
		return func() tea.Msg { return SaveResultMsg{Err: session.ErrNotExitPending} }
	}
	lc := c.lifecycle
	turns := c.store.Turns()
	timeout := c.opts.SaveTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		id, err := lc.Save(ctx, turns)
		return SaveResultMsg{ConversationID: id, Err: err}
	}
}

// Discard drops the transcript without contacting the durable store.
func (c *Controller) Discard() error {
	if c.lifecycle == nil {
		return session.ErrNotExitPending
	}
	return c.lifecycle.Discard()
}

// CancelExit returns to the conversation from a pending exit decision.
func (c *Controller) CancelExit() {
	if c.lifecycle != nil {
		c.lifecycle.CancelExit()
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Turns returns a copy of the transcript.
func (c *Controller) Turns() []model.Turn { return c.store.Turns() }

// StreamingTurnID returns the id of the turn being revealed, or "".
func (c *Controller) StreamingTurnID() string { return c.store.StreamingID() }

// IsAwaitingReply reports whether a sent message has not been fully answered.
func (c *Controller) IsAwaitingReply() bool { return c.awaiting }

// Streaming reports whether a reply is being revealed.
func (c *Controller) Streaming() bool { return c.streamer.Active() }

// Phase returns the lifecycle phase, PhaseFresh without a lifecycle.
func (c *Controller) Phase() session.Phase {
	if c.lifecycle == nil {
		return session.PhaseFresh
	}
	return c.lifecycle.Phase()
}

// Lifecycle returns the session lifecycle, which may be nil.
func (c *Controller) Lifecycle() *session.Lifecycle { return c.lifecycle }

// Store exposes the transcript store for subscribers.
func (c *Controller) Store() *Store { return c.store }

// Scroll exposes the scroll coordinator.
func (c *Controller) Scroll() *ScrollCoordinator { return c.scroll }

// SetViewport sets the scroll target.
func (c *Controller) SetViewport(vp Viewport) { c.scroll.SetViewport(vp) }
