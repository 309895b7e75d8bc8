// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/scratch"
	"github.com/jeranaias/medassist-tui/internal/storage"
	"github.com/jeranaias/medassist-tui/internal/telemetry"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotAuthenticated is returned when a durable operation has no user.
	ErrNotAuthenticated = errors.New("sign in to save or open consultations")

	// ErrNotExitPending is returned by Save and Discard outside an exit decision.
	ErrNotExitPending = errors.New("no exit decision is pending")
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is the lifecycle state of a consultation.
type Phase int

const (
	PhaseFresh Phase = iota
	PhaseActive
	PhaseExitPending
	PhaseSaved
	PhaseDiscarded
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhaseActive:
		return "active"
	case PhaseExitPending:
		return "exit_pending"
	case PhaseSaved:
		return "saved"
	case PhaseDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether the phase ends the consultation.
func (p Phase) Terminal() bool {
	return p == PhaseSaved || p == PhaseDiscarded
}

// =============================================================================
// CONFIG
// =============================================================================

// DefaultScratchKey is the scratch slot of the active consultation.
const DefaultScratchKey = "chat.active_session"

// Config holds lifecycle settings.
type Config struct {
	// ScratchKey is the local storage slot (default: chat.active_session)
	ScratchKey string

	// TitleMaxLen bounds derived titles in display columns (default: 40)
	TitleMaxLen int

	// PreviewMaxLen bounds derived previews in display columns (default: 80)
	PreviewMaxLen int
}

// DefaultConfig returns the default lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		ScratchKey:    DefaultScratchKey,
		TitleMaxLen:   model.DefaultTitleMaxLen,
		PreviewMaxLen: model.DefaultPreviewMaxLen,
	}
}

// snapshot is the scratch payload.
type snapshot struct {
	ConversationID string       `json:"conversationId,omitempty"`
	Persisted      int          `json:"persisted,omitempty"`
	SavedAt        time.Time    `json:"savedAt"`
	Turns          []model.Turn `json:"turns"`
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Lifecycle tracks one consultation from mount to its exit decision.
type Lifecycle struct {
	mu sync.Mutex

	scratch scratch.Storage
	store   storage.Store
	auth    auth.Accessor
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	phase Phase
	// conversationID is set once the consultation exists durably.
	conversationID string
	// persisted counts the leading turns already in the durable store.
	persisted int
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// New creates a lifecycle in PhaseFresh.
func New(sc scratch.Storage, store storage.Store, accessor auth.Accessor, cfg Config, opts ...Option) *Lifecycle {
	def := DefaultConfig()
	if cfg.ScratchKey == "" {
		cfg.ScratchKey = def.ScratchKey
	}
	if cfg.TitleMaxLen <= 0 {
		cfg.TitleMaxLen = def.TitleMaxLen
	}
	if cfg.PreviewMaxLen <= 0 {
		cfg.PreviewMaxLen = def.PreviewMaxLen
	}
	l := &Lifecycle{
		scratch: sc,
		store:   store,
		auth:    accessor,
		cfg:     cfg,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		phase:   PhaseFresh,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// ConversationID returns the durable id, or "" for an unsaved consultation.
func (l *Lifecycle) ConversationID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversationID
}

// Status is a point-in-time view for display.
type Status struct {
	Phase          Phase
	ConversationID string
	Persisted      int
}

// Status returns the current state.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Phase: l.phase, ConversationID: l.conversationID, Persisted: l.persisted}
}

// =============================================================================
// ENTRY
// =============================================================================

// Mount starts a new consultation: leftover scratch is cleared.
func (l *Lifecycle) Mount() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = PhaseFresh
	l.conversationID = ""
	l.persisted = 0
	l.clearScratchLocked()
}

// PendingRecovery reports unsaved turns left in scratch by a previous run.
func (l *Lifecycle) PendingRecovery() ([]model.Turn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.readScratchLocked()
	if !ok || len(snap.Turns) == 0 {
		return nil, false
	}
	return snap.Turns, true
}

// Recover resumes the consultation stored in scratch and returns its turns.
func (l *Lifecycle) Recover() ([]model.Turn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.readScratchLocked()
	if !ok || len(snap.Turns) == 0 {
		return nil, false
	}
	l.conversationID = snap.ConversationID
	l.persisted = snap.Persisted
	if l.persisted > len(snap.Turns) {
		l.persisted = len(snap.Turns)
	}
	l.phase = PhaseActive
	l.logger.Info("recovered unsaved consultation", "turns", len(snap.Turns), "conversation_id", snap.ConversationID)
	return snap.Turns, true
}

// OpenHistorical loads a saved consultation for the current user. Scratch is
// not consulted.
func (l *Lifecycle) OpenHistorical(ctx context.Context, id string) (model.Conversation, error) {
	user := l.auth.CurrentUser()
	if user == nil {
		return model.Conversation{}, ErrNotAuthenticated
	}
	conv, err := storage.LoadConversation(ctx, l.store, user.ID, id)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("open conversation %s: %w", id, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.conversationID = conv.Header.ID
	l.persisted = len(conv.Turns)
	l.phase = PhaseFresh
	if len(conv.Turns) > 0 {
		l.phase = PhaseActive
	}
	return conv, nil
}

// ListConversations returns the current user's saved consultations, most
// recently updated first.
func (l *Lifecycle) ListConversations(ctx context.Context) ([]model.ConversationHeader, error) {
	user := l.auth.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return l.store.ListHeaders(ctx, user.ID)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// OnMutation snapshots turns into scratch. Failures are logged and counted,
// never returned.
func (l *Lifecycle) OnMutation(turns []model.Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase.Terminal() || len(turns) == 0 {
		return
	}
	if l.phase == PhaseFresh {
		l.phase = PhaseActive
	}

	data, err := json.Marshal(snapshot{
		ConversationID: l.conversationID,
		Persisted:      l.persisted,
		SavedAt:        l.now().UTC(),
		Turns:          turns,
	})
	if err == nil {
		err = l.scratch.Set(l.cfg.ScratchKey, string(data))
	}
	if err != nil {
		l.logger.Warn("scratch write failed", "key", l.cfg.ScratchKey, "turns", len(turns), "error", err)
		l.metrics.ScratchWriteFailed()
	}
}

// =============================================================================
// EXIT
// =============================================================================

// RequestExit reports whether the user may leave right away. With unsaved
// turns it moves to PhaseExitPending and returns false.
func (l *Lifecycle) RequestExit(turns []model.Turn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase.Terminal() || len(turns) == 0 {
		return true
	}
	if l.conversationID != "" && len(turns) <= l.persisted {
		return true
	}
	l.phase = PhaseExitPending
	return false
}

// CancelExit returns from PhaseExitPending to PhaseActive.
func (l *Lifecycle) CancelExit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseExitPending {
		l.phase = PhaseActive
	}
}

// Save commits turns to the durable store and clears scratch. On failure the
// phase stays ExitPending and scratch is left untouched.
func (l *Lifecycle) Save(ctx context.Context, turns []model.Turn) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase != PhaseExitPending {
		return "", ErrNotExitPending
	}
	id, err := l.saveLocked(ctx, turns)
	if err != nil {
		l.logger.Error("save failed", "conversation_id", l.conversationID, "turns", len(turns), "error", err)
		l.metrics.SaveFinished(telemetry.OutcomeFailed)
		return "", err
	}

	l.clearScratchLocked()
	l.phase = PhaseSaved
	l.logger.Info("consultation saved", "conversation_id", id, "turns", len(turns))
	l.metrics.SaveFinished(telemetry.OutcomeSaved)
	return id, nil
}

func (l *Lifecycle) saveLocked(ctx context.Context, turns []model.Turn) (string, error) {
	user := l.auth.CurrentUser()
	if user == nil {
		return "", ErrNotAuthenticated
	}

	now := l.now().UTC()
	header := model.ConversationHeader{
		UserID:             user.ID,
		Title:              model.DeriveTitle(turns, l.cfg.TitleMaxLen),
		LastMessagePreview: model.DerivePreview(turns, l.cfg.PreviewMaxLen),
		UpdatedAt:          now,
	}

	if l.conversationID == "" {
		header.CreatedAt = now
		if len(turns) > 0 && !turns[0].CreatedAt.IsZero() {
			header.CreatedAt = turns[0].CreatedAt
		}
		id, err := l.store.CreateHeader(ctx, header)
		if err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		if err := l.store.InsertTurns(ctx, id, turns); err != nil {
			if delErr := l.store.DeleteConversation(ctx, user.ID, id); delErr != nil {
				l.logger.Warn("orphan header cleanup failed", "conversation_id", id, "error", delErr)
			}
			return "", fmt.Errorf("insert turns: %w", err)
		}
		l.conversationID = id
		l.persisted = len(turns)
		return id, nil
	}

	header.ID = l.conversationID
	if l.persisted < len(turns) {
		if err := l.store.InsertTurns(ctx, l.conversationID, turns[l.persisted:]); err != nil {
			return "", fmt.Errorf("insert turns: %w", err)
		}
		l.persisted = len(turns)
	}
	if err := l.store.UpdateHeader(ctx, header); err != nil {
		return "", fmt.Errorf("update conversation: %w", err)
	}
	return l.conversationID, nil
}

// Discard drops the consultation without contacting the durable store.
func (l *Lifecycle) Discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseExitPending {
		return ErrNotExitPending
	}
	l.clearScratchLocked()
	l.phase = PhaseDiscarded
	l.logger.Info("consultation discarded", "conversation_id", l.conversationID)
	l.metrics.SaveFinished(telemetry.OutcomeDiscarded)
	return nil
}

// Teardown clears scratch when the chat screen goes away.
func (l *Lifecycle) Teardown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearScratchLocked()
}

// =============================================================================
// SCRATCH HELPERS
// =============================================================================

func (l *Lifecycle) clearScratchLocked() {
	if err := l.scratch.Remove(l.cfg.ScratchKey); err != nil {
		l.logger.Warn("scratch clear failed", "key", l.cfg.ScratchKey, "error", err)
	}
}

func (l *Lifecycle) readScratchLocked() (snapshot, bool) {
	raw, ok, err := l.scratch.Get(l.cfg.ScratchKey)
	if err != nil {
		l.logger.Warn("scratch read failed", "key", l.cfg.ScratchKey, "error", err)
		return snapshot{}, false
	}
	if !ok || raw == "" {
		return snapshot{}, false
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		l.logger.Warn("scratch snapshot unreadable", "key", l.cfg.ScratchKey, "error", err)
		return snapshot{}, false
	}
	return snap, true
}
