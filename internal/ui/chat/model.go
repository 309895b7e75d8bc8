// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	chatcore "github.com/jeranaias/medassist-tui/internal/chat"
	"github.com/jeranaias/medassist-tui/internal/session"
	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

// Layout rows outside the viewport: header, input (border + line), status.
const reservedRows = 4

type exitAction int

const (
	exitQuit exitAction = iota
	exitNewChat
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctrl *chatcore.Controller

	// Styling
	theme *styles.Theme
	md    *styles.Markdown
	keys  KeyMap

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Dimensions
	width  int
	height int

	// Status
	title  string
	notice string

	// Exit flow
	exitPrompt bool
	exitAction exitAction
	saving     bool
	quitting   bool

	toasts Toasts
	// pending holds commands raised by store events between Updates.
	pending []tea.Cmd

	startup []tea.Cmd
	cache   map[string]renderedTurn
}

// viewportPin adapts the bubbles viewport to the scroll coordinator.
type viewportPin struct {
	vp *viewport.Model
}

func (p viewportPin) GotoBottom() {
	p.vp.GotoBottom()
}

// New creates the chat screen around ctrl.
func New(theme *styles.Theme, ctrl *chatcore.Controller) *Model {
	if theme == nil {
		theme = styles.NewTheme()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe your symptoms..."
	ti.CharLimit = 4096
	ti.PromptStyle = theme.InputPrompt
	ti.Focus()

	m := &Model{
		ctrl:     ctrl,
		theme:    theme,
		md:       styles.NewMarkdown(),
		keys:     DefaultKeyMap(),
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Line), spinner.WithStyle(theme.Thinking)),
		width:    80,
		height:   20 + reservedRows,
		cache:    make(map[string]renderedTurn),
	}
	ctrl.SetViewport(viewportPin{vp: &m.viewport})
	ctrl.Store().Subscribe(m.onStoreEvent)
	return m
}

func (m *Model) onStoreEvent(ev chatcore.Event) {
	if ev.Kind == chatcore.EventAssistantCompleted {
		m.pending = append(m.pending, m.toasts.Add(ToastStatus, "Reply ready"))
	}
}

// Resume restores unsaved turns left by a previous run and returns how many
// were restored.
func (m *Model) Resume() int {
	n, cmd := m.ctrl.Resume()
	if n > 0 {
		m.notice = styles.RenderInfo(fmt.Sprintf("Restored %d unsaved turns", n))
		m.startup = append(m.startup, cmd)
	}
	m.syncViewport()
	return n
}

// Open loads a saved consultation into the screen.
func (m *Model) Open(ctx context.Context, id string) error {
	header, cmd, err := m.ctrl.OpenHistorical(ctx, id)
	if err != nil {
		return err
	}
	m.title = header.Title
	m.startup = append(m.startup, cmd)
	m.syncViewport()
	return nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	cmds = append(cmds, m.startup...)
	m.startup = nil
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case chatcore.SaveResultMsg:
		cmds = append(cmds, m.handleSaveResult(msg))

	case toastExpiredMsg:
		m.toasts.Dismiss(msg.id)

	default:
		cmds = append(cmds, m.ctrl.Update(msg))
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	cmds = append(cmds, m.pending...)
	m.pending = nil

	m.syncViewport()
	return m, tea.Batch(cmds...)
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	m.viewport.Width = max(width, 1)
	m.viewport.Height = max(height-reservedRows, 1)
	m.input.Width = max(width-6, 10)
	m.theme.SetSize(width, height)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.ForceQuit) {
		// Scratch is left in place so the next start offers to resume.
		m.quitting = true
		return tea.Quit
	}
	if m.saving {
		return nil
	}
	if m.exitPrompt {
		return m.handleExitKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.beginExit(exitQuit)

	case key.Matches(msg, m.keys.NewChat):
		return m.beginExit(exitNewChat)

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		m.input.Reset()
		m.notice = ""
		return m.ctrl.Send(text)

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return nil

	case key.Matches(msg, m.keys.ScrollUp, m.keys.ScrollDn, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) handleExitKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Save):
		m.saving = true
		m.notice = styles.RenderInfo("Saving...")
		return m.ctrl.SaveCmd()

	case key.Matches(msg, m.keys.Discard):
		if err := m.ctrl.Discard(); err != nil {
			m.notice = styles.RenderError(err.Error())
			return nil
		}
		m.notice = styles.RenderInfo("Consultation discarded")
		return m.finishExit(m.exitAction)

	case key.Matches(msg, m.keys.Stay):
		m.ctrl.CancelExit()
		m.exitPrompt = false
		m.notice = ""
		return m.input.Focus()
	}
	return nil
}

// beginExit freezes the conversation and either leaves at once or opens the
// save/discard prompt.
func (m *Model) beginExit(action exitAction) tea.Cmd {
	leave, cmd := m.ctrl.RequestExit()
	if leave {
		return tea.Batch(cmd, m.finishExit(action))
	}
	m.exitPrompt = true
	m.exitAction = action
	m.input.Blur()
	return cmd
}

func (m *Model) finishExit(action exitAction) tea.Cmd {
	m.exitPrompt = false
	if action == exitNewChat {
		m.title = ""
		clear(m.cache)
		return tea.Batch(m.ctrl.NewChat(), m.input.Focus())
	}
	m.ctrl.Teardown()
	m.quitting = true
	return tea.Quit
}

func (m *Model) handleSaveResult(msg chatcore.SaveResultMsg) tea.Cmd {
	m.saving = false
	if msg.Err != nil {
		m.notice = styles.RenderError(saveErrorText(msg.Err))
		return m.toasts.Add(ToastError, "Consultation not saved")
	}
	m.notice = styles.RenderSuccess("Consultation saved")
	return tea.Batch(m.toasts.Add(ToastSuccess, "Consultation saved"), m.finishExit(m.exitAction))
}

func saveErrorText(err error) string {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return "Sign in with `medassist login` to save, or press d to discard"
	}
	return fmt.Sprintf("Save failed: %v (press s to retry)", err)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Controller returns the underlying session controller.
func (m *Model) Controller() *chatcore.Controller { return m.ctrl }

// ExitPrompt reports whether the save/discard prompt is open.
func (m *Model) ExitPrompt() bool { return m.exitPrompt }

// Quitting reports whether the screen has asked the program to quit.
func (m *Model) Quitting() bool { return m.quitting }

// Toasts returns the visible toasts, newest first.
func (m *Model) Toasts() []Toast { return m.toasts.Items() }

// Notice returns the current status line message.
func (m *Model) Notice() string { return m.notice }
