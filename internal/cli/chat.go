// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"

	"github.com/jeranaias/medassist-tui/internal/chat"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/session"
	"github.com/jeranaias/medassist-tui/internal/ui/styles"
)

// LineReader reads prompted lines. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// pendingAction is what happens once an exit decision resolves.
type pendingAction int

const (
	afterNone pendingAction = iota
	afterNew
	afterQuit
	afterOpen
)

const replHelp = `Type a message and press Enter. Ctrl+C stops a reply; Ctrl+D leaves.
  /new            start a new consultation
  /save           save this consultation
  /discard        drop this consultation
  /history        list saved consultations
  /open <id>      open a saved consultation
  /quit           leave
  /help           show this help`

// Repl is the line-mode chat. It drives a chat.Controller with chat.Run and
// prints store events as they happen.
type Repl struct {
	app  *App
	ctrl *chat.Controller
	lc   *session.Lifecycle
	in   LineReader
	out  io.Writer
	md   *styles.Markdown
	// width is the markdown wrap width; 0 prints assistant turns raw.
	width int

	after  pendingAction
	openID string
	// shown is the part of the streaming reply already printed.
	shown string

	// interrupt derives the context a reply runs under; cancelling it
	// interrupts the reply.
	interrupt func(context.Context) (context.Context, context.CancelFunc)
}

// NewRepl builds a REPL over app. A nil sched uses real timers.
func NewRepl(app *App, in LineReader, out io.Writer, sched chat.Scheduler) *Repl {
	lc := app.NewLifecycle()
	r := &Repl{
		app:  app,
		ctrl: app.NewController(lc, sched),
		lc:   lc,
		in:   in,
		out:  out,
		interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
	r.ctrl.Store().Subscribe(r.onEvent)
	return r
}

// WithMarkdown renders transcripts with glamour at width.
func (r *Repl) WithMarkdown(md *styles.Markdown, width int) *Repl {
	r.md = md
	r.width = width
	return r
}

// Controller returns the driven controller.
func (r *Repl) Controller() *chat.Controller {
	return r.ctrl
}

// RunChat starts the line-mode chat on the terminal.
func RunChat(ctx context.Context, app *App, console *Console) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	// History stays in memory: messages carry health details that should
	// not land in a plain file.

	repl := NewRepl(app, line, console.Out, nil)
	if IsStdoutTTY() {
		repl.WithMarkdown(styles.NewMarkdown(), GetTerminalWidth()-4)
	}
	return repl.Run(ctx)
}

// Run reads lines until /quit or end of input.
func (r *Repl) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, TitleStyle.Render("MedAssist"))
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands. This assistant does not replace a clinician."))
	r.startup()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := r.in.Prompt(r.promptText())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			r.leaveOnEOF()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.in.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			done, err := r.command(ctx, line)
			if err != nil {
				DisplayError(r.out, err, false)
			}
			if done {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func (r *Repl) promptText() string {
	if r.lc.Phase() == session.PhaseExitPending {
		return "save/discard> "
	}
	return "you> "
}

func (r *Repl) startup() {
	turns, ok := r.lc.PendingRecovery()
	if !ok {
		r.lc.Mount()
		return
	}
	answer, err := r.in.Prompt(fmt.Sprintf("Resume %d unsaved turns from your last session? [Y/n] ", len(turns)))
	if err == nil {
		if ok, perr := ParseBoolString(answer); strings.TrimSpace(answer) == "" || (perr == nil && ok) {
			n, cmd := r.ctrl.Resume()
			r.drive(cmd)
			fmt.Fprintln(r.out, SuccessStyle.Render(fmt.Sprintf("Restored %d turns.", n)))
			r.printTranscript(r.ctrl.Turns())
			return
		}
	}
	r.lc.Mount()
	fmt.Fprintln(r.out, DimStyle.Render("Unsaved turns dropped."))
}

// =============================================================================
// SENDING
// =============================================================================

func (r *Repl) send(ctx context.Context, text string) {
	if r.lc.Phase() == session.PhaseExitPending {
		r.ctrl.CancelExit()
		r.after = afterNone
	}

	runCtx, stop := r.interrupt(ctx)
	err := chat.Run(runCtx, r.ctrl.Send(text), r.ctrl.Update)
	stop()
	if err != nil && errors.Is(err, context.Canceled) {
		r.drive(r.ctrl.Interrupt())
		fmt.Fprintln(r.out, WarningStyle.Render("[Interrupted]"))
	}
}

// drive runs follow-up commands (scroll settles, final reveal) to completion.
func (r *Repl) drive(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = chat.Run(ctx, cmd, r.ctrl.Update)
}

func (r *Repl) onEvent(ev chat.Event) {
	switch ev.Kind {
	case chat.EventAppended:
		switch ev.Turn.Role {
		case model.RoleAssistant:
			r.shown = ""
			fmt.Fprint(r.out, AssistantLabelStyle.Render("assistant> "))
			r.printDelta(ev.Turn.Content)
		case model.RoleError:
			fmt.Fprintf(r.out, "%s %s\n\n", errorMark(), ev.Turn.Content)
		}
	case chat.EventReplaced:
		r.printDelta(ev.Turn.Content)
	case chat.EventFinalized:
		r.printDelta(ev.Turn.Content)
		fmt.Fprint(r.out, "\n\n")
		r.shown = ""
	case chat.EventRemoved:
		if ev.Turn.Role == model.RoleAssistant {
			fmt.Fprintln(r.out, DimStyle.Render(" [superseded]"))
			r.shown = ""
		}
	}
}

func (r *Repl) printDelta(content string) {
	if !strings.HasPrefix(content, r.shown) {
		fmt.Fprintln(r.out)
		r.shown = ""
	}
	fmt.Fprint(r.out, content[len(r.shown):])
	r.shown = content
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command runs a slash command and reports whether the REPL should end.
func (r *Repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	switch name {
	case "/help", "/?":
		fmt.Fprintln(r.out, replHelp)
		return false, nil
	case "/new":
		return r.resolveThen(ctx, afterNew), nil
	case "/quit", "/exit", "/q":
		return r.resolveThen(ctx, afterQuit), nil
	case "/save":
		return r.save(ctx)
	case "/discard":
		return r.discard(ctx)
	case "/history":
		return false, r.history(ctx)
	case "/open":
		if len(fields) < 2 {
			return false, &UsageError{Command: "/open", Message: "missing conversation id"}
		}
		r.openID = fields[1]
		return r.resolveThen(ctx, afterOpen), nil
	}
	return false, &UsageError{Command: name, Message: "unknown command; type /help"}
}

// resolveThen asks to leave the transcript and runs action when nothing
// needs saving. Otherwise action waits for /save or /discard.
func (r *Repl) resolveThen(ctx context.Context, action pendingAction) bool {
	leave, cmd := r.ctrl.RequestExit()
	r.drive(cmd)
	if leave {
		return r.complete(ctx, action)
	}
	r.after = action
	fmt.Fprintln(r.out, styles.RenderWarning("This consultation is not saved. Type /save or /discard, or keep chatting."))
	return false
}

func (r *Repl) complete(ctx context.Context, action pendingAction) bool {
	r.after = afterNone
	switch action {
	case afterQuit:
		r.ctrl.Teardown()
		fmt.Fprintln(r.out, DimStyle.Render("Goodbye."))
		return true
	case afterOpen:
		r.open(ctx, r.openID)
		return false
	default:
		r.drive(r.ctrl.NewChat())
		fmt.Fprintln(r.out, DimStyle.Render("New consultation."))
		return false
	}
}

func (r *Repl) save(ctx context.Context) (bool, error) {
	if r.lc.Phase() != session.PhaseExitPending {
		leave, cmd := r.ctrl.RequestExit()
		r.drive(cmd)
		if leave {
			fmt.Fprintln(r.out, DimStyle.Render("Nothing to save."))
			return false, nil
		}
	}

	saveCtx, cancel := context.WithTimeout(ctx, chat.DefaultSaveTimeout)
	defer cancel()
	id, err := r.ctrl.Save(saveCtx)
	if err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			return false, fmt.Errorf("%w (or /discard)", err)
		}
		return false, err
	}
	fmt.Fprintf(r.out, "%s Saved consultation %s\n", successMark(), id)
	return r.complete(ctx, r.after), nil
}

func (r *Repl) discard(ctx context.Context) (bool, error) {
	if r.lc.Phase() != session.PhaseExitPending {
		leave, cmd := r.ctrl.RequestExit()
		r.drive(cmd)
		if leave {
			fmt.Fprintln(r.out, DimStyle.Render("Nothing to discard."))
			return false, nil
		}
	}
	if err := r.ctrl.Discard(); err != nil {
		return false, err
	}
	fmt.Fprintln(r.out, DimStyle.Render("Consultation discarded."))
	return r.complete(ctx, r.after), nil
}

func (r *Repl) history(ctx context.Context) error {
	headers, err := r.lc.ListConversations(ctx)
	if err != nil {
		return err
	}
	printHeaders(r.out, headers)
	return nil
}

func (r *Repl) open(ctx context.Context, id string) {
	header, cmd, err := r.ctrl.OpenHistorical(ctx, id)
	if err != nil {
		DisplayError(r.out, err, false)
		r.drive(r.ctrl.NewChat())
		return
	}
	r.drive(cmd)
	fmt.Fprintln(r.out, TitleStyle.Render(header.Title))
	r.printTranscript(r.ctrl.Turns())
}

func (r *Repl) printTranscript(turns []model.Turn) {
	printTurns(r.out, turns, r.md, r.width)
}

// leaveOnEOF keeps unsaved turns in scratch so the next run can resume them.
func (r *Repl) leaveOnEOF() {
	leave, cmd := r.ctrl.RequestExit()
	r.drive(cmd)
	fmt.Fprintln(r.out)
	if leave {
		r.ctrl.Teardown()
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render("Unsaved consultation kept; it will be offered next time."))
}

// =============================================================================
// TRANSCRIPT PRINTING
// =============================================================================

func printTurns(w io.Writer, turns []model.Turn, md *styles.Markdown, width int) {
	for _, t := range turns {
		switch t.Role {
		case model.RoleUser:
			fmt.Fprintf(w, "%s%s\n\n", UserLabelStyle.Render("you> "), t.Content)
		case model.RoleError:
			fmt.Fprintf(w, "%s %s\n\n", errorMark(), t.Content)
		default:
			content := t.Content
			if md != nil && width > 0 {
				content = md.Render(content, width)
			}
			fmt.Fprintf(w, "%s%s\n\n", AssistantLabelStyle.Render("assistant> "), content)
		}
	}
}

func printHeaders(w io.Writer, headers []model.ConversationHeader) {
	if len(headers) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No saved consultations."))
		return
	}
	for _, h := range headers {
		fmt.Fprintf(w, "%s  %s  %s\n",
			DimStyle.Render(h.UpdatedAt.Local().Format("2006-01-02 15:04")),
			ValueStyle.Render(h.ID),
			h.Title)
		if h.LastMessagePreview != "" {
			fmt.Fprintf(w, "    %s\n", DimStyle.Render(h.LastMessagePreview))
		}
	}
}
