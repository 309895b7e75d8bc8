// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/chat"
	"github.com/jeranaias/medassist-tui/internal/config"
	"github.com/jeranaias/medassist-tui/internal/inference"
	"github.com/jeranaias/medassist-tui/internal/logging"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/scratch"
	"github.com/jeranaias/medassist-tui/internal/storage"
)

const (
	testEmail    = "pat@example.com"
	testPassword = "correct horse"
)

// echoClient replies "Reply to: <message>".
var echoClient = inference.ClientFunc(func(_ context.Context, msg string, _ []model.HistoryEntry) inference.Result {
	return inference.Succeeded("Reply to: " + msg)
})

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	return &App{
		Config:  config.Default(),
		Logger:  logging.Discard(),
		Store:   storage.NewMemoryStore(),
		Scratch: scratch.NewMemoryStorage(),
		Auth: auth.NewManager(
			filepath.Join(dir, "accounts.json"),
			filepath.Join(dir, "session.json"),
			auth.WithBcryptCost(bcrypt.MinCost)),
		Client: echoClient,
	}
}

func signIn(t *testing.T, app *App) *auth.User {
	t.Helper()
	_, err := app.Auth.Register(testEmail, testPassword)
	require.NoError(t, err)
	user, err := app.Auth.SignIn(testEmail, testPassword, "")
	require.NoError(t, err)
	return user
}

func seedConversation(t *testing.T, app *App, userID string) string {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	id, err := app.Store.CreateHeader(ctx, model.ConversationHeader{
		UserID:             userID,
		Title:              "I have a headache",
		LastMessagePreview: "Rest in a dark room.",
		CreatedAt:          base,
		UpdatedAt:          base,
	})
	require.NoError(t, err)
	require.NoError(t, app.Store.InsertTurns(ctx, id, []model.Turn{
		{ID: "t1", Role: model.RoleUser, Content: "I have a headache", CreatedAt: base},
		{ID: "t2", Role: model.RoleAssistant, Content: "Rest in a dark room.", CreatedAt: base.Add(time.Second)},
	}))
	return id
}

// scriptReader feeds scripted lines and then reports end of input.
type scriptReader struct {
	lines   []string
	prompts []string
}

func script(lines ...string) *scriptReader {
	return &scriptReader{lines: lines}
}

func (s *scriptReader) Prompt(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptReader) AppendHistory(string) {}

// runRepl runs a REPL over app with scripted input and returns its output.
func runRepl(t *testing.T, app *App, in *scriptReader) (*Repl, string) {
	t.Helper()
	var out bytes.Buffer
	r := NewRepl(app, in, &out, chat.ImmediateScheduler{})
	require.NoError(t, r.Run(context.Background()))
	return r, out.String()
}

func testConsole(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return NewTestConsole(strings.NewReader(input), &out), &out
}

func parsed(argv ...string) Args {
	_, args := Parse(argv)
	return args
}
