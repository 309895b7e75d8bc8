// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/storage"
)

// =============================================================================
// HISTORY
// =============================================================================

func TestHistoryRequiresSignIn(t *testing.T) {
	app := newTestApp(t)
	console, _ := testConsole("")
	err := HandleHistory(context.Background(), app, parsed("history"), console)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}

func TestHistoryListJSON(t *testing.T) {
	app := newTestApp(t)
	user := signIn(t, app)
	id := seedConversation(t, app, user.ID)

	console, out := testConsole("")
	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "--json"), console))

	var resp struct {
		Success bool                       `json:"success"`
		Data    []model.ConversationHeader `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, id, resp.Data[0].ID)
	assert.Equal(t, "I have a headache", resp.Data[0].Title)
}

func TestHistoryListEmpty(t *testing.T) {
	app := newTestApp(t)
	signIn(t, app)
	console, out := testConsole("")
	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "list"), console))
	assert.Contains(t, out.String(), "No saved consultations.")
}

func TestHistoryShow(t *testing.T) {
	app := newTestApp(t)
	user := signIn(t, app)
	id := seedConversation(t, app, user.ID)

	console, out := testConsole("")
	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "show", id), console))
	assert.Contains(t, out.String(), "I have a headache")
	assert.Contains(t, out.String(), "Rest in a dark room.")
}

func TestHistoryShowMissing(t *testing.T) {
	app := newTestApp(t)
	signIn(t, app)
	console, _ := testConsole("")

	err := HandleHistory(context.Background(), app, parsed("history", "show", "nope"), console)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))

	err = HandleHistory(context.Background(), app, parsed("history", "show"), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHistoryExport(t *testing.T) {
	app := newTestApp(t)
	user := signIn(t, app)
	id := seedConversation(t, app, user.ID)
	dir := t.TempDir()

	mdPath := filepath.Join(dir, "consult.md")
	console, out := testConsole("")
	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "export", id, "--out", mdPath), console))
	assert.Contains(t, out.String(), "Exported")
	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "I have a headache")

	console, out = testConsole("")
	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "export", id, "--format", "json"), console))
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(out.Bytes(), &conv))
	assert.Equal(t, id, conv.Header.ID)
	assert.Len(t, conv.Turns, 2)
}

func TestHistoryDelete(t *testing.T) {
	app := newTestApp(t)
	user := signIn(t, app)
	id := seedConversation(t, app, user.ID)

	console, _ := testConsole("")
	err := HandleHistory(context.Background(), app, parsed("history", "delete", id), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err), "non-interactive delete needs --yes")

	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "delete", id, "--yes"), console))
	_, err = storage.LoadConversation(context.Background(), app.Store, user.ID, id)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestHistoryDeleteConfirm(t *testing.T) {
	app := newTestApp(t)
	user := signIn(t, app)
	id := seedConversation(t, app, user.ID)

	console, out := testConsole("n\n")
	console.Interactive = true
	require.NoError(t, HandleHistory(context.Background(), app, parsed("history", "delete", id), console))
	assert.Contains(t, out.String(), "Cancelled.")

	headers, err := app.Store.ListHeaders(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, headers, 1)
}

func TestHistoryUnknownSubcommand(t *testing.T) {
	app := newTestApp(t)
	signIn(t, app)
	console, _ := testConsole("")
	err := HandleHistory(context.Background(), app, parsed("history", "frob"), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// AUTH
// =============================================================================

func TestRegisterSignsIn(t *testing.T) {
	app := newTestApp(t)
	console, out := testConsole(testPassword + "\n" + testPassword + "\n")

	require.NoError(t, HandleRegister(app, parsed("register", testEmail), console))
	assert.Contains(t, out.String(), "Registered and signed in as "+testEmail)

	user := app.Auth.CurrentUser()
	require.NotNil(t, user)
	assert.Equal(t, testEmail, user.Email)
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)

	console, _ := testConsole("short\n")
	err := HandleRegister(app, parsed("register", testEmail), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	console, _ = testConsole(testPassword + "\nsomething else\n")
	err = HandleRegister(app, parsed("register", testEmail), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	console, _ = testConsole("\n")
	err = HandleRegister(app, parsed("register"), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err), "email prompt left blank")
	assert.Nil(t, app.Auth.CurrentUser())
}

func TestLoginLogoutWhoami(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Auth.Register(testEmail, testPassword)
	require.NoError(t, err)

	console, _ := testConsole("wrong password\n")
	err = HandleLogin(app, parsed("login", testEmail), console)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, ExitAuthError, GetExitCode(err))

	console, out := testConsole(testPassword + "\n")
	require.NoError(t, HandleLogin(app, parsed("login", testEmail), console))
	assert.Contains(t, out.String(), "Signed in as "+testEmail)

	console, out = testConsole("")
	require.NoError(t, HandleWhoami(app, parsed("whoami"), console))
	assert.Contains(t, out.String(), testEmail)

	console, _ = testConsole("")
	require.NoError(t, HandleLogout(app, parsed("logout"), console))
	assert.Nil(t, app.Auth.CurrentUser())

	err = HandleWhoami(app, parsed("whoami"), console)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestLoginPromptsForTOTPCode(t *testing.T) {
	app := newTestApp(t)
	signIn(t, app)

	console, out := testConsole("")
	require.NoError(t, HandleMFAEnroll(app, parsed("mfa-enroll"), console))
	assert.Contains(t, out.String(), "otpauth://")

	url, err := app.Auth.EnrollTOTP(testEmail)
	require.NoError(t, err)
	key, err := otp.NewKeyFromURL(url)
	require.NoError(t, err)
	require.NoError(t, app.Auth.SignOut())

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	console, out = testConsole(testPassword + "\n" + code + "\n")
	require.NoError(t, HandleLogin(app, parsed("login", testEmail), console))
	assert.Contains(t, out.String(), "Authenticator code:")
	assert.NotNil(t, app.Auth.CurrentUser())
}

func TestMFAEnrollRequiresSignIn(t *testing.T) {
	app := newTestApp(t)
	console, _ := testConsole("")
	assert.ErrorIs(t, HandleMFAEnroll(app, parsed("mfa-enroll"), console), ErrNotSignedIn)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigInitGetSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	args := func(argv ...string) Args {
		return parsed(append([]string{"--config", path, "config"}, argv...)...)
	}

	console, out := testConsole("")
	require.NoError(t, HandleConfig(args("path"), console))
	assert.Contains(t, out.String(), path)

	require.NoError(t, HandleConfig(args("init"), console))
	_, err := os.Stat(path)
	require.NoError(t, err)

	err = HandleConfig(args("init"), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err), "init refuses to overwrite")
	require.NoError(t, HandleConfig(args("init", "--force"), console))

	require.NoError(t, HandleConfig(args("set", "chat.title_max_len", "32"), console))
	console, out = testConsole("")
	require.NoError(t, HandleConfig(args("get", "chat.title_max_len"), console))
	assert.Equal(t, "32\n", out.String())

	err = HandleConfig(args("set", "chat.title_max_len", "lots"), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	err = HandleConfig(args("get", "no.such.key"), console)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConfigRedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	args := func(argv ...string) Args {
		return parsed(append([]string{"--config", path, "config"}, argv...)...)
	}
	console, out := testConsole("")
	require.NoError(t, HandleConfig(args("set", "server.token", "status-token"), console))

	out.Reset()
	require.NoError(t, HandleConfig(args("get", "server.token"), console))
	assert.NotContains(t, out.String(), "status-token")

	out.Reset()
	require.NoError(t, HandleConfig(args("show"), console))
	assert.NotContains(t, out.String(), "status-token")
}

// =============================================================================
// SERVE
// =============================================================================

func TestNewStatusServerUsesConfig(t *testing.T) {
	app := newTestApp(t)
	signIn(t, app)
	app.Config.Server.Token = "status-token"

	srv := NewStatusServer(app, "127.0.0.1:0")
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer status-token")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
