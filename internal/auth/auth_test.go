// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewManager(filepath.Join(dir, "accounts.json"), filepath.Join(dir, "session.json"), opts...)
}

// =============================================================================
// REGISTRATION TESTS
// =============================================================================

func TestRegister(t *testing.T) {
	m := newTestManager(t)

	u, err := m.Register("  Patient@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "patient@example.com", u.Email)
	assert.NotEmpty(t, u.ID)

	_, err = m.Register("patient@example.com", "another pass")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = m.Register("not-an-email", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = m.Register("a@b.com", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	// Length counts characters, not bytes.
	_, err = m.Register("a@b.com", "ééééé")
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = m.Register("c@d.com", "日本語のパスワード")
	assert.NoError(t, err)

	assert.Nil(t, m.CurrentUser(), "register must not sign in")
}

// =============================================================================
// SIGN IN TESTS
// =============================================================================

func TestSignInAndOut(t *testing.T) {
	m := newTestManager(t)
	reg, err := m.Register("p@example.com", "correct horse")
	require.NoError(t, err)

	_, err = m.SignIn("p@example.com", "wrong password", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = m.SignIn("nobody@example.com", "correct horse", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := m.SignIn("P@example.com", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, u.ID)

	cur := m.CurrentUser()
	require.NotNil(t, cur)
	assert.Equal(t, reg.ID, cur.ID)
	assert.Equal(t, "p@example.com", cur.Email)

	require.NoError(t, m.SignOut())
	assert.Nil(t, m.CurrentUser())
	require.NoError(t, m.SignOut(), "second sign out is a no-op")
}

func TestSession_Expires(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	m := newTestManager(t, WithSessionTTL(time.Hour), WithClock(func() time.Time { return now }))
	_, err := m.Register("p@example.com", "correct horse")
	require.NoError(t, err)
	_, err = m.SignIn("p@example.com", "correct horse", "")
	require.NoError(t, err)

	require.NotNil(t, m.CurrentUser())
	assert.True(t, now.Add(time.Hour).Equal(m.SessionExpiry()))

	now = now.Add(time.Hour)
	assert.Nil(t, m.CurrentUser())
}

// =============================================================================
// TOTP TESTS
// =============================================================================

func TestTOTP_RequiredAfterEnrollment(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Register("p@example.com", "correct horse")
	require.NoError(t, err)

	otpURL, err := m.EnrollTOTP("p@example.com")
	require.NoError(t, err)

	parsed, err := url.Parse(otpURL)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", parsed.Scheme)
	secret := parsed.Query().Get("secret")
	require.NotEmpty(t, secret)

	_, err = m.SignIn("p@example.com", "correct horse", "")
	assert.ErrorIs(t, err, ErrMFARequired)

	_, err = m.SignIn("p@example.com", "correct horse", "000000x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	u, err := m.SignIn("p@example.com", "correct horse", code)
	require.NoError(t, err)
	assert.Equal(t, "p@example.com", u.Email)
}

func TestEnrollTOTP_UnknownAccount(t *testing.T) {
	m := newTestManager(t)
	_, err := m.EnrollTOTP("ghost@example.com")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStatic(t *testing.T) {
	assert.Nil(t, Static{}.CurrentUser())
	u := &User{ID: "1", Email: "a@b.c"}
	assert.Equal(t, u, Static{User: u}.CurrentUser())
}
