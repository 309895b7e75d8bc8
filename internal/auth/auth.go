// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/medassist-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCredentials covers unknown email, wrong password and wrong code.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrMFARequired is returned when the account has TOTP and no code was given.
	ErrMFARequired = errors.New("one-time code required")

	// ErrUserExists is returned by Register for a taken email.
	ErrUserExists = errors.New("an account with this email already exists")

	// ErrInvalidEmail is returned for malformed addresses.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password is too short")
)

const (
	// DefaultSessionTTL is how long a sign-in stays valid.
	DefaultSessionTTL = 12 * time.Hour

	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8

	// Issuer labels enrolled TOTP keys in authenticator apps.
	Issuer = "MedAssist"
)

// =============================================================================
// USER ACCESSOR
// =============================================================================

// User is the signed-in identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Accessor reports the current user, or nil when nobody is signed in.
type Accessor interface {
	CurrentUser() *User
}

// Static is an Accessor with a fixed answer.
type Static struct {
	User *User
}

// CurrentUser implements Accessor.
func (s Static) CurrentUser() *User {
	return s.User
}

// =============================================================================
// MANAGER
// =============================================================================

type account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	TOTPSecret   string    `json:"totp_secret,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager is a file-backed account registry and session holder.
type Manager struct {
	mu           sync.Mutex
	accountsFile string
	sessionFile  string
	ttl          time.Duration
	bcryptCost   int
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionTTL sets how long a sign-in stays valid.
func WithSessionTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithBcryptCost overrides the hashing cost.
func WithBcryptCost(cost int) Option {
	return func(m *Manager) {
		m.bcryptCost = cost
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager over the given files. Neither needs to exist.
func NewManager(accountsFile, sessionFile string, opts ...Option) *Manager {
	m := &Manager{
		accountsFile: accountsFile,
		sessionFile:  sessionFile,
		ttl:          DefaultSessionTTL,
		bcryptCost:   bcrypt.DefaultCost,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (m *Manager) loadAccounts() (map[string]account, error) {
	data, err := os.ReadFile(m.accountsFile)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]account), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	accounts := make(map[string]account)
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	return accounts, nil
}

func (m *Manager) saveAccounts(accounts map[string]account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}
	return util.WriteFileAtomic(m.accountsFile, data, 0600)
}

// Register creates an account. The new user is not signed in.
func (m *Manager) Register(email, password string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if util.RuneLen(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.loadAccounts()
	if err != nil {
		return nil, err
	}
	if _, exists := accounts[email]; exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acc := account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    m.now().UTC(),
	}
	accounts[email] = acc
	if err := m.saveAccounts(accounts); err != nil {
		return nil, err
	}
	return &User{ID: acc.ID, Email: acc.Email}, nil
}

// SignIn checks credentials and persists a session. code is the TOTP code
// for accounts that enrolled one; pass "" otherwise.
func (m *Manager) SignIn(email, password, code string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.loadAccounts()
	if err != nil {
		return nil, err
	}
	acc, ok := accounts[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if acc.TOTPSecret != "" {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, ErrMFARequired
		}
		if !totp.Validate(code, acc.TOTPSecret) {
			return nil, ErrInvalidCredentials
		}
	}

	now := m.now().UTC()
	rec := sessionRecord{
		UserID:    acc.ID,
		Email:     acc.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := util.WriteFileAtomic(m.sessionFile, data, 0600); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}
	return &User{ID: acc.ID, Email: acc.Email}, nil
}

// SignOut removes the persisted session.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.sessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// CurrentUser implements Accessor.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.sessionFile)
	if err != nil {
		return nil
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	if rec.UserID == "" || !m.now().Before(rec.ExpiresAt) {
		return nil
	}
	return &User{ID: rec.UserID, Email: rec.Email}
}

// SessionExpiry returns when the current session ends, or the zero time.
func (m *Manager) SessionExpiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := os.ReadFile(m.sessionFile)
	if err != nil {
		return time.Time{}
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}
	}
	return rec.ExpiresAt
}

// EnrollTOTP generates a TOTP secret for email and returns the otpauth URL
// to load into an authenticator app. Later sign-ins require a code.
func (m *Manager) EnrollTOTP(email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.loadAccounts()
	if err != nil {
		return "", err
	}
	acc, ok := accounts[email]
	if !ok {
		return "", ErrInvalidCredentials
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: email,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp key: %w", err)
	}
	acc.TOTPSecret = key.Secret()
	accounts[email] = acc
	if err := m.saveAccounts(accounts); err != nil {
		return "", err
	}
	return key.URL(), nil
}
