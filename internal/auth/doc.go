// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth provides local accounts and the current-user accessor.
//
// Accounts live in a JSON file with bcrypt password hashes and an optional
// TOTP secret. Signing in writes a session file with an expiry; an expired or
// unreadable session reads back as "no user".
//
// # Usage
//
//	mgr := auth.NewManager(accountsPath, sessionPath, auth.WithSessionTTL(12*time.Hour))
//	if _, err := mgr.SignIn(email, password, ""); errors.Is(err, auth.ErrMFARequired) {
//		// prompt for a one-time code and retry
//	}
//	user := mgr.CurrentUser()
package auth
