// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the medassist command line.
//
// Command entry points:
//
//	medassist [tui]        chat screen (plain REPL when stdout is not a terminal)
//	medassist chat         line-mode REPL with input history
//	medassist history      list, show, export or delete saved consultations
//	medassist register     create a local account
//	medassist login        sign in (TOTP code when enrolled)
//	medassist logout       end the session
//	medassist whoami       show the signed-in user
//	medassist mfa-enroll   enroll an authenticator app
//	medassist serve        status server
//	medassist config       show, path, init, get, set
//
// Every handler returns its error; main maps it to an exit code with
// GetExitCode and prints it with DisplayError.
package cli
