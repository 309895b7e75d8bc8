// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session governs the lifecycle of one consultation.
//
// A Lifecycle moves through Fresh, Active, ExitPending and finally Saved or
// Discarded. While turns exist every mutation snapshots them into local
// scratch storage for crash recovery; that write is best effort and only
// logged on failure. Leaving with unsaved turns requires an explicit save or
// discard decision. Only a failed save blocks the user.
//
// # Usage
//
//	lc := session.New(scratchStore, durable, authMgr, session.DefaultConfig())
//	lc.Mount()
//	lc.OnMutation(turns)
//	if !lc.RequestExit(turns) {
//		// ask: save or discard
//		_, err := lc.Save(ctx, turns)
//	}
package session
