// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// IDGenerator mints turn ids of the form
//
//	<unix-micros hex>-<counter hex>-<role tag>-<random hex>
//
// The fixed-width timestamp prefix keeps ids sortable by approximate creation
// order. Each session owns its own generator so tests never share a counter.
type IDGenerator struct {
	counter atomic.Uint64
	now     func() time.Time
}

// NewIDGenerator returns a generator using the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a fresh id for a turn with the given role.
func (g *IDGenerator) Next(role Role) string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%014x-%06x-%s-%s", g.now().UnixMicro(), n, role.tag(), randomHex(4))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is gone; the
		// counter alone still keeps ids unique within the session.
		return fmt.Sprintf("%0*x", n*2, time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b)
}
