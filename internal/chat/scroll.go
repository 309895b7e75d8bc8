// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	DefaultScrollDebounce = 100 * time.Millisecond
	DefaultScrollInterval = 150 * time.Millisecond
)

// Viewport is the scroll target.
type Viewport interface {
	GotoBottom()
}

// ScrollSettleMsg fires after the debounce of one-shot request Seq.
type ScrollSettleMsg struct {
	Seq uint64
}

// ScrollPulseMsg is one beat of continuous scrolling generation Gen.
type ScrollPulseMsg struct {
	Gen uint64
}

// ScrollCoordinator keeps the viewport pinned to the newest content.
//
// One-shot requests are coalesced: only the settle message of the latest
// request pins. Continuous scrolling re-pins every interval until stopped;
// stopping bumps the pulse generation so the in-flight pulse dies.
type ScrollCoordinator struct {
	vp       Viewport
	sched    Scheduler
	debounce time.Duration
	interval time.Duration

	seq        uint64
	pulseGen   uint64
	continuous bool
	pins       int
}

// NewScrollCoordinator creates a coordinator. vp may be nil until a view
// exists; pins are counted either way.
func NewScrollCoordinator(vp Viewport, sched Scheduler, debounce, interval time.Duration) *ScrollCoordinator {
	if sched == nil {
		sched = TickScheduler{}
	}
	if debounce <= 0 {
		debounce = DefaultScrollDebounce
	}
	if interval <= 0 {
		interval = DefaultScrollInterval
	}
	return &ScrollCoordinator{
		vp:       vp,
		sched:    sched,
		debounce: debounce,
		interval: interval,
	}
}

// SetViewport changes the scroll target.
func (c *ScrollCoordinator) SetViewport(vp Viewport) {
	c.vp = vp
}

// RequestScrollToBottom schedules a pin after the debounce delay.
func (c *ScrollCoordinator) RequestScrollToBottom() tea.Cmd {
	c.seq++
	return c.sched.After(c.debounce, ScrollSettleMsg{Seq: c.seq})
}

// StartContinuousScroll begins periodic pinning. Calling it while already
// running returns nil.
func (c *ScrollCoordinator) StartContinuousScroll() tea.Cmd {
	if c.continuous {
		return nil
	}
	c.continuous = true
	c.pulseGen++
	return c.sched.After(c.interval, ScrollPulseMsg{Gen: c.pulseGen})
}

// StopContinuousScroll ends periodic pinning.
func (c *ScrollCoordinator) StopContinuousScroll() {
	if !c.continuous {
		return
	}
	c.continuous = false
	c.pulseGen++
}

// Continuous reports whether periodic pinning is running.
func (c *ScrollCoordinator) Continuous() bool {
	return c.continuous
}

// Pins returns how many times the viewport was pinned.
func (c *ScrollCoordinator) Pins() int {
	return c.pins
}

// Update handles scroll messages; other messages are ignored.
func (c *ScrollCoordinator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ScrollSettleMsg:
		if msg.Seq == c.seq {
			c.pin()
		}
	case ScrollPulseMsg:
		if c.continuous && msg.Gen == c.pulseGen {
			c.pin()
			return c.sched.After(c.interval, ScrollPulseMsg{Gen: c.pulseGen})
		}
	}
	return nil
}

func (c *ScrollCoordinator) pin() {
	c.pins++
	if c.vp != nil {
		c.vp.GotoBottom()
	}
}
