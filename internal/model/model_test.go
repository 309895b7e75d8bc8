// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "assistant", "error"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, s, r.String())
	}

	_, err := ParseRole("system")
	assert.Error(t, err)
}

func TestRole_DisplayName(t *testing.T) {
	assert.Equal(t, "You", RoleUser.DisplayName())
	assert.Equal(t, "Assistant", RoleAssistant.DisplayName())
	assert.Equal(t, "Error", RoleError.DisplayName())
}

// =============================================================================
// ID GENERATOR TESTS
// =============================================================================

func TestIDGenerator_Unique(t *testing.T) {
	g := NewIDGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id := g.Next(RoleAssistant)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIDGenerator_SortableByCreation(t *testing.T) {
	g := NewIDGenerator()
	base := time.Unix(1700000000, 0)
	step := 0
	g.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}

	ids := []string{g.Next(RoleUser), g.Next(RoleAssistant), g.Next(RoleError)}
	assert.True(t, sort.StringsAreSorted(ids), "ids %v should sort in creation order", ids)
	assert.Contains(t, ids[0], "-u-")
	assert.Contains(t, ids[1], "-a-")
	assert.Contains(t, ids[2], "-e-")
}

func TestIDGenerator_Independent(t *testing.T) {
	a := NewIDGenerator()
	b := NewIDGenerator()
	a.Next(RoleUser)
	a.Next(RoleUser)
	assert.Equal(t, uint64(2), a.counter.Load())
	assert.Equal(t, uint64(0), b.counter.Load())
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestTurn_JSONUsesISOTimestamps(t *testing.T) {
	turn := Turn{
		ID:        "t1",
		Role:      RoleUser,
		Content:   "hi",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(turn)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdAt":"2025-03-01T12:00:00Z"`)
}

func TestCloneTurns_Independent(t *testing.T) {
	src := []Turn{{ID: "a", Content: "x"}}
	dst := CloneTurns(src)
	dst[0].Content = "changed"
	assert.Equal(t, "x", src[0].Content)
	assert.Nil(t, CloneTurns(nil))
}

// =============================================================================
// TITLE AND PREVIEW TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	turns := []Turn{
		{Role: RoleAssistant, Content: "Hello, how can I help?"},
		{Role: RoleUser, Content: "  I have\n a   headache  "},
		{Role: RoleUser, Content: "second"},
	}
	assert.Equal(t, "I have a headache", DeriveTitle(turns, 40))
}

func TestDeriveTitle_Truncates(t *testing.T) {
	long := strings.Repeat("pain ", 20)
	title := DeriveTitle([]Turn{{Role: RoleUser, Content: long}}, 20)
	assert.Len(t, title, 20)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestDeriveTitle_Fallback(t *testing.T) {
	assert.Equal(t, DefaultTitle, DeriveTitle(nil, 40))
	assert.Equal(t, DefaultTitle, DeriveTitle([]Turn{{Role: RoleError, Content: "timeout"}}, 40))
}

func TestDerivePreview(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "Try resting\nand drink water."},
	}
	assert.Equal(t, "Try resting and drink water.", DerivePreview(turns, 80))
	assert.Equal(t, "Try...", DerivePreview(turns, 6))
	assert.Equal(t, "", DerivePreview(nil, 80))
}
