// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"strings"

	"github.com/jeranaias/medassist-tui/internal/model"
)

const cannedDisclaimer = "\n\n_This is general information, not a diagnosis. Contact a clinician if symptoms are severe or persist._"

var cannedReplies = []struct {
	keywords []string
	reply    string
}{
	{[]string{"headache", "migraine"}, "Try resting in a quiet, dark room and drink water. Over-the-counter pain relief can help if it is safe for you."},
	{[]string{"fever", "temperature"}, "Stay hydrated and rest. Monitor your temperature; a fever above 39.4°C (103°F) warrants medical advice."},
	{[]string{"cough", "cold", "throat"}, "Warm fluids, honey and rest usually help. See a doctor if you have trouble breathing or the cough lasts over three weeks."},
	{[]string{"sleep", "insomnia"}, "Keep a regular sleep schedule, limit screens and caffeine in the evening, and keep the bedroom cool and dark."},
}

// CannedClient answers from a small keyword table without any network
// access. It is used when no endpoint is configured.
type CannedClient struct{}

// Send implements Client.
func (CannedClient) Send(ctx context.Context, message string, _ []model.HistoryEntry) Result {
	if err := ctx.Err(); err != nil {
		return Failed(err)
	}
	lower := strings.ToLower(message)
	for _, c := range cannedReplies {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return Succeeded(c.reply + cannedDisclaimer)
			}
		}
	}
	return Succeeded("I can share general health information. Could you describe your symptoms, when they started and how severe they are?" + cannedDisclaimer)
}
