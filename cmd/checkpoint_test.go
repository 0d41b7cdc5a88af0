package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

func TestFormatCheckpointList(t *testing.T) {
	t.Parallel()

	cp := &model.RunCheckpoint{
		RunID:       "run-1",
		Stage:       model.StageClassifying,
		Source:      model.SourceLinkedIn,
		Query:       "founders losing orders in whatsapp groups every week",
		BudgetSpent: 0.125,
		LastUpdated: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
		Pending: []model.Lead{
			{IdentityKey: "a"},
			{IdentityKey: "b"},
			{IdentityKey: "c"},
		},
		ProcessedIdentityKeys: map[string]struct{}{"a": {}},
	}

	var buf bytes.Buffer
	formatCheckpointList(&buf, []*model.RunCheckpoint{cp})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	fields := strings.Fields(lines[1])
	assert.Equal(t, "run-1", fields[0])
	assert.Equal(t, "classifying", fields[1])
	assert.Equal(t, "linkedin", fields[2])
	assert.Contains(t, lines[1], "founders losing orders in wha...")
	assert.Contains(t, lines[1], "$0.1250")
	assert.Contains(t, lines[1], "2026-05-04 09:30")
	// One processed, two still pending.
	assert.Contains(t, lines[1], " 1 ")
	assert.Contains(t, lines[1], " 2 ")
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld!", 10))
}
