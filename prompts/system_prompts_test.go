package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringTemplateFormats(t *testing.T) {
	sp := NewSystemPrompts()

	msgs, err := sp.Scoring.Format(context.Background(), map[string]any{
		"url":     "https://example.org/story",
		"content": "A {curly} story about wells.",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	body := msgs[0].Content
	assert.Contains(t, body, "URL: https://example.org/story")
	assert.Contains(t, body, "A {curly} story about wells.")
	assert.Contains(t, body, `"Cw": <number 0-100>`)
	assert.Contains(t, body, "{\n  \"Cw\"")
}
