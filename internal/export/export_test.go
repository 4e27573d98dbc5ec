// ABOUTME: Tests for the transcript export writer.
// ABOUTME: Covers markdown output, HTML rendering, and slug handling.

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConversation() Conversation {
	return Conversation{
		Title:   "Deploy Decision",
		Project: "handoff",
		Messages: []Message{
			{Role: "agent", Text: "Should I deploy to production?", Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
			{Role: "user", Text: "Yes, go ahead.", Timestamp: time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)},
		},
	}
}

func TestExportWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, false, nil)

	files, err := w.Export(sampleConversation())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], ".md"))

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# Deploy Decision")
	assert.Contains(t, content, "Project: `handoff`")
	assert.Contains(t, content, "## agent")
	assert.Contains(t, content, "Should I deploy to production?")
	assert.Contains(t, content, "Yes, go ahead.")
}

func TestExportWritesHTMLWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, true, nil)

	files, err := w.Export(sampleConversation())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, strings.HasSuffix(files[1], ".html"))

	data, err := os.ReadFile(files[1])
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "<!DOCTYPE html>")
	assert.Contains(t, content, "<title>Deploy Decision</title>")
	assert.Contains(t, content, "<h1")
	assert.Contains(t, content, "Deploy Decision")
}

func TestExportRequiresTitle(t *testing.T) {
	w := NewWriter(t.TempDir(), false, nil)
	_, err := w.Export(Conversation{})
	require.Error(t, err)
}

func TestExportCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	w := NewWriter(dir, false, nil)

	files, err := w.Export(sampleConversation())
	require.NoError(t, err)
	_, err = os.Stat(files[0])
	require.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Deploy Decision":     "deploy-decision",
		"  weird -- title!! ": "weird-title",
		"???":                 "conversation",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), "input %q", in)
	}
}

func TestMessageWithoutTimestamp(t *testing.T) {
	w := NewWriter(t.TempDir(), false, nil)
	conv := Conversation{
		Title:    "No Times",
		Messages: []Message{{Role: "user", Text: "hello"}},
	}
	files, err := w.Export(conv)
	require.NoError(t, err)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "## user\n")
}
