package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks(t *testing.T) {
	t.Run("packs paragraphs under the bound", func(t *testing.T) {
		chunks := splitChunks("first paragraph\n\nsecond paragraph")
		require.Len(t, chunks, 1)
		assert.Equal(t, "first paragraph\n\nsecond paragraph", chunks[0])
	})

	t.Run("splits at the length bound", func(t *testing.T) {
		big := strings.Repeat("x", maxChunkLen)
		chunks := splitChunks(big + "\n\n" + "tail paragraph")
		require.Len(t, chunks, 2)
		assert.Equal(t, big, chunks[0])
		assert.Equal(t, "tail paragraph", chunks[1])
	})

	t.Run("skips blank paragraphs", func(t *testing.T) {
		chunks := splitChunks("one\n\n\n\n   \n\ntwo")
		require.Len(t, chunks, 1)
		assert.Equal(t, "one\n\ntwo", chunks[0])
	})

	t.Run("empty document yields no chunks", func(t *testing.T) {
		assert.Empty(t, splitChunks("   \n\n  "))
	})
}
