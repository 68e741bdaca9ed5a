package speech

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextMergesShortSentences(t *testing.T) {
	chunks := SplitText("One. Two. Three.", 40)

	require.Len(t, chunks, 1)
	assert.Equal(t, "One. Two. Three.", chunks[0])
}

func TestSplitTextRespectsLimit(t *testing.T) {
	text := strings.Repeat("A sentence of modest length goes here. ", 20)

	chunks := SplitText(text, 100)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 100)
	}

	// Order and content are preserved apart from whitespace normalization.
	joined := strings.Join(chunks, " ")
	assert.Equal(t, strings.Join(strings.Fields(text), " "), joined)
}

func TestSplitTextFallsBackToClauses(t *testing.T) {
	long := strings.Repeat("word ", 30) // no sentence ender
	text := strings.TrimSpace(long) + ", " + strings.TrimSpace(long)

	chunks := SplitText(text, 160)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 160)
	}
}

func TestSplitTextUnsplittableRunPassesThrough(t *testing.T) {
	run := strings.Repeat("x", 500)

	chunks := SplitText(run, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, run, chunks[0])
}

func TestSplitTextSkipsEmptyPieces(t *testing.T) {
	chunks := SplitText("...  \n\n  !!", 50)
	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestSplitTextDeterministic(t *testing.T) {
	text := "First sentence. Second one! Third? 第四句。"

	a := SplitText(text, 20)
	b := SplitText(text, 20)
	assert.Equal(t, a, b)
}

func TestSplitTextCJK(t *testing.T) {
	text := "这是第一句话。这是第二句话。这是第三句话。"

	chunks := SplitText(text, 10)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 10)
	}
}
