package wordspan

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		caret    int
		expected Span
	}{
		{
			name:     "caret inside word",
			text:     "The qick brown fox",
			caret:    6,
			expected: Span{Text: "qick", Start: 4, End: 8},
		},
		{
			name:     "caret at word start",
			text:     "The qick brown fox",
			caret:    4,
			expected: Span{Text: "qick", Start: 4, End: 8},
		},
		{
			name:     "caret right after word",
			text:     "The qick brown fox",
			caret:    8,
			expected: Span{Text: "qick", Start: 4, End: 8},
		},
		{
			name:     "caret at end of buffer",
			text:     "The qick brown fox",
			caret:    18,
			expected: Span{Text: "fox", Start: 15, End: 18},
		},
		{
			name:     "caret between two spaces",
			text:     "one  two",
			caret:    4,
			expected: Span{Start: 4, End: 4},
		},
		{
			name:     "empty buffer",
			text:     "",
			caret:    0,
			expected: Span{Start: 0, End: 0},
		},
		{
			name:     "only whitespace",
			text:     "   ",
			caret:    1,
			expected: Span{Start: 1, End: 1},
		},
		{
			name:     "punctuation is kept",
			text:     "hello, world",
			caret:    2,
			expected: Span{Text: "hello,", Start: 0, End: 6},
		},
		{
			name:     "newline separates words",
			text:     "first\nsecond",
			caret:    7,
			expected: Span{Text: "second", Start: 6, End: 12},
		},
		{
			name:     "multibyte runes use rune offsets",
			text:     "café crème",
			caret:    7,
			expected: Span{Text: "crème", Start: 5, End: 10},
		},
		{
			name:     "caret beyond buffer is clamped",
			text:     "word",
			caret:    99,
			expected: Span{Text: "word", Start: 0, End: 4},
		},
		{
			name:     "negative caret is clamped",
			text:     "word",
			caret:    -3,
			expected: Span{Text: "word", Start: 0, End: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Locate(tt.text, tt.caret))
		})
	}
}

// Every caret strictly inside a maximal non-whitespace run must yield exactly that run.
func TestLocateMatchesMaximalRuns(t *testing.T) {
	texts := []string{
		"The qick brown fox",
		"  leading and trailing  ",
		"a bb ccc\tdddd\neeeee",
		"punctuation, stays; attached!",
	}

	for _, text := range texts {
		runes := []rune(text)
		for start := 0; start < len(runes); start++ {
			if unicode.IsSpace(runes[start]) || (start > 0 && !unicode.IsSpace(runes[start-1])) {
				continue
			}
			end := start
			for end < len(runes) && !unicode.IsSpace(runes[end]) {
				end++
			}
			for caret := start + 1; caret < end; caret++ {
				span := Locate(text, caret)
				assert.Equal(t, start, span.Start, "text %q caret %d", text, caret)
				assert.Equal(t, end, span.End, "text %q caret %d", text, caret)
				assert.Equal(t, string(runes[start:end]), span.Text)
			}
		}
	}
}

func TestLocateEmptyAwayFromRuns(t *testing.T) {
	text := "a  b   c"
	runes := []rune(text)
	for caret := 0; caret <= len(runes); caret++ {
		before := caret > 0 && !unicode.IsSpace(runes[caret-1])
		at := caret < len(runes) && !unicode.IsSpace(runes[caret])
		span := Locate(text, caret)
		if !before && !at {
			assert.True(t, span.Empty(), "caret %d should give an empty span", caret)
			assert.Equal(t, "", span.Text)
		} else {
			assert.False(t, span.Empty(), "caret %d should touch a word", caret)
		}
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "fox", Clean("fox,"))
	assert.Equal(t, "quick", Clean("(quick)"))
	assert.Equal(t, "don't", Clean("\"don't\""))
	assert.Equal(t, "", Clean("..."))
	assert.Equal(t, "plain", Clean("plain"))
}

func TestEligible(t *testing.T) {
	assert.False(t, Eligible("", 2))
	assert.False(t, Eligible("a", 2))
	assert.True(t, Eligible("ab", 2))
	assert.True(t, Eligible("é!", 2))
	assert.False(t, Eligible("x", 0), "non-positive minimum falls back to the default")
}

func TestTrim(t *testing.T) {
	tests := []struct {
		in       Span
		expected Span
	}{
		{Span{Text: "fox,", Start: 15, End: 19}, Span{Text: "fox", Start: 15, End: 18}},
		{Span{Text: "(quick)", Start: 4, End: 11}, Span{Text: "quick", Start: 5, End: 10}},
		{Span{Text: "plain", Start: 0, End: 5}, Span{Text: "plain", Start: 0, End: 5}},
		{Span{Text: "...", Start: 2, End: 5}, Span{Text: "", Start: 5, End: 5}},
		{Span{Start: 3, End: 3}, Span{Start: 3, End: 3}},
	}

	for _, tt := range tests {
		got := Trim(tt.in)
		assert.Equal(t, tt.expected, got)
		assert.Equal(t, Clean(tt.in.Text), got.Text)
	}
}
