package suggestion

import (
	"testing"

	"github.com/atinylittleshell/quill/pkg/wordspan"
	"github.com/stretchr/testify/assert"
)

func TestCommit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		span     wordspan.Span
		synonym  string
		expected string
		caret    int
	}{
		{
			name:     "middle of buffer",
			text:     "The qick brown fox",
			span:     wordspan.Span{Text: "qick", Start: 4, End: 8},
			synonym:  "quick",
			expected: "The quick brown fox",
			caret:    9,
		},
		{
			name:     "start of buffer",
			text:     "qick fox",
			span:     wordspan.Span{Text: "qick", Start: 0, End: 4},
			synonym:  "fast",
			expected: "fast fox",
			caret:    4,
		},
		{
			name:     "end of buffer",
			text:     "a big",
			span:     wordspan.Span{Text: "big", Start: 2, End: 5},
			synonym:  "enormous",
			expected: "a enormous",
			caret:    10,
		},
		{
			name:     "multibyte synonym",
			text:     "a nice cafe",
			span:     wordspan.Span{Text: "cafe", Start: 7, End: 11},
			synonym:  "café",
			expected: "a nice café",
			caret:    11,
		},
		{
			name:     "span past the end is clamped",
			text:     "short",
			span:     wordspan.Span{Text: "shorter", Start: 0, End: 7},
			synonym:  "brief",
			expected: "brief",
			caret:    5,
		},
		{
			name:     "span starting past the end appends",
			text:     "ab",
			span:     wordspan.Span{Start: 5, End: 9},
			synonym:  "cd",
			expected: "abcd",
			caret:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, caret := Commit(tt.text, tt.span, tt.synonym)
			assert.Equal(t, tt.expected, text)
			assert.Equal(t, tt.caret, caret)
		})
	}
}

// For every word in the buffer the result is before + synonym + after.
func TestCommitSplicesExactly(t *testing.T) {
	text := "the quick brown fox jumps"
	runes := []rune(text)
	for at := 0; at <= len(runes); at++ {
		span := wordspan.Locate(text, at)
		if span.Empty() {
			continue
		}
		got, caret := Commit(text, span, "XY")
		assert.Equal(t, string(runes[:span.Start])+"XY"+string(runes[span.End:]), got)
		assert.Equal(t, span.Start+2, caret)
	}
}
