// Package wordspan finds the word touched by the caret in a text buffer.
//
// Offsets are rune offsets into the buffer. A word is a maximal run of
// non-whitespace runes; punctuation is kept as part of the word so that the
// span always maps back onto the buffer exactly.
package wordspan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinLength is the shortest word worth asking synonyms for.
const DefaultMinLength = 2

// Span is the word under the caret and its [Start, End) rune offsets.
type Span struct {
	Text  string
	Start int
	End   int
}

// Empty reports whether the span covers no runes.
func (s Span) Empty() bool {
	return s.Start >= s.End
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Locate returns the span of non-whitespace runes touching caret. The caret
// touches a run when the rune just before it or the rune at it belongs to the
// run. When neither does, an empty span positioned at the caret is returned.
func Locate(text string, caret int) Span {
	return LocateRunes([]rune(text), caret)
}

// LocateRunes is Locate for callers that already hold the buffer as runes.
func LocateRunes(runes []rune, caret int) Span {
	caret = clamp(caret, 0, len(runes))

	start := caret
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}

	end := caret
	for end < len(runes) && !unicode.IsSpace(runes[end]) {
		end++
	}

	if start == end {
		return Span{Start: caret, End: caret}
	}

	return Span{
		Text:  string(runes[start:end]),
		Start: start,
		End:   end,
	}
}

// Clean strips leading and trailing punctuation and symbols from word, so
// that "fox," or "(quick" are looked up as "fox" and "quick".
func Clean(word string) string {
	return strings.TrimFunc(word, trimmable)
}

// Trim narrows s to the runes Clean would keep, so a replacement leaves the
// surrounding punctuation in place.
func Trim(s Span) Span {
	runes := []rune(s.Text)
	lo, hi := 0, len(runes)
	for lo < hi && trimmable(runes[lo]) {
		lo++
	}
	for hi > lo && trimmable(runes[hi-1]) {
		hi--
	}
	return Span{
		Text:  string(runes[lo:hi]),
		Start: s.Start + lo,
		End:   s.Start + hi,
	}
}

// Eligible reports whether word is long enough to request suggestions for.
func Eligible(word string, minLength int) bool {
	if minLength < 1 {
		minLength = DefaultMinLength
	}
	return utf8.RuneCountInString(word) >= minLength
}

func trimmable(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
