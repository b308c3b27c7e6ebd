package suggestion

import (
	"unicode/utf8"

	"github.com/atinylittleshell/quill/pkg/wordspan"
)

// Commit splices synonym into text over span and returns the new text with
// the caret placed right after the synonym. The span is the one recorded when
// the lookup was sent; it is clamped to the current text so an edited buffer
// never panics.
func Commit(text string, span wordspan.Span, synonym string) (string, int) {
	runes := []rune(text)
	start := min(max(span.Start, 0), len(runes))
	end := min(max(span.End, start), len(runes))

	out := make([]rune, 0, len(runes)-(end-start)+utf8.RuneCountInString(synonym))
	out = append(out, runes[:start]...)
	out = append(out, []rune(synonym)...)
	out = append(out, runes[end:]...)

	return string(out), start + utf8.RuneCountInString(synonym)
}
