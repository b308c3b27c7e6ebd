package composer

import (
	"fmt"
	"strings"

	"github.com/atinylittleshell/quill/pkg/caret"
	"github.com/atinylittleshell/quill/pkg/suggestion"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/ansi"
	"github.com/muesli/reflow/truncate"
)

type popupStyles struct {
	Box      lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
}

func newPopupStyles() popupStyles {
	return popupStyles{
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")),
		Item:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Selected: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("62")),
	}
}

// popupSize is the fixed outer size: one row per item plus the border.
func popupSize(width int) caret.PopupSize {
	return caret.PopupSize{Width: max(width, 8), Height: suggestion.MaxItems + 2}
}

// popupBounds is where the popup is drawn, in view cells.
type popupBounds struct {
	Top, Left     int
	Width, Height int
}

func boundsFor(anchor caret.Point, size caret.PopupSize) popupBounds {
	return popupBounds{Top: anchor.Top, Left: anchor.Left, Width: size.Width, Height: size.Height}
}

func (b popupBounds) contains(x, y int) bool {
	return x >= b.Left && x < b.Left+b.Width && y >= b.Top && y < b.Top+b.Height
}

// itemAt maps a cell inside the border to an item row.
func (b popupBounds) itemAt(x, y int) (int, bool) {
	if x <= b.Left || x >= b.Left+b.Width-1 {
		return 0, false
	}
	row := y - b.Top - 1
	if row < 0 || row >= b.Height-2 {
		return 0, false
	}
	return row, true
}

// renderPopup draws the visible popup as lines exactly size.Width wide.
func renderPopup(p suggestion.Popup, size caret.PopupSize, styles popupStyles) []string {
	inner := size.Width - 2
	rows := make([]string, 0, len(p.Items))
	for i, item := range p.Items {
		label := truncate.StringWithTail(fmt.Sprintf("%d %s", i+1, item), uint(inner), "…")
		label += strings.Repeat(" ", max(0, inner-ansi.PrintableRuneWidth(label)))
		style := styles.Item
		if i == p.Selected {
			style = styles.Selected
		}
		rows = append(rows, style.Render(label))
	}

	box := styles.Box.
		Width(inner).
		Height(size.Height - 2).
		Render(strings.Join(rows, "\n"))
	return strings.Split(box, "\n")
}

// overlay draws popup over base with its top-left corner at (top, left).
// Lines of base are extended as needed.
func overlay(base []string, popup []string, top, left int) []string {
	out := append([]string(nil), base...)
	for i, row := range popup {
		y := top + i
		for len(out) <= y {
			out = append(out, "")
		}
		line := out[y]

		prefix := truncate.String(line, uint(left))
		if w := ansi.PrintableRuneWidth(prefix); w < left {
			prefix += strings.Repeat(" ", left-w)
		}
		if strings.ContainsRune(prefix, ansi.Marker) {
			prefix += "\x1b[0m"
		}
		out[y] = prefix + row + skipCells(line, left+ansi.PrintableRuneWidth(row))
	}
	return out
}

// skipCells drops the first n printable cells of s. Escape sequences in the
// dropped part are kept so styling carries over; a wide rune split by the
// cut becomes padding.
func skipCells(s string, n int) string {
	var escapes strings.Builder
	width := 0
	inEscape := false

	for i, r := range s {
		if width >= n && !inEscape && r != ansi.Marker {
			return escapes.String() + s[i:]
		}
		if r == ansi.Marker {
			inEscape = true
			escapes.WriteRune(r)
			continue
		}
		if inEscape {
			escapes.WriteRune(r)
			if ansi.IsTerminator(r) {
				inEscape = false
			}
			continue
		}

		w := runewidth.RuneWidth(r)
		if width+w > n {
			rest := s[i+len(string(r)):]
			return escapes.String() + strings.Repeat(" ", width+w-n) + rest
		}
		width += w
	}
	return escapes.String()
}
