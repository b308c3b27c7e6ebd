// Package caret measures where a character offset is rendered inside a
// wrapped, fixed-width text surface and where a popup should be anchored
// relative to it.
//
// The measurement is a pure text-layout calculation over monospace cells:
// grapheme clusters are sized with go-runewidth, explicit newlines break
// lines, words wrap as a whole when they fit on a fresh line and long words
// break at grapheme boundaries. Trailing spaces hang past the right edge
// instead of wrapping, matching pre-wrap text areas.
package caret

import (
	"unicode"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// Placeholder is laid out after the marker when nothing follows the offset,
// so that a word ending at the buffer end still wraps the way it will once
// the user keeps typing.
const Placeholder = "."

// Metrics describes the rendered surface. Width is the full outer width in
// the same unit as CellWidth and LineHeight; padding and border are applied
// on both sides.
type Metrics struct {
	Width      int
	CellWidth  int
	LineHeight int
	PaddingX   int
	PaddingY   int
	Border     int
	TabWidth   int
}

// TerminalMetrics returns metrics for a borderless terminal surface that is
// width cells wide.
func TerminalMetrics(width int) Metrics {
	return Metrics{
		Width:      width,
		CellWidth:  1,
		LineHeight: 1,
		TabWidth:   4,
	}
}

// Columns is the number of cells available for text on one line. Zero means
// the surface does not wrap.
func (m Metrics) Columns() int {
	cellWidth := max(1, m.CellWidth)
	inner := m.Width - 2*m.PaddingX - 2*m.Border
	if inner <= 0 {
		return 0
	}
	return inner / cellWidth
}

// Point is a position relative to the surface's container.
type Point struct {
	Top  int
	Left int
}

// Cell is a position in the wrapped layout, in lines and cells.
type Cell struct {
	Row int
	Col int
}

// PopupSize is the fixed outer size of the suggestion popup.
type PopupSize struct {
	Width  int
	Height int
}

// Line is one visual line of the wrapped text. Start and End are rune
// offsets; End excludes a terminating newline.
type Line struct {
	Text  string
	Start int
	End   int
}

type cluster struct {
	text  string
	start int
	runes int
	width int
	kind  clusterKind
	cell  Cell
}

type clusterKind int

const (
	kindWord clusterKind = iota
	kindSpace
	kindNewline
)

// Measure returns the raw position at which the rune offset would be
// rendered: the text before offset is followed by a zero-width marker and
// then the remaining text, or Placeholder when nothing remains. Every call
// builds a fresh layout from the current text and metrics.
func Measure(text string, offset int, m Metrics) Point {
	runes := []rune(text)
	offset = clamp(offset, 0, len(runes))

	rest := string(runes[offset:])
	if rest == "" {
		rest = Placeholder
	}

	clusters := layout(string(runes[:offset])+rest, m)
	return m.toPoint(cellAt(clusters, offset))
}

// Position returns the layout cell of the rune offset in text as it is
// rendered, without a placeholder. An offset at the end of a full line is
// reported at the start of the next line.
func Position(text string, offset int, m Metrics) Cell {
	runes := []rune(text)
	offset = clamp(offset, 0, len(runes))

	clusters := layout(text, m)
	if offset < len(runes) {
		return cellAt(clusters, offset)
	}
	if len(clusters) == 0 {
		return Cell{}
	}

	last := clusters[len(clusters)-1]
	if last.kind == kindNewline {
		return Cell{Row: last.cell.Row + 1}
	}
	next := Cell{Row: last.cell.Row, Col: last.cell.Col + last.width}
	if cols := m.Columns(); cols > 0 && next.Col >= cols && last.kind != kindSpace {
		return Cell{Row: next.Row + 1}
	}
	return next
}

// Lines returns the visual lines of text under the metrics' wrapping rules.
// The result always holds at least one line.
func Lines(text string, m Metrics) []Line {
	clusters := layout(text, m)
	lines := []Line{{}}
	for _, c := range clusters {
		for len(lines) <= c.cell.Row {
			prev := lines[len(lines)-1]
			lines = append(lines, Line{Start: prev.End, End: prev.End})
		}
		current := &lines[c.cell.Row]
		if c.kind == kindNewline {
			next := c.start + c.runes
			lines = append(lines, Line{Start: next, End: next})
			continue
		}
		if current.Text == "" {
			current.Start = c.start
		}
		current.Text += c.text
		current.End = c.start + c.runes
	}
	return lines
}

// Anchor places a popup above the raw position and clamps it inside the
// surface: top is never negative and left stays within
// [minMargin, surfaceWidth-popup.Width] and never below zero.
func Anchor(raw Point, popup PopupSize, surfaceWidth, minMargin int) Point {
	top := max(0, raw.Top-popup.Height)

	left := raw.Left
	left = max(left, minMargin)
	left = min(left, surfaceWidth-popup.Width)
	left = max(left, 0)

	return Point{Top: top, Left: left}
}

func (m Metrics) toPoint(c Cell) Point {
	lineHeight := max(1, m.LineHeight)
	cellWidth := max(1, m.CellWidth)
	return Point{
		Top:  m.Border + m.PaddingY + c.Row*lineHeight,
		Left: m.Border + m.PaddingX + c.Col*cellWidth,
	}
}

// cellAt returns the cell of the cluster that starts at or after offset.
func cellAt(clusters []cluster, offset int) Cell {
	for _, c := range clusters {
		if c.start+c.runes > offset {
			return c.cell
		}
	}
	if len(clusters) == 0 {
		return Cell{}
	}
	last := clusters[len(clusters)-1]
	return Cell{Row: last.cell.Row, Col: last.cell.Col + last.width}
}

func split(text string, tabWidth int) []cluster {
	var clusters []cluster
	state := -1
	rest := text
	offset := 0
	for len(rest) > 0 {
		var c string
		c, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		n := len([]rune(c))
		item := cluster{text: c, start: offset, runes: n}
		switch {
		case c == "\n" || c == "\r\n" || c == "\r":
			item.kind = kindNewline
		case c == "\t":
			item.kind = kindSpace
			item.width = max(1, tabWidth)
		case isSpace(c):
			item.kind = kindSpace
			item.width = max(1, runewidth.StringWidth(c))
		default:
			item.kind = kindWord
			item.width = runewidth.StringWidth(c)
		}
		clusters = append(clusters, item)
		offset += n
	}
	return clusters
}

func layout(text string, m Metrics) []cluster {
	clusters := split(text, m.TabWidth)
	cols := m.Columns()

	row, col := 0, 0
	for i := 0; i < len(clusters); {
		c := &clusters[i]
		switch c.kind {
		case kindNewline:
			c.cell = Cell{Row: row, Col: col}
			row++
			col = 0
			i++
		case kindSpace:
			c.cell = Cell{Row: row, Col: col}
			col += c.width
			i++
		default:
			end := i
			wordWidth := 0
			for end < len(clusters) && clusters[end].kind == kindWord {
				wordWidth += clusters[end].width
				end++
			}
			if cols > 0 && col > 0 && col+wordWidth > cols && wordWidth <= cols {
				row++
				col = 0
			}
			for j := i; j < end; j++ {
				w := &clusters[j]
				if cols > 0 && col > 0 && col+w.width > cols {
					row++
					col = 0
				}
				w.cell = Cell{Row: row, Col: col}
				col += w.width
			}
			i = end
		}
	}
	return clusters
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func clamp(v, low, high int) int {
	return min(high, max(low, v))
}
