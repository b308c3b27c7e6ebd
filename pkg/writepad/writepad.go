/*
This file is forked from the textinput component from
github.com/charmbracelet/bubbles

# MIT License

# Copyright (c) 2020-2023 Charmbracelet, Inc

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package writepad is a multi-line, soft-wrapping text surface for
// bubbletea. Wrapping is computed by package caret so that what is drawn and
// what is measured for popup placement always agree.
package writepad

import (
	"strings"
	"unicode"

	"github.com/atinylittleshell/quill/pkg/caret"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/runeutil"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Internal messages for clipboard operations.
type (
	pasteMsg    string
	pasteErrMsg struct{ error }
)

// KeyMap is the key bindings for different actions within the writepad.
type KeyMap struct {
	CharacterForward        key.Binding
	CharacterBackward       key.Binding
	WordForward             key.Binding
	WordBackward            key.Binding
	LineUp                  key.Binding
	LineDown                key.Binding
	LineStart               key.Binding
	LineEnd                 key.Binding
	BufferStart             key.Binding
	BufferEnd               key.Binding
	InsertNewline           key.Binding
	DeleteWordBackward      key.Binding
	DeleteWordForward       key.Binding
	DeleteAfterCursor       key.Binding
	DeleteBeforeCursor      key.Binding
	DeleteCharacterBackward key.Binding
	DeleteCharacterForward  key.Binding
	Paste                   key.Binding
	Yank                    key.Binding
	YankPop                 key.Binding
}

// DefaultKeyMap is the default set of key bindings for editing text.
var DefaultKeyMap = KeyMap{
	CharacterForward:        key.NewBinding(key.WithKeys("right", "ctrl+f")),
	CharacterBackward:       key.NewBinding(key.WithKeys("left", "ctrl+b")),
	WordForward:             key.NewBinding(key.WithKeys("alt+right", "ctrl+right", "alt+f")),
	WordBackward:            key.NewBinding(key.WithKeys("alt+left", "ctrl+left", "alt+b")),
	LineUp:                  key.NewBinding(key.WithKeys("up")),
	LineDown:                key.NewBinding(key.WithKeys("down")),
	LineStart:               key.NewBinding(key.WithKeys("home", "ctrl+a")),
	LineEnd:                 key.NewBinding(key.WithKeys("end", "ctrl+e")),
	BufferStart:             key.NewBinding(key.WithKeys("ctrl+home", "alt+<")),
	BufferEnd:               key.NewBinding(key.WithKeys("ctrl+end", "alt+>")),
	InsertNewline:           key.NewBinding(key.WithKeys("enter", "ctrl+j")),
	DeleteWordBackward:      key.NewBinding(key.WithKeys("alt+backspace", "ctrl+w")),
	DeleteWordForward:       key.NewBinding(key.WithKeys("alt+delete", "alt+d")),
	DeleteAfterCursor:       key.NewBinding(key.WithKeys("ctrl+k")),
	DeleteBeforeCursor:      key.NewBinding(key.WithKeys("ctrl+u")),
	DeleteCharacterBackward: key.NewBinding(key.WithKeys("backspace", "ctrl+h")),
	DeleteCharacterForward:  key.NewBinding(key.WithKeys("delete", "ctrl+d")),
	Paste:                   key.NewBinding(key.WithKeys("ctrl+v")),
	Yank:                    key.NewBinding(key.WithKeys("ctrl+y")),
	YankPop:                 key.NewBinding(key.WithKeys("alt+y")),
}

const killRingMax = 30

type killDirection int

const (
	killDirectionUnknown killDirection = iota
	killDirectionForward
	killDirectionBackward
)

// Model is the Bubble Tea model for the writing surface.
type Model struct {
	Err error

	Placeholder string
	Cursor      cursor.Model

	TextStyle        lipgloss.Style
	PlaceholderStyle lipgloss.Style

	// CharLimit is the maximum number of runes accepted. If 0 or less,
	// there's no limit.
	CharLimit int

	// Width is the number of cells per visual line. If 0 or less, lines do
	// not wrap.
	Width int

	// Height is the number of visual lines shown. If 0 or less, every line
	// is shown.
	Height int

	KeyMap KeyMap

	focus bool

	value []rune
	pos   int

	// scroll is the first visual line shown when Height is set.
	scroll int

	// goalCol keeps the column across consecutive vertical moves.
	goalCol int

	killRing           [][]rune
	killRingIndex      int
	lastKillDirection  killDirection
	lastCommandWasKill bool
	lastYankActive     bool
	lastYankStart      int
	lastYankEnd        int

	rsan runeutil.Sanitizer
}

// New creates a new model with default settings.
func New() Model {
	return Model{
		Cursor:           cursor.New(),
		KeyMap:           DefaultKeyMap,
		PlaceholderStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		goalCol:          -1,
	}
}

// Text returns the buffer contents.
func (m Model) Text() string {
	return string(m.value)
}

// Caret returns the caret as a rune offset.
func (m Model) Caret() int {
	return m.pos
}

// SetText replaces the buffer. The caret is clamped to the new length.
func (m *Model) SetText(s string) {
	runes := m.san().Sanitize([]rune(s))
	if m.CharLimit > 0 && len(runes) > m.CharLimit {
		runes = runes[:m.CharLimit]
	}
	m.value = runes
	m.SetCaret(m.pos)
}

// SetCaret moves the caret to the rune offset pos, clamped to the buffer.
func (m *Model) SetCaret(pos int) {
	m.pos = clamp(pos, 0, len(m.value))
	m.goalCol = -1
	m.ensureVisible()
}

// Len returns the buffer length in runes.
func (m Model) Len() int {
	return len(m.value)
}

func (m Model) Focused() bool {
	return m.focus
}

func (m *Model) Focus() tea.Cmd {
	m.focus = true
	return m.Cursor.Focus()
}

func (m *Model) Blur() {
	m.focus = false
	m.Cursor.Blur()
}

// Reset empties the buffer.
func (m *Model) Reset() {
	m.value = nil
	m.scroll = 0
	m.SetCaret(0)
}

// Metrics describes the surface for caret measurement.
func (m Model) Metrics() caret.Metrics {
	return caret.TerminalMetrics(max(0, m.Width))
}

// Lines returns every visual line of the buffer.
func (m Model) Lines() []caret.Line {
	return caret.Lines(string(m.value), m.Metrics())
}

// CaretCell is the caret's layout cell, counted from the first line of the
// buffer rather than the first visible line.
func (m Model) CaretCell() caret.Cell {
	return caret.Position(string(m.value), m.pos, m.Metrics())
}

// ScrollOffset is the first visual line currently shown.
func (m Model) ScrollOffset() int {
	return m.scroll
}

// OffsetAt maps a cell of the rendered view back to a rune offset. Rows are
// relative to the first visible line.
func (m Model) OffsetAt(row, col int) int {
	lines := m.Lines()
	row = clamp(row+m.scroll, 0, len(lines)-1)
	return m.offsetInLine(lines[row], col)
}

func (m Model) offsetInLine(line caret.Line, col int) int {
	// The end of a soft-wrapped line is drawn at the start of the next one.
	last := line.End
	if line.End > line.Start && line.End < len(m.value) && m.value[line.End] != '\n' {
		last--
	}

	tabWidth := m.Metrics().TabWidth
	width := 0
	offset := line.Start
	for _, r := range line.Text {
		if offset >= last {
			break
		}
		w := runewidth.RuneWidth(r)
		if r == '\t' {
			w = tabWidth
		}
		if width+w > col {
			break
		}
		width += w
		offset++
	}
	return offset
}

func (m *Model) san() runeutil.Sanitizer {
	if m.rsan == nil {
		m.rsan = runeutil.NewSanitizer(runeutil.ReplaceTabs("    "))
	}
	return m.rsan
}

func (m *Model) setValue(runes []rune, pos int) {
	m.value = runes
	m.SetCaret(pos)
}

func (m *Model) insertRunesFromUserInput(v []rune) {
	m.lastCommandWasKill = false
	m.lastYankActive = false

	paste := m.san().Sanitize(v)

	if m.CharLimit > 0 {
		availSpace := m.CharLimit - len(m.value)
		if availSpace <= 0 {
			return
		}
		if availSpace < len(paste) {
			paste = paste[:availSpace]
		}
	}

	result := make([]rune, 0, len(m.value)+len(paste))
	result = append(result, m.value[:m.pos]...)
	result = append(result, paste...)
	result = append(result, m.value[m.pos:]...)
	m.setValue(result, m.pos+len(paste))
}

// logicalLine returns the [start, end) bounds of the newline-delimited line
// holding the caret.
func (m Model) logicalLine() (int, int) {
	start := m.pos
	for start > 0 && m.value[start-1] != '\n' {
		start--
	}
	end := m.pos
	for end < len(m.value) && m.value[end] != '\n' {
		end++
	}
	return start, end
}

func (m *Model) deleteRange(start, end int, direction killDirection) {
	if start >= end {
		m.lastCommandWasKill = false
		return
	}
	m.recordKill(m.value[start:end], direction)
	m.setValue(cloneConcatRunes(m.value[:start], m.value[end:]), start)
}

// deleteBeforeCursor deletes from the start of the line to the cursor. At
// the start of a line it joins the line with the previous one.
func (m *Model) deleteBeforeCursor() {
	start, _ := m.logicalLine()
	if start == m.pos && start > 0 {
		start--
	}
	m.deleteRange(start, m.pos, killDirectionBackward)
}

// deleteAfterCursor deletes to the end of the line, or the newline itself
// when the cursor is already there.
func (m *Model) deleteAfterCursor() {
	_, end := m.logicalLine()
	if end == m.pos && end < len(m.value) {
		end++
	}
	m.deleteRange(m.pos, end, killDirectionForward)
}

// recordKill captures killed text for yank operations.
func (m *Model) recordKill(killed []rune, direction killDirection) {
	if len(killed) > 0 {
		cleaned := cloneRunes(killed)

		if m.lastCommandWasKill && direction == m.lastKillDirection && len(m.killRing) > 0 {
			if direction == killDirectionForward {
				m.killRing[0] = append(m.killRing[0], cleaned...)
			} else {
				m.killRing[0] = append(cleaned, m.killRing[0]...)
			}
		} else {
			m.killRing = append([][]rune{cleaned}, m.killRing...)
			if len(m.killRing) > killRingMax {
				m.killRing = m.killRing[:killRingMax]
			}
			m.killRingIndex = 0
		}
		m.lastCommandWasKill = true
	} else {
		m.lastCommandWasKill = false
	}

	m.lastKillDirection = direction
	m.lastYankActive = false
}

func (m *Model) yankKillBuffer() {
	if len(m.killRing) == 0 {
		return
	}

	killed := cloneRunes(m.killRing[0])
	m.insertRunesFromUserInput(killed)
	m.lastYankStart = m.pos - len(killed)
	m.lastYankEnd = m.pos
	m.killRingIndex = 0
	m.lastYankActive = true
}

// yankPop replaces the previous yank with the next kill ring entry.
func (m *Model) yankPop() {
	if !m.lastYankActive || len(m.killRing) < 2 {
		return
	}

	m.killRingIndex = (m.killRingIndex + 1) % len(m.killRing)

	start := clamp(m.lastYankStart, 0, len(m.value))
	end := clamp(m.lastYankEnd, start, len(m.value))
	replacement := cloneRunes(m.killRing[m.killRingIndex])

	newValue := make([]rune, 0, len(m.value)-end+start+len(replacement))
	newValue = append(newValue, m.value[:start]...)
	newValue = append(newValue, replacement...)
	newValue = append(newValue, m.value[end:]...)
	m.setValue(newValue, start+len(replacement))

	m.lastYankStart = start
	m.lastYankEnd = start + len(replacement)
	m.lastYankActive = true
}

// wordStartBefore returns the start of the word left of pos, skipping any
// whitespace in between.
func (m Model) wordStartBefore(pos int) int {
	i := pos
	for i > 0 && unicode.IsSpace(m.value[i-1]) {
		i--
	}
	for i > 0 && !unicode.IsSpace(m.value[i-1]) {
		i--
	}
	return i
}

// wordEndAfter returns the end of the word right of pos.
func (m Model) wordEndAfter(pos int) int {
	i := pos
	for i < len(m.value) && unicode.IsSpace(m.value[i]) {
		i++
	}
	for i < len(m.value) && !unicode.IsSpace(m.value[i]) {
		i++
	}
	return i
}

// moveVertical moves the caret delta visual lines, keeping the column the
// first vertical move started from.
func (m *Model) moveVertical(delta int) {
	cell := m.CaretCell()
	goal := m.goalCol
	if goal < 0 {
		goal = cell.Col
	}

	lines := m.Lines()
	row := cell.Row + delta
	switch {
	case row < 0:
		m.SetCaret(0)
	case row >= len(lines):
		m.SetCaret(len(m.value))
	default:
		m.SetCaret(m.offsetInLine(lines[row], goal))
	}
	m.goalCol = goal
}

func (m *Model) visualLine() caret.Line {
	lines := m.Lines()
	row := clamp(m.CaretCell().Row, 0, len(lines)-1)
	return lines[row]
}

func (m *Model) ensureVisible() {
	if m.Height <= 0 {
		m.scroll = 0
		return
	}
	row := m.CaretCell().Row
	if row < m.scroll {
		m.scroll = row
	}
	if row >= m.scroll+m.Height {
		m.scroll = row - m.Height + 1
	}
}

// Update is the Bubble Tea update loop.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focus {
		return m, nil
	}

	oldPos := m.pos

	switch msg := msg.(type) {
	case tea.KeyMsg:
		killCommand := key.Matches(msg, m.KeyMap.DeleteBeforeCursor) || key.Matches(msg, m.KeyMap.DeleteAfterCursor) ||
			key.Matches(msg, m.KeyMap.DeleteWordBackward) || key.Matches(msg, m.KeyMap.DeleteWordForward)
		yankCommand := key.Matches(msg, m.KeyMap.Yank) || key.Matches(msg, m.KeyMap.YankPop)
		verticalCommand := key.Matches(msg, m.KeyMap.LineUp) || key.Matches(msg, m.KeyMap.LineDown)

		switch {
		case key.Matches(msg, m.KeyMap.DeleteWordBackward):
			m.deleteRange(m.wordStartBefore(m.pos), m.pos, killDirectionBackward)
		case key.Matches(msg, m.KeyMap.DeleteWordForward):
			m.deleteRange(m.pos, m.wordEndAfter(m.pos), killDirectionForward)
		case key.Matches(msg, m.KeyMap.DeleteCharacterBackward):
			if m.pos > 0 {
				m.setValue(cloneConcatRunes(m.value[:m.pos-1], m.value[m.pos:]), m.pos-1)
			}
		case key.Matches(msg, m.KeyMap.DeleteCharacterForward):
			if m.pos < len(m.value) {
				m.setValue(cloneConcatRunes(m.value[:m.pos], m.value[m.pos+1:]), m.pos)
			}
		case key.Matches(msg, m.KeyMap.WordBackward):
			m.SetCaret(m.wordStartBefore(m.pos))
		case key.Matches(msg, m.KeyMap.CharacterBackward):
			m.SetCaret(m.pos - 1)
		case key.Matches(msg, m.KeyMap.WordForward):
			m.SetCaret(m.wordEndAfter(m.pos))
		case key.Matches(msg, m.KeyMap.CharacterForward):
			m.SetCaret(m.pos + 1)
		case key.Matches(msg, m.KeyMap.LineUp):
			m.moveVertical(-1)
		case key.Matches(msg, m.KeyMap.LineDown):
			m.moveVertical(1)
		case key.Matches(msg, m.KeyMap.LineStart):
			m.SetCaret(m.visualLine().Start)
		case key.Matches(msg, m.KeyMap.LineEnd):
			line := m.visualLine()
			end := line.End
			// A soft-wrapped line ends where the next one starts; stay on this one.
			if end > line.Start && end < len(m.value) && m.value[end] != '\n' && unicode.IsSpace(m.value[end-1]) {
				end--
			}
			m.SetCaret(end)
		case key.Matches(msg, m.KeyMap.BufferStart):
			m.SetCaret(0)
		case key.Matches(msg, m.KeyMap.BufferEnd):
			m.SetCaret(len(m.value))
		case key.Matches(msg, m.KeyMap.InsertNewline):
			m.insertRunesFromUserInput([]rune{'\n'})
		case key.Matches(msg, m.KeyMap.DeleteAfterCursor):
			m.deleteAfterCursor()
		case key.Matches(msg, m.KeyMap.DeleteBeforeCursor):
			m.deleteBeforeCursor()
		case key.Matches(msg, m.KeyMap.Paste):
			return m, Paste
		case key.Matches(msg, m.KeyMap.Yank):
			m.yankKillBuffer()
		case key.Matches(msg, m.KeyMap.YankPop):
			m.yankPop()
		default:
			if msg.Type == tea.KeySpace {
				m.insertRunesFromUserInput([]rune{' '})
			} else if msg.Type == tea.KeyRunes {
				m.insertRunesFromUserInput(msg.Runes)
			}
		}

		if !killCommand {
			m.lastCommandWasKill = false
		}
		if !yankCommand {
			m.lastYankActive = false
		}
		if !verticalCommand {
			m.goalCol = -1
		}

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.SetCaret(m.OffsetAt(msg.Y, msg.X))
		}

	case pasteMsg:
		m.insertRunesFromUserInput([]rune(string(msg)))

	case pasteErrMsg:
		m.Err = msg
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.Cursor, cmd = m.Cursor.Update(msg)
	cmds = append(cmds, cmd)

	if oldPos != m.pos && m.Cursor.Mode() == cursor.CursorBlink {
		m.Cursor.Blink = false
		cmds = append(cmds, m.Cursor.BlinkCmd())
	}

	return m, tea.Batch(cmds...)
}

// View renders the visible lines with the cursor drawn in place.
func (m Model) View() string {
	if len(m.value) == 0 && m.Placeholder != "" {
		m.Cursor.SetChar(" ")
		return m.Cursor.View() + m.PlaceholderStyle.Render(m.Placeholder)
	}

	styleText := m.TextStyle.Inline(true).Render

	lines := m.Lines()
	cell := m.CaretCell()
	for len(lines) <= cell.Row {
		lines = append(lines, caret.Line{Start: m.pos, End: m.pos})
	}

	first, last := 0, len(lines)
	if m.Height > 0 {
		first = clamp(m.scroll, 0, len(lines)-1)
		last = min(len(lines), first+m.Height)
	}

	rendered := make([]string, 0, last-first)
	for row := first; row < last; row++ {
		line := lines[row]
		if row != cell.Row {
			rendered = append(rendered, styleText(m.fit(line.Text)))
			continue
		}

		runes := []rune(line.Text)
		at := clamp(m.pos-line.Start, 0, len(runes))
		v := styleText(string(runes[:at]))
		if at < len(runes) {
			m.Cursor.SetChar(string(runes[at]))
			v += m.Cursor.View()
			v += styleText(string(runes[at+1:]))
		} else {
			m.Cursor.SetChar(" ")
			v += m.Cursor.View()
		}
		rendered = append(rendered, v)
	}

	return strings.Join(rendered, "\n")
}

// fit drops hanging whitespace that would overflow the surface.
func (m Model) fit(text string) string {
	if m.Width <= 0 || runewidth.StringWidth(text) <= m.Width {
		return text
	}
	return runewidth.Truncate(text, m.Width, "")
}

// Blink is a command used to initialize cursor blinking.
func Blink() tea.Msg {
	return cursor.Blink()
}

// Paste is a command for pasting from the clipboard into the writepad.
func Paste() tea.Msg {
	str, err := clipboard.ReadAll()
	if err != nil {
		return pasteErrMsg{err}
	}
	return pasteMsg(str)
}

func clamp(v, low, high int) int {
	if high < low {
		low, high = high, low
	}
	return min(high, max(low, v))
}

func cloneRunes(r []rune) []rune {
	c := make([]rune, len(r))
	copy(c, r)
	return c
}

func cloneConcatRunes(r1, r2 []rune) []rune {
	c := make([]rune, len(r1)+len(r2))
	copy(c, r1)
	copy(c[len(r1):], r2)
	return c
}
