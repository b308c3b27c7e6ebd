// Package termtitle names the terminal window after the document being
// written.
package termtitle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/muesli/termenv"
)

var ErrDumbTerminal = errors.New("dumb terminal: no escape sequence support")

// maxTitleRunes keeps titles short enough for every terminal we know of.
const maxTitleRunes = 255

// Capabilities is what the environment says about the terminal.
type Capabilities struct {
	Term        string
	TermProgram string

	IsTmux   bool
	IsScreen bool
	IsDumb   bool

	SupportsTitle bool
}

// Terminal sets the window title on an output.
type Terminal struct {
	output       *termenv.Output
	capabilities Capabilities
}

func New() *Terminal {
	return NewWithOutput(termenv.DefaultOutput(), os.LookupEnv)
}

func NewWithOutput(output *termenv.Output, lookup func(string) (string, bool)) *Terminal {
	return &Terminal{
		output:       output,
		capabilities: Detect(lookup),
	}
}

func (t *Terminal) Capabilities() Capabilities {
	return t.capabilities
}

// Detect reads TERM, TERM_PROGRAM and the multiplexer variables through
// lookup.
func Detect(lookup func(string) (string, bool)) Capabilities {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	caps := Capabilities{
		Term:        get("TERM"),
		TermProgram: get("TERM_PROGRAM"),
		IsTmux:      get("TMUX") != "",
		IsScreen:    get("STY") != "",
	}
	caps.IsDumb = caps.Term == "dumb" || caps.Term == ""
	caps.SupportsTitle = !caps.IsDumb || caps.IsTmux || caps.IsScreen
	return caps
}

// SetTitle writes an OSC 2 sequence, wrapped for tmux when needed. It is a
// no-op on terminals without escape sequence support.
func (t *Terminal) SetTitle(title string) error {
	if !t.capabilities.SupportsTitle {
		return ErrDumbTerminal
	}
	_, err := t.output.WriteString(sequence(sanitize(title), t.capabilities.IsTmux))
	return err
}

// Reset asks the terminal to go back to its own title.
func (t *Terminal) Reset() error {
	return t.SetTitle("")
}

// DocumentTitle is the title shown while file is open. An empty file means
// the text goes to stdout.
func DocumentTitle(file string) string {
	if file == "" {
		return "quill"
	}
	return fmt.Sprintf("quill · %s", filepath.Base(file))
}

func sequence(title string, tmux bool) string {
	if tmux {
		return fmt.Sprintf("\x1bPtmux;\x1b\x1b]2;%s\x07\x1b\\", title)
	}
	return fmt.Sprintf("\x1b]2;%s\x07", title)
}

// sanitize drops control characters, turns tabs into spaces and caps the
// length in runes.
func sanitize(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	for _, r := range title {
		switch {
		case r == '\t':
			sb.WriteRune(' ')
		case r >= 32 && r != 127:
			sb.WriteRune(r)
		}
	}

	runes := []rune(sb.String())
	if len(runes) > maxTitleRunes {
		runes = runes[:maxTitleRunes]
	}
	return string(runes)
}
