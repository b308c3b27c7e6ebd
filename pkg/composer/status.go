package composer

import (
	"strings"
	"time"

	"github.com/atinylittleshell/quill/internal/connection"
	"github.com/atinylittleshell/quill/pkg/suggestion"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

// Status is what the indicator in the status line shows.
type Status int

const (
	StatusOffline Status = iota
	StatusConnecting
	StatusDisabled
	StatusIdle
	StatusLoading
	StatusReady
)

func (s Status) Label() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusDisabled:
		return "suggestions off"
	case StatusIdle:
		return "ready"
	case StatusLoading:
		return "looking up"
	case StatusReady:
		return "synonyms"
	default:
		return "offline"
	}
}

// statusFor derives the indicator from the toggle, the connection and the
// session.
func statusFor(enabled bool, conn connection.State, session suggestion.State) Status {
	switch {
	case !enabled:
		return StatusDisabled
	case conn == connection.Connecting:
		return StatusConnecting
	case conn != connection.Connected:
		return StatusOffline
	case session == suggestion.Pending:
		return StatusLoading
	case session == suggestion.Showing:
		return StatusReady
	}
	return StatusIdle
}

const indicatorGlyph = "◆"

// Color cycle for the loading animation
var loadingColors = []lipgloss.Color{
	"12", "33", "57", "93", "129", "208", "214", "220",
	"214", "208", "129", "93", "57", "33",
}

// indicatorTickMsg advances the loading animation.
type indicatorTickMsg struct{}

type Indicator struct {
	status     Status
	frameIndex int
	ticking    bool
}

func NewIndicator() Indicator {
	return Indicator{status: StatusOffline}
}

func (i Indicator) Tick() tea.Cmd {
	return tea.Tick(time.Second/4, func(t time.Time) tea.Msg {
		return indicatorTickMsg{}
	})
}

// SetStatus updates the status and starts the animation when a lookup
// begins.
func (i *Indicator) SetStatus(status Status) tea.Cmd {
	i.status = status
	if status == StatusLoading && !i.ticking {
		i.ticking = true
		return i.Tick()
	}
	return nil
}

func (i Indicator) GetStatus() Status {
	return i.status
}

// Update advances the animation and keeps it going while loading.
func (i *Indicator) Update() tea.Cmd {
	i.frameIndex = (i.frameIndex + 1) % len(loadingColors)
	if i.status == StatusLoading {
		return i.Tick()
	}
	i.ticking = false
	return nil
}

// Width is the number of cells the glyph takes. The glyph has ambiguous East
// Asian width, so it follows the locale the way the rest of the layout does.
func (i Indicator) Width() int {
	return runewidth.StringWidth(indicatorGlyph)
}

func (i Indicator) View() string {
	switch i.status {
	case StatusLoading:
		return lipgloss.NewStyle().Foreground(loadingColors[i.frameIndex]).Render(indicatorGlyph)
	case StatusReady, StatusIdle:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("77")).Render(indicatorGlyph)
	case StatusConnecting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render(indicatorGlyph)
	case StatusOffline:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(indicatorGlyph)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(indicatorGlyph)
	}
}

type statusStyles struct {
	Divider lipgloss.Style
	Count   lipgloss.Style
	Label   lipgloss.Style
	Notice  lipgloss.Style
}

func newStatusStyles() statusStyles {
	return statusStyles{
		Divider: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		Count:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		Notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// renderStatusLine spreads the word count, an optional notice and the
// indicator across width, filling the gaps with a divider.
func renderStatusLine(width int, words int, notice string, indicator Indicator, styles statusStyles) string {
	count := humanize.Comma(int64(words)) + " words"
	if words == 1 {
		count = "1 word"
	}
	right := indicator.View() + " " + indicator.status.Label()
	rightWidth := indicator.Width() + 1 + len(indicator.status.Label())

	if width <= 0 {
		line := count + " " + right
		if notice != "" {
			line += " " + notice
		}
		return line
	}

	// count, notice and indicator each get a one cell gap before them
	left := styles.Count.Render(count)
	leftWidth := len(count)
	room := width - leftWidth - rightWidth - 3
	if room < 0 {
		return truncate.String(right, uint(width))
	}

	var middle string
	middleWidth := 0
	if notice != "" && room > 3 {
		notice = truncate.StringWithTail(notice, uint(room-2), "…")
		middle = styles.Notice.Render(notice)
		middleWidth = lipgloss.Width(notice)
	}

	fill := width - leftWidth - middleWidth - rightWidth - 1
	var sb strings.Builder
	sb.WriteString(styles.Divider.Render("─"))
	sb.WriteString(left)
	if middleWidth > 0 {
		gap := fill / 2
		sb.WriteString(styles.Divider.Render(" " + strings.Repeat("─", max(0, gap-2)) + " "))
		sb.WriteString(middle)
		sb.WriteString(styles.Divider.Render(" " + strings.Repeat("─", max(0, fill-gap-2)) + " "))
	} else {
		sb.WriteString(styles.Divider.Render(" " + strings.Repeat("─", max(0, fill-2)) + " "))
	}
	sb.WriteString(styles.Label.Render(right))
	return sb.String()
}
