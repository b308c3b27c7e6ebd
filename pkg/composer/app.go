// Package composer is the writing pad application: an editing surface with a
// debounced synonym lookup loop and a popup that replaces the word under the
// caret.
package composer

import (
	"context"
	"strings"
	"time"

	"github.com/atinylittleshell/quill/internal/connection"
	"github.com/atinylittleshell/quill/pkg/caret"
	"github.com/atinylittleshell/quill/pkg/debounce"
	"github.com/atinylittleshell/quill/pkg/suggestion"
	"github.com/atinylittleshell/quill/pkg/wire"
	"github.com/atinylittleshell/quill/pkg/wordspan"
	"github.com/atinylittleshell/quill/pkg/writepad"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"go.uber.org/zap"
)

// statusHeight is the hint line plus the status line.
const statusHeight = 2

type KeyMap struct {
	Accept  key.Binding
	Next    key.Binding
	Prev    key.Binding
	Pick    []key.Binding
	Dismiss key.Binding
	Toggle  key.Binding
	Quit    key.Binding
}

var DefaultKeyMap = KeyMap{
	Accept: key.NewBinding(key.WithKeys("tab")),
	Next:   key.NewBinding(key.WithKeys("ctrl+n")),
	Prev:   key.NewBinding(key.WithKeys("ctrl+p")),
	Pick: []key.Binding{
		key.NewBinding(key.WithKeys("alt+1")),
		key.NewBinding(key.WithKeys("alt+2")),
		key.NewBinding(key.WithKeys("alt+3")),
	},
	Dismiss: key.NewBinding(key.WithKeys("esc")),
	Toggle:  key.NewBinding(key.WithKeys("ctrl+t")),
	Quit:    key.NewBinding(key.WithKeys("ctrl+c", "ctrl+q")),
}

// guard lets the scheduler see the toggle and the connection state. It is
// shared by pointer because the bubbletea model is copied on every update.
type guard struct {
	enabled   bool
	connected bool
}

func (g *guard) Enabled() bool   { return g.enabled }
func (g *guard) Connected() bool { return g.connected }

// offer is a popup that has been shown and not yet resolved.
type offer struct {
	word  string
	items []string
}

type appModel struct {
	conn      Connector
	tracker   ActivityTracker
	analytics Analytics
	logger    *zap.Logger
	options   Options
	keys      KeyMap

	pad         writepad.Model
	scheduler   *debounce.Scheduler
	session     *suggestion.Session
	suppression *suggestion.Suppression
	guard       *guard
	offer       *offer

	connState connection.State
	notice    string
	indicator Indicator

	width  int
	height int

	popupStyles  popupStyles
	statusStyles statusStyles
	hintStyle    lipgloss.Style
}

// fireMsg is the debounce timer for one scheduler generation.
type fireMsg struct {
	generation uint64
}

type responseMsg struct {
	message wire.Message
}

type connStateMsg struct {
	state connection.State
}

type connectErrMsg struct {
	err error
}

func initialModel(
	text string,
	conn Connector,
	tracker ActivityTracker,
	analytics Analytics,
	logger *zap.Logger,
	options Options,
) appModel {
	if tracker == nil {
		tracker = NoopTracker{}
	}
	if analytics == nil {
		analytics = NoopAnalytics{}
	}

	pad := writepad.New()
	pad.Placeholder = options.Placeholder
	pad.Focus()
	pad.SetText(text)
	pad.SetCaret(len([]rune(text)))

	g := &guard{enabled: options.SuggestionsEnabled}
	suppression := &suggestion.Suppression{}

	m := appModel{
		conn:      conn,
		tracker:   tracker,
		analytics: analytics,
		logger:    logger,
		options:   options,
		keys:      DefaultKeyMap,

		pad:         pad,
		scheduler:   debounce.NewScheduler(options.QuietPeriod, g, suppression),
		session:     suggestion.NewSession(options.Session),
		suppression: suppression,
		guard:       g,

		connState: connection.Disconnected,
		indicator: NewIndicator(),

		popupStyles:  newPopupStyles(),
		statusStyles: newStatusStyles(),
		hintStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
	}
	m.indicator.SetStatus(m.status())
	return m
}

func (m appModel) Init() tea.Cmd {
	return writepad.Blink
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.update(msg)
	settled := model.settle()
	return model, tea.Batch(cmd, settled)
}

func (m appModel) update(msg tea.Msg) (appModel, tea.Cmd) {
	switch msg := msg.(type) {

	case indicatorTickMsg:
		return m, m.indicator.Update()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pad.Width = msg.Width
		m.pad.Height = max(1, msg.Height-statusHeight)
		m.pad.SetCaret(m.pad.Caret())
		return m, nil

	case fireMsg:
		return m.fire(msg.generation)

	case responseMsg:
		return m.applyResponse(msg.message)

	case connStateMsg:
		m.connState = msg.state
		m.guard.connected = msg.state == connection.Connected
		if msg.state == connection.Connected {
			m.notice = ""
		} else {
			m.session.Disconnected()
		}
		m.logger.Debug("composer connection state", zap.Stringer("state", msg.state))
		return m, nil

	case connectErrMsg:
		m.notice = "offline: " + msg.err.Error()
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			m.guard.enabled = !m.guard.enabled
			if !m.guard.enabled {
				m.scheduler.Cancel()
				m.session.Clear()
			}
			return m, nil
		}

		if m.session.Popup().Visible {
			switch {
			case key.Matches(msg, m.keys.Accept):
				if req, synonym, ok := m.session.PickSelected(); ok {
					return m.commit(req, synonym)
				}
				return m, nil
			case key.Matches(msg, m.keys.Next):
				m.session.Move(1)
				return m, nil
			case key.Matches(msg, m.keys.Prev):
				m.session.Move(-1)
				return m, nil
			case key.Matches(msg, m.keys.Dismiss):
				m.session.Dismiss()
				return m, nil
			}
			for i, pick := range m.keys.Pick {
				if key.Matches(msg, pick) {
					if req, synonym, ok := m.session.Pick(i); ok {
						return m.commit(req, synonym)
					}
					return m, nil
				}
			}
		}
	}

	return m.updatePad(msg)
}

// settle keeps the indicator in line with the state and records a popup
// that went away without a pick. Overdue lookups are expired first.
func (m *appModel) settle() tea.Cmd {
	m.session.Expire()
	if m.offer != nil && !m.session.Popup().Visible {
		m.analytics.Record(m.offer.word, m.offer.items, "")
		m.offer = nil
	}
	return m.indicator.SetStatus(m.status())
}

func (m appModel) status() Status {
	return statusFor(m.guard.enabled, m.connState, m.session.State())
}

func (m appModel) updatePad(msg tea.Msg) (appModel, tea.Cmd) {
	oldText := m.pad.Text()
	updated, cmd := m.pad.Update(msg)
	m.pad = updated
	return m.afterEdit(oldText, cmd)
}

// afterEdit runs the suggestion loop for a text change, if there was one.
func (m appModel) afterEdit(oldText string, cmd tea.Cmd) (appModel, tea.Cmd) {
	text := m.pad.Text()
	if text == oldText {
		return m, cmd
	}

	m.tracker.Touch()

	if text == "" {
		m.session.Clear()
	}

	generation, armed := m.scheduler.Changed(text)
	if !armed {
		m.session.Dismiss()
		return m, cmd
	}

	m.session.Arm()
	return m, tea.Batch(cmd, tea.Tick(m.scheduler.QuietPeriod(), func(time.Time) tea.Msg {
		return fireMsg{generation: generation}
	}))
}

// fire starts a lookup for the word under the caret once typing has paused.
func (m appModel) fire(generation uint64) (appModel, tea.Cmd) {
	if !m.scheduler.Fire(generation) {
		return m, nil
	}

	text := m.pad.Text()
	span := wordspan.Locate(text, m.pad.Caret())
	anchor := m.anchorFor(text, wordspan.Trim(span))

	req, ok := m.session.Begin(span, anchor)
	if !ok {
		m.logger.Debug("composer skipping lookup", zap.String("word", span.Text))
		return m, nil
	}

	if !m.conn.Send(req.Word, req.Token) {
		m.session.Abort(req.Token)
		return m, nil
	}
	m.session.Sent(req.Token)

	m.logger.Debug("composer requested synonyms",
		zap.String("word", req.Word),
		zap.Uint64("token", req.Token),
		zap.Int("start", req.Span.Start),
	)
	return m, nil
}

// anchorFor places the popup relative to where span starts in the visible
// part of the pad.
func (m appModel) anchorFor(text string, span wordspan.Span) caret.Point {
	raw := caret.Measure(text, span.Start, m.pad.Metrics())
	raw.Top -= m.pad.ScrollOffset()
	return caret.Anchor(raw, popupSize(m.options.PopupWidth), m.pad.Width, m.options.MinMargin)
}

func (m appModel) applyResponse(msg wire.Message) (appModel, tea.Cmd) {
	previous := m.offer
	outcome := m.session.Apply(msg)

	m.logger.Debug("composer applied response",
		zap.Uint64("id", msg.ID),
		zap.Stringer("outcome", outcome),
		zap.Int("synonyms", len(msg.Response.Synonyms)),
		zap.Error(msg.Err),
	)

	if outcome != suggestion.Shown {
		return m, nil
	}

	if previous != nil {
		m.analytics.Record(previous.word, previous.items, "")
	}
	req, _ := m.session.Current()
	m.offer = &offer{word: req.Word, items: m.session.Popup().Items}
	return m, nil
}

// commit replaces the requested span with synonym. The suppression is set
// before the buffer is written so the resulting change does not start a new
// lookup.
func (m appModel) commit(req suggestion.Request, synonym string) (appModel, tea.Cmd) {
	oldText := m.pad.Text()
	text, caretPos := suggestion.Commit(oldText, req.Span, synonym)

	if m.offer != nil {
		m.analytics.Record(m.offer.word, m.offer.items, synonym)
		m.offer = nil
	}
	m.session.Clear()

	if text != oldText {
		if err := m.suppression.Set(); err != nil {
			m.logger.Warn("composer suppression already pending", zap.Error(err))
		}
	}

	m.pad.SetText(text)
	m.pad.SetCaret(caretPos)

	m.logger.Debug("composer committed synonym",
		zap.String("word", req.Word),
		zap.String("synonym", synonym),
		zap.Int("caret", caretPos),
	)
	return m.afterEdit(oldText, nil)
}

func (m appModel) handleMouse(msg tea.MouseMsg) (appModel, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	if popup := m.session.Popup(); popup.Visible {
		bounds := boundsFor(popup.Anchor, popupSize(m.options.PopupWidth))
		if bounds.contains(msg.X, msg.Y) {
			if i, ok := bounds.itemAt(msg.X, msg.Y); ok {
				if req, synonym, ok := m.session.Pick(i); ok {
					return m.commit(req, synonym)
				}
			}
			return m, nil
		}
		m.session.Dismiss()
	}

	if m.pad.Height > 0 && msg.Y >= m.pad.Height {
		return m, nil
	}
	return m.updatePad(msg)
}

func (m appModel) View() string {
	lines := strings.Split(m.pad.View(), "\n")
	if m.pad.Height > 0 {
		for len(lines) < m.pad.Height {
			lines = append(lines, "")
		}
	}

	if popup := m.session.Popup(); popup.Visible {
		size := popupSize(m.options.PopupWidth)
		lines = overlay(lines, renderPopup(popup, size, m.popupStyles), popup.Anchor.Top, popup.Anchor.Left)
		if m.pad.Height > 0 && len(lines) > m.pad.Height {
			lines = lines[:m.pad.Height]
		}
	}

	hint := ""
	if popup := m.session.Popup(); popup.Visible && popup.Explanation != "" {
		hint = strings.SplitN(wordwrap.String(popup.Explanation, max(1, m.width)), "\n", 2)[0]
		hint = m.hintStyle.Render(hint)
	}

	words := len(strings.Fields(m.pad.Text()))
	status := renderStatusLine(m.width, words, m.notice, m.indicator, m.statusStyles)

	return strings.Join(lines, "\n") + "\n" + hint + "\n" + status
}

// Run opens the writing pad on text and returns the final text. The
// connection is opened in the background and closed on exit.
func Run(
	ctx context.Context,
	text string,
	conn Connector,
	tracker ActivityTracker,
	analytics Analytics,
	logger *zap.Logger,
	options Options,
) (string, error) {
	p := tea.NewProgram(
		initialModel(text, conn, tracker, analytics, logger, options),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	conn.Subscribe(func(msg wire.Message) {
		p.Send(responseMsg{message: msg})
	})
	conn.OnStateChange(func(state connection.State) {
		p.Send(connStateMsg{state: state})
	})
	go func() {
		if err := conn.Connect(ctx); err != nil {
			logger.Warn("composer could not connect", zap.Error(err))
			p.Send(connectErrMsg{err: err})
		}
	}()
	defer conn.Disconnect()

	final, err := p.Run()
	if err != nil {
		return text, err
	}

	model, ok := final.(appModel)
	if !ok {
		logger.Error("composer resulted in an unexpected app model")
		return text, nil
	}
	return model.pad.Text(), nil
}

var _ Surface = (*writepad.Model)(nil)
