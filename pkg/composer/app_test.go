package composer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/atinylittleshell/quill/internal/connection"
	"github.com/atinylittleshell/quill/pkg/debounce"
	"github.com/atinylittleshell/quill/pkg/suggestion"
	"github.com/atinylittleshell/quill/pkg/wire"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	// Plain output and narrow ambiguous glyphs keep the rendered views
	// comparable.
	lipgloss.SetColorProfile(termenv.Ascii)
	runewidth.DefaultCondition.EastAsianWidth = false
	os.Exit(m.Run())
}

type sentWord struct {
	word string
	id   uint64
}

type fakeConn struct {
	refuse bool
	sent   []sentWord
}

func (f *fakeConn) Connect(context.Context) error { return nil }

func (f *fakeConn) Send(word string, id uint64) bool {
	if f.refuse {
		return false
	}
	f.sent = append(f.sent, sentWord{word: word, id: id})
	return true
}

func (f *fakeConn) Subscribe(func(wire.Message))          {}
func (f *fakeConn) OnStateChange(func(connection.State)) {}
func (f *fakeConn) Disconnect()                          {}

type record struct {
	word    string
	offered []string
	chosen  string
}

type fakeAnalytics struct {
	records []record
}

func (f *fakeAnalytics) Record(word string, offered []string, chosen string) {
	f.records = append(f.records, record{word: word, offered: offered, chosen: chosen})
}

type fakeTracker struct {
	touches int
}

func (f *fakeTracker) Touch() { f.touches++ }

type harness struct {
	conn      *fakeConn
	analytics *fakeAnalytics
	tracker   *fakeTracker
}

func newHarness(t *testing.T, text string, connected bool) (appModel, *harness) {
	t.Helper()
	return newHarnessWith(t, text, connected, NewOptions())
}

func newHarnessWith(t *testing.T, text string, connected bool, options Options) (appModel, *harness) {
	t.Helper()
	h := &harness{conn: &fakeConn{}, analytics: &fakeAnalytics{}, tracker: &fakeTracker{}}
	m := initialModel(text, h.conn, h.tracker, h.analytics, zap.NewNop(), options)
	m = step(t, m, tea.WindowSizeMsg{Width: 40, Height: 12})
	if connected {
		m = step(t, m, connStateMsg{state: connection.Connected})
	}
	return m, h
}

func step(t *testing.T, m appModel, msg tea.Msg) appModel {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(appModel)
	require.True(t, ok)
	return model
}

func typeRunes(t *testing.T, m appModel, s string) appModel {
	t.Helper()
	for _, r := range s {
		if r == ' ' {
			m = step(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
			continue
		}
		m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func fire(t *testing.T, m appModel) appModel {
	t.Helper()
	return step(t, m, fireMsg{generation: m.scheduler.Generation()})
}

func reply(id uint64, synonyms ...string) responseMsg {
	return responseMsg{message: wire.Message{
		ID:       id,
		Response: wire.SuggestionResponse{Synonyms: synonyms, Explanation: "a typo of quick"},
	}}
}

func failed(id uint64) responseMsg {
	return responseMsg{message: wire.Failed(wire.Failure(id, errors.New("too many pending lookups")))}
}

// showPopup types the last letter of "qick", lets the timer fire and
// delivers the reply.
func showPopup(t *testing.T) (appModel, *harness) {
	t.Helper()
	m, h := newHarness(t, "The qic", true)
	m = typeRunes(t, m, "k")
	m = fire(t, m)
	require.Equal(t, []sentWord{{word: "qick", id: 1}}, h.conn.sent)
	m = step(t, m, reply(1, "quick", "fast", "rapid"))
	require.True(t, m.session.Popup().Visible)
	return m, h
}

func TestTypingSendsLookupAfterQuietPeriod(t *testing.T) {
	m, h := newHarness(t, "The qic", true)

	m = typeRunes(t, m, "k")
	assert.Equal(t, debounce.Armed, m.scheduler.State())
	assert.Equal(t, suggestion.Armed, m.session.State())
	assert.Empty(t, h.conn.sent, "nothing is sent before the timer fires")

	m = fire(t, m)
	assert.Equal(t, []sentWord{{word: "qick", id: 1}}, h.conn.sent)
	assert.Equal(t, suggestion.Pending, m.session.State())
	assert.Equal(t, StatusLoading, m.indicator.GetStatus())
	assert.Equal(t, 1, h.tracker.touches)
}

func TestAcceptCommitsSynonym(t *testing.T) {
	m, h := showPopup(t)
	gen := m.scheduler.Generation()

	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})

	assert.Equal(t, "The quick", m.pad.Text())
	assert.Equal(t, 9, m.pad.Caret())
	assert.False(t, m.session.Popup().Visible)
	assert.Equal(t, debounce.Idle, m.scheduler.State(), "the commit does not start a new lookup")
	assert.Equal(t, gen, m.scheduler.Generation())
	assert.False(t, m.suppression.Pending())
	assert.Equal(t, []record{{word: "qick", offered: []string{"quick", "fast", "rapid"}, chosen: "quick"}}, h.analytics.records)
	assert.Equal(t, 2, h.tracker.touches)

	m = typeRunes(t, m, "l")
	assert.Equal(t, debounce.Armed, m.scheduler.State(), "the next edit arms again")
}

func TestStaleTimerDoesNotSend(t *testing.T) {
	m, h := newHarness(t, "The qic", true)

	m = typeRunes(t, m, "k")
	stale := m.scheduler.Generation()
	m = typeRunes(t, m, "s")

	m = step(t, m, fireMsg{generation: stale})
	assert.Empty(t, h.conn.sent)

	m = fire(t, m)
	assert.Equal(t, []sentWord{{word: "qicks", id: 1}}, h.conn.sent)

	m = fire(t, m)
	assert.Len(t, h.conn.sent, 1, "a generation fires once")
}

func TestSelectionKeys(t *testing.T) {
	m, _ := showPopup(t)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, 1, m.session.Popup().Selected)
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	assert.Equal(t, 2, m.session.Popup().Selected, "selection wraps")

	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "The rapid", m.pad.Text())
}

func TestAltDigitPicksItem(t *testing.T) {
	m, h := showPopup(t)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}, Alt: true})

	assert.Equal(t, "The fast", m.pad.Text())
	require.Len(t, h.analytics.records, 1)
	assert.Equal(t, "fast", h.analytics.records[0].chosen)
}

func TestEscapeDismisses(t *testing.T) {
	m, h := showPopup(t)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.False(t, m.session.Popup().Visible)
	assert.Equal(t, "The qick", m.pad.Text())
	assert.Equal(t, []record{{word: "qick", offered: []string{"quick", "fast", "rapid"}}}, h.analytics.records)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "The qick", m.pad.Text(), "tab after dismissal goes to the pad")
}

func TestTypingHidesPopup(t *testing.T) {
	m, h := showPopup(t)

	m = typeRunes(t, m, " ")

	assert.False(t, m.session.Popup().Visible)
	assert.Equal(t, "The qick ", m.pad.Text())
	require.Len(t, h.analytics.records, 1)
	assert.Empty(t, h.analytics.records[0].chosen)
}

func TestClickOnItemCommits(t *testing.T) {
	m, _ := showPopup(t)

	// "qick" starts at column 4 on the first row, so the popup is clamped
	// to the top edge and its second item row is y=2.
	anchor := m.session.Popup().Anchor
	require.Equal(t, 0, anchor.Top)
	require.Equal(t, 4, anchor.Left)

	m = step(t, m, tea.MouseMsg{X: 6, Y: 2, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})

	assert.Equal(t, "The fast", m.pad.Text())
	assert.False(t, m.session.Popup().Visible)
}

func TestClickOnBorderKeepsPopup(t *testing.T) {
	m, _ := showPopup(t)

	m = step(t, m, tea.MouseMsg{X: 4, Y: 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})

	assert.True(t, m.session.Popup().Visible)
	assert.Equal(t, "The qick", m.pad.Text())
}

func TestClickOutsideDismisses(t *testing.T) {
	m, h := showPopup(t)

	m = step(t, m, tea.MouseMsg{X: 2, Y: 0, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})

	assert.False(t, m.session.Popup().Visible)
	assert.Equal(t, 2, m.pad.Caret(), "the click also moves the caret")
	assert.Len(t, h.analytics.records, 1)
}

func TestToggleDisablesSuggestions(t *testing.T) {
	m, h := showPopup(t)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.False(t, m.session.Popup().Visible)
	assert.Equal(t, StatusDisabled, m.indicator.GetStatus())

	gen := m.scheduler.Generation()
	m = typeRunes(t, m, "s")
	assert.Equal(t, debounce.Idle, m.scheduler.State())
	assert.Equal(t, gen, m.scheduler.Generation())

	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	m = typeRunes(t, m, "s")
	assert.Equal(t, debounce.Armed, m.scheduler.State())
	assert.Len(t, h.conn.sent, 1)
}

func TestRefusedSendLeavesNoPopup(t *testing.T) {
	m, h := newHarness(t, "The qic", true)
	h.conn.refuse = true

	m = typeRunes(t, m, "k")
	m = fire(t, m)

	assert.Equal(t, suggestion.Idle, m.session.State())
	_, ok := m.session.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, m.session.InFlight())

	m = step(t, m, reply(0, "quick"))
	assert.False(t, m.session.Popup().Visible)
}

func TestShortWordIsNotLookedUp(t *testing.T) {
	m, h := newHarness(t, "The ", true)

	m = typeRunes(t, m, "a")
	m = fire(t, m)

	assert.Empty(t, h.conn.sent)
	assert.Equal(t, suggestion.Idle, m.session.State())
}

func TestOfflineDoesNotArm(t *testing.T) {
	m, h := newHarness(t, "The qic", false)

	m = typeRunes(t, m, "k")
	m = fire(t, m)

	assert.Empty(t, h.conn.sent)
	assert.Equal(t, StatusOffline, m.indicator.GetStatus())
	assert.Contains(t, m.View(), "offline")
	assert.Equal(t, 1, h.tracker.touches, "edits are tracked while offline")
}

func TestDisconnectDropsPendingReply(t *testing.T) {
	m, _ := newHarness(t, "The qic", true)
	m = typeRunes(t, m, "k")
	m = fire(t, m)

	m = step(t, m, connStateMsg{state: connection.Connecting})
	assert.Equal(t, StatusConnecting, m.indicator.GetStatus())
	assert.Equal(t, 0, m.session.InFlight())

	m = step(t, m, reply(1, "quick"))
	assert.False(t, m.session.Popup().Visible)
}

func TestOlderReplyIsDropped(t *testing.T) {
	m, h := newHarness(t, "The qic", true)
	m = typeRunes(t, m, "k")
	m = fire(t, m)
	m = typeRunes(t, m, " fo")
	m = fire(t, m)
	require.Equal(t, []sentWord{{word: "qick", id: 1}, {word: "fo", id: 2}}, h.conn.sent)

	m = step(t, m, reply(1, "quick"))
	assert.False(t, m.session.Popup().Visible)

	m = step(t, m, reply(2, "fox"))
	assert.True(t, m.session.Popup().Visible)
	assert.Equal(t, []string{"fox"}, m.session.Popup().Items)
}

func TestNewPopupRecordsReplacedOffer(t *testing.T) {
	options := NewOptions()
	options.Session.StrictCorrelation = false
	m, h := newHarnessWith(t, "The qic", true, options)
	m = typeRunes(t, m, "k")
	m = fire(t, m)
	m = step(t, m, reply(1, "quick"))
	m = step(t, m, reply(0, "fast"))

	require.Len(t, h.analytics.records, 1)
	assert.Equal(t, record{word: "qick", offered: []string{"quick"}}, h.analytics.records[0])
	assert.Equal(t, []string{"fast"}, m.session.Popup().Items)
}

func TestConnectErrorShowsNotice(t *testing.T) {
	m, _ := newHarness(t, "", false)

	m = step(t, m, connectErrMsg{err: connection.ErrUnauthorized})
	assert.Contains(t, m.View(), "offline: ")

	m = step(t, m, connStateMsg{state: connection.Connected})
	assert.Empty(t, m.notice)
}

func TestViewShowsPopupAndStatus(t *testing.T) {
	m, _ := showPopup(t)

	view := m.View()
	assert.Contains(t, view, "1 quick")
	assert.Contains(t, view, "3 rapid")
	assert.Contains(t, view, "a typo of quick")
	assert.Contains(t, view, "2 words")
	assert.Contains(t, view, StatusReady.Label())
}

func TestQuitKey(t *testing.T) {
	m, _ := newHarness(t, "", true)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
}

func TestClearingBufferDismissesPopup(t *testing.T) {
	m, h := showPopup(t)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlU})

	assert.Empty(t, m.pad.Text())
	assert.False(t, m.session.Popup().Visible)
	_, ok := m.session.Current()
	assert.False(t, ok)
	assert.Equal(t, debounce.Idle, m.scheduler.State())
	assert.Equal(t, StatusIdle, m.indicator.GetStatus())
	assert.Equal(t, []record{{word: "qick", offered: []string{"quick", "fast", "rapid"}}}, h.analytics.records)
}

func TestClearingBufferDropsLateReply(t *testing.T) {
	m, h := newHarness(t, "The qic", true)
	m = typeRunes(t, m, "k")
	m = fire(t, m)
	require.Len(t, h.conn.sent, 1)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlU})
	require.Empty(t, m.pad.Text())
	assert.Equal(t, suggestion.Idle, m.session.State())

	m = step(t, m, reply(1, "quick"))
	assert.False(t, m.session.Popup().Visible)
	assert.Equal(t, 0, m.session.InFlight())
	assert.Empty(t, h.analytics.records)
}

func TestFailedReplyDoesNotStallLookups(t *testing.T) {
	tests := []struct {
		name string
		id   func(n uint64) uint64
	}{
		{"replies without ids", func(uint64) uint64 { return 0 }},
		{"replies with ids", func(n uint64) uint64 { return n }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := newHarness(t, "The qic", true)
			m = typeRunes(t, m, "k")
			m = fire(t, m)

			m = step(t, m, failed(tt.id(1)))
			assert.False(t, m.session.Popup().Visible)
			assert.Equal(t, suggestion.Idle, m.session.State())
			assert.Equal(t, StatusIdle, m.indicator.GetStatus(), "loading stops")
			assert.Equal(t, 0, m.session.InFlight())

			m = typeRunes(t, m, " fo")
			m = fire(t, m)
			m = step(t, m, reply(tt.id(2), "fox"))
			assert.Equal(t, []string{"fox"}, m.session.Popup().Items)

			m = typeRunes(t, m, "x")
			m = fire(t, m)
			m = step(t, m, reply(tt.id(3), "vixen"))
			assert.Equal(t, []string{"vixen"}, m.session.Popup().Items)
			assert.Len(t, h.conn.sent, 3)
		})
	}
}

func TestLostReplyExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	options := NewOptions()
	options.Session.Now = func() time.Time { return now }
	m, h := newHarnessWith(t, "The qic", true, options)

	m = typeRunes(t, m, "k")
	m = fire(t, m)
	require.Equal(t, StatusLoading, m.indicator.GetStatus())

	now = now.Add(suggestion.DefaultReplyTimeout + time.Second)
	m = step(t, m, indicatorTickMsg{})
	assert.Equal(t, StatusIdle, m.indicator.GetStatus())
	assert.Equal(t, 0, m.session.InFlight())

	m = typeRunes(t, m, " fo")
	m = fire(t, m)
	m = step(t, m, reply(0, "fox"))
	assert.True(t, m.session.Popup().Visible)
	assert.Equal(t, []string{"fox"}, m.session.Popup().Items)
	assert.Len(t, h.conn.sent, 2)
}

func TestWhitespaceOnlyBufferSendsNothing(t *testing.T) {
	m, h := newHarness(t, "", true)

	m = typeRunes(t, m, "  ")
	assert.Equal(t, debounce.Armed, m.scheduler.State())

	m = fire(t, m)
	assert.Empty(t, h.conn.sent)
	assert.Equal(t, suggestion.Idle, m.session.State())
}
