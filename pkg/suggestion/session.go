// Package suggestion tracks one synonym lookup at a time: the word and span
// it was made for, where its popup goes, and whether a reply still belongs to
// it. Transitions are plain method calls so the state machine can be driven
// and tested without a UI.
package suggestion

import (
	"errors"
	"time"

	"github.com/atinylittleshell/quill/pkg/caret"
	"github.com/atinylittleshell/quill/pkg/wire"
	"github.com/atinylittleshell/quill/pkg/wordspan"
)

type State int

const (
	Idle State = iota
	Armed
	Pending
	Showing
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Pending:
		return "pending"
	case Showing:
		return "showing"
	default:
		return "idle"
	}
}

// Outcome is what Apply did with a reply.
type Outcome int

const (
	// Dropped means the reply did not belong to the current request.
	Dropped Outcome = iota
	// Shown means the popup is now visible.
	Shown
	// Empty means the reply had no synonyms and the popup is hidden.
	Empty
	// Failed means the lookup came back as an error. The popup is untouched.
	Failed
)

// DefaultReplyTimeout is how long a lookup waits for its reply before it
// stops taking part in matching. It outlasts the server's own lookup timeout.
const DefaultReplyTimeout = 15 * time.Second

func (o Outcome) String() string {
	switch o {
	case Shown:
		return "shown"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	default:
		return "dropped"
	}
}

// Request is one lookup. Span is the trimmed span in the buffer at the time
// the lookup was made; a commit replaces exactly these runes.
type Request struct {
	Token  uint64
	Word   string
	Span   wordspan.Span
	Anchor caret.Point
}

// Options tunes eligibility, popup size and reply correlation.
type Options struct {
	// MinLength is the shortest word that is looked up.
	MinLength int
	// MaxItems caps the popup list. Values above MaxItems are ignored.
	MaxItems int
	// StrictCorrelation drops replies that belong to an older request. When
	// false every reply is applied to the latest request.
	StrictCorrelation bool
	// ReplyTimeout expires lookups whose reply never arrived, so an id-less
	// reply is not matched against them. Zero disables expiry.
	ReplyTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MinLength:         wordspan.DefaultMinLength,
		MaxItems:          MaxItems,
		StrictCorrelation: true,
		ReplyTimeout:      DefaultReplyTimeout,
	}
}

type lookup struct {
	token  uint64
	sentAt time.Time
}

// Session is the suggestion state machine for one editing buffer. It is not
// safe for concurrent use.
type Session struct {
	opts  Options
	state State

	lastToken uint64
	current   *Request
	inflight  []lookup
	popup     Popup
}

// NewSession returns an idle session with no popup.
func NewSession(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{opts: opts}
}

func (s *Session) State() State {
	return s.state
}

// Current returns the request replies are applied to.
func (s *Session) Current() (Request, bool) {
	if s.current == nil {
		return Request{}, false
	}
	return *s.current, true
}

func (s *Session) Popup() Popup {
	return s.popup
}

// Loading reports whether a lookup for the current request is in flight.
func (s *Session) Loading() bool {
	s.Expire()
	return s.state == Pending
}

// InFlight is the number of lookups sent whose replies have not arrived and
// have not expired.
func (s *Session) InFlight() int {
	s.Expire()
	return len(s.inflight)
}

// Arm is called when a new debounce cycle starts. It hides the popup; the
// current request is kept so a reply that is still on its way can land.
func (s *Session) Arm() {
	s.popup.hide()
	s.state = Armed
}

// Begin starts a lookup for span when the debounce timer fires. An ineligible
// word hides the popup, leaves the session idle and returns false.
func (s *Session) Begin(span wordspan.Span, anchor caret.Point) (Request, bool) {
	span = wordspan.Trim(span)
	if span.Empty() || !wordspan.Eligible(span.Text, s.opts.MinLength) {
		s.popup.hide()
		s.state = Idle
		return Request{}, false
	}

	s.lastToken++
	s.current = &Request{
		Token:  s.lastToken,
		Word:   span.Text,
		Span:   span,
		Anchor: anchor,
	}
	s.popup.hide()
	s.state = Pending
	return *s.current, true
}

// Sent records that the lookup for token went out on the wire.
func (s *Session) Sent(token uint64) {
	s.Expire()
	s.inflight = append(s.inflight, lookup{token: token, sentAt: s.opts.Now()})
}

// Abort forgets the request for token when it could not be sent.
func (s *Session) Abort(token uint64) {
	if s.current != nil && s.current.Token == token {
		s.current = nil
		s.popup.hide()
		s.state = Idle
	}
}

// Apply matches msg against the lookups in flight and updates the popup. A
// reply with an id is matched directly; one without is matched against the
// oldest lookup still in flight. A failed reply releases its lookup and never
// touches the popup.
func (s *Session) Apply(msg wire.Message) Outcome {
	token, known := s.match(msg.ID)

	if s.current == nil {
		return Dropped
	}
	if s.opts.StrictCorrelation && (!known || token != s.current.Token) {
		return Dropped
	}

	if msg.Err != nil {
		// A malformed body leaves the state as it was. A lookup the server
		// gave up on will not be answered, so loading ends.
		if errors.Is(msg.Err, wire.ErrLookupFailed) && s.state == Pending {
			s.state = Idle
		}
		return Failed
	}

	if len(msg.Response.Synonyms) == 0 {
		s.popup.hide()
		s.state = Idle
		return Empty
	}

	s.popup.show(msg.Response.Synonyms, msg.Response.Explanation, s.current.Anchor, s.opts.MaxItems)
	s.state = Showing
	return Shown
}

func (s *Session) match(id uint64) (uint64, bool) {
	s.Expire()
	if id == 0 {
		if len(s.inflight) == 0 {
			return 0, false
		}
		l := s.inflight[0]
		s.inflight = s.inflight[1:]
		return l.token, true
	}
	for i, l := range s.inflight {
		if l.token == id {
			s.inflight = append(s.inflight[:i], s.inflight[i+1:]...)
			return l.token, true
		}
	}
	return 0, false
}

// Expire forgets lookups sent more than ReplyTimeout ago. A current request
// still waiting on one of them stops loading.
func (s *Session) Expire() {
	if s.opts.ReplyTimeout <= 0 {
		return
	}
	deadline := s.opts.Now().Add(-s.opts.ReplyTimeout)
	n := 0
	for n < len(s.inflight) && s.inflight[n].sentAt.Before(deadline) {
		if s.current != nil && s.current.Token == s.inflight[n].token && s.state == Pending {
			s.state = Idle
		}
		n++
	}
	s.inflight = s.inflight[n:]
}

// Move shifts the popup selection by delta.
func (s *Session) Move(delta int) {
	s.popup.move(delta)
}

// Pick returns the request and the synonym at index i of the visible popup.
func (s *Session) Pick(i int) (Request, string, bool) {
	item, ok := s.popup.Item(i)
	if !ok || s.current == nil {
		return Request{}, "", false
	}
	return *s.current, item, true
}

// PickSelected is Pick for the highlighted item.
func (s *Session) PickSelected() (Request, string, bool) {
	return s.Pick(s.popup.Selected)
}

// Dismiss hides the popup without forgetting the current request.
func (s *Session) Dismiss() {
	s.popup.hide()
	if s.state == Showing {
		s.state = Idle
	}
}

// Clear hides the popup and forgets the current request. Lookups still in
// flight stay queued so their replies are matched and dropped.
func (s *Session) Clear() {
	s.popup.hide()
	s.current = nil
	s.state = Idle
}

// Disconnected forgets lookups in flight; their replies can no longer arrive.
func (s *Session) Disconnected() {
	s.inflight = nil
	if s.state == Pending {
		s.state = Idle
	}
}
