package debounce

import (
	"time"
)

// DefaultQuietPeriod is how long typing has to pause before a lookup fires.
const DefaultQuietPeriod = 1000 * time.Millisecond

// State of the scheduler's single timer.
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	default:
		return "idle"
	}
}

// Guard reports whether a lookup may be scheduled at all.
type Guard interface {
	Enabled() bool
	Connected() bool
}

// Mailbox is a one-shot flag telling the scheduler to skip the next change.
type Mailbox interface {
	// Consume reports whether a suppression was pending and clears it.
	Consume() bool
}

// Scheduler coalesces text changes into at most one pending lookup. It does
// not own a clock: callers start a timer for the returned generation (a
// tea.Tick in the composer) and hand it back to Fire when it elapses. A
// generation that is no longer current never fires, which is how a timer is
// cancelled.
type Scheduler struct {
	quiet       time.Duration
	guard       Guard
	suppression Mailbox

	state      State
	generation uint64
}

// NewScheduler returns an idle scheduler. A non-positive quiet period means
// DefaultQuietPeriod; guard and suppression may be nil.
func NewScheduler(quiet time.Duration, guard Guard, suppression Mailbox) *Scheduler {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Scheduler{
		quiet:       quiet,
		guard:       guard,
		suppression: suppression,
	}
}

// QuietPeriod is the delay callers should wait before calling Fire.
func (s *Scheduler) QuietPeriod() time.Duration {
	return s.quiet
}

func (s *Scheduler) State() State {
	return s.state
}

// Generation is the id of the most recently armed timer.
func (s *Scheduler) Generation() uint64 {
	return s.generation
}

// Changed records a text change. Any pending timer is cancelled first. A
// pending suppression is consumed and nothing is armed. Otherwise a new timer
// generation is armed when suggestions are enabled, the connection is up and
// text is not empty. Whitespace arms too; the lookup finds no word and sends
// nothing.
func (s *Scheduler) Changed(text string) (uint64, bool) {
	s.Cancel()

	if s.suppression != nil && s.suppression.Consume() {
		return 0, false
	}
	if s.guard != nil && (!s.guard.Enabled() || !s.guard.Connected()) {
		return 0, false
	}
	if text == "" {
		return 0, false
	}

	s.generation++
	s.state = Armed
	return s.generation, true
}

// Fire reports whether the timer for gen should run the lookup. It returns
// true at most once, and only for the generation armed last.
func (s *Scheduler) Fire(gen uint64) bool {
	if s.state != Armed || gen != s.generation {
		return false
	}
	s.state = Idle
	return true
}

// Cancel drops the pending timer, if any.
func (s *Scheduler) Cancel() {
	s.state = Idle
}
