package suggestion

import "errors"

// ErrSuppressionPending is returned by Set when the previous suppression has
// not been consumed yet.
var ErrSuppressionPending = errors.New("suppression already pending")

// Suppression is a single-slot mailbox telling the next text change not to
// start a lookup. It is set right before a replacement is written into the
// buffer and consumed by the change that write produces.
type Suppression struct {
	pending bool
}

func (s *Suppression) Set() error {
	if s.pending {
		return ErrSuppressionPending
	}
	s.pending = true
	return nil
}

// Consume reports whether a suppression was pending and clears it.
func (s *Suppression) Consume() bool {
	pending := s.pending
	s.pending = false
	return pending
}

func (s *Suppression) Pending() bool {
	return s.pending
}
