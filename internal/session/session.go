// Package session holds the presentation state of a two-object query form.
//
// A Session moves between Idle, InFlight, Succeeded and Failed. Results
// are replaced as a whole: a success installs both slots at once and a
// failure clears whatever was shown before. Completions are matched to the
// request that produced them; anything but the latest request is discarded.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/star/ascas/internal/api"
)

// State is the lifecycle position of a Session.
type State int

const (
	Idle State = iota
	InFlight
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Mode selects how overlapping submissions are handled.
type Mode int

const (
	// SingleOutstanding rejects Submit while a request is pending.
	SingleOutstanding Mode = iota
	// LastRequestWins accepts every Submit; only the newest request's
	// completion is applied.
	LastRequestWins
)

var (
	// ErrInFlight is returned by Submit in SingleOutstanding mode while a
	// request is pending.
	ErrInFlight = errors.New("a query is already in flight")
	// ErrEmptyForm is returned by Submit when either identifier is blank.
	ErrEmptyForm = errors.New("both satellite identifiers are required")
)

// Ticket identifies one submitted request.
type Ticket struct {
	Seq       uint64
	RequestID string
	Sat1ID    string
	Sat2ID    string
}

// Snapshot is an immutable view of a Session.
type Snapshot struct {
	State     State
	Sat1ID    string
	Sat2ID    string
	RequestID string // request that produced Result or Err, or the pending one
	Result    *api.PositionsResponse // shared; treat as read-only
	Err       error
	Stale     uint64 // completions discarded because a newer request exists
}

// Session is safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	mode   Mode
	state  State
	sat1   string
	sat2   string
	seq    uint64
	latest uint64 // seq of the request whose completion may be applied; 0 for none
	reqID  string
	result *api.PositionsResponse
	err    error
	stale  uint64
	newID  func() string
}

// New creates an idle Session.
func New(mode Mode) *Session {
	return &Session{mode: mode, newID: uuid.NewString}
}

// SetForm records the identifiers the next Submit sends.
func (s *Session) SetForm(sat1, sat2 string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sat1, s.sat2 = sat1, sat2
}

// Submit starts a request for the current form.
func (s *Session) Submit() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == InFlight && s.mode == SingleOutstanding {
		return Ticket{}, ErrInFlight
	}
	if s.sat1 == "" || s.sat2 == "" {
		return Ticket{}, ErrEmptyForm
	}

	s.seq++
	s.latest = s.seq
	s.reqID = s.newID()
	s.state = InFlight
	return Ticket{Seq: s.seq, RequestID: s.reqID, Sat1ID: s.sat1, Sat2ID: s.sat2}, nil
}

// current reports whether t may still be applied. Caller holds mu.
func (s *Session) current(t Ticket) bool {
	if s.state != InFlight || t.Seq != s.latest {
		s.stale++
		return false
	}
	return true
}

// Success installs resp if t is the latest request. It reports whether the
// completion was applied.
func (s *Session) Success(t Ticket, resp *api.PositionsResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(t) {
		return false
	}
	s.state = Succeeded
	s.result = resp
	s.err = nil
	s.latest = 0
	return true
}

// Failure clears any displayed result and records err if t is the latest
// request. It reports whether the completion was applied.
func (s *Session) Failure(t Ticket, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(t) {
		return false
	}
	s.state = Failed
	s.result = nil
	s.err = err
	s.latest = 0
	return true
}

// Reset returns to Idle with an empty form. Pending completions become stale.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Idle
	s.sat1, s.sat2 = "", ""
	s.reqID = ""
	s.result = nil
	s.err = nil
	s.latest = 0
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		State:     s.state,
		Sat1ID:    s.sat1,
		Sat2ID:    s.sat2,
		RequestID: s.reqID,
		Result:    s.result,
		Err:       s.err,
		Stale:     s.stale,
	}
}

// Querier issues a positions query.
type Querier interface {
	Positions(ctx context.Context, requestID string, req api.PositionsRequest) (*api.PositionsResponse, error)
}

// Query submits the current form through q and applies the outcome. The
// returned snapshot reflects the session after the completion, which may
// belong to a newer request.
func (s *Session) Query(ctx context.Context, q Querier, base api.PositionsRequest) (Snapshot, error) {
	t, err := s.Submit()
	if err != nil {
		return s.Snapshot(), err
	}

	base.Sat1ID = api.Identifier(t.Sat1ID)
	base.Sat2ID = api.Identifier(t.Sat2ID)
	resp, err := q.Positions(ctx, t.RequestID, base)
	if err != nil {
		s.Failure(t, err)
	} else {
		s.Success(t, resp)
	}
	return s.Snapshot(), err
}
