package session

import "errors"

// ErrNoParticipant is returned at bootstrap when the interview detail yields
// no participant to act as. Fatal, not retried.
var ErrNoParticipant = errors.New("interview has no resolvable participant")

// ErrSubmitInFlight is returned when a submission starts while another is
// still outstanding. Cursor-mutating calls are serialized.
var ErrSubmitInFlight = errors.New("a submission is already in flight")

// ErrNotReady is returned when a submit is attempted before the session
// reaches the ready phase.
var ErrNotReady = errors.New("interview session is not ready")

// ErrWrongSlot is returned when a main-answer submit arrives while the cursor
// is on a follow-up, or the reverse.
var ErrWrongSlot = errors.New("submission does not match the cursor's slot")
