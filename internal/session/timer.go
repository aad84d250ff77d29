package session

import (
	"sync"
	"time"
)

const defaultAnswerSeconds = 120

// Timer is the per-question answer countdown. It decrements once per second
// while running and fires onExpire exactly once when it reaches zero, so the
// interview can never sit stuck on an unanswered question.
type Timer struct {
	seconds  int
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	stop      chan struct{}
}

// NewTimer builds a countdown of the given length. Non-positive lengths fall
// back to 120 seconds.
func NewTimer(seconds int, onTick func(int), onExpire func()) *Timer {
	if seconds <= 0 {
		seconds = defaultAnswerSeconds
	}
	return &Timer{
		seconds:   seconds,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: seconds,
	}
}

// Reset restarts the countdown from the full length.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.stopLocked()
	t.remaining = t.seconds
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go t.run(stop)
}

// Stop halts the countdown without firing expiry.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Remaining returns the seconds left on the countdown.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) run(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.stop != stop {
				t.mu.Unlock()
				return
			}
			t.remaining--
			remaining := t.remaining
			expired := remaining <= 0
			if expired {
				t.stopLocked()
			}
			t.mu.Unlock()

			if t.onTick != nil {
				t.onTick(remaining)
			}
			if expired {
				if t.onExpire != nil {
					t.onExpire()
				}
				return
			}
		}
	}
}
