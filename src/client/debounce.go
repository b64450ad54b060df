package client

import (
	"strings"
	"sync"
	"time"

	"github.com/orchestra-mcp/chatrelay/src/types"
)

// TypingTimeout is the quiet period after which a typing user is
// considered idle.
const TypingTimeout = 1200 * time.Millisecond

// watchdogSlack delays each check slightly past the timeout so the check
// armed by the latest keystroke always sees the full quiet period.
const watchdogSlack = 10 * time.Millisecond

// State is the local typing state.
type State int

const (
	Idle State = iota
	Typing
)

func (s State) String() string {
	if s == Typing {
		return "typing"
	}
	return "idle"
}

// Timer is the subset of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// Clock schedules watchdog checks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer turns raw input changes into typing and stop typing edges.
type Debouncer struct {
	mu      sync.Mutex
	state   State
	seq     uint64
	timer   Timer
	closed  bool
	timeout time.Duration
	clock   Clock
	emit    func(event string)

	// Edges waiting for emit, and whether some caller is delivering them.
	pending  []string
	emitting bool
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*Debouncer)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) DebounceOption {
	return func(d *Debouncer) { d.clock = c }
}

// WithTimeout overrides TypingTimeout.
func WithTimeout(timeout time.Duration) DebounceOption {
	return func(d *Debouncer) { d.timeout = timeout }
}

// NewDebouncer creates an idle debouncer. emit is called with
// types.EventTyping or types.EventStopTyping on every transition, in
// transition order and never while the debouncer lock is held, so a slow
// emit does not block State or the watchdog.
func NewDebouncer(emit func(event string), opts ...DebounceOption) *Debouncer {
	d := &Debouncer{
		timeout: TypingTimeout,
		clock:   realClock{},
		emit:    emit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Input records the current content of the text input.
func (d *Debouncer) Input(text string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	if strings.TrimSpace(text) == "" {
		d.stopLocked()
		d.flushUnlock()
		return
	}

	if d.state == Idle {
		d.state = Typing
		d.pending = append(d.pending, types.EventTyping)
	}

	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.timeout+watchdogSlack, func() { d.expire(seq) })
	d.flushUnlock()
}

// Flush forces an immediate stop typing if the user is typing. Called
// when a message is sent.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.stopLocked()
	d.flushUnlock()
}

// State returns the current typing state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close stops the debouncer from emitting anything further.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

// expire is the watchdog for the keystroke numbered seq. Only the check
// armed by the latest keystroke may end the typing burst.
func (d *Debouncer) expire(seq uint64) {
	d.mu.Lock()
	if d.closed || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.stopLocked()
	d.flushUnlock()
}

func (d *Debouncer) stopLocked() {
	if d.state != Typing {
		return
	}
	d.state = Idle
	d.pending = append(d.pending, types.EventStopTyping)
}

// flushUnlock delivers the queued edges with the lock released and then
// unlocks. Only one caller delivers at a time; edges queued meanwhile are
// picked up by that caller, which keeps them in order.
func (d *Debouncer) flushUnlock() {
	if d.emitting {
		d.mu.Unlock()
		return
	}
	d.emitting = true
	for len(d.pending) > 0 {
		event := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()
		d.emit(event)
		d.mu.Lock()
	}
	d.emitting = false
	d.mu.Unlock()
}
