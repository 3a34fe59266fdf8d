package session

import (
	"sync"
	"time"
)

// ViolationKind identifies the focus transition that triggered a violation.
type ViolationKind string

const (
	// ViolationVisibilityHidden is a tab switch (document became hidden).
	ViolationVisibilityHidden ViolationKind = "VISIBILITY_HIDDEN"
	// ViolationWindowBlur is a window focus loss while the tab stayed
	// visible (app switch without a tab switch).
	ViolationWindowBlur ViolationKind = "WINDOW_BLUR"
)

// Valid reports whether the kind is one of the two qualifying transitions.
func (k ViolationKind) Valid() bool {
	return k == ViolationVisibilityHidden || k == ViolationWindowBlur
}

// Violation is one detected focus-loss event.
type Violation struct {
	Kind ViolationKind `json:"kind"`
	Seq  int           `json:"seq"` // running count including this event
	At   time.Time     `json:"at"`
}

// Monitor tracks integrity violations for a single attempt. It is independent
// of the timer and the answer map: its only state is a monotonically
// non-decreasing counter plus the pending-warning flag. Every qualifying
// transition increments the counter by exactly one and raises a one-shot
// warning the candidate must acknowledge before interaction resumes; the
// acknowledgement is purely advisory and never decrements the counter.
//
// No violation count triggers an automatic submit or disqualification here —
// the final count travels with the result for administrator review.
//
// The Start/Stop lifecycle is scoped to the attempt so no listener outlives
// the session that owns it.
type Monitor struct {
	mu          sync.Mutex
	clock       Clock
	running     bool
	count       int
	pendingWarn bool
	warnings    chan Violation
}

// NewMonitor creates a monitor with a zero counter. A nil clock defaults to
// time.Now.
func NewMonitor(clock Clock) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{
		clock: clock,
		// Buffered so a slow warning consumer never blocks Report.
		warnings: make(chan Violation, 16),
	}
}

// Start begins accepting violation reports.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

// Stop ends the monitoring window. Reports after Stop are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// Report records one qualifying focus transition. It returns the updated
// counter and whether the event was accepted (the monitor must be running and
// the kind must be valid). Each accepted event raises a warning even if an
// earlier one is still unacknowledged — the counter never waits for the ack.
func (m *Monitor) Report(kind ViolationKind) (int, bool) {
	if !kind.Valid() {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.count, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return m.count, false
	}

	m.count++
	m.pendingWarn = true

	v := Violation{Kind: kind, Seq: m.count, At: m.clock()}
	select {
	case m.warnings <- v:
	default:
		// Consumer fell behind; the counter is still authoritative.
	}
	return m.count, true
}

// Acknowledge clears the pending warning. Advisory only.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingWarn = false
}

// AwaitingAck reports whether a warning is waiting to be acknowledged.
func (m *Monitor) AwaitingAck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingWarn
}

// Count returns the current violation count.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Warnings exposes the one-shot warning stream for the attempt's connection.
func (m *Monitor) Warnings() <-chan Violation {
	return m.warnings
}
