package session

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a mutable clock shared between the test and the component
// under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRemaining(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		durationMins int
		elapsed      time.Duration
		want         int
	}{
		{name: "at start", durationMins: 60, elapsed: 0, want: 3600},
		{name: "mid exam", durationMins: 60, elapsed: 30 * time.Minute, want: 1800},
		{name: "one second left", durationMins: 1, elapsed: 59 * time.Second, want: 1},
		{name: "exactly expired", durationMins: 1, elapsed: 60 * time.Second, want: 0},
		{name: "past deadline clamps to zero", durationMins: 1, elapsed: 10 * time.Minute, want: 0},
		{name: "sub-second elapsed floors", durationMins: 1, elapsed: 1500 * time.Millisecond, want: 59},
		{name: "five minute suspension counted", durationMins: 10, elapsed: 5 * time.Minute, want: 300},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := start.Add(tc.elapsed)
			if got := Remaining(tc.durationMins, start, now); got != tc.want {
				t.Errorf("Remaining() = %d, want %d", got, tc.want)
			}
		})
	}
}

// A clock jump (suspended process, backgrounded tab) must be reflected in the
// recomputed value: remaining time derives from wall clock, not tick counts.
func TestTimerClockJump(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	timer := NewTimer(10, clock.Now(), clock.Now, time.Millisecond)
	defer timer.Stop()

	if got := timer.RemainingSeconds(); got != 600 {
		t.Fatalf("RemainingSeconds() = %d, want 600", got)
	}

	clock.Advance(5 * time.Minute)
	if got := timer.RemainingSeconds(); got != 300 {
		t.Errorf("RemainingSeconds() after 5m jump = %d, want 300", got)
	}
}

func TestTimerFiresOnceOnExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	timer := NewTimer(1, clock.Now(), clock.Now, time.Millisecond)
	timer.Start()
	defer timer.Stop()

	clock.Advance(61 * time.Second)

	select {
	case <-timer.Expired():
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire after expiry")
	}

	// The channel is closed, so a second receive returns immediately —
	// there is no second event to consume.
	select {
	case <-timer.Expired():
	default:
		t.Fatal("expired channel should remain closed")
	}

	if got := timer.RemainingSeconds(); got != 0 {
		t.Errorf("RemainingSeconds() after expiry = %d, want 0", got)
	}
}

func TestTimerStopPreventsFire(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	timer := NewTimer(1, clock.Now(), clock.Now, time.Millisecond)
	timer.Start()
	timer.Stop()

	clock.Advance(2 * time.Minute)

	select {
	case <-timer.Expired():
		t.Fatal("stopped timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

// A timer stopped before its loop observes the overdue deadline must stay
// quiet: the immediate-expiry check honors Stop too.
func TestTimerStopBeforeOverdueStartPreventsFire(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	startedAt := clock.Now().Add(-2 * time.Hour)
	timer := NewTimer(60, startedAt, clock.Now, time.Millisecond)
	timer.Stop()
	timer.Start()

	select {
	case <-timer.Expired():
		t.Fatal("stopped timer fired on overdue start")
	case <-time.After(50 * time.Millisecond):
	}
}

// An attempt resumed after its deadline already passed expires immediately.
func TestTimerExpiredOnStart(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	startedAt := clock.Now().Add(-2 * time.Hour)
	timer := NewTimer(60, startedAt, clock.Now, time.Millisecond)
	timer.Start()
	defer timer.Stop()

	select {
	case <-timer.Expired():
	case <-time.After(2 * time.Second):
		t.Fatal("overdue timer did not fire on start")
	}
}
