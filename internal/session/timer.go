package session

import (
	"sync"
	"time"
)

// Clock supplies the current time. Injected so tests can simulate clock
// jumps and suspended processes.
type Clock func() time.Time

// Remaining recomputes the seconds left in an attempt from wall-clock time:
// max(0, durationMins*60 - floor(now-startedAt)). It is derived from the
// start timestamp on every call — never from accumulated ticks — so a reload
// or a suspended process cannot grant extra time. Display and auto-submit
// both use this same value.
func Remaining(durationMins int, startedAt, now time.Time) int {
	elapsed := int(now.Sub(startedAt) / time.Second)
	rem := durationMins*60 - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}

// Timer drives the countdown for one attempt. It polls the injected clock at
// a fixed granularity (1s in production) and recomputes the remaining time on
// every tick. When the remaining time reaches zero it fires the Expired
// channel exactly once, regardless of how many ticks observe zero.
type Timer struct {
	durationMins int
	startedAt    time.Time
	clock        Clock
	interval     time.Duration

	expired  chan struct{}
	fireOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTimer creates a timer for an attempt that began at startedAt. A nil
// clock defaults to time.Now; a non-positive interval defaults to one second.
func NewTimer(durationMins int, startedAt time.Time, clock Clock, interval time.Duration) *Timer {
	if clock == nil {
		clock = time.Now
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{
		durationMins: durationMins,
		startedAt:    startedAt,
		clock:        clock,
		interval:     interval,
		expired:      make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

// RemainingSeconds returns the recomputed remaining time.
func (t *Timer) RemainingSeconds() int {
	return Remaining(t.durationMins, t.startedAt, t.clock())
}

// Expired is closed once when the countdown reaches zero.
func (t *Timer) Expired() <-chan struct{} {
	return t.expired
}

// Start launches the polling loop. Call in a goroutine is not required; the
// loop runs on its own goroutine and exits on expiry or Stop.
func (t *Timer) Start() {
	go t.loop()
}

func (t *Timer) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// An attempt resumed past its deadline expires immediately, unless the
	// timer was already stopped.
	if t.RemainingSeconds() <= 0 {
		if t.stopped() {
			return
		}
		t.fire()
		return
	}

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			// select picks randomly between ready channels, so a tick can
			// be drawn after Stop; re-check before firing.
			if t.stopped() {
				return
			}
			if t.RemainingSeconds() <= 0 {
				t.fire()
				return
			}
		}
	}
}

func (t *Timer) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *Timer) fire() {
	t.fireOnce.Do(func() {
		close(t.expired)
	})
}

// Stop halts the polling loop. A stopped timer never fires. Safe to call
// multiple times and after expiry.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}
