package session

import (
	"testing"
	"time"
)

func TestMonitorCountsQualifyingTransitions(t *testing.T) {
	m := NewMonitor(nil)
	m.Start()

	events := []ViolationKind{
		ViolationVisibilityHidden,
		ViolationWindowBlur,
		ViolationVisibilityHidden,
	}
	for i, kind := range events {
		count, ok := m.Report(kind)
		if !ok {
			t.Fatalf("Report(%s) rejected", kind)
		}
		if count != i+1 {
			t.Fatalf("Report(%s) count = %d, want %d", kind, count, i+1)
		}
	}

	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestMonitorRejectsInvalidKind(t *testing.T) {
	m := NewMonitor(nil)
	m.Start()

	if _, ok := m.Report(ViolationKind("COPY_PASTE")); ok {
		t.Error("unknown kind accepted")
	}
	if got := m.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestMonitorLifecycle(t *testing.T) {
	m := NewMonitor(nil)

	// Not started yet: reports are dropped.
	if _, ok := m.Report(ViolationWindowBlur); ok {
		t.Error("report accepted before Start")
	}

	m.Start()
	if _, ok := m.Report(ViolationWindowBlur); !ok {
		t.Error("report rejected while running")
	}

	m.Stop()
	if _, ok := m.Report(ViolationWindowBlur); ok {
		t.Error("report accepted after Stop")
	}
	if got := m.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

// The acknowledgement is advisory: it clears the pending warning but never
// decrements the counter, and an unacknowledged warning does not block
// further counting.
func TestMonitorAcknowledgeIsAdvisory(t *testing.T) {
	m := NewMonitor(nil)
	m.Start()

	m.Report(ViolationVisibilityHidden)
	if !m.AwaitingAck() {
		t.Fatal("expected pending warning after violation")
	}

	// Counting continues while the warning is unacknowledged.
	if count, _ := m.Report(ViolationWindowBlur); count != 2 {
		t.Fatalf("count while unacknowledged = %d, want 2", count)
	}

	m.Acknowledge()
	if m.AwaitingAck() {
		t.Error("warning still pending after Acknowledge")
	}
	if got := m.Count(); got != 2 {
		t.Errorf("Count() after ack = %d, want 2 (ack must not decrement)", got)
	}
}

func TestMonitorWarningStream(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m := NewMonitor(clock.Now)
	m.Start()

	m.Report(ViolationVisibilityHidden)
	m.Report(ViolationWindowBlur)

	want := []Violation{
		{Kind: ViolationVisibilityHidden, Seq: 1, At: clock.Now()},
		{Kind: ViolationWindowBlur, Seq: 2, At: clock.Now()},
	}
	for i, w := range want {
		select {
		case got := <-m.Warnings():
			if got != w {
				t.Errorf("warning[%d] = %+v, want %+v", i, got, w)
			}
		default:
			t.Fatalf("warning[%d] missing from stream", i)
		}
	}
}
