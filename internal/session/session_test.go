package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/model"
)

// stubSink records deliveries and serves scripted errors in order.
type stubSink struct {
	mu         sync.Mutex
	deliveries []*Result
	errs       []error
}

func (s *stubSink) Deliver(_ context.Context, res *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, res)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

func newTestSession(clock *fakeClock, sink Sink, questions ...model.Question) *Session {
	return New(Config{
		AttemptID:    uuid.New(),
		ExamID:       uuid.New(),
		CandidateID:  7,
		Questions:    questions,
		DurationMins: 30,
		Clock:        clock.Now,
		TickInterval: time.Millisecond,
		Sink:         sink,
	})
}

func startedSession(t *testing.T, clock *fakeClock, sink Sink, questions ...model.Question) *Session {
	t.Helper()
	s := newTestSession(clock, sink, questions...)
	if err := s.Start(clock.Now(), nil, nil, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return s
}

func TestSessionMutationsBeforeStart(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	q := mcq(t, "a", 1)
	s := newTestSession(clock, &stubSink{}, q)

	if got := s.State(); got != StateNotStarted {
		t.Fatalf("State() = %s, want %s", got, StateNotStarted)
	}
	if err := s.RecordAnswer(q.ID.String(), "a"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("RecordAnswer() error = %v, want ErrNotStarted", err)
	}
	if _, _, err := s.Finalize(context.Background(), TriggerManual); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Finalize() error = %v, want ErrNotStarted", err)
	}
}

func TestSessionManualFinalize(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{}
	q1 := mcq(t, "b", 5)
	q2 := mcq(t, "c", 3)
	s := startedSession(t, clock, sink, q1, q2)

	if err := s.RecordAnswer(q1.ID.String(), "b"); err != nil {
		t.Fatalf("RecordAnswer() error: %v", err)
	}
	if err := s.RecordAnswer(q2.ID.String(), "a"); err != nil {
		t.Fatalf("RecordAnswer() error: %v", err)
	}

	clock.Advance(12 * time.Minute)

	res, performed, err := s.Finalize(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if !performed {
		t.Error("Finalize() performed = false, want true")
	}
	if res.Score != 5 || res.TotalMarks != 8 {
		t.Errorf("result score = %d/%d, want 5/8", res.Score, res.TotalMarks)
	}
	if res.TimeTakenSeconds != 720 {
		t.Errorf("TimeTakenSeconds = %d, want 720", res.TimeTakenSeconds)
	}
	if res.AutoSubmitted {
		t.Error("AutoSubmitted = true on manual finalize")
	}
	if got := s.State(); got != StateSubmitted {
		t.Errorf("State() = %s, want %s", got, StateSubmitted)
	}
	if sink.count() != 1 {
		t.Errorf("sink deliveries = %d, want 1", sink.count())
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{}
	q := mcq(t, "a", 2)
	s := startedSession(t, clock, sink, q)
	s.RecordAnswer(q.ID.String(), "a")

	first, performed, err := s.Finalize(context.Background(), TriggerManual)
	if err != nil || !performed {
		t.Fatalf("first Finalize() = (%v, %v)", performed, err)
	}

	clock.Advance(time.Hour) // must not change the cached result

	second, performed, err := s.Finalize(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("second Finalize() error: %v", err)
	}
	if performed {
		t.Error("second Finalize() performed = true, want false")
	}
	if first != second {
		t.Error("second Finalize() returned a different result instance")
	}
	if sink.count() != 1 {
		t.Errorf("sink deliveries = %d, want 1 (no redelivery on repeat)", sink.count())
	}
}

func TestMutationsRejectedAfterSubmit(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	q := mcq(t, "a", 1)
	s := startedSession(t, clock, &stubSink{}, q)
	if _, _, err := s.Finalize(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if err := s.RecordAnswer(q.ID.String(), "b"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("RecordAnswer() error = %v, want ErrAlreadySubmitted", err)
	}
	if _, err := s.ToggleFlag(q.ID.String()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("ToggleFlag() error = %v, want ErrAlreadySubmitted", err)
	}
	if err := s.Navigate(0); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Navigate() error = %v, want ErrAlreadySubmitted", err)
	}
	if _, err := s.RecordViolation(ViolationWindowBlur); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("RecordViolation() error = %v, want ErrAlreadySubmitted", err)
	}
	if got := s.RemainingSeconds(); got != 0 {
		t.Errorf("RemainingSeconds() after submit = %d, want 0", got)
	}
}

// All three triggers converge on one finalize: under a storm of concurrent
// calls exactly one performs it, everyone observes the identical result, and
// the sink sees a single delivery.
func TestFinalizeRaceSingleWinner(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{}
	q := mcq(t, "a", 1)
	s := startedSession(t, clock, sink, q)
	s.RecordAnswer(q.ID.String(), "a")

	const callers = 16
	triggers := []Trigger{TriggerManual, TriggerExit}

	var wg sync.WaitGroup
	results := make([]*Result, callers)
	performedCount := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, performed, err := s.Finalize(context.Background(), triggers[i%len(triggers)])
			if err != nil {
				t.Errorf("Finalize() error: %v", err)
			}
			results[i] = res
			performedCount[i] = performed
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		if performedCount[i] {
			winners++
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d observed a different result instance", i)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if sink.count() != 1 {
		t.Errorf("sink deliveries = %d, want 1", sink.count())
	}
}

func TestTimeoutAutoFinalize(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{}
	q := mcq(t, "a", 1)
	s := New(Config{
		AttemptID:    uuid.New(),
		ExamID:       uuid.New(),
		CandidateID:  7,
		Questions:    []model.Question{q},
		DurationMins: 1,
		Clock:        clock.Now,
		TickInterval: time.Millisecond,
		Sink:         sink,
	})
	if err := s.Start(clock.Now(), nil, nil, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	clock.Advance(61 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateSubmitted {
		if time.Now().After(deadline) {
			t.Fatal("attempt did not auto-finalize after expiry")
		}
		time.Sleep(time.Millisecond)
	}

	res := s.Result()
	if res == nil {
		t.Fatal("Result() = nil after auto-finalize")
	}
	if !res.AutoSubmitted {
		t.Error("AutoSubmitted = false on timeout finalize")
	}
	if sink.count() != 1 {
		t.Errorf("sink deliveries = %d, want 1", sink.count())
	}
}

// A transient sink failure never rolls back the local commit: the attempt
// stays Submitted and the same payload is redelivered until acknowledged.
func TestTransientDeliveryFailureKeepsSubmitted(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{errs: []error{&DeliveryError{Err: errors.New("db down")}}}
	q := mcq(t, "a", 1)
	s := startedSession(t, clock, sink, q)
	s.RecordAnswer(q.ID.String(), "a")

	res, performed, err := s.Finalize(context.Background(), TriggerManual)
	if !performed {
		t.Fatal("Finalize() performed = false, want true")
	}
	if !IsTransientDelivery(err) {
		t.Fatalf("Finalize() error = %v, want transient DeliveryError", err)
	}
	if res == nil {
		t.Fatal("Finalize() returned nil result alongside DeliveryError")
	}
	if got := s.State(); got != StateSubmitted {
		t.Fatalf("State() = %s, want %s (no rollback on delivery failure)", got, StateSubmitted)
	}

	// Repeated finalize serves the cache and does not re-deliver.
	cached, performed, err := s.Finalize(context.Background(), TriggerManual)
	if err != nil || performed || cached != res {
		t.Fatalf("repeat Finalize() = (%p, %v, %v), want cached result", cached, performed, err)
	}

	// Redelivery with the identical payload, as the retry worker would do.
	if err := sink.Deliver(context.Background(), res); err != nil {
		t.Fatalf("redelivery error: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("sink deliveries = %d, want 2", sink.count())
	}
	if !reflect.DeepEqual(sink.deliveries[0], sink.deliveries[1]) {
		t.Error("redelivered payload differs from the original")
	}
}

// A timeout auto-finalize whose sink write fails transiently must still reach
// the redelivery hook: the expiry goroutine has no caller to observe the
// error, so the hook is the only path back to the retry queue.
func TestTimeoutDeliveryFailureReachesRetryHook(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{errs: []error{&DeliveryError{Err: errors.New("db down")}}}
	q := mcq(t, "a", 1)

	var mu sync.Mutex
	var retried []*Result
	s := New(Config{
		AttemptID:    uuid.New(),
		ExamID:       uuid.New(),
		CandidateID:  7,
		Questions:    []model.Question{q},
		DurationMins: 1,
		Clock:        clock.Now,
		TickInterval: time.Millisecond,
		Sink:         sink,
		OnDeliveryFailure: func(res *Result) {
			mu.Lock()
			retried = append(retried, res)
			mu.Unlock()
		},
	})
	if err := s.Start(clock.Now(), nil, nil, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	clock.Advance(61 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateSubmitted {
		if time.Now().After(deadline) {
			t.Fatal("attempt did not auto-finalize after expiry")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(retried) != 1 {
		t.Fatalf("retry hook invocations = %d, want 1", len(retried))
	}
	if retried[0] != s.Result() {
		t.Error("retry hook received a different result instance than the committed one")
	}
	if !retried[0].AutoSubmitted {
		t.Error("retried payload AutoSubmitted = false on timeout finalize")
	}
}

func TestManualDeliveryFailureReachesRetryHook(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{errs: []error{&DeliveryError{Err: errors.New("db down")}}}
	q := mcq(t, "a", 1)

	var retried []*Result
	s := New(Config{
		AttemptID:         uuid.New(),
		ExamID:            uuid.New(),
		CandidateID:       7,
		Questions:         []model.Question{q},
		DurationMins:      30,
		Clock:             clock.Now,
		TickInterval:      time.Millisecond,
		Sink:              sink,
		OnDeliveryFailure: func(res *Result) { retried = append(retried, res) },
	})
	if err := s.Start(clock.Now(), nil, nil, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	res, performed, err := s.Finalize(context.Background(), TriggerManual)
	if !performed || !IsTransientDelivery(err) {
		t.Fatalf("Finalize() = (%v, %v), want performed with transient error", performed, err)
	}
	if len(retried) != 1 || retried[0] != res {
		t.Fatalf("retry hook = %d invocations, want 1 with the committed result", len(retried))
	}

	// A successful delivery never invokes the hook.
	s2 := New(Config{
		AttemptID:         uuid.New(),
		ExamID:            uuid.New(),
		CandidateID:       7,
		Questions:         []model.Question{q},
		DurationMins:      30,
		Clock:             clock.Now,
		TickInterval:      time.Millisecond,
		Sink:              &stubSink{},
		OnDeliveryFailure: func(res *Result) { retried = append(retried, res) },
	})
	if err := s2.Start(clock.Now(), nil, nil, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, _, err := s2.Finalize(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if len(retried) != 1 {
		t.Errorf("retry hook invocations = %d after clean delivery, want still 1", len(retried))
	}
}

// The sink refusing a duplicate is an acknowledgement, not a failure.
func TestDuplicateDeliveryTreatedAsAck(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{errs: []error{ErrAlreadySubmitted}}
	q := mcq(t, "a", 1)
	s := startedSession(t, clock, sink, q)

	res, performed, err := s.Finalize(context.Background(), TriggerExit)
	if err != nil {
		t.Fatalf("Finalize() error = %v, want nil on ErrAlreadySubmitted ack", err)
	}
	if !performed || res == nil {
		t.Fatalf("Finalize() = (%v, %v), want performed with result", res, performed)
	}
}

// Abandoning before the local commit is the only way back to InProgress.
func TestFinalizeCancelledBeforeCommitIsRetryable(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{}
	q := mcq(t, "a", 1)
	s := startedSession(t, clock, sink, q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.Finalize(ctx, TriggerManual); !errors.Is(err, context.Canceled) {
		t.Fatalf("Finalize() error = %v, want context.Canceled", err)
	}
	if got := s.State(); got != StateInProgress {
		t.Fatalf("State() = %s, want %s after pre-commit abandon", got, StateInProgress)
	}
	if sink.count() != 0 {
		t.Fatalf("sink deliveries = %d, want 0", sink.count())
	}

	// The retry succeeds.
	if _, performed, err := s.Finalize(context.Background(), TriggerManual); err != nil || !performed {
		t.Fatalf("retry Finalize() = (%v, %v), want performed", performed, err)
	}
}

func TestExitTriggerSubmitsCurrentAnswers(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sink := &stubSink{}
	q1 := mcq(t, "b", 5)
	q2 := mcq(t, "c", 3)
	s := startedSession(t, clock, sink, q1, q2)
	s.RecordAnswer(q1.ID.String(), "b")

	res, performed, err := s.Finalize(context.Background(), TriggerExit)
	if err != nil || !performed {
		t.Fatalf("Finalize() = (%v, %v)", performed, err)
	}
	if res.Score != 5 {
		t.Errorf("exit score = %d, want 5 (partial answers submitted, not discarded)", res.Score)
	}
	if res.AutoSubmitted {
		t.Error("AutoSubmitted = true on exit finalize")
	}
}

func TestSessionResume(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	q1 := mcq(t, "a", 1)
	q2 := mcq(t, "b", 1)
	s := newTestSession(clock, &stubSink{}, q1, q2)

	startedAt := clock.Now().Add(-10 * time.Minute)
	seeded := map[string]string{q1.ID.String(): "c"}
	if err := s.Start(startedAt, seeded, []string{q2.ID.String()}, 2); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	snap := s.Snapshot()
	if snap.Answers[q1.ID.String()] != "c" {
		t.Error("seeded answer missing after resume")
	}
	if len(snap.Flagged) != 1 || snap.Flagged[0] != q2.ID.String() {
		t.Errorf("Flagged = %v, want [%s]", snap.Flagged, q2.ID.String())
	}
	if snap.ViolationsCount != 2 {
		t.Errorf("ViolationsCount = %d, want seeded 2", snap.ViolationsCount)
	}
	if snap.RemainingSeconds != 20*60 {
		t.Errorf("RemainingSeconds = %d, want 1200 (original startedAt kept)", snap.RemainingSeconds)
	}

	// The counter continues from the seed.
	if count, err := s.RecordViolation(ViolationVisibilityHidden); err != nil || count != 3 {
		t.Errorf("RecordViolation() = (%d, %v), want (3, nil)", count, err)
	}

	// Starting again while in progress is an idempotent no-op.
	if err := s.Start(clock.Now(), nil, nil, 0); err != nil {
		t.Errorf("second Start() error: %v", err)
	}
}

func TestNavigateAndFlags(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	q1 := mcq(t, "a", 1)
	q2 := mcq(t, "b", 1)
	s := startedSession(t, clock, &stubSink{}, q1, q2)

	if err := s.Navigate(1); err != nil {
		t.Fatalf("Navigate(1) error: %v", err)
	}
	if got := s.CurrentIndex(); got != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", got)
	}
	if err := s.Navigate(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Navigate(2) error = %v, want ErrIndexOutOfRange", err)
	}
	if err := s.Navigate(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Navigate(-1) error = %v, want ErrIndexOutOfRange", err)
	}

	on, err := s.ToggleFlag(q1.ID.String())
	if err != nil || !on {
		t.Fatalf("ToggleFlag() = (%v, %v), want (true, nil)", on, err)
	}
	off, err := s.ToggleFlag(q1.ID.String())
	if err != nil || off {
		t.Fatalf("second ToggleFlag() = (%v, %v), want (false, nil)", off, err)
	}
	if err := s.RecordAnswer(uuid.New().String(), "a"); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("RecordAnswer(foreign) error = %v, want ErrUnknownQuestion", err)
	}
}

func TestMergeAnswersDropsUnknown(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	q := mcq(t, "a", 1)
	s := startedSession(t, clock, &stubSink{}, q)

	s.MergeAnswers(map[string]string{
		q.ID.String():       "a",
		uuid.New().String(): "b",
	})

	snap := s.Snapshot()
	if len(snap.Answers) != 1 || snap.Answers[q.ID.String()] != "a" {
		t.Errorf("Answers = %v, want only the known question", snap.Answers)
	}
}

func TestTimeTakenClampedNonNegative(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	q := mcq(t, "a", 1)
	s := newTestSession(clock, &stubSink{}, q)

	// Skewed persisted startedAt in the future of the server clock.
	if err := s.Start(clock.Now().Add(5*time.Minute), nil, nil, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	res, _, err := s.Finalize(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if res.TimeTakenSeconds != 0 {
		t.Errorf("TimeTakenSeconds = %d, want clamped 0", res.TimeTakenSeconds)
	}
}
