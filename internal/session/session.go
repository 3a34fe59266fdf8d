package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/model"
)

// State enumerates the attempt state machine. Submitted is terminal: the
// session never re-enters InProgress once it is reached, under any
// circumstance.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitting State = "SUBMITTING"
	StateSubmitted  State = "SUBMITTED"
)

// Trigger identifies which of the three termination paths initiated finalize.
// All three converge on the same operation; only one may win per attempt.
type Trigger string

const (
	TriggerManual  Trigger = "manual"  // candidate-initiated finish, confirmed
	TriggerTimeout Trigger = "timeout" // timer expiry, bypasses confirmation
	TriggerExit    Trigger = "exit"    // forced exit; submits, never discards
)

// Config assembles a session's collaborators.
type Config struct {
	AttemptID    uuid.UUID
	ExamID       uuid.UUID
	CandidateID  int
	Questions    []model.Question // ordered: defines navigation and palette order
	DurationMins int
	Clock        Clock         // defaults to time.Now
	TickInterval time.Duration // defaults to 1s; shortened in tests
	Sink         Sink

	// OnDeliveryFailure is invoked with the committed result whenever the
	// sink reports a transient failure, from any trigger. The hook owns
	// scheduling the redelivery of that exact payload.
	OnDeliveryFailure func(*Result)
}

// Session owns one candidate's live run through one exam: the
// current-question pointer, the answer map, the flag set, the violation
// counter, and the countdown. Three asynchronous event sources feed it — the
// timer tick, the violation stream, and candidate input — and every mutation
// is serialized through one mutex, with a single terminal-state guard closing
// the race between finalize triggers.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	state   State
	current int
	answers map[string]string
	flagged map[string]struct{}

	attemptID    uuid.UUID
	examID       uuid.UUID
	candidateID  int
	questions    []model.Question
	questionIDs  map[string]struct{}
	durationMins int
	startedAt    time.Time

	clock      Clock
	interval   time.Duration
	sink       Sink
	onDelivErr func(*Result)

	timer   *Timer
	monitor *Monitor
	done    chan struct{} // closed at local commit; releases the timeout goroutine

	result *Result
}

// New creates a session in NotStarted. Nothing runs until Start.
func New(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := make(map[string]struct{}, len(cfg.Questions))
	for i := range cfg.Questions {
		ids[cfg.Questions[i].ID.String()] = struct{}{}
	}
	s := &Session{
		state:        StateNotStarted,
		answers:      make(map[string]string),
		flagged:      make(map[string]struct{}),
		attemptID:    cfg.AttemptID,
		examID:       cfg.ExamID,
		candidateID:  cfg.CandidateID,
		questions:    cfg.Questions,
		questionIDs:  ids,
		durationMins: cfg.DurationMins,
		clock:        clock,
		interval:     cfg.TickInterval,
		sink:         cfg.Sink,
		onDelivErr:   cfg.OnDeliveryFailure,
		done:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start moves NotStarted → InProgress, seeding the mutation history from the
// persisted attempt (a resume keeps the original startedAt, answers, flags,
// and violation count). It activates the timer and the integrity monitor and
// arms the timeout path.
func (s *Session) Start(startedAt time.Time, answers map[string]string, flagged []string, violations int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNotStarted:
	case StateSubmitting, StateSubmitted:
		return ErrAlreadySubmitted
	default:
		return nil // already in progress: idempotent resume
	}

	s.startedAt = startedAt
	for qid, oid := range answers {
		s.answers[qid] = oid
	}
	for _, qid := range flagged {
		s.flagged[qid] = struct{}{}
	}

	s.monitor = NewMonitor(s.clock)
	s.monitor.count = violations
	s.monitor.Start()

	s.timer = NewTimer(s.durationMins, startedAt, s.clock, s.interval)
	s.timer.Start()

	s.state = StateInProgress

	// Timeout path: expiry finalizes exactly once with autoSubmitted=true.
	// The done channel releases this goroutine when another trigger wins.
	go func(t *Timer) {
		select {
		case <-t.Expired():
			_, _, _ = s.Finalize(context.Background(), TriggerTimeout)
		case <-s.done:
		}
	}(s.timer)

	return nil
}

// ensureInProgress is the status check at the top of every mutating
// operation. It, not only finalize, is what makes Submitted terminal.
func (s *Session) ensureInProgress() error {
	switch s.state {
	case StateInProgress:
		return nil
	case StateNotStarted:
		return ErrNotStarted
	default:
		return ErrAlreadySubmitted
	}
}

// RecordAnswer upserts one answer. Entries may be overwritten but never
// removed. The option id is not validated against the question's options —
// a malformed answer is scored as incorrect at finalize, never rejected here.
func (s *Session) RecordAnswer(questionID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInProgress(); err != nil {
		return err
	}
	if _, ok := s.questionIDs[questionID]; !ok {
		return ErrUnknownQuestion
	}
	s.answers[questionID] = optionID
	return nil
}

// ToggleFlag flips a question's membership in the review-marker set and
// returns the new membership. Flags are client-side review state: never
// scored, never part of the delivered answers.
func (s *Session) ToggleFlag(questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInProgress(); err != nil {
		return false, err
	}
	if _, ok := s.questionIDs[questionID]; !ok {
		return false, ErrUnknownQuestion
	}
	if _, ok := s.flagged[questionID]; ok {
		delete(s.flagged, questionID)
		return false, nil
	}
	s.flagged[questionID] = struct{}{}
	return true, nil
}

// Navigate moves the current-question pointer, bounds-checked against
// [0, questionCount).
func (s *Session) Navigate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInProgress(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.questions) {
		return ErrIndexOutOfRange
	}
	s.current = index
	return nil
}

// CurrentIndex returns the current-question pointer.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RecordViolation feeds one focus-transition event to the integrity monitor
// and returns the updated count. Rejected once the attempt is terminal.
func (s *Session) RecordViolation(kind ViolationKind) (int, error) {
	s.mu.Lock()
	if err := s.ensureInProgress(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	m := s.monitor
	s.mu.Unlock()

	count, _ := m.Report(kind)
	return count, nil
}

// AcknowledgeWarning clears the pending violation warning (advisory only).
func (s *Session) AcknowledgeWarning() {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()
	if m != nil {
		m.Acknowledge()
	}
}

// Monitor exposes the attempt's integrity monitor (nil before Start).
func (s *Session) Monitor() *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

// RemainingSeconds recomputes the countdown from wall-clock time. Zero once
// the attempt is terminal or not yet started.
func (s *Session) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return 0
	}
	return Remaining(s.durationMins, s.startedAt, s.clock())
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the finalized record, or nil while the attempt is live.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Snapshot captures the resume payload for the exam screen.
func (s *Session) Snapshot() model.AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	flagged := make([]string, 0, len(s.flagged))
	for qid := range s.flagged {
		flagged = append(flagged, qid)
	}
	sort.Strings(flagged)

	violations := 0
	if s.monitor != nil {
		violations = s.monitor.Count()
	}

	remaining := 0
	if s.state == StateInProgress {
		remaining = Remaining(s.durationMins, s.startedAt, s.clock())
	}

	return model.AttemptState{
		ExamID:           s.examID,
		CandidateID:      s.candidateID,
		StartedAt:        s.startedAt,
		Answers:          answers,
		Flagged:          flagged,
		ViolationsCount:  violations,
		RemainingSeconds: remaining,
	}
}

// MergeAnswers upserts a batch of answers, used when the finalize request
// carries the authoritative answer map from the client. Unknown question ids
// are dropped rather than rejected — scoring must never fail the submission
// path.
func (s *Session) MergeAnswers(answers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return
	}
	for qid, oid := range answers {
		if _, ok := s.questionIDs[qid]; ok {
			s.answers[qid] = oid
		}
	}
}

// Finalize is the single idempotent terminal operation all three triggers
// converge on. It returns the finalized result, whether this call performed
// the finalize (false for callers that lost the race or repeated the call),
// and any error.
//
// Steps: (1) if already Submitted return the cached result without
// recomputation; (2) compute timeTakenSeconds clamped to >= 0; (3) score the
// answer map; (4) atomically mark Submitted with the violation count
// snapshotted at this instant; (5) deliver to the sink. A transient delivery
// failure after step 4 never rolls the local commit back — the result is
// returned alongside a *DeliveryError and delivery is retried with the same
// payload until the sink acknowledges.
func (s *Session) Finalize(ctx context.Context, trigger Trigger) (*Result, bool, error) {
	s.mu.Lock()
	for s.state == StateSubmitting {
		// Another trigger is mid-finalize; wait for its commit and
		// return its result.
		s.cond.Wait()
	}

	if s.state == StateSubmitted {
		res := s.result
		s.mu.Unlock()
		return res, false, nil
	}
	if s.state == StateNotStarted {
		s.mu.Unlock()
		return nil, false, ErrNotStarted
	}

	s.state = StateSubmitting

	// The only retryable edge back to InProgress: a caller abandoned before
	// the local commit. After the commit below there is no way back.
	if err := ctx.Err(); err != nil {
		s.state = StateInProgress
		s.cond.Broadcast()
		s.mu.Unlock()
		return nil, false, err
	}

	now := s.clock()
	taken := int(now.Sub(s.startedAt) / time.Second)
	if taken < 0 {
		taken = 0
	}

	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}

	violations := 0
	if s.monitor != nil {
		violations = s.monitor.Count()
	}

	res := &Result{
		AttemptID:        s.attemptID,
		ExamID:           s.examID,
		CandidateID:      s.candidateID,
		Score:            Score(answers, s.questions),
		TotalMarks:       TotalMarks(s.questions),
		TimeTakenSeconds: taken,
		StartedAt:        s.startedAt,
		SubmittedAt:      now,
		AutoSubmitted:    trigger == TriggerTimeout,
		ViolationsCount:  violations,
		Answers:          answers,
	}

	// Local commit. From here the attempt is Submitted, whatever happens
	// to delivery.
	s.result = res
	s.state = StateSubmitted
	s.stopSources()
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.sink == nil {
		return res, true, nil
	}

	if err := s.sink.Deliver(ctx, res); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			// The sink already holds the terminal row for this pair;
			// redelivery was absorbed by its uniqueness constraint.
			return res, true, nil
		}
		if IsTransientDelivery(err) && s.onDelivErr != nil {
			// The timeout goroutine has no caller to hand the error to,
			// so the retry hook fires here for every trigger alike.
			s.onDelivErr(res)
		}
		return res, true, err
	}
	return res, true, nil
}

// stopSources halts the timer and monitor and releases the timeout
// goroutine. Called with the lock held, exactly once, at local commit.
func (s *Session) stopSources() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
	close(s.done)
}
