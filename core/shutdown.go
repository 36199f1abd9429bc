package session

import (
	"sync"
	"time"
)

// defaultEvaluationGrace is how long the shutdown sequence waits for the
// evaluation response to start before deciding there is nothing to evaluate.
const defaultEvaluationGrace = 5 * time.Second

type shutdownState int

const (
	shutdownIdle shutdownState = iota
	// shutdownActiveResponseWait: a response was in flight when stop was
	// requested; wait for it to finish naturally before triggering the
	// evaluation. Text is never force-stopped.
	shutdownActiveResponseWait
	// shutdownEvaluationTriggered: the evaluation trigger call succeeded but
	// no evaluation response has started yet.
	shutdownEvaluationTriggered
	// shutdownEvaluationWait: the evaluation response is streaming; wait for
	// its completion.
	shutdownEvaluationWait
	shutdownFinalizing
)

// shutdownSequence drives the graceful teardown contract: an in-flight
// response finishes first, then exactly one evaluation turn is triggered and
// awaited, then finalization may proceed. The done channel resolves exactly
// once, whether through the completion path, a failed trigger, or the grace
// timer when no evaluation response ever starts.
type shutdownSequence struct {
	mu    sync.Mutex
	state shutdownState

	// awaitedID is the in-flight response whose completion gates the
	// evaluation trigger. Terminal events may be duplicated, so its id is
	// remembered for the rest of the sequence and never counts as the
	// evaluation completing.
	awaitedID    string
	evaluationID string

	evaluationTriggered bool
	grace               time.Duration
	graceTimer          *time.Timer

	trigger func() error

	resolveOnce sync.Once
	done        chan struct{}
}

func newShutdownSequence(grace time.Duration, trigger func() error) *shutdownSequence {
	if grace <= 0 {
		grace = defaultEvaluationGrace
	}
	return &shutdownSequence{
		state:   shutdownIdle,
		grace:   grace,
		trigger: trigger,
		done:    make(chan struct{}),
	}
}

// begin enters the sequence. With a response in flight its id is awaited
// before the evaluation; otherwise the evaluation triggers immediately.
func (s *shutdownSequence) begin(awaitedID string) {
	if s == nil {
		return
	}

	if awaitedID != "" {
		s.mu.Lock()
		s.state = shutdownActiveResponseWait
		s.awaitedID = awaitedID
		s.mu.Unlock()
		return
	}

	s.triggerEvaluation()
}

// handleResponseStarted feeds a response-created signal into the sequence.
func (s *shutdownSequence) handleResponseStarted(id string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != shutdownEvaluationTriggered {
		return
	}
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.evaluationID = id
	s.state = shutdownEvaluationWait
}

// handleResponseCompleted feeds a response completion into the sequence.
// Completion of the awaited in-flight response triggers the evaluation;
// completion of the evaluation resolves the sequence. The accounting is
// idempotent per response id: repeats of the awaited id after the trigger
// never resolve the sequence, and completions of unrelated ids during the
// evaluation wait are ignored.
func (s *shutdownSequence) handleResponseCompleted(id string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	state := s.state
	awaited := s.awaitedID
	evaluation := s.evaluationID
	s.mu.Unlock()

	switch state {
	case shutdownActiveResponseWait:
		if id != awaited {
			return
		}
		s.triggerEvaluation()
	case shutdownEvaluationTriggered:
		if id == awaited {
			return
		}
		s.resolve()
	case shutdownEvaluationWait:
		if id == awaited {
			return
		}
		if evaluation != "" && id != evaluation {
			return
		}
		s.resolve()
	}
}

// handleResponseCancelled releases the wait on a response whose terminal
// event may never arrive.
func (s *shutdownSequence) handleResponseCancelled(id string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	waiting := s.state == shutdownActiveResponseWait && id == s.awaitedID
	s.mu.Unlock()

	if waiting {
		s.triggerEvaluation()
	}
}

// triggerEvaluation fires the evaluation trigger exactly once. A failed
// trigger resolves the sequence immediately rather than hang a shutdown on
// an evaluation that will never arrive.
func (s *shutdownSequence) triggerEvaluation() {
	s.mu.Lock()
	if s.evaluationTriggered {
		s.mu.Unlock()
		return
	}
	s.evaluationTriggered = true
	s.state = shutdownEvaluationTriggered
	s.mu.Unlock()

	if err := s.trigger(); err != nil {
		logger.Warn("failed to trigger session evaluation", "error", err)
		s.resolve()
		return
	}

	s.mu.Lock()
	if s.state == shutdownEvaluationTriggered {
		s.graceTimer = time.AfterFunc(s.grace, s.resolve)
	}
	s.mu.Unlock()
}

// resolve transitions to finalizing and closes done. Safe to call from any
// path; only the first call has an effect.
func (s *shutdownSequence) resolve() {
	if s == nil {
		return
	}

	s.resolveOnce.Do(func() {
		s.mu.Lock()
		s.state = shutdownFinalizing
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		s.mu.Unlock()

		close(s.done)
	})
}

func (s *shutdownSequence) currentState() shutdownState {
	if s == nil {
		return shutdownIdle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
