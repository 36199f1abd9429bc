package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func awaitResolved(t *testing.T, shutdown *shutdownSequence) {
	t.Helper()
	select {
	case <-shutdown.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for shutdown sequence to resolve")
	}
}

func TestShutdownDefersEvaluationUntilActiveResponseCompletes(t *testing.T) {
	triggered := atomic.Int32{}
	shutdown := newShutdownSequence(time.Second, func() error {
		triggered.Add(1)
		return nil
	})

	shutdown.begin("resp_1")

	if got := triggered.Load(); got != 0 {
		t.Fatalf("expected no evaluation trigger while a response is in flight, got %d", got)
	}
	if shutdown.currentState() != shutdownActiveResponseWait {
		t.Fatalf("expected active response wait state, got %d", shutdown.currentState())
	}

	shutdown.handleResponseCompleted("resp_1")
	if got := triggered.Load(); got != 1 {
		t.Fatalf("expected evaluation triggered after in-flight completion, got %d", got)
	}

	shutdown.handleResponseStarted("resp_eval")
	if shutdown.currentState() != shutdownEvaluationWait {
		t.Fatalf("expected evaluation wait state, got %d", shutdown.currentState())
	}

	select {
	case <-shutdown.done:
		t.Fatalf("expected sequence to keep waiting for the evaluation response")
	default:
	}

	shutdown.handleResponseCompleted("resp_eval")
	awaitResolved(t, shutdown)
}

func TestShutdownTriggersEvaluationImmediatelyWithoutActiveResponse(t *testing.T) {
	triggered := atomic.Int32{}
	shutdown := newShutdownSequence(time.Second, func() error {
		triggered.Add(1)
		return nil
	})

	shutdown.begin("")

	if got := triggered.Load(); got != 1 {
		t.Fatalf("expected immediate evaluation trigger, got %d", got)
	}

	shutdown.handleResponseStarted("resp_eval")
	shutdown.handleResponseCompleted("resp_eval")
	awaitResolved(t, shutdown)
}

func TestShutdownResolvesViaGraceTimerWhenNoEvaluationStarts(t *testing.T) {
	shutdown := newShutdownSequence(30*time.Millisecond, func() error { return nil })

	shutdown.begin("")

	awaitResolved(t, shutdown)
}

func TestShutdownResolvesImmediatelyOnTriggerFailure(t *testing.T) {
	shutdown := newShutdownSequence(time.Hour, func() error {
		return errors.New("backend unreachable")
	})

	shutdown.begin("")

	awaitResolved(t, shutdown)
}

func TestShutdownTriggersEvaluationOnlyOnce(t *testing.T) {
	triggered := atomic.Int32{}
	shutdown := newShutdownSequence(time.Second, func() error {
		triggered.Add(1)
		return nil
	})

	shutdown.begin("resp_1")
	shutdown.handleResponseCompleted("resp_1")
	shutdown.handleResponseCompleted("resp_1")

	if got := triggered.Load(); got != 1 {
		t.Fatalf("expected a single evaluation trigger per shutdown, got %d", got)
	}
}

func TestShutdownCompletionWhileTriggeredResolvesWithoutStart(t *testing.T) {
	shutdown := newShutdownSequence(time.Hour, func() error { return nil })

	shutdown.begin("")
	// The evaluation completed so fast its created event was never observed.
	shutdown.handleResponseCompleted("resp_eval")

	awaitResolved(t, shutdown)
}

func TestShutdownResolveIsIdempotent(t *testing.T) {
	shutdown := newShutdownSequence(time.Second, func() error { return nil })

	shutdown.resolve()
	shutdown.resolve()
	awaitResolved(t, shutdown)

	if shutdown.currentState() != shutdownFinalizing {
		t.Fatalf("expected finalizing state after resolve, got %d", shutdown.currentState())
	}
}

func TestShutdownIgnoresDuplicateAwaitedCompletion(t *testing.T) {
	triggered := atomic.Int32{}
	shutdown := newShutdownSequence(time.Hour, func() error {
		triggered.Add(1)
		return nil
	})

	shutdown.begin("resp_1")
	shutdown.handleResponseCompleted("resp_1")

	if got := triggered.Load(); got != 1 {
		t.Fatalf("expected evaluation triggered after awaited completion, got %d", got)
	}

	// The backend may redeliver the terminal event; it must not stand in
	// for the evaluation completing.
	shutdown.handleResponseCompleted("resp_1")
	if shutdown.currentState() != shutdownEvaluationTriggered {
		t.Fatalf("expected sequence still awaiting evaluation, got state %d", shutdown.currentState())
	}
	select {
	case <-shutdown.done:
		t.Fatalf("expected duplicate completion not to resolve the sequence")
	default:
	}

	shutdown.handleResponseStarted("resp_eval")
	shutdown.handleResponseCompleted("resp_1")
	select {
	case <-shutdown.done:
		t.Fatalf("expected awaited-id repeat during evaluation wait to be ignored")
	default:
	}

	shutdown.handleResponseCompleted("resp_eval")
	awaitResolved(t, shutdown)
}

func TestShutdownIgnoresCompletionOfUnrelatedResponseWhileWaiting(t *testing.T) {
	triggered := atomic.Int32{}
	shutdown := newShutdownSequence(time.Hour, func() error {
		triggered.Add(1)
		return nil
	})

	shutdown.begin("resp_1")
	shutdown.handleResponseCompleted("resp_0")

	if got := triggered.Load(); got != 0 {
		t.Fatalf("expected stale completion not to trigger the evaluation, got %d", got)
	}

	shutdown.handleResponseCompleted("resp_1")
	shutdown.handleResponseStarted("resp_eval")
	shutdown.handleResponseCompleted("resp_other")
	select {
	case <-shutdown.done:
		t.Fatalf("expected unrelated completion not to resolve the evaluation wait")
	default:
	}

	shutdown.handleResponseCompleted("resp_eval")
	awaitResolved(t, shutdown)
}

func TestShutdownCancelledAwaitedResponseTriggersEvaluation(t *testing.T) {
	triggered := atomic.Int32{}
	shutdown := newShutdownSequence(time.Hour, func() error {
		triggered.Add(1)
		return nil
	})

	shutdown.begin("resp_1")
	shutdown.handleResponseCancelled("resp_1")

	if got := triggered.Load(); got != 1 {
		t.Fatalf("expected cancellation of the awaited response to trigger the evaluation, got %d", got)
	}
	if shutdown.currentState() != shutdownEvaluationTriggered {
		t.Fatalf("expected evaluation triggered state, got %d", shutdown.currentState())
	}
}

func TestShutdownNilReceiverIsSafe(t *testing.T) {
	var shutdown *shutdownSequence

	shutdown.begin("")
	shutdown.handleResponseStarted("resp_1")
	shutdown.handleResponseCompleted("resp_1")
	shutdown.handleResponseCancelled("resp_1")
	shutdown.resolve()
}
