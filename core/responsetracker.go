package session

import (
	"strings"
	"sync"
	"time"
)

// bargeInCooldown debounces rapid speech-started signals from a noisy VAD so
// a single utterance cannot fire several interrupts.
const bargeInCooldown = 1200 * time.Millisecond

// responseTracker follows one active response at a time: it accumulates
// transcript deltas per response id, detects completion and cancellation,
// and deduplicates terminal events that the backend may deliver out of
// order. Accumulated transcripts persist until Reset so a late completion
// for an old id still resolves to its text.
type responseTracker struct {
	mu sync.Mutex

	activeResponseID string
	transcripts      map[string]*strings.Builder
	completed        map[string]struct{}
	cancelled        map[string]struct{}

	// cancelling is set from barge-in until the cancelled response reaches
	// its terminal event, suppressing its remaining audio.
	cancelling bool

	lastBargeIn time.Time

	now func() time.Time
}

func newResponseTracker() *responseTracker {
	return &responseTracker{
		transcripts: map[string]*strings.Builder{},
		completed:   map[string]struct{}{},
		cancelled:   map[string]struct{}{},
		now:         time.Now,
	}
}

// StartResponse marks id as the active response and clears any stale
// cancellation flag left over from a previous barge-in.
func (t *responseTracker) StartResponse(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeResponseID = id
	t.cancelling = false
	if _, ok := t.transcripts[id]; !ok {
		t.transcripts[id] = &strings.Builder{}
	}
}

// HandleDelta appends a transcript delta in arrival order and returns the
// accumulated text for the id so far.
func (t *responseTracker) HandleDelta(id, delta string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	builder, ok := t.transcripts[id]
	if !ok {
		builder = &strings.Builder{}
		t.transcripts[id] = builder
	}
	builder.WriteString(delta)
	return builder.String()
}

// HandleComplete marks id complete and returns its final transcript.
// It is idempotent: a second completion for the same id reports
// finished=false so no duplicate message is emitted, while state cleanup
// still happens.
func (t *responseTracker) HandleComplete(id string) (transcript string, finished bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.activeResponseID == id {
		t.activeResponseID = ""
		t.cancelling = false
	}

	if _, alreadyCompleted := t.completed[id]; alreadyCompleted {
		return "", false
	}
	t.completed[id] = struct{}{}

	if builder, ok := t.transcripts[id]; ok {
		transcript = builder.String()
	}
	return transcript, true
}

// Cancel marks id cancelled unless it already completed. It reports whether
// the cancellation took effect.
func (t *responseTracker) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, alreadyCompleted := t.completed[id]; alreadyCompleted {
		return false
	}

	t.cancelled[id] = struct{}{}
	t.cancelling = true
	return true
}

// ShouldSuppressAudio reports whether audio for id must be withheld from
// playback: the id was cancelled, or a cancellation is globally in flight.
func (t *responseTracker) ShouldSuppressAudio(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, cancelled := t.cancelled[id]; cancelled {
		return true
	}
	return t.cancelling
}

// HandleSpeechStarted applies barge-in policy to a speech-started signal.
// Within the cooldown window of the previous barge-in the signal is ignored.
// Otherwise, if a non-cancelling response is active, its id is returned and
// the barge-in timestamp is recorded.
func (t *responseTracker) HandleSpeechStarted() (interruptID string, interrupt bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastBargeIn) < bargeInCooldown {
		return "", false
	}
	if t.activeResponseID == "" || t.cancelling {
		return "", false
	}

	t.lastBargeIn = now
	return t.activeResponseID, true
}

// ActiveResponseID returns the id of the in-flight response, or "".
func (t *responseTracker) ActiveResponseID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeResponseID
}

func (t *responseTracker) HasActiveResponse() bool {
	return t.ActiveResponseID() != ""
}

// PendingResponseID returns the id of an in-flight response whose terminal
// event is still worth waiting for. A cancelled response may never produce
// one, so it is not reported.
func (t *responseTracker) PendingResponseID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.activeResponseID == "" {
		return ""
	}
	if _, cancelled := t.cancelled[t.activeResponseID]; cancelled {
		return ""
	}
	return t.activeResponseID
}

// Reset clears every piece of per-session state.
func (t *responseTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeResponseID = ""
	t.transcripts = map[string]*strings.Builder{}
	t.completed = map[string]struct{}{}
	t.cancelled = map[string]struct{}{}
	t.cancelling = false
	t.lastBargeIn = time.Time{}
}
