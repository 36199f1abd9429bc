// Package session is the lifecycle core of a voice practice session: it
// creates and starts sessions against the backend, bridges microphone frames
// and playback audio over the streaming channel, applies barge-in policy,
// and drives the evaluation-aware graceful shutdown.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxprep/voxprep-core/core/audio"
	"github.com/voxprep/voxprep-core/core/backend"
	"github.com/voxprep/voxprep-core/core/events"
	"github.com/voxprep/voxprep-core/core/scrape"
	"github.com/voxprep/voxprep-core/core/transport"
)

// Controller owns one session at a time. It is the sole writer of session
// and connection state, and the only component allowed to initiate state
// broadcasts.
type Controller struct {
	backend         BackendClient
	channel         TransportChannel
	audioFactory    func() (AudioDevice, error)
	contextProvider scrape.Provider
	notifier        Notifier

	mu            sync.Mutex
	status        ConnectionState
	sessionID     string
	sessionActive bool
	startedAt     time.Time
	stopRequested bool
	stopped       chan struct{}

	device    AudioDevice
	encoder   *audio.FrameEncoder
	tracker   *responseTracker
	scheduler *playbackScheduler
	runtime   *sessionRuntime
	shutdown  *shutdownSequence

	emit    eventEmitter
	options StartOptions

	evaluationGrace time.Duration
}

func NewController(backendBaseURL string, opts ...ControllerOption) *Controller {
	c := &Controller{
		backend:  backend.NewClient(backendBaseURL),
		channel:  transport.NewChannel(backendBaseURL + "/ws/session"),
		status:   StateDisconnected,
		notifier: noopNotifier{},
		emit:     noopEventEmitter,
		audioFactory: func() (AudioDevice, error) {
			return nil, errors.New("no audio device configured")
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current connection state.
func (c *Controller) Status() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the backend-assigned id of the current session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) IsSessionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionActive
}

// Start creates a session on the backend, initializes the audio device,
// opens the streaming channel, seeds the backend with scraped context, and
// starts microphone capture. Any step failure surfaces as an Error state
// with the triggering message; partial setup stays reachable so a
// subsequent Stop can clean it up.
func (c *Controller) Start(ctx context.Context, opts ...StartOption) error {
	ctx, span := tracer.Start(ctx, "start session")
	defer span.End()

	c.mu.Lock()
	if c.sessionActive {
		c.mu.Unlock()
		return errors.New("session already active")
	}
	c.stopRequested = false
	c.stopped = make(chan struct{})
	c.mu.Unlock()

	options := StartOptions{model: defaultModel}
	for _, opt := range opts {
		opt(&options)
	}
	c.options = options
	c.emit = newCallbackEventEmitter(options)

	c.setStatus(StateConnecting, "Connecting to backend...")

	sessionID, err := c.backend.CreateSession(ctx)
	if err != nil {
		return c.failStart(span, fmt.Errorf("failed to create session: %w", err))
	}
	span.SetAttributes(attribute.String("session.id", sessionID))
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	device, err := c.audioFactory()
	if err != nil {
		return c.failStart(span, fmt.Errorf("failed to initialize audio: %w", err))
	}
	c.device = device

	c.tracker = newResponseTracker()
	c.scheduler = newPlaybackScheduler(device)
	c.runtime = newSessionRuntime()

	c.channel.SetHandlers(c.enqueueServerEvent, c.handleChannelClosed)
	if err := c.channel.Connect(ctx, sessionID); err != nil {
		return c.failStart(span, err)
	}
	c.runtime.start(c.processServerEvent)

	// Context is best effort: a missing or empty snapshot never blocks start.
	var problemContext *scrape.ProblemContext
	if c.contextProvider != nil {
		problemContext = c.contextProvider.ProblemContext()
	}

	if err := c.backend.StartSession(ctx, sessionID, backend.StartConfig{
		Model:    options.model,
		Endpoint: options.endpoint,
		APIKey:   options.apiKey,
		Context:  problemContext,
	}); err != nil {
		return c.failStart(span, err)
	}

	c.encoder = audio.NewFrameEncoder(c.sendAudioFrame)
	if err := device.StartCapture(ctx, c.encoder.Write); err != nil {
		return c.failStart(span, fmt.Errorf("failed to start audio capture: %w", err))
	}

	c.mu.Lock()
	c.sessionActive = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.broadcast(StateSessionActive)
	c.setStatus(StateConnected, "Connected. Start speaking when ready.")

	return nil
}

// failStart records a start-step failure and moves the controller into the
// Error state. Partial setup (device, channel) is intentionally left in
// place for a subsequent Stop to clean up.
func (c *Controller) failStart(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	c.emit(events.NewSessionError(err))
	c.setStatus(StateError, err.Error())
	return err
}

// Stop runs the graceful multi-phase shutdown and blocks until the
// controller reaches a terminal disconnected state. Local audio goes silent
// immediately; the backend session is only stopped after the in-flight
// response (if any) and the evaluation turn have fully resolved. A stop is
// never left hanging: trigger failures and an evaluation that never starts
// both fall through to finalization.
func (c *Controller) Stop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stop session")
	defer span.End()

	c.mu.Lock()
	if c.stopRequested {
		stopped := c.stopped
		c.mu.Unlock()
		if stopped != nil {
			<-stopped
		}
		return nil
	}
	c.stopRequested = true
	sessionID := c.sessionID
	startedAt := c.startedAt
	hadSession := sessionID != ""
	c.mu.Unlock()

	if !hadSession && c.device == nil {
		return nil
	}

	c.setStatus(StateDisconnecting, "Ending session...")

	// Step one: user-facing silence is immediate.
	if c.device != nil {
		if err := c.device.StopCapture(); err != nil {
			logger.Warn("failed to stop audio capture", "error", err)
		}
	}
	if c.scheduler != nil {
		c.scheduler.Interrupt()
	}

	shutdown := newShutdownSequence(c.evaluationGrace, func() error {
		return c.backend.TriggerEvaluation(ctx, sessionID, backend.EvaluationRequest{
			FinalCode:       c.finalCode(),
			SessionDuration: time.Since(startedAt),
		})
	})
	c.mu.Lock()
	c.shutdown = shutdown
	c.mu.Unlock()

	// Only an uncancelled in-flight response is awaited: a cancelled one
	// may never produce a terminal event.
	awaitedID := ""
	if c.tracker != nil {
		awaitedID = c.tracker.PendingResponseID()
	}
	span.SetAttributes(attribute.Bool("shutdown.active_response", awaitedID != ""))
	shutdown.begin(awaitedID)
	if awaitedID != "" && !c.tracker.HasActiveResponse() {
		// The in-flight response completed between the check and begin.
		shutdown.handleResponseCompleted(awaitedID)
	}

	select {
	case <-shutdown.done:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, ctx.Err().Error())
	}

	return c.finalize(ctx)
}

// finalize tears everything down: backend stop call, transport close, local
// state reset, then the stopped/disconnected broadcasts. Errors along the
// way are logged and skipped so the controller always reaches its terminal
// state instead of sticking in disconnecting.
func (c *Controller) finalize(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	stopped := c.stopped
	c.mu.Unlock()

	if sessionID != "" {
		if err := c.backend.StopSession(ctx, sessionID); err != nil {
			logger.Warn("failed to stop backend session", "session_id", sessionID, "error", err)
		}
	}

	if err := c.channel.Disconnect(); err != nil {
		logger.Warn("failed to close streaming channel", "error", err)
	}

	if c.runtime != nil {
		c.runtime.end()
		c.runtime.waitUntilEnded()
	}
	if c.tracker != nil {
		c.tracker.Reset()
	}
	if c.scheduler != nil {
		c.scheduler.StopAll()
	}
	if c.device != nil {
		if err := c.device.Close(); err != nil {
			logger.Warn("failed to close audio device", "error", err)
		}
		c.device = nil
	}

	c.mu.Lock()
	c.sessionActive = false
	c.sessionID = ""
	c.shutdown = nil
	c.mu.Unlock()

	c.broadcast(StateSessionStopped)
	c.setStatus(StateDisconnected, "Session ended.")

	if stopped != nil {
		close(stopped)
	}
	return nil
}

// UpdateContext pushes a scraped-context change into the live session as an
// instruction update. It reports whether the send was attempted.
func (c *Controller) UpdateContext(problemContext scrape.ProblemContext) bool {
	if !c.IsSessionActive() {
		return false
	}
	return c.channel.Send(transport.NewSessionUpdateEvent(formatContextUpdate(problemContext)))
}

func (c *Controller) sendAudioFrame(frame []byte) {
	// Frames are never queued for retry: stale audio is worthless.
	c.channel.Send(transport.NewAudioAppendEvent(frame))
}

func (c *Controller) enqueueServerEvent(event transport.ServerEvent) {
	c.mu.Lock()
	runtime := c.runtime
	c.mu.Unlock()
	runtime.enqueue(event)
}

func (c *Controller) shutdownSnapshot() *shutdownSequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// processServerEvent handles one inbound event on the runtime goroutine.
func (c *Controller) processServerEvent(event transport.ServerEvent) {
	switch event.Type {
	case transport.TypeSessionCreated:
		logger.Info("streaming session ready", "session_id", c.SessionID())

	case transport.TypeSpeechStarted:
		c.handleSpeechStarted()

	case transport.TypeResponseCreated:
		c.handleResponseCreated(event.ActiveResponseID())

	case transport.TypeInputTranscriptCompleted:
		c.emit(events.NewUserTranscript(event.Transcript))
		c.emit(events.NewMessageReceived("user", event.Transcript, "voice"))

	case transport.TypeResponseTranscriptDelta:
		c.tracker.HandleDelta(event.ActiveResponseID(), event.Delta)
		c.emit(events.NewAssistantTranscript(event.Delta))

	case transport.TypeResponseTranscriptDone:
		c.handleResponseDone(event)

	case transport.TypeResponseAudioDelta:
		c.handleAudioDelta(event)

	case transport.TypeResponseAudioDone:
		c.scheduler.StreamComplete()

	case transport.TypeError:
		err := errors.New("backend error")
		if event.Error != nil {
			err = fmt.Errorf("backend error: %s", event.Error.Message)
		}
		c.emit(events.NewSessionError(err))
		c.emit(events.NewMessageReceived("system", err.Error(), "error"))
	}
}

func (c *Controller) handleSpeechStarted() {
	id, interrupt := c.tracker.HandleSpeechStarted()
	if !interrupt {
		return
	}

	c.scheduler.Interrupt()
	if c.tracker.Cancel(id) {
		c.channel.Send(transport.NewResponseCancelEvent(id))
		c.shutdownSnapshot().handleResponseCancelled(id)
	}
	c.emit(events.NewResponseInterrupted(id))
}

func (c *Controller) handleResponseCreated(id string) {
	// A new response while the previous one never completed means its
	// leftover playback and chunk buffers are stale.
	if c.tracker.HasActiveResponse() {
		c.scheduler.Interrupt()
	}

	c.tracker.StartResponse(id)
	c.shutdownSnapshot().handleResponseStarted(id)
	c.emit(events.NewResponseStarted(id))
}

func (c *Controller) handleResponseDone(event transport.ServerEvent) {
	id := event.ActiveResponseID()
	accumulated, finished := c.tracker.HandleComplete(id)
	if !finished {
		// Duplicate terminal event; it already counted once.
		return
	}

	text := event.Transcript
	if text == "" {
		text = accumulated
	}
	if text != "" {
		c.emit(events.NewMessageReceived("assistant", text, "voice"))
	}

	c.shutdownSnapshot().handleResponseCompleted(id)
}

func (c *Controller) handleAudioDelta(event transport.ServerEvent) {
	if c.tracker.ShouldSuppressAudio(event.ActiveResponseID()) {
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(event.Delta)
	if err != nil {
		logger.Warn("dropping malformed audio delta", "error", err)
		return
	}
	c.scheduler.Enqueue(chunk)
}

// handleChannelClosed fires when the transport closes without a Disconnect.
// With a session active this is an involuntary disconnect: surface the
// error once and run the stop sequence best effort. No reconnection is ever
// attempted from here.
func (c *Controller) handleChannelClosed(err error) {
	c.mu.Lock()
	active := c.sessionActive
	requested := c.stopRequested
	shutdown := c.shutdown
	c.mu.Unlock()

	if requested {
		// A close mid-shutdown means the evaluation can no longer arrive.
		shutdown.resolve()
		return
	}
	if !active {
		return
	}

	lostErr := fmt.Errorf("connection lost: %w", err)
	c.emit(events.NewSessionError(lostErr))
	c.setStatus(StateError, "Connection lost.")

	go func() {
		if stopErr := c.Stop(context.Background()); stopErr != nil {
			logger.Warn("best-effort stop after connection loss failed", "error", stopErr)
		}
	}()
}

func (c *Controller) finalCode() string {
	if c.contextProvider == nil {
		return ""
	}
	if snapshot := c.contextProvider.ProblemContext(); snapshot != nil {
		return snapshot.Code
	}
	return ""
}

func (c *Controller) setStatus(status ConnectionState, text string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.emit(events.NewStatusChanged(string(status), text))
	c.broadcast(status)
}

func (c *Controller) broadcast(state ConnectionState) {
	c.mu.Lock()
	sessionID := c.sessionID
	active := c.sessionActive
	c.mu.Unlock()

	c.notifier.Broadcast(state, sessionID, c.channel.IsConnected(), active)
}

const contextFieldLimit = 1500

// formatContextUpdate renders a scraped snapshot as instruction text for the
// live session, mirroring what the backend seeds at start.
func formatContextUpdate(problemContext scrape.ProblemContext) string {
	update := "[CONTEXT UPDATE]"
	if problemContext.Title != "" {
		update += "\nProblem: " + truncateField(problemContext.Title)
	}
	if problemContext.Description != "" {
		update += "\nDescription: " + truncateField(problemContext.Description)
	}
	if problemContext.Code != "" {
		update += "\nCurrent code:\n" + truncateField(problemContext.Code)
	}
	if problemContext.TestCases != "" {
		update += "\nTest cases:\n" + truncateField(problemContext.TestCases)
	}
	return update
}

func truncateField(content string) string {
	if len(content) <= contextFieldLimit {
		return content
	}
	return content[:contextFieldLimit] + "..."
}
