package session

import (
	"context"

	"github.com/voxprep/voxprep-core/core/audio"
	"github.com/voxprep/voxprep-core/core/backend"
	"github.com/voxprep/voxprep-core/core/scrape"
	"github.com/voxprep/voxprep-core/core/transport"
)

const defaultModel = "gpt-4o-mini"

type ControllerOption func(*Controller)

// BackendClient is the control-plane surface the controller drives.
type BackendClient interface {
	CreateSession(ctx context.Context) (string, error)
	StartSession(ctx context.Context, sessionID string, config backend.StartConfig) error
	StopSession(ctx context.Context, sessionID string) error
	TriggerEvaluation(ctx context.Context, sessionID string, request backend.EvaluationRequest) error
}

func WithBackendClient(client BackendClient) ControllerOption {
	return func(c *Controller) { c.backend = client }
}

// TransportChannel owns the single streaming connection of a session.
type TransportChannel interface {
	SetHandlers(onEvent func(event transport.ServerEvent), onClose func(err error))
	Connect(ctx context.Context, sessionID string) error
	Send(event transport.ClientEvent) bool
	IsConnected() bool
	Disconnect() error
}

func WithTransport(channel TransportChannel) ControllerOption {
	return func(c *Controller) { c.channel = channel }
}

// AudioDevice is the full-duplex device surface: microphone capture in, PCM
// playback out. Both miniaudio and portaudio clients satisfy it.
type AudioDevice interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onSamples func(samples []float32)) error
	StopCapture() error
	SendAudio(audio []byte) error
	ClearBuffer()
	Close() error
}

// WithAudioDevice injects an already initialized device, bypassing the
// default device factory.
func WithAudioDevice(device AudioDevice) ControllerOption {
	return func(c *Controller) {
		c.audioFactory = func() (AudioDevice, error) { return device, nil }
	}
}

// WithAudioDeviceFactory defers device initialization to session start so
// permission and device errors surface from Start, not construction.
func WithAudioDeviceFactory(factory func() (AudioDevice, error)) ControllerOption {
	return func(c *Controller) { c.audioFactory = factory }
}

// WithContextProvider wires the problem-context collaborator. A nil snapshot
// or missing provider never blocks session start.
func WithContextProvider(provider scrape.Provider) ControllerOption {
	return func(c *Controller) { c.contextProvider = provider }
}

// WithNotifier wires the fire-and-forget cross-observer broadcast sink.
func WithNotifier(notifier Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = notifier }
}

type StartOptions struct {
	model    string
	endpoint *string
	apiKey   *string

	onStatusChanged       func(status ConnectionState, text string)
	onMessage             func(sender, text, messageType string)
	onUserTranscript      func(transcript string)
	onAssistantTranscript func(delta string)
	onResponseStarted     func(responseID string)
	onResponseInterrupted func(responseID string)
	onError               func(err error)
}

type StartOption func(*StartOptions)

func WithModel(model string) StartOption {
	return func(o *StartOptions) { o.model = model }
}

// WithEndpoint overrides the backend's default upstream voice endpoint.
func WithEndpoint(endpoint string) StartOption {
	return func(o *StartOptions) { o.endpoint = &endpoint }
}

// WithAPIKey overrides the backend's default upstream credential.
func WithAPIKey(apiKey string) StartOption {
	return func(o *StartOptions) { o.apiKey = &apiKey }
}

func WithStatusCallback(callback func(status ConnectionState, text string)) StartOption {
	return func(o *StartOptions) { o.onStatusChanged = callback }
}

// WithMessageCallback registers a callback for finished chat-style messages
// (one per completed response, plus system notices).
func WithMessageCallback(callback func(sender, text, messageType string)) StartOption {
	return func(o *StartOptions) { o.onMessage = callback }
}

// WithUserTranscriptCallback registers a callback for completed
// transcriptions of the user's speech.
func WithUserTranscriptCallback(callback func(transcript string)) StartOption {
	return func(o *StartOptions) { o.onUserTranscript = callback }
}

// WithAssistantTranscriptCallback registers a callback for streamed
// assistant transcript deltas, in arrival order.
func WithAssistantTranscriptCallback(callback func(delta string)) StartOption {
	return func(o *StartOptions) { o.onAssistantTranscript = callback }
}

func WithResponseStartedCallback(callback func(responseID string)) StartOption {
	return func(o *StartOptions) { o.onResponseStarted = callback }
}

func WithResponseInterruptedCallback(callback func(responseID string)) StartOption {
	return func(o *StartOptions) { o.onResponseInterrupted = callback }
}

func WithErrorCallback(callback func(err error)) StartOption {
	return func(o *StartOptions) { o.onError = callback }
}
