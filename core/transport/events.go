package transport

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// Server event types, following the realtime voice protocol spoken by the
// backend.
const (
	TypeSessionCreated           = "session.created"
	TypeSpeechStarted            = "input_audio_buffer.speech_started"
	TypeResponseCreated          = "response.created"
	TypeInputTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	TypeResponseTranscriptDelta  = "response.audio_transcript.delta"
	TypeResponseTranscriptDone   = "response.audio_transcript.done"
	TypeResponseAudioDelta       = "response.audio.delta"
	TypeResponseAudioDone        = "response.audio.done"
	TypeError                    = "error"
)

// Client event types.
const (
	TypeAudioAppend    = "input_audio_buffer.append"
	TypeResponseCancel = "response.cancel"
	TypeSessionUpdate  = "session.update"
)

// ServerEvent is the superset envelope for inbound events. Only the fields
// relevant to the received Type are populated.
type ServerEvent struct {
	Type       string           `json:"type"`
	EventID    string           `json:"event_id,omitempty"`
	ResponseID string           `json:"response_id,omitempty"`
	ItemID     string           `json:"item_id,omitempty"`
	Delta      string           `json:"delta,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	Response   *ResponsePayload `json:"response,omitempty"`
	Session    *SessionPayload  `json:"session,omitempty"`
	Error      *ErrorPayload    `json:"error,omitempty"`
}

type ResponsePayload struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

type SessionPayload struct {
	ID string `json:"id"`
}

type ErrorPayload struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ActiveResponseID resolves the response id regardless of which envelope
// field the backend used for this event type.
func (e ServerEvent) ActiveResponseID() string {
	if e.ResponseID != "" {
		return e.ResponseID
	}
	if e.Response != nil {
		return e.Response.ID
	}
	return ""
}

// ClientEvent is implemented by every outbound message type.
type ClientEvent interface {
	EventType() string
}

// AudioAppendEvent carries one base64 PCM16 frame of microphone audio.
type AudioAppendEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Audio   string `json:"audio"`
}

func (e AudioAppendEvent) EventType() string { return e.Type }

func NewAudioAppendEvent(frame []byte) AudioAppendEvent {
	return AudioAppendEvent{
		Type:  TypeAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(frame),
	}
}

// ResponseCancelEvent asks the backend to stop generating a response.
type ResponseCancelEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	ResponseID string `json:"response_id"`
}

func (e ResponseCancelEvent) EventType() string { return e.Type }

func NewResponseCancelEvent(responseID string) ResponseCancelEvent {
	return ResponseCancelEvent{
		Type:       TypeResponseCancel,
		EventID:    uuid.NewString(),
		ResponseID: responseID,
	}
}

// SessionUpdateEvent injects updated instructions into the live session, used
// to forward scraped-context changes mid-conversation.
type SessionUpdateEvent struct {
	Type    string               `json:"type"`
	EventID string               `json:"event_id"`
	Session SessionUpdatePayload `json:"session"`
}

type SessionUpdatePayload struct {
	Instructions string `json:"instructions"`
}

func (e SessionUpdateEvent) EventType() string { return e.Type }

func NewSessionUpdateEvent(instructions string) SessionUpdateEvent {
	return SessionUpdateEvent{
		Type:    TypeSessionUpdate,
		EventID: uuid.NewString(),
		Session: SessionUpdatePayload{Instructions: instructions},
	}
}
