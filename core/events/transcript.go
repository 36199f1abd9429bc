package events

const (
	// KindUserTranscript identifies final user utterance transcriptions.
	KindUserTranscript Kind = "transcript.user"
	// KindAssistantTranscript identifies streamed assistant transcript deltas.
	KindAssistantTranscript Kind = "transcript.assistant"
)

// UserTranscript carries the final transcription of one user utterance.
type UserTranscript struct {
	Base
	Text string
}

// NewUserTranscript creates a user transcript event.
func NewUserTranscript(text string) UserTranscript {
	return UserTranscript{Base: NewBase(KindUserTranscript), Text: text}
}

// AssistantTranscript carries one streamed transcript delta of the
// assistant response, emitted in arrival order. The complete text arrives
// separately as a MessageReceived once the response finishes.
type AssistantTranscript struct {
	Base
	Text string
}

// NewAssistantTranscript creates an assistant transcript event.
func NewAssistantTranscript(text string) AssistantTranscript {
	return AssistantTranscript{Base: NewBase(KindAssistantTranscript), Text: text}
}
