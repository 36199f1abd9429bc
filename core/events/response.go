package events

const (
	// KindResponseStarted identifies assistant response generation start.
	KindResponseStarted Kind = "response.started"
	// KindResponseInterrupted identifies barge-in cancellation of the active
	// response.
	KindResponseInterrupted Kind = "response.interrupted"
)

// ResponseStarted marks the start of assistant response generation.
type ResponseStarted struct {
	Base
	ResponseID string
}

// NewResponseStarted creates a response started event.
func NewResponseStarted(responseID string) ResponseStarted {
	return ResponseStarted{Base: NewBase(KindResponseStarted), ResponseID: responseID}
}

// ResponseInterrupted marks barge-in cancellation of the active response.
type ResponseInterrupted struct {
	Base
	ResponseID string
}

// NewResponseInterrupted creates a response interrupted event.
func NewResponseInterrupted(responseID string) ResponseInterrupted {
	return ResponseInterrupted{Base: NewBase(KindResponseInterrupted), ResponseID: responseID}
}
