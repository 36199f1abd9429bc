package session

import "github.com/voxprep/voxprep-core/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts StartOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.StatusChanged:
			if opts.onStatusChanged != nil {
				opts.onStatusChanged(ConnectionState(typedEvent.Status), typedEvent.Text)
			}
		case events.MessageReceived:
			if opts.onMessage != nil {
				opts.onMessage(typedEvent.Sender, typedEvent.Text, typedEvent.MessageType)
			}
		case events.UserTranscript:
			if opts.onUserTranscript != nil {
				opts.onUserTranscript(typedEvent.Text)
			}
		case events.AssistantTranscript:
			if opts.onAssistantTranscript != nil {
				opts.onAssistantTranscript(typedEvent.Text)
			}
		case events.ResponseStarted:
			if opts.onResponseStarted != nil {
				opts.onResponseStarted(typedEvent.ResponseID)
			}
		case events.ResponseInterrupted:
			if opts.onResponseInterrupted != nil {
				opts.onResponseInterrupted(typedEvent.ResponseID)
			}
		case events.SessionError:
			if opts.onError != nil {
				opts.onError(typedEvent.Err)
			}
		}
	}
}
