package events

// KindMessageReceived identifies finished chat-style messages.
const KindMessageReceived Kind = "message.received"

// MessageReceived carries one finished message for chat-style consumers.
type MessageReceived struct {
	Base
	Sender      string
	Text        string
	MessageType string
}

// NewMessageReceived creates a message received event.
func NewMessageReceived(sender, text, messageType string) MessageReceived {
	return MessageReceived{Base: NewBase(KindMessageReceived), Sender: sender, Text: text, MessageType: messageType}
}
