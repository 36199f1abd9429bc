package events

// KindStatusChanged identifies user-visible connection status updates.
const KindStatusChanged Kind = "status.changed"

// StatusChanged carries a connection status value and its display text.
type StatusChanged struct {
	Base
	Status string
	Text   string
}

// NewStatusChanged creates a status changed event.
func NewStatusChanged(status, text string) StatusChanged {
	return StatusChanged{Base: NewBase(KindStatusChanged), Status: status, Text: text}
}
