package events

// KindSessionError identifies user-surfaced session errors.
const KindSessionError Kind = "session.error"

// SessionError carries an error surfaced to the user.
type SessionError struct {
	Base
	Err error
}

// NewSessionError creates a session error event.
func NewSessionError(err error) SessionError {
	return SessionError{Base: NewBase(KindSessionError), Err: err}
}
