package session

// ConnectionState is the externally visible connection status. Transitions
// are driven only by the Controller and transport events; observers receive
// them as a side effect, never as authoritative state.
type ConnectionState string

const (
	StateConnecting     ConnectionState = "connecting"
	StateConnected      ConnectionState = "connected"
	StateDisconnected   ConnectionState = "disconnected"
	StateDisconnecting  ConnectionState = "disconnecting"
	StateSessionActive  ConnectionState = "session_active"
	StateSessionStopped ConnectionState = "session_stopped"
	StateError          ConnectionState = "error"
)

// Notifier receives fire-and-forget state broadcasts for out-of-process
// observers (other tabs, dashboards). Implementations must not block.
type Notifier interface {
	Broadcast(state ConnectionState, sessionID string, isConnected, sessionActive bool)
}

type noopNotifier struct{}

func (noopNotifier) Broadcast(ConnectionState, string, bool, bool) {}
