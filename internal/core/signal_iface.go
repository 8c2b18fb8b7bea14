package core

// Frame is a raw binary payload.
type Frame []byte

// SignalChannel abstracts the duplex signaling transport.
// Connection, authentication and reconnect are owned by the adapter.
type SignalChannel interface {
	Connected() bool
	// Send delivers a named event. It returns ErrTransportUnavailable when the
	// channel is down; callers never retry.
	Send(event string, payload any) error
}
