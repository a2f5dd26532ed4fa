// Package broadcast delivers events to live websocket connections:
// a single connection, every connection in a room, or everyone.
package broadcast

import "context"

// Event is the push envelope. Pushes carry no request id; acks are the
// socket front's business.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Alert is a transient, user-facing notice scoped to one connection.
// It rides the "event:alert" event and is cosmetic, independent of any
// error returned to the caller.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Timeout int    `json:"timeout"`
}

// Broadcaster is injected into the command handlers; they never reach
// for a global hub.
type Broadcaster interface {
	ToConnection(connID, event string, payload any) error
	ToRoom(ctx context.Context, room, event string, payload any) error
	Global(event string, payload any)
}

// Registry answers room membership at broadcast time. Implemented by
// rooms.RedisRegistry.
type Registry interface {
	Members(ctx context.Context, room string) ([]string, error)
}
