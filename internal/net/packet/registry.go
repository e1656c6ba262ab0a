package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnected SessionState = iota // socket open, not yet on a board
	StateInWorld                       // playing
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for event handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, msg Message)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps client event names to handlers with state-based access control.
type Registry struct {
	handlers map[string]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// Register maps an event name to a handler, restricted to the given session states.
func (reg *Registry) Register(event string, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[event] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for msg.Event, validates the session state and
// calls the handler. Unknown events are ignored.
func (reg *Registry) Dispatch(sess any, state SessionState, msg Message) error {
	reg.log.Debug("recv",
		zap.String("event", msg.Event),
		zap.Int("size", len(msg.Data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[msg.Event]
	if !ok {
		reg.log.Debug("unknown event", zap.String("event", msg.Event))
		return nil
	}
	if !entry.allowedStates[state] {
		return fmt.Errorf("event %q not allowed in state %s", msg.Event, state)
	}
	return reg.safeCall(entry.fn, sess, msg)
}

// safeCall executes a handler with panic recovery so a single bad message
// cannot take down the game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("event", msg.Event),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %q: %v", msg.Event, rec)
		}
	}()
	fn(sess, msg)
	return nil
}
