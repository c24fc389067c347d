package packet

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateHandshake     SessionState = iota // waiting for the plaintext handshake
	StateConnected                         // ciphers set up, not logged in
	StateLoginSent                         // credentials sent, awaiting LoginStatus
	StateAuthenticated                     // login accepted
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateConnected:
		return "Connected"
	case StateLoginSent:
		return "LoginSent"
	case StateAuthenticated:
		return "Authenticated"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for packet handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps opcodes to handlers with state-based access control.
type Registry struct {
	handlers map[uint16]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[uint16]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given session states.
func (reg *Registry) Register(opcode uint16, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[opcode] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the opcode in data[0:2], validates the
// session state, and calls the handler. Unknown opcodes are logged and
// ignored; a disallowed state or a handler panic returns an error.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("packet of %d bytes has no opcode", len(data))
	}
	opcode := binary.LittleEndian.Uint16(data)
	reg.log.Debug("RX",
		zap.String("op", fmt.Sprintf("0x%04X", opcode)),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[opcode]
	if !ok {
		reg.log.Warn("unknown opcode",
			zap.String("op", fmt.Sprintf("0x%04X", opcode)),
			zap.Int("len", len(data)-2),
		)
		return nil
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("opcode not allowed in state",
			zap.String("op", fmt.Sprintf("0x%04X", opcode)),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("opcode 0x%04X not allowed in state %s", opcode, state)
	}

	r := NewReader(data)
	if err := reg.safeCall(entry.fn, sess, r, opcode); err != nil {
		return err
	}
	return nil
}

// safeCall executes a handler with panic recovery so a single bad packet
// only fails its own session.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode uint16) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("op", fmt.Sprintf("0x%04X", opcode)),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode 0x%04X: %v", opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}
