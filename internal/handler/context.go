package handler

import (
	"github.com/maplego/client/internal/config"
	"github.com/maplego/client/internal/net/packet"
	"go.uber.org/zap"
)

// Session is the part of net.Session the client handlers use.
type Session interface {
	Send(data []byte)
	State() packet.SessionState
	SetState(packet.SessionState)
	Close()
}

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config *config.Config
	Log    *zap.Logger

	// OnLoginStatus, when set, is called with every parsed S_LoginStatus
	// after the session state has been updated.
	OnLoginStatus func(packet.LoginStatus)
}

// RegisterAll registers all client-side packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.S_OPCODE_PING,
		[]packet.SessionState{packet.StateConnected, packet.StateLoginSent, packet.StateAuthenticated},
		func(sess any, r *packet.Reader) {
			HandlePing(sess.(Session), r, deps)
		},
	)
	reg.Register(packet.S_OPCODE_LOGIN_STATUS,
		[]packet.SessionState{packet.StateLoginSent},
		func(sess any, r *packet.Reader) {
			HandleLoginStatus(sess.(Session), r, deps)
		},
	)
}
