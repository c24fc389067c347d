package handler

import (
	"github.com/maplego/client/internal/net/packet"
)

// HandlePing answers S_Ping with C_Pong. The server drops clients that stop
// answering.
func HandlePing(sess Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Debug("ping")
	sess.Send(packet.Pong())
}
