package handler

import (
	"fmt"

	"github.com/maplego/client/internal/net/packet"
	"go.uber.org/zap"
)

// SendClientStart sends C_ClientStart, the first packet after the handshake.
func SendClientStart(sess Session) {
	sess.Send(packet.ClientStart())
}

// SendLogin sends C_LoginPassword with the configured credentials and
// hardware identifiers and waits in StateLoginSent for S_LoginStatus.
func SendLogin(sess Session, deps *Deps) error {
	cfg := deps.Config.Client
	mac1, hddID, mac2, err := cfg.Hardware()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	p := packet.LoginPassword{
		Name:     cfg.Account,
		Password: cfg.Password,
		MAC1:     mac1,
		HDDID:    hddID,
		MAC2:     mac2,
	}
	sess.SetState(packet.StateLoginSent)
	sess.Send(p.Bytes())
	deps.Log.Info(fmt.Sprintf("login sent  account=%s", cfg.Account))
	return nil
}

// HandleLoginStatus processes S_LoginStatus. A successful login moves the
// session to StateAuthenticated; a refusal returns it to StateConnected so
// another attempt can be made.
func HandleLoginStatus(sess Session, r *packet.Reader, deps *Deps) {
	status, err := packet.ParseLoginStatus(r)
	if err != nil {
		deps.Log.Warn("malformed login status, closing", zap.Error(err))
		sess.Close()
		return
	}
	if n := r.Remaining(); n > 0 {
		deps.Log.Debug("login status has trailing bytes", zap.Int("bytes", n))
	}

	switch status.Result {
	case packet.LoginSuccess:
		sess.SetState(packet.StateAuthenticated)
		deps.Log.Info(fmt.Sprintf("login ok  account=%s  id=%d", status.Name, status.AccountID),
			zap.Uint8("gender", status.Gender),
			zap.Uint8("grade", status.Grade),
			zap.String("created", status.Creation.String()),
		)
	case packet.LoginFailed:
		sess.SetState(packet.StateConnected)
		deps.Log.Warn("login failed", zap.Stringer("reason", status.Reason))
	case packet.LoginPermanentBan:
		sess.SetState(packet.StateConnected)
		deps.Log.Warn("account permanently banned")
	case packet.LoginTemporaryBan:
		sess.SetState(packet.StateConnected)
		deps.Log.Warn("account temporarily banned",
			zap.Stringer("reason", status.Reason),
			zap.String("until", status.Until.String()),
		)
	}

	if deps.OnLoginStatus != nil {
		deps.OnLoginStatus(status)
	}
}
