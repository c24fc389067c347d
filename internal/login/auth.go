package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maplego/client/internal/component"
	"github.com/maplego/client/internal/net/packet"
	"go.uber.org/zap"
)

// HandleClientStart processes C_ClientStart. The client sends it once after
// the handshake; there is nothing to answer.
func HandleClientStart(c *Conn, _ *packet.Reader, deps *Deps) {
	deps.Log.Debug("client start", zap.String("ip", c.RemoteIP()))
}

// HandlePong processes C_Pong.
func HandlePong(c *Conn, _ *packet.Reader, _ *Deps) {
	c.lastPong.Store(time.Now().UnixNano())
}

// HandleLoginPassword processes C_LoginPassword and answers S_LoginStatus.
func HandleLoginPassword(c *Conn, r *packet.Reader, deps *Deps) {
	req, err := packet.ParseLoginPassword(r)
	if err != nil {
		deps.Log.Warn("malformed login", zap.Error(err))
		sendLoginError(c, packet.LoginSystemError1)
		return
	}
	name := strings.ToLower(req.Name)
	ip := c.RemoteIP()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acc, err := deps.Accounts.Load(ctx, name)
	if err != nil {
		deps.Log.Error("load account", zap.String("account", name), zap.Error(err))
		sendLoginError(c, packet.LoginSystemError1)
		return
	}

	if acc == nil {
		if !deps.Config.AutoCreateAccounts {
			sendLoginError(c, packet.LoginNotARegisteredID)
			return
		}
		acc, err = deps.Accounts.Create(ctx, name, req.Password, ip)
		if err != nil {
			deps.Log.Error("create account", zap.String("account", name), zap.Error(err))
			sendLoginError(c, packet.LoginSystemError1)
			return
		}
		deps.Log.Info(fmt.Sprintf("account created  account=%s", name))
	} else if !deps.Accounts.ValidatePassword(acc.PasswordHash, req.Password) {
		sendLoginError(c, packet.LoginIncorrectPassword)
		return
	}

	if acc.BanActive(time.Now()) {
		deps.Log.Info(fmt.Sprintf("banned account tried to log in  account=%s", name))
		c.Send(banStatus(acc).Bytes())
		return
	}

	claimed, err := deps.Accounts.ClaimOnline(ctx, name)
	if err != nil {
		deps.Log.Error("set online flag", zap.String("account", name), zap.Error(err))
		sendLoginError(c, packet.LoginSystemError1)
		return
	}
	if !claimed {
		sendLoginError(c, packet.LoginAlreadyLoggedIn)
		return
	}

	if err := deps.Accounts.UpdateLastActive(ctx, name, ip); err != nil {
		deps.Log.Error("update last active", zap.String("account", name), zap.Error(err))
	}

	c.Account = name
	c.SetState(packet.StateAuthenticated)
	c.Send(successStatus(acc).Bytes())

	deps.Log.Info(fmt.Sprintf("login ok  account=%s  ip=%s", name, ip))
}

func sendLoginError(c *Conn, reason packet.LoginError) {
	c.Send(packet.LoginStatus{Result: packet.LoginFailed, Reason: reason}.Bytes())
}

func banStatus(acc *component.Account) packet.LoginStatus {
	if acc.BanReason == 0 {
		return packet.LoginStatus{Result: packet.LoginPermanentBan}
	}
	return packet.LoginStatus{
		Result: packet.LoginTemporaryBan,
		Reason: packet.LoginError(acc.BanReason),
		Until:  packet.NewSystemTime(acc.BannedUntil.UTC()),
	}
}

func successStatus(acc *component.Account) packet.LoginStatus {
	s := packet.LoginStatus{
		Result:      packet.LoginSuccess,
		AccountID:   acc.ID,
		Gender:      acc.Gender,
		Grade:       acc.Grade,
		CountryCode: acc.CountryCode,
		Name:        acc.Name,
	}
	if !acc.CreatedAt.IsZero() {
		s.Creation = packet.NewSystemTime(acc.CreatedAt.UTC())
	}
	return s
}
