// Package login is a minimal login server used to exercise the client
// against a local peer. It speaks the same codec from the server side.
package login

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/maplego/client/internal/component"
	"github.com/maplego/client/internal/config"
	"github.com/maplego/client/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errPingTimeout = errors.New("ping timeout")

// pingTimeoutFactor is how many ping intervals may pass without a pong
// before the connection is dropped.
const pingTimeoutFactor = 3

// AccountStore is implemented by persist.AccountRepo and data.AccountTable.
type AccountStore interface {
	Load(ctx context.Context, name string) (*component.Account, error)
	Create(ctx context.Context, name, rawPassword, ip string) (*component.Account, error)
	ValidatePassword(hash string, rawPassword string) bool
	ClaimOnline(ctx context.Context, name string) (bool, error)
	SetOnline(ctx context.Context, name string, online bool) error
	UpdateLastActive(ctx context.Context, name, ip string) error
}

// Session is the part of net.Session the stub uses.
type Session interface {
	Send(data []byte)
	Recv(ctx context.Context) ([]byte, error)
	State() packet.SessionState
	SetState(packet.SessionState)
	RemoteIP() string
	Close()
}

// Deps holds shared dependencies injected into all stub handlers.
type Deps struct {
	Accounts AccountStore
	Config   *config.LoginServerConfig
	Log      *zap.Logger
}

// Conn is the per-connection state handlers receive from the registry.
type Conn struct {
	Session
	Account  string // set once logged in
	lastPong atomic.Int64
}

// RegisterAll registers all stub handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_OPCODE_CLIENT_START,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, r *packet.Reader) {
			HandleClientStart(sess.(*Conn), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_LOGIN_PASSWORD,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, r *packet.Reader) {
			HandleLoginPassword(sess.(*Conn), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_PONG,
		[]packet.SessionState{packet.StateConnected, packet.StateAuthenticated},
		func(sess any, r *packet.Reader) {
			HandlePong(sess.(*Conn), r, deps)
		},
	)
}

// Serve dispatches packets from sess until it closes or ctx ends, pinging
// the client every Config.PingInterval. The account is marked offline on
// the way out. The returned error is why the connection ended.
func Serve(ctx context.Context, sess Session, reg *packet.Registry, deps *Deps) error {
	c := &Conn{Session: sess}
	c.lastPong.Store(time.Now().UnixNano())
	log := deps.Log.With(zap.String("ip", sess.RemoteIP()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			data, err := sess.Recv(gctx)
			if err != nil {
				return err
			}
			if err := reg.Dispatch(c, sess.State(), data); err != nil {
				log.Warn("dispatch failed", zap.Error(err))
			}
		}
	})
	if interval := deps.Config.PingInterval; interval > 0 {
		g.Go(func() error {
			return c.pingLoop(gctx, interval)
		})
	}

	err := g.Wait()
	sess.Close()
	c.logout(deps)
	return err
}

func (c *Conn) pingLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.Sub(time.Unix(0, c.lastPong.Load())) > pingTimeoutFactor*interval {
				return errPingTimeout
			}
			c.Send(packet.Ping())
		}
	}
}

func (c *Conn) logout(deps *Deps) {
	if c.Account == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := deps.Accounts.SetOnline(ctx, c.Account, false); err != nil {
		deps.Log.Error("clear online flag", zap.String("account", c.Account), zap.Error(err))
	}
}
