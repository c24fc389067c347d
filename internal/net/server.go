package net

import (
	"fmt"
	"math/rand"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server accepts TCP connections, performs the server side of the handshake
// with fresh IVs per connection, and hands the Sessions to its owner.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newConns chan *Session
	deadCh   chan uint64 // session IDs of dead sessions
	template Handshake   // version, patch and locale; IVs are generated
	opts     Options
	log      *zap.Logger
	closeCh  chan struct{}
}

func NewServer(bindAddr string, template Handshake, opts Options, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		deadCh:   make(chan uint64, 64),
		template: template,
		opts:     opts,
		log:      log,
		closeCh:  make(chan struct{}),
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, sends the
// handshake, and pushes the sessions onto the newConns channel.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		id := s.nextID.Add(1)
		sess, err := Accept(conn, id, s.newHandshake(), s.opts, s.log)
		if err != nil {
			s.log.Warn("handshake failed", zap.Uint64("session", id), zap.Error(err))
			conn.Close()
			continue
		}

		s.log.Info(fmt.Sprintf("client connected  session=%d  ip=%s", id, sess.IP))

		select {
		case s.newConns <- sess:
		default:
			s.log.Warn("connection queue full, rejecting")
			sess.Close()
		}
	}
}

func (s *Server) newHandshake() Handshake {
	hs := s.template
	randomIV(&hs.SendIV)
	randomIV(&hs.RecvIV)
	return hs
}

func randomIV(iv *[4]byte) {
	v := rand.Uint32()
	iv[0], iv[1], iv[2], iv[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead session ID to the owner.
func (s *Server) NotifyDead(sessionID uint64) {
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
