package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maplego/client/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrSessionClosed = errors.New("session closed")

// Options tunes a Session. Zero fields fall back to DefaultOptions.
type Options struct {
	ReadBufferSize   int
	InQueueSize      int
	OutQueueSize     int
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration // 0 = no read deadline
	PacketsPerSecond int           // inbound limit, 0 = unlimited
}

func DefaultOptions() Options {
	return Options{
		ReadBufferSize: 8192,
		InQueueSize:    128,
		OutQueueSize:   256,
		WriteTimeout:   10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = def.ReadBufferSize
	}
	if o.InQueueSize <= 0 {
		o.InQueueSize = def.InQueueSize
	}
	if o.OutQueueSize <= 0 {
		o.OutQueueSize = def.OutQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	return o
}

// Session is one encrypted connection, either the client end (Dial) or the
// server end (Accept). Network I/O runs in dedicated goroutines: the reader
// owns the Decoder, the writer owns the Encoder, so neither needs a lock.
type Session struct {
	ID   uint64
	conn net.Conn
	hs   Handshake

	enc   *Encoder
	dec   *Decoder
	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // decoded payloads, in wire order
	OutQueue chan []byte // plaintext payloads, encoded by writeLoop

	IP string

	opts    Options
	limiter *rate.Limiter

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	errMu     sync.Mutex
	err       error

	log *zap.Logger
}

func newSession(conn net.Conn, id uint64, hs Handshake, opts Options, log *zap.Logger) *Session {
	opts = opts.withDefaults()
	s := &Session{
		ID:       id,
		conn:     conn,
		hs:       hs,
		InQueue:  make(chan []byte, opts.InQueueSize),
		OutQueue: make(chan []byte, opts.OutQueueSize),
		IP:       remoteIP(conn.RemoteAddr()),
		opts:     opts,
		closeCh:  make(chan struct{}),
		log:      log.With(zap.Uint64("session", id)),
	}
	if opts.PacketsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.PacketsPerSecond), opts.PacketsPerSecond)
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

// Dial connects to a server, reads its handshake and starts the session with
// client-side ciphers.
func Dial(ctx context.Context, addr string, opts Options, log *zap.Logger) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	s, err := Connect(ctx, conn, opts, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Connect runs the client side of the handshake over an established conn.
func Connect(ctx context.Context, conn net.Conn, opts Options, log *zap.Logger) (*Session, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	hs, err := ReadHandshake(conn)
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	s := newSession(conn, 0, hs, opts, log)
	s.enc = NewClientEncoder(hs.Version, hs.SendIV)
	s.dec = NewClientDecoder(hs.Version, hs.RecvIV)
	s.log.Debug("handshake received",
		zap.Uint16("version", hs.Version),
		zap.String("patch", hs.Patch),
		zap.Binary("send_iv", hs.SendIV[:]),
		zap.Binary("recv_iv", hs.RecvIV[:]),
		zap.Uint8("locale", hs.Locale),
	)
	s.start()
	return s, nil
}

// Accept runs the server side: it writes hs (from the client's point of
// view) and starts the session with server-side ciphers.
func Accept(conn net.Conn, id uint64, hs Handshake, opts Options, log *zap.Logger) (*Session, error) {
	s := newSession(conn, id, hs, opts, log)
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := WriteHandshake(conn, hs); err != nil {
		return nil, err
	}
	remote := hs.Remote()
	s.enc = NewServerEncoder(hs.Version, remote.SendIV)
	s.dec = NewServerDecoder(hs.Version, remote.RecvIV)
	s.start()
	return s, nil
}

func (s *Session) start() {
	s.SetState(packet.StateConnected)
	go s.readLoop()
	go s.writeLoop()
}

func remoteIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// RemoteIP returns the peer's address without the port.
func (s *Session) RemoteIP() string {
	return s.IP
}

func (s *Session) Handshake() Handshake {
	return s.hs
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Send queues a plaintext payload. If the writer cannot keep up the session
// is closed rather than blocking the caller.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	select {
	case s.OutQueue <- data:
	default:
		s.fail(errors.New("output queue full"))
	}
}

// Recv waits for the next decoded payload.
func (s *Session) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.InQueue:
		return data, nil
	default:
	}
	select {
	case data := <-s.InQueue:
		return data, nil
	case <-s.closeCh:
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// Err returns the error that closed the session, ErrSessionClosed after a
// plain Close, or nil while it is open.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// fail records the first error and closes the session.
func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil && !s.closed.Load() {
		s.err = err
	}
	s.errMu.Unlock()
	s.Close()
}

// readLoop runs in its own goroutine. Every read, however small, is fed to
// the Decoder, which is then drained of complete packets.
func (s *Session) readLoop() {
	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		if s.opts.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		n, readErr := s.conn.Read(buf)
		if n > 0 {
			s.dec.Append(buf[:n])
		}
		for {
			payload, err := s.dec.Decode()
			if err != nil {
				s.log.Warn("decode failed, closing", zap.Error(err))
				s.fail(err)
				return
			}
			if payload == nil {
				break
			}
			if s.limiter != nil && !s.limiter.Allow() {
				s.log.Warn("packet rate exceeded, closing")
				s.fail(errors.New("packet rate exceeded"))
				return
			}
			select {
			case s.InQueue <- payload:
			case <-s.closeCh:
				return
			}
		}
		if readErr != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(readErr))
				s.fail(fmt.Errorf("read: %w", readErr))
			}
			return
		}
	}
}

// writeLoop runs in its own goroutine. It encodes payloads in queue order,
// which is the order the peer's Decoder will see them.
func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// writeOnePacket encodes and writes one packet. Returns true on success.
func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) >= 2 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X%02X", data[1], data[0])),
			zap.Int("len", len(data)),
		)
	}

	encoded, err := s.enc.Encode(data)
	if err != nil {
		// The cipher has not advanced, so the stream is still in sync.
		s.log.Error("dropping unencodable packet", zap.Int("len", len(data)), zap.Error(err))
		return true
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if _, err := s.conn.Write(encoded); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
			s.fail(fmt.Errorf("write: %w", err))
		}
		return false
	}
	return true
}
