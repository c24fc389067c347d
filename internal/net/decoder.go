package net

import (
	"errors"
	"fmt"
)

// MaxPacketSize is the largest body a 4-byte header can describe.
const MaxPacketSize = 0xFFFF

var (
	ErrHeaderMismatch = errors.New("packet header does not match cipher state")
	ErrBodyTooSmall   = errors.New("packet body too small")
	ErrPacketTooLarge = errors.New("packet too large")
)

type decodeState int

const (
	stateHeader decodeState = iota
	stateBody
)

func (s decodeState) String() string {
	switch s {
	case stateHeader:
		return "Header"
	case stateBody:
		return "Body"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Decoder reassembles inbound packets from an arbitrarily fragmented byte
// stream. Feed raw bytes with Append and drain packets with Decode.
//
// Header failures leave both ends' ciphers out of sync, so they are sticky:
// once Decode returns an error every later call returns it too.
type Decoder struct {
	cipher   *Cipher
	state    decodeState
	bodySize int
	buf      []byte
	err      error
}

// NewClientDecoder creates the decoder for packets the server sends to us.
func NewClientDecoder(version uint16, iv [4]byte) *Decoder {
	return newDecoder(NewCipher(0xFFFF-version, iv))
}

// NewServerDecoder creates the decoder for packets a client sends to a server.
func NewServerDecoder(version uint16, iv [4]byte) *Decoder {
	return newDecoder(NewCipher(version, iv))
}

func newDecoder(c *Cipher) *Decoder {
	return &Decoder{
		cipher: c,
		state:  stateHeader,
		buf:    make([]byte, 0, 4096),
	}
}

// Append adds raw bytes to the tail of the buffer. It never decodes.
func (d *Decoder) Append(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of raw bytes held, header included.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Decode returns the next complete payload, or nil with a nil error when
// more bytes are needed.
func (d *Decoder) Decode() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.state == stateHeader {
		if len(d.buf) < HeaderSize {
			return nil, nil
		}
		if !d.cipher.ConfirmHeader(d.buf) {
			d.err = fmt.Errorf("decode header % X: %w", d.buf[:HeaderSize], ErrHeaderMismatch)
			return nil, d.err
		}
		size := BodyLength(d.buf)
		if size < 2 {
			d.err = fmt.Errorf("decode header: body size %d: %w", size, ErrBodyTooSmall)
			return nil, d.err
		}
		d.bodySize = size
		d.state = stateBody
	}
	return d.decodeBody(), nil
}

func (d *Decoder) decodeBody() []byte {
	if len(d.buf)-HeaderSize < d.bodySize {
		return nil
	}
	end := HeaderSize + d.bodySize
	body := d.buf[HeaderSize:end]
	d.cipher.ApplyKeyStream(body)
	ShandaDecrypt(body)

	payload := make([]byte, d.bodySize)
	copy(payload, body)

	n := copy(d.buf, d.buf[end:])
	d.buf = d.buf[:n]
	d.state = stateHeader
	d.bodySize = 0
	return payload
}
