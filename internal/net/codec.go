package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrMalformedHandshake = errors.New("malformed handshake")

// Handshake is the plaintext record the server sends once, before any
// encrypted packet. IVs are named from the client's point of view.
type Handshake struct {
	Version uint16
	Patch   string
	SendIV  [4]byte // client -> server
	RecvIV  [4]byte // server -> client
	Locale  byte
}

// Remote returns the same handshake seen from the other end.
func (h Handshake) Remote() Handshake {
	h.SendIV, h.RecvIV = h.RecvIV, h.SendIV
	return h
}

// size is the record length without the 2-byte frame prefix.
func (h Handshake) size() int {
	return 2 + 2 + len(h.Patch) + 4 + 4 + 1
}

// MarshalBinary encodes the record without the frame prefix.
func (h Handshake) MarshalBinary() ([]byte, error) {
	if len(h.Patch) > 0xFFFF {
		return nil, fmt.Errorf("patch string %d bytes: %w", len(h.Patch), ErrMalformedHandshake)
	}
	buf := make([]byte, 0, h.size())
	buf = binary.LittleEndian.AppendUint16(buf, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(h.Patch)))
	buf = append(buf, h.Patch...)
	buf = append(buf, h.SendIV[:]...)
	buf = append(buf, h.RecvIV[:]...)
	buf = append(buf, h.Locale)
	return buf, nil
}

// UnmarshalBinary decodes a record. data must be exactly one record.
func (h *Handshake) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("handshake of %d bytes: %w", len(data), ErrMalformedHandshake)
	}
	version := binary.LittleEndian.Uint16(data[0:2])
	patchLen := int(binary.LittleEndian.Uint16(data[2:4]))
	if want := 4 + patchLen + 9; len(data) != want {
		return fmt.Errorf("handshake size %d, record needs %d: %w", len(data), want, ErrMalformedHandshake)
	}
	off := 4
	h.Version = version
	h.Patch = string(data[off : off+patchLen])
	off += patchLen
	copy(h.SendIV[:], data[off:off+4])
	copy(h.RecvIV[:], data[off+4:off+8])
	h.Locale = data[off+8]
	return nil
}

// ReadHandshake reads the framed handshake record from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	var hs Handshake
	payload, err := ReadFrame(r)
	if err != nil {
		return hs, fmt.Errorf("read handshake: %w", err)
	}
	if err := hs.UnmarshalBinary(payload); err != nil {
		return hs, err
	}
	return hs, nil
}

// WriteHandshake writes the framed handshake record to w.
func WriteHandshake(w io.Writer, hs Handshake) error {
	data, err := hs.MarshalBinary()
	if err != nil {
		return err
	}
	if err := WriteFrame(w, data); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	return nil
}

// ReadFrame reads one plaintext frame from r.
// Wire format: [2 bytes LE: payload length][payload].
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	payloadLen := int(binary.LittleEndian.Uint16(header[:]))
	if payloadLen == 0 {
		return nil, fmt.Errorf("empty frame: %w", ErrMalformedHandshake)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", payloadLen, err)
	}
	return payload, nil
}

// WriteFrame writes one plaintext frame to w in a single Write.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > 0xFFFF {
		return fmt.Errorf("frame of %d bytes: %w", len(data), ErrPacketTooLarge)
	}
	buf := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(buf[:2], uint16(len(data)))
	copy(buf[2:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
