package net

import "fmt"

// Encoder turns plaintext payloads into complete on-wire packets.
type Encoder struct {
	cipher *Cipher
}

// NewClientEncoder creates the encoder for packets we send to the server.
func NewClientEncoder(version uint16, iv [4]byte) *Encoder {
	return &Encoder{cipher: NewCipher(version, iv)}
}

// NewServerEncoder creates the encoder for packets a server sends to a client.
func NewServerEncoder(version uint16, iv [4]byte) *Encoder {
	return &Encoder{cipher: NewCipher(0xFFFF-version, iv)}
}

// Encode returns header + scrambled, keystreamed copy of payload.
// payload itself is not modified. Rejected payloads leave the IV untouched.
func (e *Encoder) Encode(payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("encode %d bytes: %w", len(payload), ErrBodyTooSmall)
	}
	if len(payload) > MaxPacketSize {
		return nil, fmt.Errorf("encode %d bytes: %w", len(payload), ErrPacketTooLarge)
	}
	header := e.cipher.CreateHeader(len(payload))
	packet := make([]byte, HeaderSize+len(payload))
	copy(packet, header[:])
	body := packet[HeaderSize:]
	copy(body, payload)

	ShandaEncrypt(body)
	e.cipher.ApplyKeyStream(body)
	return packet, nil
}
