package net

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"math/bits"
)

// aesKey is the fixed AES-256 key shared by every client of the protocol.
// Only the IV differs between connections and directions.
var aesKey = [32]byte{
	0x13, 0x00, 0x00, 0x00,
	0x08, 0x00, 0x00, 0x00,
	0x06, 0x00, 0x00, 0x00,
	0xB4, 0x00, 0x00, 0x00,
	0x1B, 0x00, 0x00, 0x00,
	0x0F, 0x00, 0x00, 0x00,
	0x33, 0x00, 0x00, 0x00,
	0x52, 0x00, 0x00, 0x00,
}

// shuffleTable drives IV evolution (see shuffle).
var shuffleTable = [256]byte{
	0xEC, 0x3F, 0x77, 0xA4, 0x45, 0xD0, 0x71, 0xBF, 0xB7, 0x98, 0x20, 0xFC, 0x4B, 0xE9, 0xB3, 0xE1,
	0x5C, 0x22, 0xF7, 0x0C, 0x44, 0x1B, 0x81, 0xBD, 0x63, 0x8D, 0xD4, 0xC3, 0xF2, 0x10, 0x19, 0xE0,
	0xFB, 0xA1, 0x6E, 0x66, 0xEA, 0xAE, 0xD6, 0xCE, 0x06, 0x18, 0x4E, 0xEB, 0x78, 0x95, 0xDB, 0xBA,
	0xB6, 0x42, 0x7A, 0x2A, 0x83, 0x0B, 0x54, 0x67, 0x6D, 0xE8, 0x65, 0xE7, 0x2F, 0x07, 0xF3, 0xAA,
	0x27, 0x7B, 0x85, 0xB0, 0x26, 0xFD, 0x8B, 0xA9, 0xFA, 0xBE, 0xA8, 0xD7, 0xCB, 0xCC, 0x92, 0xDA,
	0xF9, 0x93, 0x60, 0x2D, 0xDD, 0xD2, 0xA2, 0x9B, 0x39, 0x5F, 0x82, 0x21, 0x4C, 0x69, 0xF8, 0x31,
	0x87, 0xEE, 0x8E, 0xAD, 0x8C, 0x6A, 0xBC, 0xB5, 0x6B, 0x59, 0x13, 0xF1, 0x04, 0x00, 0xF6, 0x5A,
	0x35, 0x79, 0x48, 0x8F, 0x15, 0xCD, 0x97, 0x57, 0x12, 0x3E, 0x37, 0xFF, 0x9D, 0x4F, 0x51, 0xF5,
	0xA3, 0x70, 0xBB, 0x14, 0x75, 0xC2, 0xB8, 0x72, 0xC0, 0xED, 0x7D, 0x68, 0xC9, 0x2E, 0x0D, 0x62,
	0x46, 0x17, 0x11, 0x4D, 0x6C, 0xC4, 0x7E, 0x53, 0xC1, 0x25, 0xC7, 0x9A, 0x1C, 0x88, 0x58, 0x2C,
	0x89, 0xDC, 0x02, 0x64, 0x40, 0x01, 0x5D, 0x38, 0xA5, 0xE2, 0xAF, 0x55, 0xD5, 0xEF, 0x1A, 0x7C,
	0xA7, 0x5B, 0xA6, 0x6F, 0x86, 0x9F, 0x73, 0xE6, 0x0A, 0xDE, 0x2B, 0x99, 0x4A, 0x47, 0x9C, 0xDF,
	0x09, 0x76, 0x9E, 0x30, 0x0E, 0xE4, 0xB2, 0x94, 0xA0, 0x3B, 0x34, 0x1D, 0x28, 0x0F, 0x36, 0xE3,
	0x23, 0xB4, 0x03, 0xD8, 0x90, 0xC8, 0x3C, 0xFE, 0x5E, 0x32, 0x24, 0x50, 0x1F, 0x3A, 0x43, 0x8A,
	0x96, 0x41, 0x74, 0xAC, 0x52, 0x33, 0xF0, 0xD9, 0x29, 0x80, 0xB1, 0x16, 0xD3, 0xAB, 0x91, 0xB9,
	0x84, 0x7F, 0x61, 0x1E, 0xCF, 0xC5, 0xD1, 0x56, 0x3D, 0xCA, 0xF4, 0x05, 0xC6, 0xE5, 0x08, 0x49,
}

// ivSeed is the accumulator every IV update starts from.
var ivSeed = [4]byte{0xF2, 0x53, 0x50, 0xC6}

const (
	// Keystream chunk sizes. The working block is reset to the tiled IV at
	// the start of every chunk, so the keystream repeats per chunk.
	firstChunkSize = 0x5B0
	chunkSize      = 0x5B4

	HeaderSize = 4
)

// Cipher is the per-direction packet cipher: AES-256 in a chunked OFB-like
// mode keyed by a 4-byte IV that evolves after every packet body, plus the
// 4-byte header that authenticates the IV and carries the body length.
//
// A Cipher is not safe for concurrent use.
type Cipher struct {
	build uint16
	iv    [4]byte
	block cipher.Block
}

// NewCipher creates a cipher for the given protocol version and initial IV.
// The client->server direction uses the version as is; the server->client
// direction uses 0xFFFF-version.
func NewCipher(version uint16, iv [4]byte) *Cipher {
	block, err := aes.NewCipher(aesKey[:])
	if err != nil {
		// aesKey is a constant 32 bytes, aes.NewCipher cannot reject it.
		panic(err)
	}
	return &Cipher{
		build: bits.ReverseBytes16(version),
		iv:    iv,
		block: block,
	}
}

// IV returns the current IV.
func (c *Cipher) IV() [4]byte {
	return c.iv
}

// ApplyKeyStream XORs data in place with the keystream for the current IV and
// then evolves the IV once. The same call encrypts and decrypts.
func (c *Cipher) ApplyKeyStream(data []byte) {
	remaining := len(data)
	n := firstChunkSize
	start := 0
	var block [aes.BlockSize]byte
	for remaining > 0 {
		c.initBlock(&block)
		if remaining < n {
			n = remaining
		}
		chunk := data[start : start+n]
		for i := range chunk {
			if i%aes.BlockSize == 0 {
				c.block.Encrypt(block[:], block[:])
			}
			chunk[i] ^= block[i%aes.BlockSize]
		}
		start += n
		remaining -= n
		n = chunkSize
	}
	c.update()
}

// CreateHeader builds the 4-byte header for a body of bodyLen bytes.
func (c *Cipher) CreateHeader(bodyLen int) [HeaderSize]byte {
	a := (uint16(c.iv[2])<<8 | uint16(c.iv[3])) ^ c.build
	b := a ^ bits.ReverseBytes16(uint16(bodyLen))
	return [HeaderSize]byte{byte(a >> 8), byte(a), byte(b >> 8), byte(b)}
}

// ConfirmHeader reports whether the first two header bytes match the current
// IV and build. header must hold at least HeaderSize bytes.
func (c *Cipher) ConfirmHeader(header []byte) bool {
	return header[0]^c.iv[2] == byte(c.build>>8) &&
		header[1]^c.iv[3] == byte(c.build)
}

// BodyLength extracts the body length carried by a header.
func BodyLength(header []byte) int {
	return int(header[0]^header[2]) | int(header[1]^header[3])<<8
}

func (c *Cipher) initBlock(block *[aes.BlockSize]byte) {
	for i := 0; i < aes.BlockSize; i += 4 {
		copy(block[i:i+4], c.iv[:])
	}
}

func (c *Cipher) update() {
	acc := ivSeed
	for _, b := range c.iv {
		shuffle(b, &acc)
	}
	c.iv = acc
}

// shuffle folds one IV byte into acc. All arithmetic wraps at 8 bits.
func shuffle(in byte, acc *[4]byte) {
	a1 := acc[1]
	acc[0] += shuffleTable[a1] - in
	acc[1] = a1 - (acc[2] ^ shuffleTable[in])

	a3 := acc[3]
	acc[2] = (shuffleTable[a3] + in) ^ acc[2]
	acc[3] = a3 - acc[0] + shuffleTable[in]

	v := bits.RotateLeft32(binary.LittleEndian.Uint32(acc[:]), 3)
	binary.LittleEndian.PutUint32(acc[:], v)
}
