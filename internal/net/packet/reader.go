package packet

import (
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/charmap"
)

var ErrShortPacket = errors.New("packet shorter than its fields")

// Reader reads packet fields from a decoded payload.
// Bytes 0-1 are always the little-endian opcode.
//
// Reads past the end return zero values and mark the reader short; callers
// that care check Err once after reading every field.
type Reader struct {
	data  []byte
	off   int
	short bool
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 2} // skip opcode
}

func (r *Reader) Opcode() uint16 {
	if len(r.data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(r.data)
}

func (r *Reader) take(n int) []byte {
	if r.off+n > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	return int32(r.ReadDU())
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadQ reads 8 bytes as little-endian int64.
func (r *Reader) ReadQ() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// ReadS reads a string prefixed by its uint16 byte length.
func (r *Reader) ReadS() string {
	n := int(r.ReadH())
	return r.ReadFixedS(n)
}

// ReadFixedS reads an n-byte string.
func (r *Reader) ReadFixedS(n int) string {
	if n == 0 {
		return ""
	}
	return latin1ToUTF8(r.take(n))
}

// latin1ToUTF8 maps every byte to the code point of the same value.
// Pure ASCII passes through unchanged.
func latin1ToUTF8(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	src := r.take(n)
	if src == nil {
		return nil
	}
	b := make([]byte, n)
	copy(b, src)
	return b
}

// ReadSystemTime reads a 16-byte SystemTime.
func (r *Reader) ReadSystemTime() SystemTime {
	var st SystemTime
	st.Year = r.ReadH()
	st.Month = r.ReadH()
	st.DayOfWeek = r.ReadH()
	st.Day = r.ReadH()
	st.Hour = r.ReadH()
	st.Minute = r.ReadH()
	st.Second = r.ReadH()
	st.Milliseconds = r.ReadH()
	return st
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns ErrShortPacket if any read ran past the end of the payload.
func (r *Reader) Err() error {
	if r.short {
		return ErrShortPacket
	}
	return nil
}
