package packet

import (
	"encoding/binary"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const maxStringLen = 0xFFFF

// Writer builds a packet payload. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode uint16) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteH(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	w.WriteDU(uint32(v))
}

// WriteDU writes 4 bytes little-endian unsigned.
func (w *Writer) WriteDU(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteQ writes 8 bytes little-endian.
func (w *Writer) WriteQ(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// WriteS writes a string prefixed by its uint16 byte length. Strings longer
// than 0xFFFF bytes are cut to fit the prefix.
// Characters outside Latin-1 are written as the ASCII SUB byte 0x1A.
func (w *Writer) WriteS(s string) {
	raw := utf8ToLatin1(s)
	if len(raw) > maxStringLen {
		raw = raw[:maxStringLen]
	}
	w.WriteH(uint16(len(raw)))
	w.buf = append(w.buf, raw...)
}

// WriteFixedS writes s into exactly n bytes, truncating or zero-padding.
func (w *Writer) WriteFixedS(s string, n int) {
	raw := utf8ToLatin1(s)
	if len(raw) > n {
		raw = raw[:n]
	}
	w.buf = append(w.buf, raw...)
	for i := len(raw); i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

func utf8ToLatin1(s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
			out, err := enc.Bytes([]byte(s))
			if err != nil {
				return []byte(s)
			}
			return out
		}
	}
	return []byte(s)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteSystemTime writes st as eight uint16 fields.
func (w *Writer) WriteSystemTime(st SystemTime) {
	w.WriteH(st.Year)
	w.WriteH(st.Month)
	w.WriteH(st.DayOfWeek)
	w.WriteH(st.Day)
	w.WriteH(st.Hour)
	w.WriteH(st.Minute)
	w.WriteH(st.Second)
	w.WriteH(st.Milliseconds)
}

// Bytes returns the packet content.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}
