package packet

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReader_Fields(t *testing.T) {
	st := SystemTime{Year: 2008, Month: 12, DayOfWeek: 3, Day: 31, Hour: 23, Minute: 59, Second: 58, Milliseconds: 999}

	w := NewWriterWithOpcode(0x1234)
	w.WriteC(0xAB)
	w.WriteH(0xBEEF)
	w.WriteD(-2)
	w.WriteDU(0xDEADBEEF)
	w.WriteQ(-3)
	w.WriteS("admin")
	w.WriteFixedS("ab", 4)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteSystemTime(st)

	r := NewReader(w.Bytes())
	assert.Equal(t, uint16(0x1234), r.Opcode())
	assert.Equal(t, byte(0xAB), r.ReadC())
	assert.Equal(t, uint16(0xBEEF), r.ReadH())
	assert.Equal(t, int32(-2), r.ReadD())
	assert.Equal(t, uint32(0xDEADBEEF), r.ReadDU())
	assert.Equal(t, int64(-3), r.ReadQ())
	assert.Equal(t, "admin", r.ReadS())
	assert.Equal(t, "ab\x00\x00", r.ReadFixedS(4))
	assert.Equal(t, []byte{1, 2, 3}, r.ReadBytes(3))
	assert.Equal(t, st, r.ReadSystemTime())
	assert.Zero(t, r.Remaining())
	assert.NoError(t, r.Err())
}

func TestWriter_LittleEndianLayout(t *testing.T) {
	w := NewWriterWithOpcode(C_OPCODE_PONG)
	w.WriteS("ab")
	assert.Equal(t, []byte{0x18, 0x00, 0x02, 0x00, 'a', 'b'}, w.Bytes())
}

func TestWriterReader_Latin1(t *testing.T) {
	w := NewWriter()
	w.WriteH(0)
	w.WriteS("café")
	w.WriteS("日本")

	assert.Equal(t, []byte{0, 0, 4, 0, 'c', 'a', 'f', 0xE9, 2, 0, 0x1A, 0x1A}, w.Bytes()[:12])

	r := NewReader(w.Bytes())
	assert.Equal(t, "café", r.ReadS())
}

func TestWriter_LongStringIsCut(t *testing.T) {
	w := NewWriter()
	w.WriteH(0)
	w.WriteS(strings.Repeat("a", 70000))
	w.WriteC(0x7F)
	assert.Equal(t, 2+2+0xFFFF+1, w.Len())

	r := NewReader(w.Bytes())
	assert.Len(t, r.ReadS(), 0xFFFF)
	assert.Equal(t, byte(0x7F), r.ReadC())
	assert.NoError(t, r.Err())
}

func TestReader_ShortPacket(t *testing.T) {
	r := NewReader([]byte{0x00, 0x00, 0x01})
	assert.Equal(t, uint32(0), r.ReadDU())
	assert.Equal(t, byte(0), r.ReadC())
	assert.ErrorIs(t, r.Err(), ErrShortPacket)

	r = NewReader([]byte{0x00, 0x00, 0x05, 0x00, 'a'})
	assert.Equal(t, "", r.ReadS())
	assert.ErrorIs(t, r.Err(), ErrShortPacket)

	assert.Equal(t, uint16(0), NewReader(nil).Opcode())
}

func TestSystemTime_Time(t *testing.T) {
	tm := time.Date(2020, time.February, 29, 13, 14, 15, 16*int(time.Millisecond), time.UTC)
	st := NewSystemTime(tm)

	assert.Equal(t, uint16(time.Saturday), st.DayOfWeek)
	assert.Equal(t, "2020-02-29 13:14:15.016", st.String())
	assert.True(t, tm.Equal(st.Time(time.UTC)))
	assert.True(t, SystemTime{}.Time(time.UTC).IsZero())
}

func TestLoginPassword_RoundTrip(t *testing.T) {
	p := LoginPassword{
		Name:     "admin",
		Password: "admin",
		MAC1:     [6]byte{0x00, 0xE1, 0xFF, 0xFF, 0xFF, 0xFF},
		HDDID:    [4]byte{0x00, 0xE7, 0x89, 0x1B},
		MAC2:     [6]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}
	data := p.Bytes()

	r := NewReader(data)
	assert.Equal(t, C_OPCODE_LOGIN_PASSWORD, r.Opcode())
	got, err := ParseLoginPassword(r)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	// game room id, client type, two reserved bytes, reserved int
	assert.Equal(t, 4+1+1+1+4, r.Remaining())
}

func TestLoginStatus_Variants(t *testing.T) {
	until := SystemTime{Year: 2030, Month: 1, Day: 1}
	tests := []struct {
		name   string
		status LoginStatus
	}{
		{"success", LoginStatus{
			Result:     LoginSuccess,
			AccountID:  0x01020304,
			Gender:     1,
			Grade:      2,
			Name:       "admin",
			Creation:   SystemTime{Year: 2008, Month: 6, Day: 1},
			RequestPIN: 1,
		}},
		{"failed", LoginStatus{Result: LoginFailed, Reason: LoginIncorrectPassword}},
		{"permanent ban", LoginStatus{Result: LoginPermanentBan, Until: until}},
		{"temporary ban", LoginStatus{Result: LoginTemporaryBan, Reason: LoginIDDeletedOrBlocked, Until: until}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.status.Bytes())
			assert.Equal(t, S_OPCODE_LOGIN_STATUS, r.Opcode())
			got, err := ParseLoginStatus(r)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got)
		})
	}
}

func TestLoginStatus_ReasonsThatCollideWithFlags(t *testing.T) {
	tests := []struct {
		name   string
		status LoginStatus
	}{
		{"failed zero", LoginStatus{Result: LoginFailed}},
		{"failed two", LoginStatus{Result: LoginFailed, Reason: 2}},
		{"failed unnamed", LoginStatus{Result: LoginFailed, Reason: 12}},
		{"temporary ban zero", LoginStatus{Result: LoginTemporaryBan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLoginStatus(NewReader(tt.status.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, tt.status.Result, got.Result)
			assert.Equal(t, LoginUnknown, got.Reason)
		})
	}
}

func TestLoginStatus_UnknownReason(t *testing.T) {
	w := NewWriterWithOpcode(S_OPCODE_LOGIN_STATUS)
	w.WriteD(99)
	got, err := ParseLoginStatus(NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, LoginFailed, got.Result)
	assert.Equal(t, LoginUnknown, got.Reason)
	assert.Equal(t, "Unknown", got.Reason.String())
}

func TestLoginStatus_Truncated(t *testing.T) {
	w := NewWriterWithOpcode(S_OPCODE_LOGIN_STATUS)
	w.WriteD(0)
	w.WriteDU(7)
	_, err := ParseLoginStatus(NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestRegistry_Dispatch(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var calls int
	var gotSess any
	reg.Register(S_OPCODE_PING, []SessionState{StateConnected, StateAuthenticated}, func(sess any, r *Reader) {
		calls++
		gotSess = sess
		assert.Equal(t, S_OPCODE_PING, r.Opcode())
	})

	require.NoError(t, reg.Dispatch("sess", StateConnected, Ping()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "sess", gotSess)

	err := reg.Dispatch("sess", StateLoginSent, Ping())
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	// Unknown opcodes are ignored.
	assert.NoError(t, reg.Dispatch("sess", StateConnected, []byte{0xFF, 0x7F}))

	assert.Error(t, reg.Dispatch("sess", StateConnected, []byte{0x11}))
}

func TestRegistry_RecoversPanic(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(S_OPCODE_LOGIN_STATUS, []SessionState{StateLoginSent}, func(any, *Reader) {
		panic("boom")
	})

	err := reg.Dispatch(nil, StateLoginSent, []byte{0x00, 0x00})
	assert.ErrorContains(t, err, "boom")
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "Connected", StateConnected.String())
	assert.Equal(t, "Unknown(42)", SessionState(42).String())
}
