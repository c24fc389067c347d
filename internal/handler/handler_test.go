package handler

import (
	"testing"

	"github.com/maplego/client/internal/config"
	"github.com/maplego/client/internal/net/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSession struct {
	sent   [][]byte
	state  packet.SessionState
	closed bool
}

func (s *fakeSession) Send(data []byte) { s.sent = append(s.sent, data) }
func (s *fakeSession) State() packet.SessionState { return s.state }
func (s *fakeSession) SetState(st packet.SessionState) { s.state = st }
func (s *fakeSession) Close() { s.closed = true }

func testDeps(t *testing.T) (*Deps, *packet.Registry) {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg := &config.Config{Client: config.ClientConfig{
		Account:  "admin",
		Password: "secret",
		MAC1:     "00e1ffffffff",
		HDDID:    "00e7891b",
		MAC2:     "00ffffffffff",
	}}
	deps := &Deps{Config: cfg, Log: log}
	reg := packet.NewRegistry(log)
	RegisterAll(reg, deps)
	return deps, reg
}

func TestHandlePing_RepliesPong(t *testing.T) {
	_, reg := testDeps(t)
	for _, st := range []packet.SessionState{packet.StateConnected, packet.StateLoginSent, packet.StateAuthenticated} {
		sess := &fakeSession{state: st}
		require.NoError(t, reg.Dispatch(sess, sess.State(), packet.Ping()))
		assert.Equal(t, [][]byte{packet.Pong()}, sess.sent, st.String())
	}
}

func TestSendLogin(t *testing.T) {
	deps, _ := testDeps(t)
	sess := &fakeSession{state: packet.StateConnected}

	require.NoError(t, SendLogin(sess, deps))
	assert.Equal(t, packet.StateLoginSent, sess.state)
	require.Len(t, sess.sent, 1)

	r := packet.NewReader(sess.sent[0])
	assert.Equal(t, packet.C_OPCODE_LOGIN_PASSWORD, r.Opcode())
	p, err := packet.ParseLoginPassword(r)
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Name)
	assert.Equal(t, "secret", p.Password)
	assert.Equal(t, [4]byte{0x00, 0xE7, 0x89, 0x1B}, p.HDDID)
}

func TestSendLogin_BadHardwareID(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Config.Client.MAC1 = "xx"
	sess := &fakeSession{state: packet.StateConnected}

	assert.Error(t, SendLogin(sess, deps))
	assert.Empty(t, sess.sent)
	assert.Equal(t, packet.StateConnected, sess.state)
}

func TestHandleLoginStatus(t *testing.T) {
	tests := []struct {
		name   string
		status packet.LoginStatus
		want   packet.SessionState
	}{
		{"success", packet.LoginStatus{Result: packet.LoginSuccess, AccountID: 5, Name: "admin"}, packet.StateAuthenticated},
		{"wrong password", packet.LoginStatus{Result: packet.LoginFailed, Reason: packet.LoginIncorrectPassword}, packet.StateConnected},
		{"banned", packet.LoginStatus{Result: packet.LoginPermanentBan}, packet.StateConnected},
		{"suspended", packet.LoginStatus{Result: packet.LoginTemporaryBan, Reason: packet.LoginIDDeletedOrBlocked}, packet.StateConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, reg := testDeps(t)
			var got []packet.LoginStatus
			deps.OnLoginStatus = func(s packet.LoginStatus) { got = append(got, s) }

			sess := &fakeSession{state: packet.StateLoginSent}
			require.NoError(t, reg.Dispatch(sess, sess.State(), tt.status.Bytes()))

			assert.Equal(t, tt.want, sess.state)
			assert.False(t, sess.closed)
			require.Len(t, got, 1)
			assert.Equal(t, tt.status.Result, got[0].Result)
		})
	}
}

func TestHandleLoginStatus_RejectedOutsideLogin(t *testing.T) {
	_, reg := testDeps(t)
	sess := &fakeSession{state: packet.StateConnected}
	status := packet.LoginStatus{Result: packet.LoginSuccess}

	assert.Error(t, reg.Dispatch(sess, sess.State(), status.Bytes()))
	assert.Equal(t, packet.StateConnected, sess.state)
}

func TestHandleLoginStatus_MalformedCloses(t *testing.T) {
	_, reg := testDeps(t)
	sess := &fakeSession{state: packet.StateLoginSent}

	require.NoError(t, reg.Dispatch(sess, sess.State(), []byte{0x00, 0x00, 0x00}))
	assert.True(t, sess.closed)
}

func TestHandleLoginStatus_LogsTrailingBytes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	deps, _ := testDeps(t)
	deps.Log = zap.New(core)
	sess := &fakeSession{state: packet.StateLoginSent}

	data := packet.LoginStatus{Result: packet.LoginFailed, Reason: packet.LoginIncorrectPassword}.Bytes()
	data = append(data, 0xAA, 0xBB)
	HandleLoginStatus(sess, packet.NewReader(data), deps)

	entries := logs.FilterMessage("login status has trailing bytes").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["bytes"])
	assert.Equal(t, packet.StateConnected, sess.state)
}
