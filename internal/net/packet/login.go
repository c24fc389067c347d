package packet

import "fmt"

// ClientStart is the first packet the client sends after the handshake.
func ClientStart() []byte {
	return NewWriterWithOpcode(C_OPCODE_CLIENT_START).Bytes()
}

// Pong answers a server Ping.
func Pong() []byte {
	return NewWriterWithOpcode(C_OPCODE_PONG).Bytes()
}

// Ping is sent by the server to check the client is alive.
func Ping() []byte {
	return NewWriterWithOpcode(S_OPCODE_PING).Bytes()
}

// LoginPassword is C_LoginPassword.
type LoginPassword struct {
	Name     string
	Password string
	MAC1     [6]byte
	HDDID    [4]byte
	MAC2     [6]byte
}

func (p LoginPassword) Bytes() []byte {
	w := NewWriterWithOpcode(C_OPCODE_LOGIN_PASSWORD)
	w.WriteS(p.Name)
	w.WriteS(p.Password)
	w.WriteBytes(p.MAC1[:])
	w.WriteBytes(p.HDDID[:])
	w.WriteBytes(p.MAC2[:])
	w.WriteD(0) // game room client id
	w.WriteC(2) // client type
	w.WriteC(0)
	w.WriteC(0)
	w.WriteD(0)
	return w.Bytes()
}

// ParseLoginPassword reads the fields written by LoginPassword.Bytes.
func ParseLoginPassword(r *Reader) (LoginPassword, error) {
	var p LoginPassword
	p.Name = r.ReadS()
	p.Password = r.ReadS()
	copy(p.MAC1[:], r.ReadBytes(6))
	copy(p.HDDID[:], r.ReadBytes(4))
	copy(p.MAC2[:], r.ReadBytes(6))
	if err := r.Err(); err != nil {
		return p, fmt.Errorf("parse login password: %w", err)
	}
	return p, nil
}

// LoginError is the reason code of a failed or banned login.
type LoginError int32

const (
	LoginIDDeletedOrBlocked                LoginError = 3
	LoginIncorrectPassword                 LoginError = 4
	LoginNotARegisteredID                  LoginError = 5
	LoginSystemError1                      LoginError = 6
	LoginAlreadyLoggedIn                   LoginError = 7
	LoginSystemError2                      LoginError = 8
	LoginSystemError3                      LoginError = 9
	LoginTooManyConnections                LoginError = 10
	LoginOnlyOlderThan20                   LoginError = 11
	LoginUnableToLogOnAsMasterAtThisIP     LoginError = 13
	LoginWrongGatewayOrPersonalInfoKorean  LoginError = 14
	LoginProcessingRequestWithKoreanButton LoginError = 15
	LoginVerifyAccountThroughEmail         LoginError = 16
	LoginWrongGatewayOrPersonalInfo        LoginError = 17
	LoginVerifyAccountThroughEmail2        LoginError = 21
	LoginLicenseAgreement                  LoginError = 23
	LoginEuropeNotice                      LoginError = 25
	LoginTrialVersion                      LoginError = 27
	LoginUnknown                           LoginError = 0xFF
)

var loginErrorNames = map[LoginError]string{
	LoginIDDeletedOrBlocked:                "IDDeletedOrBlocked",
	LoginIncorrectPassword:                 "IncorrectPassword",
	LoginNotARegisteredID:                  "NotARegisteredID",
	LoginSystemError1:                      "SystemError1",
	LoginAlreadyLoggedIn:                   "AlreadyLoggedIn",
	LoginSystemError2:                      "SystemError2",
	LoginSystemError3:                      "SystemError3",
	LoginTooManyConnections:                "CannotProcessSoManyConnections",
	LoginOnlyOlderThan20:                   "OnlyUsersOlderThan20CanUseThisChannel",
	LoginUnableToLogOnAsMasterAtThisIP:     "UnableToLogOnAsMasterAtThisIP",
	LoginWrongGatewayOrPersonalInfoKorean:  "WrongGatewayOrPersonalInfoAndWeirdKoreanButton",
	LoginProcessingRequestWithKoreanButton: "ProcessingRequestWithThatKoreanButton",
	LoginVerifyAccountThroughEmail:         "PleaseVerifyYourAccountThroughEmail",
	LoginWrongGatewayOrPersonalInfo:        "WrongGatewayOrPersonalInfo",
	LoginVerifyAccountThroughEmail2:        "PleaseVerifyYourAccountThroughEmail2",
	LoginLicenseAgreement:                  "LicenseAgreement",
	LoginEuropeNotice:                      "MapleEuropeNotice",
	LoginTrialVersion:                      "TrialVersion",
}

// Known maps codes the server is not documented to send onto LoginUnknown.
func (e LoginError) Known() LoginError {
	if _, ok := loginErrorNames[e]; ok {
		return e
	}
	return LoginUnknown
}

func (e LoginError) String() string {
	if name, ok := loginErrorNames[e]; ok {
		return name
	}
	return "Unknown"
}

// LoginResult selects which LoginStatus fields are meaningful.
type LoginResult int

const (
	LoginSuccess LoginResult = iota
	LoginFailed
	LoginPermanentBan
	LoginTemporaryBan
)

func (r LoginResult) String() string {
	switch r {
	case LoginSuccess:
		return "Success"
	case LoginFailed:
		return "Failed"
	case LoginPermanentBan:
		return "PermanentBan"
	case LoginTemporaryBan:
		return "TemporaryBan"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// LoginStatus is S_LoginStatus.
type LoginStatus struct {
	Result LoginResult

	// LoginSuccess
	AccountID        uint32
	Gender           byte
	Grade            byte
	SubGrade         byte
	CountryCode      byte
	Name             string
	QuietBanReason   byte
	QuietBanLiftDate SystemTime
	Creation         SystemTime
	RequestPIN       byte
	RequestPIC       byte

	// LoginFailed and LoginTemporaryBan
	Reason LoginError
	// LoginPermanentBan and LoginTemporaryBan
	Until SystemTime
}

const loginFlagBanned = 2

// ParseLoginStatus reads S_LoginStatus after the opcode.
func ParseLoginStatus(r *Reader) (LoginStatus, error) {
	var s LoginStatus
	flag := r.ReadD()
	switch flag {
	case 0:
		s.Result = LoginSuccess
		s.AccountID = r.ReadDU()
		s.Gender = r.ReadC()
		s.Grade = r.ReadC()
		s.SubGrade = r.ReadC()
		s.CountryCode = r.ReadC()
		s.Name = r.ReadS()
		s.QuietBanReason = r.ReadC()
		s.QuietBanLiftDate = r.ReadSystemTime()
		s.Creation = r.ReadSystemTime()
		s.RequestPIN = r.ReadC()
		s.RequestPIC = r.ReadC()
	case loginFlagBanned:
		reason := r.ReadC()
		s.Until = r.ReadSystemTime()
		if reason == 0 {
			s.Result = LoginPermanentBan
		} else {
			s.Result = LoginTemporaryBan
			s.Reason = LoginError(reason).Known()
		}
	default:
		s.Result = LoginFailed
		s.Reason = LoginError(flag).Known()
	}
	if err := r.Err(); err != nil {
		return s, fmt.Errorf("parse login status: %w", err)
	}
	return s, nil
}

// Bytes serializes the status the way ParseLoginStatus reads it.
func (s LoginStatus) Bytes() []byte {
	w := NewWriterWithOpcode(S_OPCODE_LOGIN_STATUS)
	switch s.Result {
	case LoginSuccess:
		w.WriteD(0)
		w.WriteDU(s.AccountID)
		w.WriteC(s.Gender)
		w.WriteC(s.Grade)
		w.WriteC(s.SubGrade)
		w.WriteC(s.CountryCode)
		w.WriteS(s.Name)
		w.WriteC(s.QuietBanReason)
		w.WriteSystemTime(s.QuietBanLiftDate)
		w.WriteSystemTime(s.Creation)
		w.WriteC(s.RequestPIN)
		w.WriteC(s.RequestPIC)
	case LoginPermanentBan:
		w.WriteD(loginFlagBanned)
		w.WriteC(0)
		w.WriteSystemTime(s.Until)
	case LoginTemporaryBan:
		// Reason 0 would read back as a permanent ban.
		w.WriteD(loginFlagBanned)
		w.WriteC(byte(s.Reason.Known()))
		w.WriteSystemTime(s.Until)
	default:
		// Flags 0 and 2 mean success and ban, so only named reasons go out.
		w.WriteD(int32(s.Reason.Known()))
	}
	return w.Bytes()
}
