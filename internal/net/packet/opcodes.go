package packet

// Client -> server opcodes (login server, v83).
const (
	C_OPCODE_LOGIN_PASSWORD uint16 = 0x01
	C_OPCODE_PONG           uint16 = 0x18
	C_OPCODE_CLIENT_START   uint16 = 0x23
)

// Server -> client opcodes (login server, v83).
const (
	S_OPCODE_LOGIN_STATUS uint16 = 0x00
	S_OPCODE_PING         uint16 = 0x11
)
