package l2cap

type Opcode uint8

// Vol 3, Part A, Section 4 of the Bluetooth Core Specification
const (
	OpcodeCommandRejectResponse Opcode = 0x01
	OpcodeConnectionRequest     Opcode = 0x02
	OpcodeConnectionResponse    Opcode = 0x03
	OpcodeConfigurationRequest  Opcode = 0x04
	OpcodeConfigurationResponse Opcode = 0x05
	OpcodeDisconnectionRequest  Opcode = 0x06
	OpcodeDisconnectionResponse Opcode = 0x07
	OpcodeEchoRequest           Opcode = 0x08
	OpcodeEchoResponse          Opcode = 0x09
	OpcodeInformationRequest    Opcode = 0x0A
	OpcodeInformationResponse   Opcode = 0x0B
)

// Section 2.1
type ChannelID uint16

const (
	ChannelIDSignallingACLU       ChannelID = 0x0001
	ChannelIDConnectionless       ChannelID = 0x0002
	ChannelIDBREDRSecurityManager ChannelID = 0x0007

	// Dynamically allocated channels on ACL-U.
	ChannelIDDynamicStart ChannelID = 0x0040
	ChannelIDDynamicEnd   ChannelID = 0xFFFF
)

// PSM is a protocol/service multiplexer, Section 4.2.
type PSM uint16

// Assigned Numbers, Section 2.2
const (
	PSMSDP    PSM = 0x0001
	PSMRFCOMM PSM = 0x0003
	PSMBNEP   PSM = 0x000F
	PSMHIDCtl PSM = 0x0011
	PSMHIDInt PSM = 0x0013
	PSMAVCTP  PSM = 0x0017
	PSMAVDTP  PSM = 0x0019
)

// DefaultMTU is the minimum MTU every BR/EDR implementation supports.
const DefaultMTU uint16 = 672
