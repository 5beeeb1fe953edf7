package hci

import (
	"encoding/binary"
)

// AddressCommandPacket encompasses the commands whose only parameter is a BD_ADDR.
type AddressCommandPacket struct {
	opcode Opcode
	BDAddr BDAddr
}

func NewAddressCommandPacket(opcode Opcode, addr BDAddr) *AddressCommandPacket {
	return &AddressCommandPacket{opcode: opcode, BDAddr: addr}
}

func (p *AddressCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(p.opcode, 6)
	copy(buf[4:], p.BDAddr[:])
	return buf, nil
}

func (p *AddressCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 {
		return errIncorrectPacket
	}
	op := Opcode(binary.LittleEndian.Uint16(buf[1:]))
	b, err := commandParams(buf, op, 6)
	if err != nil {
		return err
	}
	p.opcode = op
	copy(p.BDAddr[:], b)
	return nil
}

func (p *AddressCommandPacket) Opcode() Opcode {
	return p.opcode
}

func (p *AddressCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// HandleCommandPacket encompasses the commands whose only parameter is a connection handle.
type HandleCommandPacket struct {
	opcode           Opcode
	ConnectionHandle uint16
}

func NewHandleCommandPacket(opcode Opcode, handle uint16) *HandleCommandPacket {
	return &HandleCommandPacket{opcode: opcode, ConnectionHandle: handle}
}

func (p *HandleCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(p.opcode, 2)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	return buf, nil
}

func (p *HandleCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 {
		return errIncorrectPacket
	}
	op := Opcode(binary.LittleEndian.Uint16(buf[1:]))
	b, err := commandParams(buf, op, 2)
	if err != nil {
		return err
	}
	p.opcode = op
	p.ConnectionHandle = binary.LittleEndian.Uint16(b)
	return nil
}

func (p *HandleCommandPacket) Opcode() Opcode {
	return p.opcode
}

func (p *HandleCommandPacket) handle() uint16 {
	return p.ConnectionHandle
}

// Section 7.1.5
type CreateConnectionCommandPacket struct {
	BDAddr                 BDAddr
	PacketType             uint16
	PageScanRepetitionMode PageScanRepetitionMode
	ClockOffset            uint16
	AllowRoleSwitch        bool
}

func (p *CreateConnectionCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeCreateConnection, 13)
	copy(buf[4:], p.BDAddr[:])
	binary.LittleEndian.PutUint16(buf[10:], p.PacketType)
	buf[12] = byte(p.PageScanRepetitionMode)
	binary.LittleEndian.PutUint16(buf[14:], p.ClockOffset)
	if p.AllowRoleSwitch {
		buf[16] = 1
	}
	return buf, nil
}

func (p *CreateConnectionCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeCreateConnection, 13)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.PacketType = binary.LittleEndian.Uint16(b[6:])
	p.PageScanRepetitionMode = PageScanRepetitionMode(b[8])
	p.ClockOffset = binary.LittleEndian.Uint16(b[10:])
	p.AllowRoleSwitch = b[12] == 1
	return nil
}

func (p *CreateConnectionCommandPacket) Opcode() Opcode {
	return OpcodeCreateConnection
}

func (p *CreateConnectionCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.6
type DisconnectCommandPacket struct {
	ConnectionHandle uint16
	Reason           StatusCode
}

func (p *DisconnectCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeDisconnect, 3)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = byte(p.Reason)
	return buf, nil
}

func (p *DisconnectCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeDisconnect, 3)
	if err != nil {
		return err
	}
	p.ConnectionHandle = binary.LittleEndian.Uint16(b)
	p.Reason = StatusCode(b[2])
	return nil
}

func (p *DisconnectCommandPacket) Opcode() Opcode {
	return OpcodeDisconnect
}

func (p *DisconnectCommandPacket) handle() uint16 {
	return p.ConnectionHandle
}

// Section 7.1.8
type AcceptConnectionRequestCommandPacket struct {
	BDAddr BDAddr
	Role   Role
}

func (p *AcceptConnectionRequestCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeAcceptConnectionRequest, 7)
	copy(buf[4:], p.BDAddr[:])
	buf[10] = byte(p.Role)
	return buf, nil
}

func (p *AcceptConnectionRequestCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeAcceptConnectionRequest, 7)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.Role = Role(b[6])
	return nil
}

func (p *AcceptConnectionRequestCommandPacket) Opcode() Opcode {
	return OpcodeAcceptConnectionRequest
}

func (p *AcceptConnectionRequestCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.9
type RejectConnectionRequestCommandPacket struct {
	BDAddr BDAddr
	Reason StatusCode
}

func (p *RejectConnectionRequestCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeRejectConnectionRequest, 7)
	copy(buf[4:], p.BDAddr[:])
	buf[10] = byte(p.Reason)
	return buf, nil
}

func (p *RejectConnectionRequestCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeRejectConnectionRequest, 7)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.Reason = StatusCode(b[6])
	return nil
}

func (p *RejectConnectionRequestCommandPacket) Opcode() Opcode {
	return OpcodeRejectConnectionRequest
}

func (p *RejectConnectionRequestCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.16
type SetConnectionEncryptionCommandPacket struct {
	ConnectionHandle uint16
	EncryptionEnable bool
}

func (p *SetConnectionEncryptionCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeSetConnectionEncryption, 3)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	if p.EncryptionEnable {
		buf[6] = 1
	}
	return buf, nil
}

func (p *SetConnectionEncryptionCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeSetConnectionEncryption, 3)
	if err != nil {
		return err
	}
	p.ConnectionHandle = binary.LittleEndian.Uint16(b)
	p.EncryptionEnable = b[2] == 1
	return nil
}

func (p *SetConnectionEncryptionCommandPacket) Opcode() Opcode {
	return OpcodeSetConnectionEncryption
}

func (p *SetConnectionEncryptionCommandPacket) handle() uint16 {
	return p.ConnectionHandle
}

// Section 7.1.19
type RemoteNameRequestCommandPacket struct {
	BDAddr                 BDAddr
	PageScanRepetitionMode PageScanRepetitionMode
	ClockOffset            uint16
}

func (p *RemoteNameRequestCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeRemoteNameRequest, 10)
	copy(buf[4:], p.BDAddr[:])
	buf[10] = byte(p.PageScanRepetitionMode)
	binary.LittleEndian.PutUint16(buf[12:], p.ClockOffset)
	return buf, nil
}

func (p *RemoteNameRequestCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeRemoteNameRequest, 10)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.PageScanRepetitionMode = PageScanRepetitionMode(b[6])
	p.ClockOffset = binary.LittleEndian.Uint16(b[8:])
	return nil
}

func (p *RemoteNameRequestCommandPacket) Opcode() Opcode {
	return OpcodeRemoteNameRequest
}

func (p *RemoteNameRequestCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.22
type ReadRemoteExtendedFeaturesCommandPacket struct {
	ConnectionHandle uint16
	PageNumber       uint8
}

func (p *ReadRemoteExtendedFeaturesCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeReadRemoteExtendedFeatures, 3)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = p.PageNumber
	return buf, nil
}

func (p *ReadRemoteExtendedFeaturesCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeReadRemoteExtendedFeatures, 3)
	if err != nil {
		return err
	}
	p.ConnectionHandle = binary.LittleEndian.Uint16(b)
	p.PageNumber = b[2]
	return nil
}

func (p *ReadRemoteExtendedFeaturesCommandPacket) Opcode() Opcode {
	return OpcodeReadRemoteExtendedFeatures
}

func (p *ReadRemoteExtendedFeaturesCommandPacket) handle() uint16 {
	return p.ConnectionHandle
}
