package hci

import (
	"encoding/binary"
)

// Section 7.1.10
type LinkKeyRequestReplyCommandPacket struct {
	BDAddr  BDAddr
	LinkKey LinkKey
}

func (p *LinkKeyRequestReplyCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeLinkKeyRequestReply, 22)
	copy(buf[4:], p.BDAddr[:])
	copy(buf[10:], p.LinkKey[:])
	return buf, nil
}

func (p *LinkKeyRequestReplyCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeLinkKeyRequestReply, 22)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	copy(p.LinkKey[:], b[6:22])
	return nil
}

func (p *LinkKeyRequestReplyCommandPacket) Opcode() Opcode {
	return OpcodeLinkKeyRequestReply
}

func (p *LinkKeyRequestReplyCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.29
type IOCapabilityRequestReplyCommandPacket struct {
	BDAddr           BDAddr
	IOCapability     IOCapability
	OOBDataPresent   OOBDataPresent
	AuthRequirements AuthRequirements
}

func (p *IOCapabilityRequestReplyCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeIOCapabilityRequestReply, 9)
	copy(buf[4:], p.BDAddr[:])
	buf[10] = byte(p.IOCapability)
	buf[11] = byte(p.OOBDataPresent)
	buf[12] = byte(p.AuthRequirements)
	return buf, nil
}

func (p *IOCapabilityRequestReplyCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeIOCapabilityRequestReply, 9)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.IOCapability = IOCapability(b[6])
	p.OOBDataPresent = OOBDataPresent(b[7])
	p.AuthRequirements = AuthRequirements(b[8])
	return nil
}

func (p *IOCapabilityRequestReplyCommandPacket) Opcode() Opcode {
	return OpcodeIOCapabilityRequestReply
}

func (p *IOCapabilityRequestReplyCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.36
type IOCapabilityRequestNegativeReplyCommandPacket struct {
	BDAddr BDAddr
	Reason StatusCode
}

func (p *IOCapabilityRequestNegativeReplyCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeIOCapabilityRequestNegativeReply, 7)
	copy(buf[4:], p.BDAddr[:])
	buf[10] = byte(p.Reason)
	return buf, nil
}

func (p *IOCapabilityRequestNegativeReplyCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeIOCapabilityRequestNegativeReply, 7)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.Reason = StatusCode(b[6])
	return nil
}

func (p *IOCapabilityRequestNegativeReplyCommandPacket) Opcode() Opcode {
	return OpcodeIOCapabilityRequestNegativeReply
}

func (p *IOCapabilityRequestNegativeReplyCommandPacket) addr() BDAddr {
	return p.BDAddr
}

// Section 7.1.32
type UserPasskeyRequestReplyCommandPacket struct {
	BDAddr       BDAddr
	NumericValue uint32
}

func (p *UserPasskeyRequestReplyCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeUserPasskeyRequestReply, 10)
	copy(buf[4:], p.BDAddr[:])
	binary.LittleEndian.PutUint32(buf[10:], p.NumericValue)
	return buf, nil
}

func (p *UserPasskeyRequestReplyCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeUserPasskeyRequestReply, 10)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.NumericValue = binary.LittleEndian.Uint32(b[6:])
	return nil
}

func (p *UserPasskeyRequestReplyCommandPacket) Opcode() Opcode {
	return OpcodeUserPasskeyRequestReply
}

func (p *UserPasskeyRequestReplyCommandPacket) addr() BDAddr {
	return p.BDAddr
}
