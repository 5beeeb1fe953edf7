package hci

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type ScanEnable uint8

const (
	ScanEnableNone           ScanEnable = 0x00
	ScanEnableInquiry        ScanEnable = 0x01
	ScanEnablePage           ScanEnable = 0x02
	ScanEnableInquiryAndPage ScanEnable = 0x03
)

// Section 7.3.18
type WriteScanEnableCommandPacket struct {
	ScanEnable ScanEnable
}

func (p *WriteScanEnableCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeWriteScanEnable, 1)
	buf[4] = byte(p.ScanEnable)
	return buf, nil
}

func (p *WriteScanEnableCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeWriteScanEnable, 1)
	if err != nil {
		return err
	}
	p.ScanEnable = ScanEnable(b[0])
	return nil
}

func (p *WriteScanEnableCommandPacket) Opcode() Opcode {
	return OpcodeWriteScanEnable
}

// Section 7.3.59
type WriteSimplePairingModeCommandPacket struct {
	Enabled bool
}

func (p *WriteSimplePairingModeCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeWriteSimplePairingMode, 1)
	if p.Enabled {
		buf[4] = 1
	}
	return buf, nil
}

func (p *WriteSimplePairingModeCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeWriteSimplePairingMode, 1)
	if err != nil {
		return err
	}
	p.Enabled = b[0] == 1
	return nil
}

func (p *WriteSimplePairingModeCommandPacket) Opcode() Opcode {
	return OpcodeWriteSimplePairingMode
}

func (a *Adapter) Reset() error {
	_, err := a.op(NewGenericCommandPacket(OpcodeReset))
	return err
}

func (a *Adapter) ReadBDAddr() (BDAddr, error) {
	var addr BDAddr
	buf, err := a.op(NewGenericCommandPacket(OpcodeReadBDAddr))
	if err != nil {
		return addr, err
	}
	if copy(addr[:], buf[1:]) != 6 {
		return addr, io.ErrShortBuffer
	}
	return addr, nil
}

func (a *Adapter) WriteScanEnable(scan ScanEnable) error {
	_, err := a.op(&WriteScanEnableCommandPacket{ScanEnable: scan})
	return err
}

func (a *Adapter) WriteSimplePairingMode(enabled bool) error {
	_, err := a.op(&WriteSimplePairingModeCommandPacket{Enabled: enabled})
	return err
}

type ReadBufferSizeResponse struct {
	ACLDataPacketLength            uint16
	SynchronousDataPacketLength    uint8
	TotalNumACLDataPackets         uint16
	TotalNumSynchronousDataPackets uint16
}

// ReadBufferSize reads the BR/EDR ACL buffer pool and resets the adapter's
// flow control to it.
func (a *Adapter) ReadBufferSize() (*ReadBufferSizeResponse, error) {
	buf, err := a.op(NewGenericCommandPacket(OpcodeReadBufferSize))
	if err != nil {
		return nil, err
	}
	if len(buf) < 8 {
		return nil, io.ErrShortBuffer
	}
	r := &ReadBufferSizeResponse{
		ACLDataPacketLength:            binary.LittleEndian.Uint16(buf[1:3]),
		SynchronousDataPacketLength:    buf[3],
		TotalNumACLDataPackets:         binary.LittleEndian.Uint16(buf[4:6]),
		TotalNumSynchronousDataPackets: binary.LittleEndian.Uint16(buf[6:8]),
	}
	a.setACLBuffers(r.ACLDataPacketLength, r.TotalNumACLDataPackets)
	return r, nil
}

type LEReadBufferSizeResponse struct {
	LEACLDataPacketLength    uint16
	TotalNumLEACLDataPackets uint8
}

// LEReadBufferSize returns zero lengths when LE shares the BR/EDR buffers.
func (a *Adapter) LEReadBufferSize() (*LEReadBufferSizeResponse, error) {
	buf, err := a.op(NewGenericCommandPacket(OpcodeLEReadBufferSize))
	if err != nil {
		return nil, err
	}
	if len(buf) < 4 {
		return nil, io.ErrShortBuffer
	}
	return &LEReadBufferSizeResponse{
		LEACLDataPacketLength:    binary.LittleEndian.Uint16(buf[1:3]),
		TotalNumLEACLDataPackets: buf[3],
	}, nil
}

// maxLocalNameLength is the size of the local name parameter.
const maxLocalNameLength = 248

// Section 7.3.11
type WriteLocalNameCommandPacket struct {
	LocalName string
}

func (p *WriteLocalNameCommandPacket) Marshal() ([]byte, error) {
	if len(p.LocalName) > maxLocalNameLength {
		return nil, errors.Errorf("local name too long: %d bytes", len(p.LocalName))
	}
	buf := newCommandBuffer(OpcodeWriteLocalName, maxLocalNameLength)
	copy(buf[4:], p.LocalName)
	return buf, nil
}

func (p *WriteLocalNameCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeWriteLocalName, maxLocalNameLength)
	if err != nil {
		return err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	p.LocalName = string(b)
	return nil
}

func (p *WriteLocalNameCommandPacket) Opcode() Opcode {
	return OpcodeWriteLocalName
}

// Section 7.3.56
type WriteExtendedInquiryResponseCommandPacket struct {
	FECRequired bool
	Data        []byte
}

func (p *WriteExtendedInquiryResponseCommandPacket) Marshal() ([]byte, error) {
	if len(p.Data) > maxEIRLength {
		return nil, io.ErrShortWrite
	}
	buf := newCommandBuffer(OpcodeWriteExtendedInquiryResponse, 1+maxEIRLength)
	if p.FECRequired {
		buf[4] = 1
	}
	copy(buf[5:], p.Data)
	return buf, nil
}

func (p *WriteExtendedInquiryResponseCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeWriteExtendedInquiryResponse, 1+maxEIRLength)
	if err != nil {
		return err
	}
	p.FECRequired = b[0] == 1
	p.Data = append([]byte(nil), b[1:]...)
	return nil
}

func (p *WriteExtendedInquiryResponseCommandPacket) Opcode() Opcode {
	return OpcodeWriteExtendedInquiryResponse
}

func (a *Adapter) WriteLocalName(name string) error {
	_, err := a.op(&WriteLocalNameCommandPacket{LocalName: name})
	return err
}

// WriteExtendedInquiryResponse sets the data returned to inquiring devices.
func (a *Adapter) WriteExtendedInquiryResponse(data ...EIRData) error {
	eir, err := MarshalEIR(data...)
	if err != nil {
		return err
	}
	_, err = a.op(&WriteExtendedInquiryResponseCommandPacket{FECRequired: true, Data: eir})
	return err
}
