package hci

import (
	"bytes"
	"encoding/binary"
)

const remoteNameLength = 248

// Section 7.7.7
type RemoteNameRequestCompleteEventPacket struct {
	Status     StatusCode
	BDAddr     BDAddr
	RemoteName string
}

func (p *RemoteNameRequestCompleteEventPacket) EventCode() EventCode {
	return EventCodeRemoteNameRequestComplete
}

func (p *RemoteNameRequestCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *RemoteNameRequestCompleteEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *RemoteNameRequestCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeRemoteNameRequestComplete, 7+remoteNameLength)
	buf[3] = byte(p.Status)
	copy(buf[4:10], p.BDAddr[:])
	copy(buf[10:10+remoteNameLength-1], p.RemoteName)
	return buf, nil
}

func (p *RemoteNameRequestCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeRemoteNameRequestComplete, 7+remoteNameLength)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	copy(p.BDAddr[:], b[1:7])
	name := b[7:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	p.RemoteName = string(name)
	return nil
}

// Section 7.7.11
type ReadRemoteSupportedFeaturesCompleteEventPacket struct {
	Status           StatusCode
	ConnectionHandle uint16
	LMPFeatures      uint64
}

func (p *ReadRemoteSupportedFeaturesCompleteEventPacket) EventCode() EventCode {
	return EventCodeReadRemoteSupportedFeaturesComplete
}

func (p *ReadRemoteSupportedFeaturesCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *ReadRemoteSupportedFeaturesCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *ReadRemoteSupportedFeaturesCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeReadRemoteSupportedFeaturesComplete, 11)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	binary.LittleEndian.PutUint64(buf[6:], p.LMPFeatures)
	return buf, nil
}

func (p *ReadRemoteSupportedFeaturesCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeReadRemoteSupportedFeaturesComplete, 11)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	p.LMPFeatures = binary.LittleEndian.Uint64(b[3:])
	return nil
}

// Section 7.7.34
type ReadRemoteExtendedFeaturesCompleteEventPacket struct {
	Status              StatusCode
	ConnectionHandle    uint16
	PageNumber          uint8
	MaxPageNumber       uint8
	ExtendedLMPFeatures uint64
}

func (p *ReadRemoteExtendedFeaturesCompleteEventPacket) EventCode() EventCode {
	return EventCodeReadRemoteExtendedFeaturesComplete
}

func (p *ReadRemoteExtendedFeaturesCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *ReadRemoteExtendedFeaturesCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *ReadRemoteExtendedFeaturesCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeReadRemoteExtendedFeaturesComplete, 13)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = p.PageNumber
	buf[7] = p.MaxPageNumber
	binary.LittleEndian.PutUint64(buf[8:], p.ExtendedLMPFeatures)
	return buf, nil
}

func (p *ReadRemoteExtendedFeaturesCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeReadRemoteExtendedFeaturesComplete, 13)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	p.PageNumber = b[3]
	p.MaxPageNumber = b[4]
	p.ExtendedLMPFeatures = binary.LittleEndian.Uint64(b[5:])
	return nil
}

// Section 7.7.12
type ReadRemoteVersionInformationCompleteEventPacket struct {
	Status           StatusCode
	ConnectionHandle uint16
	Version          uint8
	Manufacturer     uint16
	Subversion       uint16
}

func (p *ReadRemoteVersionInformationCompleteEventPacket) EventCode() EventCode {
	return EventCodeReadRemoteVersionInformationComplete
}

func (p *ReadRemoteVersionInformationCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *ReadRemoteVersionInformationCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *ReadRemoteVersionInformationCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeReadRemoteVersionInformationComplete, 8)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = p.Version
	binary.LittleEndian.PutUint16(buf[7:], p.Manufacturer)
	binary.LittleEndian.PutUint16(buf[9:], p.Subversion)
	return buf, nil
}

func (p *ReadRemoteVersionInformationCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeReadRemoteVersionInformationComplete, 8)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	p.Version = b[3]
	p.Manufacturer = binary.LittleEndian.Uint16(b[4:])
	p.Subversion = binary.LittleEndian.Uint16(b[6:])
	return nil
}

// Section 7.7.65.4
type LEReadRemoteFeaturesCompleteEventPacket struct {
	Status           StatusCode
	ConnectionHandle uint16
	LEFeatures       uint64
}

func (p *LEReadRemoteFeaturesCompleteEventPacket) EventCode() EventCode {
	return EventCodeLEMeta
}

func (p *LEReadRemoteFeaturesCompleteEventPacket) SubeventCode() LEMetaSubeventCode {
	return LEMetaSubeventCodeReadRemoteUsedFeaturesComplete
}

func (p *LEReadRemoteFeaturesCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *LEReadRemoteFeaturesCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *LEReadRemoteFeaturesCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeLEMeta, 12)
	buf[3] = byte(LEMetaSubeventCodeReadRemoteUsedFeaturesComplete)
	buf[4] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[5:], p.ConnectionHandle)
	binary.LittleEndian.PutUint64(buf[7:], p.LEFeatures)
	return buf, nil
}

func (p *LEReadRemoteFeaturesCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := leEventParams(buf, LEMetaSubeventCodeReadRemoteUsedFeaturesComplete, 11)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	p.LEFeatures = binary.LittleEndian.Uint64(b[3:])
	return nil
}
