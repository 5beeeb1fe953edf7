package hci

import (
	"encoding/binary"
)

// Section 7.7.3
type ConnectionCompleteEventPacket struct {
	Status            StatusCode
	ConnectionHandle  uint16
	BDAddr            BDAddr
	LinkType          LinkType
	EncryptionEnabled bool
}

func (p *ConnectionCompleteEventPacket) EventCode() EventCode {
	return EventCodeConnectionComplete
}

func (p *ConnectionCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *ConnectionCompleteEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *ConnectionCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeConnectionComplete, 11)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	copy(buf[6:12], p.BDAddr[:])
	buf[12] = byte(p.LinkType)
	if p.EncryptionEnabled {
		buf[13] = 1
	}
	return buf, nil
}

func (p *ConnectionCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeConnectionComplete, 11)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	copy(p.BDAddr[:], b[3:9])
	p.LinkType = LinkType(b[9])
	p.EncryptionEnabled = b[10] == 1
	return nil
}

// Section 7.7.4
type ConnectionRequestEventPacket struct {
	BDAddr        BDAddr
	ClassOfDevice ClassOfDevice
	LinkType      LinkType
}

func (p *ConnectionRequestEventPacket) EventCode() EventCode {
	return EventCodeConnectionRequest
}

func (p *ConnectionRequestEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *ConnectionRequestEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeConnectionRequest, 10)
	copy(buf[3:9], p.BDAddr[:])
	copy(buf[9:12], p.ClassOfDevice[:])
	buf[12] = byte(p.LinkType)
	return buf, nil
}

func (p *ConnectionRequestEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeConnectionRequest, 10)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	copy(p.ClassOfDevice[:], b[6:9])
	p.LinkType = LinkType(b[9])
	return nil
}

// Section 7.7.5
type DisconnectionCompleteEventPacket struct {
	Status           StatusCode
	ConnectionHandle uint16
	Reason           StatusCode
}

func (p *DisconnectionCompleteEventPacket) EventCode() EventCode {
	return EventCodeDisconnectionComplete
}

func (p *DisconnectionCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *DisconnectionCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *DisconnectionCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeDisconnectionComplete, 4)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = byte(p.Reason)
	return buf, nil
}

func (p *DisconnectionCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeDisconnectionComplete, 4)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	p.Reason = StatusCode(b[3])
	return nil
}

// Section 7.7.6
type AuthenticationCompleteEventPacket struct {
	Status           StatusCode
	ConnectionHandle uint16
}

func (p *AuthenticationCompleteEventPacket) EventCode() EventCode {
	return EventCodeAuthenticationComplete
}

func (p *AuthenticationCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *AuthenticationCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *AuthenticationCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeAuthenticationComplete, 3)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	return buf, nil
}

func (p *AuthenticationCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeAuthenticationComplete, 3)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	return nil
}

// Section 7.7.8
type EncryptionChangeEventPacket struct {
	Status            StatusCode
	ConnectionHandle  uint16
	EncryptionEnabled EncryptionEnabled
}

func (p *EncryptionChangeEventPacket) EventCode() EventCode {
	return EventCodeEncryptionChange
}

func (p *EncryptionChangeEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *EncryptionChangeEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *EncryptionChangeEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeEncryptionChange, 4)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = byte(p.EncryptionEnabled)
	return buf, nil
}

func (p *EncryptionChangeEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeEncryptionChange, 4)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:])
	p.EncryptionEnabled = EncryptionEnabled(b[3])
	return nil
}
