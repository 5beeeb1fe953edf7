package hci

import (
	"encoding/binary"
)

// unmarshalAddressEvent parses the events whose only parameter is a BD_ADDR.
func unmarshalAddressEvent(buf []byte, code EventCode, addr *BDAddr) error {
	b, err := eventParams(buf, code, 6)
	if err != nil {
		return err
	}
	copy(addr[:], b)
	return nil
}

func marshalAddressEvent(code EventCode, addr BDAddr) []byte {
	buf := newEventBuffer(code, 6)
	copy(buf[3:], addr[:])
	return buf
}

// Section 7.7.23
type LinkKeyRequestEventPacket struct {
	BDAddr BDAddr
}

func (p *LinkKeyRequestEventPacket) EventCode() EventCode {
	return EventCodeLinkKeyRequest
}

func (p *LinkKeyRequestEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *LinkKeyRequestEventPacket) Marshal() ([]byte, error) {
	return marshalAddressEvent(EventCodeLinkKeyRequest, p.BDAddr), nil
}

func (p *LinkKeyRequestEventPacket) Unmarshal(buf []byte) error {
	return unmarshalAddressEvent(buf, EventCodeLinkKeyRequest, &p.BDAddr)
}

// Section 7.7.24
type LinkKeyNotificationEventPacket struct {
	BDAddr  BDAddr
	LinkKey LinkKey
	KeyType LinkKeyType
}

func (p *LinkKeyNotificationEventPacket) EventCode() EventCode {
	return EventCodeLinkKeyNotification
}

func (p *LinkKeyNotificationEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *LinkKeyNotificationEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeLinkKeyNotification, 23)
	copy(buf[3:9], p.BDAddr[:])
	copy(buf[9:25], p.LinkKey[:])
	buf[25] = byte(p.KeyType)
	return buf, nil
}

func (p *LinkKeyNotificationEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeLinkKeyNotification, 23)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	copy(p.LinkKey[:], b[6:22])
	p.KeyType = LinkKeyType(b[22])
	return nil
}

// Section 7.7.40
type IOCapabilityRequestEventPacket struct {
	BDAddr BDAddr
}

func (p *IOCapabilityRequestEventPacket) EventCode() EventCode {
	return EventCodeIOCapabilityRequest
}

func (p *IOCapabilityRequestEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *IOCapabilityRequestEventPacket) Marshal() ([]byte, error) {
	return marshalAddressEvent(EventCodeIOCapabilityRequest, p.BDAddr), nil
}

func (p *IOCapabilityRequestEventPacket) Unmarshal(buf []byte) error {
	return unmarshalAddressEvent(buf, EventCodeIOCapabilityRequest, &p.BDAddr)
}

// Section 7.7.41
type IOCapabilityResponseEventPacket struct {
	BDAddr           BDAddr
	IOCapability     IOCapability
	OOBDataPresent   OOBDataPresent
	AuthRequirements AuthRequirements
}

func (p *IOCapabilityResponseEventPacket) EventCode() EventCode {
	return EventCodeIOCapabilityResponse
}

func (p *IOCapabilityResponseEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *IOCapabilityResponseEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeIOCapabilityResponse, 9)
	copy(buf[3:9], p.BDAddr[:])
	buf[9] = byte(p.IOCapability)
	buf[10] = byte(p.OOBDataPresent)
	buf[11] = byte(p.AuthRequirements)
	return buf, nil
}

func (p *IOCapabilityResponseEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeIOCapabilityResponse, 9)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.IOCapability = IOCapability(b[6])
	p.OOBDataPresent = OOBDataPresent(b[7])
	p.AuthRequirements = AuthRequirements(b[8])
	return nil
}

// Section 7.7.42
type UserConfirmationRequestEventPacket struct {
	BDAddr       BDAddr
	NumericValue uint32
}

func (p *UserConfirmationRequestEventPacket) EventCode() EventCode {
	return EventCodeUserConfirmationRequest
}

func (p *UserConfirmationRequestEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *UserConfirmationRequestEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeUserConfirmationRequest, 10)
	copy(buf[3:9], p.BDAddr[:])
	binary.LittleEndian.PutUint32(buf[9:], p.NumericValue)
	return buf, nil
}

func (p *UserConfirmationRequestEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeUserConfirmationRequest, 10)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.NumericValue = binary.LittleEndian.Uint32(b[6:])
	return nil
}

// Section 7.7.43
type UserPasskeyRequestEventPacket struct {
	BDAddr BDAddr
}

func (p *UserPasskeyRequestEventPacket) EventCode() EventCode {
	return EventCodeUserPasskeyRequest
}

func (p *UserPasskeyRequestEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *UserPasskeyRequestEventPacket) Marshal() ([]byte, error) {
	return marshalAddressEvent(EventCodeUserPasskeyRequest, p.BDAddr), nil
}

func (p *UserPasskeyRequestEventPacket) Unmarshal(buf []byte) error {
	return unmarshalAddressEvent(buf, EventCodeUserPasskeyRequest, &p.BDAddr)
}

// Section 7.7.45
type SimplePairingCompleteEventPacket struct {
	Status StatusCode
	BDAddr BDAddr
}

func (p *SimplePairingCompleteEventPacket) EventCode() EventCode {
	return EventCodeSimplePairingComplete
}

func (p *SimplePairingCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *SimplePairingCompleteEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *SimplePairingCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeSimplePairingComplete, 7)
	buf[3] = byte(p.Status)
	copy(buf[4:10], p.BDAddr[:])
	return buf, nil
}

func (p *SimplePairingCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeSimplePairingComplete, 7)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	copy(p.BDAddr[:], b[1:7])
	return nil
}

// Section 7.7.48
type UserPasskeyNotificationEventPacket struct {
	BDAddr  BDAddr
	Passkey uint32
}

func (p *UserPasskeyNotificationEventPacket) EventCode() EventCode {
	return EventCodeUserPasskeyNotification
}

func (p *UserPasskeyNotificationEventPacket) addr() BDAddr {
	return p.BDAddr
}

func (p *UserPasskeyNotificationEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeUserPasskeyNotification, 10)
	copy(buf[3:9], p.BDAddr[:])
	binary.LittleEndian.PutUint32(buf[9:], p.Passkey)
	return buf, nil
}

func (p *UserPasskeyNotificationEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeUserPasskeyNotification, 10)
	if err != nil {
		return err
	}
	copy(p.BDAddr[:], b[0:6])
	p.Passkey = binary.LittleEndian.Uint32(b[6:])
	return nil
}
