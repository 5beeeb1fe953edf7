package hci

import (
	"encoding/binary"
)

// Section 7.3.1
type EventMask uint64

const (
	EventMaskConnectionCompleteEvent                   EventMask = (1 << 2)
	EventMaskConnectionRequestEvent                    EventMask = (1 << 3)
	EventMaskDisconnectionCompleteEvent                EventMask = (1 << 4)
	EventMaskAuthenticationCompleteEvent               EventMask = (1 << 5)
	EventMaskRemoteNameRequestCompleteEvent            EventMask = (1 << 6)
	EventMaskEncryptionChangeEvent                     EventMask = (1 << 7)
	EventMaskReadRemoteSupportedFeaturesCompleteEvent  EventMask = (1 << 10)
	EventMaskReadRemoteVersionInformationCompleteEvent EventMask = (1 << 11)
	EventMaskHardwareErrorEvent                        EventMask = (1 << 15)
	EventMaskRoleChangeEvent                           EventMask = (1 << 17)
	EventMaskLinkKeyRequestEvent                       EventMask = (1 << 22)
	EventMaskLinkKeyNotificationEvent                  EventMask = (1 << 23)
	EventMaskReadRemoteExtendedFeaturesCompleteEvent   EventMask = (1 << 28)
	EventMaskEncryptionKeyRefreshCompleteEvent         EventMask = (1 << 47)
	EventMaskIOCapabilityRequestEvent                  EventMask = (1 << 48)
	EventMaskIOCapabilityResponseEvent                 EventMask = (1 << 49)
	EventMaskUserConfirmationRequestEvent              EventMask = (1 << 50)
	EventMaskUserPasskeyRequestEvent                   EventMask = (1 << 51)
	EventMaskSimplePairingCompleteEvent                EventMask = (1 << 53)
	EventMaskUserPasskeyNotificationEvent              EventMask = (1 << 58)
	EventMaskLEMetaEvent                               EventMask = (1 << 61)
)

// EventMaskBrEdr enables every event the connection and pairing logic consumes.
const EventMaskBrEdr = EventMaskConnectionCompleteEvent |
	EventMaskConnectionRequestEvent |
	EventMaskDisconnectionCompleteEvent |
	EventMaskAuthenticationCompleteEvent |
	EventMaskRemoteNameRequestCompleteEvent |
	EventMaskEncryptionChangeEvent |
	EventMaskReadRemoteSupportedFeaturesCompleteEvent |
	EventMaskReadRemoteVersionInformationCompleteEvent |
	EventMaskHardwareErrorEvent |
	EventMaskRoleChangeEvent |
	EventMaskLinkKeyRequestEvent |
	EventMaskLinkKeyNotificationEvent |
	EventMaskReadRemoteExtendedFeaturesCompleteEvent |
	EventMaskEncryptionKeyRefreshCompleteEvent |
	EventMaskIOCapabilityRequestEvent |
	EventMaskIOCapabilityResponseEvent |
	EventMaskUserConfirmationRequestEvent |
	EventMaskUserPasskeyRequestEvent |
	EventMaskSimplePairingCompleteEvent |
	EventMaskUserPasskeyNotificationEvent |
	EventMaskLEMetaEvent

type HCISetEventMaskCommandPacket struct {
	EventMask
}

func (p *HCISetEventMaskCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeSetEventMask, 8)
	binary.LittleEndian.PutUint64(buf[4:], uint64(p.EventMask))
	return buf, nil
}

func (p *HCISetEventMaskCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeSetEventMask, 8)
	if err != nil {
		return err
	}
	p.EventMask = EventMask(binary.LittleEndian.Uint64(b))
	return nil
}

func (p *HCISetEventMaskCommandPacket) Opcode() Opcode {
	return OpcodeSetEventMask
}

func (a *Adapter) SetEventMask(mask EventMask) error {
	_, err := a.op(&HCISetEventMaskCommandPacket{EventMask: mask})
	return err
}
