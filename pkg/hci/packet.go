package hci

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// ErrUnsupportedPacket is returned by Unmarshal for well-formed packets this
// package has no codec for. Readers should skip them.
var ErrUnsupportedPacket = errors.New("unsupported packet type")

var errIncorrectPacket = errors.New("incorrect packet")

type Packet interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

type CommandPacket interface {
	Packet
	Opcode() Opcode
}

type EventPacket interface {
	Packet
	EventCode() EventCode
}

type LEMetaEventPacket interface {
	EventPacket
	SubeventCode() LEMetaSubeventCode
}

// StatusEvent is implemented by events that carry a status parameter.
type StatusEvent interface {
	EventStatus() StatusCode
}

// EventStatus returns the status carried by p, or StatusSuccess if p has none.
func EventStatus(p EventPacket) StatusCode {
	if s, ok := p.(StatusEvent); ok {
		return s.EventStatus()
	}
	return StatusSuccess
}

// handleParam and addrParam are used to pair an asynchronous completion
// event with the command that caused it.
type handleParam interface {
	handle() uint16
}

type addrParam interface {
	addr() BDAddr
}

var eventFactories = map[EventCode]func() EventPacket{
	EventCodeConnectionComplete:                   func() EventPacket { return &ConnectionCompleteEventPacket{} },
	EventCodeConnectionRequest:                    func() EventPacket { return &ConnectionRequestEventPacket{} },
	EventCodeDisconnectionComplete:                func() EventPacket { return &DisconnectionCompleteEventPacket{} },
	EventCodeAuthenticationComplete:               func() EventPacket { return &AuthenticationCompleteEventPacket{} },
	EventCodeRemoteNameRequestComplete:            func() EventPacket { return &RemoteNameRequestCompleteEventPacket{} },
	EventCodeEncryptionChange:                     func() EventPacket { return &EncryptionChangeEventPacket{} },
	EventCodeReadRemoteSupportedFeaturesComplete:  func() EventPacket { return &ReadRemoteSupportedFeaturesCompleteEventPacket{} },
	EventCodeReadRemoteVersionInformationComplete: func() EventPacket { return &ReadRemoteVersionInformationCompleteEventPacket{} },
	EventCodeCommandComplete:                      func() EventPacket { return &CommandCompleteEventPacket{} },
	EventCodeCommandStatus:                        func() EventPacket { return &CommandStatusEventPacket{} },
	EventCodeNumberOfCompletedPackets:             func() EventPacket { return &NumberOfCompletedPacketsEventPacket{} },
	EventCodeLinkKeyRequest:                       func() EventPacket { return &LinkKeyRequestEventPacket{} },
	EventCodeLinkKeyNotification:                  func() EventPacket { return &LinkKeyNotificationEventPacket{} },
	EventCodeReadRemoteExtendedFeaturesComplete:   func() EventPacket { return &ReadRemoteExtendedFeaturesCompleteEventPacket{} },
	EventCodeIOCapabilityRequest:                  func() EventPacket { return &IOCapabilityRequestEventPacket{} },
	EventCodeIOCapabilityResponse:                 func() EventPacket { return &IOCapabilityResponseEventPacket{} },
	EventCodeUserConfirmationRequest:              func() EventPacket { return &UserConfirmationRequestEventPacket{} },
	EventCodeUserPasskeyRequest:                   func() EventPacket { return &UserPasskeyRequestEventPacket{} },
	EventCodeSimplePairingComplete:                func() EventPacket { return &SimplePairingCompleteEventPacket{} },
	EventCodeUserPasskeyNotification:              func() EventPacket { return &UserPasskeyNotificationEventPacket{} },
}

var leEventFactories = map[LEMetaSubeventCode]func() EventPacket{
	LEMetaSubeventCodeConnectionComplete:             func() EventPacket { return &LEConnectionCompleteEventPacket{} },
	LEMetaSubeventCodeReadRemoteUsedFeaturesComplete: func() EventPacket { return &LEReadRemoteFeaturesCompleteEventPacket{} },
}

func Unmarshal(buf []byte) (Packet, error) {
	if len(buf) == 0 {
		return nil, io.ErrShortBuffer
	}
	switch PacketType(buf[0]) {
	case PacketTypeCommand:
		p := &GenericCommandPacket{}
		if err := p.Unmarshal(buf); err != nil {
			return nil, err
		}
		return p, nil
	case PacketTypeEvent:
		if len(buf) < 3 {
			return nil, io.ErrShortBuffer
		}
		s := uint8(buf[2])
		if len(buf) != int(s)+3 {
			return nil, io.ErrShortBuffer
		}
		var newEvent func() EventPacket
		if EventCode(buf[1]) == EventCodeLEMeta {
			if s == 0 {
				return nil, io.ErrShortBuffer
			}
			newEvent = leEventFactories[LEMetaSubeventCode(buf[3])]
		} else {
			newEvent = eventFactories[EventCode(buf[1])]
		}
		if newEvent == nil {
			return nil, ErrUnsupportedPacket
		}
		p := newEvent()
		if err := p.Unmarshal(buf); err != nil {
			return nil, err
		}
		return p, nil
	case PacketTypeACLData:
		p := &ACLDataPacket{}
		if err := p.Unmarshal(buf); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, ErrUnsupportedPacket
}

func newCommandBuffer(op Opcode, plen int) []byte {
	buf := make([]byte, 4+plen)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(op))
	buf[3] = byte(plen)
	return buf
}

// commandParams validates the header of a command packet and returns its parameters.
func commandParams(buf []byte, op Opcode, plen int) ([]byte, error) {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || Opcode(binary.LittleEndian.Uint16(buf[1:])) != op {
		return nil, errIncorrectPacket
	}
	if int(buf[3]) != plen || len(buf) != 4+plen {
		return nil, io.ErrShortBuffer
	}
	return buf[4:], nil
}

func newEventBuffer(code EventCode, plen int) []byte {
	buf := make([]byte, 3+plen)
	buf[0] = byte(PacketTypeEvent)
	buf[1] = byte(code)
	buf[2] = byte(plen)
	return buf
}

// eventParams validates the header of an event packet and returns its parameters.
func eventParams(buf []byte, code EventCode, plen int) ([]byte, error) {
	if len(buf) < 3 || buf[0] != byte(PacketTypeEvent) || buf[1] != byte(code) {
		return nil, errIncorrectPacket
	}
	if int(buf[2]) != plen || len(buf) != 3+plen {
		return nil, io.ErrShortBuffer
	}
	return buf[3:], nil
}

// leEventParams is eventParams for LE meta events; the returned parameters
// start after the subevent code.
func leEventParams(buf []byte, sub LEMetaSubeventCode, plen int) ([]byte, error) {
	b, err := eventParams(buf, EventCodeLEMeta, plen+1)
	if err != nil {
		return nil, err
	}
	if b[0] != byte(sub) {
		return nil, errors.New("incorrect subevent")
	}
	return b[1:], nil
}

type ACLDataPacket struct {
	PacketBoundaryFlag uint8
	BroadcastFlag      uint8
	ConnectionHandle   uint16
	Payload            []byte
}

// Packet boundary flags, Vol 4, Part E, Section 5.4.2
const (
	PacketBoundaryFirstNonFlushable uint8 = 0b00
	PacketBoundaryContinuation      uint8 = 0b01
	PacketBoundaryFirstFlushable    uint8 = 0b10
)

func (p *ACLDataPacket) Unmarshal(buf []byte) error {
	if len(buf) < 5 {
		return io.ErrShortBuffer
	}
	if buf[0] != byte(PacketTypeACLData) {
		return errIncorrectPacket
	}
	b := binary.LittleEndian.Uint16(buf[1:])
	p.PacketBoundaryFlag = byte((b >> 12) & 0x03)
	p.BroadcastFlag = byte((b >> 14) & 0x03)
	p.ConnectionHandle = b & 0x0FFF
	s := binary.LittleEndian.Uint16(buf[3:])
	if len(buf) != int(s)+5 {
		return io.ErrShortBuffer
	}
	p.Payload = buf[5:]
	return nil
}

func (p *ACLDataPacket) Marshal() ([]byte, error) {
	if len(p.Payload) > math.MaxUint16 {
		return nil, io.ErrShortWrite
	}
	buf := make([]byte, 5)
	buf[0] = byte(PacketTypeACLData)
	binary.LittleEndian.PutUint16(buf[1:], uint16(p.ConnectionHandle)|(uint16(p.PacketBoundaryFlag)<<12)|(uint16(p.BroadcastFlag)<<14))
	binary.LittleEndian.PutUint16(buf[3:], uint16(len(p.Payload)))
	return append(buf, p.Payload...), nil
}

// GenericCommandPacket encompasses many argument-less packets.
type GenericCommandPacket struct {
	opcode Opcode
}

func NewGenericCommandPacket(opcode Opcode) *GenericCommandPacket {
	return &GenericCommandPacket{opcode}
}

func (p *GenericCommandPacket) Marshal() ([]byte, error) {
	return newCommandBuffer(p.opcode, 0), nil
}

func (p *GenericCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) {
		return errIncorrectPacket
	}
	if int(buf[3]) != 0 || len(buf) != 4 {
		return io.ErrShortBuffer
	}
	p.opcode = Opcode(binary.LittleEndian.Uint16(buf[1:3]))
	return nil
}

func (p *GenericCommandPacket) Opcode() Opcode {
	return p.opcode
}

type CommandCompleteEventPacket struct {
	NumCommandPackets uint8
	CommandOpcode     Opcode
	ReturnParameters  []byte
}

func (p *CommandCompleteEventPacket) EventCode() EventCode {
	return EventCodeCommandComplete
}

// EventStatus reports the first return parameter, which is the status for
// every command this package issues.
func (p *CommandCompleteEventPacket) EventStatus() StatusCode {
	if len(p.ReturnParameters) == 0 {
		return StatusSuccess
	}
	return StatusCode(p.ReturnParameters[0])
}

func (p *CommandCompleteEventPacket) Unmarshal(buf []byte) error {
	if len(buf) < 6 || buf[0] != byte(PacketTypeEvent) || buf[1] != byte(EventCodeCommandComplete) {
		return errIncorrectPacket
	}
	s := int(buf[2])
	if len(buf) != s+3 {
		return io.ErrShortBuffer
	}
	p.NumCommandPackets = buf[3]
	p.CommandOpcode = Opcode(binary.LittleEndian.Uint16(buf[4:]))
	p.ReturnParameters = buf[6:]
	return nil
}

func (p *CommandCompleteEventPacket) Marshal() ([]byte, error) {
	if len(p.ReturnParameters)+3 > math.MaxUint8 {
		return nil, io.ErrShortWrite
	}
	buf := newEventBuffer(EventCodeCommandComplete, 3+len(p.ReturnParameters))
	buf[3] = byte(p.NumCommandPackets)
	binary.LittleEndian.PutUint16(buf[4:], uint16(p.CommandOpcode))
	copy(buf[6:], p.ReturnParameters)
	return buf, nil
}

type CommandStatusEventPacket struct {
	Status            StatusCode
	NumCommandPackets uint8
	CommandOpcode     Opcode
}

func (p *CommandStatusEventPacket) EventCode() EventCode {
	return EventCodeCommandStatus
}

func (p *CommandStatusEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *CommandStatusEventPacket) Unmarshal(buf []byte) error {
	b, err := eventParams(buf, EventCodeCommandStatus, 4)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.NumCommandPackets = b[1]
	p.CommandOpcode = Opcode(binary.LittleEndian.Uint16(b[2:]))
	return nil
}

func (p *CommandStatusEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeCommandStatus, 4)
	buf[3] = byte(p.Status)
	buf[4] = p.NumCommandPackets
	binary.LittleEndian.PutUint16(buf[5:], uint16(p.CommandOpcode))
	return buf, nil
}

type NumberOfCompletedPacketsEventPacket struct {
	NumHandles          uint8
	ConnectionHandles   []uint16
	NumCompletedPackets []uint16
}

func (p *NumberOfCompletedPacketsEventPacket) EventCode() EventCode {
	return EventCodeNumberOfCompletedPackets
}

func (p *NumberOfCompletedPacketsEventPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeEvent) || buf[1] != byte(EventCodeNumberOfCompletedPackets) {
		return errIncorrectPacket
	}
	s := int(buf[2])
	if len(buf) != s+3 {
		return io.ErrShortBuffer
	}
	p.NumHandles = buf[3]
	if len(buf) != 4+int(p.NumHandles)*4 {
		return io.ErrShortBuffer
	}
	p.ConnectionHandles = make([]uint16, p.NumHandles)
	p.NumCompletedPackets = make([]uint16, p.NumHandles)
	for i := 0; i < int(p.NumHandles); i++ {
		p.ConnectionHandles[i] = binary.LittleEndian.Uint16(buf[4+i*4:])
		p.NumCompletedPackets[i] = binary.LittleEndian.Uint16(buf[6+i*4:])
	}
	return nil
}

func (p *NumberOfCompletedPacketsEventPacket) Marshal() ([]byte, error) {
	if len(p.ConnectionHandles) != int(p.NumHandles) || len(p.NumCompletedPackets) != int(p.NumHandles) {
		return nil, io.ErrShortWrite
	}
	buf := newEventBuffer(EventCodeNumberOfCompletedPackets, 1+int(p.NumHandles)*4)
	buf[3] = byte(p.NumHandles)
	for i := 0; i < int(p.NumHandles); i++ {
		binary.LittleEndian.PutUint16(buf[4+i*4:], p.ConnectionHandles[i])
		binary.LittleEndian.PutUint16(buf[6+i*4:], p.NumCompletedPackets[i])
	}
	return buf, nil
}

type Role uint8

const (
	RoleCentral    Role = 0
	RolePeripheral Role = 1
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

type CentralClockAccuracy uint8

const (
	CentralClockAccuracy500PPM CentralClockAccuracy = 0
	CentralClockAccuracy250PPM CentralClockAccuracy = 1
	CentralClockAccuracy150PPM CentralClockAccuracy = 2
	CentralClockAccuracy100PPM CentralClockAccuracy = 3
	CentralClockAccuracy75PPM  CentralClockAccuracy = 4
	CentralClockAccuracy50PPM  CentralClockAccuracy = 5
	CentralClockAccuracy30PPM  CentralClockAccuracy = 6
	CentralClockAccuracy20PPM  CentralClockAccuracy = 7
)

type LEConnectionCompleteEventPacket struct {
	Status               StatusCode
	ConnectionHandle     uint16
	Role                 Role
	PeerAddressType      PeerAddressType
	PeerAddress          BDAddr
	ConnectionInterval   uint16
	PeripheralLatency    uint16
	SupervisionTimeout   uint16
	CentralClockAccuracy CentralClockAccuracy
}

func (p *LEConnectionCompleteEventPacket) EventCode() EventCode {
	return EventCodeLEMeta
}

func (p *LEConnectionCompleteEventPacket) SubeventCode() LEMetaSubeventCode {
	return LEMetaSubeventCodeConnectionComplete
}

func (p *LEConnectionCompleteEventPacket) EventStatus() StatusCode {
	return p.Status
}

func (p *LEConnectionCompleteEventPacket) handle() uint16 {
	return p.ConnectionHandle
}

func (p *LEConnectionCompleteEventPacket) Marshal() ([]byte, error) {
	buf := newEventBuffer(EventCodeLEMeta, 19)
	buf[3] = byte(LEMetaSubeventCodeConnectionComplete)
	buf[4] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[5:], p.ConnectionHandle)
	buf[7] = byte(p.Role)
	buf[8] = byte(p.PeerAddressType)
	copy(buf[9:15], p.PeerAddress[:])
	binary.LittleEndian.PutUint16(buf[15:], p.ConnectionInterval)
	binary.LittleEndian.PutUint16(buf[17:], p.PeripheralLatency)
	binary.LittleEndian.PutUint16(buf[19:], p.SupervisionTimeout)
	buf[21] = byte(p.CentralClockAccuracy)
	return buf, nil
}

func (p *LEConnectionCompleteEventPacket) Unmarshal(buf []byte) error {
	b, err := leEventParams(buf, LEMetaSubeventCodeConnectionComplete, 18)
	if err != nil {
		return err
	}
	p.Status = StatusCode(b[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[1:3])
	p.Role = Role(b[3])
	p.PeerAddressType = PeerAddressType(b[4])
	copy(p.PeerAddress[:], b[5:11])
	p.ConnectionInterval = binary.LittleEndian.Uint16(b[11:13])
	p.PeripheralLatency = binary.LittleEndian.Uint16(b[13:15])
	p.SupervisionTimeout = binary.LittleEndian.Uint16(b[15:17])
	p.CentralClockAccuracy = CentralClockAccuracy(b[17])
	return nil
}
