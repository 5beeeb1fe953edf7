package l2cap

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var (
	errInvalidOpcode = errors.New("invalid opcode")
	errInvalidLength = errors.New("invalid length")
)

type SignallingPacket interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Command is implemented by every signalling packet; the identifier pairs
// requests with responses.
type Command interface {
	SignallingPacket
	Code() Opcode
	ID() uint8
}

func UnmarshalSignallingPacket(buf []byte) (Command, error) {
	if len(buf) < 4 {
		return nil, io.ErrShortBuffer
	}
	var p Command
	switch Opcode(buf[0]) {
	case OpcodeCommandRejectResponse:
		p = &CommandRejectResponsePacket{}
	case OpcodeConnectionRequest:
		p = &ConnectionRequestPacket{}
	case OpcodeConnectionResponse:
		p = &ConnectionResponsePacket{}
	case OpcodeConfigurationRequest:
		p = &ConfigurationRequestPacket{}
	case OpcodeConfigurationResponse:
		p = &ConfigurationResponsePacket{}
	case OpcodeDisconnectionRequest:
		p = &DisconnectionRequestPacket{}
	case OpcodeDisconnectionResponse:
		p = &DisconnectionResponsePacket{}
	case OpcodeEchoRequest:
		p = &EchoRequestPacket{}
	case OpcodeEchoResponse:
		p = &EchoResponsePacket{}
	case OpcodeInformationRequest:
		p = &InformationRequestPacket{}
	case OpcodeInformationResponse:
		p = &InformationResponsePacket{}
	default:
		return nil, errors.Wrapf(errInvalidOpcode, "0x%02x", buf[0])
	}
	return p, p.Unmarshal(buf)
}

// newSignallingBuffer allocates a command with its four byte header filled in.
func newSignallingBuffer(op Opcode, id uint8, dlen int) []byte {
	b := make([]byte, 4+dlen)
	b[0] = byte(op)
	b[1] = id
	binary.LittleEndian.PutUint16(b[2:], uint16(dlen))
	return b
}

// signallingData validates the header of a command and returns its data.
// A dlen of -1 accepts any length.
func signallingData(buf []byte, op Opcode, dlen int) (uint8, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, io.ErrShortBuffer
	}
	if buf[0] != byte(op) {
		return 0, nil, errInvalidOpcode
	}
	n := int(binary.LittleEndian.Uint16(buf[2:]))
	if n != len(buf)-4 || (dlen >= 0 && n != dlen) {
		return 0, nil, errInvalidLength
	}
	return buf[1], buf[4:], nil
}

type CommandRejectReason uint16

const (
	CommandRejectReasonCommandNotUnderstood CommandRejectReason = 0x0000
	CommandRejectReasonSignalingMTUExceeded CommandRejectReason = 0x0001
	CommandRejectReasonInvalidCIDInRequest  CommandRejectReason = 0x0002
)

type CommandRejectResponsePacket struct {
	CommandRejectReason
	Identifier uint8
	ReasonData []byte
}

func (p *CommandRejectResponsePacket) Code() Opcode { return OpcodeCommandRejectResponse }
func (p *CommandRejectResponsePacket) ID() uint8 { return p.Identifier }

func (p *CommandRejectResponsePacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeCommandRejectResponse, p.Identifier, 2+len(p.ReasonData))
	binary.LittleEndian.PutUint16(b[4:], uint16(p.CommandRejectReason))
	copy(b[6:], p.ReasonData)
	return b, nil
}

func (p *CommandRejectResponsePacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeCommandRejectResponse, -1)
	if err != nil {
		return err
	}
	if len(d) < 2 {
		return io.ErrShortBuffer
	}
	p.Identifier = id
	p.CommandRejectReason = CommandRejectReason(binary.LittleEndian.Uint16(d))
	p.ReasonData = d[2:]
	return nil
}

type ConnectionRequestPacket struct {
	Identifier uint8
	PSM        PSM
	SourceCID  ChannelID
}

func (p *ConnectionRequestPacket) Code() Opcode { return OpcodeConnectionRequest }
func (p *ConnectionRequestPacket) ID() uint8 { return p.Identifier }

func (p *ConnectionRequestPacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeConnectionRequest, p.Identifier, 4)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.PSM))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	return b, nil
}

func (p *ConnectionRequestPacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeConnectionRequest, 4)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.PSM = PSM(binary.LittleEndian.Uint16(d))
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(d[2:]))
	return nil
}

type ConnectionResponseResult uint16

const (
	ConnectionResponseResultSuccessfulConnection             ConnectionResponseResult = 0x0000
	ConnectionResponseResultPending                          ConnectionResponseResult = 0x0001
	ConnectionResponseResultRefusedPSMNotSupported           ConnectionResponseResult = 0x0002
	ConnectionResponseResultRefusedSecurityBlock             ConnectionResponseResult = 0x0003
	ConnectionResponseResultRefusedNoResourcesAvailable      ConnectionResponseResult = 0x0004
	ConnectionResponseResultRefusedInvalidSourceCID          ConnectionResponseResult = 0x0006
	ConnectionResponseResultRefusedSourceCIDAlreadyAllocated ConnectionResponseResult = 0x0007
)

type ConnectionResponseStatus uint16

const (
	ConnectionResponseStatusNoFurtherInformationAvailable ConnectionResponseStatus = 0x0000
	ConnectionResponseStatusAuthenticationPending         ConnectionResponseStatus = 0x0001
	ConnectionResponseStatusAuthorizationPending          ConnectionResponseStatus = 0x0002
)

type ConnectionResponsePacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	SourceCID      ChannelID
	Result         ConnectionResponseResult
	Status         ConnectionResponseStatus
}

func (p *ConnectionResponsePacket) Code() Opcode { return OpcodeConnectionResponse }
func (p *ConnectionResponsePacket) ID() uint8 { return p.Identifier }

func (p *ConnectionResponsePacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeConnectionResponse, p.Identifier, 8)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	binary.LittleEndian.PutUint16(b[8:], uint16(p.Result))
	binary.LittleEndian.PutUint16(b[10:], uint16(p.Status))
	return b, nil
}

func (p *ConnectionResponsePacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeConnectionResponse, 8)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(d))
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(d[2:]))
	p.Result = ConnectionResponseResult(binary.LittleEndian.Uint16(d[4:]))
	p.Status = ConnectionResponseStatus(binary.LittleEndian.Uint16(d[6:]))
	return nil
}

// Configuration option types, Section 5.
const (
	ConfigurationOptionMTU uint8 = 0x01
)

// ConfigurationOption is a type/length/value option. Types with the hint bit
// (0x80) set may be ignored by the receiver.
type ConfigurationOption struct {
	Type  uint8
	Value []byte
}

func MTUOption(mtu uint16) ConfigurationOption {
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, mtu)
	return ConfigurationOption{Type: ConfigurationOptionMTU, Value: v}
}

func marshalOptions(opts []ConfigurationOption) []byte {
	var b []byte
	for _, o := range opts {
		b = append(b, o.Type, byte(len(o.Value)))
		b = append(b, o.Value...)
	}
	return b
}

func unmarshalOptions(b []byte) ([]ConfigurationOption, error) {
	var opts []ConfigurationOption
	for len(b) > 0 {
		if len(b) < 2 || len(b) < 2+int(b[1]) {
			return nil, io.ErrShortBuffer
		}
		opts = append(opts, ConfigurationOption{Type: b[0], Value: b[2 : 2+int(b[1])]})
		b = b[2+int(b[1]):]
	}
	return opts, nil
}

type ConfigurationRequestPacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	Flags          uint16
	Options        []ConfigurationOption
}

func (p *ConfigurationRequestPacket) Code() Opcode { return OpcodeConfigurationRequest }
func (p *ConfigurationRequestPacket) ID() uint8 { return p.Identifier }

func (p *ConfigurationRequestPacket) Marshal() ([]byte, error) {
	opts := marshalOptions(p.Options)
	b := newSignallingBuffer(OpcodeConfigurationRequest, p.Identifier, 4+len(opts))
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], p.Flags)
	copy(b[8:], opts)
	return b, nil
}

func (p *ConfigurationRequestPacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeConfigurationRequest, -1)
	if err != nil {
		return err
	}
	if len(d) < 4 {
		return io.ErrShortBuffer
	}
	opts, err := unmarshalOptions(d[4:])
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(d))
	p.Flags = binary.LittleEndian.Uint16(d[2:])
	p.Options = opts
	return nil
}

type ConfigurationResult uint16

const (
	ConfigurationResultSuccess                ConfigurationResult = 0x0000
	ConfigurationResultUnacceptableParameters ConfigurationResult = 0x0001
	ConfigurationResultRejected               ConfigurationResult = 0x0002
	ConfigurationResultUnknownOptions         ConfigurationResult = 0x0003
	ConfigurationResultPending                ConfigurationResult = 0x0004
)

type ConfigurationResponsePacket struct {
	Identifier uint8
	SourceCID  ChannelID
	Flags      uint16
	Result     ConfigurationResult
	Options    []ConfigurationOption
}

func (p *ConfigurationResponsePacket) Code() Opcode { return OpcodeConfigurationResponse }
func (p *ConfigurationResponsePacket) ID() uint8 { return p.Identifier }

func (p *ConfigurationResponsePacket) Marshal() ([]byte, error) {
	opts := marshalOptions(p.Options)
	b := newSignallingBuffer(OpcodeConfigurationResponse, p.Identifier, 6+len(opts))
	binary.LittleEndian.PutUint16(b[4:], uint16(p.SourceCID))
	binary.LittleEndian.PutUint16(b[6:], p.Flags)
	binary.LittleEndian.PutUint16(b[8:], uint16(p.Result))
	copy(b[10:], opts)
	return b, nil
}

func (p *ConfigurationResponsePacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeConfigurationResponse, -1)
	if err != nil {
		return err
	}
	if len(d) < 6 {
		return io.ErrShortBuffer
	}
	opts, err := unmarshalOptions(d[6:])
	if err != nil {
		return err
	}
	p.Identifier = id
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(d))
	p.Flags = binary.LittleEndian.Uint16(d[2:])
	p.Result = ConfigurationResult(binary.LittleEndian.Uint16(d[4:]))
	p.Options = opts
	return nil
}

type DisconnectionRequestPacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	SourceCID      ChannelID
}

func (p *DisconnectionRequestPacket) Code() Opcode { return OpcodeDisconnectionRequest }
func (p *DisconnectionRequestPacket) ID() uint8 { return p.Identifier }

func (p *DisconnectionRequestPacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeDisconnectionRequest, p.Identifier, 4)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	return b, nil
}

func (p *DisconnectionRequestPacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeDisconnectionRequest, 4)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(d))
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(d[2:]))
	return nil
}

type DisconnectionResponsePacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	SourceCID      ChannelID
}

func (p *DisconnectionResponsePacket) Code() Opcode { return OpcodeDisconnectionResponse }
func (p *DisconnectionResponsePacket) ID() uint8 { return p.Identifier }

func (p *DisconnectionResponsePacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeDisconnectionResponse, p.Identifier, 4)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	return b, nil
}

func (p *DisconnectionResponsePacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeDisconnectionResponse, 4)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(d))
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(d[2:]))
	return nil
}

type EchoRequestPacket struct {
	Identifier uint8
	EchoData   []byte
}

func (p *EchoRequestPacket) Code() Opcode { return OpcodeEchoRequest }
func (p *EchoRequestPacket) ID() uint8 { return p.Identifier }

func (p *EchoRequestPacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeEchoRequest, p.Identifier, len(p.EchoData))
	copy(b[4:], p.EchoData)
	return b, nil
}

func (p *EchoRequestPacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeEchoRequest, -1)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.EchoData = d
	return nil
}

type EchoResponsePacket struct {
	Identifier uint8
	EchoData   []byte
}

func (p *EchoResponsePacket) Code() Opcode { return OpcodeEchoResponse }
func (p *EchoResponsePacket) ID() uint8 { return p.Identifier }

func (p *EchoResponsePacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeEchoResponse, p.Identifier, len(p.EchoData))
	copy(b[4:], p.EchoData)
	return b, nil
}

func (p *EchoResponsePacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeEchoResponse, -1)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.EchoData = d
	return nil
}

type InfoType uint16

const (
	InfoTypeConnectionlessMTU         InfoType = 0x0001
	InfoTypeExtendedFeaturesSupported InfoType = 0x0002
	InfoTypeFixedChannelsSupported    InfoType = 0x0003
)

type InformationRequestPacket struct {
	Identifier uint8
	InfoType
}

func (p *InformationRequestPacket) Code() Opcode { return OpcodeInformationRequest }
func (p *InformationRequestPacket) ID() uint8 { return p.Identifier }

func (p *InformationRequestPacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeInformationRequest, p.Identifier, 2)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.InfoType))
	return b, nil
}

func (p *InformationRequestPacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeInformationRequest, 2)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.InfoType = InfoType(binary.LittleEndian.Uint16(d))
	return nil
}

type InfoTypeResult uint16

const (
	InfoTypeResultSuccess      InfoTypeResult = 0x0000
	InfoTypeResultNotSupported InfoTypeResult = 0x0001
)

type InformationResponsePacket struct {
	Identifier uint8
	InfoType
	Result InfoTypeResult
	Info   []byte
}

func (p *InformationResponsePacket) Code() Opcode { return OpcodeInformationResponse }
func (p *InformationResponsePacket) ID() uint8 { return p.Identifier }

func (p *InformationResponsePacket) Marshal() ([]byte, error) {
	b := newSignallingBuffer(OpcodeInformationResponse, p.Identifier, 4+len(p.Info))
	binary.LittleEndian.PutUint16(b[4:], uint16(p.InfoType))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.Result))
	copy(b[8:], p.Info)
	return b, nil
}

func (p *InformationResponsePacket) Unmarshal(buf []byte) error {
	id, d, err := signallingData(buf, OpcodeInformationResponse, -1)
	if err != nil {
		return err
	}
	if len(d) < 4 {
		return io.ErrShortBuffer
	}
	p.Identifier = id
	p.InfoType = InfoType(binary.LittleEndian.Uint16(d))
	p.Result = InfoTypeResult(binary.LittleEndian.Uint16(d[2:]))
	p.Info = d[4:]
	return nil
}
