package l2cap

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrSignallerClosed = errors.New("l2cap: signaller closed")
	ErrCommandRejected = errors.New("l2cap: command rejected")
)

// ConnectionRefusedError is returned when the peer refuses a channel.
type ConnectionRefusedError struct {
	PSM    PSM
	Result ConnectionResponseResult
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("l2cap: connection to psm 0x%04x refused: result 0x%04x", uint16(e.PSM), uint16(e.Result))
}

// Signaller runs the ACL-U signalling channel of one logical link. It opens
// dynamic channels and answers the peer's signalling requests. It is not
// safe for concurrent use; frames and calls must come from one goroutine.
type Signaller struct {
	w   io.Writer
	log *zap.Logger

	nextID  uint8
	nextCID ChannelID

	pending  map[uint8]func(Command)
	channels map[ChannelID]*Channel

	closed bool
}

// NewSignaller writes complete L2CAP frames to w, typically an *hci.Link.
func NewSignaller(w io.Writer) *Signaller {
	return &Signaller{
		w:        w,
		log:      zap.L().Named("l2cap"),
		nextID:   1,
		nextCID:  ChannelIDDynamicStart,
		pending:  make(map[uint8]func(Command)),
		channels: make(map[ChannelID]*Channel),
	}
}

func (s *Signaller) identifier() uint8 {
	id := s.nextID
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return id
}

func (s *Signaller) allocateCID() (ChannelID, error) {
	for i := 0; i <= int(ChannelIDDynamicEnd-ChannelIDDynamicStart); i++ {
		cid := s.nextCID
		if s.nextCID == ChannelIDDynamicEnd {
			s.nextCID = ChannelIDDynamicStart
		} else {
			s.nextCID++
		}
		if _, ok := s.channels[cid]; !ok {
			return cid, nil
		}
	}
	return 0, errors.New("l2cap: no channel ids available")
}

func (s *Signaller) writeFrame(cid ChannelID, payload []byte) error {
	f := &BFrame{ChannelID: cid, Payload: payload}
	buf, err := f.Marshal()
	if err != nil {
		return err
	}
	_, err = s.w.Write(buf)
	return err
}

func (s *Signaller) send(c Command) error {
	buf, err := c.Marshal()
	if err != nil {
		return err
	}
	s.log.Debug("tx", zap.String("data", hex.EncodeToString(buf)))
	return s.writeFrame(ChannelIDSignallingACLU, buf)
}

// request sends a command and routes the response with the same identifier
// to cb.
func (s *Signaller) request(c Command, cb func(Command)) error {
	if err := s.send(c); err != nil {
		return err
	}
	s.pending[c.ID()] = cb
	return nil
}

// HandleFrame accepts one complete basic L2CAP frame from the link.
func (s *Signaller) HandleFrame(buf []byte) {
	if s.closed {
		return
	}
	f := &BFrame{}
	if err := f.Unmarshal(buf); err != nil {
		s.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	switch {
	case f.ChannelID == ChannelIDSignallingACLU:
		cmds, err := signallingCommands(f.Payload)
		if err != nil {
			s.log.Warn("dropping malformed signalling frame", zap.Error(err))
			return
		}
		for _, c := range cmds {
			s.handleCommand(c)
		}
	case f.ChannelID >= ChannelIDDynamicStart:
		ch, ok := s.channels[f.ChannelID]
		if !ok || ch.state != channelOpen {
			s.log.Warn("received frame for unknown channel", zap.Uint16("channel", uint16(f.ChannelID)))
			return
		}
		if ch.onData != nil {
			ch.onData(f.Payload)
		}
	default:
		s.log.Debug("ignoring fixed channel", zap.Uint16("channel", uint16(f.ChannelID)))
	}
}

func (s *Signaller) handleCommand(buf []byte) {
	s.log.Debug("rx", zap.String("data", hex.EncodeToString(buf)))
	c, err := UnmarshalSignallingPacket(buf)
	if err != nil {
		s.log.Warn("rejecting signalling command", zap.Error(err))
		if err := s.send(&CommandRejectResponsePacket{
			CommandRejectReason: CommandRejectReasonCommandNotUnderstood,
			Identifier:          buf[1],
		}); err != nil {
			s.log.Warn("failed to send command reject", zap.Error(err))
		}
		return
	}

	switch c := c.(type) {
	case *ConnectionRequestPacket:
		// No services are registered on this side of the link.
		err = s.send(&ConnectionResponsePacket{
			Identifier: c.Identifier,
			SourceCID:  c.SourceCID,
			Result:     ConnectionResponseResultRefusedPSMNotSupported,
		})
	case *ConfigurationRequestPacket:
		err = s.handleConfigurationRequest(c)
	case *DisconnectionRequestPacket:
		err = s.handleDisconnectionRequest(c)
	case *EchoRequestPacket:
		err = s.send(&EchoResponsePacket{Identifier: c.Identifier, EchoData: c.EchoData})
	case *InformationRequestPacket:
		err = s.send(&InformationResponsePacket{
			Identifier: c.Identifier,
			InfoType:   c.InfoType,
			Result:     InfoTypeResultNotSupported,
		})
	default:
		cb, ok := s.pending[c.ID()]
		if !ok {
			s.log.Warn("unsolicited response", zap.Uint8("opcode", uint8(c.Code())), zap.Uint8("id", c.ID()))
			return
		}
		delete(s.pending, c.ID())
		cb(c)
	}
	if err != nil {
		s.log.Warn("failed to answer signalling command", zap.Error(err))
	}
}

func (s *Signaller) handleConfigurationRequest(p *ConfigurationRequestPacket) error {
	ch, ok := s.channels[p.DestinationCID]
	if !ok || ch.state == channelClosed {
		return s.send(&CommandRejectResponsePacket{
			CommandRejectReason: CommandRejectReasonInvalidCIDInRequest,
			Identifier:          p.Identifier,
			ReasonData:          []byte{byte(p.DestinationCID), byte(p.DestinationCID >> 8), 0, 0},
		})
	}
	for _, o := range p.Options {
		if o.Type == ConfigurationOptionMTU && len(o.Value) == 2 {
			ch.mtu = uint16(o.Value[0]) | uint16(o.Value[1])<<8
		}
	}
	if err := s.send(&ConfigurationResponsePacket{
		Identifier: p.Identifier,
		SourceCID:  ch.remote,
		Result:     ConfigurationResultSuccess,
	}); err != nil {
		return err
	}
	// The continuation flag means more options follow in another request.
	if p.Flags&0x0001 == 0 {
		ch.inConfigured = true
		ch.maybeOpen()
	}
	return nil
}

func (s *Signaller) handleDisconnectionRequest(p *DisconnectionRequestPacket) error {
	ch, ok := s.channels[p.DestinationCID]
	if !ok {
		return s.send(&CommandRejectResponsePacket{
			CommandRejectReason: CommandRejectReasonInvalidCIDInRequest,
			Identifier:          p.Identifier,
			ReasonData:          []byte{byte(p.SourceCID), byte(p.SourceCID >> 8), byte(p.DestinationCID), byte(p.DestinationCID >> 8)},
		})
	}
	err := s.send(&DisconnectionResponsePacket{
		Identifier:     p.Identifier,
		DestinationCID: p.DestinationCID,
		SourceCID:      p.SourceCID,
	})
	ch.terminate(errors.Wrap(ErrChannelClosed, "peer disconnected"))
	return err
}

// OpenChannel connects to psm on the peer and configures the channel. cb is
// called once, with the open channel or the reason it could not be opened.
func (s *Signaller) OpenChannel(psm PSM, cb func(*Channel, error)) {
	if s.closed {
		cb(nil, ErrSignallerClosed)
		return
	}
	cid, err := s.allocateCID()
	if err != nil {
		cb(nil, err)
		return
	}
	ch := &Channel{
		s:      s,
		psm:    psm,
		local:  cid,
		mtu:    DefaultMTU,
		state:  channelConnecting,
		onOpen: cb,
	}
	s.channels[cid] = ch
	log := s.log.With(zap.Uint16("psm", uint16(psm)), zap.Uint16("cid", uint16(cid)))

	var onResponse func(Command)
	onResponse = func(c Command) {
		if ch.state == channelClosed {
			// Closed while connecting; release whatever the peer allocated.
			if r, ok := c.(*ConnectionResponsePacket); ok && r.Result == ConnectionResponseResultSuccessfulConnection {
				ch.remote = r.DestinationCID
				if err := ch.disconnect(); err != nil {
					log.Warn("failed to disconnect abandoned channel", zap.Error(err))
				}
			}
			return
		}
		if ch.state != channelConnecting {
			return
		}
		switch r := c.(type) {
		case *ConnectionResponsePacket:
			switch r.Result {
			case ConnectionResponseResultSuccessfulConnection:
				ch.remote = r.DestinationCID
				ch.state = channelConfiguring
				log.Debug("connected", zap.Uint16("remote", uint16(r.DestinationCID)))
				s.configure(ch)
			case ConnectionResponseResultPending:
				// A final response follows with the same identifier.
				s.pending[r.Identifier] = onResponse
			default:
				ch.terminate(&ConnectionRefusedError{PSM: psm, Result: r.Result})
			}
		case *CommandRejectResponsePacket:
			ch.terminate(errors.Wrapf(ErrCommandRejected, "reason 0x%04x", uint16(r.CommandRejectReason)))
		default:
			ch.terminate(errors.Errorf("l2cap: unexpected response opcode 0x%02x", uint8(c.Code())))
		}
	}

	if err := s.request(&ConnectionRequestPacket{
		Identifier: s.identifier(),
		PSM:        psm,
		SourceCID:  cid,
	}, onResponse); err != nil {
		ch.terminate(err)
	}
}

func (s *Signaller) configure(ch *Channel) {
	err := s.request(&ConfigurationRequestPacket{
		Identifier:     s.identifier(),
		DestinationCID: ch.remote,
		Options:        []ConfigurationOption{MTUOption(DefaultMTU)},
	}, func(c Command) {
		if ch.state != channelConfiguring {
			return
		}
		switch r := c.(type) {
		case *ConfigurationResponsePacket:
			if r.Result != ConfigurationResultSuccess {
				if err := ch.disconnect(); err != nil {
					s.log.Warn("failed to disconnect channel", zap.Error(err))
				}
				ch.terminate(errors.Errorf("l2cap: configuration failed: result 0x%04x", uint16(r.Result)))
				return
			}
			ch.outConfigured = true
			ch.maybeOpen()
		case *CommandRejectResponsePacket:
			ch.terminate(errors.Wrapf(ErrCommandRejected, "reason 0x%04x", uint16(r.CommandRejectReason)))
		default:
			ch.terminate(errors.Errorf("l2cap: unexpected response opcode 0x%02x", uint8(c.Code())))
		}
	})
	if err != nil {
		ch.terminate(err)
	}
}

// Close terminates every channel without signalling the peer; the link is
// going away.
func (s *Signaller) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, ch := range s.channels {
		ch.terminate(ErrSignallerClosed)
	}
	s.pending = make(map[uint8]func(Command))
	return nil
}
