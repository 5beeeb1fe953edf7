package l2cap

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrChannelClosed = errors.New("l2cap: channel closed")

type channelState int

const (
	channelConnecting channelState = iota
	channelConfiguring
	channelOpen
	channelClosed
)

// Channel is a connection-oriented channel in basic mode.
type Channel struct {
	s *Signaller

	psm    PSM
	local  ChannelID
	remote ChannelID
	mtu    uint16

	state         channelState
	inConfigured  bool
	outConfigured bool

	onOpen  func(*Channel, error)
	onData  func([]byte)
	onClose func(error)
}

func (c *Channel) PSM() PSM {
	return c.psm
}

func (c *Channel) LocalCID() ChannelID {
	return c.local
}

func (c *Channel) RemoteCID() ChannelID {
	return c.remote
}

// MTU is the largest payload the peer accepts.
func (c *Channel) MTU() uint16 {
	return c.mtu
}

func (c *Channel) SetDataHandler(h func([]byte)) {
	c.onData = h
}

// SetCloseHandler is called once when an open channel is closed by the peer
// or by the link going away.
func (c *Channel) SetCloseHandler(h func(error)) {
	c.onClose = h
}

func (c *Channel) Write(buf []byte) (int, error) {
	if c.state != channelOpen {
		return 0, ErrChannelClosed
	}
	if len(buf) > int(c.mtu) {
		return 0, errors.Errorf("l2cap: payload of %d bytes exceeds mtu %d", len(buf), c.mtu)
	}
	if err := c.s.writeFrame(c.remote, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Close sends a disconnection request and releases the channel.
func (c *Channel) Close() error {
	if c.state == channelClosed {
		return nil
	}
	var err error
	if c.state != channelConnecting {
		err = c.disconnect()
	}
	c.terminate(ErrChannelClosed)
	return err
}

func (c *Channel) disconnect() error {
	if c.s.closed {
		return nil
	}
	return c.s.request(&DisconnectionRequestPacket{
		Identifier:     c.s.identifier(),
		DestinationCID: c.remote,
		SourceCID:      c.local,
	}, func(Command) {})
}

func (c *Channel) maybeOpen() {
	if c.state != channelConfiguring || !c.inConfigured || !c.outConfigured {
		return
	}
	c.state = channelOpen
	c.s.log.Debug("channel open",
		zap.Uint16("psm", uint16(c.psm)),
		zap.Uint16("local", uint16(c.local)),
		zap.Uint16("remote", uint16(c.remote)),
		zap.Uint16("mtu", c.mtu))
	cb := c.onOpen
	c.onOpen = nil
	cb(c, nil)
}

// terminate releases the channel and reports err to whoever is waiting on it.
func (c *Channel) terminate(err error) {
	if c.state == channelClosed {
		return
	}
	wasOpen := c.state == channelOpen
	c.state = channelClosed
	delete(c.s.channels, c.local)

	if cb := c.onOpen; cb != nil {
		c.onOpen = nil
		cb(nil, err)
	}
	if h := c.onClose; wasOpen && h != nil {
		c.onClose = nil
		h(err)
	}
	c.onData = nil
}
