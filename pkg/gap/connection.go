package gap

import (
	"time"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/muxable/bredr/pkg/l2cap"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ChannelCallback receives an opened L2CAP channel, or nil and the reason it
// could not be opened.
type ChannelCallback func(ch *l2cap.Channel, err error)

// Connection is an open BR/EDR link to a peer together with its
// interrogation, pairing and L2CAP signalling. It must only be used from the
// dispatcher.
type Connection struct {
	peerID PeerID
	link   *hci.Link
	d      Dispatcher
	log    *zap.Logger

	interrogator *BrEdrInterrogator
	pairing      *PairingState
	signaller    *l2cap.Signaller
	request      *ConnectionRequest

	interrogated bool
	closed       bool
}

func newConnection(peerID PeerID, link *hci.Link, d Dispatcher, peers *PeerCache, request *ConnectionRequest, status StatusCallback) *Connection {
	c := &Connection{
		peerID:       peerID,
		link:         link,
		d:            d,
		log:          zap.L().Named("connection").With(zap.Stringer("peer", peerID), zap.Uint16("handle", link.Handle())),
		interrogator: NewBrEdrInterrogator(d, peers),
		signaller:    l2cap.NewSignaller(link),
		request:      request,
	}
	c.pairing = NewPairingState(peerID, link, d, status)
	link.SetFrameHandler(c.signaller.HandleFrame)
	return c
}

func (c *Connection) PeerID() PeerID {
	return c.peerID
}

func (c *Connection) Handle() uint16 {
	return c.link.Handle()
}

func (c *Connection) Link() *hci.Link {
	return c.link
}

func (c *Connection) PairingState() *PairingState {
	return c.pairing
}

// Interrogated reports whether the peer has been interrogated successfully.
func (c *Connection) Interrogated() bool {
	return c.interrogated
}

// Interrogate reads the peer's name, features and version. Once it finishes
// every caller waiting on the connection is notified.
func (c *Connection) Interrogate(cb ResultCallback) error {
	if c.closed {
		return ErrCanceled
	}
	return c.interrogator.Start(c.peerID, c.link.Handle(), func(err error) {
		if err == nil {
			c.interrogated = true
			c.log.Debug("interrogation complete")
		}
		c.notifyRequest(err)
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Connection) notifyRequest(err error) {
	r := c.request
	if r == nil {
		return
	}
	c.request = nil
	r.NotifyCallbacks(err, func() *Connection { return c })
}

// AddRequestCallback attaches a caller to the connection. The callback runs
// once interrogation completes, or right away if it already has.
func (c *Connection) AddRequestCallback(cb ConnectionCallback) {
	if c.closed {
		cb(ErrNotSupported, nil)
		return
	}
	if c.interrogated {
		cb(nil, c)
		return
	}
	if c.request == nil {
		c.request = newConnectionRequest(c.link.PeerAddress(), c.peerID, time.Now, 0)
	}
	c.request.AddCallback(cb)
}

// InitiatePairing pairs with the peer, or joins the attempt in progress.
func (c *Connection) InitiatePairing(cb PairingCallback) {
	if c.pairing.InitiatePairing(cb) != SendAuthenticationRequest {
		return
	}
	handle := c.link.Handle()
	c.d.SendCommand(hci.NewHandleCommandPacket(hci.OpcodeAuthenticationRequested, handle), hci.EventCodeCommandStatus,
		func(_ hci.TransactionID, e hci.EventPacket) {
			status := hci.EventStatus(e)
			if status == hci.StatusSuccess || c.closed {
				return
			}
			c.log.Warn("authentication requested failed", zap.Stringer("status", status))
			// The controller will not report Authentication Complete.
			c.pairing.OnAuthenticationComplete(&hci.AuthenticationCompleteEventPacket{
				Status:           status,
				ConnectionHandle: handle,
			})
		})
}

// OpenL2capChannel opens a channel to psm on the peer. It fails with
// ErrNotReady until interrogation has completed, and pairs first if the link
// is not encrypted.
func (c *Connection) OpenL2capChannel(psm l2cap.PSM, cb ChannelCallback) {
	if c.closed {
		cb(nil, ErrCanceled)
		return
	}
	if !c.interrogated {
		cb(nil, errors.Wrap(ErrNotReady, "interrogation incomplete"))
		return
	}
	if c.link.Encrypted() {
		c.signaller.OpenChannel(psm, cb)
		return
	}
	c.log.Debug("pairing before opening channel", zap.Uint16("psm", uint16(psm)))
	c.InitiatePairing(func(err error) {
		if err != nil {
			cb(nil, errors.Wrap(err, "pairing"))
			return
		}
		if c.closed {
			cb(nil, ErrCanceled)
			return
		}
		c.signaller.OpenChannel(psm, cb)
	})
}

// Disconnect asks the controller to tear the link down. The connection is
// closed once Disconnection Complete arrives.
func (c *Connection) Disconnect(reason hci.StatusCode) {
	if c.closed {
		return
	}
	c.link.Disconnect(reason)
}

// Close releases the connection: waiting callers are failed with
// ErrNotSupported, the interrogation and the pairing attempt with
// ErrCanceled, and finally the link is closed.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if r := c.request; r != nil {
		c.request = nil
		r.Close()
	}
	c.interrogator.Close()
	c.pairing.Close()
	if err := c.signaller.Close(); err != nil {
		c.log.Warn("closing signaller", zap.Error(err))
	}
	return c.link.Close()
}
