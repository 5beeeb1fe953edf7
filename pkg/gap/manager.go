package gap

import (
	"time"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/muxable/bredr/pkg/l2cap"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Controller is the part of hci.Adapter the manager drives.
type Controller interface {
	Dispatcher
	hci.ACLWriter
	AddEventHandler(code hci.EventCode, h hci.EventHandler) hci.HandlerID
	AddLEEventHandler(sub hci.LEMetaSubeventCode, h hci.EventHandler) hci.HandlerID
	RemoveEventHandler(id hci.HandlerID)
	SetACLHandler(handle uint16, h hci.ACLHandler)
	RemoveACLHandler(handle uint16)
}

// outgoing is the Create Connection currently in flight. The controller
// pages one device at a time.
type outgoing struct {
	req      *ConnectionRequest
	timer    Timer
	timedOut bool
}

// Manager owns the BR/EDR connections of one controller. It deduplicates
// connection requests, accepts inbound connections, interrogates new peers and
// routes pairing events. Except for NewManager, its methods must be called on
// the controller's dispatcher.
type Manager struct {
	ctrl     Controller
	peers    *PeerCache
	registry *Registry
	delegate PairingDelegate
	log      *zap.Logger

	retryWindow                time.Duration
	createConnectionTimeout    time.Duration
	disconnectOnPairingFailure bool
	now                        func() time.Time
	afterFunc                  func(d time.Duration, f func()) Timer

	connections map[uint16]*Connection
	outgoing    *outgoing

	// LE links are only interrogated, to fill in the peer record.
	le      *LEInterrogator
	leLinks map[uint16]PeerID

	handlers []hci.HandlerID
	closed   bool
}

func NewManager(ctrl Controller, opts ...Option) (*Manager, error) {
	m := &Manager{
		ctrl:                       ctrl,
		log:                        zap.L().Named("bredr"),
		retryWindow:                DefaultRetryWindow,
		createConnectionTimeout:    DefaultCreateConnectionTimeout,
		disconnectOnPairingFailure: true,
		now:                        time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		connections: make(map[uint16]*Connection),
		leLinks:     make(map[uint16]PeerID),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.peers == nil {
		peers, err := NewPeerCache(DefaultPeerCacheSize, nil)
		if err != nil {
			return nil, err
		}
		m.peers = peers
	}
	m.registry = NewRegistry(m.now, m.retryWindow)
	m.le = NewLEInterrogator(ctrl, m.peers)

	m.handle(hci.EventCodeConnectionRequest, func(p hci.EventPacket) {
		m.onConnectionRequest(p.(*hci.ConnectionRequestEventPacket))
	})
	m.handle(hci.EventCodeConnectionComplete, func(p hci.EventPacket) {
		m.onConnectionComplete(p.(*hci.ConnectionCompleteEventPacket))
	})
	m.handleLE(hci.LEMetaSubeventCodeConnectionComplete, func(p hci.EventPacket) {
		m.onLEConnectionComplete(p.(*hci.LEConnectionCompleteEventPacket))
	})
	m.handle(hci.EventCodeDisconnectionComplete, func(p hci.EventPacket) {
		m.onDisconnectionComplete(p.(*hci.DisconnectionCompleteEventPacket))
	})
	m.handle(hci.EventCodeEncryptionChange, func(p hci.EventPacket) {
		e := p.(*hci.EncryptionChangeEventPacket)
		if c := m.connections[e.ConnectionHandle]; c != nil {
			c.link.HandleEncryptionChange(e)
		}
	})
	m.handle(hci.EventCodeAuthenticationComplete, func(p hci.EventPacket) {
		e := p.(*hci.AuthenticationCompleteEventPacket)
		if c := m.connections[e.ConnectionHandle]; c != nil {
			c.pairing.OnAuthenticationComplete(e)
		}
	})
	m.handle(hci.EventCodeLinkKeyRequest, func(p hci.EventPacket) {
		m.onLinkKeyRequest(p.(*hci.LinkKeyRequestEventPacket))
	})
	m.handle(hci.EventCodeLinkKeyNotification, func(p hci.EventPacket) {
		m.onLinkKeyNotification(p.(*hci.LinkKeyNotificationEventPacket))
	})
	m.handle(hci.EventCodeIOCapabilityRequest, func(p hci.EventPacket) {
		e := p.(*hci.IOCapabilityRequestEventPacket)
		c := m.connectionByAddress(e.BDAddr)
		if c == nil {
			m.send(&hci.IOCapabilityRequestNegativeReplyCommandPacket{BDAddr: e.BDAddr, Reason: hci.StatusPairingNotAllowed})
			return
		}
		c.pairing.OnIOCapabilityRequest(e)
	})
	m.handle(hci.EventCodeIOCapabilityResponse, func(p hci.EventPacket) {
		e := p.(*hci.IOCapabilityResponseEventPacket)
		if c := m.connectionByAddress(e.BDAddr); c != nil {
			c.pairing.OnIOCapabilityResponse(e)
		}
	})
	m.handle(hci.EventCodeUserConfirmationRequest, func(p hci.EventPacket) {
		e := p.(*hci.UserConfirmationRequestEventPacket)
		c := m.connectionByAddress(e.BDAddr)
		if c == nil {
			m.send(hci.NewAddressCommandPacket(hci.OpcodeUserConfirmationRequestNegativeReply, e.BDAddr))
			return
		}
		c.pairing.OnUserConfirmationRequest(e)
	})
	m.handle(hci.EventCodeUserPasskeyRequest, func(p hci.EventPacket) {
		e := p.(*hci.UserPasskeyRequestEventPacket)
		c := m.connectionByAddress(e.BDAddr)
		if c == nil {
			m.send(hci.NewAddressCommandPacket(hci.OpcodeUserPasskeyRequestNegativeReply, e.BDAddr))
			return
		}
		c.pairing.OnUserPasskeyRequest(e)
	})
	m.handle(hci.EventCodeUserPasskeyNotification, func(p hci.EventPacket) {
		e := p.(*hci.UserPasskeyNotificationEventPacket)
		if c := m.connectionByAddress(e.BDAddr); c != nil {
			c.pairing.OnUserPasskeyNotification(e)
		}
	})
	m.handle(hci.EventCodeSimplePairingComplete, func(p hci.EventPacket) {
		e := p.(*hci.SimplePairingCompleteEventPacket)
		if c := m.connectionByAddress(e.BDAddr); c != nil {
			c.pairing.OnSimplePairingComplete(e)
		}
	})
	return m, nil
}

func (m *Manager) handle(code hci.EventCode, h hci.EventHandler) {
	m.handlers = append(m.handlers, m.ctrl.AddEventHandler(code, func(p hci.EventPacket) {
		if !m.closed {
			h(p)
		}
	}))
}

func (m *Manager) handleLE(sub hci.LEMetaSubeventCode, h hci.EventHandler) {
	m.handlers = append(m.handlers, m.ctrl.AddLEEventHandler(sub, func(p hci.EventPacket) {
		if !m.closed {
			h(p)
		}
	}))
}

func (m *Manager) send(p hci.CommandPacket) {
	m.ctrl.SendCommand(p, hci.EventCodeCommandComplete, func(_ hci.TransactionID, e hci.EventPacket) {
		if err := fromEvent(e); err != nil {
			m.log.Warn("command failed", zap.Uint16("opcode", uint16(p.Opcode())), zap.Error(err))
		}
	})
}

func (m *Manager) Peers() *PeerCache {
	return m.peers
}

func (m *Manager) connectionByAddress(addr hci.BDAddr) *Connection {
	for _, c := range m.connections {
		if c.link.PeerAddress() == addr {
			return c
		}
	}
	return nil
}

func (m *Manager) connectionByPeer(id PeerID) *Connection {
	for _, c := range m.connections {
		if c.peerID == id {
			return c
		}
	}
	return nil
}

// Connection returns the open connection to the peer, or nil.
func (m *Manager) Connection(id PeerID) *Connection {
	return m.connectionByPeer(id)
}

// Connect connects to a known peer. cb is called once the connection is
// interrogated, or with the reason it could not be established.
func (m *Manager) Connect(id PeerID, cb ConnectionCallback) error {
	peer := m.peers.FindByID(id)
	if peer == nil {
		return errors.Wrapf(ErrNotFound, "peer %v", id)
	}
	m.connect(peer, cb)
	return nil
}

// RequestConnection connects to addr, creating a peer for it if needed.
func (m *Manager) RequestConnection(addr hci.BDAddr, cb ConnectionCallback) PeerID {
	peer := m.peers.FindOrCreate(addr)
	m.connect(peer, cb)
	return peer.ID
}

func (m *Manager) connect(peer *Peer, cb ConnectionCallback) {
	if m.closed {
		cb(ErrCanceled, nil)
		return
	}
	if c := m.connectionByPeer(peer.ID); c != nil {
		c.AddRequestCallback(cb)
		return
	}
	req, created := m.registry.GetOrCreate(peer.Address, peer.ID)
	req.AddCallback(cb)
	if created {
		m.log.Debug("connection requested", zap.Stringer("peer", peer.ID), zap.Stringer("addr", peer.Address))
	}
	m.tryCreateNextConnection()
}

// tryCreateNextConnection pages the oldest requested peer, unless a page is
// already in progress.
func (m *Manager) tryCreateNextConnection() {
	if m.outgoing != nil || m.closed {
		return
	}
	req := m.registry.Find(func(r *ConnectionRequest) bool {
		return r.AwaitingOutgoing() && !r.HasIncoming() && m.connectionByAddress(r.Address()) == nil
	})
	if req == nil {
		return
	}
	m.createConnection(req)
}

func (m *Manager) createConnection(req *ConnectionRequest) {
	p := &hci.CreateConnectionCommandPacket{
		BDAddr:                 req.Address(),
		PacketType:             hci.DefaultACLPacketTypes,
		PageScanRepetitionMode: hci.PageScanRepetitionModeR2,
		AllowRoleSwitch:        true,
	}
	if peer := m.peers.FindByID(req.PeerID()); peer != nil {
		if peer.PageScanRepetitionMode != nil {
			p.PageScanRepetitionMode = *peer.PageScanRepetitionMode
		}
		if peer.ClockOffset != nil {
			p.ClockOffset = *peer.ClockOffset | 0x8000
		}
	}

	req.RecordCreateConnectionAttempt()
	attempt := &outgoing{req: req}
	m.outgoing = attempt
	attempt.timer = m.afterFunc(m.createConnectionTimeout, func() {
		m.ctrl.Post(func() { m.onCreateConnectionTimeout(attempt) })
	})
	m.log.Info("creating connection", zap.Stringer("addr", req.Address()))
	m.ctrl.SendCommand(p, hci.EventCodeCommandStatus, func(_ hci.TransactionID, e hci.EventPacket) {
		if err := fromEvent(e); err != nil {
			m.onOutgoingFailed(attempt, errors.Wrap(err, "create connection"))
		}
	})
}

func (m *Manager) onCreateConnectionTimeout(attempt *outgoing) {
	if m.outgoing != attempt || m.closed {
		return
	}
	m.log.Info("create connection timed out", zap.Stringer("addr", attempt.req.Address()))
	attempt.timedOut = true
	// Connection Complete follows, failed, once the page is canceled.
	m.send(hci.NewAddressCommandPacket(hci.OpcodeCreateConnectionCancel, attempt.req.Address()))
}

func (m *Manager) finishOutgoing(attempt *outgoing) {
	if m.outgoing == attempt {
		m.outgoing = nil
	}
	attempt.timer.Stop()
}

func (m *Manager) onOutgoingFailed(attempt *outgoing, err error) {
	if m.outgoing != attempt {
		return
	}
	m.finishOutgoing(attempt)
	m.failRequest(attempt.req, err)
	m.tryCreateNextConnection()
}

// failRequest retries req if the failure allows it, and otherwise fails every
// caller waiting on it.
func (m *Manager) failRequest(req *ConnectionRequest, err error) {
	if m.registry.Get(req.Address()) != req {
		return
	}
	if req.ShouldRetry(err) {
		m.log.Info("retrying connection", zap.Stringer("addr", req.Address()), zap.Error(err))
		return
	}
	m.log.Warn("connection failed", zap.Stringer("addr", req.Address()), zap.Error(err))
	m.registry.Remove(req.Address(), err)
}

func (m *Manager) onConnectionRequest(e *hci.ConnectionRequestEventPacket) {
	if e.LinkType != hci.LinkTypeACL {
		m.log.Info("rejecting synchronous connection", zap.Stringer("addr", e.BDAddr))
		m.reject(e.BDAddr, hci.StatusConnectionRejectedLimitedResources)
		return
	}
	if m.connectionByAddress(e.BDAddr) != nil {
		m.log.Warn("rejecting duplicate connection", zap.Stringer("addr", e.BDAddr))
		m.reject(e.BDAddr, hci.StatusConnectionRejectedBadBDAddr)
		return
	}

	peer := m.peers.FindOrCreate(e.BDAddr)
	req, _ := m.registry.GetOrCreate(e.BDAddr, peer.ID)
	req.BeginIncoming()
	role := hci.RolePeripheral
	if r, ok := req.RoleChange(); ok {
		role = r
	}
	m.log.Info("accepting connection", zap.Stringer("addr", e.BDAddr), zap.Stringer("role", role))
	m.ctrl.SendCommand(&hci.AcceptConnectionRequestCommandPacket{
		BDAddr: e.BDAddr,
		Role:   role,
	}, hci.EventCodeCommandStatus, func(_ hci.TransactionID, p hci.EventPacket) {
		err := fromEvent(p)
		if err == nil || m.registry.Get(e.BDAddr) != req {
			return
		}
		m.log.Warn("accept connection request failed", zap.Error(err))
		req.CompleteIncoming()
		if !req.AwaitingOutgoing() {
			m.registry.Remove(e.BDAddr, err)
		}
		m.tryCreateNextConnection()
	})
}

func (m *Manager) reject(addr hci.BDAddr, reason hci.StatusCode) {
	m.ctrl.SendCommand(&hci.RejectConnectionRequestCommandPacket{
		BDAddr: addr,
		Reason: reason,
	}, hci.EventCodeCommandStatus, func(_ hci.TransactionID, p hci.EventPacket) {
		if err := fromEvent(p); err != nil {
			m.log.Warn("reject connection request failed", zap.Error(err))
		}
	})
}

func (m *Manager) onConnectionComplete(e *hci.ConnectionCompleteEventPacket) {
	if e.LinkType != hci.LinkTypeACL {
		return
	}
	var attempt *outgoing
	if m.outgoing != nil && m.outgoing.req.Address() == e.BDAddr {
		attempt = m.outgoing
		m.finishOutgoing(attempt)
	}
	req := m.registry.Get(e.BDAddr)
	incoming := false
	if req != nil {
		incoming = req.HasIncoming()
		req.CompleteIncoming()
	}

	if err := fromStatus(e.Status); err != nil {
		if attempt != nil && attempt.timedOut {
			err = errors.Wrapf(ErrTimedOut, "create connection canceled after %v: %v", m.createConnectionTimeout, e.Status)
		}
		switch {
		case req != nil && attempt == nil && req.AwaitingOutgoing():
			// The peer's attempt failed but local callers still want the
			// link, so page it ourselves.
			m.log.Info("incoming connection failed", zap.Stringer("addr", e.BDAddr), zap.Error(err))
		case req != nil:
			m.failRequest(req, err)
		default:
			m.log.Warn("connection failed", zap.Stringer("addr", e.BDAddr), zap.Error(err))
		}
		m.tryCreateNextConnection()
		return
	}

	if c, ok := m.connections[e.ConnectionHandle]; ok {
		m.log.Error("connection complete for handle in use",
			zap.Uint16("handle", e.ConnectionHandle),
			zap.Stringer("peer", c.peerID))
		return
	}

	// An accepted connection request wins over a page to the same peer.
	role := hci.RoleCentral
	if attempt == nil || incoming {
		role = hci.RolePeripheral
		if req != nil {
			if r, ok := req.RoleChange(); ok {
				role = r
			}
		}
	}
	m.registry.Detach(e.BDAddr)
	peer := m.peers.FindOrCreate(e.BDAddr)
	m.peers.SetConnected(peer.ID, true)

	link := hci.NewLink(m.ctrl, m.ctrl, e.ConnectionHandle, e.BDAddr, role, hci.LinkTypeACL)
	c := newConnection(peer.ID, link, m.ctrl, m.peers, req, m.onPairingStatus)
	c.pairing.SetPairingDelegate(m.delegate)
	m.connections[e.ConnectionHandle] = c
	m.ctrl.SetACLHandler(e.ConnectionHandle, func(p *hci.ACLDataPacket) {
		if err := link.HandleACL(p); err != nil {
			m.log.Warn("dropping acl data", zap.Uint16("handle", p.ConnectionHandle), zap.Error(err))
		}
	})
	m.log.Info("connected",
		zap.Stringer("peer", peer.ID),
		zap.Stringer("addr", e.BDAddr),
		zap.Uint16("handle", e.ConnectionHandle),
		zap.Stringer("role", role))

	if err := c.Interrogate(func(err error) {
		if err == nil || errors.Is(err, ErrCanceled) {
			return
		}
		m.log.Warn("interrogation failed", zap.Stringer("peer", peer.ID), zap.Error(err))
		c.Disconnect(hci.StatusRemoteUserTerminatedConnection)
	}); err != nil {
		m.log.Warn("could not interrogate", zap.Stringer("peer", peer.ID), zap.Error(err))
	}
	m.tryCreateNextConnection()
}

func (m *Manager) onPairingStatus(handle uint16, err error) {
	if err == nil {
		return
	}
	c := m.connections[handle]
	if c == nil || !m.disconnectOnPairingFailure {
		return
	}
	c.Disconnect(hci.StatusAuthenticationFailure)
}

func (m *Manager) onLEConnectionComplete(e *hci.LEConnectionCompleteEventPacket) {
	if err := fromStatus(e.Status); err != nil {
		m.log.Debug("le connection failed", zap.Stringer("addr", e.PeerAddress), zap.Error(err))
		return
	}
	peer := m.peers.FindOrCreate(e.PeerAddress)
	m.leLinks[e.ConnectionHandle] = peer.ID
	m.log.Info("le connected",
		zap.Stringer("peer", peer.ID),
		zap.Stringer("addr", e.PeerAddress),
		zap.Uint16("handle", e.ConnectionHandle))
	if err := m.le.Start(peer.ID, e.ConnectionHandle, func(err error) {
		if err != nil && !errors.Is(err, ErrCanceled) {
			m.log.Warn("le interrogation failed", zap.Stringer("peer", peer.ID), zap.Error(err))
		}
	}); err != nil {
		m.log.Warn("could not interrogate", zap.Stringer("peer", peer.ID), zap.Error(err))
	}
}

func (m *Manager) onDisconnectionComplete(e *hci.DisconnectionCompleteEventPacket) {
	if id, ok := m.leLinks[e.ConnectionHandle]; ok && e.Status == hci.StatusSuccess {
		delete(m.leLinks, e.ConnectionHandle)
		m.le.Cancel(id)
		return
	}
	c := m.connections[e.ConnectionHandle]
	if c == nil {
		return
	}
	if err := fromStatus(e.Status); err != nil {
		m.log.Warn("disconnect failed", zap.Uint16("handle", e.ConnectionHandle), zap.Error(err))
		return
	}
	m.log.Info("disconnected",
		zap.Stringer("peer", c.peerID),
		zap.Uint16("handle", e.ConnectionHandle),
		zap.Stringer("reason", e.Reason))
	m.removeConnection(c)
	m.tryCreateNextConnection()
}

func (m *Manager) removeConnection(c *Connection) error {
	delete(m.connections, c.Handle())
	m.ctrl.RemoveACLHandler(c.Handle())
	m.peers.SetConnected(c.peerID, false)
	return c.Close()
}

func (m *Manager) onLinkKeyRequest(e *hci.LinkKeyRequestEventPacket) {
	negative := hci.NewAddressCommandPacket(hci.OpcodeLinkKeyRequestNegativeReply, e.BDAddr)
	c := m.connectionByAddress(e.BDAddr)
	peer := m.peers.FindByAddress(e.BDAddr)
	if c == nil || peer == nil || peer.Bond == nil {
		m.send(negative)
		return
	}
	// A key is only wanted when no pairing exchange is under way.
	if s := c.pairing.State(); s != StateIdle && s != StateInitiatorPairingStarted && s != StateFailed {
		m.send(negative)
		return
	}
	m.log.Debug("using bonded link key", zap.Stringer("peer", peer.ID))
	c.link.SetLinkKey(peer.Bond.Key, peer.Bond.Type)
	m.send(&hci.LinkKeyRequestReplyCommandPacket{
		BDAddr:  e.BDAddr,
		LinkKey: peer.Bond.Key,
	})
}

func (m *Manager) onLinkKeyNotification(e *hci.LinkKeyNotificationEventPacket) {
	c := m.connectionByAddress(e.BDAddr)
	if c == nil {
		return
	}
	peerID := c.peerID
	if !c.pairing.OnLinkKeyNotification(e) {
		return
	}
	if err := m.peers.StoreBrEdrBond(peerID, BrEdrBond{Key: e.LinkKey, Type: e.KeyType}); err != nil {
		m.log.Warn("failed to store bond", zap.Stringer("peer", peerID), zap.Error(err))
	}
}

// Pair pairs with a connected peer.
func (m *Manager) Pair(id PeerID, cb PairingCallback) {
	c := m.connectionByPeer(id)
	if c == nil {
		cb(errors.Wrapf(ErrNotFound, "no connection to %v", id))
		return
	}
	c.InitiatePairing(cb)
}

// OpenL2capChannel opens a channel to psm on a connected peer.
func (m *Manager) OpenL2capChannel(id PeerID, psm l2cap.PSM, cb ChannelCallback) {
	c := m.connectionByPeer(id)
	if c == nil {
		cb(nil, errors.Wrapf(ErrNotFound, "no connection to %v", id))
		return
	}
	c.OpenL2capChannel(psm, cb)
}

// Disconnect tears down the connection to the peer, or abandons the
// connection request for it.
func (m *Manager) Disconnect(id PeerID) error {
	if c := m.connectionByPeer(id); c != nil {
		c.Disconnect(hci.StatusRemoteUserTerminatedConnection)
		return nil
	}
	peer := m.peers.FindByID(id)
	if peer == nil {
		return errors.Wrapf(ErrNotFound, "peer %v", id)
	}
	req := m.registry.Get(peer.Address)
	if req == nil {
		return errors.Wrapf(ErrNotFound, "no connection to %v", id)
	}
	if m.outgoing != nil && m.outgoing.req == req {
		m.send(hci.NewAddressCommandPacket(hci.OpcodeCreateConnectionCancel, peer.Address))
	}
	m.registry.Remove(peer.Address, ErrCanceled)
	return nil
}

// Close releases every connection and fails every pending request. It does
// not disconnect links.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for _, id := range m.handlers {
		m.ctrl.RemoveEventHandler(id)
	}
	m.handlers = nil
	if m.outgoing != nil {
		m.outgoing.timer.Stop()
		m.outgoing = nil
	}
	m.registry.Close()
	m.le.Close()
	m.leLinks = make(map[uint16]PeerID)
	var err error
	for _, c := range m.connections {
		err = multierr.Append(err, m.removeConnection(c))
	}
	return err
}
