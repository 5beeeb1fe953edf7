package gap

import (
	"testing"
	"time"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/muxable/bredr/pkg/l2cap"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	m     *Manager
	ctrl  *fakeController
	clock *fakeClock
	store *fakeBondStore
}

func newManagerFixture(t *testing.T, opts ...Option) *managerFixture {
	f := &managerFixture{
		ctrl:  newFakeController(),
		clock: newFakeClock(),
		store: &fakeBondStore{},
	}
	peers, err := NewPeerCache(DefaultPeerCacheSize, f.store)
	require.NoError(t, err)
	opts = append([]Option{
		OptClock(f.clock.Now),
		OptTimerFunc(f.clock.AfterFunc),
		OptPeerCache(peers),
	}, opts...)
	f.m, err = NewManager(f.ctrl, opts...)
	require.NoError(t, err)
	return f
}

func (f *managerFixture) connectionComplete(addr hci.BDAddr, handle uint16, status hci.StatusCode) {
	f.ctrl.event(&hci.ConnectionCompleteEventPacket{
		Status:           status,
		ConnectionHandle: handle,
		BDAddr:           addr,
		LinkType:         hci.LinkTypeACL,
	})
}

func (f *managerFixture) interrogate(t *testing.T, addr hci.BDAddr, handle uint16) {
	t.Helper()
	f.ctrl.answer(t, hci.OpcodeRemoteNameRequest, &hci.RemoteNameRequestCompleteEventPacket{BDAddr: addr, RemoteName: "speaker"})
	f.ctrl.answer(t, hci.OpcodeReadRemoteSupportedFeatures, &hci.ReadRemoteSupportedFeaturesCompleteEventPacket{ConnectionHandle: handle})
	f.ctrl.answer(t, hci.OpcodeReadRemoteVersionInformation, &hci.ReadRemoteVersionInformationCompleteEventPacket{ConnectionHandle: handle})
}

// connect establishes an outbound connection and interrogates the peer.
func (f *managerFixture) connect(t *testing.T, addr hci.BDAddr, handle uint16) (PeerID, *Connection) {
	t.Helper()
	var res connResult
	id := f.m.RequestConnection(addr, res.cb)
	f.ctrl.answer(t, hci.OpcodeCreateConnection, commandStatus(hci.OpcodeCreateConnection, hci.StatusSuccess))
	f.connectionComplete(addr, handle, hci.StatusSuccess)
	f.interrogate(t, addr, handle)
	require.Equal(t, 1, res.calls)
	require.NoError(t, res.err)
	require.NotNil(t, res.conn)
	return id, res.conn
}

var (
	addrA = hci.BDAddr{0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6}
	addrB = hci.BDAddr{0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6}
)

func TestManagerConnectDeduplicates(t *testing.T) {
	f := newManagerFixture(t)

	var first, second, third connResult
	id := f.m.RequestConnection(addrA, first.cb)
	assert.Equal(t, id, f.m.RequestConnection(addrA, second.cb))
	require.NoError(t, f.m.Connect(id, third.cb))

	creates := f.ctrl.commands(hci.OpcodeCreateConnection)
	require.Len(t, creates, 1)
	p := creates[0].p.(*hci.CreateConnectionCommandPacket)
	assert.Equal(t, addrA, p.BDAddr)
	assert.True(t, p.AllowRoleSwitch)
	assert.Equal(t, hci.EventCodeCommandStatus, creates[0].complete)
	timer := f.clock.lastTimer(t)
	assert.Equal(t, DefaultCreateConnectionTimeout, timer.d)

	f.ctrl.answer(t, hci.OpcodeCreateConnection, commandStatus(hci.OpcodeCreateConnection, hci.StatusSuccess))
	f.connectionComplete(addrA, 0x0040, hci.StatusSuccess)
	assert.True(t, timer.stopped)
	assert.Equal(t, 0, first.calls, "callers wait for interrogation")

	conn := f.m.Connection(id)
	require.NotNil(t, conn)
	assert.Equal(t, hci.RoleCentral, conn.Link().Role())
	assert.True(t, f.m.Peers().FindByID(id).Connected)

	f.interrogate(t, addrA, 0x0040)
	for _, res := range []connResult{first, second, third} {
		assert.Equal(t, 1, res.calls)
		assert.NoError(t, res.err)
		assert.Same(t, conn, res.conn)
	}
	assert.True(t, conn.Interrogated())

	// Further requests are answered by the open connection.
	var late connResult
	f.m.RequestConnection(addrA, late.cb)
	assert.Same(t, conn, late.conn)
	assert.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 1)
}

func TestManagerConnectUnknownPeer(t *testing.T) {
	f := newManagerFixture(t)
	err := f.m.Connect(NewPeerID(), func(error, *Connection) {
		t.Fatal("callback called")
	})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManagerPagesOneAtATime(t *testing.T) {
	f := newManagerFixture(t)

	var a, b connResult
	f.m.RequestConnection(addrA, a.cb)
	f.m.RequestConnection(addrB, b.cb)
	require.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 1)

	f.connectionComplete(addrA, 0x0040, hci.StatusSuccess)
	creates := f.ctrl.commands(hci.OpcodeCreateConnection)
	require.Len(t, creates, 2)
	assert.Equal(t, addrB, creates[1].p.(*hci.CreateConnectionCommandPacket).BDAddr)
}

func TestManagerCreateConnectionTimeout(t *testing.T) {
	f := newManagerFixture(t)

	var res connResult
	f.m.RequestConnection(addrA, res.cb)
	f.ctrl.answer(t, hci.OpcodeCreateConnection, commandStatus(hci.OpcodeCreateConnection, hci.StatusSuccess))

	f.clock.now = f.clock.now.Add(DefaultCreateConnectionTimeout)
	f.clock.lastTimer(t).fire()
	cancel := f.ctrl.commands(hci.OpcodeCreateConnectionCancel)
	require.Len(t, cancel, 1)
	assert.Equal(t, 0, res.calls)

	f.connectionComplete(addrA, 0, hci.StatusUnknownConnectionIdentifier)
	require.Equal(t, 1, res.calls)
	assert.True(t, errors.Is(res.err, ErrTimedOut))
	assert.Nil(t, res.conn)
	assert.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 1)
}

func TestManagerRetriesWithinWindow(t *testing.T) {
	f := newManagerFixture(t)

	var res connResult
	f.m.RequestConnection(addrA, res.cb)
	f.connectionComplete(addrA, 0, hci.StatusPageTimeout)
	assert.Equal(t, 0, res.calls)
	require.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 2)

	f.clock.now = f.clock.now.Add(DefaultRetryWindow + time.Second)
	f.connectionComplete(addrA, 0, hci.StatusPageTimeout)
	require.Equal(t, 1, res.calls)
	assert.True(t, errors.Is(res.err, ErrTimedOut))
	assert.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 2)
}

func TestManagerDoesNotRetryRejection(t *testing.T) {
	f := newManagerFixture(t)

	var res connResult
	f.m.RequestConnection(addrA, res.cb)
	f.connectionComplete(addrA, 0, hci.StatusConnectionRejectedLimitedResources)
	require.Equal(t, 1, res.calls)
	assert.True(t, errors.Is(res.err, ErrRejected))
	assert.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 1)
}

func TestManagerCreateConnectionCommandFails(t *testing.T) {
	f := newManagerFixture(t)

	var res connResult
	f.m.RequestConnection(addrA, res.cb)
	timer := f.clock.lastTimer(t)
	f.ctrl.answer(t, hci.OpcodeCreateConnection, commandStatus(hci.OpcodeCreateConnection, hci.StatusUnsupportedFeatureOrParameter))
	require.Equal(t, 1, res.calls)
	assert.True(t, errors.Is(res.err, ErrNotSupported))
	assert.True(t, timer.stopped)
}

func TestManagerIncomingConnection(t *testing.T) {
	f := newManagerFixture(t)

	f.ctrl.event(&hci.ConnectionRequestEventPacket{BDAddr: addrA, LinkType: hci.LinkTypeACL})
	accept := f.ctrl.pending(t, hci.OpcodeAcceptConnectionRequest).p.(*hci.AcceptConnectionRequestCommandPacket)
	assert.Equal(t, addrA, accept.BDAddr)
	assert.Equal(t, hci.RolePeripheral, accept.Role)

	// A local request during the incoming connection waits for it.
	var res connResult
	id := f.m.RequestConnection(addrA, res.cb)
	assert.Empty(t, f.ctrl.commands(hci.OpcodeCreateConnection))

	f.connectionComplete(addrA, 0x0041, hci.StatusSuccess)
	conn := f.m.Connection(id)
	require.NotNil(t, conn)
	assert.Equal(t, hci.RolePeripheral, conn.Link().Role())

	f.interrogate(t, addrA, 0x0041)
	require.Equal(t, 1, res.calls)
	assert.Same(t, conn, res.conn)
}

func TestManagerIncomingConnectionWhilePaging(t *testing.T) {
	f := newManagerFixture(t)

	var res connResult
	id := f.m.RequestConnection(addrA, res.cb)
	f.ctrl.answer(t, hci.OpcodeCreateConnection, commandStatus(hci.OpcodeCreateConnection, hci.StatusSuccess))

	// The peer connects to us before the page completes.
	f.ctrl.event(&hci.ConnectionRequestEventPacket{BDAddr: addrA, LinkType: hci.LinkTypeACL})
	accept := f.ctrl.pending(t, hci.OpcodeAcceptConnectionRequest).p.(*hci.AcceptConnectionRequestCommandPacket)
	assert.Equal(t, hci.RolePeripheral, accept.Role)

	f.connectionComplete(addrA, 0x0042, hci.StatusSuccess)
	conn := f.m.Connection(id)
	require.NotNil(t, conn)
	assert.Equal(t, hci.RolePeripheral, conn.Link().Role())

	f.interrogate(t, addrA, 0x0042)
	require.Equal(t, 1, res.calls)
	assert.Same(t, conn, res.conn)
}

func TestManagerIncomingFailureFallsBackToPaging(t *testing.T) {
	f := newManagerFixture(t)

	f.ctrl.event(&hci.ConnectionRequestEventPacket{BDAddr: addrA, LinkType: hci.LinkTypeACL})
	var res connResult
	f.m.RequestConnection(addrA, res.cb)
	assert.Empty(t, f.ctrl.commands(hci.OpcodeCreateConnection))

	f.connectionComplete(addrA, 0, hci.StatusConnectionAcceptTimeoutExceeded)
	assert.Equal(t, 0, res.calls)
	assert.Len(t, f.ctrl.commands(hci.OpcodeCreateConnection), 1)
}

func TestManagerRejectsConnectionRequests(t *testing.T) {
	f := newManagerFixture(t)

	f.ctrl.event(&hci.ConnectionRequestEventPacket{BDAddr: addrA, LinkType: hci.LinkTypeSCO})
	reject := f.ctrl.pending(t, hci.OpcodeRejectConnectionRequest)
	assert.Equal(t, hci.StatusConnectionRejectedLimitedResources, reject.p.(*hci.RejectConnectionRequestCommandPacket).Reason)
	reject.done = true

	f.connect(t, addrB, 0x0040)
	f.ctrl.event(&hci.ConnectionRequestEventPacket{BDAddr: addrB, LinkType: hci.LinkTypeACL})
	reject = f.ctrl.pending(t, hci.OpcodeRejectConnectionRequest)
	assert.Equal(t, hci.StatusConnectionRejectedBadBDAddr, reject.p.(*hci.RejectConnectionRequestCommandPacket).Reason)
	assert.Empty(t, f.ctrl.commands(hci.OpcodeAcceptConnectionRequest))
}

func TestManagerPairsAndBonds(t *testing.T) {
	f := newManagerFixture(t)
	id, conn := f.connect(t, addrA, 0x0040)

	var res resultRecorder
	f.m.Pair(id, res.cb)
	auth := f.ctrl.pending(t, hci.OpcodeAuthenticationRequested)
	assert.Equal(t, hci.EventCodeCommandStatus, auth.complete)

	f.ctrl.event(&hci.LinkKeyRequestEventPacket{BDAddr: addrA})
	assert.Len(t, f.ctrl.commands(hci.OpcodeLinkKeyRequestNegativeReply), 1)

	f.ctrl.event(&hci.IOCapabilityRequestEventPacket{BDAddr: addrA})
	assert.Len(t, f.ctrl.commands(hci.OpcodeIOCapabilityRequestReply), 1)
	f.ctrl.event(&hci.IOCapabilityResponseEventPacket{BDAddr: addrA, IOCapability: hci.IOCapabilityDisplayYesNo})
	f.ctrl.event(&hci.UserConfirmationRequestEventPacket{BDAddr: addrA, NumericValue: 1})
	assert.Len(t, f.ctrl.commands(hci.OpcodeUserConfirmationRequestReply), 1)
	f.ctrl.event(&hci.SimplePairingCompleteEventPacket{BDAddr: addrA})

	key := linkKey(0x5A)
	f.ctrl.event(&hci.LinkKeyNotificationEventPacket{
		BDAddr:  addrA,
		LinkKey: key,
		KeyType: hci.LinkKeyTypeUnauthenticatedCombinationP256,
	})
	require.Len(t, f.store.bonds, 1)
	assert.Equal(t, id, f.store.bonds[0].id)
	assert.Equal(t, key, f.store.bonds[0].bond.Key)

	f.ctrl.event(&hci.AuthenticationCompleteEventPacket{ConnectionHandle: 0x0040})
	assert.Len(t, f.ctrl.commands(hci.OpcodeSetConnectionEncryption), 1)
	assert.Empty(t, res.errs)

	f.ctrl.event(&hci.EncryptionChangeEventPacket{ConnectionHandle: 0x0040, EncryptionEnabled: hci.EncryptionE0})
	assert.Equal(t, []error{nil}, res.errs)
	assert.True(t, conn.Link().Encrypted())
	assert.Equal(t, StateIdle, conn.PairingState().State())
	assert.True(t, f.m.Peers().FindByID(id).Bonded())
}

func TestManagerAnswersLinkKeyRequestFromBond(t *testing.T) {
	f := newManagerFixture(t)
	key := linkKey(0x33)
	_, err := f.m.Peers().AddBondedPeer(NewPeerID(), addrA, BrEdrBond{Key: key, Type: hci.LinkKeyTypeAuthenticatedCombinationP256})
	require.NoError(t, err)

	// Without a connection the key is withheld.
	f.ctrl.event(&hci.LinkKeyRequestEventPacket{BDAddr: addrA})
	assert.Len(t, f.ctrl.commands(hci.OpcodeLinkKeyRequestNegativeReply), 1)

	id, conn := f.connect(t, addrA, 0x0040)
	f.ctrl.event(&hci.LinkKeyRequestEventPacket{BDAddr: addrA})
	replies := f.ctrl.commands(hci.OpcodeLinkKeyRequestReply)
	require.Len(t, replies, 1)
	assert.Equal(t, key, replies[0].p.(*hci.LinkKeyRequestReplyCommandPacket).LinkKey)
	got, _, ok := conn.Link().LinkKey()
	require.True(t, ok)
	assert.Equal(t, key, got)
	assert.Equal(t, id, conn.PeerID())
}

func TestManagerDisconnectsOnPairingFailure(t *testing.T) {
	f := newManagerFixture(t)
	id, _ := f.connect(t, addrA, 0x0040)

	var res resultRecorder
	f.m.Pair(id, res.cb)
	f.ctrl.answer(t, hci.OpcodeAuthenticationRequested, commandStatus(hci.OpcodeAuthenticationRequested, hci.StatusPairingNotAllowed))

	require.Len(t, res.errs, 1)
	assert.True(t, errors.Is(res.errs[0], ErrRejected))
	disconnect := f.ctrl.pending(t, hci.OpcodeDisconnect).p.(*hci.DisconnectCommandPacket)
	assert.Equal(t, hci.StatusAuthenticationFailure, disconnect.Reason)
}

func TestManagerKeepsLinkOnPairingFailureWhenConfigured(t *testing.T) {
	f := newManagerFixture(t, OptDisconnectOnPairingFailure(false))
	id, _ := f.connect(t, addrA, 0x0040)

	var res resultRecorder
	f.m.Pair(id, res.cb)
	f.ctrl.event(&hci.AuthenticationCompleteEventPacket{Status: hci.StatusPINOrKeyMissing, ConnectionHandle: 0x0040})
	require.Len(t, res.errs, 1)
	assert.Empty(t, f.ctrl.commands(hci.OpcodeDisconnect))
}

func TestManagerOpenL2capChannel(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.m.Peers().AddBondedPeer(NewPeerID(), addrA, BrEdrBond{Key: linkKey(1), Type: hci.LinkKeyTypeAuthenticatedCombinationP256})
	require.NoError(t, err)

	var early []error
	var res connResult
	id := f.m.RequestConnection(addrA, res.cb)
	f.connectionComplete(addrA, 0x0040, hci.StatusSuccess)
	f.m.OpenL2capChannel(id, l2cap.PSMAVDTP, func(ch *l2cap.Channel, err error) {
		assert.Nil(t, ch)
		early = append(early, err)
	})
	require.Len(t, early, 1)
	assert.True(t, errors.Is(early[0], ErrNotReady))
	f.interrogate(t, addrA, 0x0040)

	var channelErrs []error
	f.m.OpenL2capChannel(id, l2cap.PSMAVDTP, func(ch *l2cap.Channel, err error) {
		channelErrs = append(channelErrs, err)
	})
	// The link is not encrypted, so the channel waits for pairing.
	assert.Len(t, f.ctrl.commands(hci.OpcodeAuthenticationRequested), 1)
	assert.Empty(t, f.ctrl.written)

	f.ctrl.event(&hci.LinkKeyRequestEventPacket{BDAddr: addrA})
	require.Len(t, f.ctrl.commands(hci.OpcodeLinkKeyRequestReply), 1)
	f.ctrl.event(&hci.AuthenticationCompleteEventPacket{ConnectionHandle: 0x0040})
	f.ctrl.event(&hci.EncryptionChangeEventPacket{ConnectionHandle: 0x0040, EncryptionEnabled: hci.EncryptionE0})

	require.Len(t, f.ctrl.written, 1)
	frame := &l2cap.BFrame{}
	require.NoError(t, frame.Unmarshal(f.ctrl.written[0].Payload))
	assert.Equal(t, l2cap.ChannelIDSignallingACLU, frame.ChannelID)
	cmd, err := l2cap.UnmarshalSignallingPacket(frame.Payload)
	require.NoError(t, err)
	req, ok := cmd.(*l2cap.ConnectionRequestPacket)
	require.True(t, ok)
	assert.Equal(t, l2cap.PSMAVDTP, req.PSM)
	assert.Empty(t, channelErrs)

	// Losing the link fails the channel that is still being opened.
	f.ctrl.event(&hci.DisconnectionCompleteEventPacket{ConnectionHandle: 0x0040, Reason: hci.StatusRemoteUserTerminatedConnection})
	require.Len(t, channelErrs, 1)
	assert.True(t, errors.Is(channelErrs[0], l2cap.ErrSignallerClosed))
	assert.Nil(t, f.m.Connection(id))
}

func TestManagerDisconnectionComplete(t *testing.T) {
	f := newManagerFixture(t)
	id, conn := f.connect(t, addrA, 0x0040)
	require.Contains(t, f.ctrl.acl, uint16(0x0040))

	require.NoError(t, f.m.Disconnect(id))
	assert.Len(t, f.ctrl.commands(hci.OpcodeDisconnect), 1)

	f.ctrl.event(&hci.DisconnectionCompleteEventPacket{ConnectionHandle: 0x0040, Reason: hci.StatusRemoteUserTerminatedConnection})
	assert.Nil(t, f.m.Connection(id))
	assert.NotContains(t, f.ctrl.acl, uint16(0x0040))
	assert.False(t, f.m.Peers().FindByID(id).Connected)

	var res resultRecorder
	conn.InitiatePairing(res.cb)
	require.Len(t, res.errs, 1)
	assert.True(t, errors.Is(res.errs[0], ErrCanceled))
}

func TestManagerDisconnectCancelsRequest(t *testing.T) {
	f := newManagerFixture(t)

	var res connResult
	id := f.m.RequestConnection(addrA, res.cb)
	require.NoError(t, f.m.Disconnect(id))
	assert.Len(t, f.ctrl.commands(hci.OpcodeCreateConnectionCancel), 1)
	require.Equal(t, 1, res.calls)
	assert.True(t, errors.Is(res.err, ErrCanceled))

	assert.True(t, errors.Is(f.m.Disconnect(NewPeerID()), ErrNotFound))
}

func TestManagerInterrogatesLEPeers(t *testing.T) {
	f := newManagerFixture(t)

	f.ctrl.event(&hci.LEConnectionCompleteEventPacket{ConnectionHandle: 0x0050, PeerAddress: addrA})
	peer := f.m.Peers().FindByAddress(addrA)
	require.NotNil(t, peer)
	f.ctrl.answer(t, hci.OpcodeLEReadRemoteFeatures, &hci.LEReadRemoteFeaturesCompleteEventPacket{
		ConnectionHandle: 0x0050,
		LEFeatures:       0x1,
	})
	f.ctrl.answer(t, hci.OpcodeReadRemoteVersionInformation, &hci.ReadRemoteVersionInformationCompleteEventPacket{
		ConnectionHandle: 0x0050,
		Version:          0x0B,
	})
	require.NotNil(t, peer.LEFeatures)
	assert.Equal(t, uint64(1), *peer.LEFeatures)
	require.NotNil(t, peer.Version)
	assert.Equal(t, uint8(0x0B), peer.Version.Version)
	assert.Nil(t, f.m.Connection(peer.ID), "le links are not BR/EDR connections")

	// A link that drops mid-interrogation leaves the record untouched.
	f.ctrl.event(&hci.LEConnectionCompleteEventPacket{ConnectionHandle: 0x0051, PeerAddress: addrB})
	other := f.m.Peers().FindByAddress(addrB)
	require.NotNil(t, other)
	f.ctrl.event(&hci.DisconnectionCompleteEventPacket{ConnectionHandle: 0x0051})
	f.ctrl.answer(t, hci.OpcodeLEReadRemoteFeatures, &hci.LEReadRemoteFeaturesCompleteEventPacket{ConnectionHandle: 0x0051})
	assert.Nil(t, other.LEFeatures)
}

func TestManagerClose(t *testing.T) {
	f := newManagerFixture(t)

	var pending connResult
	f.m.RequestConnection(addrA, pending.cb)
	var interrogating connResult
	f.ctrl.event(&hci.ConnectionRequestEventPacket{BDAddr: addrB, LinkType: hci.LinkTypeACL})
	f.connectionComplete(addrB, 0x0041, hci.StatusSuccess)
	f.m.RequestConnection(addrB, interrogating.cb)

	require.NoError(t, f.m.Close())
	assert.Empty(t, f.ctrl.handlers)
	assert.Empty(t, f.ctrl.acl)
	require.Equal(t, 1, pending.calls)
	assert.True(t, errors.Is(pending.err, ErrNotSupported))
	require.Equal(t, 1, interrogating.calls)
	assert.True(t, errors.Is(interrogating.err, ErrNotSupported))

	var late connResult
	f.m.RequestConnection(addrA, late.cb)
	assert.True(t, errors.Is(late.err, ErrCanceled))
}
