package gap

import (
	"testing"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resultRecorder struct {
	errs []error
}

func (r *resultRecorder) cb(err error) {
	r.errs = append(r.errs, err)
}

func newTestPeers(t *testing.T) *PeerCache {
	peers, err := NewPeerCache(DefaultPeerCacheSize, nil)
	require.NoError(t, err)
	return peers
}

const testHandle uint16 = 0x0040

func TestBrEdrInterrogation(t *testing.T) {
	ctrl := newFakeController()
	peers := newTestPeers(t)
	peer := peers.FindOrCreate(hci.BDAddr{1, 2, 3})
	it := NewBrEdrInterrogator(ctrl, peers)

	var res resultRecorder
	require.NoError(t, it.Start(peer.ID, testHandle, res.cb))
	assert.Len(t, ctrl.sent, 3)
	assert.True(t, errors.Is(it.Start(peer.ID, testHandle, res.cb), ErrInProgress))

	ctrl.answer(t, hci.OpcodeRemoteNameRequest, &hci.RemoteNameRequestCompleteEventPacket{
		BDAddr:     peer.Address,
		RemoteName: "headset",
	})
	ctrl.answer(t, hci.OpcodeReadRemoteSupportedFeatures, &hci.ReadRemoteSupportedFeaturesCompleteEventPacket{
		ConnectionHandle: testHandle,
		LMPFeatures:      1<<hci.LMPFeatureExtendedFeatures | 1<<hci.LMPFeatureSecureSimplePairing,
	})
	ctrl.answer(t, hci.OpcodeReadRemoteVersionInformation, &hci.ReadRemoteVersionInformationCompleteEventPacket{
		ConnectionHandle: testHandle,
		Version:          0x0A,
		Manufacturer:     0x000F,
	})
	assert.Empty(t, res.errs, "extended features still outstanding")

	ext := ctrl.pending(t, hci.OpcodeReadRemoteExtendedFeatures).p.(*hci.ReadRemoteExtendedFeaturesCommandPacket)
	assert.Equal(t, uint8(1), ext.PageNumber)
	ctrl.answer(t, hci.OpcodeReadRemoteExtendedFeatures, &hci.ReadRemoteExtendedFeaturesCompleteEventPacket{
		ConnectionHandle:    testHandle,
		PageNumber:          1,
		MaxPageNumber:       1,
		ExtendedLMPFeatures: 1 << hci.LMPFeatureSecureSimplePairingHost,
	})

	require.Equal(t, []error{nil}, res.errs)
	require.NotNil(t, peer.Name)
	assert.Equal(t, "headset", *peer.Name)
	require.NotNil(t, peer.Version)
	assert.Equal(t, uint16(0x000F), peer.Version.Manufacturer)
	assert.True(t, peer.SupportsSecureSimplePairing())

	// Everything is known now, so a second interrogation completes at once.
	sent := len(ctrl.sent)
	require.NoError(t, it.Start(peer.ID, testHandle, res.cb))
	assert.Len(t, ctrl.sent, sent, "cached feature pages are not read again")
	assert.Equal(t, []error{nil, nil}, res.errs)
}

func TestBrEdrInterrogationReadsMissingExtendedPage(t *testing.T) {
	ctrl := newFakeController()
	peers := newTestPeers(t)
	peer := peers.FindOrCreate(hci.BDAddr{4, 5, 6})
	name := "speaker"
	peer.Name = &name
	peer.Version = &hci.VersionInfo{Version: 0x09}
	peer.Features.SetPage(0, 1<<hci.LMPFeatureExtendedFeatures)
	it := NewBrEdrInterrogator(ctrl, peers)

	var res resultRecorder
	require.NoError(t, it.Start(peer.ID, testHandle, res.cb))
	require.Len(t, ctrl.sent, 1)
	ext := ctrl.pending(t, hci.OpcodeReadRemoteExtendedFeatures).p.(*hci.ReadRemoteExtendedFeaturesCommandPacket)
	assert.Equal(t, uint8(1), ext.PageNumber)
	ctrl.answer(t, hci.OpcodeReadRemoteExtendedFeatures, &hci.ReadRemoteExtendedFeaturesCompleteEventPacket{
		ConnectionHandle:    testHandle,
		PageNumber:          1,
		MaxPageNumber:       1,
		ExtendedLMPFeatures: 1 << hci.LMPFeatureSecureSimplePairingHost,
	})
	assert.Equal(t, []error{nil}, res.errs)
	assert.True(t, peer.Features.HasPage(1))
}

func TestInterrogationFailsOnFirstError(t *testing.T) {
	ctrl := newFakeController()
	peers := newTestPeers(t)
	peer := peers.FindOrCreate(hci.BDAddr{1})
	it := NewBrEdrInterrogator(ctrl, peers)

	var res resultRecorder
	require.NoError(t, it.Start(peer.ID, testHandle, res.cb))
	ctrl.answer(t, hci.OpcodeReadRemoteSupportedFeatures, &hci.ReadRemoteSupportedFeaturesCompleteEventPacket{
		Status:           hci.StatusConnectionTimeout,
		ConnectionHandle: testHandle,
	})
	require.Len(t, res.errs, 1)
	assert.True(t, errors.Is(res.errs[0], ErrTimedOut))

	// Later responses are ignored.
	ctrl.answer(t, hci.OpcodeRemoteNameRequest, &hci.RemoteNameRequestCompleteEventPacket{BDAddr: peer.Address, RemoteName: "x"})
	ctrl.answer(t, hci.OpcodeReadRemoteVersionInformation, &hci.ReadRemoteVersionInformationCompleteEventPacket{ConnectionHandle: testHandle})
	assert.Len(t, res.errs, 1)
	assert.Nil(t, peer.Name)

	// The peer can be interrogated again.
	assert.NoError(t, it.Start(peer.ID, testHandle, res.cb))
}

func TestInterrogationCancel(t *testing.T) {
	ctrl := newFakeController()
	peers := newTestPeers(t)
	a := peers.FindOrCreate(hci.BDAddr{1})
	b := peers.FindOrCreate(hci.BDAddr{2})
	it := NewBrEdrInterrogator(ctrl, peers)

	var resA, resB resultRecorder
	require.NoError(t, it.Start(a.ID, 1, resA.cb))
	require.NoError(t, it.Start(b.ID, 2, resB.cb))

	it.Cancel(a.ID)
	require.Len(t, resA.errs, 1)
	assert.True(t, errors.Is(resA.errs[0], ErrCanceled))
	assert.Empty(t, resB.errs)

	for _, s := range ctrl.commands(hci.OpcodeRemoteNameRequest) {
		if s.p.(*hci.RemoteNameRequestCommandPacket).BDAddr == a.Address {
			s.cb("", &hci.RemoteNameRequestCompleteEventPacket{BDAddr: a.Address, RemoteName: "late"})
		}
	}
	assert.Nil(t, a.Name)
	assert.Len(t, resA.errs, 1)

	it.Close()
	require.Len(t, resB.errs, 1)
	assert.True(t, errors.Is(resB.errs[0], ErrCanceled))
}

func TestInterrogationUnknownPeer(t *testing.T) {
	ctrl := newFakeController()
	it := NewBrEdrInterrogator(ctrl, newTestPeers(t))

	var res resultRecorder
	require.NoError(t, it.Start(NewPeerID(), testHandle, res.cb))
	require.Len(t, res.errs, 1)
	assert.True(t, errors.Is(res.errs[0], ErrNotFound))
	assert.Empty(t, ctrl.sent)
}

func TestLEInterrogation(t *testing.T) {
	ctrl := newFakeController()
	peers := newTestPeers(t)
	peer := peers.FindOrCreate(hci.BDAddr{1})
	it := NewLEInterrogator(ctrl, peers)

	var res resultRecorder
	require.NoError(t, it.Start(peer.ID, testHandle, res.cb))
	ctrl.answer(t, hci.OpcodeLEReadRemoteFeatures, &hci.LEReadRemoteFeaturesCompleteEventPacket{
		ConnectionHandle: testHandle,
		LEFeatures:       0x1,
	})
	ctrl.answer(t, hci.OpcodeReadRemoteVersionInformation, &hci.ReadRemoteVersionInformationCompleteEventPacket{
		ConnectionHandle: testHandle,
		Version:          0x09,
	})
	assert.Equal(t, []error{nil}, res.errs)
	require.NotNil(t, peer.LEFeatures)
	assert.Equal(t, uint64(1), *peer.LEFeatures)
}
