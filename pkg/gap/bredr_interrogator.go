package gap

import (
	"github.com/muxable/bredr/pkg/hci"
	"go.uber.org/zap"
)

// maxFeaturePage is the highest LMP feature page the peer record holds.
const maxFeaturePage = 2

// BrEdrInterrogator reads the name, LMP features and version of a BR/EDR
// peer, skipping whatever is already known.
type BrEdrInterrogator struct {
	*Interrogator
	peers *PeerCache
}

func NewBrEdrInterrogator(cmd hci.Commander, peers *PeerCache) *BrEdrInterrogator {
	b := &BrEdrInterrogator{peers: peers}
	b.Interrogator = NewInterrogator(cmd, b)
	return b
}

func (b *BrEdrInterrogator) SendCommands(i *Interrogation) {
	peer := b.peers.FindByID(i.PeerID())
	if peer == nil {
		i.Fail(ErrNotFound)
		return
	}

	if peer.Name == nil {
		b.readRemoteName(i, peer)
	}
	if !peer.Features.HasPage(0) {
		b.readRemoteFeatures(i, peer)
	} else if peer.Features.HasBit(0, hci.LMPFeatureExtendedFeatures) && !peer.Features.HasPage(1) {
		b.readRemoteExtendedFeatures(i, peer, 1)
	}
	if peer.Version == nil {
		b.readRemoteVersionInformation(i, peer)
	}
}

func (b *BrEdrInterrogator) readRemoteName(i *Interrogation, peer *Peer) {
	req := &hci.RemoteNameRequestCommandPacket{
		BDAddr:                 peer.Address,
		PageScanRepetitionMode: hci.PageScanRepetitionModeR2,
	}
	if peer.PageScanRepetitionMode != nil {
		req.PageScanRepetitionMode = *peer.PageScanRepetitionMode
	}
	if peer.ClockOffset != nil {
		// Bit 15 marks the offset as valid.
		req.ClockOffset = *peer.ClockOffset | 0x8000
	}
	i.Command(req, hci.EventCodeRemoteNameRequestComplete, func(e hci.EventPacket) {
		p, ok := e.(*hci.RemoteNameRequestCompleteEventPacket)
		if !ok {
			return
		}
		name := p.RemoteName
		peer.Name = &name
		b.log.Debug("remote name", zap.Stringer("peer", peer.ID), zap.String("name", name))
	})
}

func (b *BrEdrInterrogator) readRemoteFeatures(i *Interrogation, peer *Peer) {
	req := hci.NewHandleCommandPacket(hci.OpcodeReadRemoteSupportedFeatures, i.Handle())
	i.Command(req, hci.EventCodeReadRemoteSupportedFeaturesComplete, func(e hci.EventPacket) {
		p, ok := e.(*hci.ReadRemoteSupportedFeaturesCompleteEventPacket)
		if !ok {
			return
		}
		peer.Features.SetPage(0, p.LMPFeatures)
		if peer.Features.HasBit(0, hci.LMPFeatureExtendedFeatures) {
			b.readRemoteExtendedFeatures(i, peer, 1)
		}
	})
}

func (b *BrEdrInterrogator) readRemoteExtendedFeatures(i *Interrogation, peer *Peer, page uint8) {
	req := &hci.ReadRemoteExtendedFeaturesCommandPacket{
		ConnectionHandle: i.Handle(),
		PageNumber:       page,
	}
	i.Command(req, hci.EventCodeReadRemoteExtendedFeaturesComplete, func(e hci.EventPacket) {
		p, ok := e.(*hci.ReadRemoteExtendedFeaturesCompleteEventPacket)
		if !ok {
			return
		}
		peer.Features.SetPage(p.PageNumber, p.ExtendedLMPFeatures)
		peer.Features.MaxPage = p.MaxPageNumber
		if p.PageNumber < p.MaxPageNumber && p.PageNumber < maxFeaturePage {
			b.readRemoteExtendedFeatures(i, peer, p.PageNumber+1)
		}
	})
}

func (b *BrEdrInterrogator) readRemoteVersionInformation(i *Interrogation, peer *Peer) {
	readRemoteVersionInformation(b.Interrogator, i, peer)
}

// readRemoteVersionInformation is shared by the BR/EDR and LE command sets.
func readRemoteVersionInformation(it *Interrogator, i *Interrogation, peer *Peer) {
	req := hci.NewHandleCommandPacket(hci.OpcodeReadRemoteVersionInformation, i.Handle())
	i.Command(req, hci.EventCodeReadRemoteVersionInformationComplete, func(e hci.EventPacket) {
		p, ok := e.(*hci.ReadRemoteVersionInformationCompleteEventPacket)
		if !ok {
			return
		}
		peer.Version = &hci.VersionInfo{
			Version:      p.Version,
			Manufacturer: p.Manufacturer,
			Subversion:   p.Subversion,
		}
		it.log.Debug("remote version",
			zap.Stringer("peer", peer.ID),
			zap.Uint8("version", p.Version),
			zap.Uint16("manufacturer", p.Manufacturer))
	})
}
