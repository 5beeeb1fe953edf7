package gap

import (
	"github.com/muxable/bredr/pkg/hci"
)

// LEInterrogator reads the LE features and version of a peer connected over
// LE.
type LEInterrogator struct {
	*Interrogator
	peers *PeerCache
}

func NewLEInterrogator(cmd hci.Commander, peers *PeerCache) *LEInterrogator {
	l := &LEInterrogator{peers: peers}
	l.Interrogator = NewInterrogator(cmd, l)
	return l
}

func (l *LEInterrogator) SendCommands(i *Interrogation) {
	peer := l.peers.FindByID(i.PeerID())
	if peer == nil {
		i.Fail(ErrNotFound)
		return
	}

	if peer.LEFeatures == nil {
		req := hci.NewHandleCommandPacket(hci.OpcodeLEReadRemoteFeatures, i.Handle())
		i.LECommand(req, hci.LEMetaSubeventCodeReadRemoteUsedFeaturesComplete, func(e hci.EventPacket) {
			if p, ok := e.(*hci.LEReadRemoteFeaturesCompleteEventPacket); ok {
				features := p.LEFeatures
				peer.LEFeatures = &features
			}
		})
	}
	if peer.Version == nil {
		readRemoteVersionInformation(l.Interrogator, i, peer)
	}
}
