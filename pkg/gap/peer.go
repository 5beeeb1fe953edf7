package gap

import (
	"github.com/google/uuid"
	"github.com/muxable/bredr/pkg/hci"
)

// PeerID identifies a remote device independently of its address.
type PeerID uuid.UUID

func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

// BrEdrBond is the persisted result of a successful BR/EDR pairing.
type BrEdrBond struct {
	Key  hci.LinkKey
	Type hci.LinkKeyType
}

// Peer is everything known about a remote device. Unset optional fields have
// not been read from the peer yet.
type Peer struct {
	ID      PeerID
	Address hci.BDAddr

	Name                   *string
	Features               hci.LMPFeatures
	LEFeatures             *uint64
	Version                *hci.VersionInfo
	PageScanRepetitionMode *hci.PageScanRepetitionMode
	ClockOffset            *uint16

	Bond      *BrEdrBond
	Connected bool
}

func (p *Peer) Bonded() bool {
	return p.Bond != nil
}

// SupportsSecureSimplePairing reports whether both the controller and the
// host of the peer support SSP. It is false until features have been read.
func (p *Peer) SupportsSecureSimplePairing() bool {
	return p.Features.HasBit(0, hci.LMPFeatureSecureSimplePairing) &&
		p.Features.HasBit(1, hci.LMPFeatureSecureSimplePairingHost)
}
