package gap

import (
	"github.com/muxable/bredr/pkg/hci"
)

// DisplayMethod says how a displayed passkey is used.
type DisplayMethod int

const (
	// DisplayMethodComparison asks the user to confirm that both devices show
	// the same value.
	DisplayMethodComparison DisplayMethod = iota
	// DisplayMethodPeerEntry shows a value the user types on the peer.
	DisplayMethodPeerEntry
)

// PairingDelegate performs the user interaction that SSP requires. Response
// functions may be called from any goroutine, at most once each.
type PairingDelegate interface {
	IOCapability() hci.IOCapability
	// ConfirmPairing asks whether to pair with the peer at all.
	ConfirmPairing(peer PeerID, confirm func(bool))
	DisplayPasskey(peer PeerID, passkey uint32, method DisplayMethod, confirm func(bool))
	// RequestPasskey asks for the passkey shown on the peer. A negative value
	// rejects pairing.
	RequestPasskey(peer PeerID, respond func(passkey int64))
}
