package gap

import (
	"fmt"

	"github.com/muxable/bredr/pkg/hci"
)

// PairingAction is what the local device must do to complete SSP.
type PairingAction int

const (
	// PairingActionAutomatic accepts without user interaction (Just Works).
	PairingActionAutomatic PairingAction = iota
	// PairingActionGetConsent asks the user to allow pairing.
	PairingActionGetConsent
	// PairingActionDisplayPasskey shows a passkey the peer types in.
	PairingActionDisplayPasskey
	// PairingActionComparePasskey shows a passkey and asks the user whether it
	// matches the one on the peer.
	PairingActionComparePasskey
	// PairingActionRequestPasskey asks the user to type the passkey shown on
	// the peer.
	PairingActionRequestPasskey
)

func (a PairingAction) String() string {
	switch a {
	case PairingActionAutomatic:
		return "automatic"
	case PairingActionGetConsent:
		return "get consent"
	case PairingActionDisplayPasskey:
		return "display passkey"
	case PairingActionComparePasskey:
		return "compare passkey"
	case PairingActionRequestPasskey:
		return "request passkey"
	}
	return fmt.Sprintf("PairingAction(%d)", int(a))
}

// InitiatorPairingAction is the action taken by the pairing initiator, Vol 3,
// Part C, Section 5.2.2.6 of the Bluetooth Core Specification.
func InitiatorPairingAction(initiator, responder hci.IOCapability) PairingAction {
	if initiator == hci.IOCapabilityNoInputNoOutput {
		return PairingActionAutomatic
	}
	if responder == hci.IOCapabilityNoInputNoOutput {
		if initiator == hci.IOCapabilityDisplayYesNo {
			return PairingActionGetConsent
		}
		return PairingActionAutomatic
	}
	if initiator == hci.IOCapabilityKeyboardOnly {
		return PairingActionRequestPasskey
	}
	if initiator == hci.IOCapabilityDisplayYesNo &&
		(responder == hci.IOCapabilityDisplayOnly || responder == hci.IOCapabilityDisplayYesNo) {
		// Numeric comparison; both sides show the value.
		return PairingActionComparePasskey
	}
	if responder == hci.IOCapabilityDisplayOnly {
		return PairingActionAutomatic
	}
	return PairingActionDisplayPasskey
}

// ResponderPairingAction is the action taken by the pairing responder.
func ResponderPairingAction(initiator, responder hci.IOCapability) PairingAction {
	if initiator == hci.IOCapabilityNoInputNoOutput && responder == hci.IOCapabilityKeyboardOnly {
		return PairingActionGetConsent
	}
	if initiator == hci.IOCapabilityDisplayYesNo && responder == hci.IOCapabilityDisplayYesNo {
		return PairingActionComparePasskey
	}
	return InitiatorPairingAction(responder, initiator)
}

// ExpectedPairingEvent is the controller event that follows the IO
// capability exchange.
func ExpectedPairingEvent(local, peer hci.IOCapability) hci.EventCode {
	if local == hci.IOCapabilityNoInputNoOutput || peer == hci.IOCapabilityNoInputNoOutput {
		return hci.EventCodeUserConfirmationRequest
	}
	if local == hci.IOCapabilityKeyboardOnly {
		return hci.EventCodeUserPasskeyRequest
	}
	if peer == hci.IOCapabilityKeyboardOnly {
		return hci.EventCodeUserPasskeyNotification
	}
	return hci.EventCodeUserConfirmationRequest
}

// IsPairingAuthenticated reports whether the capabilities allow MITM
// protection.
func IsPairingAuthenticated(local, peer hci.IOCapability) bool {
	if local == hci.IOCapabilityNoInputNoOutput || peer == hci.IOCapabilityNoInputNoOutput {
		return false
	}
	if local == hci.IOCapabilityDisplayYesNo && peer == hci.IOCapabilityDisplayYesNo {
		return true
	}
	if local == hci.IOCapabilityKeyboardOnly || peer == hci.IOCapabilityKeyboardOnly {
		return true
	}
	return false
}

func InitiatorAuthRequirements(local hci.IOCapability) hci.AuthRequirements {
	if local == hci.IOCapabilityNoInputNoOutput {
		return hci.AuthRequirementsGeneralBonding
	}
	return hci.AuthRequirementsMITMGeneralBonding
}

func ResponderAuthRequirements(local, peer hci.IOCapability) hci.AuthRequirements {
	if IsPairingAuthenticated(local, peer) {
		return hci.AuthRequirementsMITMGeneralBonding
	}
	return hci.AuthRequirementsGeneralBonding
}
