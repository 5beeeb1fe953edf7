package gap

import (
	"testing"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/stretchr/testify/assert"
)

const (
	displayOnly = hci.IOCapabilityDisplayOnly
	displayYN   = hci.IOCapabilityDisplayYesNo
	keyboard    = hci.IOCapabilityKeyboardOnly
	noIO        = hci.IOCapabilityNoInputNoOutput
)

func TestInitiatorPairingAction(t *testing.T) {
	tests := []struct {
		initiator, responder hci.IOCapability
		want                 PairingAction
	}{
		{displayOnly, displayOnly, PairingActionAutomatic},
		{displayOnly, displayYN, PairingActionDisplayPasskey},
		{displayOnly, keyboard, PairingActionDisplayPasskey},
		{displayOnly, noIO, PairingActionAutomatic},
		{displayYN, displayOnly, PairingActionComparePasskey},
		{displayYN, displayYN, PairingActionComparePasskey},
		{displayYN, keyboard, PairingActionDisplayPasskey},
		{displayYN, noIO, PairingActionGetConsent},
		{keyboard, displayOnly, PairingActionRequestPasskey},
		{keyboard, displayYN, PairingActionRequestPasskey},
		{keyboard, keyboard, PairingActionRequestPasskey},
		{keyboard, noIO, PairingActionAutomatic},
		{noIO, displayOnly, PairingActionAutomatic},
		{noIO, displayYN, PairingActionAutomatic},
		{noIO, keyboard, PairingActionAutomatic},
		{noIO, noIO, PairingActionAutomatic},
	}
	for _, tt := range tests {
		t.Run(tt.initiator.String()+"/"+tt.responder.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, InitiatorPairingAction(tt.initiator, tt.responder))
		})
	}
}

func TestResponderPairingAction(t *testing.T) {
	assert.Equal(t, PairingActionGetConsent, ResponderPairingAction(noIO, keyboard))
	assert.Equal(t, PairingActionComparePasskey, ResponderPairingAction(displayYN, displayYN))
	assert.Equal(t, PairingActionComparePasskey, ResponderPairingAction(displayOnly, displayYN))
	assert.Equal(t, PairingActionGetConsent, ResponderPairingAction(noIO, displayYN))
	assert.Equal(t, PairingActionDisplayPasskey, ResponderPairingAction(keyboard, displayOnly))
	assert.Equal(t, PairingActionRequestPasskey, ResponderPairingAction(displayYN, keyboard))

	// Apart from the two special cases the responder acts like an initiator
	// with the roles swapped.
	caps := []hci.IOCapability{displayOnly, displayYN, keyboard, noIO}
	for _, i := range caps {
		for _, r := range caps {
			if (i == noIO && r == keyboard) || (i == displayYN && r == displayYN) {
				continue
			}
			assert.Equal(t, InitiatorPairingAction(r, i), ResponderPairingAction(i, r), "%v/%v", i, r)
		}
	}
}

func TestExpectedPairingEvent(t *testing.T) {
	assert.Equal(t, hci.EventCodeUserConfirmationRequest, ExpectedPairingEvent(noIO, keyboard))
	assert.Equal(t, hci.EventCodeUserConfirmationRequest, ExpectedPairingEvent(keyboard, noIO))
	assert.Equal(t, hci.EventCodeUserPasskeyRequest, ExpectedPairingEvent(keyboard, displayOnly))
	assert.Equal(t, hci.EventCodeUserPasskeyRequest, ExpectedPairingEvent(keyboard, keyboard))
	assert.Equal(t, hci.EventCodeUserPasskeyNotification, ExpectedPairingEvent(displayYN, keyboard))
	assert.Equal(t, hci.EventCodeUserConfirmationRequest, ExpectedPairingEvent(displayYN, displayOnly))
	assert.Equal(t, hci.EventCodeUserConfirmationRequest, ExpectedPairingEvent(displayOnly, displayOnly))
}

func TestIsPairingAuthenticated(t *testing.T) {
	assert.True(t, IsPairingAuthenticated(displayYN, displayYN))
	assert.True(t, IsPairingAuthenticated(keyboard, displayOnly))
	assert.True(t, IsPairingAuthenticated(displayOnly, keyboard))
	assert.False(t, IsPairingAuthenticated(displayYN, displayOnly))
	assert.False(t, IsPairingAuthenticated(displayOnly, displayOnly))
	assert.False(t, IsPairingAuthenticated(keyboard, noIO))
	assert.False(t, IsPairingAuthenticated(noIO, displayYN))

	assert.Equal(t, hci.AuthRequirementsGeneralBonding, InitiatorAuthRequirements(noIO))
	assert.Equal(t, hci.AuthRequirementsMITMGeneralBonding, InitiatorAuthRequirements(displayOnly))
	assert.Equal(t, hci.AuthRequirementsMITMGeneralBonding, ResponderAuthRequirements(keyboard, displayYN))
	assert.Equal(t, hci.AuthRequirementsGeneralBonding, ResponderAuthRequirements(displayYN, displayOnly))
}
