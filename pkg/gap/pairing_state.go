package gap

import (
	"fmt"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the step a PairingState is at in the SSP exchange.
type State int

const (
	StateIdle State = iota
	StateInitiatorPairingStarted
	StateResponderWaitIoCapRequest
	StateInitiatorWaitIoCapResponse
	StateWaitPairingEvent
	StateWaitPairingComplete
	StateWaitLinkKey
	StateInitiatorWaitAuthComplete
	StateWaitEncryption
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitiatorPairingStarted:
		return "InitiatorPairingStarted"
	case StateResponderWaitIoCapRequest:
		return "ResponderWaitIoCapRequest"
	case StateInitiatorWaitIoCapResponse:
		return "InitiatorWaitIoCapResponse"
	case StateWaitPairingEvent:
		return "WaitPairingEvent"
	case StateWaitPairingComplete:
		return "WaitPairingComplete"
	case StateWaitLinkKey:
		return "WaitLinkKey"
	case StateInitiatorWaitAuthComplete:
		return "InitiatorWaitAuthComplete"
	case StateWaitEncryption:
		return "WaitEncryption"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type pairingEvent int

const (
	eventInitiatePairing pairingEvent = iota
	eventIOCapabilityRequest
	eventIOCapabilityResponse
	eventUserConfirmationRequest
	eventUserPasskeyRequest
	eventUserPasskeyNotification
	eventSimplePairingComplete
	eventLinkKeyNotification
	eventAuthenticationComplete
	eventEncryptionChange
)

var pairingEventNames = map[pairingEvent]string{
	eventInitiatePairing:         "initiate pairing",
	eventIOCapabilityRequest:     "io capability request",
	eventIOCapabilityResponse:    "io capability response",
	eventUserConfirmationRequest: "user confirmation request",
	eventUserPasskeyRequest:      "user passkey request",
	eventUserPasskeyNotification: "user passkey notification",
	eventSimplePairingComplete:   "simple pairing complete",
	eventLinkKeyNotification:     "link key notification",
	eventAuthenticationComplete:  "authentication complete",
	eventEncryptionChange:        "encryption change",
}

func (e pairingEvent) String() string {
	return pairingEventNames[e]
}

// next is the transition table. ok is false when ev is not valid in from, in
// which case the attempt fails.
func next(from State, ev pairingEvent, initiator bool) (State, bool) {
	switch ev {
	case eventInitiatePairing:
		if from == StateIdle || from == StateFailed {
			return StateInitiatorPairingStarted, true
		}
	case eventIOCapabilityRequest:
		switch from {
		case StateInitiatorPairingStarted:
			return StateInitiatorWaitIoCapResponse, true
		case StateResponderWaitIoCapRequest:
			return StateWaitPairingEvent, true
		}
	case eventIOCapabilityResponse:
		switch from {
		case StateIdle, StateFailed:
			return StateResponderWaitIoCapRequest, true
		case StateInitiatorWaitIoCapResponse:
			return StateWaitPairingEvent, true
		}
	case eventUserConfirmationRequest, eventUserPasskeyRequest, eventUserPasskeyNotification:
		if from == StateWaitPairingEvent {
			return StateWaitPairingComplete, true
		}
	case eventSimplePairingComplete:
		if from == StateWaitPairingComplete {
			return StateWaitLinkKey, true
		}
	case eventLinkKeyNotification:
		if from == StateWaitLinkKey {
			if initiator {
				return StateInitiatorWaitAuthComplete, true
			}
			return StateWaitEncryption, true
		}
	case eventAuthenticationComplete:
		if initiator && (from == StateInitiatorPairingStarted || from == StateInitiatorWaitAuthComplete) {
			return StateWaitEncryption, true
		}
	case eventEncryptionChange:
		if from == StateWaitEncryption {
			return StateIdle, true
		}
	}
	return StateFailed, false
}

// PairingCallback receives the outcome of a pairing attempt.
type PairingCallback func(err error)

// StatusCallback is told the outcome of every pairing attempt on the link.
type StatusCallback func(handle uint16, err error)

// InitiatorAction tells the caller of InitiatePairing what to do next.
type InitiatorAction int

const (
	SendAuthenticationRequest InitiatorAction = iota
	DoNotSendAuthenticationRequest
)

// PairingLink is the part of hci.Link that pairing drives.
type PairingLink interface {
	Handle() uint16
	PeerAddress() hci.BDAddr
	SetLinkKey(key hci.LinkKey, keyType hci.LinkKeyType)
	StartEncryption() error
	SetEncryptionChangeCallback(cb hci.EncryptionChangeCallback)
}

// Dispatcher issues commands and runs tasks on the goroutine that delivers
// controller events.
type Dispatcher interface {
	hci.Commander
	Post(f func()) bool
}

// pairing is one attempt, shared by every caller waiting on it.
type pairing struct {
	initiator bool
	callbacks []PairingCallback

	localIOCap    hci.IOCapability
	peerIOCap     hci.IOCapability
	action        PairingAction
	expected      hci.EventCode
	authenticated bool

	replied bool
}

// PairingState drives SSP on one BR/EDR link. It must only be used from the
// dispatcher.
type PairingState struct {
	peerID   PeerID
	link     PairingLink
	d        Dispatcher
	delegate PairingDelegate
	status   StatusCallback
	log      *zap.Logger

	state   State
	pairing *pairing
	closed  bool
}

func NewPairingState(peerID PeerID, link PairingLink, d Dispatcher, status StatusCallback) *PairingState {
	s := &PairingState{
		peerID: peerID,
		link:   link,
		d:      d,
		status: status,
		log:    zap.L().Named("pairing").With(zap.Stringer("peer", peerID), zap.Uint16("handle", link.Handle())),
	}
	link.SetEncryptionChangeCallback(s.OnEncryptionChange)
	return s
}

func (s *PairingState) SetPairingDelegate(d PairingDelegate) {
	s.delegate = d
}

func (s *PairingState) State() State {
	return s.state
}

// Initiator reports whether the attempt in progress was started locally.
func (s *PairingState) Initiator() bool {
	return s.pairing != nil && s.pairing.initiator
}

func (s *PairingState) localIOCapability() hci.IOCapability {
	if s.delegate == nil {
		return hci.IOCapabilityNoInputNoOutput
	}
	return s.delegate.IOCapability()
}

func (s *PairingState) transition(ev pairingEvent) error {
	to, ok := next(s.state, ev, s.Initiator())
	if !ok {
		return errors.Wrapf(ErrProtocol, "%v in state %v", ev, s.state)
	}
	s.log.Debug("transition", zap.Stringer("event", ev), zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
	return nil
}

// fail ends the attempt. Callers must return right after, since the
// callbacks may tear down the link and this PairingState with it.
func (s *PairingState) fail(err error) {
	s.log.Warn("pairing failed", zap.Stringer("state", s.state), zap.Error(err))
	s.state = StateFailed
	s.signalStatus(err)
}

func (s *PairingState) signalStatus(err error) {
	var callbacks []PairingCallback
	if s.pairing != nil {
		callbacks = s.pairing.callbacks
		s.pairing = nil
	}
	handle := s.link.Handle()
	status := s.status
	if status != nil {
		status(handle, err)
	}
	for _, cb := range callbacks {
		cb(err)
	}
}

func (s *PairingState) send(p hci.CommandPacket) {
	s.d.SendCommand(p, hci.EventCodeCommandComplete, func(_ hci.TransactionID, e hci.EventPacket) {
		if err := fromEvent(e); err != nil {
			s.log.Warn("pairing command failed", zap.Uint16("opcode", uint16(p.Opcode())), zap.Error(err))
		}
	})
}

// InitiatePairing starts pairing, or joins the attempt in progress. cb is
// called once with its outcome.
func (s *PairingState) InitiatePairing(cb PairingCallback) InitiatorAction {
	if s.closed {
		cb(ErrCanceled)
		return DoNotSendAuthenticationRequest
	}
	if s.pairing != nil {
		s.pairing.callbacks = append(s.pairing.callbacks, cb)
		return DoNotSendAuthenticationRequest
	}
	if err := s.transition(eventInitiatePairing); err != nil {
		// Unreachable: without an attempt the state is Idle or Failed.
		cb(err)
		return DoNotSendAuthenticationRequest
	}
	s.pairing = &pairing{
		initiator:  true,
		callbacks:  []PairingCallback{cb},
		localIOCap: s.localIOCapability(),
	}
	return SendAuthenticationRequest
}

func (s *PairingState) negotiate() {
	p := s.pairing
	if p.initiator {
		p.action = InitiatorPairingAction(p.localIOCap, p.peerIOCap)
	} else {
		p.action = ResponderPairingAction(p.peerIOCap, p.localIOCap)
	}
	p.expected = ExpectedPairingEvent(p.localIOCap, p.peerIOCap)
	p.authenticated = IsPairingAuthenticated(p.localIOCap, p.peerIOCap)
	s.log.Debug("negotiated",
		zap.Stringer("local", p.localIOCap),
		zap.Stringer("peer", p.peerIOCap),
		zap.Stringer("action", p.action),
		zap.Bool("authenticated", p.authenticated))
}

// OnIOCapabilityRequest answers the controller with the local IO capability.
func (s *PairingState) OnIOCapabilityRequest(e *hci.IOCapabilityRequestEventPacket) {
	if s.closed {
		return
	}
	if err := s.transition(eventIOCapabilityRequest); err != nil {
		s.send(&hci.IOCapabilityRequestNegativeReplyCommandPacket{
			BDAddr: s.link.PeerAddress(),
			Reason: hci.StatusPairingNotAllowed,
		})
		s.fail(err)
		return
	}
	p := s.pairing
	auth := InitiatorAuthRequirements(p.localIOCap)
	if !p.initiator {
		auth = ResponderAuthRequirements(p.localIOCap, p.peerIOCap)
		s.negotiate()
	}
	s.send(&hci.IOCapabilityRequestReplyCommandPacket{
		BDAddr:           s.link.PeerAddress(),
		IOCapability:     p.localIOCap,
		OOBDataPresent:   hci.OOBDataNotPresent,
		AuthRequirements: auth,
	})
}

// OnIOCapabilityResponse records the peer's IO capability. It starts a
// responder attempt when the peer initiated pairing.
func (s *PairingState) OnIOCapabilityResponse(e *hci.IOCapabilityResponseEventPacket) {
	if s.closed {
		return
	}
	if err := s.transition(eventIOCapabilityResponse); err != nil {
		s.fail(err)
		return
	}
	if s.state == StateResponderWaitIoCapRequest {
		s.pairing = &pairing{localIOCap: s.localIOCapability()}
	}
	s.pairing.peerIOCap = e.IOCapability
	if s.pairing.initiator {
		s.negotiate()
	}
}

// pairingEvent applies one of the user interaction events, which must be the
// one the negotiated capabilities call for.
func (s *PairingState) pairingEvent(ev pairingEvent, code hci.EventCode) error {
	if err := s.transition(ev); err != nil {
		return err
	}
	if code != s.pairing.expected {
		return errors.Wrapf(ErrProtocol, "%v, expected event 0x%02x", ev, uint8(s.pairing.expected))
	}
	return nil
}

func (s *PairingState) OnUserConfirmationRequest(e *hci.UserConfirmationRequestEventPacket) {
	if s.closed {
		return
	}
	if err := s.pairingEvent(eventUserConfirmationRequest, hci.EventCodeUserConfirmationRequest); err != nil {
		s.replyConfirmation(false)
		s.fail(err)
		return
	}
	confirm := s.confirmFunc(s.replyConfirmation)
	switch action := s.pairing.action; {
	case action == PairingActionAutomatic:
		s.replyConfirmation(true)
	case s.delegate == nil:
		s.log.Warn("no pairing delegate", zap.Stringer("action", action))
		s.replyConfirmation(false)
	case action == PairingActionGetConsent:
		s.delegate.ConfirmPairing(s.peerID, confirm)
	case action == PairingActionDisplayPasskey, action == PairingActionComparePasskey:
		s.delegate.DisplayPasskey(s.peerID, e.NumericValue, DisplayMethodComparison, confirm)
	default:
		s.replyConfirmation(false)
	}
}

func (s *PairingState) OnUserPasskeyRequest(e *hci.UserPasskeyRequestEventPacket) {
	if s.closed {
		return
	}
	if err := s.pairingEvent(eventUserPasskeyRequest, hci.EventCodeUserPasskeyRequest); err != nil {
		s.replyPasskey(-1)
		s.fail(err)
		return
	}
	if s.delegate == nil {
		s.log.Warn("no pairing delegate to request passkey")
		s.replyPasskey(-1)
		return
	}
	s.delegate.RequestPasskey(s.peerID, s.passkeyFunc(s.replyPasskey))
}

func (s *PairingState) OnUserPasskeyNotification(e *hci.UserPasskeyNotificationEventPacket) {
	if s.closed {
		return
	}
	if err := s.pairingEvent(eventUserPasskeyNotification, hci.EventCodeUserPasskeyNotification); err != nil {
		s.fail(err)
		return
	}
	if s.delegate == nil {
		return
	}
	s.delegate.DisplayPasskey(s.peerID, e.Passkey, DisplayMethodPeerEntry, func(ok bool) {
		if !ok {
			// The peer still has to enter the passkey; nothing to send.
			s.log.Info("user dismissed passkey")
		}
	})
}

func (s *PairingState) replyConfirmation(ok bool) {
	if s.pairing != nil {
		s.pairing.replied = true
	}
	op := hci.OpcodeUserConfirmationRequestReply
	if !ok {
		op = hci.OpcodeUserConfirmationRequestNegativeReply
	}
	s.send(hci.NewAddressCommandPacket(op, s.link.PeerAddress()))
}

func (s *PairingState) replyPasskey(passkey int64) {
	if s.pairing != nil {
		s.pairing.replied = true
	}
	if passkey < 0 || passkey > 999999 {
		s.send(hci.NewAddressCommandPacket(hci.OpcodeUserPasskeyRequestNegativeReply, s.link.PeerAddress()))
		return
	}
	s.send(&hci.UserPasskeyRequestReplyCommandPacket{
		BDAddr:       s.link.PeerAddress(),
		NumericValue: uint32(passkey),
	})
}

// waiting reports whether the user's answer for attempt is still wanted.
func (s *PairingState) waiting(attempt *pairing) bool {
	return !s.closed && s.pairing == attempt && !attempt.replied && s.state == StateWaitPairingComplete
}

// confirmFunc moves a delegate's answer onto the dispatcher and drops it if
// the attempt has moved on.
func (s *PairingState) confirmFunc(reply func(bool)) func(bool) {
	attempt := s.pairing
	return func(ok bool) {
		s.d.Post(func() {
			if s.waiting(attempt) {
				reply(ok)
			}
		})
	}
}

func (s *PairingState) passkeyFunc(reply func(int64)) func(int64) {
	attempt := s.pairing
	return func(passkey int64) {
		s.d.Post(func() {
			if s.waiting(attempt) {
				reply(passkey)
			}
		})
	}
}

func (s *PairingState) OnSimplePairingComplete(e *hci.SimplePairingCompleteEventPacket) {
	if s.closed {
		return
	}
	if err := s.transition(eventSimplePairingComplete); err != nil {
		s.fail(err)
		return
	}
	if err := fromStatus(e.Status); err != nil {
		s.fail(errors.Wrap(err, "simple pairing"))
	}
}

// OnLinkKeyNotification applies the key produced by pairing. It reports
// whether the key was accepted and should be bonded.
func (s *PairingState) OnLinkKeyNotification(e *hci.LinkKeyNotificationEventPacket) bool {
	if s.closed {
		return false
	}
	if err := s.transition(eventLinkKeyNotification); err != nil {
		s.fail(err)
		return false
	}
	if e.KeyType == hci.LinkKeyTypeDebugCombination {
		s.fail(errors.Wrap(ErrInsufficientSecurity, "debug link key"))
		return false
	}
	if s.pairing.authenticated && !e.KeyType.Authenticated() {
		s.fail(errors.Wrapf(ErrInsufficientSecurity, "unauthenticated link key type 0x%02x", uint8(e.KeyType)))
		return false
	}
	s.link.SetLinkKey(e.LinkKey, e.KeyType)
	if s.state == StateWaitEncryption {
		if err := s.link.StartEncryption(); err != nil {
			s.fail(errors.Wrap(err, "start encryption"))
			return false
		}
	}
	return true
}

func (s *PairingState) OnAuthenticationComplete(e *hci.AuthenticationCompleteEventPacket) {
	if s.closed {
		return
	}
	if err := s.transition(eventAuthenticationComplete); err != nil {
		s.fail(err)
		return
	}
	if err := fromStatus(e.Status); err != nil {
		s.fail(errors.Wrap(err, "authentication"))
		return
	}
	if err := s.link.StartEncryption(); err != nil {
		s.fail(errors.Wrap(err, "start encryption"))
	}
}

// OnEncryptionChange completes pairing once the link is encrypted. Changes
// outside of pairing are ignored.
func (s *PairingState) OnEncryptionChange(err error, enabled bool) {
	if s.closed {
		return
	}
	if s.state != StateWaitEncryption {
		s.log.Debug("ignoring encryption change", zap.Stringer("state", s.state), zap.Bool("enabled", enabled))
		return
	}
	if terr := s.transition(eventEncryptionChange); terr != nil {
		s.fail(terr)
		return
	}
	if err != nil {
		s.fail(errors.Wrap(err, "encryption"))
		return
	}
	if !enabled {
		s.fail(errors.Wrap(ErrFailed, "encryption disabled after pairing"))
		return
	}
	s.log.Info("paired")
	s.signalStatus(nil)
}

// Close fails the attempt in progress with ErrCanceled and ignores every
// later event. The owner's status callback is not called.
func (s *PairingState) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.link.SetEncryptionChangeCallback(nil)
	var callbacks []PairingCallback
	if s.pairing != nil {
		callbacks = s.pairing.callbacks
		s.pairing = nil
	}
	for _, cb := range callbacks {
		cb(ErrCanceled)
	}
}
