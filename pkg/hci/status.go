package hci

import "fmt"

// StatusCode is an HCI error code, Vol 1, Part F of the Bluetooth Core Specification.
type StatusCode uint8

const (
	StatusSuccess                            StatusCode = 0x00
	StatusUnknownCommand                     StatusCode = 0x01
	StatusUnknownConnectionIdentifier        StatusCode = 0x02
	StatusHardwareFailure                    StatusCode = 0x03
	StatusPageTimeout                        StatusCode = 0x04
	StatusAuthenticationFailure              StatusCode = 0x05
	StatusPINOrKeyMissing                    StatusCode = 0x06
	StatusMemoryCapacityExceeded             StatusCode = 0x07
	StatusConnectionTimeout                  StatusCode = 0x08
	StatusConnectionLimitExceeded            StatusCode = 0x09
	StatusConnectionAlreadyExists            StatusCode = 0x0B
	StatusCommandDisallowed                  StatusCode = 0x0C
	StatusConnectionRejectedLimitedResources StatusCode = 0x0D
	StatusConnectionRejectedSecurity         StatusCode = 0x0E
	StatusConnectionRejectedBadBDAddr        StatusCode = 0x0F
	StatusConnectionAcceptTimeoutExceeded    StatusCode = 0x10
	StatusUnsupportedFeatureOrParameter      StatusCode = 0x11
	StatusInvalidParameters                  StatusCode = 0x12
	StatusRemoteUserTerminatedConnection     StatusCode = 0x13
	StatusRemoteDeviceTerminatedLowResources StatusCode = 0x14
	StatusRemoteDeviceTerminatedPowerOff     StatusCode = 0x15
	StatusConnectionTerminatedByLocalHost    StatusCode = 0x16
	StatusPairingNotAllowed                  StatusCode = 0x18
	StatusUnspecifiedError                   StatusCode = 0x1F
	StatusLMPResponseTimeout                 StatusCode = 0x22
	StatusInsufficientSecurity               StatusCode = 0x2F
	StatusControllerBusy                     StatusCode = 0x3A
	StatusConnectionFailedToBeEstablished    StatusCode = 0x3E
)

var statusNames = map[StatusCode]string{
	StatusSuccess:                            "success",
	StatusUnknownCommand:                     "unknown command",
	StatusUnknownConnectionIdentifier:        "unknown connection identifier",
	StatusHardwareFailure:                    "hardware failure",
	StatusPageTimeout:                        "page timeout",
	StatusAuthenticationFailure:              "authentication failure",
	StatusPINOrKeyMissing:                    "pin or key missing",
	StatusMemoryCapacityExceeded:             "memory capacity exceeded",
	StatusConnectionTimeout:                  "connection timeout",
	StatusConnectionLimitExceeded:            "connection limit exceeded",
	StatusConnectionAlreadyExists:            "connection already exists",
	StatusCommandDisallowed:                  "command disallowed",
	StatusConnectionRejectedLimitedResources: "connection rejected: limited resources",
	StatusConnectionRejectedSecurity:         "connection rejected: security reasons",
	StatusConnectionRejectedBadBDAddr:        "connection rejected: unacceptable address",
	StatusConnectionAcceptTimeoutExceeded:    "connection accept timeout exceeded",
	StatusUnsupportedFeatureOrParameter:      "unsupported feature or parameter",
	StatusInvalidParameters:                  "invalid parameters",
	StatusRemoteUserTerminatedConnection:     "remote user terminated connection",
	StatusRemoteDeviceTerminatedLowResources: "remote device terminated connection: low resources",
	StatusRemoteDeviceTerminatedPowerOff:     "remote device terminated connection: power off",
	StatusConnectionTerminatedByLocalHost:    "connection terminated by local host",
	StatusPairingNotAllowed:                  "pairing not allowed",
	StatusUnspecifiedError:                   "unspecified error",
	StatusLMPResponseTimeout:                 "lmp response timeout",
	StatusInsufficientSecurity:               "insufficient security",
	StatusControllerBusy:                     "controller busy",
	StatusConnectionFailedToBeEstablished:    "connection failed to be established",
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02x", uint8(s))
}

// Err returns nil for StatusSuccess and an *Error otherwise.
func (s StatusCode) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return &Error{Status: s}
}

// Error is a non-success status reported by the controller.
type Error struct {
	Status StatusCode
}

func (e *Error) Error() string {
	return "hci: " + e.Status.String()
}

// Timeout reports whether the controller gave up waiting on the peer.
func (e *Error) Timeout() bool {
	switch e.Status {
	case StatusPageTimeout, StatusConnectionTimeout, StatusConnectionAcceptTimeoutExceeded, StatusLMPResponseTimeout:
		return true
	}
	return false
}

// Rejected reports whether the peer or controller explicitly refused the operation.
func (e *Error) Rejected() bool {
	switch e.Status {
	case StatusConnectionRejectedLimitedResources,
		StatusConnectionRejectedSecurity,
		StatusConnectionRejectedBadBDAddr,
		StatusRemoteUserTerminatedConnection,
		StatusPairingNotAllowed,
		StatusAuthenticationFailure,
		StatusPINOrKeyMissing:
		return true
	}
	return false
}
