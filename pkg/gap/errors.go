package gap

import (
	"fmt"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
)

var (
	ErrNotSupported         = errors.New("not supported")
	ErrCanceled             = errors.New("canceled")
	ErrFailed               = errors.New("failed")
	ErrProtocol             = errors.New("protocol error")
	ErrTimedOut             = errors.New("timed out")
	ErrRejected             = errors.New("rejected")
	ErrInProgress           = errors.New("in progress")
	ErrNotReady             = errors.New("not ready")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientSecurity = errors.New("insufficient security")
)

// Error is a controller status classified into one of the package's error
// kinds, so that callers can use errors.Is against the kind.
type Error struct {
	Kind   error
	Status hci.StatusCode
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// fromStatus classifies a non-success HCI status. It returns nil on success.
func fromStatus(s hci.StatusCode) error {
	if s == hci.StatusSuccess {
		return nil
	}
	herr := &hci.Error{Status: s}
	kind := ErrFailed
	switch {
	case herr.Timeout():
		kind = ErrTimedOut
	case herr.Rejected():
		kind = ErrRejected
	case s == hci.StatusInsufficientSecurity:
		kind = ErrInsufficientSecurity
	case s == hci.StatusUnknownCommand, s == hci.StatusUnsupportedFeatureOrParameter:
		kind = ErrNotSupported
	}
	return &Error{Kind: kind, Status: s}
}

// fromEvent classifies the status of a command's completion event.
func fromEvent(p hci.EventPacket) error {
	return fromStatus(hci.EventStatus(p))
}

// statusOf returns the controller status carried by err, if any.
func statusOf(err error) (hci.StatusCode, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Status, true
	}
	var herr *hci.Error
	if errors.As(err, &herr) {
		return herr.Status, true
	}
	return 0, false
}
