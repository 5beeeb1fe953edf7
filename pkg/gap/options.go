package gap

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultCreateConnectionTimeout is how long a Create Connection may take
// before it is canceled.
const DefaultCreateConnectionTimeout = 20 * time.Second

// Timer is a pending call scheduled by the manager's timer function.
type Timer interface {
	Stop() bool
}

// An Option is a configuration function, which configures the manager.
type Option func(*Manager) error

// OptRetryWindow sets how long after the first attempt a failed connection
// is retried.
func OptRetryWindow(d time.Duration) Option {
	return func(m *Manager) error {
		if d < 0 {
			return errors.Errorf("negative retry window %v", d)
		}
		m.retryWindow = d
		return nil
	}
}

// OptCreateConnectionTimeout sets the host timeout of Create Connection.
func OptCreateConnectionTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return errors.Errorf("invalid create connection timeout %v", d)
		}
		m.createConnectionTimeout = d
		return nil
	}
}

// OptPairingDelegate sets the user interaction used by pairing. Without one
// only pairing that needs no interaction succeeds.
func OptPairingDelegate(d PairingDelegate) Option {
	return func(m *Manager) error {
		m.delegate = d
		return nil
	}
}

// OptPeerCache sets the peer cache, for example one restored with bonds.
func OptPeerCache(c *PeerCache) Option {
	return func(m *Manager) error {
		m.peers = c
		return nil
	}
}

func OptLogger(l *zap.Logger) Option {
	return func(m *Manager) error {
		m.log = l
		return nil
	}
}

// OptClock replaces time.Now.
func OptClock(now func() time.Time) Option {
	return func(m *Manager) error {
		m.now = now
		return nil
	}
}

// OptTimerFunc replaces time.AfterFunc. f runs on an arbitrary goroutine.
func OptTimerFunc(afterFunc func(d time.Duration, f func()) Timer) Option {
	return func(m *Manager) error {
		m.afterFunc = afterFunc
		return nil
	}
}

// OptDisconnectOnPairingFailure sets whether a failed pairing attempt tears
// the link down. It does by default.
func OptDisconnectOnPairingFailure(disconnect bool) Option {
	return func(m *Manager) error {
		m.disconnectOnPairingFailure = disconnect
		return nil
	}
}
