package gap

import (
	"time"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
)

// DefaultRetryWindow bounds how long after the first Create Connection a
// failed attempt is retried.
const DefaultRetryWindow = 20 * time.Second

// ConnectionCallback receives the outcome of a connection request. conn is
// nil when err is not.
type ConnectionCallback func(err error, conn *Connection)

// ConnectionRequest aggregates every caller waiting on an outbound
// connection to one address.
type ConnectionRequest struct {
	addr   hci.BDAddr
	peerID PeerID

	callbacks   []ConnectionCallback
	hasIncoming bool
	roleChange  *hci.Role

	firstAttempt time.Time
	now          func() time.Time
	retryWindow  time.Duration

	resolved bool
	err      error
	conn     *Connection
}

func (r *ConnectionRequest) Address() hci.BDAddr {
	return r.addr
}

func (r *ConnectionRequest) PeerID() PeerID {
	return r.peerID
}

// AddCallback queues cb, or calls it right away if the request has resolved.
func (r *ConnectionRequest) AddCallback(cb ConnectionCallback) {
	if r.resolved {
		cb(r.err, r.conn)
		return
	}
	r.callbacks = append(r.callbacks, cb)
}

// BeginIncoming marks that the peer is connecting to us while we may also be
// connecting to it.
func (r *ConnectionRequest) BeginIncoming() {
	r.hasIncoming = true
}

func (r *ConnectionRequest) CompleteIncoming() {
	r.hasIncoming = false
}

func (r *ConnectionRequest) HasIncoming() bool {
	return r.hasIncoming
}

// AwaitingOutgoing reports whether any caller asked for this connection.
func (r *ConnectionRequest) AwaitingOutgoing() bool {
	return !r.resolved && len(r.callbacks) > 0
}

// SetRoleChange overrides the role requested when accepting the peer's
// connection.
func (r *ConnectionRequest) SetRoleChange(role hci.Role) {
	r.roleChange = &role
}

func (r *ConnectionRequest) RoleChange() (hci.Role, bool) {
	if r.roleChange == nil {
		return 0, false
	}
	return *r.roleChange, true
}

// RecordCreateConnectionAttempt stamps the first Create Connection. Later
// attempts keep the original stamp so retries stay within the window.
func (r *ConnectionRequest) RecordCreateConnectionAttempt() {
	if r.firstAttempt.IsZero() {
		r.firstAttempt = r.now()
	}
}

// ShouldRetry reports whether a failed attempt is worth repeating.
func (r *ConnectionRequest) ShouldRetry(err error) bool {
	if r.resolved || r.firstAttempt.IsZero() || !retryable(err) {
		return false
	}
	return r.now().Sub(r.firstAttempt) < r.retryWindow
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, ErrRejected) || errors.Is(err, ErrCanceled) {
		return false
	}
	if status, ok := statusOf(err); ok {
		switch status {
		case hci.StatusPageTimeout,
			hci.StatusLMPResponseTimeout,
			hci.StatusControllerBusy,
			hci.StatusConnectionFailedToBeEstablished:
			return true
		}
		return false
	}
	return errors.Is(err, ErrTimedOut)
}

// NotifyCallbacks resolves the request. On success newConn is called once
// and every callback observes the same connection.
func (r *ConnectionRequest) NotifyCallbacks(err error, newConn func() *Connection) {
	if r.resolved {
		return
	}
	r.resolved = true
	r.err = err
	if err == nil && newConn != nil {
		r.conn = newConn()
	}
	if err == nil && r.conn == nil {
		r.err = ErrFailed
	}
	callbacks := r.callbacks
	r.callbacks = nil
	for _, cb := range callbacks {
		cb(r.err, r.conn)
	}
}

// Close fails every waiting caller with ErrNotSupported if the request has
// not resolved.
func (r *ConnectionRequest) Close() {
	r.NotifyCallbacks(ErrNotSupported, nil)
}

func newConnectionRequest(addr hci.BDAddr, peerID PeerID, now func() time.Time, retryWindow time.Duration) *ConnectionRequest {
	return &ConnectionRequest{
		addr:        addr,
		peerID:      peerID,
		now:         now,
		retryWindow: retryWindow,
	}
}

// Registry holds at most one ConnectionRequest per address.
type Registry struct {
	requests    map[hci.BDAddr]*ConnectionRequest
	order       []hci.BDAddr
	now         func() time.Time
	retryWindow time.Duration
}

func NewRegistry(now func() time.Time, retryWindow time.Duration) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		requests:    make(map[hci.BDAddr]*ConnectionRequest),
		now:         now,
		retryWindow: retryWindow,
	}
}

// GetOrCreate returns the request for addr and whether it was just created.
func (g *Registry) GetOrCreate(addr hci.BDAddr, peerID PeerID) (*ConnectionRequest, bool) {
	if r, ok := g.requests[addr]; ok {
		return r, false
	}
	r := newConnectionRequest(addr, peerID, g.now, g.retryWindow)
	g.requests[addr] = r
	g.order = append(g.order, addr)
	return r, true
}

func (g *Registry) Get(addr hci.BDAddr) *ConnectionRequest {
	return g.requests[addr]
}

// Detach hands the request off, typically to a new Connection, without
// notifying anyone.
func (g *Registry) Detach(addr hci.BDAddr) *ConnectionRequest {
	r, ok := g.requests[addr]
	if !ok {
		return nil
	}
	delete(g.requests, addr)
	for i, a := range g.order {
		if a == addr {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return r
}

// Find returns the oldest request for which match is true.
func (g *Registry) Find(match func(*ConnectionRequest) bool) *ConnectionRequest {
	for _, addr := range g.order {
		if r := g.requests[addr]; match(r) {
			return r
		}
	}
	return nil
}

// Remove drops the request and fails its callbacks with err, or with
// ErrNotSupported if err is nil.
func (g *Registry) Remove(addr hci.BDAddr, err error) {
	r := g.Detach(addr)
	if r == nil {
		return
	}
	if err == nil {
		err = ErrNotSupported
	}
	r.NotifyCallbacks(err, nil)
}

func (g *Registry) Len() int {
	return len(g.requests)
}

// Close fails every outstanding request with ErrNotSupported.
func (g *Registry) Close() {
	for len(g.order) > 0 {
		g.Remove(g.order[0], nil)
	}
}
