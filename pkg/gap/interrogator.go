package gap

import (
	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ResultCallback receives the aggregated outcome of an interrogation.
type ResultCallback func(err error)

// CommandSet issues the queries of one interrogation. Implementations call
// Interrogation.Command or Interrogation.LECommand for every query.
type CommandSet interface {
	SendCommands(i *Interrogation)
}

// Interrogation is the token shared by the queries issued for one peer. A
// join counter tracks outstanding queries; the last one to settle completes
// the interrogation. A failure completes it at once and every later response
// is ignored.
type Interrogation struct {
	owner  *Interrogator
	peerID PeerID
	handle uint16
	cb     ResultCallback

	active      bool
	outstanding int
}

func (i *Interrogation) PeerID() PeerID {
	return i.peerID
}

func (i *Interrogation) Handle() uint16 {
	return i.handle
}

// Active is false once the interrogation has completed or been canceled.
func (i *Interrogation) Active() bool {
	return i.active
}

func (i *Interrogation) acquire() {
	i.outstanding++
}

func (i *Interrogation) release() {
	if !i.active {
		return
	}
	i.outstanding--
	if i.outstanding == 0 {
		i.complete(nil)
	}
}

// complete deactivates the token and reports err. It is a no-op once the
// token is inactive.
func (i *Interrogation) complete(err error) {
	if !i.active {
		return
	}
	i.active = false
	if i.owner.pending[i.peerID] == i {
		delete(i.owner.pending, i.peerID)
	}
	cb := i.cb
	i.cb = nil
	cb(err)
}

// Fail completes the interrogation with err, leaving any outstanding queries
// to be ignored.
func (i *Interrogation) Fail(err error) {
	i.complete(err)
}

// Command issues p and passes its completion event to onEvent. A failing
// status fails the interrogation instead. onEvent may issue further commands
// before it returns; they keep the interrogation open.
func (i *Interrogation) Command(p hci.CommandPacket, complete hci.EventCode, onEvent func(hci.EventPacket)) {
	if !i.active {
		return
	}
	i.acquire()
	i.owner.cmd.SendCommand(p, complete, func(_ hci.TransactionID, e hci.EventPacket) {
		i.settle(p, e, onEvent)
	})
}

// LECommand is Command for queries that complete with an LE meta event.
func (i *Interrogation) LECommand(p hci.CommandPacket, sub hci.LEMetaSubeventCode, onEvent func(hci.EventPacket)) {
	if !i.active {
		return
	}
	i.acquire()
	i.owner.cmd.SendLECommand(p, sub, func(_ hci.TransactionID, e hci.EventPacket) {
		i.settle(p, e, onEvent)
	})
}

func (i *Interrogation) settle(p hci.CommandPacket, e hci.EventPacket, onEvent func(hci.EventPacket)) {
	if !i.active {
		return
	}
	if err := fromEvent(e); err != nil {
		i.owner.log.Warn("interrogation command failed",
			zap.Stringer("peer", i.peerID),
			zap.Uint16("opcode", uint16(p.Opcode())),
			zap.Error(err))
		i.Fail(errors.Wrapf(err, "opcode 0x%04x", uint16(p.Opcode())))
		return
	}
	if onEvent != nil {
		onEvent(e)
	}
	i.release()
}

// Interrogator runs interrogations, at most one per peer at a time.
type Interrogator struct {
	cmd      hci.Commander
	commands CommandSet
	log      *zap.Logger

	pending map[PeerID]*Interrogation
}

func NewInterrogator(cmd hci.Commander, commands CommandSet) *Interrogator {
	return &Interrogator{
		cmd:      cmd,
		commands: commands,
		log:      zap.L().Named("interrogator"),
		pending:  make(map[PeerID]*Interrogation),
	}
}

// Start interrogates the peer on handle. cb is called exactly once.
func (it *Interrogator) Start(peerID PeerID, handle uint16, cb ResultCallback) error {
	if _, ok := it.pending[peerID]; ok {
		return errors.Wrapf(ErrInProgress, "interrogation of %v", peerID)
	}
	i := &Interrogation{
		owner:  it,
		peerID: peerID,
		handle: handle,
		cb:     cb,
		active: true,
	}
	it.pending[peerID] = i
	it.log.Debug("interrogating", zap.Stringer("peer", peerID), zap.Uint16("handle", handle))

	// Hold the token while the queries are issued so that responses
	// delivered synchronously cannot complete it early.
	i.acquire()
	it.commands.SendCommands(i)
	i.release()
	return nil
}

// Cancel completes the peer's interrogation with ErrCanceled.
func (it *Interrogator) Cancel(peerID PeerID) {
	if i, ok := it.pending[peerID]; ok {
		i.complete(ErrCanceled)
	}
}

// Close cancels every outstanding interrogation.
func (it *Interrogator) Close() {
	for _, i := range it.pending {
		i.complete(ErrCanceled)
	}
}
