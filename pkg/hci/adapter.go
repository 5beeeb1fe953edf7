package hci

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("hci: adapter closed")

// Transport carries whole HCI packets to and from a controller.
type Transport interface {
	ReadPacket() (Packet, error)
	WritePacket(Packet) error
	Close() error
}

type TransactionID string

type HandlerID string

// CommandCallback receives the event that ended a command transaction: a
// Command Status, a Command Complete or the command's completion event.
type CommandCallback func(id TransactionID, p EventPacket)

type EventHandler func(p EventPacket)

type ACLHandler func(p *ACLDataPacket)

// Commander issues commands and reports their outcome asynchronously.
type Commander interface {
	// SendCommand writes p and ends the transaction on complete, which may be
	// EventCodeCommandStatus, EventCodeCommandComplete or an asynchronous
	// completion event. A failing Command Status always ends it.
	SendCommand(p CommandPacket, complete EventCode, cb CommandCallback) TransactionID
	// SendLECommand ends the transaction on the given LE meta subevent.
	SendLECommand(p CommandPacket, sub LEMetaSubeventCode, cb CommandCallback) TransactionID
}

// ACLWriter sends ACL data packets subject to controller flow control.
type ACLWriter interface {
	WriteACL(p *ACLDataPacket) error
	MaxACLPayload() int
}

type transaction struct {
	id             TransactionID
	cmd            CommandPacket
	complete       EventCode
	sub            LEMetaSubeventCode
	statusReceived bool
	cb             CommandCallback
}

// matches reports whether p is the completion event of tx. When both the
// command and the event carry a connection handle or an address they must
// agree.
func (tx *transaction) matches(p EventPacket) bool {
	if !tx.statusReceived || tx.complete != p.EventCode() {
		return false
	}
	if tx.complete == EventCodeLEMeta {
		le, ok := p.(LEMetaEventPacket)
		if !ok || le.SubeventCode() != tx.sub {
			return false
		}
	}
	if c, ok := tx.cmd.(handleParam); ok {
		if e, ok := p.(handleParam); ok && c.handle() != e.handle() {
			return false
		}
	}
	if c, ok := tx.cmd.(addrParam); ok {
		if e, ok := p.(addrParam); ok && c.addr() != e.addr() {
			return false
		}
	}
	return true
}

type eventHandler struct {
	id   HandlerID
	code EventCode
	sub  LEMetaSubeventCode
	h    EventHandler
}

// Adapter multiplexes a controller between command transactions, event
// handlers and per-link ACL handlers. Every callback runs on the adapter's
// dispatcher, in the order the controller reported the packets.
type Adapter struct {
	transport  Transport
	dispatcher *Dispatcher
	log        *zap.Logger
	closed     *atomic.Bool

	mu          sync.Mutex
	pending     []*transaction
	handlers    []*eventHandler
	aclHandlers map[uint16]ACLHandler

	// ACL buffer accounting is updated from the read loop so that writers
	// blocked on the dispatcher are still woken up.
	aclCond             *sync.Cond
	aclMTU              uint16
	aclPacketsRemaining uint16
	aclPacketsPending   map[uint16]uint16
}

func NewAdapter(t Transport) *Adapter {
	a := &Adapter{
		transport:         t,
		dispatcher:        NewDispatcher(),
		log:               zap.L().Named("hci"),
		closed:            atomic.NewBool(false),
		aclHandlers:       make(map[uint16]ACLHandler),
		aclCond:           sync.NewCond(&sync.Mutex{}),
		aclMTU:            1021,
		aclPacketsPending: make(map[uint16]uint16),
	}
	go a.readLoop()
	return a
}

func (a *Adapter) readLoop() {
	for {
		p, err := a.transport.ReadPacket()
		if err != nil {
			if errors.Is(err, ErrUnsupportedPacket) || errors.Is(err, ErrMalformedPacket) {
				a.log.Debug("skipping packet", zap.Error(err))
				continue
			}
			if !a.closed.Load() && !errors.Is(err, io.EOF) {
				a.log.Warn("read failed", zap.Error(err))
			}
			a.dispatcher.Post(a.failPending)
			return
		}
		switch p := p.(type) {
		case *NumberOfCompletedPacketsEventPacket:
			a.aclCond.L.Lock()
			for i := 0; i < int(p.NumHandles); i++ {
				n := p.NumCompletedPackets[i]
				if pending := a.aclPacketsPending[p.ConnectionHandles[i]]; n > pending {
					n = pending
				}
				a.aclPacketsPending[p.ConnectionHandles[i]] -= n
				a.aclPacketsRemaining += n
			}
			a.aclCond.Broadcast()
			a.aclCond.L.Unlock()
		case *DisconnectionCompleteEventPacket:
			a.aclCond.L.Lock()
			a.aclPacketsRemaining += a.aclPacketsPending[p.ConnectionHandle]
			delete(a.aclPacketsPending, p.ConnectionHandle)
			a.aclCond.Broadcast()
			a.aclCond.L.Unlock()
		}
		a.dispatcher.Post(func() { a.handlePacket(p) })
	}
}

// failPending ends every open transaction as if the controller had rejected it.
func (a *Adapter) failPending() {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()
	for _, tx := range pending {
		tx.cb(tx.id, &CommandStatusEventPacket{Status: StatusHardwareFailure, CommandOpcode: tx.cmd.Opcode()})
	}
}

func (a *Adapter) handlePacket(p Packet) {
	switch p := p.(type) {
	case *ACLDataPacket:
		a.mu.Lock()
		h := a.aclHandlers[p.ConnectionHandle]
		a.mu.Unlock()
		if h == nil {
			a.log.Debug("dropping acl data", zap.Uint16("handle", p.ConnectionHandle))
			return
		}
		h(p)
	case *CommandStatusEventPacket:
		if tx := a.takeOnStatus(p); tx != nil {
			tx.cb(tx.id, p)
		}
	case *CommandCompleteEventPacket:
		tx := a.take(func(tx *transaction) bool {
			return tx.complete == EventCodeCommandComplete && tx.cmd.Opcode() == p.CommandOpcode
		})
		if tx != nil {
			tx.cb(tx.id, p)
		}
	case EventPacket:
		if d, ok := p.(*DisconnectionCompleteEventPacket); ok && d.Status == StatusSuccess {
			a.failLink(d.ConnectionHandle)
		}
		if tx := a.take(func(tx *transaction) bool { return tx.matches(p) }); tx != nil {
			tx.cb(tx.id, p)
			return
		}
		a.dispatchEvent(p)
	}
}

// failLink ends the transactions still waiting for a completion event from a
// link that is gone. The controller may hand the same handle to the next link,
// whose completions must not be taken by them.
func (a *Adapter) failLink(handle uint16) {
	a.mu.Lock()
	var stale []*transaction
	kept := a.pending[:0]
	for _, tx := range a.pending {
		if c, ok := tx.cmd.(handleParam); ok && tx.statusReceived && c.handle() == handle {
			stale = append(stale, tx)
			continue
		}
		kept = append(kept, tx)
	}
	a.pending = kept
	a.mu.Unlock()
	for _, tx := range stale {
		a.log.Debug("link gone, ending transaction",
			zap.Uint16("handle", handle),
			zap.Uint16("opcode", uint16(tx.cmd.Opcode())))
		tx.cb(tx.id, &CommandStatusEventPacket{Status: StatusUnknownConnectionIdentifier, CommandOpcode: tx.cmd.Opcode()})
	}
}

func (a *Adapter) takeOnStatus(p *CommandStatusEventPacket) *transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, tx := range a.pending {
		if tx.statusReceived || tx.cmd.Opcode() != p.CommandOpcode {
			continue
		}
		if p.Status != StatusSuccess || tx.complete == EventCodeCommandStatus {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return tx
		}
		tx.statusReceived = true
		return nil
	}
	return nil
}

func (a *Adapter) take(match func(*transaction) bool) *transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, tx := range a.pending {
		if match(tx) {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return tx
		}
	}
	return nil
}

func (a *Adapter) dispatchEvent(p EventPacket) {
	var sub LEMetaSubeventCode
	if le, ok := p.(LEMetaEventPacket); ok {
		sub = le.SubeventCode()
	}
	a.mu.Lock()
	var hs []EventHandler
	for _, h := range a.handlers {
		if h.code == p.EventCode() && h.sub == sub {
			hs = append(hs, h.h)
		}
	}
	a.mu.Unlock()
	if len(hs) == 0 {
		a.log.Debug("unhandled event", zap.Uint8("code", uint8(p.EventCode())))
	}
	for _, h := range hs {
		h(p)
	}
}

func (a *Adapter) SendCommand(p CommandPacket, complete EventCode, cb CommandCallback) TransactionID {
	return a.send(&transaction{cmd: p, complete: complete, cb: cb})
}

func (a *Adapter) SendLECommand(p CommandPacket, sub LEMetaSubeventCode, cb CommandCallback) TransactionID {
	return a.send(&transaction{cmd: p, complete: EventCodeLEMeta, sub: sub, cb: cb})
}

func (a *Adapter) send(tx *transaction) TransactionID {
	tx.id = TransactionID(uuid.NewString())
	a.mu.Lock()
	a.pending = append(a.pending, tx)
	a.mu.Unlock()
	if err := a.transport.WritePacket(tx.cmd); err != nil {
		a.log.Warn("command write failed", zap.Uint16("opcode", uint16(tx.cmd.Opcode())), zap.Error(err))
		if a.take(func(t *transaction) bool { return t == tx }) != nil {
			a.Post(func() {
				tx.cb(tx.id, &CommandStatusEventPacket{Status: StatusHardwareFailure, CommandOpcode: tx.cmd.Opcode()})
			})
		}
	}
	return tx.id
}

// op issues p and blocks until its Command Complete arrives. It returns the
// return parameters, status byte included. It must not be called from the
// dispatcher.
func (a *Adapter) op(p CommandPacket) ([]byte, error) {
	done := make(chan EventPacket, 1)
	a.SendCommand(p, EventCodeCommandComplete, func(_ TransactionID, e EventPacket) {
		done <- e
	})
	select {
	case e := <-done:
		if err := EventStatus(e).Err(); err != nil {
			return nil, errors.Wrapf(err, "opcode 0x%04x", uint16(p.Opcode()))
		}
		cc, ok := e.(*CommandCompleteEventPacket)
		if !ok {
			return nil, errIncorrectPacket
		}
		if len(cc.ReturnParameters) == 0 {
			return nil, io.ErrShortBuffer
		}
		return cc.ReturnParameters, nil
	case <-a.dispatcher.Done():
		return nil, ErrClosed
	}
}

// AddEventHandler registers h for events that are not the completion of a
// pending command. Handlers for the same code run in registration order.
func (a *Adapter) AddEventHandler(code EventCode, h EventHandler) HandlerID {
	return a.addHandler(&eventHandler{code: code, h: h})
}

func (a *Adapter) AddLEEventHandler(sub LEMetaSubeventCode, h EventHandler) HandlerID {
	return a.addHandler(&eventHandler{code: EventCodeLEMeta, sub: sub, h: h})
}

func (a *Adapter) addHandler(h *eventHandler) HandlerID {
	h.id = HandlerID(uuid.NewString())
	a.mu.Lock()
	a.handlers = append(a.handlers, h)
	a.mu.Unlock()
	return h.id
}

func (a *Adapter) RemoveEventHandler(id HandlerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, h := range a.handlers {
		if h.id == id {
			a.handlers = append(a.handlers[:i], a.handlers[i+1:]...)
			return
		}
	}
}

func (a *Adapter) SetACLHandler(handle uint16, h ACLHandler) {
	a.mu.Lock()
	a.aclHandlers[handle] = h
	a.mu.Unlock()
}

func (a *Adapter) RemoveACLHandler(handle uint16) {
	a.mu.Lock()
	delete(a.aclHandlers, handle)
	a.mu.Unlock()
}

// Post runs f on the dispatcher and reports whether it was queued.
func (a *Adapter) Post(f func()) bool {
	return a.dispatcher.Post(f)
}

func (a *Adapter) setACLBuffers(mtu uint16, packets uint16) {
	a.aclCond.L.Lock()
	a.aclMTU = mtu
	a.aclPacketsRemaining = packets
	a.aclCond.Broadcast()
	a.aclCond.L.Unlock()
}

func (a *Adapter) MaxACLPayload() int {
	a.aclCond.L.Lock()
	defer a.aclCond.L.Unlock()
	return int(a.aclMTU)
}

// WriteACL blocks until the controller has a free ACL buffer.
func (a *Adapter) WriteACL(p *ACLDataPacket) error {
	a.aclCond.L.Lock()
	for a.aclPacketsRemaining == 0 && !a.closed.Load() {
		a.aclCond.Wait()
	}
	if a.closed.Load() {
		a.aclCond.L.Unlock()
		return ErrClosed
	}
	a.aclPacketsRemaining--
	a.aclPacketsPending[p.ConnectionHandle]++
	a.aclCond.L.Unlock()
	return a.transport.WritePacket(p)
}

func (a *Adapter) Close() error {
	if !a.closed.CAS(false, true) {
		return nil
	}
	a.aclCond.L.Lock()
	a.aclCond.Broadcast()
	a.aclCond.L.Unlock()
	err := a.transport.Close()
	a.dispatcher.Close()
	return err
}
