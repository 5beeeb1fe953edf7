package gap

import (
	"fmt"
	"testing"
	"time"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/stretchr/testify/require"
)

type sentCommand struct {
	p        hci.CommandPacket
	complete hci.EventCode
	cb       hci.CommandCallback
	done     bool
}

type registeredHandler struct {
	code hci.EventCode
	sub  hci.LEMetaSubeventCode
	h    hci.EventHandler
}

// fakeController records commands and runs posted tasks inline.
type fakeController struct {
	sent     []*sentCommand
	handlers map[hci.HandlerID]registeredHandler
	nextID   int
	acl      map[uint16]hci.ACLHandler
	written  []*hci.ACLDataPacket
}

func newFakeController() *fakeController {
	return &fakeController{
		handlers: make(map[hci.HandlerID]registeredHandler),
		acl:      make(map[uint16]hci.ACLHandler),
	}
}

func (c *fakeController) SendCommand(p hci.CommandPacket, complete hci.EventCode, cb hci.CommandCallback) hci.TransactionID {
	c.sent = append(c.sent, &sentCommand{p: p, complete: complete, cb: cb})
	return hci.TransactionID(fmt.Sprint(len(c.sent)))
}

func (c *fakeController) SendLECommand(p hci.CommandPacket, sub hci.LEMetaSubeventCode, cb hci.CommandCallback) hci.TransactionID {
	return c.SendCommand(p, hci.EventCodeLEMeta, cb)
}

func (c *fakeController) Post(f func()) bool {
	f()
	return true
}

func (c *fakeController) AddEventHandler(code hci.EventCode, h hci.EventHandler) hci.HandlerID {
	c.nextID++
	id := hci.HandlerID(fmt.Sprint(c.nextID))
	c.handlers[id] = registeredHandler{code: code, h: h}
	return id
}

func (c *fakeController) AddLEEventHandler(sub hci.LEMetaSubeventCode, h hci.EventHandler) hci.HandlerID {
	c.nextID++
	id := hci.HandlerID(fmt.Sprint(c.nextID))
	c.handlers[id] = registeredHandler{code: hci.EventCodeLEMeta, sub: sub, h: h}
	return id
}

func (c *fakeController) RemoveEventHandler(id hci.HandlerID) {
	delete(c.handlers, id)
}

func (c *fakeController) SetACLHandler(handle uint16, h hci.ACLHandler) {
	c.acl[handle] = h
}

func (c *fakeController) RemoveACLHandler(handle uint16) {
	delete(c.acl, handle)
}

func (c *fakeController) WriteACL(p *hci.ACLDataPacket) error {
	c.written = append(c.written, p)
	return nil
}

func (c *fakeController) MaxACLPayload() int {
	return 1021
}

// event delivers p to the handlers registered for its code.
func (c *fakeController) event(p hci.EventPacket) {
	var sub hci.LEMetaSubeventCode
	if le, ok := p.(hci.LEMetaEventPacket); ok {
		sub = le.SubeventCode()
	}
	for _, r := range c.handlers {
		if r.code == p.EventCode() && r.sub == sub {
			r.h(p)
		}
	}
}

// commands returns the commands sent with op, answered or not.
func (c *fakeController) commands(op hci.Opcode) []*sentCommand {
	var out []*sentCommand
	for _, s := range c.sent {
		if s.p.Opcode() == op {
			out = append(out, s)
		}
	}
	return out
}

// pending returns the single unanswered command with op.
func (c *fakeController) pending(t *testing.T, op hci.Opcode) *sentCommand {
	t.Helper()
	var found *sentCommand
	for _, s := range c.sent {
		if s.p.Opcode() == op && !s.done {
			require.Nil(t, found, "more than one pending command 0x%04x", uint16(op))
			found = s
		}
	}
	require.NotNil(t, found, "no pending command 0x%04x", uint16(op))
	return found
}

func (c *fakeController) answer(t *testing.T, op hci.Opcode, e hci.EventPacket) {
	t.Helper()
	s := c.pending(t, op)
	s.done = true
	s.cb("", e)
}

func commandStatus(op hci.Opcode, status hci.StatusCode) *hci.CommandStatusEventPacket {
	return &hci.CommandStatusEventPacket{Status: status, NumCommandPackets: 1, CommandOpcode: op}
}

func commandComplete(op hci.Opcode) *hci.CommandCompleteEventPacket {
	return &hci.CommandCompleteEventPacket{NumCommandPackets: 1, CommandOpcode: op}
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) fire() {
	if !t.stopped {
		t.stopped = true
		t.f()
	}
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) lastTimer(t *testing.T) *fakeTimer {
	t.Helper()
	require.NotEmpty(t, c.timers)
	return c.timers[len(c.timers)-1]
}
