package hci

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrLinkClosed    = errors.New("link closed")
	errNoLinkKey     = errors.New("no link key")
	errUnexpectedACL = errors.New("unexpected acl fragment")
)

// EncryptionChangeCallback is told the outcome of every encryption change on
// the link, requested or not.
type EncryptionChangeCallback func(err error, enabled bool)

// Link is an open ACL logical link. It is not safe for concurrent use and is
// driven from the adapter's dispatcher.
type Link struct {
	cmd Commander
	acl ACLWriter
	log *zap.Logger

	handle   uint16
	peer     BDAddr
	role     Role
	linkType LinkType

	encryption         EncryptionEnabled
	linkKey            *LinkKey
	linkKeyType        LinkKeyType
	onEncryptionChange EncryptionChangeCallback

	onFrame func([]byte)
	rx      []byte

	disconnecting bool
	closed        bool
}

func NewLink(cmd Commander, acl ACLWriter, handle uint16, peer BDAddr, role Role, linkType LinkType) *Link {
	return &Link{
		cmd:      cmd,
		acl:      acl,
		log:      zap.L().Named("link").With(zap.Uint16("handle", handle), zap.Stringer("peer", peer)),
		handle:   handle,
		peer:     peer,
		role:     role,
		linkType: linkType,
	}
}

func (l *Link) Handle() uint16 {
	return l.handle
}

func (l *Link) PeerAddress() BDAddr {
	return l.peer
}

func (l *Link) Role() Role {
	return l.role
}

func (l *Link) Type() LinkType {
	return l.linkType
}

// SetRole records a role switch reported by the controller.
func (l *Link) SetRole(role Role) {
	l.role = role
}

func (l *Link) Encrypted() bool {
	return l.encryption != EncryptionOff
}

func (l *Link) SetLinkKey(key LinkKey, keyType LinkKeyType) {
	l.linkKey = &key
	l.linkKeyType = keyType
}

func (l *Link) LinkKey() (LinkKey, LinkKeyType, bool) {
	if l.linkKey == nil {
		return LinkKey{}, 0, false
	}
	return *l.linkKey, l.linkKeyType, true
}

func (l *Link) SetEncryptionChangeCallback(cb EncryptionChangeCallback) {
	l.onEncryptionChange = cb
}

// StartEncryption asks the controller to encrypt the link. The result is
// reported through the encryption change callback.
func (l *Link) StartEncryption() error {
	if l.closed {
		return ErrLinkClosed
	}
	if l.linkKey == nil {
		return errNoLinkKey
	}
	l.cmd.SendCommand(&SetConnectionEncryptionCommandPacket{
		ConnectionHandle: l.handle,
		EncryptionEnable: true,
	}, EventCodeCommandStatus, func(_ TransactionID, p EventPacket) {
		if err := EventStatus(p).Err(); err != nil {
			l.log.Warn("set connection encryption failed", zap.Error(err))
			l.notifyEncryptionChange(err, false)
		}
	})
	return nil
}

// HandleEncryptionChange applies an Encryption Change event for this link.
func (l *Link) HandleEncryptionChange(p *EncryptionChangeEventPacket) {
	if err := p.Status.Err(); err != nil {
		l.notifyEncryptionChange(err, false)
		return
	}
	l.encryption = p.EncryptionEnabled
	l.log.Debug("encryption changed", zap.Uint8("enabled", uint8(p.EncryptionEnabled)))
	l.notifyEncryptionChange(nil, l.Encrypted())
}

func (l *Link) notifyEncryptionChange(err error, enabled bool) {
	if l.closed || l.onEncryptionChange == nil {
		return
	}
	l.onEncryptionChange(err, enabled)
}

// Disconnect sends a Disconnect command once; later calls are no-ops.
func (l *Link) Disconnect(reason StatusCode) {
	if l.disconnecting || l.closed {
		return
	}
	l.disconnecting = true
	l.log.Info("disconnecting", zap.Stringer("reason", reason))
	l.cmd.SendCommand(&DisconnectCommandPacket{
		ConnectionHandle: l.handle,
		Reason:           reason,
	}, EventCodeCommandStatus, func(_ TransactionID, p EventPacket) {
		if err := EventStatus(p).Err(); err != nil {
			l.log.Warn("disconnect failed", zap.Error(err))
		}
	})
}

// SetFrameHandler receives every reassembled basic L2CAP frame, header included.
func (l *Link) SetFrameHandler(h func([]byte)) {
	l.onFrame = h
}

// HandleACL reassembles ACL fragments into L2CAP frames.
func (l *Link) HandleACL(p *ACLDataPacket) error {
	if l.closed {
		return ErrLinkClosed
	}
	switch p.PacketBoundaryFlag {
	case PacketBoundaryContinuation:
		if l.rx == nil {
			return errUnexpectedACL
		}
		l.rx = append(l.rx, p.Payload...)
	case PacketBoundaryFirstFlushable, PacketBoundaryFirstNonFlushable:
		if len(l.rx) > 0 {
			l.log.Warn("dropping incomplete frame", zap.Int("length", len(l.rx)))
		}
		l.rx = append([]byte(nil), p.Payload...)
	default:
		return errUnexpectedACL
	}
	if len(l.rx) >= 4 && len(l.rx) >= int(binary.LittleEndian.Uint16(l.rx[:2]))+4 {
		frame := l.rx
		l.rx = nil
		if l.onFrame != nil {
			l.onFrame(frame)
		}
	}
	return nil
}

// Write fragments buf, a complete L2CAP frame, to the controller's ACL MTU.
func (l *Link) Write(buf []byte) (int, error) {
	if l.closed {
		return 0, ErrLinkClosed
	}
	mtu := l.acl.MaxACLPayload()
	for i := 0; i < len(buf); i += mtu {
		pb := PacketBoundaryFirstNonFlushable
		if i > 0 {
			pb = PacketBoundaryContinuation
		}

		j := i + mtu
		if j > len(buf) {
			j = len(buf)
		}

		p := &ACLDataPacket{
			ConnectionHandle:   l.handle,
			PacketBoundaryFlag: pb,
			Payload:            buf[i:j],
		}
		if err := l.acl.WriteACL(p); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// Close stops all callbacks from the link. It does not disconnect.
func (l *Link) Close() error {
	l.closed = true
	l.onEncryptionChange = nil
	l.onFrame = nil
	l.rx = nil
	return nil
}
