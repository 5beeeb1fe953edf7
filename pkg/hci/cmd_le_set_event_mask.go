package hci

import (
	"encoding/binary"
)

// Section 7.8.1
type LEEventMask uint64

const (
	LEEventMaskConnectionCompleteEvent             LEEventMask = (1 << 0)
	LEEventMaskAdvertisingReportEvent              LEEventMask = (1 << 1)
	LEEventMaskConnectionUpdateCompleteEvent       LEEventMask = (1 << 2)
	LEEventMaskReadRemoteUsedFeaturesCompleteEvent LEEventMask = (1 << 3)
	LEEventMaskLongTermKeyRequestEvent             LEEventMask = (1 << 4)
)

type HCILESetEventMaskCommandPacket struct {
	LEEventMask
}

func (p *HCILESetEventMaskCommandPacket) Marshal() ([]byte, error) {
	buf := newCommandBuffer(OpcodeLESetEventMask, 8)
	binary.LittleEndian.PutUint64(buf[4:], uint64(p.LEEventMask))
	return buf, nil
}

func (p *HCILESetEventMaskCommandPacket) Unmarshal(buf []byte) error {
	b, err := commandParams(buf, OpcodeLESetEventMask, 8)
	if err != nil {
		return err
	}
	p.LEEventMask = LEEventMask(binary.LittleEndian.Uint64(b))
	return nil
}

func (p *HCILESetEventMaskCommandPacket) Opcode() Opcode {
	return OpcodeLESetEventMask
}

func (a *Adapter) LESetEventMask(mask LEEventMask) error {
	_, err := a.op(&HCILESetEventMaskCommandPacket{LEEventMask: mask})
	return err
}
