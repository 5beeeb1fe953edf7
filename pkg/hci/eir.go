package hci

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// EIRData is one structure of Extended Inquiry Response data, Vol 3, Part C,
// Section 8 of the Bluetooth Core Specification.
type EIRData interface {
	Marshal() ([]byte, error)
}

// Assigned Numbers, Section 2.3
const (
	eirTypeComplete16BitUUIDs uint8 = 0x03
	eirTypeShortLocalName     uint8 = 0x08
	eirTypeCompleteLocalName  uint8 = 0x09
	eirTypeTxPowerLevel       uint8 = 0x0A
)

// maxEIRLength is the size of the extended inquiry response.
const maxEIRLength = 240

func eirStructure(t uint8, value []byte) ([]byte, error) {
	if len(value)+2 > maxEIRLength {
		return nil, errors.Errorf("eir structure 0x%02x too long: %d bytes", t, len(value))
	}
	return append([]byte{byte(len(value) + 1), t}, value...), nil
}

type CompleteLocalName string

func (l CompleteLocalName) Marshal() ([]byte, error) {
	return eirStructure(eirTypeCompleteLocalName, []byte(l))
}

type ShortLocalName string

func (l ShortLocalName) Marshal() ([]byte, error) {
	return eirStructure(eirTypeShortLocalName, []byte(l))
}

// Complete16BitServiceUUIDs lists every 16 bit service class the device offers.
type Complete16BitServiceUUIDs []uint16

func (u Complete16BitServiceUUIDs) Marshal() ([]byte, error) {
	value := make([]byte, 2*len(u))
	for i, id := range u {
		binary.LittleEndian.PutUint16(value[2*i:], id)
	}
	return eirStructure(eirTypeComplete16BitUUIDs, value)
}

// TxPowerLevel is in dBm.
type TxPowerLevel int8

func (p TxPowerLevel) Marshal() ([]byte, error) {
	return eirStructure(eirTypeTxPowerLevel, []byte{byte(p)})
}

// MarshalEIR concatenates data into an extended inquiry response.
func MarshalEIR(data ...EIRData) ([]byte, error) {
	var eir []byte
	for _, d := range data {
		b, err := d.Marshal()
		if err != nil {
			return nil, err
		}
		eir = append(eir, b...)
	}
	if len(eir) > maxEIRLength {
		return nil, errors.Errorf("extended inquiry response too long: %d bytes", len(eir))
	}
	return eir, nil
}
