package hci

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type PeerAddressType uint8

const (
	PeerAddressTypePublicDeviceAddress PeerAddressType = 0x00
	PeerAddressTypeRandomDeviceAddress PeerAddressType = 0x01
)

// BDAddr is stored in controller (little-endian) byte order.
type BDAddr [6]byte

// String formats the address most significant byte first, e.g. 00:1A:7D:DA:71:13.
func (a BDAddr) String() string {
	var sb strings.Builder
	for i := len(a) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", a[i])
		if i > 0 {
			sb.WriteByte(':')
		}
	}
	return sb.String()
}

// ParseBDAddr parses the colon separated form produced by BDAddr.String.
func ParseBDAddr(s string) (BDAddr, error) {
	var addr BDAddr
	parts := strings.Split(s, ":")
	if len(parts) != len(addr) {
		return addr, errors.Errorf("invalid address %q", s)
	}
	for i, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil || len(b) != 1 {
			return addr, errors.Errorf("invalid address %q", s)
		}
		addr[len(addr)-1-i] = b[0]
	}
	return addr, nil
}

// ConnectionHandle values are 12 bits wide.
const ConnectionHandleMax uint16 = 0x0EFF

type LinkType uint8

const (
	LinkTypeSCO  LinkType = 0x00
	LinkTypeACL  LinkType = 0x01
	LinkTypeESCO LinkType = 0x02

	// LinkTypeLE is not an HCI value; it marks links created by LE connection complete.
	LinkTypeLE LinkType = 0xFF
)

// ClassOfDevice is the 24 bit class of device field.
type ClassOfDevice [3]byte

type PageScanRepetitionMode uint8

const (
	PageScanRepetitionModeR0 PageScanRepetitionMode = 0x00
	PageScanRepetitionModeR1 PageScanRepetitionMode = 0x01
	PageScanRepetitionModeR2 PageScanRepetitionMode = 0x02
)

// Packet types allowed for ACL links; DM1|DH1|DM3|DH3|DM5|DH5.
const DefaultACLPacketTypes uint16 = 0xCC18

// Vol 3, Part C, Section 5.2.2.4
type IOCapability uint8

const (
	IOCapabilityDisplayOnly     IOCapability = 0x00
	IOCapabilityDisplayYesNo    IOCapability = 0x01
	IOCapabilityKeyboardOnly    IOCapability = 0x02
	IOCapabilityNoInputNoOutput IOCapability = 0x03
)

func (c IOCapability) String() string {
	switch c {
	case IOCapabilityDisplayOnly:
		return "DisplayOnly"
	case IOCapabilityDisplayYesNo:
		return "DisplayYesNo"
	case IOCapabilityKeyboardOnly:
		return "KeyboardOnly"
	case IOCapabilityNoInputNoOutput:
		return "NoInputNoOutput"
	}
	return fmt.Sprintf("IOCapability(0x%02x)", uint8(c))
}

// ParseIOCapability accepts the names returned by IOCapability.String.
func ParseIOCapability(s string) (IOCapability, error) {
	for _, c := range []IOCapability{
		IOCapabilityDisplayOnly,
		IOCapabilityDisplayYesNo,
		IOCapabilityKeyboardOnly,
		IOCapabilityNoInputNoOutput,
	} {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown io capability %q", s)
}

type OOBDataPresent uint8

const (
	OOBDataNotPresent OOBDataPresent = 0x00
	OOBDataP192       OOBDataPresent = 0x01
)

type AuthRequirements uint8

const (
	AuthRequirementsNoBonding            AuthRequirements = 0x00
	AuthRequirementsMITMNoBonding        AuthRequirements = 0x01
	AuthRequirementsDedicatedBonding     AuthRequirements = 0x02
	AuthRequirementsMITMDedicatedBonding AuthRequirements = 0x03
	AuthRequirementsGeneralBonding       AuthRequirements = 0x04
	AuthRequirementsMITMGeneralBonding   AuthRequirements = 0x05
)

func (r AuthRequirements) MITM() bool {
	return r&0x01 != 0
}

type LinkKey [16]byte

type LinkKeyType uint8

const (
	LinkKeyTypeCombination                    LinkKeyType = 0x00
	LinkKeyTypeDebugCombination               LinkKeyType = 0x03
	LinkKeyTypeUnauthenticatedCombinationP192 LinkKeyType = 0x04
	LinkKeyTypeAuthenticatedCombinationP192   LinkKeyType = 0x05
	LinkKeyTypeChangedCombination             LinkKeyType = 0x06
	LinkKeyTypeUnauthenticatedCombinationP256 LinkKeyType = 0x07
	LinkKeyTypeAuthenticatedCombinationP256   LinkKeyType = 0x08
)

// Authenticated reports whether the key was generated with MITM protection.
func (t LinkKeyType) Authenticated() bool {
	return t == LinkKeyTypeAuthenticatedCombinationP192 || t == LinkKeyTypeAuthenticatedCombinationP256
}

// SecureConnections reports whether the key was generated with P-256.
func (t LinkKeyType) SecureConnections() bool {
	return t == LinkKeyTypeUnauthenticatedCombinationP256 || t == LinkKeyTypeAuthenticatedCombinationP256
}

type EncryptionEnabled uint8

const (
	EncryptionOff    EncryptionEnabled = 0x00
	EncryptionE0     EncryptionEnabled = 0x01
	EncryptionAESCCM EncryptionEnabled = 0x02
)

// Vol 2, Part C, Section 3.3. Bit positions are within a 64 bit feature page.
const (
	LMPFeatureEncryption              uint = 2
	LMPFeatureSecureSimplePairing     uint = 51
	LMPFeatureExtendedFeatures        uint = 63
	LMPFeatureSecureSimplePairingHost uint = 0 // page 1
	LMPFeatureSecureConnectionsHost   uint = 3 // page 1
)

// LMPFeatures holds up to three pages of remote LMP features.
type LMPFeatures struct {
	Pages      [3]uint64
	MaxPage    uint8
	KnownPages uint8 // bit i set when page i has been read
}

func (f *LMPFeatures) SetPage(page uint8, bits uint64) {
	if int(page) >= len(f.Pages) {
		return
	}
	f.Pages[page] = bits
	f.KnownPages |= 1 << page
}

func (f *LMPFeatures) HasPage(page uint8) bool {
	return int(page) < len(f.Pages) && f.KnownPages&(1<<page) != 0
}

func (f *LMPFeatures) HasBit(page uint8, bit uint) bool {
	return f.HasPage(page) && f.Pages[page]&(1<<bit) != 0
}

// VersionInfo is the result of a read remote version information command.
type VersionInfo struct {
	Version      uint8
	Manufacturer uint16
	Subversion   uint16
}
