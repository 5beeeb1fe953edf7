package hci

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalConnectionComplete(t *testing.T) {
	buf := []byte{0x04, 0x03, 0x0B, 0x00, 0x2A, 0x00, 0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00, 0x01, 0x00}
	p, err := Unmarshal(buf)
	require.NoError(t, err)

	cc, ok := p.(*ConnectionCompleteEventPacket)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, cc.Status)
	assert.Equal(t, uint16(0x002A), cc.ConnectionHandle)
	assert.Equal(t, "00:1A:7D:DA:71:13", cc.BDAddr.String())
	assert.Equal(t, LinkTypeACL, cc.LinkType)
	assert.False(t, cc.EncryptionEnabled)
}

func TestUnmarshalCommandStatus(t *testing.T) {
	p, err := Unmarshal([]byte{0x04, 0x0F, 0x04, 0x0C, 0x01, 0x05, 0x04})
	require.NoError(t, err)

	cs, ok := p.(*CommandStatusEventPacket)
	require.True(t, ok)
	assert.Equal(t, OpcodeCreateConnection, cs.CommandOpcode)
	assert.Equal(t, StatusCommandDisallowed, EventStatus(cs))
	assert.Error(t, cs.Status.Err())
}

func TestUnmarshalRemoteNameStopsAtNul(t *testing.T) {
	p := &RemoteNameRequestCompleteEventPacket{BDAddr: BDAddr{1, 2, 3, 4, 5, 6}, RemoteName: "headset"}
	buf, err := p.Marshal()
	require.NoError(t, err)
	assert.Len(t, buf, 3+255)

	q, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, "headset", q.(*RemoteNameRequestCompleteEventPacket).RemoteName)
}

func TestUnmarshalLEReadRemoteFeatures(t *testing.T) {
	buf := []byte{0x04, 0x3E, 0x0C, 0x04, 0x00, 0x40, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	p, err := Unmarshal(buf)
	require.NoError(t, err)

	le, ok := p.(*LEReadRemoteFeaturesCompleteEventPacket)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0040), le.ConnectionHandle)
	assert.Equal(t, uint64(1), le.LEFeatures)
}

func TestUnmarshalNumberOfCompletedPackets(t *testing.T) {
	buf := []byte{0x04, 0x13, 0x09, 0x02, 0x01, 0x00, 0x03, 0x00, 0x02, 0x00, 0x01, 0x00}
	p, err := Unmarshal(buf)
	require.NoError(t, err)

	nocp := p.(*NumberOfCompletedPacketsEventPacket)
	assert.Equal(t, []uint16{1, 2}, nocp.ConnectionHandles)
	assert.Equal(t, []uint16{3, 1}, nocp.NumCompletedPackets)
}

func TestUnmarshalUnsupportedEvent(t *testing.T) {
	_, err := Unmarshal([]byte{0x04, 0x10, 0x01, 0x00})
	assert.True(t, errors.Is(err, ErrUnsupportedPacket))
}

func TestUnmarshalTruncatedEvent(t *testing.T) {
	_, err := Unmarshal([]byte{0x04, 0x03, 0x0B, 0x00})
	assert.Equal(t, io.ErrShortBuffer, err)
}

func TestCreateConnectionEncoding(t *testing.T) {
	p := &CreateConnectionCommandPacket{
		BDAddr:                 BDAddr{0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00},
		PacketType:             DefaultACLPacketTypes,
		PageScanRepetitionMode: PageScanRepetitionModeR1,
		ClockOffset:            0x1234,
		AllowRoleSwitch:        true,
	}
	buf, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 0x05, 0x04, 0x0D,
		0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00,
		0x18, 0xCC,
		0x01, 0x00,
		0x34, 0x12,
		0x01,
	}, buf)
}

func TestIOCapabilityReplyEncoding(t *testing.T) {
	p := &IOCapabilityRequestReplyCommandPacket{
		BDAddr:           BDAddr{1, 2, 3, 4, 5, 6},
		IOCapability:     IOCapabilityDisplayYesNo,
		AuthRequirements: AuthRequirementsMITMGeneralBonding,
	}
	buf, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x2B, 0x04, 0x09, 1, 2, 3, 4, 5, 6, 0x01, 0x00, 0x05}, buf)
}

func TestParseBDAddr(t *testing.T) {
	addr, err := ParseBDAddr("00:1A:7D:DA:71:13")
	require.NoError(t, err)
	assert.Equal(t, BDAddr{0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00}, addr)

	_, err = ParseBDAddr("00:1A:7D")
	assert.Error(t, err)
	_, err = ParseBDAddr("00:1A:7D:DA:71:ZZ")
	assert.Error(t, err)
}

func TestStatusErrorKinds(t *testing.T) {
	assert.Nil(t, StatusSuccess.Err())

	var herr *Error
	require.True(t, errors.As(StatusPageTimeout.Err(), &herr))
	assert.True(t, herr.Timeout())
	assert.False(t, herr.Rejected())

	require.True(t, errors.As(StatusConnectionRejectedSecurity.Err(), &herr))
	assert.True(t, herr.Rejected())
	assert.Equal(t, "hci: connection rejected: security reasons", herr.Error())
}

func TestLMPFeatures(t *testing.T) {
	var f LMPFeatures
	assert.False(t, f.HasPage(0))
	f.SetPage(0, 1<<LMPFeatureExtendedFeatures)
	f.SetPage(5, 1)
	assert.True(t, f.HasPage(0))
	assert.False(t, f.HasPage(5))
	assert.True(t, f.HasBit(0, LMPFeatureExtendedFeatures))
	assert.False(t, f.HasBit(1, LMPFeatureSecureSimplePairingHost))
}

func TestExtendedInquiryResponseEncoding(t *testing.T) {
	eir, err := MarshalEIR(CompleteLocalName("bredr"), Complete16BitServiceUUIDs{0x110B, 0x110E}, TxPowerLevel(-4))
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x06, 0x09, 'b', 'r', 'e', 'd', 'r',
		0x05, 0x03, 0x0B, 0x11, 0x0E, 0x11,
		0x02, 0x0A, 0xFC,
	}, eir)

	buf, err := (&WriteExtendedInquiryResponseCommandPacket{FECRequired: true, Data: eir}).Marshal()
	require.NoError(t, err)
	assert.Len(t, buf, 4+241)
	assert.Equal(t, []byte{0x01, 0x52, 0x0C, 241, 0x01, 0x06, 0x09}, buf[:7])

	_, err = MarshalEIR(CompleteLocalName(make([]byte, 250)))
	assert.Error(t, err)
}

func TestWriteLocalNameEncoding(t *testing.T) {
	buf, err := (&WriteLocalNameCommandPacket{LocalName: "bredr"}).Marshal()
	require.NoError(t, err)
	assert.Len(t, buf, 4+248)

	p := &WriteLocalNameCommandPacket{}
	require.NoError(t, p.Unmarshal(buf))
	assert.Equal(t, "bredr", p.LocalName)
}
