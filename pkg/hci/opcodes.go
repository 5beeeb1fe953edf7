package hci

// https://software-dl.ti.com/simplelink/esd/simplelink_cc13x2_sdk/1.60.00.29_new/exports/docs/ble5stack/vendor_specific_guide/BLE_Vendor_Specific_HCI_Guide/hci_interface.html

type PacketType uint8

const (
	PacketTypeCommand         PacketType = 0x01
	PacketTypeACLData         PacketType = 0x02
	PacketTypeSynchronousData PacketType = 0x03
	PacketTypeEvent           PacketType = 0x04
	PacketTypeExtendedCommand PacketType = 0x09
)

type Opcode uint16

// Vol 4, Part E, Section 7 of the Bluetooth Core Specification
const (
	// Link Control (OGF 0x01)
	OpcodeCreateConnection                     Opcode = 0x0405
	OpcodeDisconnect                           Opcode = 0x0406
	OpcodeCreateConnectionCancel               Opcode = 0x0408
	OpcodeAcceptConnectionRequest              Opcode = 0x0409
	OpcodeRejectConnectionRequest              Opcode = 0x040A
	OpcodeLinkKeyRequestReply                  Opcode = 0x040B
	OpcodeLinkKeyRequestNegativeReply          Opcode = 0x040C
	OpcodeAuthenticationRequested              Opcode = 0x0411
	OpcodeSetConnectionEncryption              Opcode = 0x0413
	OpcodeRemoteNameRequest                    Opcode = 0x0419
	OpcodeReadRemoteSupportedFeatures          Opcode = 0x041B
	OpcodeReadRemoteExtendedFeatures           Opcode = 0x041C
	OpcodeReadRemoteVersionInformation         Opcode = 0x041D
	OpcodeIOCapabilityRequestReply             Opcode = 0x042B
	OpcodeUserConfirmationRequestReply         Opcode = 0x042C
	OpcodeUserConfirmationRequestNegativeReply Opcode = 0x042D
	OpcodeUserPasskeyRequestReply              Opcode = 0x042E
	OpcodeUserPasskeyRequestNegativeReply      Opcode = 0x042F
	OpcodeIOCapabilityRequestNegativeReply     Opcode = 0x0434

	// Controller & Baseband (OGF 0x03)
	OpcodeSetEventMask                 Opcode = 0x0C01
	OpcodeReset                        Opcode = 0x0C03
	OpcodeWriteLocalName               Opcode = 0x0C13
	OpcodeWriteScanEnable              Opcode = 0x0C1A
	OpcodeWriteExtendedInquiryResponse Opcode = 0x0C52
	OpcodeWriteSimplePairingMode       Opcode = 0x0C56

	// Informational (OGF 0x04)
	OpcodeReadBufferSize Opcode = 0x1005
	OpcodeReadBDAddr     Opcode = 0x1009

	// LE Controller (OGF 0x08)
	OpcodeLESetEventMask           Opcode = 0x2001
	OpcodeLEReadBufferSize         Opcode = 0x2002
	OpcodeLEReadRemoteFeatures     Opcode = 0x2016
	OpcodeLEReadSupportedStates    Opcode = 0x201C
	OpcodeReadFilterAcceptListSize Opcode = 0x200F
	OpcodeClearFilterAcceptList    Opcode = 0x2010
)

type EventCode uint8

const (
	EventCodeConnectionComplete                   EventCode = 0x03
	EventCodeConnectionRequest                    EventCode = 0x04
	EventCodeDisconnectionComplete                EventCode = 0x05
	EventCodeAuthenticationComplete               EventCode = 0x06
	EventCodeRemoteNameRequestComplete            EventCode = 0x07
	EventCodeEncryptionChange                     EventCode = 0x08
	EventCodeReadRemoteSupportedFeaturesComplete  EventCode = 0x0B
	EventCodeReadRemoteVersionInformationComplete EventCode = 0x0C
	EventCodeCommandComplete                      EventCode = 0x0E
	EventCodeCommandStatus                        EventCode = 0x0F
	EventCodeHardwareError                        EventCode = 0x10
	EventCodeRoleChange                           EventCode = 0x12
	EventCodeNumberOfCompletedPackets             EventCode = 0x13
	EventCodeLinkKeyRequest                       EventCode = 0x17
	EventCodeLinkKeyNotification                  EventCode = 0x18
	EventCodeDataBufferOverflow                   EventCode = 0x1A
	EventCodeReadRemoteExtendedFeaturesComplete   EventCode = 0x23
	EventCodeEncryptionKeyRefreshComplete         EventCode = 0x30
	EventCodeIOCapabilityRequest                  EventCode = 0x31
	EventCodeIOCapabilityResponse                 EventCode = 0x32
	EventCodeUserConfirmationRequest              EventCode = 0x33
	EventCodeUserPasskeyRequest                   EventCode = 0x34
	EventCodeSimplePairingComplete                EventCode = 0x36
	EventCodeUserPasskeyNotification              EventCode = 0x3B
	EventCodeLEMeta                               EventCode = 0x3E
	EventCodeAuthenticatedPayloadTimeoutExpired   EventCode = 0x57
)

type LEMetaSubeventCode uint8

const (
	LEMetaSubeventCodeConnectionComplete             LEMetaSubeventCode = 0x01
	LEMetaSubeventCodeAdvertisingReport              LEMetaSubeventCode = 0x02
	LEMetaSubeventCodeConnectionUpdate               LEMetaSubeventCode = 0x03
	LEMetaSubeventCodeReadRemoteUsedFeaturesComplete LEMetaSubeventCode = 0x04
	LEMetaSubeventCodeLongTermKeyRequest             LEMetaSubeventCode = 0x05
	LEMetaSubeventCodeReadLocalP256PublicKeyComplete LEMetaSubeventCode = 0x08
	LEMetaSubeventCodeGenerateDHKeyComplete          LEMetaSubeventCode = 0x09
	LEMetaSubeventCodeEnhancedConnectionComplete     LEMetaSubeventCode = 0x0A
	LEMetaSubeventCodePHYUpdateComplete              LEMetaSubeventCode = 0x0C
	LEMetaSubeventCodeExtendedAdvertisingReport      LEMetaSubeventCode = 0x0D
)
