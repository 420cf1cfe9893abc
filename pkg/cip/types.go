package cip

import "fmt"

// CIP Data Types
type USINT uint8
type UINT uint16
type UDINT uint32
type ULINT uint64
type SINT int8
type INT int16
type DINT int32
type LINT int64
type REAL float32
type LREAL float64
type BYTE byte
type WORD uint16
type DWORD uint32
type LWORD uint64

// Service Codes
const (
	ServiceGetAttributeAll        USINT = 0x01
	ServiceSetAttributeAll        USINT = 0x02
	ServiceGetAttributeList       USINT = 0x03
	ServiceSetAttributeList       USINT = 0x04
	ServiceReset                  USINT = 0x05
	ServiceStart                  USINT = 0x06
	ServiceStop                   USINT = 0x07
	ServiceCreate                 USINT = 0x08
	ServiceDelete                 USINT = 0x09
	ServiceMultipleServicePacket  USINT = 0x0A
	ServiceApplyAttributes        USINT = 0x0D
	ServiceGetAttributeSingle     USINT = 0x0E
	ServiceSetAttributeSingle     USINT = 0x10
	ServiceFindNextObjectInstance USINT = 0x11
	ServiceRestore                USINT = 0x15
	ServiceSave                   USINT = 0x16
	ServiceNop                    USINT = 0x17
	ServiceGetMember              USINT = 0x18
	ServiceSetMember              USINT = 0x19
	ServiceInsertMember           USINT = 0x1A
	ServiceRemoveMember           USINT = 0x1B
	ServiceGroupSync              USINT = 0x1C

	// Forward_Open / Forward_Close are Connection Manager Object services.
	// The transport layer intercepts them before they reach the generic
	// message router (see safety/transport).
	ServiceForwardOpen  USINT = 0x54
	ServiceForwardClose USINT = 0x4E
)

// Common Classes
const (
	ClassIdentity       UINT = 0x01
	ClassMessageRouter  UINT = 0x02
	ClassDeviceNet      UINT = 0x03
	ClassAssembly       UINT = 0x04
	ClassConnection     UINT = 0x05
	ClassConnectionMgr  UINT = 0x06
	ClassRegister       UINT = 0x07
	ClassParameter      UINT = 0x0F
	ClassParameterGroup UINT = 0x10
	ClassGroup          UINT = 0x12
	ClassEthernetLink   UINT = 0xF6
	ClassTCPIPInterface UINT = 0xF5

	// ClassSafetySupervisor is the Safety Supervisor Object class code (CIP
	// Safety Volume 5).
	ClassSafetySupervisor UINT = 0x39
)

// General Status Codes
const (
	StatusSuccess                USINT = 0x00
	StatusConnectionFailure      USINT = 0x01
	StatusResourceUnavailable    USINT = 0x02
	StatusInvalidSegmentType     USINT = 0x03
	StatusPathSegmentError       USINT = 0x04
	StatusPathDestinationUnknown USINT = 0x05
	StatusPartialTransfer        USINT = 0x06
	StatusServiceNotSupported    USINT = 0x08
	StatusInvalidAttributeValue  USINT = 0x09
	StatusAttributeNotSettable   USINT = 0x0E
	StatusPrivilegeViolation     USINT = 0x10
	StatusDeviceStateConflict    USINT = 0x11
	StatusReplyDataTooLarge      USINT = 0x12
	StatusNotEnoughData          USINT = 0x13
	StatusAttributeNotSupported  USINT = 0x14
	StatusTooMuchData            USINT = 0x15
	StatusObjectDoesNotExist     USINT = 0x16
	StatusStoreOperationFailure  USINT = 0x19
	StatusAttributeListShortage  USINT = 0x1C
	StatusInvalidParameter       USINT = 0x20
	StatusServiceFragmentation   USINT = 0x2D
)

// Error represents a CIP error: a general status plus zero or more
// extended status words.
type Error struct {
	Status    USINT
	ExtStatus []UINT
}

func (e Error) Error() string {
	return fmt.Sprintf("CIP Error: Status=0x%02X Ext=%v", e.Status, e.ExtStatus)
}
