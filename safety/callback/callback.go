// Package callback declares the application-embedding interface (SAPL_*
// in the original CSS sources) that the safety core invokes for decisions
// it does not make itself: non-volatile storage, application-level open
// validation, electronic-key compatibility, and error reporting. Mirrors
// how goeip's cip.Object is a trait-shaped interface passed to the
// router rather than a concrete type.
package callback

import "github.com/iceisfun/cipsafety/safety/types"

// StorageID enumerates the non-volatile attributes the identity store
// persists through NVStore/NVRestore.
type StorageID uint8

const (
	StorageAlarmEnable StorageID = iota
	StorageWarningEnable
	StorageCFUNID
	StorageOCPUNIDTable
	StorageSCID
	StorageTUNIDList
)

// SafetyApplication is the embedding interface a safety application
// implements to receive callbacks from the core (SAPL_* in the original).
type SafetyApplication interface {
	// SelfTestResult is polled once during self-test; true means pass.
	SelfTestResult() bool

	// ErrorReport surfaces a fail-safe or not-fail-safe diagnostic code.
	// instance and context are opaque diagnostic payload, as in
	// SAPL_CssErrorClbk/SAPL_ErrorReport.
	ErrorReport(code uint32, instance uint32, context uint32)

	// NVStore persists size bytes for storageID; returns false on failure.
	NVStore(id StorageID, data []byte) bool
	// NVRestore reads back a previously stored value; returns false if
	// absent or corrupt.
	NVRestore(id StorageID) (data []byte, ok bool)

	// SafetyOpenValidate is the application veto point (§4.F.13). A
	// non-zero return is echoed as the extended status and the open is
	// rejected.
	SafetyOpenValidate(params types.OpenParams, payloadSize uint16) uint16

	// ApplyConfig is invoked after a Type-1 SafetyOpen's SCCRC has
	// verified; returning false aborts the commit with MISCELLANEOUS.
	ApplyConfig(configData []byte) bool

	// CompatibleKeyAccept is consulted when the electronic key's
	// compatibility bit is set and an exact match failed.
	CompatibleKeyAccept(key types.ElectronicKey) bool

	// SafetyReset handles Safety_Reset; returns the general status code
	// to transmit. The actual reset happens after the response flushes.
	SafetyReset(resetType uint8, attrBitmap uint8, password [16]byte, targetUNID types.UNID) uint8

	// ProfileDependentStateChange notifies the application of a
	// supervisor state transition, for profile-specific side effects.
	ProfileDependentStateChange(newState uint8)

	// IODataRxCallback is forwarded from the assembly interface; the
	// core does not interpret I/O data itself.
	IODataRxCallback(cnxnPoint uint16, data []byte)

	// DeviceStatusForValidator supplies device-status bits a Safety
	// Validator instance needs when assembling safety I/O packets.
	DeviceStatusForValidator() uint8
}
