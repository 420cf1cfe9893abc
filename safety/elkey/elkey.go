// Package elkey implements electronic-key parsing and matching (spec
// component D / §4.D), grounded directly on IXSCEelKey.c's
// IXSCE_ElectronicKeyParse and IXSCE_ElectronicKeyMatchCheck.
package elkey

import (
	"encoding/binary"

	"github.com/iceisfun/cipsafety/safety/types"
)

// WireSize is the byte size of an Electronic Key Logical Segment.
const WireSize = 10

// Parse decodes a 10-byte Electronic Key segment. The offsets mirror
// IXSCEelKey.c's k_OFS_ELKEY_* constants.
func Parse(b []byte) (types.ElectronicKey, bool) {
	if len(b) < WireSize {
		return types.ElectronicKey{}, false
	}
	return types.ElectronicKey{
		VendorID:     binary.LittleEndian.Uint16(b[2:4]),
		DeviceType:   binary.LittleEndian.Uint16(b[4:6]),
		ProductCode:  binary.LittleEndian.Uint16(b[6:8]),
		CompMajorRev: b[8],
		MinorRev:     b[9],
	}, true
}

// Identity is the device's own electronic key, consulted for the match
// check.
type Identity struct {
	VendorID    uint16
	DeviceType  uint16
	ProductCode uint16
	MajorRev    uint8
	MinorRev    uint8
}

// CompatibleKeyAccept is consulted when the compatibility bit is set and
// the key does not match exactly (SAPL_IxsceCompElectronicKeyClbk).
type CompatibleKeyAccept func(key types.ElectronicKey) bool

// MatchCheck implements IXSCE_ElectronicKeyMatchCheck: wildcards (zero
// Vendor ID, Product Code, or Device Type) are forbidden outright; zero
// major/minor revision is forbidden; otherwise an exact match succeeds,
// and a mismatch with the compatibility bit set is escalated to the
// application.
func MatchCheck(key types.ElectronicKey, ours Identity, accept CompatibleKeyAccept) (ok bool, ext types.ExtStatus) {
	if key.VendorID == 0 || key.ProductCode == 0 {
		return false, types.ExtVidOrProdCode
	}
	if key.DeviceType == 0 {
		return false, types.ExtDevType
	}
	if key.MajorRev() == 0 || key.MinorRev == 0 {
		return false, types.ExtRevision
	}

	var mismatchExt types.ExtStatus
	switch {
	case key.VendorID != ours.VendorID || key.ProductCode != ours.ProductCode:
		mismatchExt = types.ExtVidOrProdCode
	case key.DeviceType != ours.DeviceType:
		mismatchExt = types.ExtDevType
	case key.MajorRev() != ours.MajorRev || key.MinorRev != ours.MinorRev:
		mismatchExt = types.ExtRevision
	default:
		return true, types.ExtUndefined
	}

	if key.CompatibilityBitSet() && accept != nil && accept(key) {
		return true, types.ExtUndefined
	}
	return false, mismatchExt
}
