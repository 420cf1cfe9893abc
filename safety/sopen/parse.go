// Package sopen implements the SafetyOpen parser, validator, commit logic
// and response assembler (spec components E, F, J). This file is the
// parser (§4.E): it decodes the fixed Forward_Open header then walks the
// variable connection-path segments, mirroring IXSCEsopen.c's top-to-
// bottom field-by-field decode but over a bounded byte slice instead of
// pointer arithmetic, per §9's explicit direction to eliminate
// CSS_N2H_CPYn-style pointer walks from the safety path.
package sopen

import (
	"encoding/binary"

	"github.com/iceisfun/cipsafety/pkg/cip"
	"github.com/iceisfun/cipsafety/safety/elkey"
	"github.com/iceisfun/cipsafety/safety/types"
)

// ParseError is one of the named parse failures of §4.E.
type ParseError uint8

const (
	ErrTooShort ParseError = iota
	ErrTooLong
	ErrAppPathSize1
	ErrAppPathSize2
	ErrSegmentInvalid
	ErrSafetySegSize
	ErrInvalidClass
	ErrInvalidInstance
	ErrBaseNotSupported
	ErrExtendedNotSupported
)

func (e ParseError) String() string {
	switch e {
	case ErrTooShort:
		return "TOO_SHORT"
	case ErrTooLong:
		return "TOO_LONG"
	case ErrAppPathSize1:
		return "AP_SIZE_1"
	case ErrAppPathSize2:
		return "AP_SIZE_2"
	case ErrSegmentInvalid:
		return "SEG_INV"
	case ErrSafetySegSize:
		return "SSEG_SIZE"
	case ErrInvalidClass:
		return "INV_CLASS"
	case ErrInvalidInstance:
		return "INV_INST"
	case ErrBaseNotSupported:
		return "BASE_NOT_SUP"
	case ErrExtendedNotSupported:
		return "EXT_NOT_SUP"
	default:
		return "UNKNOWN"
	}
}

// Bounds on total request size (§4.E); FieldsSize is the minimum possible
// fixed-header + electronic-key + one app path + Base safety segment.
const (
	FixedHeaderSize = 34
	FieldsSize      = FixedHeaderSize + elkey.WireSize + 6 /*one config app path, 8-bit class+instance+wordcount+pad*/ + baseSafetySegSize
	MaxSize         = 300

	baseSafetySegSize     = 52
	extendedSafetySegSize = 58
)

// appPath is one decoded {class, instance[, configData]} application path.
type appPath struct {
	class    uint16
	instance uint16
	data     []byte // non-nil only for the configuration path, Type 1
}

// decodeLogicalSegment decodes one CIP logical Class or Instance segment
// starting at b[0], returning the value and bytes consumed.
func decodeLogicalSegment(b []byte, wantType byte) (value uint16, consumed int, ok bool) {
	if len(b) < 2 {
		return 0, 0, false
	}
	segByte := b[0]
	if segByte&0xE0 != cip.SegmentTypeLogical {
		return 0, 0, false
	}
	if segByte&0x1C != wantType {
		return 0, 0, false
	}
	switch segByte & 0x03 {
	case 0x00: // 8-bit
		return uint16(b[1]), 2, true
	case 0x01: // 16-bit, padded
		if len(b) < 4 {
			return 0, 0, false
		}
		return binary.LittleEndian.Uint16(b[2:4]), 4, true
	default:
		return 0, 0, false
	}
}

// decodeAppPath decodes one application path: a Class segment, an Instance
// segment, and — only for the configuration path — a word-count byte plus
// that many words of opaque configuration data.
func decodeAppPath(b []byte, withData bool) (ap appPath, consumed int, perr ParseError, ok bool) {
	classVal, n1, ok1 := decodeLogicalSegment(b, cip.LogicalTypeClass)
	if !ok1 {
		return appPath{}, 0, ErrSegmentInvalid, false
	}
	rest := b[n1:]
	instVal, n2, ok2 := decodeLogicalSegment(rest, cip.LogicalTypeInstance)
	if !ok2 {
		return appPath{}, 0, ErrSegmentInvalid, false
	}
	ap.class = classVal
	ap.instance = instVal
	consumed = n1 + n2

	if withData {
		rest2 := rest[n2:]
		// word-count byte, one reserved pad byte (CIP Data Segment
		// convention), then that many 16-bit words of data — the pad byte
		// keeps this block an even length regardless of word count, which
		// every other segment here already is.
		if len(rest2) < 2 {
			return appPath{}, 0, ErrAppPathSize1, false
		}
		words := int(rest2[0])
		need := 2 + words*2
		if len(rest2) < need {
			return appPath{}, 0, ErrAppPathSize2, false
		}
		if words > 0 {
			ap.data = append([]byte(nil), rest2[2:2+words*2]...)
		}
		consumed += need
	}

	return ap, consumed, 0, true
}

func unidFromSafetySeg(b []byte) types.UNID {
	return types.UNID{
		SNNTime: binary.LittleEndian.Uint32(b[0:4]),
		SNNDate: binary.LittleEndian.Uint16(b[4:6]),
		NodeID:  binary.LittleEndian.Uint32(b[6:10]),
	}
}

// Parse decodes a raw Forward_Open data-area byte buffer into OpenParams
// plus the Auxiliary bookkeeping CPCRC verification needs. supportsExtended
// gates whether the Extended safety-segment format is accepted at all
// (§9's Base/Extended construction-time toggle).
func Parse(buf []byte, supportsExtended bool) (types.OpenParams, types.Auxiliary, ParseError, bool) {
	var p types.OpenParams
	var aux types.Auxiliary

	if len(buf) < FieldsSize {
		return p, aux, ErrTooShort, false
	}
	if len(buf) > MaxSize {
		return p, aux, ErrTooLong, false
	}

	p.NetConnIDOT = binary.LittleEndian.Uint32(buf[0:4])
	p.NetConnIDTO = binary.LittleEndian.Uint32(buf[4:8])
	p.Triad.ConnSerial = binary.LittleEndian.Uint16(buf[8:10])
	p.Triad.OrigVendor = binary.LittleEndian.Uint16(buf[10:12])
	p.Triad.OrigSerial = binary.LittleEndian.Uint32(buf[12:16])
	p.TimeoutMult = buf[16]
	p.RPIOT = binary.LittleEndian.Uint32(buf[20:24])
	p.NetParamsOT = binary.LittleEndian.Uint16(buf[24:26])
	p.RPITO = binary.LittleEndian.Uint32(buf[26:30])
	p.NetParamsTO = binary.LittleEndian.Uint16(buf[30:32])
	p.TransportTrigger = buf[32]
	pathSizeWords := int(buf[33])
	pathBytes := buf[34:]
	if len(pathBytes) < pathSizeWords*2 {
		return p, aux, ErrTooShort, false
	}
	pathBytes = pathBytes[:pathSizeWords*2]

	aux.ElKeyOffset = 34
	if len(pathBytes) < elkey.WireSize {
		return p, aux, ErrSegmentInvalid, false
	}
	key, okKey := elkey.Parse(pathBytes[:elkey.WireSize])
	if !okKey {
		return p, aux, ErrSegmentInvalid, false
	}
	p.ElectronicKey = key
	cursor := pathBytes[elkey.WireSize:]
	appStart := elkey.WireSize

	// Up to three application paths: configuration (optionally carrying
	// data), consuming, producing. The request need not carry all three;
	// we stop once we reach the safety network segment, recognised as
	// whatever is left over once app paths parse out, sized to either
	// baseSafetySegSize or extendedSafetySegSize.
	var paths []appPath
	remaining := cursor
	for len(paths) < 3 {
		// Stop condition: remaining is exactly sized for the safety
		// segment (Base or Extended).
		if len(remaining) == baseSafetySegSize || len(remaining) == extendedSafetySegSize {
			break
		}
		withData := len(paths) == 0 // configuration path is first and may carry data
		ap, n, perr, ok := decodeAppPath(remaining, withData)
		if !ok {
			return p, aux, perr, false
		}
		paths = append(paths, ap)
		remaining = remaining[n:]
	}

	aux.AppPathsByteSize = len(cursor) - len(remaining)
	aux.NetSafetyOffset = appStart + aux.AppPathsByteSize + 34

	if len(paths) >= 1 {
		p.ConfigClass = paths[0].class
		p.ConfigInstance = paths[0].instance
		p.ConfigData = paths[0].data
	}
	if len(paths) >= 2 {
		p.ConsumingInstance = paths[1].instance
	}
	if len(paths) >= 3 {
		p.ProducingInstance = paths[2].instance
	}

	seg := remaining
	switch len(seg) {
	case baseSafetySegSize:
		p.Safety.Format = types.FormatBase
	case extendedSafetySegSize:
		if !supportsExtended {
			return p, aux, ErrExtendedNotSupported, false
		}
		p.Safety.Format = types.FormatExtended
	default:
		return p, aux, ErrSafetySegSize, false
	}

	p.Safety.TUNID = unidFromSafetySeg(seg[0:10])
	p.Safety.OUNID = unidFromSafetySeg(seg[10:20])
	p.Safety.CPCRC = binary.LittleEndian.Uint32(seg[20:24])
	p.Safety.TCorrConnID = binary.LittleEndian.Uint32(seg[24:28])
	p.Safety.TCorrEPI = binary.LittleEndian.Uint32(seg[28:32])
	p.Safety.TCorrNetParams = binary.LittleEndian.Uint16(seg[32:34])
	p.Safety.TimeoutMult = seg[34]
	p.Safety.PingIntervalEPIMult = binary.LittleEndian.Uint16(seg[35:37])
	p.Safety.TCOOMinMult = binary.LittleEndian.Uint16(seg[37:39])
	p.Safety.NetTimeExpMult = binary.LittleEndian.Uint16(seg[39:41])
	p.Safety.MaxConsumerNum = seg[41]
	// bytes 42..51 carry the SCCRC/SCTS echo (§4.F.10/11: Commit compares
	// this against either the freshly computed SCCRC of a Type 1 request's
	// configuration data, or the device's stored SCID for a Type 2 request).
	p.Safety.SCIDEcho.SCCRC = binary.LittleEndian.Uint32(seg[42:46])
	p.Safety.SCIDEcho.SCTSTime = binary.LittleEndian.Uint32(seg[46:50])
	p.Safety.SCIDEcho.SCTSDate = binary.LittleEndian.Uint16(seg[50:52])

	if p.Safety.Format == types.FormatExtended {
		p.Safety.MaxFaultNum = binary.LittleEndian.Uint16(seg[52:54])
		p.Safety.InitialTimestamp = binary.LittleEndian.Uint16(seg[54:56])
		p.Safety.InitialRollover = binary.LittleEndian.Uint16(seg[56:58])
	}

	return p, aux, 0, true
}
