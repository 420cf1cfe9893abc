// Package crc implements the two CIP-Safety CRC functions used during
// connection establishment: CRC-S4 (over configuration data, producing
// SCCRC) and CPCRC (over the SafetyOpen connection parameters).
//
// Neither is a standard CRC-32 or CRC-32C: both are bit-reflected 32-bit
// CRCs built over a CIP-Safety-proprietary polynomial, distinct from the
// IEEE 802.3 and Castagnoli polynomials hash/crc32 provides. No library in
// the retrieval pack implements them, so this is hand-rolled against the
// coverage/region description in the original CSS sources (IXSCEsopen.c's
// CPCRC check, CSS §CPCRC) rather than against a distilled library.
package crc

// polyS4 is the CIP-Safety CRC-S4 32-bit polynomial, bit-reflected form.
const polyS4 = 0x5D6DCB

var tableS4 = buildTable(polyS4)

func buildTable(poly uint32) [256]uint32 {
	var table [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}

// S4 computes CRC-S4 over data, used to verify SCCRC against configuration
// data (§4.F.10) and to compute SCCRC when configuration is first applied.
func S4(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = tableS4[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// CP computes the CPCRC over the CRC-covered region of a SafetyOpen request
// (§6: the fixed header through the end of the safety segment, excluding
// the CPCRC word itself). The caller is responsible for slicing out exactly
// that region; CP itself only runs the polynomial, sharing the table with
// S4 since both are the same CIP-Safety CRC-32 construction applied to
// different regions.
func CP(coveredRegion []byte) uint32 {
	return S4(coveredRegion)
}
