// response.go assembles the SafetyOpen response byte payload (spec
// component J / §4.J), grounded on pkg/objects/connmgr's HandleForwardOpen
// manual binary.Write encode, generalised to the safety success/error
// response shapes of §6.
package sopen

import (
	"bytes"
	"encoding/binary"

	"github.com/iceisfun/cipsafety/safety/types"
)

// EncodeSuccess builds the success Forward_Open reply body: connection IDs,
// triad echo, actual PI, application reply size, and the reserved byte.
func EncodeSuccess(p types.OpenParams, otConnID, toConnID uint32, actualOTPI, actualTOPI uint32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, otConnID)
	binary.Write(buf, binary.LittleEndian, toConnID)
	binary.Write(buf, binary.LittleEndian, p.Triad.ConnSerial)
	binary.Write(buf, binary.LittleEndian, p.Triad.OrigVendor)
	binary.Write(buf, binary.LittleEndian, p.Triad.OrigSerial)
	binary.Write(buf, binary.LittleEndian, actualOTPI)
	binary.Write(buf, binary.LittleEndian, actualTOPI)
	buf.WriteByte(0) // application reply size, words
	buf.WriteByte(0) // reserved
	return buf.Bytes()
}

// EncodeError builds the error Forward_Open reply body: general status,
// additional-status-word count, and the extended-status word(s). Per §6,
// RPI_NOT_SUP carries the violated RPI bound (see rejectRPI) as a second
// status word.
func EncodeError(r Result) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(r.GenStatus)
	n := 1
	if len(r.ExtraStatusWords) > 0 {
		n += len(r.ExtraStatusWords)
	}
	buf.WriteByte(byte(n))
	binary.Write(buf, binary.LittleEndian, uint16(r.ExtStatus))
	for _, w := range r.ExtraStatusWords {
		binary.Write(buf, binary.LittleEndian, w)
	}
	return buf.Bytes()
}
