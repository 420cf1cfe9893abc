// Package sclose implements the SafetyClose handler (spec component G /
// §4.G): parse the connection triad, find the matching Safety Validator
// instance, stop it, and report CNXN_NOT_FND if none matches.
package sclose

import (
	"bytes"
	"encoding/binary"

	"github.com/iceisfun/cipsafety/safety/types"
	"github.com/iceisfun/cipsafety/safety/validator"
)

// Request is a parsed Forward_Close request's connection triad.
type Request struct {
	Triad types.Triad
}

// fixedSize is the byte size of a connection triad; Parse reports false
// for a shorter buffer.
const fixedSize = 8

// Parse decodes a Forward_Close request body down to its connection triad,
// which is all the Safety Close path needs to locate the instance (§4.G).
func Parse(buf []byte) (Request, bool) {
	if len(buf) < fixedSize {
		return Request{}, false
	}
	return Request{Triad: types.Triad{
		ConnSerial: binary.LittleEndian.Uint16(buf[0:2]),
		OrigVendor: binary.LittleEndian.Uint16(buf[2:4]),
		OrigSerial: binary.LittleEndian.Uint32(buf[4:8]),
	}}, true
}

// Result is the outcome of handling a SafetyClose request.
type Result struct {
	Accepted  bool
	GenStatus uint8
	ExtStatus types.ExtStatus
}

// Handle runs the SafetyClose sequence: find the instance by triad, close
// it, and succeed; report CNXN_NOT_FND if no instance matches.
func Handle(req Request, svc validator.Service) Result {
	inst, found := svc.FindByTriad(req.Triad)
	if !found {
		return Result{GenStatus: 0x01, ExtStatus: types.ExtCnxnNotFound}
	}
	svc.Close(inst.ID)
	return Result{Accepted: true}
}

// EncodeSuccess builds the success Forward_Close reply body: the triad
// echo plus the two reserved bytes used by the original wire format.
func EncodeSuccess(t types.Triad) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, t.ConnSerial)
	binary.Write(buf, binary.LittleEndian, t.OrigVendor)
	binary.Write(buf, binary.LittleEndian, t.OrigSerial)
	buf.WriteByte(0)
	buf.WriteByte(0)
	return buf.Bytes()
}

// EncodeError builds the error Forward_Close reply body.
func EncodeError(r Result) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(r.GenStatus)
	buf.WriteByte(1)
	binary.Write(buf, binary.LittleEndian, uint16(r.ExtStatus))
	return buf.Bytes()
}
