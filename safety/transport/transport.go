// Package transport implements the §6 command channel between the safety
// core and the link-layer transport: a small fixed header
// {cmd: u16, len: u16, add_info: u32} followed by a data payload, carried
// both directions. The link layer's own byte-order handling and framing
// below this channel are external collaborators (§1); this package only
// defines the command channel shape and a couple of reference carriers,
// mirroring how goeip's pkg/eip/header.go encodes/decodes a fixed header
// with binary.Write/Read over an io.Writer/io.Reader.
package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Command identifies a message on the command channel.
type Command uint16

const (
	// Outbound (core → transport).
	CmdSOpenRes  Command = 0x4100 // IXSCE_SOPEN_RES
	CmdSCloseRes Command = 0x4101 // IXSCE_SCLOSE_RES
	CmdSNN       Command = 0x4102 // IXSSO_SNN
	CmdDevState  Command = 0x4103 // IXSSO_DEV_STATE

	// Inbound (transport → core).
	CmdSOpenReq  Command = 0x4200 // IXCMO_SOPEN_REQ
	CmdSCloseReq Command = 0x4201 // IXCMO_SCLOSE_REQ
)

func (c Command) String() string {
	switch c {
	case CmdSOpenRes:
		return "IXSCE_SOPEN_RES"
	case CmdSCloseRes:
		return "IXSCE_SCLOSE_RES"
	case CmdSNN:
		return "IXSSO_SNN"
	case CmdDevState:
		return "IXSSO_DEV_STATE"
	case CmdSOpenReq:
		return "IXCMO_SOPEN_REQ"
	case CmdSCloseReq:
		return "IXCMO_SCLOSE_REQ"
	default:
		return fmt.Sprintf("CMD(0x%04X)", uint16(c))
	}
}

// HeaderSize is the fixed size of the command-channel header.
const HeaderSize = 8

// Header is the fixed-layout command channel header: cmd, len, add_info.
type Header struct {
	Cmd     Command
	Len     uint16
	AddInfo uint32
}

// Encode writes the header in little-endian order; the link-layer transport is
// responsible for any wire byte-order conversion per §6.
func (h *Header) Encode(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// Decode reads the header back.
func (h *Header) Decode(r io.Reader) error {
	return binary.Read(r, binary.LittleEndian, h)
}

// Message is a full command-channel message: header plus payload.
type Message struct {
	Header Header
	Data   []byte
}

// Bytes serializes the message (header + data) for handoff to the
// transport's message-put channel.
func (m *Message) Bytes() []byte {
	buf := new(bytes.Buffer)
	m.Header.Len = uint16(len(m.Data))
	m.Header.Encode(buf) //nolint:errcheck // bytes.Buffer never errors
	buf.Write(m.Data)
	return buf.Bytes()
}

// Sink is the outbound half of the command channel (§6): the safety core
// calls Put to hand a fully assembled message to the transport layer. The
// transport's own Send call is assumed synchronous and thread-safe per
// §5's shared-resource policy.
type Sink interface {
	Put(msg Message) error
}

// Source is the inbound half: the transport layer delivers SOpenReq /
// SCloseReq messages to the core through Dispatch.
type Source interface {
	// Next blocks until a message arrives from the transport, or the
	// transport is closed.
	Next() (Message, error)
}
