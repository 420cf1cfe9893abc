package transport

import (
	"fmt"
	"io"
	"net"
	"time"
)

// TCPChannel carries the §6 command channel over a plain TCP stream,
// adapted from goeip's TCPTransport: dial with a timeout, then frame
// reads/writes around the fixed Header.
type TCPChannel struct {
	conn net.Conn
}

// DialTCP connects to a link-layer transport listening at address.
func DialTCP(address string, timeout time.Duration) (*TCPChannel, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, err
	}
	return &TCPChannel{conn: conn}, nil
}

// NewTCPChannel wraps an already-established connection (e.g. one accepted
// by a listener).
func NewTCPChannel(conn net.Conn) *TCPChannel {
	return &TCPChannel{conn: conn}
}

// Put implements Sink.
func (t *TCPChannel) Put(msg Message) error {
	msg.Header.Len = uint16(len(msg.Data))
	if err := msg.Header.Encode(t.conn); err != nil {
		return fmt.Errorf("command channel: write header: %w", err)
	}
	if len(msg.Data) > 0 {
		if _, err := t.conn.Write(msg.Data); err != nil {
			return fmt.Errorf("command channel: write data: %w", err)
		}
	}
	return nil
}

// Next implements Source.
func (t *TCPChannel) Next() (Message, error) {
	var h Header
	if err := h.Decode(t.conn); err != nil {
		return Message{}, fmt.Errorf("command channel: read header: %w", err)
	}
	var data []byte
	if h.Len > 0 {
		data = make([]byte, h.Len)
		if _, err := io.ReadFull(t.conn, data); err != nil {
			return Message{}, fmt.Errorf("command channel: read data: %w", err)
		}
	}
	return Message{Header: h, Data: data}, nil
}

// Close closes the underlying connection.
func (t *TCPChannel) Close() error {
	return t.conn.Close()
}
