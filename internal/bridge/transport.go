package bridge

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"

	"github.com/syrahproxy/syrah/internal/errs"
)

const maxFrameBytes = 16 * 1024 * 1024

// conn wraps a single bridge transport connection with length-framed JSON
// message I/O: each frame is a 4-byte big-endian length prefix followed by
// that many bytes of JSON.
type conn struct {
	nc net.Conn
	r  *bufio.Reader
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc, r: bufio.NewReader(nc)}
}

func (c *conn) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.nc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = c.nc.Write(payload)
	return err
}

func (c *conn) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, errs.New(errs.KindBridge, "frame exceeds maximum size", nil)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *conn) readCommand() (*InboundCommand, error) {
	frame, err := c.readFrame()
	if err != nil {
		return nil, err
	}
	var cmd InboundCommand
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return nil, errs.New(errs.KindBridge, "malformed inbound command", err)
	}
	return &cmd, nil
}

func (c *conn) Close() error {
	return c.nc.Close()
}
