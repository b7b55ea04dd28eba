// Package wsframe implements WebSocket frame decoding, fragment
// reassembly, masking, and the opening handshake helper from RFC 6455.
// Opcode constants are reused from gorilla/websocket
// rather than redeclared.
package wsframe

import (
	"encoding/binary"

	"github.com/gorilla/websocket"

	"github.com/syrahproxy/syrah/internal/errs"
)

// Opcode aliases gorilla/websocket's frame opcode constants.
type Opcode = int

const (
	OpContinuation = websocket.ContinuationMessage
	OpText         = websocket.TextMessage
	OpBinary       = websocket.BinaryMessage
	OpClose        = websocket.CloseMessage
	OpPing         = websocket.PingMessage
	OpPong         = websocket.PongMessage
)

// Frame is one decoded WebSocket frame.
type Frame struct {
	FIN     bool
	Opcode  Opcode
	Masked  bool
	Payload []byte
}

// IsControl reports whether opcode belongs to a control frame (never
// fragmented, per RFC 6455 §5.4).
func IsControl(opcode Opcode) bool {
	return opcode == OpClose || opcode == OpPing || opcode == OpPong
}

// IsData reports whether opcode starts or continues a data message.
func IsData(opcode Opcode) bool {
	return opcode == OpText || opcode == OpBinary || opcode == OpContinuation
}

// DecodeFrame parses one frame from the front of buf. ok is false if buf
// does not yet contain a complete frame; consumed is how many bytes to
// drop from buf on success.
func DecodeFrame(buf []byte) (f Frame, consumed int, ok bool, err error) {
	if len(buf) < 2 {
		return Frame{}, 0, false, nil
	}

	b0, b1 := buf[0], buf[1]
	f.FIN = b0&0x80 != 0
	if b0&0x70 != 0 {
		return Frame{}, 0, false, errs.New(errs.KindParse, "reserved bits set in WebSocket frame", nil)
	}
	f.Opcode = Opcode(b0 & 0x0f)
	f.Masked = b1&0x80 != 0

	lenField := int(b1 & 0x7f)
	offset := 2
	var payloadLen uint64

	switch {
	case lenField <= 125:
		payloadLen = uint64(lenField)
	case lenField == 126:
		if len(buf) < offset+2 {
			return Frame{}, 0, false, nil
		}
		payloadLen = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	default: // 127
		if len(buf) < offset+8 {
			return Frame{}, 0, false, nil
		}
		payloadLen = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
	}

	var maskKey [4]byte
	if f.Masked {
		if len(buf) < offset+4 {
			return Frame{}, 0, false, nil
		}
		copy(maskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if uint64(len(buf)-offset) < payloadLen {
		return Frame{}, 0, false, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[offset:uint64(offset)+payloadLen])
	if f.Masked {
		unmask(payload, maskKey)
	}
	f.Payload = payload

	consumed = offset + int(payloadLen)
	return f, consumed, true, nil
}

// unmask XORs payload in place with key[i mod 4], per RFC 6455 §5.3.
func unmask(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// EncodeFrame serializes a frame for writing to the wire. When masked is
// true, a fresh random-looking key must be supplied by the caller via
// maskKey; payload is XORed with it (not mutated — a copy is returned).
func EncodeFrame(fin bool, opcode Opcode, masked bool, maskKey [4]byte, payload []byte) []byte {
	var out []byte

	b0 := byte(opcode & 0x0f)
	if fin {
		b0 |= 0x80
	}
	out = append(out, b0)

	n := len(payload)
	switch {
	case n <= 125:
		b1 := byte(n)
		if masked {
			b1 |= 0x80
		}
		out = append(out, b1)
	case n <= 0xffff:
		b1 := byte(126)
		if masked {
			b1 |= 0x80
		}
		out = append(out, b1)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(n))
		out = append(out, lenBuf[:]...)
	default:
		b1 := byte(127)
		if masked {
			b1 |= 0x80
		}
		out = append(out, b1)
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
		out = append(out, lenBuf[:]...)
	}

	if masked {
		out = append(out, maskKey[:]...)
		masked := make([]byte, n)
		copy(masked, payload)
		unmask(masked, maskKey)
		out = append(out, masked...)
	} else {
		out = append(out, payload...)
	}

	return out
}

// CloseStatus decodes a Close frame's payload: the first two bytes (if
// present) are a big-endian status code, and any remaining bytes are a
// best-effort UTF-8 reason string.
func CloseStatus(payload []byte) (code int, reason string, hasCode bool) {
	if len(payload) < 2 {
		return 0, "", false
	}
	code = int(binary.BigEndian.Uint16(payload[:2]))
	return code, string(payload[2:]), true
}
